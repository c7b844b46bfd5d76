package manager

import (
	"context"
	"fmt"

	"github.com/helpinghand/helpinghand/internal/apperr"
	"github.com/helpinghand/helpinghand/internal/db"
)

// UserSummary is the public face of a user embedded in read results.
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RequestView is a HelpRequest with its requester and assignee resolved.
// A party whose account has since been removed is left nil.
type RequestView struct {
	db.HelpRequest
	Requester         *UserSummary `json:"requester"`
	AssignedVolunteer *UserSummary `json:"assignedVolunteer"`
}

func (m *RequestManager) view(ctx context.Context, req db.HelpRequest) (*RequestView, error) {
	views, err := m.populate(ctx, []db.HelpRequest{req})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// populate resolves users with one batched query, separate from the
// request read.
func (m *RequestManager) populate(ctx context.Context, reqs []db.HelpRequest) ([]RequestView, error) {
	seen := map[string]struct{}{}
	ids := make([]string, 0, len(reqs))
	add := func(id string) {
		if _, ok := seen[id]; ok || id == "" {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for i := range reqs {
		add(reqs[i].RequesterID)
		if reqs[i].AssignedVolunteerID != nil {
			add(*reqs[i].AssignedVolunteerID)
		}
	}

	users := map[string]*UserSummary{}
	if len(ids) > 0 {
		var rows []UserSummary
		err := m.db.WithContext(ctx).Model(&db.User{}).
			Select("id", "name", "email").
			Where("id IN ?", ids).
			Find(&rows).Error
		if err != nil {
			return nil, apperr.Internal(fmt.Errorf("failed to load users: %w", err))
		}
		for i := range rows {
			users[rows[i].ID] = &rows[i]
		}
	}

	out := make([]RequestView, len(reqs))
	for i, r := range reqs {
		out[i] = RequestView{HelpRequest: r, Requester: users[r.RequesterID]}
		if r.AssignedVolunteerID != nil {
			out[i].AssignedVolunteer = users[*r.AssignedVolunteerID]
		}
	}
	return out, nil
}
