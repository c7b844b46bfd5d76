package manager

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/helpinghand/helpinghand/internal/apperr"
	"github.com/helpinghand/helpinghand/internal/auth"
	"github.com/helpinghand/helpinghand/internal/db"
)

func newestFirst(q *gorm.DB) *gorm.DB {
	return q.Order("created_at DESC").Order("id DESC")
}

func (m *RequestManager) list(ctx context.Context, scope func(*gorm.DB) *gorm.DB) ([]RequestView, error) {
	var reqs []db.HelpRequest
	if err := newestFirst(scope(m.db.WithContext(ctx))).Find(&reqs).Error; err != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to list requests: %w", err))
	}
	return m.populate(ctx, reqs)
}

// ListPending is the pool volunteers browse.
func (m *RequestManager) ListPending(ctx context.Context, actor auth.Principal) (_ []RequestView, err error) {
	ctx, span := m.start(ctx, "ListPending", "")
	defer func() { finish(span, err) }()

	if !actor.Is(db.RoleVolunteer) {
		return nil, apperr.Forbidden("Access denied. Only volunteers can view pending requests.")
	}
	return m.list(ctx, func(q *gorm.DB) *gorm.DB {
		return q.Where("status = ? AND assigned_volunteer_id IS NULL", db.StatusPending)
	})
}

// ListMine returns a help seeker's own requests, or everything assigned
// to a volunteer.
func (m *RequestManager) ListMine(ctx context.Context, actor auth.Principal) (_ []RequestView, err error) {
	ctx, span := m.start(ctx, "ListMine", "")
	defer func() { finish(span, err) }()

	switch actor.Role {
	case db.RoleHelpSeeker:
		return m.list(ctx, func(q *gorm.DB) *gorm.DB {
			return q.Where("requester_id = ?", actor.ID)
		})
	case db.RoleVolunteer:
		return m.list(ctx, func(q *gorm.DB) *gorm.DB {
			return q.Where("assigned_volunteer_id = ?", actor.ID)
		})
	default:
		return nil, apperr.Forbidden("Access denied. Only help seekers can view their own requests.")
	}
}

func (m *RequestManager) ListAssignedToVolunteer(ctx context.Context, actor auth.Principal) (_ []RequestView, err error) {
	ctx, span := m.start(ctx, "ListAssignedToVolunteer", "")
	defer func() { finish(span, err) }()

	if !actor.Is(db.RoleVolunteer) {
		return nil, apperr.Forbidden("Access denied. Only volunteers can view assigned requests.")
	}
	return m.list(ctx, func(q *gorm.DB) *gorm.DB {
		return q.Where("assigned_volunteer_id = ? AND status IN ?", actor.ID, []db.Status{db.StatusAccepted, db.StatusCompleted})
	})
}

// VolunteerFeed is the pending pool plus the caller's own assignments.
func (m *RequestManager) VolunteerFeed(ctx context.Context, actor auth.Principal) (_ []RequestView, err error) {
	ctx, span := m.start(ctx, "VolunteerFeed", "")
	defer func() { finish(span, err) }()

	if !actor.Is(db.RoleVolunteer) {
		return nil, apperr.Forbidden("Access denied. Not a volunteer.")
	}
	return m.list(ctx, func(q *gorm.DB) *gorm.DB {
		return q.Where("status = ? OR assigned_volunteer_id = ?", db.StatusPending, actor.ID)
	})
}

func (m *RequestManager) ListAll(ctx context.Context, actor auth.Principal) (_ []RequestView, err error) {
	ctx, span := m.start(ctx, "ListAll", "")
	defer func() { finish(span, err) }()

	if actor.ID == "" {
		return nil, apperr.NotAuthorized("No token, authorization denied")
	}
	return m.list(ctx, func(q *gorm.DB) *gorm.DB { return q })
}

func (m *RequestManager) Get(ctx context.Context, id string, actor auth.Principal) (_ *RequestView, err error) {
	ctx, span := m.start(ctx, "Get", id)
	defer func() { finish(span, err) }()

	if actor.ID == "" {
		return nil, apperr.NotAuthorized("No token, authorization denied")
	}
	req, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.view(ctx, *req)
}
