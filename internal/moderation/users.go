package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/helpinghand/helpinghand/internal/apperr"
	"github.com/helpinghand/helpinghand/internal/auth"
	"github.com/helpinghand/helpinghand/internal/db"
)

const dateLayout = "2006-01-02"

// UserFilter narrows ListUsers. Dates are YYYY-MM-DD; EndDate includes
// the whole day.
type UserFilter struct {
	Search    string
	Role      string
	StartDate string
	EndDate   string
}

type UserStats struct {
	RequestsInitiated int64 `json:"requestsInitiated"`
	RequestsAccepted  int64 `json:"requestsAccepted"`
	RequestsCompleted int64 `json:"requestsCompleted"`
	ComplaintsFiled   int64 `json:"complaintsFiled"`
	ComplaintsAgainst int64 `json:"complaintsAgainst"`
}

type UserDetails struct {
	User  db.User   `json:"user"`
	Stats UserStats `json:"stats"`
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *Service) ListUsers(ctx context.Context, actor auth.Principal, f UserFilter) ([]db.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Model(&db.User{})
	if search := strings.ToLower(trimmed(f.Search)); search != "" {
		pattern := "%" + likeEscaper.Replace(search) + "%"
		q = q.Where(`(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\')`, pattern, pattern)
	}
	if role := trimmed(f.Role); role != "" && role != "all" {
		if !db.Role(role).Valid() {
			return nil, apperr.Validation("Invalid role provided.")
		}
		q = q.Where("role = ?", role)
	}
	if f.StartDate != "" {
		start, err := time.Parse(dateLayout, trimmed(f.StartDate))
		if err != nil {
			return nil, apperr.Validation("startDate must be YYYY-MM-DD")
		}
		q = q.Where("created_at >= ?", start)
	}
	if f.EndDate != "" {
		end, err := time.Parse(dateLayout, trimmed(f.EndDate))
		if err != nil {
			return nil, apperr.Validation("endDate must be YYYY-MM-DD")
		}
		q = q.Where("created_at < ?", end.AddDate(0, 0, 1))
	}

	var users []db.User
	if err := q.Order("created_at DESC").Order("id DESC").Find(&users).Error; err != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to list users: %w", err))
	}
	return users, nil
}

func (s *Service) UserDetails(ctx context.Context, actor auth.Principal, id string) (*UserDetails, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	u, err := s.findUser(ctx, id)
	if err != nil {
		return nil, err
	}

	var st UserStats
	count := func(model interface{}, dst *int64, query string, args ...interface{}) error {
		return s.db.WithContext(ctx).Model(model).Where(query, args...).Count(dst).Error
	}
	var errs []error
	switch u.Role {
	case db.RoleHelpSeeker:
		errs = append(errs, count(&db.HelpRequest{}, &st.RequestsInitiated, "requester_id = ?", id))
	case db.RoleVolunteer:
		errs = append(errs,
			count(&db.HelpRequest{}, &st.RequestsAccepted, "assigned_volunteer_id = ? AND status IN ?", id, []db.Status{db.StatusAccepted, db.StatusCompleted}),
			count(&db.HelpRequest{}, &st.RequestsCompleted, "assigned_volunteer_id = ? AND status = ?", id, db.StatusCompleted),
		)
	}
	errs = append(errs,
		count(&db.Complaint{}, &st.ComplaintsFiled, "filed_by_id = ?", id),
		count(&db.Complaint{}, &st.ComplaintsAgainst, "against_volunteer_id = ?", id),
	)
	if err := errors.Join(errs...); err != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to count user activity: %w", err))
	}
	return &UserDetails{User: *u, Stats: st}, nil
}

// UserByEmail is used by operator tooling.
func (s *Service) UserByEmail(ctx context.Context, email string) (*db.User, error) {
	var u db.User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(trimmed(email))).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to load user: %w", err))
	}
	return &u, nil
}

func (s *Service) SetUserRole(ctx context.Context, actor auth.Principal, id string, role db.Role) (*db.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, apperr.Validation("Invalid role provided.")
	}
	u, err := s.findUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(u).Update("role", role).Error; err != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to update role: %w", err))
	}
	u.Role = role
	s.log.Info("user role updated", "user_id", id, "role", role, "actor", actor.ID)
	return u, nil
}

// DeleteUser removes an account and its volunteer profile. Admins cannot
// remove themselves.
func (s *Service) DeleteUser(ctx context.Context, actor auth.Principal, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	u, err := s.findUser(ctx, id)
	if err != nil {
		return err
	}
	if u.ID == actor.ID {
		return apperr.Validation("Admins cannot delete their own account via this panel.")
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&db.VolunteerProfile{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&db.User{}).Error
	})
	if err != nil {
		return apperr.Internal(fmt.Errorf("failed to delete user: %w", err))
	}
	s.log.Info("user deleted", "user_id", id, "actor", actor.ID)
	return nil
}
