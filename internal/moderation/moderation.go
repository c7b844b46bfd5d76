// Package moderation holds the admin-side services: complaints against
// volunteers, user administration and dashboard statistics.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/helpinghand/helpinghand/internal/apperr"
	"github.com/helpinghand/helpinghand/internal/auth"
	"github.com/helpinghand/helpinghand/internal/db"
)

const msgNotAdmin = "Access denied. Not an admin or authentication failed."

type Service struct {
	db  *gorm.DB
	log *slog.Logger
	now func() time.Time
}

func New(d *gorm.DB, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{db: d, log: log, now: time.Now}
}

func requireAdmin(actor auth.Principal) error {
	if !actor.Is(db.RoleAdmin) {
		return apperr.Forbidden(msgNotAdmin)
	}
	return nil
}

func (s *Service) findUser(ctx context.Context, id string) (*db.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.NotFound("User not found")
	}
	var u db.User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to load user: %w", err))
	}
	return &u, nil
}

func trimmed(s string) string { return strings.TrimSpace(s) }
