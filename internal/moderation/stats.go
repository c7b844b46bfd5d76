package moderation

import (
	"context"
	"fmt"

	"github.com/helpinghand/helpinghand/internal/apperr"
	"github.com/helpinghand/helpinghand/internal/auth"
	"github.com/helpinghand/helpinghand/internal/db"
)

type RoleCount struct {
	Role  db.Role `json:"role"`
	Count int64   `json:"count"`
}

type StatusCount struct {
	Status db.Status `json:"status"`
	Count  int64     `json:"count"`
}

func (s *Service) RoleCounts(ctx context.Context, actor auth.Principal) ([]RoleCount, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var rows []RoleCount
	err := s.db.WithContext(ctx).Model(&db.User{}).
		Select("role, COUNT(*) AS count").Group("role").Order("role").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to count roles: %w", err))
	}
	return rows, nil
}

func (s *Service) StatusCounts(ctx context.Context, actor auth.Principal) ([]StatusCount, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var rows []StatusCount
	err := s.db.WithContext(ctx).Model(&db.HelpRequest{}).
		Select("status, COUNT(*) AS count").Group("status").Order("status").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to count statuses: %w", err))
	}
	return rows, nil
}
