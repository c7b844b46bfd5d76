package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/helpinghand/helpinghand/internal/apperr"
	"github.com/helpinghand/helpinghand/internal/auth"
	"github.com/helpinghand/helpinghand/internal/db"
)

const msgNotAdmin = "Access denied. Not an admin or authentication failed."

// AdminSetStatus forces a request into any status. Moving to pending or
// cancelled clears the assignee. Moving to accepted or completed needs an assignee,
// either the current one or volunteerID. A reviewed request stays completed.
func (m *RequestManager) AdminSetStatus(ctx context.Context, actor auth.Principal, id string, status db.Status, volunteerID string) (_ *RequestView, err error) {
	ctx, span := m.start(ctx, "AdminSetStatus", id)
	defer func() { finish(span, err) }()

	if !actor.Is(db.RoleAdmin) {
		return nil, apperr.Forbidden(msgNotAdmin)
	}
	if !status.Valid() {
		return nil, apperr.Validation("Invalid status provided.")
	}
	volunteerID = strings.TrimSpace(volunteerID)

	req, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.HasReview && (status != db.StatusCompleted || (volunteerID != "" && !req.AssignedTo(volunteerID))) {
		return nil, apperr.Conflict("Request has already been reviewed.")
	}

	updates := map[string]interface{}{
		"status":     status,
		"updated_at": m.now(),
	}
	switch status {
	case db.StatusPending:
		if volunteerID != "" {
			return nil, apperr.Validation("A pending request cannot have a volunteer.")
		}
		updates["assigned_volunteer_id"] = nil
	case db.StatusAccepted, db.StatusCompleted:
		if volunteerID != "" {
			if err := m.requireVolunteer(ctx, volunteerID); err != nil {
				return nil, err
			}
			updates["assigned_volunteer_id"] = volunteerID
		} else if req.AssignedVolunteerID == nil {
			verb := "accept"
			if status == db.StatusCompleted {
				verb = "complete"
			}
			return nil, apperr.Validation("volunteer_id is required to %s an unassigned request.", verb)
		}
	case db.StatusCancelled:
		if volunteerID != "" {
			return nil, apperr.Validation("volunteer_id only applies to accepted or completed requests.")
		}
		updates["assigned_volunteer_id"] = nil
	}

	// Guard on the state that was validated above.
	q := m.db.WithContext(ctx).Model(&db.HelpRequest{}).
		Where("id = ? AND status = ? AND has_review = ?", id, req.Status, req.HasReview)
	if req.AssignedVolunteerID == nil {
		q = q.Where("assigned_volunteer_id IS NULL")
	} else {
		q = q.Where("assigned_volunteer_id = ?", *req.AssignedVolunteerID)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to update request status: %w", res.Error))
	}
	if res.RowsAffected == 0 {
		return nil, m.lost(ctx, id, func(*db.HelpRequest) error { return nil })
	}
	return m.committed(ctx, id, EventStatusSet, req, actor)
}

func (m *RequestManager) requireVolunteer(ctx context.Context, userID string) error {
	var u db.User
	err := m.db.WithContext(ctx).Select("id", "role").Where("id = ?", userID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && u.Role != db.RoleVolunteer) {
		return apperr.Validation("volunteer_id must name an existing volunteer.")
	}
	if err != nil {
		return apperr.Internal(fmt.Errorf("failed to load volunteer: %w", err))
	}
	return nil
}

// Delete removes a request in any status. Only its requester or an admin
// may do so.
func (m *RequestManager) Delete(ctx context.Context, id string, actor auth.Principal) (err error) {
	ctx, span := m.start(ctx, "Delete", id)
	defer func() { finish(span, err) }()

	req, err := m.load(ctx, id)
	if err != nil {
		return err
	}
	if req.RequesterID != actor.ID && !actor.Is(db.RoleAdmin) {
		return apperr.NotAuthorized("User not authorized to delete this request.")
	}
	res := m.db.WithContext(ctx).Where("id = ?", id).Delete(&db.HelpRequest{})
	if res.Error != nil {
		return apperr.Internal(fmt.Errorf("failed to delete request: %w", res.Error))
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound(msgNotFound)
	}
	m.log.Info("help request deleted", "request_id", id, "actor", actor.ID)
	m.emit(EventDeleted, req, req, actor)
	return nil
}
