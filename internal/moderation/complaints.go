package moderation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/helpinghand/helpinghand/internal/apperr"
	"github.com/helpinghand/helpinghand/internal/auth"
	"github.com/helpinghand/helpinghand/internal/db"
)

type ComplaintInput struct {
	AgainstVolunteerID string `json:"againstVolunteer"`
	Title              string `json:"title"`
	Description        string `json:"description"`
}

type Party struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type ComplaintView struct {
	db.Complaint
	FiledBy          *Party `json:"filedBy"`
	AgainstVolunteer *Party `json:"againstVolunteer"`
}

// FileComplaint lets a help seeker report a volunteer.
func (s *Service) FileComplaint(ctx context.Context, actor auth.Principal, in ComplaintInput) (*db.Complaint, error) {
	if !actor.Is(db.RoleHelpSeeker) {
		return nil, apperr.Forbidden("Access denied. Not a help seeker.")
	}
	in.Title, in.Description = trimmed(in.Title), trimmed(in.Description)
	if in.Title == "" {
		return nil, apperr.Validation("Title is required")
	}
	if in.Description == "" {
		return nil, apperr.Validation("Description is required")
	}
	target, err := s.findUser(ctx, in.AgainstVolunteerID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Validation("Complaints can only be filed against a volunteer.")
		}
		return nil, err
	}
	if target.Role != db.RoleVolunteer {
		return nil, apperr.Validation("Complaints can only be filed against a volunteer.")
	}

	c := db.Complaint{
		FiledByID:          actor.ID,
		AgainstVolunteerID: target.ID,
		Title:              in.Title,
		Description:        in.Description,
		Status:             db.ComplaintPending,
		FiledAt:            s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to file complaint: %w", err))
	}
	s.log.Info("complaint filed", "complaint_id", c.ID, "filed_by", actor.ID, "against", target.ID)
	return &c, nil
}

func (s *Service) ListComplaints(ctx context.Context, actor auth.Principal) ([]ComplaintView, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var complaints []db.Complaint
	if err := s.db.WithContext(ctx).Order("filed_at DESC").Order("id DESC").Find(&complaints).Error; err != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to list complaints: %w", err))
	}

	ids := make([]string, 0, 2*len(complaints))
	for _, c := range complaints {
		ids = append(ids, c.FiledByID, c.AgainstVolunteerID)
	}
	parties := map[string]*Party{}
	if len(ids) > 0 {
		var rows []Party
		err := s.db.WithContext(ctx).Model(&db.User{}).Select("id", "name", "email").Where("id IN ?", ids).Find(&rows).Error
		if err != nil {
			return nil, apperr.Internal(fmt.Errorf("failed to load users: %w", err))
		}
		for i := range rows {
			parties[rows[i].ID] = &rows[i]
		}
	}

	out := make([]ComplaintView, len(complaints))
	for i, c := range complaints {
		out[i] = ComplaintView{Complaint: c, FiledBy: parties[c.FiledByID], AgainstVolunteer: parties[c.AgainstVolunteerID]}
	}
	return out, nil
}

// SetComplaintStatus moves a complaint through review. Resolved and
// dismissed stamp ResolvedAt; other statuses clear it.
func (s *Service) SetComplaintStatus(ctx context.Context, actor auth.Principal, id string, status db.ComplaintStatus) (*db.Complaint, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperr.Validation("Invalid status provided.")
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.NotFound("Complaint not found")
	}

	var resolvedAt interface{}
	if status == db.ComplaintResolved || status == db.ComplaintDismissed {
		resolvedAt = s.now()
	}
	res := s.db.WithContext(ctx).Model(&db.Complaint{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":      status,
		"resolved_at": resolvedAt,
	})
	if res.Error != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to update complaint: %w", res.Error))
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("Complaint not found")
	}

	var c db.Complaint
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Complaint not found")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to load complaint: %w", err))
	}
	s.log.Info("complaint status updated", "complaint_id", id, "status", status, "actor", actor.ID)
	return &c, nil
}
