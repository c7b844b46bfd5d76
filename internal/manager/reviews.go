package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/helpinghand/helpinghand/internal/apperr"
	"github.com/helpinghand/helpinghand/internal/auth"
	"github.com/helpinghand/helpinghand/internal/db"
)

const maxCommentLen = 500

type ReviewInput struct {
	HelpRequestID string `json:"helpRequestId"`
	Rating        int    `json:"rating"`
	Comment       string `json:"comment"`
}

var errReviewRace = errors.New("review precondition changed")

// SubmitReview records the requester's rating of the volunteer who
// completed the request. The has_review flag and the review row are
// written in one transaction.
func (m *RequestManager) SubmitReview(ctx context.Context, actor auth.Principal, in ReviewInput) (_ *db.Review, err error) {
	ctx, span := m.start(ctx, "SubmitReview", in.HelpRequestID)
	defer func() { finish(span, err) }()

	if !actor.Is(db.RoleHelpSeeker) {
		return nil, apperr.Forbidden("Access denied. Not a help seeker.")
	}
	in.Comment = strings.TrimSpace(in.Comment)
	if in.Rating < 1 || in.Rating > 5 {
		return nil, apperr.Validation("Rating must be between 1 and 5")
	}
	if utf8.RuneCountInString(in.Comment) > maxCommentLen {
		return nil, apperr.Validation("Comment cannot exceed %d characters", maxCommentLen)
	}

	check := func(cur *db.HelpRequest) error {
		if cur.Status != db.StatusCompleted {
			return apperr.Conflict("Only completed requests can be reviewed.")
		}
		if cur.RequesterID != actor.ID {
			return apperr.NotAuthorized("Not authorized to review this request.")
		}
		if cur.AssignedVolunteerID == nil {
			return apperr.Validation("Cannot review a request without an assigned volunteer.")
		}
		if cur.HasReview {
			return apperr.Conflict("This request has already been reviewed.")
		}
		return nil
	}
	req, err := m.load(ctx, in.HelpRequestID)
	if err != nil {
		return nil, err
	}
	if err := check(req); err != nil {
		return nil, err
	}

	review := db.Review{
		HelpRequestID: req.ID,
		ReviewerID:    actor.ID,
		VolunteerID:   *req.AssignedVolunteerID,
		Rating:        in.Rating,
		Comment:       in.Comment,
		CreatedAt:     m.now(),
	}
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&db.HelpRequest{}).
			Where("id = ? AND status = ? AND has_review = ? AND requester_id = ? AND assigned_volunteer_id = ?",
				req.ID, db.StatusCompleted, false, actor.ID, review.VolunteerID).
			Update("has_review", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errReviewRace
		}
		return tx.Create(&review).Error
	})
	if errors.Is(err, errReviewRace) {
		return nil, m.lost(ctx, req.ID, check)
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to submit review: %w", err))
	}
	m.log.Info("review submitted", "request_id", req.ID, "volunteer_id", review.VolunteerID, "rating", review.Rating)
	req.HasReview = true
	m.emit(EventReviewed, req, req, actor)
	return &review, nil
}

// ListVolunteerReviews returns reviews about volunteerID, newest first.
func (m *RequestManager) ListVolunteerReviews(ctx context.Context, volunteerID string) ([]db.Review, error) {
	var reviews []db.Review
	err := m.db.WithContext(ctx).
		Where("volunteer_id = ?", volunteerID).
		Order("created_at DESC").Order("id DESC").
		Find(&reviews).Error
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to list reviews: %w", err))
	}
	return reviews, nil
}
