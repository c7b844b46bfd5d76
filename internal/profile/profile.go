// Package profile manages volunteer profiles and the public volunteer
// directory.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/helpinghand/helpinghand/internal/apperr"
	"github.com/helpinghand/helpinghand/internal/auth"
	"github.com/helpinghand/helpinghand/internal/db"
)

const maxBioLen = 500

type Input struct {
	Bio          string      `json:"bio"`
	Skills       []string    `json:"skills"`
	Availability []string    `json:"availability"`
	Location     db.Location `json:"location"`
}

type UserSummary struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Email string  `json:"email"`
	Role  db.Role `json:"role"`
}

// Rating aggregates the reviews a volunteer has received.
type Rating struct {
	Count   int64   `json:"count"`
	Average float64 `json:"average"`
}

type Public struct {
	User    UserSummary          `json:"user"`
	Profile *db.VolunteerProfile `json:"profile"`
	Rating  *Rating              `json:"rating,omitempty"`
}

type Service struct {
	db *gorm.DB
}

func New(d *gorm.DB) *Service {
	return &Service{db: d}
}

// cleanList trims entries, drops blanks and duplicates, keeping order.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup || s == "" {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Upsert creates or replaces the caller's profile. created reports
// whether a new profile was made.
func (s *Service) Upsert(ctx context.Context, actor auth.Principal, in Input) (_ *db.VolunteerProfile, created bool, err error) {
	if !actor.Is(db.RoleVolunteer) {
		return nil, false, apperr.Forbidden("Access denied. Not a volunteer.")
	}
	in.Bio = strings.TrimSpace(in.Bio)
	in.Skills = cleanList(in.Skills)
	in.Availability = cleanList(in.Availability)
	if in.Bio == "" || len(in.Skills) == 0 || len(in.Availability) == 0 {
		return nil, false, apperr.Validation("Please fill in all required profile fields (Bio, Skills, Availability).")
	}
	if utf8.RuneCountInString(in.Bio) > maxBioLen {
		return nil, false, apperr.Validation("Bio cannot exceed %d characters", maxBioLen)
	}
	in.Location = db.Location{
		Address: strings.TrimSpace(in.Location.Address),
		City:    strings.TrimSpace(in.Location.City),
		State:   strings.TrimSpace(in.Location.State),
		ZipCode: strings.TrimSpace(in.Location.ZipCode),
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&db.VolunteerProfile{}).Where("user_id = ?", actor.ID).Count(&existing).Error; err != nil {
		return nil, false, apperr.Internal(fmt.Errorf("failed to check profile: %w", err))
	}

	p := db.VolunteerProfile{
		UserID:       actor.ID,
		Bio:          in.Bio,
		Skills:       in.Skills,
		Availability: in.Availability,
		Location:     in.Location,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"bio", "skills", "availability",
			"location_address", "location_city", "location_state", "location_zip_code",
			"updated_at",
		}),
	}).Create(&p).Error
	if err != nil {
		return nil, false, apperr.Internal(fmt.Errorf("failed to save profile: %w", err))
	}

	saved, err := s.byUser(ctx, actor.ID)
	if err != nil {
		return nil, false, err
	}
	return saved, existing == 0, nil
}

func (s *Service) byUser(ctx context.Context, userID string) (*db.VolunteerProfile, error) {
	var p db.VolunteerProfile
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Volunteer profile not found for this user.")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to load profile: %w", err))
	}
	return &p, nil
}

func (s *Service) Mine(ctx context.Context, actor auth.Principal) (*db.VolunteerProfile, error) {
	if !actor.Is(db.RoleVolunteer) {
		return nil, apperr.Forbidden("Access denied. Not a volunteer.")
	}
	return s.byUser(ctx, actor.ID)
}

// Public returns the user summary for any account plus, for volunteers,
// their profile (nil when none was written) and rating.
func (s *Service) Public(ctx context.Context, userID string) (*Public, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, apperr.NotFound("User not found")
	}
	var u db.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to load user: %w", err))
	}

	out := &Public{User: UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}}
	if u.Role != db.RoleVolunteer {
		return out, nil
	}
	p, err := s.byUser(ctx, userID)
	switch {
	case err == nil:
		out.Profile = p
	case apperr.KindOf(err) != apperr.KindNotFound:
		return nil, err
	}

	var r Rating
	err = s.db.WithContext(ctx).Model(&db.Review{}).
		Select("COUNT(*) AS count, COALESCE(AVG(rating), 0) AS average").
		Where("volunteer_id = ?", userID).
		Scan(&r).Error
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to load rating: %w", err))
	}
	out.Rating = &r
	return out, nil
}

func (s *Service) ListVolunteers(ctx context.Context) ([]db.User, error) {
	var users []db.User
	err := s.db.WithContext(ctx).Where("role = ?", db.RoleVolunteer).Order("name").Order("id").Find(&users).Error
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to list volunteers: %w", err))
	}
	return users, nil
}
