package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleHelpSeeker Role = "help_seeker"
	RoleVolunteer  Role = "volunteer"
	RoleAdmin      Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleHelpSeeker, RoleVolunteer, RoleAdmin:
		return true
	}
	return false
}

// Status is the lifecycle state of a HelpRequest.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var Statuses = []Status{StatusPending, StatusAccepted, StatusCompleted, StatusCancelled}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type Category string

const (
	CategoryGroceries        Category = "Groceries"
	CategoryTransport        Category = "Transport"
	CategoryEmotionalSupport Category = "Emotional Support"
	CategoryErrands          Category = "Errands"
	CategoryOther            Category = "Other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryGroceries, CategoryTransport, CategoryEmotionalSupport, CategoryErrands, CategoryOther:
		return true
	}
	return false
}

type ComplaintStatus string

const (
	ComplaintPending   ComplaintStatus = "pending"
	ComplaintReviewed  ComplaintStatus = "reviewed"
	ComplaintResolved  ComplaintStatus = "resolved"
	ComplaintDismissed ComplaintStatus = "dismissed"
)

func (s ComplaintStatus) Valid() bool {
	switch s {
	case ComplaintPending, ComplaintReviewed, ComplaintResolved, ComplaintDismissed:
		return true
	}
	return false
}

func newID() string {
	return uuid.NewString()
}

type User struct {
	ID            string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name          string    `json:"name" gorm:"not null"`
	Email         string    `json:"email" gorm:"uniqueIndex;not null"`
	ContactNumber string    `json:"contact_number"`
	PasswordHash  string    `json:"-" gorm:"not null"`
	Role          Role      `json:"role" gorm:"type:varchar(20);default:help_seeker;not null;index"`
	CreatedAt     time.Time `json:"created_at" gorm:"index"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = newID()
	}
	return nil
}

type HelpRequest struct {
	ID                  string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	RequesterID         string    `json:"requester_id" gorm:"type:varchar(36);not null;index"`
	Title               string    `json:"title" gorm:"size:100;not null"`
	Description         string    `json:"description" gorm:"size:1000;not null"`
	Category            Category  `json:"category" gorm:"type:varchar(32);default:Other;not null"`
	Status              Status    `json:"status" gorm:"type:varchar(16);default:pending;not null;index"`
	AssignedVolunteerID *string   `json:"assigned_volunteer_id" gorm:"type:varchar(36);index"`
	HasReview           bool      `json:"has_review" gorm:"not null;default:false"`
	CreatedAt           time.Time `json:"created_at" gorm:"index"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (r *HelpRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = newID()
	}
	return nil
}

// AssignedTo reports whether userID holds the assignment.
func (r *HelpRequest) AssignedTo(userID string) bool {
	return r.AssignedVolunteerID != nil && *r.AssignedVolunteerID == userID
}

type Review struct {
	ID            string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	HelpRequestID string    `json:"help_request_id" gorm:"type:varchar(36);uniqueIndex;not null"`
	ReviewerID    string    `json:"reviewer_id" gorm:"type:varchar(36);not null"`
	VolunteerID   string    `json:"reviewed_volunteer_id" gorm:"type:varchar(36);not null;index"`
	Rating        int       `json:"rating" gorm:"not null"`
	Comment       string    `json:"comment" gorm:"size:500"`
	CreatedAt     time.Time `json:"created_at"`
}

func (r *Review) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = newID()
	}
	return nil
}

type Complaint struct {
	ID                 string          `json:"id" gorm:"type:varchar(36);primaryKey"`
	FiledByID          string          `json:"filed_by" gorm:"type:varchar(36);not null;index"`
	AgainstVolunteerID string          `json:"against_volunteer" gorm:"type:varchar(36);not null;index"`
	Title              string          `json:"title" gorm:"not null"`
	Description        string          `json:"description" gorm:"type:text;not null"`
	Status             ComplaintStatus `json:"status" gorm:"type:varchar(16);default:pending;not null;index"`
	FiledAt            time.Time       `json:"filed_at" gorm:"autoCreateTime"`
	ResolvedAt         *time.Time      `json:"resolved_at,omitempty"`
}

func (c *Complaint) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = newID()
	}
	return nil
}

type Location struct {
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zip_code,omitempty"`
}

type VolunteerProfile struct {
	ID           string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID       string    `json:"user_id" gorm:"type:varchar(36);uniqueIndex;not null"`
	Bio          string    `json:"bio" gorm:"size:500;not null"`
	Skills       []string  `json:"skills" gorm:"serializer:json;not null"`
	Availability []string  `json:"availability" gorm:"serializer:json;not null"`
	Location     Location  `json:"location" gorm:"embedded;embeddedPrefix:location_"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (p *VolunteerProfile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = newID()
	}
	return nil
}

// All lists every model managed by Migrate.
func All() []any {
	return []any{&User{}, &HelpRequest{}, &Review{}, &Complaint{}, &VolunteerProfile{}}
}
