package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/helpinghand/helpinghand/internal/apperr"
	"github.com/helpinghand/helpinghand/internal/db"
)

const minPasswordLen = 6

type RegisterInput struct {
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	ContactNumber string  `json:"contactNumber"`
	Password      string  `json:"password"`
	Role          db.Role `json:"role"`
}

// Session is returned by Register and Login.
type Session struct {
	Token string  `json:"token"`
	User  db.User `json:"user"`
}

// Service manages accounts.
type Service struct {
	db     *gorm.DB
	issuer *Issuer
	cost   int
}

func NewService(d *gorm.DB, issuer *Issuer) *Service {
	return &Service{db: d, issuer: issuer, cost: bcrypt.DefaultCost}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account. Role defaults to help_seeker; admin
// accounts are only created by promotion.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if in.Role == "" {
		in.Role = db.RoleHelpSeeker
	}
	switch {
	case in.Name == "":
		return nil, apperr.Validation("Name is required")
	case in.Email == "":
		return nil, apperr.Validation("Please include a valid email")
	case len(in.Password) < minPasswordLen:
		return nil, apperr.Validation("Please enter a password with %d or more characters", minPasswordLen)
	case in.Role != db.RoleHelpSeeker && in.Role != db.RoleVolunteer:
		return nil, apperr.Validation("Invalid role provided.")
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		return nil, apperr.Validation("Please include a valid email")
	}

	exists, err := s.emailTaken(ctx, in.Email)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if exists {
		return nil, apperr.Validation("User already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("hash password: %w", err))
	}
	user := db.User{
		Name:          in.Name,
		Email:         in.Email,
		ContactNumber: strings.TrimSpace(in.ContactNumber),
		PasswordHash:  string(hash),
		Role:          in.Role,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		// Lost a race against a concurrent registration of the same email.
		if taken, _ := s.emailTaken(ctx, in.Email); taken {
			return nil, apperr.Validation("User already exists")
		}
		return nil, apperr.Internal(fmt.Errorf("create user: %w", err))
	}
	return s.session(user)
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	var user db.User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Validation("Invalid Credentials")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("find user: %w", err))
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, apperr.Validation("Invalid Credentials")
	}
	return s.session(user)
}

func (s *Service) emailTaken(ctx context.Context, email string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&db.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return n > 0, nil
}

func (s *Service) session(user db.User) (*Session, error) {
	token, err := s.issuer.Issue(Principal{ID: user.ID, Role: user.Role, Name: user.Name})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &Session{Token: token, User: user}, nil
}
