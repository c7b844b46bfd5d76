package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/helpinghand/helpinghand/internal/db"
)

var ErrInvalidToken = errors.New("invalid token")

type userClaim struct {
	ID   string  `json:"id"`
	Role db.Role `json:"role"`
	Name string  `json:"name"`
}

// Claims is the token payload: {user:{id, role, name}} plus the
// registered exp/iat/iss claims.
type Claims struct {
	User userClaim `json:"user"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 tokens with a shared secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration, issuer string) *Issuer {
	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: strings.TrimSpace(issuer),
		now:    time.Now,
	}
}

func (i *Issuer) Issue(p Principal) (string, error) {
	if p.ID == "" || !p.Role.Valid() {
		return "", fmt.Errorf("issue token: incomplete principal %q/%q", p.ID, p.Role)
	}
	now := i.now()
	claims := Claims{
		User: userClaim{ID: p.ID, Role: p.Role, Name: p.Name},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (i *Issuer) Verify(token string) (Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, opts...)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.User.ID == "" || !claims.User.Role.Valid() {
		return Principal{}, fmt.Errorf("%w: missing user claim", ErrInvalidToken)
	}
	return Principal{ID: claims.User.ID, Role: claims.User.Role, Name: claims.User.Name}, nil
}
