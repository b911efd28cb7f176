// Package auth registers customers, checks their credentials and issues the
// bearer tokens that identify them to the order and loyalty endpoints.
package auth

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/loyalty-kart/internal/domain/apperr"
	"github.com/xenking/loyalty-kart/internal/domain/loyalty"
	"github.com/xenking/loyalty-kart/internal/domain/user"
)

// WelcomeBonus is credited to every new account.
const WelcomeBonus = 100

var (
	ErrInvalidCredentials = apperr.New(apperr.Unauthorized, "invalid credentials")
	ErrMissingEmail       = apperr.New(apperr.Validation, "email required")
	ErrMissingName        = apperr.New(apperr.Validation, "name required")
	ErrMissingPassword    = apperr.New(apperr.Validation, "password required")
)

// RegisterRequest holds the fields of a new account.
type RegisterRequest struct {
	Email    string
	Name     string
	Password string
	Phone    string
}

// Session is an authenticated user with a fresh token.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *user.User
}

// Service implements registration and login.
type Service struct {
	users  user.Repository
	issuer *Issuer
	cost   int
	now    func() time.Time
}

// NewService creates an auth Service.
func NewService(users user.Repository, issuer *Issuer) *Service {
	return &Service{users: users, issuer: issuer, cost: bcrypt.DefaultCost, now: time.Now}
}

// Register creates a bronze account credited with WelcomeBonus points.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	email := strings.TrimSpace(req.Email)
	switch {
	case email == "":
		return nil, ErrMissingEmail
	case strings.TrimSpace(req.Name) == "":
		return nil, ErrMissingName
	case req.Password == "":
		return nil, ErrMissingPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	u := &user.User{
		ID:            uuid.New().String(),
		Email:         email,
		Name:          strings.TrimSpace(req.Name),
		Phone:         req.Phone,
		PasswordHash:  string(hash),
		Role:          user.RoleUser,
		LoyaltyPoints: WelcomeBonus,
		LoyaltyTier:   loyalty.Bronze,
		TotalSpent:    decimal.Zero,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, errors.Wrap(err, "create user")
	}
	return s.session(u)
}

// Login checks credentials and returns a new session.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "get user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.session(u)
}

// Verify resolves a bearer token to the caller identity.
func (s *Service) Verify(token string) (Identity, error) {
	return s.issuer.Verify(token)
}

func (s *Service) session(u *user.User) (*Session, error) {
	token, exp, err := s.issuer.Issue(u)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, User: u}, nil
}
