// Package user holds the loyalty account of a customer.
package user

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/loyalty-kart/internal/domain/apperr"
	"github.com/xenking/loyalty-kart/internal/domain/loyalty"
)

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = apperr.New(apperr.NotFound, "user not found")
	// ErrAlreadyExists is returned when registering an email that is taken.
	ErrAlreadyExists = apperr.New(apperr.Validation, "user already exists")
	// ErrStaleVersion is returned by UpdateBalance when the stored version no
	// longer matches the version the caller read.
	ErrStaleVersion = apperr.New(apperr.Conflict, "user was modified concurrently")
)

// Role is a closed set of account roles.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is a customer account together with its loyalty state. Points, tier
// and spend are written only by order settlement.
type User struct {
	ID            string
	Email         string
	Name          string
	Phone         string
	PasswordHash  string
	Role          Role
	LoyaltyPoints int64
	LoyaltyTier   loyalty.Tier
	TotalSpent    decimal.Decimal
	// Version increments on every balance update and guards against lost
	// updates between concurrent settlements.
	Version   int64
	CreatedAt time.Time
}

// Balance is the loyalty state written back after a settlement.
type Balance struct {
	Points     int64
	TotalSpent decimal.Decimal
	Tier       loyalty.Tier
}

// Repository defines persistence operations for users.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// UpdateBalance stores b only if the user is still at version, bumping
	// the version. It returns ErrStaleVersion on mismatch.
	UpdateBalance(ctx context.Context, id string, version int64, b Balance) error
}
