package memory

import (
	"context"
	"strings"

	"github.com/xenking/loyalty-kart/internal/domain/user"
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository on a Store.
type UserRepository struct {
	s *Store
}

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	email := strings.ToLower(u.Email)
	return r.s.write(ctx, func() (func(), error) {
		if _, taken := r.s.emails[email]; taken {
			return nil, user.ErrAlreadyExists
		}
		if _, taken := r.s.users[u.ID]; taken {
			return nil, user.ErrAlreadyExists
		}
		r.s.users[u.ID] = *u
		r.s.emails[email] = u.ID
		return func() {
			delete(r.s.users, u.ID)
			delete(r.s.emails, email)
		}, nil
	})
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	defer r.s.read(ctx)()

	u, ok := r.s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	defer r.s.read(ctx)()

	id, ok := r.s.emails[strings.ToLower(email)]
	if !ok {
		return nil, user.ErrNotFound
	}
	u := r.s.users[id]
	return &u, nil
}

// UpdateBalance writes b if the stored version equals version.
func (r *UserRepository) UpdateBalance(ctx context.Context, id string, version int64, b user.Balance) error {
	return r.s.write(ctx, func() (func(), error) {
		u, ok := r.s.users[id]
		if !ok {
			return nil, user.ErrNotFound
		}
		if u.Version != version {
			return nil, user.ErrStaleVersion
		}
		prev := u
		u.LoyaltyPoints = b.Points
		u.TotalSpent = b.TotalSpent
		u.LoyaltyTier = b.Tier
		u.Version++
		r.s.users[id] = u
		return func() { r.s.users[id] = prev }, nil
	})
}
