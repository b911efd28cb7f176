package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/loyalty-kart/internal/domain/loyalty"
	"github.com/xenking/loyalty-kart/internal/domain/user"
)

const userColumns = `id, email, name, phone, password_hash, role,
	loyalty_points, loyalty_tier, total_spent, version, created_at`

const (
	createUserSQL = `INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	getUserByIDSQL = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	getUserByEmailSQL = `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

	updateBalanceSQL = `UPDATE users
		SET loyalty_points = $3, total_spent = $4, loyalty_tier = $5, version = version + 1
		WHERE id = $1 AND version = $2`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create inserts u. A taken email yields user.ErrAlreadyExists.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	_, err := conn(ctx, r.pool).Exec(ctx, createUserSQL,
		u.ID, u.Email, u.Name, u.Phone, u.PasswordHash, string(u.Role),
		u.LoyaltyPoints, u.LoyaltyTier.String(), u.TotalSpent, u.Version, u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return user.ErrAlreadyExists
		}
		return errors.Wrapf(classify(err), "create user %q", u.ID)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	return r.getOne(ctx, getUserByIDSQL, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.getOne(ctx, getUserByEmailSQL, email)
}

// UpdateBalance writes b when the row is still at version.
func (r *UserRepository) UpdateBalance(ctx context.Context, id string, version int64, b user.Balance) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, updateBalanceSQL,
		id, version, b.Points, b.TotalSpent, b.Tier.String(),
	)
	if err != nil {
		return errors.Wrapf(classify(err), "update balance of %q", id)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrStaleVersion
	}
	return nil
}

func (r *UserRepository) getOne(ctx context.Context, sql, arg string) (*user.User, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, arg)
	if err != nil {
		return nil, errors.Wrap(classify(err), "get user")
	}
	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, errors.Wrap(classify(err), "get user")
	}
	return &u, nil
}

func scanUser(row pgx.CollectableRow) (user.User, error) {
	var (
		u    user.User
		role string
		tier string
	)
	if err := row.Scan(
		&u.ID, &u.Email, &u.Name, &u.Phone, &u.PasswordHash, &role,
		&u.LoyaltyPoints, &tier, &u.TotalSpent, &u.Version, &u.CreatedAt,
	); err != nil {
		return u, err
	}
	u.Role = user.Role(role)
	t, err := loyalty.ParseTier(tier)
	if err != nil {
		return u, err
	}
	u.LoyaltyTier = t
	return u, nil
}
