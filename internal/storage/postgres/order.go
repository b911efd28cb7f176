package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/loyalty-kart/internal/domain/loyalty"
	"github.com/xenking/loyalty-kart/internal/domain/order"
)

const orderColumns = `id, user_id, items, subtotal, total_amount, discount_amount,
	loyalty_points_used, loyalty_points_earned, balance_after, tier_after,
	payment_method, payment_status, order_status, shipping_address,
	COALESCE(idempotency_key, ''), created_at`

const (
	createOrderSQL = `INSERT INTO orders (id, user_id, items, subtotal, total_amount, discount_amount,
		loyalty_points_used, loyalty_points_earned, balance_after, tier_after,
		payment_method, payment_status, order_status, shipping_address, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NULLIF($15, ''), $16)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderByKeySQL = `SELECT ` + orderColumns + `
		FROM orders WHERE user_id = $1 AND idempotency_key = $2`

	listOrdersByUserSQL = `SELECT ` + orderColumns + `
		FROM orders WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	updateOrderStatusSQL = `UPDATE orders SET payment_status = $2, order_status = $3 WHERE id = $1`
)

const idempotencyConstraint = "orders_idempotency_key"

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. The order items are serialized to JSON for
// storage in the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrap(err, "marshal order items")
	}

	_, err = conn(ctx, r.pool).Exec(ctx, createOrderSQL,
		o.ID, o.UserID, itemsJSON, o.Subtotal, o.Total, o.Discount,
		o.PointsUsed, o.PointsEarned, o.BalanceAfter, o.TierAfter.String(),
		o.PaymentMethod, string(o.PaymentStatus), string(o.Status), o.ShippingAddress,
		o.IdempotencyKey, o.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, idempotencyConstraint) {
			return order.ErrDuplicateIdempotencyKey
		}
		return errors.Wrapf(classify(err), "create order %q", o.ID)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIDSQL, id)
}

func (r *OrderRepository) GetByIdempotencyKey(ctx context.Context, userID, key string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByKeySQL, userID, key)
}

// ListByUser returns the newest orders of userID first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listOrdersByUserSQL, userID, limit)
	if err != nil {
		return nil, errors.Wrap(classify(err), "list orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(classify(err), "list orders")
	}
	return orders, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, payment order.PaymentStatus, status order.Status) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, updateOrderStatusSQL, id, string(payment), string(status))
	if err != nil {
		return errors.Wrapf(classify(err), "update status of %q", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) getOne(ctx context.Context, sql string, args ...any) (*order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(classify(err), "get order")
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(classify(err), "get order")
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		items         []byte
		tier          string
		paymentStatus string
		status        string
	)
	if err := row.Scan(
		&o.ID, &o.UserID, &items, &o.Subtotal, &o.Total, &o.Discount,
		&o.PointsUsed, &o.PointsEarned, &o.BalanceAfter, &tier,
		&o.PaymentMethod, &paymentStatus, &status, &o.ShippingAddress,
		&o.IdempotencyKey, &o.CreatedAt,
	); err != nil {
		return o, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, errors.Wrap(err, "unmarshal order items")
	}
	t, err := loyalty.ParseTier(tier)
	if err != nil {
		return o, err
	}
	o.TierAfter = t
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	o.Status = order.Status(status)
	return o, nil
}
