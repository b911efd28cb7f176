package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/loyalty-kart/internal/domain/order"
)

const (
	appendEventSQL = `INSERT INTO outbox (id, aggregate_id, event_key, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	pendingEventsSQL = `SELECT id, aggregate_id, event_key, event_type, payload, created_at
		FROM outbox WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1`

	markPublishedSQL = `UPDATE outbox SET published_at = $2
		WHERE id = ANY($1) AND published_at IS NULL`
)

var _ order.Outbox = (*OutboxRepository)(nil)

// OutboxRepository implements order.Outbox backed by PostgreSQL.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository returns an OutboxRepository that uses the given pool.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

func (r *OutboxRepository) Append(ctx context.Context, e *order.Event) error {
	_, err := conn(ctx, r.pool).Exec(ctx, appendEventSQL,
		e.ID, e.AggregateID, e.Key, e.Type, e.Payload, e.CreatedAt,
	)
	if err != nil {
		return errors.Wrapf(classify(err), "append event %q", e.ID)
	}
	return nil
}

func (r *OutboxRepository) Pending(ctx context.Context, limit int) ([]order.Event, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, pendingEventsSQL, limit)
	if err != nil {
		return nil, errors.Wrap(classify(err), "list pending events")
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Event, error) {
		var e order.Event
		err := row.Scan(&e.ID, &e.AggregateID, &e.Key, &e.Type, &e.Payload, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, errors.Wrap(classify(err), "list pending events")
	}
	return events, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, ids []string, at time.Time) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, markPublishedSQL, ids, at); err != nil {
		return errors.Wrap(classify(err), "mark events published")
	}
	return nil
}
