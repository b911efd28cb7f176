package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/xenking/loyalty-kart/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository on a Store.
type OrderRepository struct {
	s *Store
}

func idempotencyKey(userID, key string) string {
	return userID + "\x00" + key
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	stored := *o
	stored.Items = slices.Clone(o.Items)
	return r.s.write(ctx, func() (func(), error) {
		keyed := o.IdempotencyKey != ""
		if keyed {
			if _, used := r.s.keys[idempotencyKey(o.UserID, o.IdempotencyKey)]; used {
				return nil, order.ErrDuplicateIdempotencyKey
			}
			r.s.keys[idempotencyKey(o.UserID, o.IdempotencyKey)] = o.ID
		}
		r.s.orders[o.ID] = stored
		return func() {
			delete(r.s.orders, o.ID)
			if keyed {
				delete(r.s.keys, idempotencyKey(o.UserID, o.IdempotencyKey))
			}
		}, nil
	})
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	defer r.s.read(ctx)()

	o, ok := r.s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o.Items = slices.Clone(o.Items)
	return &o, nil
}

func (r *OrderRepository) GetByIdempotencyKey(ctx context.Context, userID, key string) (*order.Order, error) {
	unlock := r.s.read(ctx)
	id, ok := r.s.keys[idempotencyKey(userID, key)]
	unlock()
	if !ok {
		return nil, order.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// ListByUser returns the newest orders of userID first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]order.Order, error) {
	defer r.s.read(ctx)()

	var out []order.Order
	for _, o := range r.s.orders {
		if o.UserID != userID {
			continue
		}
		o.Items = slices.Clone(o.Items)
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b order.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, payment order.PaymentStatus, status order.Status) error {
	return r.s.write(ctx, func() (func(), error) {
		o, ok := r.s.orders[id]
		if !ok {
			return nil, order.ErrNotFound
		}
		prev := o
		o.PaymentStatus = payment
		o.Status = status
		r.s.orders[id] = o
		return func() { r.s.orders[id] = prev }, nil
	})
}

var _ order.Outbox = (*OutboxRepository)(nil)

// OutboxRepository implements order.Outbox on a Store.
type OutboxRepository struct {
	s *Store
}

func (r *OutboxRepository) Append(ctx context.Context, e *order.Event) error {
	stored := *e
	stored.Payload = slices.Clone(e.Payload)
	return r.s.write(ctx, func() (func(), error) {
		n := len(r.s.events)
		r.s.events = append(r.s.events, stored)
		return func() { r.s.events = r.s.events[:n] }, nil
	})
}

// Pending returns unpublished events in append order.
func (r *OutboxRepository) Pending(ctx context.Context, limit int) ([]order.Event, error) {
	defer r.s.read(ctx)()

	var out []order.Event
	for _, e := range r.s.events {
		if e.PublishedAt != nil {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, ids []string, at time.Time) error {
	return r.s.write(ctx, func() (func(), error) {
		var marked []int
		for i := range r.s.events {
			if r.s.events[i].PublishedAt == nil && slices.Contains(ids, r.s.events[i].ID) {
				t := at
				r.s.events[i].PublishedAt = &t
				marked = append(marked, i)
			}
		}
		return func() {
			for _, i := range marked {
				r.s.events[i].PublishedAt = nil
			}
		}, nil
	})
}
