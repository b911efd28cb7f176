package recommend

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/loyalty-kart/internal/domain/apperr"
	"github.com/xenking/loyalty-kart/internal/domain/order"
	"github.com/xenking/loyalty-kart/internal/domain/product"
)

// ErrInvalidLimit is returned for a negative limit.
var ErrInvalidLimit = apperr.New(apperr.Validation, "limit must be a positive integer")

// historyDepth is how many recent orders feed the category set.
const historyDepth = 50

// Cache stores ranked product ids per user and limit.
type Cache interface {
	Get(ctx context.Context, userID string, limit int) (ids []string, ok bool, err error)
	// Generation reads the invalidation counter of userID.
	Generation(ctx context.Context, userID string) (int64, error)
	// Set stores ids unless userID was invalidated after gen was read.
	Set(ctx context.Context, userID string, limit int, gen int64, ids []string) error
	// Invalidate drops every cached ranking of userID and bumps its
	// generation.
	Invalidate(ctx context.Context, userID string) error
}

// History reads a user's recent orders.
type History interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]order.Order, error)
}

// Service serves recommendations, optionally through a Cache.
type Service struct {
	products product.Repository
	orders   History
	cache    Cache
}

// NewService creates a recommendation Service. cache may be nil.
func NewService(products product.Repository, orders History, cache Cache) *Service {
	return &Service{products: products, orders: orders, cache: cache}
}

// Recommend returns up to limit products for userID. A zero limit means
// DefaultLimit.
func (s *Service) Recommend(ctx context.Context, userID string, limit int) ([]product.Product, error) {
	switch {
	case limit < 0:
		return nil, ErrInvalidLimit
	case limit == 0:
		limit = DefaultLimit
	}

	lg := zctx.From(ctx)
	cacheable := false
	var gen int64
	if s.cache != nil {
		ids, ok, err := s.cache.Get(ctx, userID, limit)
		if err != nil {
			lg.Warn("Recommendation cache read failed", zap.Error(err))
		}
		if ok {
			if cached, err := s.fromIDs(ctx, ids); err == nil {
				return cached, nil
			}
		}
		// Read before the history so a settlement committed meanwhile
		// makes Set drop this ranking.
		if gen, err = s.cache.Generation(ctx, userID); err != nil {
			lg.Warn("Recommendation cache generation read failed", zap.Error(err))
		} else {
			cacheable = true
		}
	}

	history, err := s.orders.ListByUser(ctx, userID, historyDepth)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	catalog, err := s.products.List(ctx, product.Filter{})
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	picked := Select(history, catalog, limit)

	if cacheable {
		ids := make([]string, len(picked))
		for i, p := range picked {
			ids[i] = p.ID
		}
		if err := s.cache.Set(ctx, userID, limit, gen, ids); err != nil {
			lg.Warn("Recommendation cache write failed", zap.Error(err))
		}
	}
	return picked, nil
}

// Invalidate drops cached rankings of the buyer of o. It is meant to run
// after a settlement commits.
func (s *Service) Invalidate(ctx context.Context, o *order.Order) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, o.UserID)
}

// fromIDs loads cached ids in their ranked order. A product that went
// inactive or missing since caching invalidates the whole entry.
func (s *Service) fromIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	if len(ids) == 0 {
		return []product.Product{}, nil
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok || !p.IsActive {
			return nil, product.ErrNotFound
		}
		out = append(out, p)
	}
	return out, nil
}
