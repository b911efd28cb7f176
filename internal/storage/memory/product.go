package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/xenking/loyalty-kart/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository on a Store.
type ProductRepository struct {
	s *Store
}

// Upsert inserts or replaces a product.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	return r.s.write(ctx, func() (func(), error) {
		prev, existed := r.s.products[p.ID]
		r.s.products[p.ID] = p
		return func() {
			if existed {
				r.s.products[p.ID] = prev
			} else {
				delete(r.s.products, p.ID)
			}
		}, nil
	})
}

// UpsertCategory inserts or replaces a category by name.
func (r *ProductRepository) UpsertCategory(ctx context.Context, c product.Category) error {
	return r.s.write(ctx, func() (func(), error) {
		prev := slices.Clone(r.s.categories)
		i := slices.IndexFunc(r.s.categories, func(e product.Category) bool { return e.Name == c.Name })
		if i >= 0 {
			r.s.categories[i] = c
		} else {
			r.s.categories = append(r.s.categories, c)
		}
		return func() { r.s.categories = prev }, nil
	})
}

// List returns products ordered by ID.
func (r *ProductRepository) List(ctx context.Context, f product.Filter) ([]product.Product, error) {
	defer r.s.read(ctx)()

	out := make([]product.Product, 0, len(r.s.products))
	for _, p := range r.s.products {
		if f.ActiveOnly && !p.IsActive {
			continue
		}
		if f.Category != "" && !strings.EqualFold(p.Category, f.Category) {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b product.Product) int { return strings.Compare(a.ID, b.ID) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// GetByID returns a product regardless of its active flag.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	defer r.s.read(ctx)()

	p, ok := r.s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

// GetByIDs returns the products matching ids in ID order.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	defer r.s.read(ctx)()

	out := make([]product.Product, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := r.s.products[id]; ok {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b product.Product) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// DecrementStock subtracts qty if at least qty units remain.
func (r *ProductRepository) DecrementStock(ctx context.Context, id string, qty int) error {
	if qty <= 0 {
		return product.ErrInvalidDecrement
	}
	return r.s.write(ctx, func() (func(), error) {
		p, ok := r.s.products[id]
		if !ok {
			return nil, product.ErrNotFound
		}
		if p.StockQuantity < qty {
			return nil, product.ErrInsufficientStock
		}
		p.StockQuantity -= qty
		r.s.products[id] = p
		return func() {
			cur := r.s.products[id]
			cur.StockQuantity += qty
			r.s.products[id] = cur
		}, nil
	})
}

// ListCategories returns categories in insertion order.
func (r *ProductRepository) ListCategories(ctx context.Context) ([]product.Category, error) {
	defer r.s.read(ctx)()

	return slices.Clone(r.s.categories), nil
}
