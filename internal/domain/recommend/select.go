// Package recommend ranks catalog products for a customer based on what they
// bought before.
package recommend

import (
	"cmp"
	"slices"

	"github.com/xenking/loyalty-kart/internal/domain/order"
	"github.com/xenking/loyalty-kart/internal/domain/product"
)

// DefaultLimit is used when the caller does not ask for a specific count.
const DefaultLimit = 6

// Select returns at most limit active products ordered by rating
// descending. With an order history it keeps only products from categories
// the customer already bought from; categories are resolved through
// catalog, which may contain inactive products. An empty history, or one
// whose products are all gone from the catalog, ranks the whole active
// catalog. Ties keep catalog order.
func Select(history []order.Order, catalog []product.Product, limit int) []product.Product {
	if limit <= 0 {
		return nil
	}

	categories := purchasedCategories(history, catalog)

	candidates := make([]product.Product, 0, len(catalog))
	for _, p := range catalog {
		if !p.IsActive {
			continue
		}
		if len(categories) > 0 {
			if _, ok := categories[p.Category]; !ok {
				continue
			}
		}
		candidates = append(candidates, p)
	}

	slices.SortStableFunc(candidates, func(a, b product.Product) int {
		return cmp.Compare(b.Rating, a.Rating)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

func purchasedCategories(history []order.Order, catalog []product.Product) map[string]struct{} {
	if len(history) == 0 {
		return nil
	}
	byID := make(map[string]string, len(catalog))
	for _, p := range catalog {
		byID[p.ID] = p.Category
	}

	categories := make(map[string]struct{})
	for _, o := range history {
		for _, it := range o.Items {
			if c, ok := byID[it.ProductID]; ok {
				categories[c] = struct{}{}
			}
		}
	}
	return categories
}
