// Package seed loads the starter catalog and an optional demo account.
package seed

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/loyalty-kart/internal/domain/auth"
	"github.com/xenking/loyalty-kart/internal/domain/product"
	"github.com/xenking/loyalty-kart/internal/domain/user"
)

// namespace derives stable ids from names, so seeding twice upserts the same
// rows.
var namespace = uuid.MustParse("6f1c2a64-5d0e-4c1b-9a55-0b8f4f51d7a2")

// ID returns the stable id of a seeded entity called name.
func ID(name string) string {
	return uuid.NewSHA1(namespace, []byte(name)).String()
}

// Catalog is implemented by the product repositories of every store.
type Catalog interface {
	Upsert(ctx context.Context, p product.Product) error
	UpsertCategory(ctx context.Context, c product.Category) error
}

// Registrar creates accounts.
type Registrar interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.Session, error)
}

// Categories returns the starter categories.
func Categories() []product.Category {
	raw := []struct{ name, desc, image string }{
		{"Smartphones", "Latest smartphones and accessories", "https://images.unsplash.com/photo-1498049794561-7780e7231661"},
		{"Headphones", "Premium audio devices", "https://images.unsplash.com/photo-1611186871348-b1ce696e52c9"},
		{"Smartwatches", "Wearable technology", "https://images.unsplash.com/photo-1588508065123-287b28e013da"},
		{"Chargers & Power Banks", "Power accessories", "https://images.unsplash.com/photo-1636115305669-9096bffe87fd"},
	}
	out := make([]product.Category, len(raw))
	for i, c := range raw {
		out[i] = product.Category{ID: ID("category/" + c.name), Name: c.name, Description: c.desc, ImageURL: c.image}
	}
	return out
}

// Products returns the starter products.
func Products(now time.Time) []product.Product {
	raw := []struct {
		name, desc, brand, category, image string
		price                              int64
		stock                              int
		rating                             float64
	}{
		{"iPhone 15 Pro Max", "Latest iPhone with A17 Pro chip and titanium design", "Apple", "Smartphones",
			"https://images.unsplash.com/photo-1498049794561-7780e7231661", 159900, 50, 4.8},
		{"Sony WH-1000XM5", "Premium noise canceling headphones", "Sony", "Headphones",
			"https://images.unsplash.com/photo-1611186871348-b1ce696e52c9", 29990, 30, 4.7},
		{"Apple Watch Series 9", "Advanced smartwatch with health monitoring", "Apple", "Smartwatches",
			"https://images.unsplash.com/photo-1588508065123-287b28e013da", 41900, 25, 4.6},
		{"Anker PowerCore 20000mAh", "High-capacity portable power bank", "Anker", "Chargers & Power Banks",
			"https://images.unsplash.com/photo-1636115305669-9096bffe87fd", 2999, 100, 4.5},
	}
	out := make([]product.Product, len(raw))
	for i, p := range raw {
		out[i] = product.Product{
			ID:            ID("product/" + p.name),
			Name:          p.name,
			Description:   p.desc,
			Brand:         p.brand,
			Price:         decimal.NewFromInt(p.price),
			StockQuantity: p.stock,
			Category:      p.category,
			ImageURL:      p.image,
			Rating:        p.rating,
			IsActive:      true,
			CreatedAt:     now.UTC(),
		}
	}
	return out
}

// LoadCatalog upserts the starter categories and products.
func LoadCatalog(ctx context.Context, c Catalog, now time.Time) error {
	for _, cat := range Categories() {
		if err := c.UpsertCategory(ctx, cat); err != nil {
			return errors.Wrapf(err, "upsert category %q", cat.Name)
		}
	}
	for _, p := range Products(now) {
		if err := c.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %q", p.Name)
		}
	}
	return nil
}

// DemoUser registers a demo account unless email is already taken. It
// reports whether the account was created.
func DemoUser(ctx context.Context, r Registrar, email, password string) (bool, error) {
	_, err := r.Register(ctx, auth.RegisterRequest{Email: email, Name: "Demo Shopper", Password: password})
	switch {
	case errors.Is(err, user.ErrAlreadyExists):
		return false, nil
	case err != nil:
		return false, errors.Wrap(err, "register demo user")
	default:
		return true, nil
	}
}
