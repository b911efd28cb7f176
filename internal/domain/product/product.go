package product

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/loyalty-kart/internal/domain/apperr"
)

var (
	// ErrNotFound is returned when a requested product does not exist or is
	// no longer active.
	ErrNotFound = apperr.New(apperr.NotFound, "product not found")
	// ErrInsufficientStock is returned by DecrementStock when the guarded
	// decrement finds less stock than requested.
	ErrInsufficientStock = apperr.New(apperr.Conflict, "insufficient stock")
	// ErrInvalidDecrement is returned by DecrementStock for a non-positive
	// quantity.
	ErrInvalidDecrement = apperr.New(apperr.Validation, "stock decrement must be positive")
)

// Product represents a catalog item available for purchase.
type Product struct {
	ID            string
	Name          string
	Description   string
	Brand         string
	Price         decimal.Decimal
	StockQuantity int
	Category      string
	ImageURL      string
	Rating        float64
	ReviewCount   int
	IsActive      bool
	CreatedAt     time.Time
}

// Category groups products for browsing.
type Category struct {
	ID          string
	Name        string
	Description string
	ImageURL    string
}

// Filter narrows List results. Zero values mean no restriction.
type Filter struct {
	Category   string
	ActiveOnly bool
	Limit      int
}

// Repository defines catalog reads and the single catalog mutation allowed
// outside catalog administration: the guarded stock decrement performed by
// order settlement.
type Repository interface {
	// List returns products ordered by ID.
	List(ctx context.Context, f Filter) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	// GetByIDs returns the products matching ids, active or not. Missing ids
	// are simply absent from the result.
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	// DecrementStock subtracts qty from the product stock only if at least qty
	// is available, returning ErrInsufficientStock otherwise. A non-positive
	// qty is ErrInvalidDecrement.
	DecrementStock(ctx context.Context, id string, qty int) error
	ListCategories(ctx context.Context) ([]Category, error)
}
