package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/loyalty-kart/internal/domain/apperr"
	"github.com/xenking/loyalty-kart/internal/domain/loyalty"
)

// ErrNotFound is returned when no order matches the lookup.
var ErrNotFound = apperr.New(apperr.NotFound, "order not found")

// ErrDuplicateIdempotencyKey is returned by Repository.Create when the user
// already has an order stored under the same idempotency key.
var ErrDuplicateIdempotencyKey = apperr.New(apperr.Conflict, "idempotency key already used")

// PaymentStatus is the payment state of an order.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPlaced    Status = "placed"
	StatusConfirmed Status = "confirmed"
)

// Order is a settled customer order. Line items keep the name and price the
// product had at settlement time.
type Order struct {
	ID              string
	UserID          string
	Items           []LineItem
	Subtotal        decimal.Decimal
	Total           decimal.Decimal
	Discount        decimal.Decimal
	PointsUsed      int64
	PointsEarned    int64
	BalanceAfter    int64
	TierAfter       loyalty.Tier
	PaymentMethod   string
	PaymentStatus   PaymentStatus
	Status          Status
	ShippingAddress string
	IdempotencyKey  string
	CreatedAt       time.Time
}

// LineItem is a single priced line of an order.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create stores o. It returns ErrDuplicateIdempotencyKey if the user
	// already has an order with the same non-empty key.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	// GetByIdempotencyKey returns ErrNotFound when the key was never used.
	GetByIdempotencyKey(ctx context.Context, userID, key string) (*Order, error)
	// ListByUser returns the newest orders of a user first.
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, payment PaymentStatus, status Status) error
}

// EventSettled is the outbox event type appended for every settled order.
const EventSettled = "order.settled"

// Event is an outbox record written in the same transaction as the change it
// announces.
type Event struct {
	ID          string
	AggregateID string
	Key         string
	Type        string
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// Outbox stores domain events until a relay publishes them.
type Outbox interface {
	Append(ctx context.Context, e *Event) error
	// Pending returns up to limit unpublished events, oldest first.
	Pending(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, ids []string, at time.Time) error
}

// Transactor runs fn in a storage transaction. Repository calls made with the
// context passed to fn join that transaction. Any error returned by fn rolls
// every write back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
