// Package payment simulates a payment gateway for settled orders.
package payment

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/loyalty-kart/internal/domain/apperr"
	"github.com/xenking/loyalty-kart/internal/domain/order"
)

// DefaultSuccessRate is the share of charges that succeed.
const DefaultSuccessRate = 0.95

// ErrMissingMethod is returned when no payment method is named.
var ErrMissingMethod = apperr.New(apperr.Validation, "payment method required")

// Orders is the slice of the order store the simulator needs.
type Orders interface {
	GetByID(ctx context.Context, id string) (*order.Order, error)
	UpdateStatus(ctx context.Context, id string, payment order.PaymentStatus, status order.Status) error
}

// Result is the outcome of a charge.
type Result struct {
	Success bool
	Method  string
}

// Simulator charges orders with a configurable success rate.
type Simulator struct {
	orders Orders
	rate   float64

	mu   sync.Mutex
	rand *rand.Rand
}

// NewSimulator creates a Simulator. rate is clamped to [0, 1].
func NewSimulator(orders Orders, rate float64, src rand.Source) *Simulator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Simulator{
		orders: orders,
		rate:   min(max(rate, 0), 1),
		rand:   rand.New(src),
	}
}

// Charge attempts payment of orderID on behalf of userID. Orders of other
// users are reported as not found. A successful charge completes the payment
// and confirms the order; a failed one leaves the order untouched. Charging
// a paid order succeeds without side effects.
func (s *Simulator) Charge(ctx context.Context, userID, orderID, method string) (*Result, error) {
	if method == "" {
		return nil, ErrMissingMethod
	}
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if o.UserID != userID {
		return nil, order.ErrNotFound
	}
	if o.PaymentStatus == order.PaymentCompleted {
		return &Result{Success: true, Method: method}, nil
	}

	if !s.roll() {
		zctx.From(ctx).Info("Simulated payment declined",
			zap.String("order_id", orderID),
			zap.String("method", method),
		)
		return &Result{Success: false, Method: method}, nil
	}
	if err := s.orders.UpdateStatus(ctx, orderID, order.PaymentCompleted, order.StatusConfirmed); err != nil {
		return nil, errors.Wrap(err, "update order status")
	}
	return &Result{Success: true, Method: method}, nil
}

func (s *Simulator) roll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Float64() < s.rate
}
