package order

import (
	"context"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/loyalty-kart/internal/domain/apperr"
	"github.com/xenking/loyalty-kart/internal/domain/loyalty"
	"github.com/xenking/loyalty-kart/internal/domain/product"
	"github.com/xenking/loyalty-kart/internal/domain/user"
)

// Sentinel errors for settlement requests.
var (
	ErrEmptyItems      = apperr.New(apperr.Validation, "items required")
	ErrMissingAddress  = apperr.New(apperr.Validation, "shipping address required")
	ErrKeyTooLong      = apperr.New(apperr.Validation, "idempotency key exceeds 255 bytes")
	ErrUnauthenticated = apperr.New(apperr.Unauthorized, "user identity required")
)

// DefaultPaymentMethod is used when the request does not name one.
const DefaultPaymentMethod = "UPI"

// HistoryLimit caps the number of orders returned by History.
const HistoryLimit = 50

const maxKeyLen = 255

// Item is a requested cart line.
type Item struct {
	ProductID string
	Quantity  int
}

// SettleRequest holds the input of a checkout.
type SettleRequest struct {
	UserID          string
	Items           []Item
	ShippingAddress string
	RequestedPoints int64
	PaymentMethod   string
	// IdempotencyKey makes client retries safe: a second request with the same
	// key returns the stored order instead of settling again.
	IdempotencyKey string
}

func (r SettleRequest) validate() error {
	if r.UserID == "" {
		return ErrUnauthenticated
	}
	if len(r.Items) == 0 {
		return ErrEmptyItems
	}
	for _, it := range r.Items {
		if it.Quantity <= 0 {
			return &loyalty.InvalidQuantityError{ProductID: it.ProductID}
		}
	}
	if r.ShippingAddress == "" {
		return ErrMissingAddress
	}
	if len(r.IdempotencyKey) > maxKeyLen {
		return ErrKeyTooLong
	}
	return nil
}

// SettleResult is the outcome of a settlement. Order carries totals, points
// and the loyalty balance and tier after the settlement.
type SettleResult struct {
	Order *Order
	// Replayed is set when the order was settled by an earlier request with
	// the same idempotency key.
	Replayed bool
}

// AfterCommitFunc is invoked once a settlement has been committed.
type AfterCommitFunc func(ctx context.Context, o *Order) error

// Option configures a Service.
type Option func(*Service)

// WithMaxAttempts bounds how many times a settlement is attempted when it
// keeps losing races against concurrent writers.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithRetryBackoff sets the base delay between attempts.
func WithRetryBackoff(d time.Duration) Option {
	return func(s *Service) { s.backoff = d }
}

// WithAfterCommit registers hooks run after a successful, non-replayed
// settlement. Hook failures are logged.
func WithAfterCommit(fns ...AfterCommitFunc) Option {
	return func(s *Service) { s.afterCommit = append(s.afterCommit, fns...) }
}

// WithTracerProvider enables settlement spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer("loyalty-kart/order") }
}

// WithMeterProvider enables settlement metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meter = mp.Meter("loyalty-kart/order") }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service settles orders: it prices a cart against the catalog, commits the
// inventory decrements and moves the buyer's loyalty balance and tier, all in
// one transaction.
type Service struct {
	tx       Transactor
	products product.Repository
	users    user.Repository
	orders   Repository
	outbox   Outbox

	maxAttempts int
	backoff     time.Duration
	afterCommit []AfterCommitFunc
	now         func() time.Time

	tracer trace.Tracer
	meter  metric.Meter

	settled   metric.Int64Counter
	conflicts metric.Int64Counter
	redeemed  metric.Int64Counter
	attempts  metric.Int64Histogram
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	tx Transactor,
	products product.Repository,
	users user.Repository,
	orders Repository,
	outbox Outbox,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		tx:          tx,
		products:    products,
		users:       users,
		orders:      orders,
		outbox:      outbox,
		maxAttempts: 3,
		backoff:     10 * time.Millisecond,
		now:         time.Now,
		tracer:      tracenoop.NewTracerProvider().Tracer(""),
		meter:       metricnoop.NewMeterProvider().Meter(""),
	}
	for _, o := range opts {
		o(s)
	}

	var err error
	if s.settled, err = s.meter.Int64Counter("settlement.orders",
		metric.WithDescription("Orders settled"),
	); err != nil {
		return nil, errors.Wrap(err, "settled counter")
	}
	if s.conflicts, err = s.meter.Int64Counter("settlement.conflicts",
		metric.WithDescription("Settlement attempts lost to concurrent writers"),
	); err != nil {
		return nil, errors.Wrap(err, "conflicts counter")
	}
	if s.redeemed, err = s.meter.Int64Counter("settlement.points_redeemed",
		metric.WithDescription("Loyalty points spent on discounts"),
	); err != nil {
		return nil, errors.Wrap(err, "redeemed counter")
	}
	if s.attempts, err = s.meter.Int64Histogram("settlement.attempts",
		metric.WithDescription("Attempts needed per settlement"),
	); err != nil {
		return nil, errors.Wrap(err, "attempts histogram")
	}
	return s, nil
}

// Settle validates and settles a checkout. Either the order, every stock
// decrement, the loyalty update and the outbox event are all committed, or
// nothing is. When a concurrent writer invalidates the snapshot the whole
// settlement is re-read and re-validated, up to the configured attempts.
func (s *Service) Settle(ctx context.Context, req SettleRequest) (_ *SettleResult, rerr error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.RequestedPoints < 0 {
		req.RequestedPoints = 0
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = DefaultPaymentMethod
	}

	ctx, span := s.tracer.Start(ctx, "order.Settle",
		trace.WithAttributes(
			attribute.String("user.id", req.UserID),
			attribute.Int("order.items", len(req.Items)),
		),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	lg := zctx.From(ctx)
	var (
		res *SettleResult
		err error
	)
	for attempt := 1; ; attempt++ {
		res, err = s.settleOnce(ctx, req)
		if err == nil {
			s.attempts.Record(ctx, int64(attempt))
			break
		}
		if apperr.KindOf(err) != apperr.Conflict {
			return nil, err
		}
		s.conflicts.Add(ctx, 1)
		if attempt >= s.maxAttempts {
			return nil, errors.Wrapf(err, "settle after %d attempts", attempt)
		}
		lg.Debug("Settlement conflict, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if err := s.wait(ctx, attempt); err != nil {
			return nil, err
		}
	}

	o := res.Order
	span.SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.Bool("order.replayed", res.Replayed),
	)
	if res.Replayed {
		return res, nil
	}

	s.settled.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", o.TierAfter.String())))
	if o.PointsUsed > 0 {
		s.redeemed.Add(ctx, o.PointsUsed)
	}
	for _, fn := range s.afterCommit {
		if err := fn(ctx, o); err != nil {
			lg.Warn("After commit hook failed",
				zap.String("order_id", o.ID),
				zap.Error(err),
			)
		}
	}
	return res, nil
}

func (s *Service) wait(ctx context.Context, attempt int) error {
	d := s.backoff * time.Duration(attempt)
	if s.backoff > 0 {
		d += rand.N(s.backoff)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Service) settleOnce(ctx context.Context, req SettleRequest) (*SettleResult, error) {
	var res *SettleResult
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if req.IdempotencyKey != "" {
			prev, err := s.orders.GetByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
			switch {
			case err == nil:
				res = &SettleResult{Order: prev, Replayed: true}
				return nil
			case !errors.Is(err, ErrNotFound):
				return errors.Wrap(err, "lookup idempotency key")
			}
		}

		u, err := s.users.GetByID(ctx, req.UserID)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return ErrUnauthenticated
			}
			return errors.Wrap(err, "get user")
		}

		ids := productIDs(req.Items)
		fetched, err := s.products.GetByIDs(ctx, ids)
		if err != nil {
			return errors.Wrap(err, "get products")
		}
		byID := make(map[string]*product.Product, len(fetched))
		for i := range fetched {
			byID[fetched[i].ID] = &fetched[i]
		}

		lines := make([]loyalty.Line, len(req.Items))
		for i, it := range req.Items {
			lines[i] = loyalty.Line{
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				Product:   byID[it.ProductID],
			}
		}
		q, err := loyalty.Price(lines, u.LoyaltyPoints, req.RequestedPoints)
		if err != nil {
			return err
		}
		wanted := quantities(q.Lines)

		balance := user.Balance{
			Points:     u.LoyaltyPoints - q.PointsRedeemed + q.PointsEarned,
			TotalSpent: u.TotalSpent.Add(q.Total),
		}
		if balance.TotalSpent.GreaterThan(loyalty.MaxAmount) {
			return loyalty.ErrAmountOutOfRange
		}
		balance.Tier = loyalty.Classify(balance.TotalSpent)

		o := &Order{
			ID:              uuid.New().String(),
			UserID:          u.ID,
			Items:           lineItems(q.Lines),
			Subtotal:        q.Subtotal,
			Total:           q.Total,
			Discount:        q.Discount,
			PointsUsed:      q.PointsRedeemed,
			PointsEarned:    q.PointsEarned,
			BalanceAfter:    balance.Points,
			TierAfter:       balance.Tier,
			PaymentMethod:   req.PaymentMethod,
			PaymentStatus:   PaymentPending,
			Status:          StatusPlaced,
			ShippingAddress: req.ShippingAddress,
			IdempotencyKey:  req.IdempotencyKey,
			CreatedAt:       s.now().UTC(),
		}
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}

		// Sorted ids keep lock acquisition order stable across transactions.
		for _, id := range ids {
			if err := s.products.DecrementStock(ctx, id, wanted[id]); err != nil {
				return errors.Wrapf(err, "decrement stock of %s", id)
			}
		}

		if err := s.users.UpdateBalance(ctx, u.ID, u.Version, balance); err != nil {
			return errors.Wrap(err, "update balance")
		}

		payload, err := EncodeSettledEvent(o)
		if err != nil {
			return errors.Wrap(err, "encode event")
		}
		if err := s.outbox.Append(ctx, &Event{
			ID:          uuid.New().String(),
			AggregateID: o.ID,
			Key:         o.UserID,
			Type:        EventSettled,
			Payload:     payload,
			CreatedAt:   o.CreatedAt,
		}); err != nil {
			return errors.Wrap(err, "append outbox")
		}

		res = &SettleResult{Order: o}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// History returns the newest orders of a user first.
func (s *Service) History(ctx context.Context, userID string) ([]Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID, HistoryLimit)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// productIDs returns the distinct product ids of items, sorted.
func productIDs(items []Item) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// quantities sums priced lines per product. Price bounds every sum by
// loyalty.MaxQuantity.
func quantities(lines []loyalty.PricedLine) map[string]int {
	wanted := make(map[string]int, len(lines))
	for _, l := range lines {
		wanted[l.ProductID] += l.Quantity
	}
	return wanted
}

func lineItems(priced []loyalty.PricedLine) []LineItem {
	items := make([]LineItem, len(priced))
	for i, l := range priced {
		items[i] = LineItem{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			LineTotal: l.LineTotal,
		}
	}
	return items
}
