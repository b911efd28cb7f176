package loyalty

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/xenking/loyalty-kart/internal/domain/apperr"
	"github.com/xenking/loyalty-kart/internal/domain/product"
)

// PointsPerCurrencyUnit is the redemption ratio: one point buys one unit.
const PointsPerCurrencyUnit = 1

// EarnDivisor is the spend needed to earn a single point.
const EarnDivisor = 100

// MaxQuantity bounds the units of one product in a cart, summed over every
// line that references it. Stock is stored as a 32-bit integer.
const MaxQuantity = math.MaxInt32

// MaxAmount is the largest money value a settlement may produce. Amounts are
// stored as NUMERIC(14, 2).
var MaxAmount = decimal.RequireFromString("999999999999.99")

// ErrAmountOutOfRange is returned when a cart total, or the spend it adds up
// to, exceeds MaxAmount.
var ErrAmountOutOfRange = apperr.New(apperr.Validation, "order amount out of range")

// ProductNotFoundError indicates a requested product does not exist or is
// inactive.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// Kind implements apperr.Kinder.
func (e *ProductNotFoundError) Kind() apperr.Kind { return apperr.NotFound }

// InsufficientStockError indicates the cart asks for more units of a product
// than the catalog holds.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.Name, e.Requested, e.Available)
}

// Kind implements apperr.Kinder.
func (e *InsufficientStockError) Kind() apperr.Kind { return apperr.Validation }

// InvalidQuantityError indicates a line item quantity is not positive, or the
// quantities requested for a product exceed MaxQuantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity for product %s must be between 1 and %d", e.ProductID, MaxQuantity)
}

// Kind implements apperr.Kinder.
func (e *InvalidQuantityError) Kind() apperr.Kind { return apperr.Validation }

// Line pairs a requested quantity with the catalog snapshot of its product.
// Product is nil when the id did not resolve.
type Line struct {
	ProductID string
	Quantity  int
	Product   *product.Product
}

// PricedLine is a line item with its price snapshot.
type PricedLine struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	LineTotal decimal.Decimal
}

// Quote is the result of pricing a cart.
type Quote struct {
	Lines          []PricedLine
	Subtotal       decimal.Decimal
	Discount       decimal.Decimal
	Total          decimal.Decimal
	PointsRedeemed int64
	PointsEarned   int64
}

// Price computes line totals, the points discount and the points earned for
// a cart. It has no side effects and returns the same Quote for the same
// inputs. Validation happens in line order, so the first offending line is
// the one reported. Stock is checked against the summed quantity of every
// line referencing the same product.
func Price(lines []Line, userPoints, requestedPoints int64) (Quote, error) {
	wanted := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			return Quote{}, &InvalidQuantityError{ProductID: l.ProductID}
		}
		if l.Product == nil || !l.Product.IsActive {
			return Quote{}, &ProductNotFoundError{ProductID: l.ProductID}
		}
		n, ok := AddQuantity(wanted[l.ProductID], l.Quantity)
		if !ok {
			return Quote{}, &InvalidQuantityError{ProductID: l.ProductID}
		}
		wanted[l.ProductID] = n
	}

	q := Quote{
		Lines:    make([]PricedLine, len(lines)),
		Subtotal: decimal.Zero,
	}
	for i, l := range lines {
		if n := wanted[l.ProductID]; n > l.Product.StockQuantity {
			return Quote{}, &InsufficientStockError{
				ProductID: l.ProductID,
				Name:      l.Product.Name,
				Requested: n,
				Available: l.Product.StockQuantity,
			}
		}

		lineTotal := l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		q.Lines[i] = PricedLine{
			ProductID: l.ProductID,
			Name:      l.Product.Name,
			UnitPrice: l.Product.Price,
			Quantity:  l.Quantity,
			LineTotal: lineTotal,
		}
		q.Subtotal = q.Subtotal.Add(lineTotal)
	}
	if q.Subtotal.GreaterThan(MaxAmount) {
		return Quote{}, ErrAmountOutOfRange
	}

	q.PointsRedeemed = RedeemablePoints(requestedPoints, userPoints)
	q.Discount = decimal.NewFromInt(q.PointsRedeemed * PointsPerCurrencyUnit)

	total := q.Subtotal.Sub(q.Discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	q.Total = total.Round(2)
	q.PointsEarned = EarnedPoints(q.Total)

	return q, nil
}

// RedeemablePoints clamps a redemption request to [0, balance].
func RedeemablePoints(requested, balance int64) int64 {
	if requested < 0 {
		requested = 0
	}
	if balance < 0 {
		balance = 0
	}
	return min(requested, balance)
}

// AddQuantity returns sum + q, or false when the result leaves [1, MaxQuantity].
func AddQuantity(sum, q int) (int, bool) {
	if q <= 0 || q > MaxQuantity || sum > MaxQuantity-q {
		return sum, false
	}
	return sum + q, true
}

var maxPoints = decimal.NewFromInt(math.MaxInt64)

// EarnedPoints returns floor(total / EarnDivisor) for a non-negative total,
// saturating at math.MaxInt64.
func EarnedPoints(total decimal.Decimal) int64 {
	if !total.IsPositive() {
		return 0
	}
	points := total.Div(decimal.NewFromInt(EarnDivisor)).Floor()
	if points.GreaterThan(maxPoints) {
		return math.MaxInt64
	}
	return points.IntPart()
}
