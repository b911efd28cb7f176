package order

import (
	"time"

	"github.com/go-faster/jx"
)

// EncodeSettledEvent renders the payload of an order.settled event.
func EncodeSettledEvent(o *Order) ([]byte, error) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("order_id")
	e.Str(o.ID)
	e.FieldStart("user_id")
	e.Str(o.UserID)
	e.FieldStart("total_amount")
	e.Num(jx.Num(o.Total.StringFixed(2)))
	e.FieldStart("discount_amount")
	e.Num(jx.Num(o.Discount.StringFixed(2)))
	e.FieldStart("loyalty_points_used")
	e.Int64(o.PointsUsed)
	e.FieldStart("loyalty_points_earned")
	e.Int64(o.PointsEarned)
	e.FieldStart("loyalty_points_balance")
	e.Int64(o.BalanceAfter)
	e.FieldStart("loyalty_tier")
	e.Str(o.TierAfter.String())
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Str(it.ProductID)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("settled_at")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()

	return append([]byte(nil), e.Bytes()...), nil
}
