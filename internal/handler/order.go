package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/loyalty-kart/internal/domain/order"
)

// IdempotencyKeyHeader carries the client-chosen key that makes order
// placement safe to retry.
const IdempotencyKeyHeader = "Idempotency-Key"

func decodeItems(dst *[]order.Item) func(d *jx.Decoder) error {
	return func(d *jx.Decoder) error {
		return d.Arr(func(d *jx.Decoder) error {
			var it order.Item
			if err := decodeObject(d, fields{
				"product_id": strField(&it.ProductID),
				"quantity":   intField(&it.Quantity),
			}); err != nil {
				return err
			}
			*dst = append(*dst, it)
			return nil
		})
	}
}

// placeOrder settles the caller's cart. A replayed idempotent request answers
// 200 with the stored order instead of 201.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) error {
	req := order.SettleRequest{
		UserID:         identity(r).UserID,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader)),
	}
	if err := decodeBody(r, fields{
		"items":                 decodeItems(&req.Items),
		"shipping_address":      strField(&req.ShippingAddress),
		"loyalty_points_to_use": int64Field(&req.RequestedPoints),
		"payment_method":        strField(&req.PaymentMethod),
	}); err != nil {
		return err
	}

	res, err := h.orders.Settle(r.Context(), req)
	if err != nil {
		return errors.Wrap(err, "settle")
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
		w.Header().Set("Idempotent-Replayed", "true")
	}
	o := res.Order
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str("Order created successfully")
		e.FieldStart("order_id")
		e.Str(o.ID)
		e.FieldStart("total_amount")
		encodeMoney(e, o.Total)
		e.FieldStart("discount_amount")
		encodeMoney(e, o.Discount)
		e.FieldStart("loyalty_points_used")
		e.Int64(o.PointsUsed)
		e.FieldStart("loyalty_points_earned")
		e.Int64(o.PointsEarned)
		e.FieldStart("new_loyalty_points")
		e.Int64(o.BalanceAfter)
		e.FieldStart("new_tier")
		e.Str(o.TierAfter.String())
		e.FieldStart("replayed")
		e.Bool(res.Replayed)
		e.FieldStart("order")
		encodeOrder(e, o)
		e.ObjEnd()
	})
	return nil
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) error {
	orders, err := h.orders.History(r.Context(), identity(r).UserID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	})
	return nil
}
