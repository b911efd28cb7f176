package handler

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/loyalty-kart/internal/domain/apperr"
	"github.com/xenking/loyalty-kart/internal/domain/order"
	"github.com/xenking/loyalty-kart/internal/domain/product"
)

const maxBodyBytes = 1 << 20

// fields maps accepted JSON keys to their decoders. Keys missing from the map
// are rejected.
type fields map[string]func(d *jx.Decoder) error

func badRequest(err error) error {
	return apperr.WithKind(err, apperr.Validation)
}

// decodeBody decodes a JSON object request body, rejecting unknown fields
// and trailing data.
func decodeBody(r *http.Request, f fields) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return badRequest(errors.Wrap(err, "read body"))
	}
	if len(data) > maxBodyBytes {
		return badRequest(errors.New("request body too large"))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return badRequest(errors.New("request body required"))
	}

	d := jx.DecodeBytes(data)
	if err := decodeObject(d, f); err != nil {
		return badRequest(err)
	}
	if d.Next() != jx.Invalid {
		return badRequest(errors.New("unexpected data after JSON object"))
	}
	return nil
}

func decodeObject(d *jx.Decoder, f fields) error {
	if d.Next() != jx.Object {
		return errors.New("expected JSON object")
	}
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		fn, ok := f[string(key)]
		if !ok {
			return errors.Errorf("unknown field %q", key)
		}
		if err := fn(d); err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
}

func strField(dst *string) func(d *jx.Decoder) error {
	return func(d *jx.Decoder) error {
		v, err := d.Str()
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

func intField(dst *int) func(d *jx.Decoder) error {
	return func(d *jx.Decoder) error {
		v, err := d.Int()
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

func int64Field(dst *int64) func(d *jx.Decoder) error {
	return func(d *jx.Decoder) error {
		v, err := d.Int64()
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

// queryLimit parses the optional limit query parameter. Absent means def,
// anything but a positive integer is rejected. Values above max are capped.
func queryLimit(r *http.Request, def, max int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, badRequest(errors.Errorf("limit must be a positive integer, got %q", raw))
	}
	return min(n, max), nil
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("brand")
	e.Str(p.Brand)
	e.FieldStart("price")
	encodeMoney(e, p.Price)
	e.FieldStart("category")
	e.Str(p.Category)
	e.FieldStart("image_url")
	e.Str(h.imageURL(p.ImageURL))
	e.FieldStart("stock_quantity")
	e.Int(p.StockQuantity)
	e.FieldStart("rating")
	e.Float64(p.Rating)
	e.FieldStart("review_count")
	e.Int(p.ReviewCount)
	e.FieldStart("is_active")
	e.Bool(p.IsActive)
	e.FieldStart("created_at")
	encodeTime(e, p.CreatedAt)
	e.ObjEnd()
}

func (h *Handler) encodeProducts(e *jx.Encoder, ps []product.Product) {
	e.ArrStart()
	for _, p := range ps {
		h.encodeProduct(e, p)
	}
	e.ArrEnd()
}

func encodeCategory(e *jx.Encoder, c product.Category) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(c.ID)
	e.FieldStart("name")
	e.Str(c.Name)
	e.FieldStart("description")
	e.Str(c.Description)
	e.FieldStart("image_url")
	e.Str(c.ImageURL)
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("user_id")
	e.Str(o.UserID)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Str(it.ProductID)
		e.FieldStart("name")
		e.Str(it.Name)
		e.FieldStart("unit_price")
		encodeMoney(e, it.UnitPrice)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("line_total")
		encodeMoney(e, it.LineTotal)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("subtotal")
	encodeMoney(e, o.Subtotal)
	e.FieldStart("discount_amount")
	encodeMoney(e, o.Discount)
	e.FieldStart("total_amount")
	encodeMoney(e, o.Total)
	e.FieldStart("loyalty_points_used")
	e.Int64(o.PointsUsed)
	e.FieldStart("loyalty_points_earned")
	e.Int64(o.PointsEarned)
	e.FieldStart("payment_method")
	e.Str(o.PaymentMethod)
	e.FieldStart("payment_status")
	e.Str(string(o.PaymentStatus))
	e.FieldStart("order_status")
	e.Str(string(o.Status))
	e.FieldStart("shipping_address")
	e.Str(o.ShippingAddress)
	e.FieldStart("created_at")
	encodeTime(e, o.CreatedAt)
	e.ObjEnd()
}
