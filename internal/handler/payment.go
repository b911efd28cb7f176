package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/loyalty-kart/internal/domain/apperr"
)

var errMissingOrderID = apperr.New(apperr.Validation, "order_id required")

// simulatePayment charges one of the caller's orders. A declined charge is a
// normal outcome reported with status "failed", not an error.
func (h *Handler) simulatePayment(w http.ResponseWriter, r *http.Request) error {
	var orderID, method string
	if err := decodeBody(r, fields{
		"order_id":       strField(&orderID),
		"payment_method": strField(&method),
	}); err != nil {
		return err
	}
	if orderID == "" {
		return errMissingOrderID
	}

	res, err := h.payments.Charge(r.Context(), identity(r).UserID, orderID, method)
	if err != nil {
		return errors.Wrap(err, "charge")
	}

	status, msg := "failed", "Payment failed, please try again"
	if res.Success {
		status, msg = "success", "Payment via "+res.Method+" successful"
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("status")
		e.Str(status)
		e.FieldStart("message")
		e.Str(msg)
		e.FieldStart("order_id")
		e.Str(orderID)
		e.ObjEnd()
	})
	return nil
}
