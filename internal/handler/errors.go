package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/loyalty-kart/internal/domain/apperr"
	"github.com/xenking/loyalty-kart/internal/domain/loyalty"
)

// statusOf maps an error kind to its HTTP status code.
func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.Unauthorized:
		return http.StatusUnauthorized
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.Transient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type kindedError interface {
	error
	Kind() apperr.Kind
}

// publicMessage returns the text safe to show a client. Internal and
// transient failures never leak their cause.
func publicMessage(err error, kind apperr.Kind) string {
	switch kind {
	case apperr.Internal:
		return "internal error"
	case apperr.Transient:
		return "service temporarily unavailable, retry later"
	}
	var k kindedError
	if errors.As(err, &k) {
		return k.Error()
	}
	return err.Error()
}

// entityOf names the product a typed settlement error is about.
func entityOf(err error) string {
	var (
		notFound *loyalty.ProductNotFoundError
		stock    *loyalty.InsufficientStockError
		quantity *loyalty.InvalidQuantityError
	)
	switch {
	case errors.As(err, &notFound):
		return notFound.ProductID
	case errors.As(err, &stock):
		return stock.ProductID
	case errors.As(err, &quantity):
		return quantity.ProductID
	default:
		return ""
	}
}

// writeError renders err as {"code","kind","message","entity"}.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusOf(kind)

	lg := zctx.From(r.Context())
	if status >= http.StatusInternalServerError {
		lg.Error("Request failed", zap.Error(err), zap.Stringer("kind", kind))
	} else {
		lg.Debug("Request rejected", zap.Error(err), zap.Stringer("kind", kind))
	}

	if kind == apperr.Transient {
		w.Header().Set("Retry-After", "1")
	}
	if kind == apperr.Unauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	}
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("kind")
		e.Str(kind.String())
		e.FieldStart("message")
		e.Str(publicMessage(err, kind))
		if entity := entityOf(err); entity != "" {
			e.FieldStart("entity")
			e.Str(entity)
		}
		e.ObjEnd()
	})
}
