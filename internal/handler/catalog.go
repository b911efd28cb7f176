package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/loyalty-kart/internal/domain/loyalty"
	"github.com/xenking/loyalty-kart/internal/domain/product"
)

const (
	defaultProductLimit = 20
	maxProductLimit     = 100
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) error {
	limit, err := queryLimit(r, defaultProductLimit, maxProductLimit)
	if err != nil {
		return err
	}
	products, err := h.products.List(r.Context(), product.Filter{
		Category:   strings.TrimSpace(r.URL.Query().Get("category")),
		ActiveOnly: true,
		Limit:      limit,
	})
	if err != nil {
		return errors.Wrap(err, "list products")
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		h.encodeProducts(e, products)
	})
	return nil
}

// getProduct serves a single active product. Inactive products are reported
// as missing.
func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("id")
	p, err := h.products.GetByID(r.Context(), id)
	if errors.Is(err, product.ErrNotFound) || (err == nil && !p.IsActive) {
		return &loyalty.ProductNotFoundError{ProductID: id}
	}
	if err != nil {
		return errors.Wrap(err, "get product")
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		h.encodeProduct(e, *p)
	})
	return nil
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) error {
	categories, err := h.products.ListCategories(r.Context())
	if err != nil {
		return errors.Wrap(err, "list categories")
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, c := range categories {
			encodeCategory(e, c)
		}
		e.ArrEnd()
	})
	return nil
}
