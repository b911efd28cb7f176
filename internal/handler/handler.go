// Package handler serves the JSON API over net/http.
package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/jx"

	"github.com/xenking/loyalty-kart/internal/domain/auth"
	"github.com/xenking/loyalty-kart/internal/domain/order"
	"github.com/xenking/loyalty-kart/internal/domain/payment"
	"github.com/xenking/loyalty-kart/internal/domain/product"
	"github.com/xenking/loyalty-kart/internal/domain/recommend"
	"github.com/xenking/loyalty-kart/internal/domain/user"
)

// Banner is the greeting served at the API root.
const Banner = "ElectroMart API - Your Electronics Store"

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored.
	ImageBaseURL string
}

// Deps are the domain services the Handler delegates to.
type Deps struct {
	Auth      *auth.Service
	Products  product.Repository
	Users     user.Repository
	Orders    *order.Service
	Recommend *recommend.Service
	Payments  *payment.Simulator
}

// Handler maps HTTP requests to domain operations.
type Handler struct {
	auth      *auth.Service
	products  product.Repository
	users     user.Repository
	orders    *order.Service
	recommend *recommend.Service
	payments  *payment.Simulator

	imageBaseURL string
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(cfg HandlerConfig, deps Deps) *Handler {
	return &Handler{
		auth:         deps.Auth,
		products:     deps.Products,
		users:        deps.Users,
		orders:       deps.Orders,
		recommend:    deps.Recommend,
		payments:     deps.Payments,
		imageBaseURL: strings.TrimSuffix(cfg.ImageBaseURL, "/"),
	}
}

// Register adds every API route to mux under the /api prefix.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("GET /api/{$}", h.handle(h.root))

	mux.Handle("POST /api/auth/register", h.handle(h.register))
	mux.Handle("POST /api/auth/login", h.handle(h.login))

	mux.Handle("GET /api/products", h.handle(h.listProducts))
	mux.Handle("GET /api/products/{id}", h.handle(h.getProduct))
	mux.Handle("GET /api/categories", h.handle(h.listCategories))

	mux.Handle("POST /api/orders", h.authed(h.placeOrder))
	mux.Handle("GET /api/orders", h.authed(h.listOrders))

	mux.Handle("GET /api/loyalty/status", h.authed(h.loyaltyStatus))
	mux.Handle("GET /api/recommendations", h.authed(h.recommendations))
	mux.Handle("POST /api/payment/simulate", h.authed(h.simulatePayment))
}

// handlerFunc is an endpoint that reports failures by returning them.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (h *Handler) handle(fn handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			writeError(w, r, err)
		}
	})
}

func (h *Handler) root(w http.ResponseWriter, _ *http.Request) error {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str(Banner)
		e.ObjEnd()
	})
	return nil
}

// imageURL prefixes relative image paths with the configured base URL.
func (h *Handler) imageURL(path string) string {
	if h.imageBaseURL == "" || path == "" || strings.Contains(path, "://") {
		return path
	}
	return h.imageBaseURL + "/" + strings.TrimPrefix(path, "/")
}
