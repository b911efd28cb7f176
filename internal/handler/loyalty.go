package handler

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/loyalty-kart/internal/domain/apperr"
	"github.com/xenking/loyalty-kart/internal/domain/loyalty"
	"github.com/xenking/loyalty-kart/internal/domain/recommend"
	"github.com/xenking/loyalty-kart/internal/domain/user"
)

const maxRecommendLimit = 50

// errUnknownUser is returned when a valid token names a deleted account.
var errUnknownUser = apperr.New(apperr.Unauthorized, "user no longer exists")

func (h *Handler) loyaltyStatus(w http.ResponseWriter, r *http.Request) error {
	u, err := h.users.GetByID(r.Context(), identity(r).UserID)
	if errors.Is(err, user.ErrNotFound) {
		return errUnknownUser
	}
	if err != nil {
		return errors.Wrap(err, "get user")
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("points")
		e.Int64(u.LoyaltyPoints)
		e.FieldStart("tier")
		e.Str(u.LoyaltyTier.String())
		e.FieldStart("total_spent")
		encodeMoney(e, u.TotalSpent)
		e.FieldStart("benefits")
		e.ObjStart()
		for _, t := range loyalty.Tiers {
			b := loyalty.BenefitsOf(t)
			e.FieldStart(t.String())
			e.ObjStart()
			e.FieldStart("discount")
			e.Str(fmt.Sprintf("%d%%", b.DiscountPercent))
			e.FieldStart("free_shipping")
			e.Bool(b.FreeShipping)
			e.FieldStart("priority_support")
			e.Bool(b.PrioritySupport)
			e.FieldStart("exclusive_access")
			e.Bool(b.ExclusiveAccess)
			e.ObjEnd()
		}
		e.ObjEnd()
		e.ObjEnd()
	})
	return nil
}

func (h *Handler) recommendations(w http.ResponseWriter, r *http.Request) error {
	limit, err := queryLimit(r, recommend.DefaultLimit, maxRecommendLimit)
	if err != nil {
		return err
	}
	products, err := h.recommend.Recommend(r.Context(), identity(r).UserID, limit)
	if err != nil {
		return errors.Wrap(err, "recommend")
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		h.encodeProducts(e, products)
	})
	return nil
}
