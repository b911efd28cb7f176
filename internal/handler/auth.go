package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/loyalty-kart/internal/domain/apperr"
	"github.com/xenking/loyalty-kart/internal/domain/auth"
)

var errMissingToken = apperr.New(apperr.Unauthorized, "bearer token required")

// bearerToken extracts the token of an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// authed wraps fn so it only runs for requests carrying a valid token. The
// caller identity is stored in the request context and on the logger.
func (h *Handler) authed(fn handlerFunc) http.Handler {
	return h.handle(func(w http.ResponseWriter, r *http.Request) error {
		token, ok := bearerToken(r)
		if !ok {
			return errMissingToken
		}
		id, err := h.auth.Verify(token)
		if err != nil {
			return err
		}
		ctx := auth.WithIdentity(r.Context(), id)
		ctx = zctx.With(ctx, zap.String("user_id", id.UserID))
		return fn(w, r.WithContext(ctx))
	})
}

// identity returns the caller of an authed request.
func identity(r *http.Request) auth.Identity {
	id, _ := auth.IdentityFrom(r.Context())
	return id
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) error {
	var req auth.RegisterRequest
	if err := decodeBody(r, fields{
		"email":    strField(&req.Email),
		"name":     strField(&req.Name),
		"password": strField(&req.Password),
		"phone":    strField(&req.Phone),
	}); err != nil {
		return err
	}
	s, err := h.auth.Register(r.Context(), req)
	if err != nil {
		return err
	}
	writeSession(w, http.StatusCreated, "User created successfully", s)
	return nil
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) error {
	var email, password string
	if err := decodeBody(r, fields{
		"email":    strField(&email),
		"password": strField(&password),
	}); err != nil {
		return err
	}
	s, err := h.auth.Login(r.Context(), email, password)
	if err != nil {
		return err
	}
	writeSession(w, http.StatusOK, "Login successful", s)
	return nil
}

func writeSession(w http.ResponseWriter, status int, msg string, s *auth.Session) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str(msg)
		e.FieldStart("token")
		e.Str(s.Token)
		e.FieldStart("expires_at")
		encodeTime(e, s.ExpiresAt)
		e.FieldStart("user")
		e.ObjStart()
		e.FieldStart("id")
		e.Str(s.User.ID)
		e.FieldStart("email")
		e.Str(s.User.Email)
		e.FieldStart("name")
		e.Str(s.User.Name)
		e.FieldStart("loyalty_points")
		e.Int64(s.User.LoyaltyPoints)
		e.FieldStart("loyalty_tier")
		e.Str(s.User.LoyaltyTier.String())
		e.ObjEnd()
		e.ObjEnd()
	})
}
