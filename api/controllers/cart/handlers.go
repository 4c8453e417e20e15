package cart

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/tillpoint-backend/api/middleware"
	"github.com/angelmondragon/tillpoint-backend/api/responses"
	"github.com/angelmondragon/tillpoint-backend/api/validators"
	cartsvc "github.com/angelmondragon/tillpoint-backend/internal/cart"
	"github.com/angelmondragon/tillpoint-backend/internal/sales"
	"github.com/angelmondragon/tillpoint-backend/internal/sessions"
	pkgerrors "github.com/angelmondragon/tillpoint-backend/pkg/errors"
	"github.com/angelmondragon/tillpoint-backend/pkg/logger"
)

// SessionStore keeps the open operator sessions.
type SessionStore interface {
	Open(operatorID string) *sessions.Session
	Get(id uuid.UUID) (*sessions.Session, error)
	Close(id uuid.UUID) error
}

// Committer turns a cart into a persisted sale.
type Committer interface {
	Commit(ctx context.Context, c *cartsvc.Cart, req sales.CommitRequest) (*sales.Receipt, error)
}

// OpenSession starts a till session with an empty cart.
func OpenSession(store SessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session store unavailable"))
			return
		}

		var payload openSessionRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		operatorID := validators.SanitizeString(payload.OperatorID, 64)
		if operatorID == "" {
			operatorID = validators.SanitizeString(r.Header.Get(middleware.OperatorIDHeader), 64)
		}

		s := store.Open(operatorID)
		if logg != nil {
			ctx := logg.WithOperatorID(logg.WithSessionID(r.Context(), s.ID.String()), operatorID)
			logg.Info(ctx, "session opened")
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newSessionResponse(s))
	}
}

func GetCart(store SessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := loadSession(w, r, store, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, s.View())
	}
}

// AddLine adds a product by id or scanned code, merging into an existing line.
func AddLine(store SessionStore, products ProductLookup, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if products == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		s, ok := loadSession(w, r, store, logg)
		if !ok {
			return
		}
		var payload addLineRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		p, err := resolveProduct(products, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		mutate(w, r, s, logg, func(c *cartsvc.Cart) error {
			return c.AddLine(p.ID, p.Name, p.UnitPrice, payload.quantity())
		})
	}
}

func SetQuantity(store SessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, productID, ok := loadSessionLine(w, r, store, logg)
		if !ok {
			return
		}
		var payload setQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		mutate(w, r, s, logg, func(c *cartsvc.Cart) error {
			return c.SetQuantity(productID, payload.Quantity)
		})
	}
}

func SetLineDiscount(store SessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, productID, ok := loadSessionLine(w, r, store, logg)
		if !ok {
			return
		}
		var payload discountRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		mutate(w, r, s, logg, func(c *cartsvc.Cart) error {
			return c.SetLineDiscount(productID, payload.Discount)
		})
	}
}

// RemoveLine is a no-op for products that are not in the cart.
func RemoveLine(store SessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, productID, ok := loadSessionLine(w, r, store, logg)
		if !ok {
			return
		}
		mutate(w, r, s, logg, func(c *cartsvc.Cart) error {
			c.RemoveLine(productID)
			return nil
		})
	}
}

func SetDiscount(store SessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := loadSession(w, r, store, logg)
		if !ok {
			return
		}
		var payload discountRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		mutate(w, r, s, logg, func(c *cartsvc.Cart) error {
			return c.SetDiscount(payload.Discount)
		})
	}
}

func ClearCart(store SessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := loadSession(w, r, store, logg)
		if !ok {
			return
		}
		mutate(w, r, s, logg, func(c *cartsvc.Cart) error {
			c.Clear()
			return nil
		})
	}
}

// Checkout commits the session's cart. The session stays locked for the
// whole commit so the cart cannot change underneath it. A replayed receipt
// is returned with 200 instead of 201.
func Checkout(store SessionStore, engine Committer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commit engine unavailable"))
			return
		}
		s, ok := loadSession(w, r, store, logg)
		if !ok {
			return
		}
		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		key := validators.SanitizeString(r.Header.Get(middleware.IdempotencyKeyHeader), 128)
		req := payload.toCommitRequest(key, s.OperatorID)

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOperatorID(logg.WithSessionID(ctx, s.ID.String()), s.OperatorID)
		}

		var receipt *sales.Receipt
		err := s.Do(func(c *cartsvc.Cart) error {
			var commitErr error
			receipt, commitErr = engine.Commit(ctx, c, req)
			return commitErr
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		status := http.StatusCreated
		if receipt.Replayed {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, receipt)
	}
}

// CloseSession discards the session and anything left in its cart.
func CloseSession(store SessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session store unavailable"))
			return
		}
		sessionID, err := validators.ParseUUIDParam(r, "sessionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := store.Close(sessionID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func mutate(w http.ResponseWriter, r *http.Request, s *sessions.Session, logg *logger.Logger, fn func(c *cartsvc.Cart) error) {
	if err := s.Do(fn); err != nil {
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithSessionID(ctx, s.ID.String())
		}
		responses.WriteError(ctx, logg, w, err)
		return
	}
	responses.WriteSuccess(w, s.View())
}

func loadSession(w http.ResponseWriter, r *http.Request, store SessionStore, logg *logger.Logger) (*sessions.Session, bool) {
	if store == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session store unavailable"))
		return nil, false
	}
	sessionID, err := validators.ParseUUIDParam(r, "sessionId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	s, err := store.Get(sessionID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	if operator := strings.TrimSpace(r.Header.Get(middleware.OperatorIDHeader)); operator != "" && s.OperatorID != "" && operator != s.OperatorID {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "session not found").
			WithDetails(map[string]any{"session_id": sessionID}))
		return nil, false
	}
	return s, true
}

func loadSessionLine(w http.ResponseWriter, r *http.Request, store SessionStore, logg *logger.Logger) (*sessions.Session, uuid.UUID, bool) {
	s, ok := loadSession(w, r, store, logg)
	if !ok {
		return nil, uuid.Nil, false
	}
	productID, err := validators.ParseUUIDParam(r, "productId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, uuid.Nil, false
	}
	return s, productID, true
}
