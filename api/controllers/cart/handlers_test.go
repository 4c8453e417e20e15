package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tillpoint-backend/api/middleware"
	cartsvc "github.com/angelmondragon/tillpoint-backend/internal/cart"
	"github.com/angelmondragon/tillpoint-backend/internal/pricing"
	"github.com/angelmondragon/tillpoint-backend/internal/sales"
	"github.com/angelmondragon/tillpoint-backend/internal/sessions"
	"github.com/angelmondragon/tillpoint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillpoint-backend/pkg/errors"
)

type stubCommitter struct {
	receipt *sales.Receipt
	err     error
	last    sales.CommitRequest
}

func (s *stubCommitter) Commit(_ context.Context, _ *cartsvc.Cart, req sales.CommitRequest) (*sales.Receipt, error) {
	s.last = req
	return s.receipt, s.err
}

func newRegistry(t *testing.T) *sessions.Registry {
	t.Helper()
	calc, err := pricing.NewCalculator(pricing.DefaultTaxRate)
	require.NoError(t, err)
	reg, err := sessions.NewRegistry(calc, 3)
	require.NoError(t, err)
	return reg
}

func withSession(req *http.Request, id uuid.UUID) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("sessionId", id.String())
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestCheckoutPassesTenderAndKey(t *testing.T) {
	reg := newRegistry(t)
	s := reg.Open("op-1")
	engine := &stubCommitter{receipt: &sales.Receipt{SaleNumber: "SALE-1"}}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"payment_method":" CASH ","cash_tendered":"20.00"}`))
	req.Header.Set(middleware.IdempotencyKeyHeader, "key-1")
	resp := httptest.NewRecorder()
	Checkout(reg, engine, nil).ServeHTTP(resp, withSession(req, s.ID))

	require.Equal(t, http.StatusCreated, resp.Code)
	require.Equal(t, enums.PaymentMethodCash, engine.last.PaymentMethod)
	require.Equal(t, "20", engine.last.CashTendered.String())
	require.Equal(t, "key-1", engine.last.IdempotencyKey)
	require.Equal(t, "op-1", engine.last.OperatorID)
}

func TestCheckoutReplayReturnsOK(t *testing.T) {
	reg := newRegistry(t)
	s := reg.Open("")
	engine := &stubCommitter{receipt: &sales.Receipt{SaleNumber: "SALE-1", Replayed: true}}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"payment_method":"card"}`))
	resp := httptest.NewRecorder()
	Checkout(reg, engine, nil).ServeHTTP(resp, withSession(req, s.ID))

	require.Equal(t, http.StatusOK, resp.Code)
	require.True(t, engine.last.CashTendered.IsZero())
}

func TestCheckoutSurfacesEngineError(t *testing.T) {
	reg := newRegistry(t)
	s := reg.Open("")
	engine := &stubCommitter{err: pkgerrors.New(pkgerrors.CodeContention, "busy")}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"payment_method":"card"}`))
	resp := httptest.NewRecorder()
	Checkout(reg, engine, nil).ServeHTTP(resp, withSession(req, s.ID))

	require.Equal(t, http.StatusConflict, resp.Code)
	var payload struct {
		Error struct {
			Code      string `json:"code"`
			Retryable bool   `json:"retryable"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	require.Equal(t, "CONTENTION", payload.Error.Code)
	require.True(t, payload.Error.Retryable)
}

func TestSessionHiddenFromOtherOperator(t *testing.T) {
	reg := newRegistry(t)
	s := reg.Open("op-1")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.OperatorIDHeader, "op-2")
	resp := httptest.NewRecorder()
	GetCart(reg, nil).ServeHTTP(resp, withSession(req, s.ID))
	require.Equal(t, http.StatusNotFound, resp.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.OperatorIDHeader, "op-1")
	resp = httptest.NewRecorder()
	GetCart(reg, nil).ServeHTTP(resp, withSession(req, s.ID))
	require.Equal(t, http.StatusOK, resp.Code)
}

func TestOpenSessionUsesOperatorHeader(t *testing.T) {
	reg := newRegistry(t)
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(middleware.OperatorIDHeader, "op-9")
	resp := httptest.NewRecorder()
	OpenSession(reg, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	var payload struct {
		Data struct {
			SessionID  uuid.UUID `json:"session_id"`
			OperatorID string    `json:"operator_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	require.Equal(t, "op-9", payload.Data.OperatorID)
	_, err := reg.Get(payload.Data.SessionID)
	require.NoError(t, err)
}
