package cart

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tillpoint-backend/api/validators"
	"github.com/angelmondragon/tillpoint-backend/internal/catalog"
	"github.com/angelmondragon/tillpoint-backend/internal/sales"
	"github.com/angelmondragon/tillpoint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillpoint-backend/pkg/errors"
	"github.com/angelmondragon/tillpoint-backend/pkg/money"
)

type openSessionRequest struct {
	OperatorID string `json:"operator_id" validate:"max=64"`
}

// addLineRequest adds a product by id or by scanned code. Quantity defaults
// to one; a negative quantity reduces an existing line.
type addLineRequest struct {
	ProductID *uuid.UUID       `json:"product_id" validate:"required_without=Code"`
	Code      string           `json:"code" validate:"required_without=ProductID,max=64"`
	Quantity  *decimal.Decimal `json:"quantity"`
}

func (r addLineRequest) quantity() decimal.Decimal {
	if r.Quantity == nil {
		return decimal.NewFromInt(1)
	}
	return *r.Quantity
}

type setQuantityRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
}

type discountRequest struct {
	Discount decimal.Decimal `json:"discount"`
}

type checkoutRequest struct {
	PaymentMethod string           `json:"payment_method" validate:"required"`
	CashTendered  *decimal.Decimal `json:"cash_tendered"`
}

func (r checkoutRequest) toCommitRequest(idempotencyKey, operatorID string) sales.CommitRequest {
	req := sales.CommitRequest{
		// unknown methods are rejected by the engine with a validation error
		PaymentMethod:  enums.PaymentMethod(strings.ToLower(strings.TrimSpace(r.PaymentMethod))),
		CashTendered:   money.Zero,
		IdempotencyKey: idempotencyKey,
		OperatorID:     operatorID,
	}
	if r.CashTendered != nil {
		req.CashTendered = *r.CashTendered
	}
	return req
}

// ProductLookup resolves products for new cart lines.
type ProductLookup interface {
	Get(productID uuid.UUID) (catalog.Product, bool)
	FindByCode(code string) (catalog.Product, bool)
}

func resolveProduct(products ProductLookup, req addLineRequest) (catalog.Product, error) {
	if req.ProductID != nil {
		p, ok := products.Get(*req.ProductID)
		if !ok || !p.IsActive {
			return catalog.Product{}, pkgerrors.New(pkgerrors.CodeUnknownProduct, "product is not in the catalog").
				WithDetails(map[string]any{"product_id": *req.ProductID})
		}
		return p, nil
	}
	code := validators.SanitizeCode(req.Code)
	p, ok := products.FindByCode(code)
	if !ok {
		return catalog.Product{}, pkgerrors.New(pkgerrors.CodeUnknownProduct, "no active product matches the code").
			WithDetails(map[string]any{"code": code})
	}
	return p, nil
}
