package sales

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tillpoint-backend/api/responses"
	"github.com/angelmondragon/tillpoint-backend/api/validators"
	salessvc "github.com/angelmondragon/tillpoint-backend/internal/sales"
	"github.com/angelmondragon/tillpoint-backend/pkg/db/models"
	"github.com/angelmondragon/tillpoint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillpoint-backend/pkg/errors"
	"github.com/angelmondragon/tillpoint-backend/pkg/logger"
	"github.com/angelmondragon/tillpoint-backend/pkg/pagination"
)

type Reader interface {
	ListSales(ctx context.Context, filter salessvc.SaleFilter) (*salessvc.SalePage, error)
	GetSale(ctx context.Context, saleID uuid.UUID) (*models.Sale, error)
}

type Voider interface {
	Void(ctx context.Context, saleID uuid.UUID, reason string) (*salessvc.VoidResult, error)
}

type saleSummary struct {
	ID            uuid.UUID           `json:"id"`
	SaleNumber    string              `json:"sale_number"`
	SoldAt        time.Time           `json:"sold_at"`
	Subtotal      decimal.Decimal     `json:"subtotal"`
	Tax           decimal.Decimal     `json:"tax"`
	Discount      decimal.Decimal     `json:"discount"`
	Total         decimal.Decimal     `json:"total"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	IsVoided      bool                `json:"is_voided"`
	VoidedAt      *time.Time          `json:"voided_at,omitempty"`
}

type salePage struct {
	Sales      []saleSummary `json:"sales"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// saleDetail is the receipt of a sale plus its void state.
type saleDetail struct {
	*salessvc.Receipt
	OperatorID string     `json:"operator_id,omitempty"`
	IsVoided   bool       `json:"is_voided"`
	VoidedAt   *time.Time `json:"voided_at,omitempty"`
	VoidReason string     `json:"void_reason,omitempty"`
}

type voidRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

func newSaleSummary(s models.Sale) saleSummary {
	return saleSummary{
		ID:            s.ID,
		SaleNumber:    s.SaleNumber,
		SoldAt:        s.SoldAt.UTC(),
		Subtotal:      s.Subtotal,
		Tax:           s.Tax,
		Discount:      s.Discount,
		Total:         s.Total,
		PaymentMethod: s.PaymentMethod,
		IsVoided:      s.IsVoided,
		VoidedAt:      s.VoidedAt,
	}
}

func newSaleDetail(s *models.Sale) saleDetail {
	d := saleDetail{
		Receipt:  salessvc.ReceiptFromSale(s),
		IsVoided: s.IsVoided,
		VoidedAt: s.VoidedAt,
	}
	if s.OperatorID != nil {
		d.OperatorID = *s.OperatorID
	}
	if s.VoidReason != nil {
		d.VoidReason = *s.VoidReason
	}
	return d
}

// List pages through sales in [from, to), newest first.
func List(repo Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales repository unavailable"))
			return
		}
		from, err := validators.ParseQueryTime(r, "from")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := validators.ParseQueryTime(r, "to")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		includeVoided := false
		if raw := strings.TrimSpace(r.URL.Query().Get("include_voided")); raw != "" {
			includeVoided, err = strconv.ParseBool(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "include_voided must be a boolean"))
				return
			}
		}

		page, err := repo.ListSales(r.Context(), salessvc.SaleFilter{
			From:          from,
			To:            to,
			IncludeVoided: includeVoided,
			Limit:         limit,
			Cursor:        strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := salePage{Sales: make([]saleSummary, 0, len(page.Sales)), NextCursor: page.NextCursor}
		for _, s := range page.Sales {
			out.Sales = append(out.Sales, newSaleSummary(s))
		}
		responses.WriteSuccess(w, out)
	}
}

func Get(repo Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales repository unavailable"))
			return
		}
		saleID, err := validators.ParseUUIDParam(r, "saleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sale, err := repo.GetSale(r.Context(), saleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSaleDetail(sale))
	}
}

// Void reverses a sale and restocks its items.
func Void(engine Voider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commit engine unavailable"))
			return
		}
		saleID, err := validators.ParseUUIDParam(r, "saleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload voidRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := engine.Void(r.Context(), saleID, validators.SanitizeString(payload.Reason, 255))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
