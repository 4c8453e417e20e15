package sales

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tillpoint-backend/internal/pricing"
	"github.com/angelmondragon/tillpoint-backend/pkg/db/models"
	"github.com/angelmondragon/tillpoint-backend/pkg/enums"
	"github.com/angelmondragon/tillpoint-backend/pkg/money"
)

// CommitRequest carries the tender details of a checkout.
type CommitRequest struct {
	PaymentMethod enums.PaymentMethod
	// CashTendered is required for cash and ignored otherwise.
	CashTendered   decimal.Decimal
	IdempotencyKey string
	OperatorID     string
}

type ReceiptLine struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// StockWarning reports a product left below zero by an allow_negative commit.
type StockWarning struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Resulting   decimal.Decimal `json:"resulting_quantity"`
}

type Receipt struct {
	SaleID        uuid.UUID           `json:"sale_id"`
	SaleNumber    string              `json:"sale_number"`
	SoldAt        time.Time           `json:"sold_at"`
	Totals        pricing.Totals      `json:"totals"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	CashTendered  *decimal.Decimal    `json:"cash_tendered,omitempty"`
	ChangeDue     decimal.Decimal     `json:"change_due"`
	Lines         []ReceiptLine       `json:"lines"`
	StockWarnings []StockWarning      `json:"stock_warnings,omitempty"`
	// State is the final commit state behind this receipt.
	State enums.CommitState `json:"state"`
	// Replayed is set when an earlier commit with the same idempotency key is returned.
	Replayed bool `json:"replayed"`
}

// ReceiptFromSale rebuilds a receipt from a persisted sale and its items.
func ReceiptFromSale(sale *models.Sale) *Receipt {
	r := &Receipt{
		SaleID:        sale.ID,
		SaleNumber:    sale.SaleNumber,
		SoldAt:        sale.SoldAt.UTC(),
		PaymentMethod: sale.PaymentMethod,
		ChangeDue:     sale.ChangeDue,
		Totals: pricing.Totals{
			Subtotal:  sale.Subtotal,
			Tax:       sale.Tax,
			Discount:  sale.Discount,
			Total:     sale.Total,
			ItemCount: money.Zero,
			LineCount: len(sale.Items),
		},
		Lines: make([]ReceiptLine, 0, len(sale.Items)),
	}
	if sale.CashTendered.Valid {
		tendered := sale.CashTendered.Decimal
		r.CashTendered = &tendered
	}
	for _, item := range sale.Items {
		r.Totals.ItemCount = r.Totals.ItemCount.Add(item.Quantity)
		r.Lines = append(r.Lines, ReceiptLine{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Discount:    item.Discount,
			LineTotal:   item.LineTotal,
		})
	}
	return r
}

// VoidResult is returned by Engine.Void.
type VoidResult struct {
	SaleID     uuid.UUID         `json:"sale_id"`
	SaleNumber string            `json:"sale_number"`
	VoidedAt   time.Time         `json:"voided_at"`
	Restocked  []InventoryChange `json:"-"`
}

// AdjustResult is returned by Engine.Adjust.
type AdjustResult struct {
	ProductID uuid.UUID       `json:"product_id"`
	Previous  decimal.Decimal `json:"previous_quantity"`
	Delta     decimal.Decimal `json:"delta"`
	Resulting decimal.Decimal `json:"resulting_quantity"`
	Reason    string          `json:"reason"`
	Negative  bool            `json:"negative"`
}
