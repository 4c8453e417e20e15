package reports

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tillpoint-backend/pkg/db/models"
	"github.com/angelmondragon/tillpoint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillpoint-backend/pkg/errors"
	"github.com/angelmondragon/tillpoint-backend/pkg/money"
)

// maxRange keeps a single summary request bounded.
const maxRange = 366 * 24 * time.Hour

type salesLoader interface {
	SalesBetween(ctx context.Context, from, to time.Time) ([]models.Sale, error)
}

// SaleRow is one line of the sales report.
type SaleRow struct {
	SaleID        uuid.UUID           `json:"sale_id"`
	SaleNumber    string              `json:"sale_number"`
	SoldAt        time.Time           `json:"sold_at"`
	ItemCount     decimal.Decimal     `json:"item_count"`
	Subtotal      decimal.Decimal     `json:"subtotal"`
	Tax           decimal.Decimal     `json:"tax"`
	Discount      decimal.Decimal     `json:"discount"`
	Total         decimal.Decimal     `json:"total"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
}

// MethodTotal aggregates sales settled with one payment method.
type MethodTotal struct {
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Transactions  int64               `json:"transactions"`
	Total         decimal.Decimal     `json:"total"`
}

// Summary covers non-voided sales in [From, To).
type Summary struct {
	From            time.Time       `json:"from"`
	To              time.Time       `json:"to"`
	TotalSales      decimal.Decimal `json:"total_sales"`
	Transactions    int64           `json:"transactions"`
	AverageSale     decimal.Decimal `json:"average_sale"`
	EstimatedProfit decimal.Decimal `json:"estimated_profit"`
	ItemsSold       decimal.Decimal `json:"items_sold"`
	ByPaymentMethod []MethodTotal   `json:"by_payment_method"`
	Sales           []SaleRow       `json:"sales"`
}

type Service struct {
	sales salesLoader
}

func NewService(sales salesLoader) (*Service, error) {
	if sales == nil {
		return nil, fmt.Errorf("sales loader required")
	}
	return &Service{sales: sales}, nil
}

// Summary totals the period. Profit is the sum of line totals minus the cost
// price snapshot of every sold item; cart-level discounts are not spread
// across lines.
func (s *Service) Summary(ctx context.Context, from, to time.Time) (*Summary, error) {
	if from.IsZero() || to.IsZero() || !from.Before(to) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
	}
	if to.Sub(from) > maxRange {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "report range is limited to one year")
	}

	sales, err := s.sales.SalesBetween(ctx, from, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to load sales")
	}

	out := &Summary{
		From:            from.UTC(),
		To:              to.UTC(),
		TotalSales:      money.Zero,
		EstimatedProfit: money.Zero,
		ItemsSold:       money.Zero,
		ByPaymentMethod: []MethodTotal{},
		Sales:           make([]SaleRow, 0, len(sales)),
	}
	byMethod := map[enums.PaymentMethod]*MethodTotal{}
	for _, sale := range sales {
		items := money.Zero
		for _, item := range sale.Items {
			items = items.Add(item.Quantity)
			cost := money.Mul(item.CostPrice, item.Quantity)
			out.EstimatedProfit = out.EstimatedProfit.Add(item.LineTotal.Sub(cost))
		}
		out.ItemsSold = out.ItemsSold.Add(items)
		out.TotalSales = out.TotalSales.Add(sale.Total)
		out.Transactions++

		mt, ok := byMethod[sale.PaymentMethod]
		if !ok {
			mt = &MethodTotal{PaymentMethod: sale.PaymentMethod, Total: money.Zero}
			byMethod[sale.PaymentMethod] = mt
		}
		mt.Transactions++
		mt.Total = mt.Total.Add(sale.Total)

		out.Sales = append(out.Sales, SaleRow{
			SaleID:        sale.ID,
			SaleNumber:    sale.SaleNumber,
			SoldAt:        sale.SoldAt.UTC(),
			ItemCount:     items,
			Subtotal:      sale.Subtotal,
			Tax:           sale.Tax,
			Discount:      sale.Discount,
			Total:         sale.Total,
			PaymentMethod: sale.PaymentMethod,
		})
	}

	out.TotalSales = money.RoundCurrency(out.TotalSales)
	out.EstimatedProfit = money.RoundCurrency(out.EstimatedProfit)
	out.AverageSale = money.Average(out.TotalSales, out.Transactions)
	for _, mt := range byMethod {
		mt.Total = money.RoundCurrency(mt.Total)
		out.ByPaymentMethod = append(out.ByPaymentMethod, *mt)
	}
	sort.Slice(out.ByPaymentMethod, func(i, j int) bool {
		return out.ByPaymentMethod[i].PaymentMethod < out.ByPaymentMethod[j].PaymentMethod
	})
	return out, nil
}
