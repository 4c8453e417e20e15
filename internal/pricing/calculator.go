package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tillpoint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillpoint-backend/pkg/errors"
	"github.com/angelmondragon/tillpoint-backend/pkg/money"
)

// DefaultTaxRate is the flat sales tax applied when none is configured.
var DefaultTaxRate = decimal.RequireFromString("0.10")

// Line is the pricing view of one cart line.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  decimal.Decimal
	Discount  decimal.Decimal
}

// Totals is the priced summary of a cart. Money fields are rounded to cents.
type Totals struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	Tax       decimal.Decimal `json:"tax"`
	Discount  decimal.Decimal `json:"discount"`
	Total     decimal.Decimal `json:"total"`
	ItemCount decimal.Decimal `json:"item_count"`
	LineCount int             `json:"line_count"`
}

// Calculator prices carts at a fixed tax rate. It holds no other state.
type Calculator struct {
	taxRate decimal.Decimal
}

func NewCalculator(taxRate decimal.Decimal) (*Calculator, error) {
	if taxRate.IsNegative() || taxRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("tax rate must be between 0 and 1, got %s", taxRate)
	}
	return &Calculator{taxRate: taxRate}, nil
}

func (c *Calculator) TaxRate() decimal.Decimal {
	return c.taxRate
}

// Totals computes subtotal, tax and total for lines with a cart-level discount.
// Line totals are summed at full precision; tax is taken on the unrounded
// subtotal and both are rounded half-up to cents.
// The discount must lie in [0, subtotal+tax], otherwise INVALID_DISCOUNT.
func (c *Calculator) Totals(lines []Line, discount decimal.Decimal) (Totals, error) {
	full := money.Zero
	items := money.Zero
	for _, line := range lines {
		full = full.Add(money.LineTotal(line.UnitPrice, line.Quantity, line.Discount))
		items = items.Add(line.Quantity)
	}

	subtotal := money.RoundCurrency(full)
	tax := money.RoundCurrency(full.Mul(c.taxRate))
	discount = money.RoundCurrency(discount)

	ceiling := subtotal.Add(tax)
	if discount.IsNegative() {
		return Totals{}, pkgerrors.New(pkgerrors.CodeInvalidDiscount, "discount cannot be negative").
			WithDetails(map[string]any{"discount": money.Format(discount)})
	}
	if discount.GreaterThan(ceiling) {
		return Totals{}, pkgerrors.New(pkgerrors.CodeInvalidDiscount, "discount exceeds subtotal plus tax").
			WithDetails(map[string]any{"discount": money.Format(discount), "maximum": money.Format(ceiling)})
	}

	return Totals{
		Subtotal:  subtotal,
		Tax:       tax,
		Discount:  discount,
		Total:     ceiling.Sub(discount),
		ItemCount: items,
		LineCount: len(lines),
	}, nil
}

// ChangeDue is what the till hands back: tendered minus total for cash, zero otherwise.
func ChangeDue(method enums.PaymentMethod, tendered, total decimal.Decimal) decimal.Decimal {
	if method != enums.PaymentMethodCash {
		return money.Zero
	}
	return money.RoundCurrency(tendered.Sub(total))
}
