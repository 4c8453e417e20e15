package cart

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tillpoint-backend/internal/pricing"
	pkgerrors "github.com/angelmondragon/tillpoint-backend/pkg/errors"
	"github.com/angelmondragon/tillpoint-backend/pkg/money"
)

// Line is one product in the cart. Name and UnitPrice are snapshots taken
// when the product was first added.
type Line struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Discount  decimal.Decimal `json:"discount"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Cart is an operator's in-progress sale. It is not safe for concurrent use;
// callers serialize access per session.
type Cart struct {
	calc           *pricing.Calculator
	quantityPlaces int32

	lines    []Line
	discount decimal.Decimal
	totals   pricing.Totals
}

// New returns an empty cart priced by calc. quantityPlaces bounds the
// fractional digits accepted for quantities; zero means whole units and
// values past what the store keeps are lowered to it.
func New(calc *pricing.Calculator, quantityPlaces int32) *Cart {
	switch {
	case quantityPlaces < 0:
		quantityPlaces = money.DefaultQuantityPlaces
	case quantityPlaces > money.MaxQuantityPlaces:
		quantityPlaces = money.MaxQuantityPlaces
	}
	c := &Cart{calc: calc, quantityPlaces: quantityPlaces, discount: money.Zero}
	c.totals, _ = calc.Totals(nil, money.Zero)
	return c
}

// AddLine adds delta of a product. An existing line is merged and must stay
// positive; a new line needs a positive delta.
func (c *Cart) AddLine(productID uuid.UUID, name string, unitPrice, delta decimal.Decimal) error {
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnknownProduct, "product id is required")
	}
	if unitPrice.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unit price cannot be negative").
			WithDetails(map[string]any{"product_id": productID})
	}
	if err := c.checkPrecision(productID, delta); err != nil {
		return err
	}

	next := c.cloneLines()
	if idx := indexOf(next, productID); idx >= 0 {
		qty := next[idx].Quantity.Add(delta)
		if !qty.IsPositive() {
			return invalidQuantity(productID, qty, "resulting quantity must be positive")
		}
		if next[idx].Discount.GreaterThan(next[idx].UnitPrice.Mul(qty)) {
			return pkgerrors.New(pkgerrors.CodeInvalidDiscount, "line discount exceeds the reduced line value").
				WithDetails(map[string]any{"product_id": productID})
		}
		next[idx].Quantity = qty
	} else {
		if !delta.IsPositive() {
			return invalidQuantity(productID, delta, "quantity must be positive")
		}
		next = append(next, Line{
			ProductID: productID,
			Name:      strings.TrimSpace(name),
			UnitPrice: money.RoundCurrency(unitPrice),
			Quantity:  delta,
			Discount:  money.Zero,
		})
	}
	return c.apply(next, c.discount)
}

// RemoveLine drops the product's line. Unknown products are ignored. If the
// cart discount no longer fits under the smaller total it is capped.
func (c *Cart) RemoveLine(productID uuid.UUID) {
	idx := indexOf(c.lines, productID)
	if idx < 0 {
		return
	}
	next := c.cloneLines()
	next = append(next[:idx], next[idx+1:]...)
	if err := c.apply(next, c.discount); err != nil {
		capped := c.cappedDiscount(next)
		_ = c.apply(next, capped)
	}
}

// SetQuantity replaces the quantity of an existing line.
func (c *Cart) SetQuantity(productID uuid.UUID, quantity decimal.Decimal) error {
	idx := indexOf(c.lines, productID)
	if idx < 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidQuantity, "product is not in the cart").
			WithDetails(map[string]any{"product_id": productID})
	}
	if !quantity.IsPositive() {
		return invalidQuantity(productID, quantity, "quantity must be positive")
	}
	if err := c.checkPrecision(productID, quantity); err != nil {
		return err
	}
	next := c.cloneLines()
	if next[idx].Discount.GreaterThan(next[idx].UnitPrice.Mul(quantity)) {
		return pkgerrors.New(pkgerrors.CodeInvalidDiscount, "line discount exceeds the reduced line value").
			WithDetails(map[string]any{"product_id": productID})
	}
	next[idx].Quantity = quantity
	return c.apply(next, c.discount)
}

// SetLineDiscount sets a money discount on one line, bounded by the line's gross value.
func (c *Cart) SetLineDiscount(productID uuid.UUID, discount decimal.Decimal) error {
	idx := indexOf(c.lines, productID)
	if idx < 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidDiscount, "product is not in the cart").
			WithDetails(map[string]any{"product_id": productID})
	}
	if err := money.CheckAmount(discount); err != nil {
		return invalidDiscount(discount, err)
	}
	gross := c.lines[idx].UnitPrice.Mul(c.lines[idx].Quantity)
	if discount.IsNegative() || discount.GreaterThan(gross) {
		return pkgerrors.New(pkgerrors.CodeInvalidDiscount, "line discount must be between zero and the line value").
			WithDetails(map[string]any{"product_id": productID, "maximum": money.Format(gross)})
	}
	next := c.cloneLines()
	next[idx].Discount = discount
	return c.apply(next, c.discount)
}

// SetDiscount sets the cart-level money discount.
func (c *Cart) SetDiscount(amount decimal.Decimal) error {
	if err := money.CheckAmount(amount); err != nil {
		return invalidDiscount(amount, err)
	}
	return c.apply(c.cloneLines(), amount)
}

// Clear empties the cart and resets the discount.
func (c *Cart) Clear() {
	c.lines = nil
	c.discount = money.Zero
	c.totals, _ = c.calc.Totals(nil, money.Zero)
}

// SnapshotTotals returns the totals computed by the last mutation.
func (c *Cart) SnapshotTotals() pricing.Totals {
	return c.totals
}

// Lines returns a copy of the cart lines in insertion order.
func (c *Cart) Lines() []Line {
	return c.cloneLines()
}

func (c *Cart) Discount() decimal.Decimal {
	return c.discount
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// PricingLines adapts the cart to the calculator's input.
func (c *Cart) PricingLines() []pricing.Line {
	return toPricing(c.lines)
}

// apply prices the candidate state and only then swaps it in, so a failed
// mutation leaves the cart exactly as it was.
func (c *Cart) apply(next []Line, discount decimal.Decimal) error {
	totals, err := c.calc.Totals(toPricing(next), discount)
	if err != nil {
		return err
	}
	for i := range next {
		next[i].LineTotal = money.LineTotal(next[i].UnitPrice, next[i].Quantity, next[i].Discount)
	}
	c.lines = next
	c.discount = totals.Discount
	c.totals = totals
	return nil
}

func (c *Cart) cappedDiscount(lines []Line) decimal.Decimal {
	totals, err := c.calc.Totals(toPricing(lines), money.Zero)
	if err != nil {
		return money.Zero
	}
	return decimal.Min(c.discount, totals.Subtotal.Add(totals.Tax))
}

func (c *Cart) checkPrecision(productID uuid.UUID, qty decimal.Decimal) error {
	if err := money.CheckPlaces(qty, c.quantityPlaces); err != nil {
		return invalidQuantity(productID, qty, "quantity has too many decimal places")
	}
	return nil
}

func (c *Cart) cloneLines() []Line {
	if len(c.lines) == 0 {
		return nil
	}
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

func toPricing(lines []Line) []pricing.Line {
	out := make([]pricing.Line, len(lines))
	for i, line := range lines {
		out[i] = pricing.Line{UnitPrice: line.UnitPrice, Quantity: line.Quantity, Discount: line.Discount}
	}
	return out
}

func indexOf(lines []Line, productID uuid.UUID) int {
	for i, line := range lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

func invalidQuantity(productID uuid.UUID, qty decimal.Decimal, msg string) error {
	return pkgerrors.New(pkgerrors.CodeInvalidQuantity, msg).
		WithDetails(map[string]any{"product_id": productID, "quantity": qty.String()})
}

func invalidDiscount(amount decimal.Decimal, err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeInvalidDiscount, err, "discount has too many decimal places").
		WithDetails(map[string]any{"discount": amount.String()})
}
