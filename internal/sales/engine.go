package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tillpoint-backend/internal/cart"
	"github.com/angelmondragon/tillpoint-backend/internal/catalog"
	"github.com/angelmondragon/tillpoint-backend/internal/pricing"
	"github.com/angelmondragon/tillpoint-backend/pkg/db/models"
	"github.com/angelmondragon/tillpoint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillpoint-backend/pkg/errors"
	"github.com/angelmondragon/tillpoint-backend/pkg/logger"
	"github.com/angelmondragon/tillpoint-backend/pkg/metrics"
	"github.com/angelmondragon/tillpoint-backend/pkg/money"
)

const (
	OperationCommit = "commit"
	OperationVoid   = "void"
	OperationAdjust = "adjust"

	retryVersionConflict = "version_conflict"
	retryIdempotencyRace = "idempotency_race"
	retrySaleNumberTaken = "sale_number_taken"
)

// Config bounds the engine's retries and waits.
type Config struct {
	StockPolicy           enums.StockPolicy
	MaxIdentifierAttempts int
	MaxContentionRetries  int
	LockTimeout           time.Duration
	UnitTimeout           time.Duration
	// QuantityPlaces bounds fractional digits of sold and adjusted
	// quantities. Zero means whole units; negative selects the default.
	QuantityPlaces int32
}

func (c Config) withDefaults() Config {
	if !c.StockPolicy.IsValid() {
		c.StockPolicy = enums.StockPolicyAllowNegative
	}
	if c.MaxIdentifierAttempts <= 0 {
		c.MaxIdentifierAttempts = 5
	}
	if c.MaxContentionRetries < 0 {
		c.MaxContentionRetries = 0
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 2 * time.Second
	}
	if c.UnitTimeout <= 0 {
		c.UnitTimeout = 10 * time.Second
	}
	if c.QuantityPlaces < 0 {
		c.QuantityPlaces = money.DefaultQuantityPlaces
	}
	return c
}

// CatalogCache is the part of the catalog cache the engine reads and refreshes.
type CatalogCache interface {
	Get(productID uuid.UUID) (catalog.Product, bool)
	ApplyCommit(ctx context.Context, adjustments []catalog.Adjustment) error
}

// Engine is the only writer of sales and quantity on hand. It validates a
// cart, persists the sale and its inventory movements in one unit, then
// refreshes the catalog cache.
type Engine struct {
	store    Store
	cache    CatalogCache
	calc     *pricing.Calculator
	seq      SequenceSource
	fallback *LocalSequence
	locks    *productLocks
	cfg      Config
	logg     *logger.Logger
	metrics  *metrics.CommitMetrics
	now      func() time.Time
}

// NewEngine wires the engine. seq may be nil, in which case sale numbers come
// from an in-process counter. m may be nil.
func NewEngine(
	store Store,
	cache CatalogCache,
	calc *pricing.Calculator,
	seq SequenceSource,
	cfg Config,
	logg *logger.Logger,
	m *metrics.CommitMetrics,
) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("sale store required")
	}
	if cache == nil {
		return nil, fmt.Errorf("catalog cache required")
	}
	if calc == nil {
		return nil, fmt.Errorf("pricing calculator required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.QuantityPlaces > money.MaxQuantityPlaces {
		return nil, fmt.Errorf("quantity places %d exceed the stored precision of %d", cfg.QuantityPlaces, money.MaxQuantityPlaces)
	}
	fallback := &LocalSequence{}
	if seq == nil {
		seq = fallback
	}
	return &Engine{
		store:    store,
		cache:    cache,
		calc:     calc,
		seq:      seq,
		fallback: fallback,
		locks:    newProductLocks(),
		cfg:      cfg.withDefaults(),
		logg:     logg,
		metrics:  m,
		now:      time.Now,
	}, nil
}

// commitAttempt walks one checkout through the commit states.
type commitAttempt struct {
	state enums.CommitState
}

func (a *commitAttempt) advance(next enums.CommitState) error {
	if !a.state.CanTransitionTo(next) {
		return fmt.Errorf("commit state %s cannot move to %s", a.state, next)
	}
	a.state = next
	return nil
}

// saleDraft is the validated, priced content of a cart.
type saleDraft struct {
	req    CommitRequest
	totals pricing.Totals
	lines  []cart.Line
	costs  map[uuid.UUID]decimal.Decimal
	// per product quantities in first-seen order
	productIDs []uuid.UUID
	quantities map[uuid.UUID]decimal.Decimal
	names      map[uuid.UUID]string
	soldAt     time.Time
}

// Commit turns the cart into a sale. On success the cart is cleared and the
// cache reflects the new quantities before Commit returns. On failure the
// cart and cache are left untouched.
func (e *Engine) Commit(ctx context.Context, c *cart.Cart, req CommitRequest) (*Receipt, error) {
	start := time.Now()
	attempt := &commitAttempt{state: enums.CommitStateIdle}
	receipt, err := e.commit(ctx, c, req, attempt)
	if err != nil {
		failedIn := attempt.state
		if stateErr := attempt.advance(enums.CommitStateFailed); stateErr != nil {
			e.logg.Error(ctx, "commit state", stateErr)
		}
		fields := map[string]any{
			"commit_state": attempt.state.String(),
			"failed_in":    failedIn.String(),
		}
		if typed := pkgerrors.As(err); typed != nil {
			fields["code"] = string(typed.Code())
		}
		e.logg.Info(e.logg.WithFields(ctx, fields), "commit failed")
	}
	e.metrics.Observe(OperationCommit, outcomeOf(err), time.Since(start))
	return receipt, err
}

func (e *Engine) commit(ctx context.Context, c *cart.Cart, req CommitRequest, attempt *commitAttempt) (*Receipt, error) {
	ctx = e.logg.WithOperatorID(ctx, req.OperatorID)

	if err := attempt.advance(enums.CommitStateValidating); err != nil {
		return nil, err
	}
	// A retried request whose first attempt committed may arrive after the
	// cart was cleared, so the key is looked up before the cart is judged.
	if req.IdempotencyKey != "" {
		existing, err := e.findByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return e.replay(ctx, c, existing), nil
		}
	}

	draft, err := e.validate(c, req)
	if err != nil {
		return nil, err
	}

	release, err := e.locks.acquire(ctx, draft.productIDs, e.cfg.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := attempt.advance(enums.CommitStatePersisting); err != nil {
		return nil, err
	}
	var (
		sale     *models.Sale
		replayed *models.Sale
		changes  []InventoryChange
	)
	identifierAttempts := 0
	err = e.runUnit(ctx, OperationCommit, func(ctx context.Context, u UnitStore) error {
		sale, replayed, changes = nil, nil, nil
		if req.IdempotencyKey != "" {
			existing, err := u.FindSaleByIdempotencyKey(ctx, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				replayed = existing
				return nil
			}
		}

		number, err := e.reserveSaleNumber(ctx, u, draft.soldAt, &identifierAttempts)
		if err != nil {
			return err
		}
		candidate, items := draft.build(number)
		if err := u.InsertSale(ctx, candidate, items); err != nil {
			return err
		}

		for _, productID := range draft.productIDs {
			change, err := u.AdjustInventory(ctx, productID, draft.quantities[productID].Neg(), AdjustOptions{
				RejectNegative: e.cfg.StockPolicy == enums.StockPolicyStrict,
				At:             draft.soldAt,
			})
			if err != nil {
				return err
			}
			changes = append(changes, change)
		}
		sale = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	if replayed != nil {
		return e.replay(ctx, c, replayed), nil
	}
	if err := attempt.advance(enums.CommitStateCommitted); err != nil {
		return nil, err
	}

	ctx = e.logg.WithSaleNumber(ctx, sale.SaleNumber)
	e.refreshCache(ctx, changes, nil)

	receipt := ReceiptFromSale(sale)
	receipt.Totals = draft.totals
	receipt.State = attempt.state
	receipt.StockWarnings = e.stockWarnings(ctx, changes, draft.names)
	c.Clear()

	e.logg.Info(ctx, "sale committed")
	return receipt, nil
}

func (e *Engine) validate(c *cart.Cart, req CommitRequest) (*saleDraft, error) {
	if c == nil || c.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}
	if !req.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method").
			WithDetails(map[string]any{"payment_method": string(req.PaymentMethod)})
	}
	if err := money.CheckAmount(req.CashTendered); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "cash tendered has too many decimal places").
			WithDetails(map[string]any{"cash_tendered": req.CashTendered.String()})
	}

	lines := c.Lines()
	draft := &saleDraft{
		req:        req,
		lines:      lines,
		costs:      make(map[uuid.UUID]decimal.Decimal, len(lines)),
		quantities: make(map[uuid.UUID]decimal.Decimal, len(lines)),
		names:      make(map[uuid.UUID]string, len(lines)),
		soldAt:     e.now().UTC().Truncate(time.Microsecond),
	}
	for _, line := range lines {
		if err := money.CheckPlaces(line.Quantity, e.cfg.QuantityPlaces); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidQuantity, err, "quantity has too many decimal places").
				WithDetails(map[string]any{"product_id": line.ProductID, "quantity": line.Quantity.String()})
		}
		product, ok := e.cache.Get(line.ProductID)
		if !ok || !product.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeUnknownProduct, "product is not available for sale").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
		draft.costs[line.ProductID] = product.CostPrice
		draft.names[line.ProductID] = line.Name
		if qty, seen := draft.quantities[line.ProductID]; seen {
			draft.quantities[line.ProductID] = qty.Add(line.Quantity)
			continue
		}
		draft.productIDs = append(draft.productIDs, line.ProductID)
		draft.quantities[line.ProductID] = line.Quantity
	}

	totals, err := e.calc.Totals(c.PricingLines(), c.Discount())
	if err != nil {
		return nil, err
	}
	draft.totals = totals

	if req.PaymentMethod.RequiresTender() && req.CashTendered.LessThan(totals.Total) {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientPayment, "cash tendered is less than the total").
			WithDetails(map[string]any{
				"total":    money.Format(totals.Total),
				"tendered": money.Format(req.CashTendered),
			})
	}
	return draft, nil
}

// build returns fresh rows for one attempt of the unit.
func (d *saleDraft) build(number string) (*models.Sale, []models.SaleItem) {
	sale := &models.Sale{
		SaleNumber:    number,
		SoldAt:        d.soldAt,
		Subtotal:      d.totals.Subtotal,
		Tax:           d.totals.Tax,
		Discount:      d.totals.Discount,
		Total:         d.totals.Total,
		PaymentMethod: d.req.PaymentMethod,
		ChangeDue:     pricing.ChangeDue(d.req.PaymentMethod, d.req.CashTendered, d.totals.Total),
	}
	if d.req.PaymentMethod.RequiresTender() {
		sale.CashTendered = decimal.NewNullDecimal(money.RoundCurrency(d.req.CashTendered))
	}
	if d.req.OperatorID != "" {
		operator := d.req.OperatorID
		sale.OperatorID = &operator
	}
	if d.req.IdempotencyKey != "" {
		key := d.req.IdempotencyKey
		sale.IdempotencyKey = &key
	}

	items := make([]models.SaleItem, 0, len(d.lines))
	for i, line := range d.lines {
		items = append(items, models.SaleItem{
			ProductID:   line.ProductID,
			LineNo:      i + 1,
			ProductName: line.Name,
			Quantity:    line.Quantity,
			UnitPrice:   money.RoundCurrency(line.UnitPrice),
			CostPrice:   money.RoundCurrency(d.costs[line.ProductID]),
			Discount:    money.RoundCurrency(line.Discount),
			LineTotal:   money.RoundCurrency(line.LineTotal),
		})
	}
	return sale, items
}

// reserveSaleNumber draws candidates until one is free. used counts draws
// across every attempt of the same commit.
func (e *Engine) reserveSaleNumber(ctx context.Context, u UnitStore, at time.Time, used *int) (string, error) {
	for *used < e.cfg.MaxIdentifierAttempts {
		*used++
		number := FormatSaleNumber(at, e.nextSequence(ctx, at))
		existing, err := u.FindSaleByNumber(ctx, number)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return number, nil
		}
		e.logg.WarnFields(ctx, "sale number already taken", map[string]any{"sale_number": number})
	}
	return "", pkgerrors.New(pkgerrors.CodeIdentifierExhausted, "could not reserve a sale number").
		WithDetails(map[string]any{"attempts": *used})
}

func (e *Engine) nextSequence(ctx context.Context, at time.Time) int64 {
	seq, err := e.seq.NextSaleSequence(ctx, at)
	if err == nil {
		return seq
	}
	e.logg.WarnFields(ctx, "sale sequence unavailable, using local counter", map[string]any{"error": err.Error()})
	seq, _ = e.fallback.NextSaleSequence(ctx, at)
	return seq
}

func (e *Engine) findByIdempotencyKey(ctx context.Context, key string) (*models.Sale, error) {
	var found *models.Sale
	err := e.store.WithinUnit(ctx, func(u UnitStore) error {
		sale, err := u.FindSaleByIdempotencyKey(ctx, key)
		found = sale
		return err
	})
	if err != nil {
		return nil, persistenceFailed(err)
	}
	return found, nil
}

func (e *Engine) replay(ctx context.Context, c *cart.Cart, sale *models.Sale) *Receipt {
	e.logg.Info(e.logg.WithSaleNumber(ctx, sale.SaleNumber), "replaying committed sale for idempotency key")
	if c != nil {
		c.Clear()
	}
	receipt := ReceiptFromSale(sale)
	receipt.State = enums.CommitStateCommitted
	receipt.Replayed = true
	return receipt
}

// Void marks a committed sale as voided and puts its quantities back on hand
// in the same unit.
func (e *Engine) Void(ctx context.Context, saleID uuid.UUID, reason string) (*VoidResult, error) {
	start := time.Now()
	result, err := e.void(ctx, saleID, reason)
	e.metrics.Observe(OperationVoid, outcomeOf(err), time.Since(start))
	return result, err
}

func (e *Engine) void(ctx context.Context, saleID uuid.UUID, reason string) (*VoidResult, error) {
	var sale *models.Sale
	err := e.store.WithinUnit(ctx, func(u UnitStore) error {
		loaded, err := u.LoadSale(ctx, saleID)
		sale = loaded
		return err
	})
	if err != nil {
		return nil, persistenceFailed(err)
	}
	if sale.IsVoided {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyVoided, "sale is already voided").
			WithDetails(map[string]any{"sale_id": saleID})
	}
	ctx = e.logg.WithSaleNumber(ctx, sale.SaleNumber)

	productIDs := make([]uuid.UUID, 0, len(sale.Items))
	quantities := make(map[uuid.UUID]decimal.Decimal, len(sale.Items))
	for _, item := range sale.Items {
		if qty, ok := quantities[item.ProductID]; ok {
			quantities[item.ProductID] = qty.Add(item.Quantity)
			continue
		}
		productIDs = append(productIDs, item.ProductID)
		quantities[item.ProductID] = item.Quantity
	}

	release, err := e.locks.acquire(ctx, productIDs, e.cfg.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	at := e.now().UTC().Truncate(time.Microsecond)
	var changes []InventoryChange
	err = e.runUnit(ctx, OperationVoid, func(ctx context.Context, u UnitStore) error {
		changes = nil
		if err := u.MarkVoided(ctx, saleID, at, reason); err != nil {
			return err
		}
		for _, productID := range productIDs {
			change, err := u.AdjustInventory(ctx, productID, quantities[productID], AdjustOptions{At: at})
			if err != nil {
				return err
			}
			changes = append(changes, change)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.refreshCache(ctx, changes, nil)
	e.logg.Info(ctx, "sale voided")
	return &VoidResult{
		SaleID:     sale.ID,
		SaleNumber: sale.SaleNumber,
		VoidedAt:   at,
		Restocked:  changes,
	}, nil
}

// Adjust applies a manual stock movement. Positive deltas also stamp the
// last restock date.
func (e *Engine) Adjust(ctx context.Context, productID uuid.UUID, delta decimal.Decimal, reason enums.AdjustmentReason) (*AdjustResult, error) {
	start := time.Now()
	result, err := e.adjust(ctx, productID, delta, reason)
	e.metrics.Observe(OperationAdjust, outcomeOf(err), time.Since(start))
	return result, err
}

func (e *Engine) adjust(ctx context.Context, productID uuid.UUID, delta decimal.Decimal, reason enums.AdjustmentReason) (*AdjustResult, error) {
	if !reason.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid adjustment reason").
			WithDetails(map[string]any{"reason": string(reason)})
	}
	if delta.IsZero() || money.CheckPlaces(delta, e.cfg.QuantityPlaces) != nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "adjustment must be non-zero within quantity precision").
			WithDetails(map[string]any{"product_id": productID, "delta": delta.String()})
	}
	product, ok := e.cache.Get(productID)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnknownProduct, "product not found").
			WithDetails(map[string]any{"product_id": productID})
	}

	release, err := e.locks.acquire(ctx, []uuid.UUID{productID}, e.cfg.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	at := e.now().UTC().Truncate(time.Microsecond)
	opts := AdjustOptions{
		RejectNegative: e.cfg.StockPolicy == enums.StockPolicyStrict && delta.IsNegative(),
		At:             at,
	}
	if delta.IsPositive() {
		opts.RestockedAt = &at
	}

	var change InventoryChange
	err = e.runUnit(ctx, OperationAdjust, func(ctx context.Context, u UnitStore) error {
		var err error
		change, err = u.AdjustInventory(ctx, productID, delta, opts)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.refreshCache(ctx, []InventoryChange{change}, opts.RestockedAt)
	warnings := e.stockWarnings(ctx, []InventoryChange{change}, map[uuid.UUID]string{productID: product.Name})

	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"product_id": productID,
		"delta":      delta.String(),
		"reason":     reason.String(),
	}), "inventory adjusted")
	return &AdjustResult{
		ProductID: productID,
		Previous:  change.Previous,
		Delta:     delta,
		Resulting: change.Resulting,
		Reason:    reason.String(),
		Negative:  len(warnings) > 0,
	}, nil
}

// runUnit runs fn in a unit detached from caller cancellation and bounded by
// the unit timeout. Lost races are retried; anything else ends the call.
func (e *Engine) runUnit(ctx context.Context, operation string, fn func(context.Context, UnitStore) error) error {
	unitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.UnitTimeout)
	defer cancel()

	contention := 0
	for {
		err := e.store.WithinUnit(unitCtx, func(u UnitStore) error {
			return fn(unitCtx, u)
		})
		if err == nil {
			return nil
		}

		reason := retryReason(err)
		if reason == "" {
			return persistenceFailed(err)
		}
		// sale number collisions are bounded by the identifier budget
		if reason != retrySaleNumberTaken {
			contention++
			if contention > e.cfg.MaxContentionRetries {
				return pkgerrors.New(pkgerrors.CodeContention, "gave up after repeated concurrent updates").
					WithDetails(map[string]any{"operation": operation, "retries": e.cfg.MaxContentionRetries})
			}
		}
		e.metrics.IncRetry(reason)
		e.logg.Debug(e.logg.WithField(ctx, "retry_reason", reason), "retrying "+operation+" unit")
	}
}

func (e *Engine) refreshCache(ctx context.Context, changes []InventoryChange, restockedAt *time.Time) {
	if len(changes) == 0 {
		return
	}
	adjustments := make([]catalog.Adjustment, 0, len(changes))
	for _, change := range changes {
		adjustments = append(adjustments, catalog.Adjustment{
			ProductID:   change.ProductID,
			Delta:       change.Delta,
			Resulting:   change.Resulting,
			Version:     change.Version,
			RestockedAt: restockedAt,
		})
	}
	// The store already holds the truth; a failed rebuild is repaired by the
	// next reconcile run.
	if err := e.cache.ApplyCommit(context.WithoutCancel(ctx), adjustments); err != nil {
		e.logg.Error(ctx, "refresh catalog cache", err)
	}
}

func (e *Engine) stockWarnings(ctx context.Context, changes []InventoryChange, names map[uuid.UUID]string) []StockWarning {
	var warnings []StockWarning
	for _, change := range changes {
		if !change.Resulting.IsNegative() {
			continue
		}
		e.metrics.IncNegativeStock()
		e.logg.WarnFields(ctx, "inventory below zero", map[string]any{
			"product_id": change.ProductID,
			"resulting":  change.Resulting.String(),
		})
		warnings = append(warnings, StockWarning{
			ProductID:   change.ProductID,
			ProductName: names[change.ProductID],
			Resulting:   change.Resulting,
		})
	}
	return warnings
}

func retryReason(err error) string {
	switch {
	case errors.Is(err, errVersionConflict):
		return retryVersionConflict
	case errors.Is(err, errIdempotencyRace):
		return retryIdempotencyRace
	case errors.Is(err, errSaleNumberTaken):
		return retrySaleNumberTaken
	}
	return ""
}

// persistenceFailed keeps typed errors and classifies everything else as a
// store fault.
func persistenceFailed(err error) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodePersistenceFailed, err, "storage did not answer in time")
	}
	return pkgerrors.Wrap(pkgerrors.CodePersistenceFailed, err, "could not persist changes")
}

func outcomeOf(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	if typed := pkgerrors.As(err); typed != nil {
		return string(typed.Code())
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return string(pkgerrors.CodeInternal)
}
