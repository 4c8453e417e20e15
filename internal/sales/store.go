package sales

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tillpoint-backend/pkg/db/models"
)

// Sentinel errors raised inside a unit. The engine retries the whole unit on
// any of them; they never reach callers.
var (
	errVersionConflict = errors.New("inventory version conflict")
	errSaleNumberTaken = errors.New("sale number already taken")
	errIdempotencyRace = errors.New("idempotency key inserted concurrently")
)

// Store runs atomic units against durable storage.
type Store interface {
	// WithinUnit commits when fn returns nil and aborts on error or panic.
	WithinUnit(ctx context.Context, fn func(UnitStore) error) error
}

// UnitStore is the set of operations available inside one atomic unit.
type UnitStore interface {
	InsertSale(ctx context.Context, sale *models.Sale, items []models.SaleItem) error
	// AdjustInventory adds delta to the product's quantity on hand with a
	// compare-and-swap on the row version and reports the row after the write.
	AdjustInventory(ctx context.Context, productID uuid.UUID, delta decimal.Decimal, opts AdjustOptions) (InventoryChange, error)
	// FindSaleByNumber and FindSaleByIdempotencyKey return nil without error
	// when no sale matches.
	FindSaleByNumber(ctx context.Context, number string) (*models.Sale, error)
	FindSaleByIdempotencyKey(ctx context.Context, key string) (*models.Sale, error)
	// MarkVoided flips the void flag only if the sale is not voided yet.
	MarkVoided(ctx context.Context, saleID uuid.UUID, at time.Time, reason string) error
	LoadSale(ctx context.Context, saleID uuid.UUID) (*models.Sale, error)
}

type AdjustOptions struct {
	// RejectNegative fails the unit with INSUFFICIENT_STOCK instead of letting
	// the quantity drop below zero.
	RejectNegative bool
	// RestockedAt, when set, is stored as the last restock date.
	RestockedAt *time.Time
	At          time.Time
}

// InventoryChange describes one persisted inventory write.
type InventoryChange struct {
	ProductID uuid.UUID
	Previous  decimal.Decimal
	Delta     decimal.Decimal
	Resulting decimal.Decimal
	Version   int64
}
