package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the cached, read-only view of a catalog entry.
type Product struct {
	ID         uuid.UUID       `json:"id"`
	Barcode    string          `json:"barcode"`
	ShortCode  string          `json:"short_code"`
	Name       string          `json:"name"`
	CategoryID *uuid.UUID      `json:"category_id,omitempty"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	CostPrice  decimal.Decimal `json:"-"`
	IsActive   bool            `json:"is_active"`
}

// StockLevel is the cached inventory record of one product.
type StockLevel struct {
	ProductID       uuid.UUID       `json:"product_id"`
	QuantityOnHand  decimal.Decimal `json:"quantity_on_hand"`
	MinimumStock    decimal.Decimal `json:"minimum_stock"`
	MaximumStock    decimal.Decimal `json:"maximum_stock"`
	ReorderLevel    decimal.Decimal `json:"reorder_level"`
	ReorderQuantity decimal.Decimal `json:"reorder_quantity"`
	LastRestockDate *time.Time      `json:"last_restock_date,omitempty"`
	Version         int64           `json:"version"`
}

func (s StockLevel) IsLowStock() bool {
	return s.QuantityOnHand.LessThanOrEqual(s.ReorderLevel)
}

type Category struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	ParentID  *uuid.UUID `json:"parent_id,omitempty"`
	SortOrder int        `json:"sort_order"`
}

// LowStockItem pairs a product with its stock for the reorder list.
type LowStockItem struct {
	Product Product    `json:"product"`
	Stock   StockLevel `json:"stock"`
}

// Adjustment is one persisted inventory change, as reported by the store.
// Resulting and Version are the values the row holds after the write.
type Adjustment struct {
	ProductID   uuid.UUID
	Delta       decimal.Decimal
	Resulting   decimal.Decimal
	Version     int64
	RestockedAt *time.Time
}

// Snapshot is a full read of the catalog from its source.
type Snapshot struct {
	Categories []Category
	Products   []Product
	Stock      []StockLevel
}
