package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InventoryRecord holds the quantity on hand for exactly one product.
// Version is bumped on every write and guards compare-and-swap updates.
type InventoryRecord struct {
	ProductID       uuid.UUID       `gorm:"column:product_id;type:uuid;primaryKey"`
	QuantityOnHand  decimal.Decimal `gorm:"column:quantity_on_hand;type:numeric(18,3);not null;default:0"`
	MinimumStock    decimal.Decimal `gorm:"column:minimum_stock;type:numeric(18,3);not null;default:0"`
	MaximumStock    decimal.Decimal `gorm:"column:maximum_stock;type:numeric(18,3);not null;default:0"`
	ReorderLevel    decimal.Decimal `gorm:"column:reorder_level;type:numeric(18,3);not null;default:0"`
	ReorderQuantity decimal.Decimal `gorm:"column:reorder_quantity;type:numeric(18,3);not null;default:0"`
	LastRestockDate *time.Time      `gorm:"column:last_restock_date"`
	Version         int64           `gorm:"column:version;not null;default:0"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// IsLowStock reports whether the record is at or below its reorder level.
func (r InventoryRecord) IsLowStock() bool {
	return r.QuantityOnHand.LessThanOrEqual(r.ReorderLevel)
}
