package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a sellable catalog entry. Barcode is unique across active and inactive rows.
type Product struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Barcode    string           `gorm:"column:barcode;not null;uniqueIndex"`
	ShortCode  string           `gorm:"column:short_code;not null;default:'';index"`
	Name       string           `gorm:"column:name;not null"`
	CategoryID *uuid.UUID       `gorm:"column:category_id;type:uuid;index"`
	UnitPrice  decimal.Decimal  `gorm:"column:unit_price;type:numeric(12,2);not null"`
	CostPrice  decimal.Decimal  `gorm:"column:cost_price;type:numeric(12,2);not null;default:0"`
	IsActive   bool             `gorm:"column:is_active;not null;default:true"`
	Category   *Category        `gorm:"foreignKey:CategoryID"`
	Inventory  *InventoryRecord `gorm:"foreignKey:ProductID;constraint:OnDelete:RESTRICT"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
