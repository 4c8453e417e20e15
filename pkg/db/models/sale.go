package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillpoint-backend/pkg/enums"
)

// Sale is a committed checkout. Rows are never deleted; only the void columns change.
type Sale struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	SaleNumber     string              `gorm:"column:sale_number;not null;uniqueIndex"`
	SoldAt         time.Time           `gorm:"column:sold_at;not null;index"`
	Subtotal       decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Tax            decimal.Decimal     `gorm:"column:tax;type:numeric(12,2);not null"`
	Discount       decimal.Decimal     `gorm:"column:discount;type:numeric(12,2);not null;default:0"`
	Total          decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	PaymentMethod  enums.PaymentMethod `gorm:"column:payment_method;type:varchar(16);not null"`
	CashTendered   decimal.NullDecimal `gorm:"column:cash_tendered;type:numeric(12,2)"`
	ChangeDue      decimal.Decimal     `gorm:"column:change_due;type:numeric(12,2);not null;default:0"`
	OperatorID     *string             `gorm:"column:operator_id"`
	IdempotencyKey *string             `gorm:"column:idempotency_key;uniqueIndex"`
	IsVoided       bool                `gorm:"column:is_voided;not null;default:false"`
	VoidedAt       *time.Time          `gorm:"column:voided_at"`
	VoidReason     *string             `gorm:"column:void_reason"`
	Items          []SaleItem          `gorm:"foreignKey:SaleID;constraint:OnDelete:RESTRICT"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (s *Sale) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// SaleItem is an immutable line of a Sale. Name and prices are snapshots taken at commit.
type SaleItem struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	SaleID      uuid.UUID       `gorm:"column:sale_id;type:uuid;not null;index"`
	ProductID   uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index"`
	LineNo      int             `gorm:"column:line_no;not null"`
	ProductName string          `gorm:"column:product_name;not null"`
	Quantity    decimal.Decimal `gorm:"column:quantity;type:numeric(18,3);not null"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	CostPrice   decimal.Decimal `gorm:"column:cost_price;type:numeric(12,2);not null;default:0"`
	Discount    decimal.Decimal `gorm:"column:discount;type:numeric(12,2);not null;default:0"`
	LineTotal   decimal.Decimal `gorm:"column:line_total;type:numeric(12,2);not null"`
}

func (i *SaleItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
