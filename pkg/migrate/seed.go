package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillpoint-backend/pkg/db/models"
)

type seedProduct struct {
	barcode   string
	shortCode string
	name      string
	category  string
	unitPrice string
	costPrice string
	onHand    int64
}

var defaultCategories = []string{
	"Beverages", "Dairy", "Bakery", "Meat", "Produce", "Snacks", "Frozen", "Household",
}

var defaultProducts = []seedProduct{
	{"1234567890123", "COC", "Coca Cola 500ml", "Beverages", "1.99", "1.20", 150},
	{"1234567890124", "MLK", "Whole Milk 1L", "Dairy", "3.49", "2.50", 15},
	{"1234567890125", "BRD", "White Bread", "Bakery", "2.99", "1.80", 0},
	{"1234567890126", "OJ", "Orange Juice 1L", "Beverages", "4.99", "3.20", 45},
	{"1234567890127", "CHZ", "Cheddar Cheese 200g", "Dairy", "5.99", "4.00", 8},
	{"1234567890128", "CHP", "Potato Chips", "Snacks", "2.49", "1.50", 80},
	{"1234567890129", "WTR", "Bottled Water 1L", "Beverages", "1.29", "0.80", 200},
	{"1234567890130", "YOG", "Greek Yogurt", "Dairy", "3.99", "2.80", 25},
}

// SeedCatalog inserts the default categories, products and stock levels when
// the products table is empty. It reports whether anything was written.
func SeedCatalog(ctx context.Context, conn *gorm.DB) (bool, error) {
	var existing int64
	if err := conn.WithContext(ctx).Model(&models.Product{}).Count(&existing).Error; err != nil {
		return false, fmt.Errorf("count products: %w", err)
	}
	if existing > 0 {
		return false, nil
	}

	err := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		byName := make(map[string]uuid.UUID, len(defaultCategories))
		for i, name := range defaultCategories {
			category := models.Category{Name: name, SortOrder: i}
			if err := tx.Create(&category).Error; err != nil {
				return fmt.Errorf("create category %s: %w", name, err)
			}
			byName[name] = category.ID
		}

		now := time.Now().UTC()
		for _, sp := range defaultProducts {
			categoryID := byName[sp.category]
			product := models.Product{
				Barcode:    sp.barcode,
				ShortCode:  sp.shortCode,
				Name:       sp.name,
				CategoryID: &categoryID,
				UnitPrice:  decimal.RequireFromString(sp.unitPrice),
				CostPrice:  decimal.RequireFromString(sp.costPrice),
				IsActive:   true,
			}
			if err := tx.Omit("Category", "Inventory").Create(&product).Error; err != nil {
				return fmt.Errorf("create product %s: %w", sp.shortCode, err)
			}
			record := models.InventoryRecord{
				ProductID:       product.ID,
				QuantityOnHand:  decimal.NewFromInt(sp.onHand),
				MinimumStock:    decimal.NewFromInt(10),
				MaximumStock:    decimal.NewFromInt(100),
				ReorderLevel:    decimal.NewFromInt(20),
				ReorderQuantity: decimal.NewFromInt(50),
				LastRestockDate: &now,
			}
			if err := tx.Create(&record).Error; err != nil {
				return fmt.Errorf("create inventory %s: %w", sp.shortCode, err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
