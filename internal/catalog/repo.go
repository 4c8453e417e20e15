package catalog

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/tillpoint-backend/pkg/db/models"
)

// Source loads the full catalog. The cache never writes through it.
type Source interface {
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
}

// Repository reads the catalog tables with GORM.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// LoadSnapshot reads categories, products and inventory in one read transaction
// so the three lists agree with each other.
func (r *Repository) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	var (
		categories []models.Category
		products   []models.Product
		records    []models.InventoryRecord
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Order("sort_order, name").Find(&categories).Error; err != nil {
			return fmt.Errorf("load categories: %w", err)
		}
		if err := tx.Order("name").Find(&products).Error; err != nil {
			return fmt.Errorf("load products: %w", err)
		}
		if err := tx.Find(&records).Error; err != nil {
			return fmt.Errorf("load inventory: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Categories: make([]Category, 0, len(categories)),
		Products:   make([]Product, 0, len(products)),
		Stock:      make([]StockLevel, 0, len(records)),
	}
	for _, c := range categories {
		snap.Categories = append(snap.Categories, Category{ID: c.ID, Name: c.Name, ParentID: c.ParentID, SortOrder: c.SortOrder})
	}
	for _, p := range products {
		snap.Products = append(snap.Products, ProductFromModel(p))
	}
	for _, rec := range records {
		snap.Stock = append(snap.Stock, StockFromModel(rec))
	}
	return snap, nil
}

func ProductFromModel(p models.Product) Product {
	return Product{
		ID:         p.ID,
		Barcode:    p.Barcode,
		ShortCode:  p.ShortCode,
		Name:       p.Name,
		CategoryID: p.CategoryID,
		UnitPrice:  p.UnitPrice,
		CostPrice:  p.CostPrice,
		IsActive:   p.IsActive,
	}
}

func StockFromModel(rec models.InventoryRecord) StockLevel {
	return StockLevel{
		ProductID:       rec.ProductID,
		QuantityOnHand:  rec.QuantityOnHand,
		MinimumStock:    rec.MinimumStock,
		MaximumStock:    rec.MaximumStock,
		ReorderLevel:    rec.ReorderLevel,
		ReorderQuantity: rec.ReorderQuantity,
		LastRestockDate: rec.LastRestockDate,
		Version:         rec.Version,
	}
}
