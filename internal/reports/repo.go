package reports

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/tillpoint-backend/pkg/db/models"
)

// Repository reads committed sales for reporting.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// SalesBetween returns non-voided sales sold in [from, to) with their items,
// oldest first.
func (r *Repository) SalesBetween(ctx context.Context, from, to time.Time) ([]models.Sale, error) {
	var out []models.Sale
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("sold_at >= ? AND sold_at < ? AND is_voided = ?", from.UTC(), to.UTC(), false).
		Order("sold_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("load sales for report: %w", err)
	}
	return out, nil
}
