package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillpoint-backend/pkg/db"
	"github.com/angelmondragon/tillpoint-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tillpoint-backend/pkg/errors"
	"github.com/angelmondragon/tillpoint-backend/pkg/money"
	"github.com/angelmondragon/tillpoint-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Repository is the GORM-backed Store. Units map onto database transactions.
type Repository struct {
	db *gorm.DB
	tx txRunner
}

func NewRepository(conn *gorm.DB, tx txRunner) *Repository {
	return &Repository{db: conn, tx: tx}
}

// WithinUnit runs fn in a transaction.
func (r *Repository) WithinUnit(ctx context.Context, fn func(UnitStore) error) error {
	return r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return fn(&unitStore{tx: tx})
	})
}

// SaleFilter narrows ListSales. Zero times are open bounds.
type SaleFilter struct {
	From          time.Time
	To            time.Time
	IncludeVoided bool
	Limit         int
	Cursor        string
}

// SalePage is one page of ListSales. NextCursor is empty on the last page.
type SalePage struct {
	Sales      []models.Sale
	NextCursor string
}

// GetSale loads a sale with its items outside of any unit.
func (r *Repository) GetSale(ctx context.Context, saleID uuid.UUID) (*models.Sale, error) {
	return loadSale(ctx, r.db, saleID)
}

// ListSales returns sales in [From, To), newest first, without items.
func (r *Repository) ListSales(ctx context.Context, filter SaleFilter) (*SalePage, error) {
	cursor, err := pagination.ParseCursor(filter.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	q := r.db.WithContext(ctx).Model(&models.Sale{})
	if !filter.From.IsZero() {
		q = q.Where("sold_at >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		q = q.Where("sold_at < ?", filter.To.UTC())
	}
	if !filter.IncludeVoided {
		q = q.Where("is_voided = ?", false)
	}
	if cursor != nil {
		q = q.Where("(sold_at < ?) OR (sold_at = ? AND id < ?)", cursor.At, cursor.At, cursor.ID)
	}

	var out []models.Sale
	if err := q.Order("sold_at DESC").Order("id DESC").Limit(pagination.LimitWithBuffer(filter.Limit)).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	rows, next := pagination.Trim(out, filter.Limit, func(s models.Sale) pagination.Cursor {
		return pagination.Cursor{At: s.SoldAt.UTC(), ID: s.ID}
	})
	return &SalePage{Sales: rows, NextCursor: next}, nil
}

type unitStore struct {
	tx *gorm.DB
}

func (u *unitStore) InsertSale(ctx context.Context, sale *models.Sale, items []models.SaleItem) error {
	tx := u.tx.WithContext(ctx)
	if err := tx.Omit("Items").Create(sale).Error; err != nil {
		switch {
		case db.IsUniqueViolation(err, "idempotency_key"):
			return errIdempotencyRace
		case db.IsUniqueViolation(err, "sale_number"):
			return errSaleNumberTaken
		}
		return fmt.Errorf("insert sale: %w", err)
	}
	for i := range items {
		items[i].SaleID = sale.ID
	}
	if len(items) > 0 {
		if err := tx.Create(&items).Error; err != nil {
			return fmt.Errorf("insert sale items: %w", err)
		}
	}
	sale.Items = items
	return nil
}

func (u *unitStore) AdjustInventory(ctx context.Context, productID uuid.UUID, delta decimal.Decimal, opts AdjustOptions) (InventoryChange, error) {
	tx := u.tx.WithContext(ctx)
	// the column keeps three places; a finer delta would be rounded away
	if err := money.CheckPlaces(delta, money.MaxQuantityPlaces); err != nil {
		return InventoryChange{}, pkgerrors.Wrap(pkgerrors.CodeInvalidQuantity, err, "inventory change exceeds stored precision").
			WithDetails(map[string]any{"product_id": productID, "delta": delta.String()})
	}

	var current models.InventoryRecord
	if err := tx.Where("product_id = ?", productID).Take(&current).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return InventoryChange{}, pkgerrors.New(pkgerrors.CodeUnknownProduct, "product has no inventory record").
				WithDetails(map[string]any{"product_id": productID})
		}
		return InventoryChange{}, fmt.Errorf("read inventory: %w", err)
	}

	resulting := current.QuantityOnHand.Add(delta)
	if opts.RejectNegative && resulting.IsNegative() {
		return InventoryChange{}, pkgerrors.New(pkgerrors.CodeInsufficientStock, "not enough stock on hand").
			WithDetails(map[string]any{
				"product_id": productID,
				"on_hand":    current.QuantityOnHand.String(),
				"requested":  delta.Neg().String(),
			})
	}

	at := opts.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	updates := map[string]any{
		"quantity_on_hand": resulting,
		"version":          gorm.Expr("version + 1"),
		"updated_at":       at,
	}
	if opts.RestockedAt != nil {
		updates["last_restock_date"] = *opts.RestockedAt
	}

	res := tx.Model(&models.InventoryRecord{}).
		Where("product_id = ? AND version = ?", productID, current.Version).
		Updates(updates)
	if res.Error != nil {
		return InventoryChange{}, fmt.Errorf("update inventory: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return InventoryChange{}, errVersionConflict
	}

	return InventoryChange{
		ProductID: productID,
		Previous:  current.QuantityOnHand,
		Delta:     delta,
		Resulting: resulting,
		Version:   current.Version + 1,
	}, nil
}

func (u *unitStore) FindSaleByNumber(ctx context.Context, number string) (*models.Sale, error) {
	return findSaleWhere(ctx, u.tx, "sale_number = ?", number)
}

func (u *unitStore) FindSaleByIdempotencyKey(ctx context.Context, key string) (*models.Sale, error) {
	return findSaleWhere(ctx, u.tx, "idempotency_key = ?", key)
}

func findSaleWhere(ctx context.Context, conn *gorm.DB, cond string, arg any) (*models.Sale, error) {
	var sale models.Sale
	err := conn.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("line_no") }).
		Where(cond, arg).
		Take(&sale).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find sale: %w", err)
	}
	return &sale, nil
}

func (u *unitStore) MarkVoided(ctx context.Context, saleID uuid.UUID, at time.Time, reason string) error {
	updates := map[string]any{"is_voided": true, "voided_at": at}
	if reason != "" {
		updates["void_reason"] = reason
	}
	res := u.tx.WithContext(ctx).Model(&models.Sale{}).
		Where("id = ? AND is_voided = ?", saleID, false).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("void sale: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := u.tx.WithContext(ctx).Model(&models.Sale{}).Where("id = ?", saleID).Count(&count).Error; err != nil {
		return fmt.Errorf("void sale lookup: %w", err)
	}
	if count == 0 {
		return saleNotFound(saleID)
	}
	return pkgerrors.New(pkgerrors.CodeAlreadyVoided, "sale is already voided").
		WithDetails(map[string]any{"sale_id": saleID})
}

func (u *unitStore) LoadSale(ctx context.Context, saleID uuid.UUID) (*models.Sale, error) {
	return loadSale(ctx, u.tx, saleID)
}

func loadSale(ctx context.Context, conn *gorm.DB, saleID uuid.UUID) (*models.Sale, error) {
	var sale models.Sale
	err := conn.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("line_no") }).
		Where("id = ?", saleID).
		Take(&sale).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, saleNotFound(saleID)
	}
	if err != nil {
		return nil, fmt.Errorf("load sale: %w", err)
	}
	return &sale, nil
}

func saleNotFound(saleID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeSaleNotFound, "sale not found").
		WithDetails(map[string]any{"sale_id": saleID})
}
