package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/tillpoint-backend/internal/catalog"
	"github.com/angelmondragon/tillpoint-backend/pkg/logger"
)

const (
	JobCatalogReconcile = "catalog_reconcile"
	JobLowStockReport   = "low_stock_report"
	JobSessionExpiry    = "session_expiry"
)

type reconciler interface {
	Reconcile(ctx context.Context) (bool, error)
}

// CatalogReconcileJob compares the catalog cache with the database and
// rebuilds it on any difference.
type CatalogReconcileJob struct {
	cache reconciler
	logg  *logger.Logger
}

func NewCatalogReconcileJob(cache reconciler, logg *logger.Logger) (*CatalogReconcileJob, error) {
	if cache == nil {
		return nil, fmt.Errorf("catalog cache required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &CatalogReconcileJob{cache: cache, logg: logg}, nil
}

func (j *CatalogReconcileJob) Name() string { return JobCatalogReconcile }

func (j *CatalogReconcileJob) Run(ctx context.Context) error {
	rebuilt, err := j.cache.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("reconcile catalog cache: %w", err)
	}
	if rebuilt {
		j.logg.Warn(ctx, "catalog cache was out of date and has been rebuilt")
	}
	return nil
}

type lowStockLister interface {
	LowStock() []catalog.LowStockItem
}

// LowStockJob logs every active product at or below its reorder level.
type LowStockJob struct {
	cache lowStockLister
	logg  *logger.Logger
}

func NewLowStockJob(cache lowStockLister, logg *logger.Logger) (*LowStockJob, error) {
	if cache == nil {
		return nil, fmt.Errorf("catalog cache required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &LowStockJob{cache: cache, logg: logg}, nil
}

func (j *LowStockJob) Name() string { return JobLowStockReport }

func (j *LowStockJob) Run(ctx context.Context) error {
	items := j.cache.LowStock()
	for _, item := range items {
		j.logg.WarnFields(ctx, "product at or below reorder level", map[string]any{
			"product_id":       item.Product.ID,
			"short_code":       item.Product.ShortCode,
			"quantity_on_hand": item.Stock.QuantityOnHand.String(),
			"reorder_level":    item.Stock.ReorderLevel.String(),
			"reorder_quantity": item.Stock.ReorderQuantity.String(),
		})
	}
	if len(items) > 0 {
		j.logg.Info(j.logg.WithField(ctx, "count", len(items)), "low stock report")
	}
	return nil
}

type idleExpirer interface {
	ExpireIdle(ttl time.Duration) int
}

// SessionExpiryJob drops operator sessions idle for longer than ttl.
type SessionExpiryJob struct {
	sessions idleExpirer
	ttl      time.Duration
	logg     *logger.Logger
}

func NewSessionExpiryJob(sessions idleExpirer, ttl time.Duration, logg *logger.Logger) (*SessionExpiryJob, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session registry required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &SessionExpiryJob{sessions: sessions, ttl: ttl, logg: logg}, nil
}

func (j *SessionExpiryJob) Name() string { return JobSessionExpiry }

func (j *SessionExpiryJob) Run(ctx context.Context) error {
	if n := j.sessions.ExpireIdle(j.ttl); n > 0 {
		j.logg.Info(j.logg.WithField(ctx, "expired", n), "idle sessions closed")
	}
	return nil
}
