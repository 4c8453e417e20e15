package sales

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillpoint-backend/internal/cart"
	"github.com/angelmondragon/tillpoint-backend/internal/catalog"
	"github.com/angelmondragon/tillpoint-backend/internal/pricing"
	"github.com/angelmondragon/tillpoint-backend/pkg/db"
	"github.com/angelmondragon/tillpoint-backend/pkg/db/models"
	"github.com/angelmondragon/tillpoint-backend/pkg/logger"
	"github.com/angelmondragon/tillpoint-backend/pkg/metrics"
	"github.com/angelmondragon/tillpoint-backend/pkg/migrate"
)

type testEnv struct {
	conn    *gorm.DB
	repo    *Repository
	cache   *catalog.Cache
	calc    *pricing.Calculator
	engine  *Engine
	metrics *metrics.CommitMetrics
}

func newTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newTestEnv(t *testing.T, cfg Config, seq SequenceSource, m *metrics.CommitMetrics) *testEnv {
	t.Helper()
	ctx := context.Background()

	conn, err := db.Open(sqlite.Open("file:sales_" + uuid.NewString() + "?mode=memory&cache=shared"))
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migrate.AutoMigrate(conn))
	_, err = migrate.SeedCatalog(ctx, conn)
	require.NoError(t, err)

	logg := newTestLogger()
	cache, err := catalog.NewCache(catalog.NewRepository(conn), logg, m)
	require.NoError(t, err)
	require.NoError(t, cache.Load(ctx))

	calc, err := pricing.NewCalculator(pricing.DefaultTaxRate)
	require.NoError(t, err)

	repo := NewRepository(conn, db.NewFromGorm(conn))
	engine, err := NewEngine(repo, cache, calc, seq, cfg, logg, m)
	require.NoError(t, err)

	return &testEnv{conn: conn, repo: repo, cache: cache, calc: calc, engine: engine, metrics: m}
}

func (e *testEnv) product(t *testing.T, code string) catalog.Product {
	t.Helper()
	p, ok := e.cache.FindByCode(code)
	require.True(t, ok, "product %s not in cache", code)
	return p
}

func (e *testEnv) newCart() *cart.Cart {
	return cart.New(e.calc, 3)
}

func (e *testEnv) add(t *testing.T, c *cart.Cart, code, qty string) {
	t.Helper()
	p := e.product(t, code)
	require.NoError(t, c.AddLine(p.ID, p.Name, p.UnitPrice, decimal.RequireFromString(qty)))
}

func (e *testEnv) onHand(t *testing.T, productID uuid.UUID) models.InventoryRecord {
	t.Helper()
	var rec models.InventoryRecord
	require.NoError(t, e.conn.Where("product_id = ?", productID).Take(&rec).Error)
	return rec
}

func (e *testEnv) saleCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.conn.Model(&models.Sale{}).Count(&n).Error)
	return n
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
