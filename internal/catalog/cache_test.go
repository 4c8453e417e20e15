package catalog

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tillpoint-backend/pkg/logger"
	"github.com/angelmondragon/tillpoint-backend/pkg/metrics"
)

type fakeSource struct {
	mu    sync.Mutex
	snap  Snapshot
	err   error
	loads atomic.Int32
	delay time.Duration
	// runs after each snapshot is taken, outside the source lock
	afterLoad func()
}

func (f *fakeSource) LoadSnapshot(context.Context) (*Snapshot, error) {
	f.loads.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	if f.err != nil {
		f.mu.Unlock()
		return nil, f.err
	}
	cp := Snapshot{
		Categories: append([]Category(nil), f.snap.Categories...),
		Products:   append([]Product(nil), f.snap.Products...),
		Stock:      append([]StockLevel(nil), f.snap.Stock...),
	}
	hook := f.afterLoad
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return &cp, nil
}

func (f *fakeSource) setStock(id uuid.UUID, qty string, version int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.snap.Stock {
		if f.snap.Stock[i].ProductID == id {
			f.snap.Stock[i].QuantityOnHand = decimal.RequireFromString(qty)
			f.snap.Stock[i].Version = version
		}
	}
}

type fixture struct {
	source   *fakeSource
	cache    *Cache
	beverage uuid.UUID
	dairy    uuid.UUID
	coke     Product
	milk     Product
	retired  Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{beverage: uuid.New(), dairy: uuid.New()}
	f.coke = Product{ID: uuid.New(), Barcode: "1234567890123", ShortCode: "COC", Name: "Coca Cola 500ml", CategoryID: &f.beverage, UnitPrice: decimal.RequireFromString("1.99"), IsActive: true}
	f.milk = Product{ID: uuid.New(), Barcode: "1234567890124", ShortCode: "MLK", Name: "Whole Milk 1L", CategoryID: &f.dairy, UnitPrice: decimal.RequireFromString("3.49"), IsActive: true}
	f.retired = Product{ID: uuid.New(), Barcode: "9999999999999", ShortCode: "OLD", Name: "Cola Classic", CategoryID: &f.beverage, UnitPrice: decimal.RequireFromString("0.99"), IsActive: false}

	f.source = &fakeSource{snap: Snapshot{
		Categories: []Category{{ID: f.dairy, Name: "Dairy", SortOrder: 1}, {ID: f.beverage, Name: "Beverages", SortOrder: 0}},
		Products:   []Product{f.coke, f.milk, f.retired},
		Stock: []StockLevel{
			{ProductID: f.coke.ID, QuantityOnHand: decimal.NewFromInt(150), ReorderLevel: decimal.NewFromInt(20), Version: 1},
			{ProductID: f.milk.ID, QuantityOnHand: decimal.NewFromInt(15), ReorderLevel: decimal.NewFromInt(20), Version: 1},
			{ProductID: f.retired.ID, QuantityOnHand: decimal.NewFromInt(0), ReorderLevel: decimal.NewFromInt(20), Version: 1},
		},
	}}

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	cache, err := NewCache(f.source, logg, metrics.NewCommitMetrics(prometheus.NewRegistry()))
	require.NoError(t, err)
	require.NoError(t, cache.Load(context.Background()))
	f.cache = cache
	return f
}

func TestLookups(t *testing.T) {
	f := newFixture(t)

	got, ok := f.cache.Get(f.coke.ID)
	require.True(t, ok)
	assert.Equal(t, "Coca Cola 500ml", got.Name)

	got, ok = f.cache.FindByCode("1234567890124")
	require.True(t, ok)
	assert.Equal(t, f.milk.ID, got.ID)

	got, ok = f.cache.FindByCode(" coc ")
	require.True(t, ok)
	assert.Equal(t, f.coke.ID, got.ID)

	_, ok = f.cache.FindByCode("OLD")
	assert.False(t, ok, "inactive products are not scannable")
	_, ok = f.cache.FindByCode("")
	assert.False(t, ok)

	stock, ok := f.cache.GetInventory(f.milk.ID)
	require.True(t, ok)
	assert.Equal(t, "15", stock.QuantityOnHand.String())

	cats := f.cache.Categories()
	require.Len(t, cats, 2)
	assert.Equal(t, "Beverages", cats[0].Name)
}

func TestSearch(t *testing.T) {
	f := newFixture(t)

	res := f.cache.Search("cola", nil)
	require.Len(t, res, 1)
	assert.Equal(t, f.coke.ID, res[0].ID)

	res = f.cache.Search("", &f.dairy)
	require.Len(t, res, 1)
	assert.Equal(t, f.milk.ID, res[0].ID)

	res = f.cache.Search("12345678901", nil)
	assert.Len(t, res, 2)

	res = f.cache.Search("mlk", &f.beverage)
	assert.Empty(t, res)
}

func TestLowStock(t *testing.T) {
	f := newFixture(t)
	low := f.cache.LowStock()
	require.Len(t, low, 1)
	assert.Equal(t, f.milk.ID, low[0].Product.ID)
}

func TestApplyCommitAppliesExactDelta(t *testing.T) {
	f := newFixture(t)
	loads := f.source.loads.Load()

	f.source.setStock(f.coke.ID, "145", 2)
	err := f.cache.ApplyCommit(context.Background(), []Adjustment{
		{ProductID: f.coke.ID, Delta: decimal.NewFromInt(-5), Resulting: decimal.NewFromInt(145), Version: 2},
	})
	require.NoError(t, err)

	stock, _ := f.cache.GetInventory(f.coke.ID)
	assert.Equal(t, "145", stock.QuantityOnHand.String())
	assert.EqualValues(t, 2, stock.Version)
	assert.Equal(t, loads, f.source.loads.Load(), "exact apply must not reload")

	// replaying the same adjustment is a no-op
	require.NoError(t, f.cache.ApplyCommit(context.Background(), []Adjustment{
		{ProductID: f.coke.ID, Delta: decimal.NewFromInt(-5), Resulting: decimal.NewFromInt(145), Version: 2},
	}))
	stock, _ = f.cache.GetInventory(f.coke.ID)
	assert.Equal(t, "145", stock.QuantityOnHand.String())
}

func TestApplyCommitRebuildsOnDivergence(t *testing.T) {
	f := newFixture(t)
	loads := f.source.loads.Load()

	// the store moved twice but the cache only hears about the second write
	f.source.setStock(f.milk.ID, "10", 3)
	err := f.cache.ApplyCommit(context.Background(), []Adjustment{
		{ProductID: f.milk.ID, Delta: decimal.NewFromInt(-2), Resulting: decimal.NewFromInt(10), Version: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, loads+1, f.source.loads.Load())

	stock, _ := f.cache.GetInventory(f.milk.ID)
	assert.Equal(t, "10", stock.QuantityOnHand.String())
	assert.EqualValues(t, 3, stock.Version)
}

func TestApplyCommitDivergenceSurvivesCommitsDuringRebuild(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// every snapshot read races a milk sale that lands just after the read
	milkQty, milkVersion := int64(15), int64(1)
	f.source.afterLoad = func() {
		milkQty--
		milkVersion++
		f.source.setStock(f.milk.ID, decimal.NewFromInt(milkQty).String(), milkVersion)
		require.NoError(t, f.cache.ApplyCommit(ctx, []Adjustment{
			{ProductID: f.milk.ID, Delta: decimal.NewFromInt(-1), Resulting: decimal.NewFromInt(milkQty), Version: milkVersion},
		}))
	}

	f.source.setStock(f.coke.ID, "140", 3)
	err := f.cache.ApplyCommit(ctx, []Adjustment{
		{ProductID: f.coke.ID, Delta: decimal.NewFromInt(-10), Resulting: decimal.NewFromInt(140), Version: 3},
	})
	require.NoError(t, err)

	coke, _ := f.cache.GetInventory(f.coke.ID)
	assert.Equal(t, "140", coke.QuantityOnHand.String())
	assert.EqualValues(t, 3, coke.Version)

	milk, _ := f.cache.GetInventory(f.milk.ID)
	assert.Equal(t, decimal.NewFromInt(milkQty).String(), milk.QuantityOnHand.String())
	assert.EqualValues(t, milkVersion, milk.Version)
}

func TestApplyCommitAfterSharedRebuildKeepsNewestVersion(t *testing.T) {
	f := newFixture(t)

	// the snapshot predates the commit being applied
	f.cache.mu.Lock()
	f.cache.keepNewestLocked([]Adjustment{
		{ProductID: f.coke.ID, Delta: decimal.NewFromInt(-4), Resulting: decimal.NewFromInt(146), Version: 2},
		{ProductID: f.milk.ID, Delta: decimal.NewFromInt(1), Resulting: decimal.NewFromInt(99), Version: 1},
	})
	f.cache.mu.Unlock()

	coke, _ := f.cache.GetInventory(f.coke.ID)
	assert.Equal(t, "146", coke.QuantityOnHand.String())
	milk, _ := f.cache.GetInventory(f.milk.ID)
	assert.Equal(t, "15", milk.QuantityOnHand.String(), "same version is not newer")
}

func TestApplyCommitDivergenceLeavesOtherRowsUntouchedUntilRebuild(t *testing.T) {
	f := newFixture(t)
	f.source.err = errors.New("db down")

	err := f.cache.ApplyCommit(context.Background(), []Adjustment{
		{ProductID: f.coke.ID, Delta: decimal.NewFromInt(-1), Resulting: decimal.NewFromInt(149), Version: 2},
		{ProductID: uuid.New(), Delta: decimal.NewFromInt(-1), Resulting: decimal.NewFromInt(0), Version: 1},
	})
	require.Error(t, err)

	stock, _ := f.cache.GetInventory(f.coke.ID)
	assert.Equal(t, "150", stock.QuantityOnHand.String(), "no partial patching")
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rebuilt, err := f.cache.Reconcile(ctx)
	require.NoError(t, err)
	assert.False(t, rebuilt)

	f.source.setStock(f.coke.ID, "100", 9)
	rebuilt, err = f.cache.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, rebuilt)

	stock, _ := f.cache.GetInventory(f.coke.ID)
	assert.Equal(t, "100", stock.QuantityOnHand.String())
}

func TestConcurrentRebuildsCollapse(t *testing.T) {
	f := newFixture(t)
	f.source.delay = 50 * time.Millisecond
	before := f.source.loads.Load()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.cache.rebuild(context.Background(), TriggerDivergence)
		}()
	}
	wg.Wait()
	assert.Less(t, f.source.loads.Load()-before, int32(8))
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	f.cache.Close()

	_, ok := f.cache.Get(f.coke.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, f.cache.Load(context.Background()), ErrClosed)
	_, err := f.cache.Reconcile(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewCacheRequiresDeps(t *testing.T) {
	_, err := NewCache(nil, logger.New(logger.Options{Output: io.Discard}), nil)
	require.Error(t, err)
	_, err = NewCache(&fakeSource{}, nil, nil)
	require.Error(t, err)
}
