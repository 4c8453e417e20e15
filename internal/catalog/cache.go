package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/angelmondragon/tillpoint-backend/pkg/logger"
	"github.com/angelmondragon/tillpoint-backend/pkg/metrics"
)

const (
	TriggerLoad       = "load"
	TriggerDivergence = "divergence"
	TriggerReconcile  = "reconcile"
)

// ErrClosed is returned by Load and rebuilds after Close.
var ErrClosed = errors.New("catalog cache closed")

// Cache is the in-memory catalog used by the till. Reads are served from maps
// under a read lock; commits apply their exact deltas and any disagreement
// with the store triggers a wholesale rebuild.
type Cache struct {
	source  Source
	logg    *logger.Logger
	metrics *metrics.CommitMetrics
	group   singleflight.Group

	mu          sync.RWMutex
	products    map[uuid.UUID]Product
	byBarcode   map[string]uuid.UUID
	byShortCode map[string]uuid.UUID
	stock       map[uuid.UUID]StockLevel
	categories  []Category
	generation  uint64
	closed      bool
}

func NewCache(source Source, logg *logger.Logger, m *metrics.CommitMetrics) (*Cache, error) {
	if source == nil {
		return nil, fmt.Errorf("catalog source required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Cache{
		source:      source,
		logg:        logg,
		metrics:     m,
		products:    map[uuid.UUID]Product{},
		byBarcode:   map[string]uuid.UUID{},
		byShortCode: map[string]uuid.UUID{},
		stock:       map[uuid.UUID]StockLevel{},
	}, nil
}

// Load fills the cache from the source. It is called once at startup.
func (c *Cache) Load(ctx context.Context) error {
	return c.rebuild(ctx, TriggerLoad)
}

// Close drops the cached data. Reads after Close see an empty catalog.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.install(&Snapshot{})
}

func (c *Cache) Get(productID uuid.UUID) (Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[productID]
	return p, ok
}

func (c *Cache) GetInventory(productID uuid.UUID) (StockLevel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.stock[productID]
	return s, ok
}

// FindByCode resolves a scanned barcode, falling back to a case-insensitive
// short code. Inactive products are not returned.
func (c *Cache) FindByCode(code string) (Product, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Product{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.byBarcode[code]
	if !ok {
		id, ok = c.byShortCode[strings.ToLower(code)]
	}
	if !ok {
		return Product{}, false
	}
	p := c.products[id]
	if !p.IsActive {
		return Product{}, false
	}
	return p, true
}

// Search returns active products whose name, barcode or short code contains
// query, optionally restricted to a category, ordered by name.
func (c *Cache) Search(query string, categoryID *uuid.UUID) []Product {
	needle := strings.ToLower(strings.TrimSpace(query))

	c.mu.RLock()
	out := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		if !p.IsActive {
			continue
		}
		if categoryID != nil && (p.CategoryID == nil || *p.CategoryID != *categoryID) {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(p.Barcode, needle) &&
			!strings.Contains(strings.ToLower(p.ShortCode), needle) {
			continue
		}
		out = append(out, p)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].Barcode < out[j].Barcode
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (c *Cache) Categories() []Category {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Category, len(c.categories))
	copy(out, c.categories)
	return out
}

// LowStock lists active products at or below their reorder level, lowest first.
func (c *Cache) LowStock() []LowStockItem {
	c.mu.RLock()
	out := []LowStockItem{}
	for id, s := range c.stock {
		p, ok := c.products[id]
		if !ok || !p.IsActive || !s.IsLowStock() {
			continue
		}
		out = append(out, LowStockItem{Product: p, Stock: s})
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		cmp := out[i].Stock.QuantityOnHand.Cmp(out[j].Stock.QuantityOnHand)
		if cmp == 0 {
			return out[i].Product.Name < out[j].Product.Name
		}
		return cmp < 0
	})
	return out
}

// ApplyCommit applies persisted inventory changes. Each adjustment must be the
// next version of the cached row and cached+delta must equal the resulting
// quantity; otherwise the cache has diverged and is rebuilt from the source.
func (c *Cache) ApplyCommit(ctx context.Context, adjustments []Adjustment) error {
	if len(adjustments) == 0 {
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	diverged := c.applyLocked(adjustments)
	c.mu.Unlock()

	if !diverged {
		return nil
	}
	c.logg.Warn(ctx, "catalog cache diverged from store, rebuilding")
	if err := c.rebuild(ctx, TriggerDivergence); err != nil {
		return err
	}

	// a shared rebuild may have loaded before these adjustments persisted
	c.mu.Lock()
	if !c.closed {
		c.keepNewestLocked(adjustments)
	}
	c.mu.Unlock()
	return nil
}

// keepNewestLocked installs each adjustment whose version is newer than the
// cached row. Resulting is the persisted quantity at that version, so the
// highest version is the current one.
func (c *Cache) keepNewestLocked(adjustments []Adjustment) {
	for _, adj := range adjustments {
		current, ok := c.stock[adj.ProductID]
		if !ok || adj.Version <= current.Version {
			continue
		}
		current.QuantityOnHand = adj.Resulting
		current.Version = adj.Version
		if adj.RestockedAt != nil {
			current.LastRestockDate = adj.RestockedAt
		}
		c.stock[adj.ProductID] = current
	}
}

// applyLocked returns true when the adjustments could not be applied exactly.
// Nothing is changed in that case.
func (c *Cache) applyLocked(adjustments []Adjustment) bool {
	next := make(map[uuid.UUID]StockLevel, len(adjustments))
	for _, adj := range adjustments {
		current, ok := next[adj.ProductID]
		if !ok {
			current, ok = c.stock[adj.ProductID]
		}
		if !ok {
			return true
		}
		switch {
		case current.Version == adj.Version && current.QuantityOnHand.Equal(adj.Resulting):
			// already reflected, e.g. by a rebuild that raced the commit
		case current.Version+1 == adj.Version && current.QuantityOnHand.Add(adj.Delta).Equal(adj.Resulting):
			current.QuantityOnHand = adj.Resulting
			current.Version = adj.Version
			if adj.RestockedAt != nil {
				current.LastRestockDate = adj.RestockedAt
			}
		default:
			return true
		}
		next[adj.ProductID] = current
	}
	for id, s := range next {
		c.stock[id] = s
	}
	c.generation++
	return false
}

// Reconcile compares the cache with a fresh read of the source and rebuilds it
// wholesale on any difference. It reports whether a rebuild happened.
func (c *Cache) Reconcile(ctx context.Context) (bool, error) {
	c.mu.RLock()
	closed, gen := c.closed, c.generation
	c.mu.RUnlock()
	if closed {
		return false, ErrClosed
	}

	snap, err := c.source.LoadSnapshot(ctx)
	if err != nil {
		return false, fmt.Errorf("reconcile read: %w", err)
	}

	c.mu.Lock()
	if c.generation != gen {
		// a commit landed while reading; the snapshot may predate it
		c.mu.Unlock()
		return false, nil
	}
	if c.matchesLocked(snap) {
		c.mu.Unlock()
		return false, nil
	}
	c.install(snap)
	c.mu.Unlock()

	c.metrics.IncCacheRebuild(TriggerReconcile)
	c.logg.Warn(ctx, "catalog cache reconciled after divergence")
	return true, nil
}

// rebuild loads a snapshot and installs it. Commits applied while the
// snapshot was loading carry newer versions than the rows they touch in the
// snapshot, and those rows are kept.
func (c *Cache) rebuild(ctx context.Context, trigger string) error {
	_, err, _ := c.group.Do("rebuild", func() (any, error) {
		c.mu.RLock()
		closed := c.closed
		c.mu.RUnlock()
		if closed {
			return nil, ErrClosed
		}

		snap, err := c.source.LoadSnapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("catalog rebuild: %w", err)
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, ErrClosed
		}
		previous := c.stock
		c.install(snap)
		for id, cached := range previous {
			if fresh, ok := c.stock[id]; ok && cached.Version > fresh.Version {
				c.stock[id] = cached
			}
		}
		c.mu.Unlock()
		c.metrics.IncCacheRebuild(trigger)
		return nil, nil
	})
	return err
}

// install replaces every map. Callers hold the write lock.
func (c *Cache) install(snap *Snapshot) {
	c.products = make(map[uuid.UUID]Product, len(snap.Products))
	c.byBarcode = make(map[string]uuid.UUID, len(snap.Products))
	c.byShortCode = make(map[string]uuid.UUID, len(snap.Products))
	for _, p := range snap.Products {
		c.products[p.ID] = p
		c.byBarcode[p.Barcode] = p.ID
		if p.ShortCode == "" {
			continue
		}
		key := strings.ToLower(p.ShortCode)
		// short codes are not unique; prefer the active product
		if existing, ok := c.byShortCode[key]; ok && c.products[existing].IsActive {
			continue
		}
		c.byShortCode[key] = p.ID
	}

	c.stock = make(map[uuid.UUID]StockLevel, len(snap.Stock))
	for _, s := range snap.Stock {
		c.stock[s.ProductID] = s
	}

	c.categories = make([]Category, len(snap.Categories))
	copy(c.categories, snap.Categories)
	sort.SliceStable(c.categories, func(i, j int) bool {
		if c.categories[i].SortOrder == c.categories[j].SortOrder {
			return c.categories[i].Name < c.categories[j].Name
		}
		return c.categories[i].SortOrder < c.categories[j].SortOrder
	})

	c.generation++
}

func (c *Cache) matchesLocked(snap *Snapshot) bool {
	if len(snap.Products) != len(c.products) || len(snap.Stock) != len(c.stock) || len(snap.Categories) != len(c.categories) {
		return false
	}
	for _, p := range snap.Products {
		cached, ok := c.products[p.ID]
		if !ok || !sameProduct(cached, p) {
			return false
		}
	}
	for _, s := range snap.Stock {
		cached, ok := c.stock[s.ProductID]
		if !ok || cached.Version != s.Version || !cached.QuantityOnHand.Equal(s.QuantityOnHand) ||
			!cached.ReorderLevel.Equal(s.ReorderLevel) {
			return false
		}
	}
	known := make(map[uuid.UUID]Category, len(c.categories))
	for _, cat := range c.categories {
		known[cat.ID] = cat
	}
	for _, cat := range snap.Categories {
		cached, ok := known[cat.ID]
		if !ok || cached.Name != cat.Name || cached.SortOrder != cat.SortOrder {
			return false
		}
	}
	return true
}

func sameProduct(a, b Product) bool {
	sameCategory := (a.CategoryID == nil && b.CategoryID == nil) ||
		(a.CategoryID != nil && b.CategoryID != nil && *a.CategoryID == *b.CategoryID)
	return a.Barcode == b.Barcode &&
		a.ShortCode == b.ShortCode &&
		a.Name == b.Name &&
		a.IsActive == b.IsActive &&
		a.UnitPrice.Equal(b.UnitPrice) &&
		a.CostPrice.Equal(b.CostPrice) &&
		sameCategory
}
