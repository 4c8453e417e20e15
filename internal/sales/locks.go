package sales

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/tillpoint-backend/pkg/errors"
)

// productLocks serializes engine units per product within this process.
// Keys are always taken in sorted order so two units cannot deadlock.
type productLocks struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func newProductLocks() *productLocks {
	return &productLocks{slots: map[uuid.UUID]*lockSlot{}}
}

// acquire takes every key or none. It gives up with CONTENTION after timeout.
func (l *productLocks) acquire(ctx context.Context, keys []uuid.UUID, timeout time.Duration) (func(), error) {
	keys = sortedUnique(keys)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	held := make([]*lockSlot, 0, len(keys))
	releaseHeld := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i].ch
		}
		l.unref(keys[:len(held)])
	}

	for i, key := range keys {
		slot := l.ref(key)
		select {
		case slot.ch <- struct{}{}:
			held = append(held, slot)
		case <-timer.C:
			l.unref(keys[i : i+1])
			releaseHeld()
			return nil, pkgerrors.New(pkgerrors.CodeContention, "timed out waiting for product lock").
				WithDetails(map[string]any{"product_id": key})
		case <-ctx.Done():
			l.unref(keys[i : i+1])
			releaseHeld()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(releaseHeld) }, nil
}

func (l *productLocks) ref(key uuid.UUID) *lockSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	return slot
}

func (l *productLocks) unref(keys []uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, key := range keys {
		slot := l.slots[key]
		if slot == nil {
			continue
		}
		slot.refs--
		if slot.refs <= 0 {
			delete(l.slots, key)
		}
	}
}

func sortedUnique(keys []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(keys))
	seen := make(map[uuid.UUID]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
