package sales

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/tillpoint-backend/pkg/errors"
)

func TestProductLocksTimeoutWithContention(t *testing.T) {
	locks := newProductLocks()
	a, b := uuid.New(), uuid.New()

	release, err := locks.acquire(context.Background(), []uuid.UUID{a}, time.Second)
	require.NoError(t, err)

	_, err = locks.acquire(context.Background(), []uuid.UUID{b, a}, 20*time.Millisecond)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeContention))

	// b was released when the second acquire gave up
	releaseB, err := locks.acquire(context.Background(), []uuid.UUID{b}, 20*time.Millisecond)
	require.NoError(t, err)
	releaseB()

	release()
	release()

	releaseAll, err := locks.acquire(context.Background(), []uuid.UUID{a, b, a}, 20*time.Millisecond)
	require.NoError(t, err)
	releaseAll()

	locks.mu.Lock()
	assert.Empty(t, locks.slots)
	locks.mu.Unlock()
}

func TestProductLocksHonourCancellation(t *testing.T) {
	locks := newProductLocks()
	id := uuid.New()
	release, err := locks.acquire(context.Background(), []uuid.UUID{id}, time.Second)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locks.acquire(ctx, []uuid.UUID{id}, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProductLocksHandOver(t *testing.T) {
	locks := newProductLocks()
	id := uuid.New()
	release, err := locks.acquire(context.Background(), []uuid.UUID{id}, time.Second)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		r, err := locks.acquire(context.Background(), []uuid.UUID{id}, time.Second)
		if err == nil {
			r()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired while the lock was held")
	case <-time.After(20 * time.Millisecond):
	}
	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock was not handed over")
	}
}

func TestFormatSaleNumber(t *testing.T) {
	at := time.Date(2024, 12, 31, 23, 59, 58, 0, time.FixedZone("EST", -5*3600))
	assert.Equal(t, "SALE-20250101045958-42", FormatSaleNumber(at, 42))

	var seq LocalSequence
	first, _ := seq.NextSaleSequence(context.Background(), at)
	second, _ := seq.NextSaleSequence(context.Background(), at)
	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
}
