package cron

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type memoryRedis struct {
	values map[string]string
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func TestRedisLockOwnership(t *testing.T) {
	store := &memoryRedis{values: map[string]string{}}
	first, err := NewRedisLock(store, "tp:lock:cron", 0)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "tp:lock:cron", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.Acquire(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	// releasing a lock it never took leaves the owner's key alone
	require.NoError(t, second.Release(context.Background()))
	require.Contains(t, store.values, "tp:lock:cron")

	require.NoError(t, first.Release(context.Background()))
	require.NotContains(t, store.values, "tp:lock:cron")

	_, err = NewRedisLock(nil, "k", 0)
	require.Error(t, err)
	_, err = NewRedisLock(store, "", 0)
	require.Error(t, err)
}
