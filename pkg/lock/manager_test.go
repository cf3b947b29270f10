// SPDX-License-Identifier: Apache-2.0

package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLockSerializesSameKey(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	var mu sync.Mutex
	order := []int{}

	var wg sync.WaitGroup
	l1, err := m.AcquireLock(ctx, "block-1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l, err := m.AcquireLock(ctx, "block-1")
			require.NoError(t, err)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			l.Release(ctx)
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, order, "waiters must not proceed while block-1 is held")
	mu.Unlock()

	require.NoError(t, l1.Release(ctx))
	wg.Wait()

	mu.Lock()
	assert.Len(t, order, 3)
	mu.Unlock()
}

func TestAcquireLockDifferentKeysDoNotBlock(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	l1, err := m.AcquireLock(ctx, "block-1")
	require.NoError(t, err)
	defer l1.Release(ctx)

	done := make(chan struct{})
	go func() {
		l2, err := m.AcquireLock(ctx, "block-2")
		require.NoError(t, err)
		l2.Release(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key should not be blocked by block-1's holder")
	}
}

func TestAcquireLockRespectsContextCancellation(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	l1, err := m.AcquireLock(ctx, "block-1")
	require.NoError(t, err)
	defer l1.Release(ctx)

	cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	_, err = m.AcquireLock(cancelCtx, "block-1")
	assert.Error(t, err)
}

func TestKeyIsReleasedAfterLastWaiterReleases(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	l, err := m.AcquireLock(ctx, "block-1")
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx))

	m.mu.Lock()
	_, exists := m.locks["block-1"]
	m.mu.Unlock()
	assert.False(t, exists, "key should be cleaned up once its refcount drops to zero")
}
