// SPDX-License-Identifier: Apache-2.0

// Package lock provides per-key serialization for block reconciliation.
// The orchestrator runs a single active controller per cluster, so an
// in-process keyed mutex map is sufficient, without the overhead of a
// Kubernetes Lease that a cross-process distributed lock would require.
// Waiters on the same key are not served in arrival order: which waiter
// gets the key next is up to sync.Mutex.
package lock

import (
	"context"
	"fmt"
	"sync"

	"k8s.io/klog/v2"
)

// Manager serializes access to resources identified by a string key.
type Manager struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu       sync.Mutex
	waiters  int
}

// Lock represents an acquired lock on a single key.
type Lock struct {
	manager *Manager
	key     string
	kl      *keyLock
}

// NewManager creates a new lock manager.
func NewManager() *Manager {
	return &Manager{
		locks: make(map[string]*keyLock),
	}
}

// AcquireLock blocks, respecting ctx cancellation, until the named resource
// is exclusively held by the caller.
func (m *Manager) AcquireLock(ctx context.Context, resourceName string) (*Lock, error) {
	kl := m.refKey(resourceName)

	acquired := make(chan struct{})
	go func() {
		kl.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		klog.V(4).Infof("acquired lock for resource %s", resourceName)
		return &Lock{manager: m, key: resourceName, kl: kl}, nil
	case <-ctx.Done():
		// The goroutine above may still acquire kl.mu later; hand it back
		// as soon as it does so the key is not left held by nobody.
		go func() {
			<-acquired
			kl.mu.Unlock()
			m.unrefKey(resourceName)
		}()
		return nil, fmt.Errorf("failed to acquire lock for %s: %w", resourceName, ctx.Err())
	}
}

func (m *Manager) refKey(key string) *keyLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	kl, ok := m.locks[key]
	if !ok {
		kl = &keyLock{}
		m.locks[key] = kl
	}
	kl.waiters++
	return kl
}

func (m *Manager) unrefKey(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if kl, ok := m.locks[key]; ok {
		kl.waiters--
		if kl.waiters <= 0 {
			delete(m.locks, key)
		}
	}
}

// Release releases the lock.
func (l *Lock) Release(ctx context.Context) error {
	l.kl.mu.Unlock()
	l.manager.unrefKey(l.key)
	klog.V(4).Infof("released lock for resource %s", l.key)
	return nil
}
