// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/akam1o/block-orchestrator/pkg/block"
	lru "github.com/hashicorp/golang-lru/v2"
	"k8s.io/klog/v2"
)

// cacheEntry wraps a cached Block with a timestamp for TTL checking.
type cacheEntry struct {
	data      *block.Block
	timestamp time.Time
}

// CachedStore wraps a Store implementation with an LRU read-through cache.
type CachedStore struct {
	store    Store
	cache    *lru.Cache[string, *cacheEntry]
	cacheTTL time.Duration
	mu       sync.Mutex // exclusive lock guards all LRU operations
}

// NewCachedStore creates a new cached store wrapper.
func NewCachedStore(store Store, cacheTTL time.Duration, cacheSize int) (*CachedStore, error) {
	cache, err := lru.New[string, *cacheEntry](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create block cache: %w", err)
	}

	klog.Infof("initialized block cache: size=%d, TTL=%v", cacheSize, cacheTTL)

	return &CachedStore{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
	}, nil
}

func (s *CachedStore) isExpired(entry *cacheEntry) bool {
	return time.Since(entry.timestamp) > s.cacheTTL
}

func (s *CachedStore) invalidate(blockID string) {
	s.mu.Lock()
	s.cache.Remove(blockID)
	s.mu.Unlock()
}

// CreateBlock creates a Block and invalidates its cache entry.
func (s *CachedStore) CreateBlock(b *block.Block) error {
	if err := s.store.CreateBlock(b); err != nil {
		return err
	}
	s.invalidate(b.ID)
	return nil
}

// UpdateBlock updates a Block and invalidates its cache entry.
func (s *CachedStore) UpdateBlock(b *block.Block) error {
	if err := s.store.UpdateBlock(b); err != nil {
		return err
	}
	s.invalidate(b.ID)
	return nil
}

// GetBlock retrieves a Block, using the cache when possible.
func (s *CachedStore) GetBlock(blockID string) (*block.Block, error) {
	s.mu.Lock()
	entry, ok := s.cache.Get(blockID)
	if ok && !s.isExpired(entry) {
		s.mu.Unlock()
		klog.V(4).Infof("block cache hit: %s", blockID)
		return entry.data.Clone(), nil
	}
	s.mu.Unlock()

	klog.V(4).Infof("block cache miss: %s", blockID)
	b, err := s.store.GetBlock(blockID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache.Add(blockID, &cacheEntry{data: b.Clone(), timestamp: time.Now()})
	s.mu.Unlock()

	return b.Clone(), nil
}

// GetBlockByName retrieves a Block by namespace/name (not cached, since the
// cache is keyed by id).
func (s *CachedStore) GetBlockByName(namespace, name string) (*block.Block, error) {
	return s.store.GetBlockByName(namespace, name)
}

// FindBlockByPod resolves the Block owning podUID (not cached, since the
// cache is keyed by id and this is a full-scan lookup regardless).
func (s *CachedStore) FindBlockByPod(podUID string) (*block.Block, error) {
	return s.store.FindBlockByPod(podUID)
}

// DeleteBlock deletes a Block and invalidates its cache entry.
func (s *CachedStore) DeleteBlock(blockID string) error {
	if err := s.store.DeleteBlock(blockID); err != nil {
		return err
	}
	s.invalidate(blockID)
	return nil
}

// ListBlocks returns Blocks (list results are never cached).
func (s *CachedStore) ListBlocks(namespace string, includeDeleted bool) ([]*block.Block, error) {
	return s.store.ListBlocks(namespace, includeDeleted)
}
