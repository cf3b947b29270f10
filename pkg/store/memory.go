// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/akam1o/block-orchestrator/pkg/block"
)

// MemoryStore provides in-memory storage for Block metadata. Useful for
// tests and for development without a Kubernetes API server.
type MemoryStore struct {
	blocks map[string]*block.Block // blockID -> block
	mu     sync.RWMutex
}

// NewMemoryStore creates a new memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blocks: make(map[string]*block.Block),
	}
}

// CreateBlock stores a new Block.
func (s *MemoryStore) CreateBlock(b *block.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.blocks[b.ID]; exists {
		return fmt.Errorf("%w: block %s", ErrAlreadyExists, b.ID)
	}

	now := time.Now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	s.blocks[b.ID] = b.Clone()
	return nil
}

// UpdateBlock replaces the stored Block, including a wholesale replacement
// of its Replicas slice.
func (s *MemoryStore) UpdateBlock(b *block.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.blocks[b.ID]
	if !exists {
		return fmt.Errorf("%w: block %s", ErrNotFound, b.ID)
	}

	b.CreatedAt = existing.CreatedAt
	b.UpdatedAt = time.Now()
	s.blocks[b.ID] = b.Clone()
	return nil
}

// GetBlock retrieves a Block by id.
func (s *MemoryStore) GetBlock(blockID string) (*block.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, exists := s.blocks[blockID]
	if !exists {
		return nil, fmt.Errorf("%w: block %s", ErrNotFound, blockID)
	}

	return b.Clone(), nil
}

// GetBlockByName retrieves a Block by namespace/name.
func (s *MemoryStore) GetBlockByName(namespace, name string) (*block.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.blocks {
		if b.Namespace == namespace && b.Name == name && !b.Deleted() {
			return b.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: block %s/%s", ErrNotFound, namespace, name)
}

// DeleteBlock soft-deletes a Block by setting DeletedAt.
func (s *MemoryStore) DeleteBlock(blockID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, exists := s.blocks[blockID]
	if !exists {
		return nil
	}

	now := time.Now()
	b.DeletedAt = &now
	b.UpdatedAt = now
	return nil
}

// FindBlockByPod resolves the Block owning podUID.
func (s *MemoryStore) FindBlockByPod(podUID string) (*block.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.blocks {
		if b.Deleted() {
			continue
		}
		if b.Controller != nil && *b.Controller == podUID {
			return b.Clone(), nil
		}
		if _, ok := b.ReplicaByPod(podUID); ok {
			return b.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: pod %s", ErrNotFound, podUID)
}

// ListBlocks returns Blocks in a namespace, excluding soft-deleted ones
// unless includeDeleted is set.
func (s *MemoryStore) ListBlocks(namespace string, includeDeleted bool) ([]*block.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*block.Block
	for _, b := range s.blocks {
		if namespace != "" && b.Namespace != namespace {
			continue
		}
		if b.Deleted() && !includeDeleted {
			continue
		}
		result = append(result, b.Clone())
	}

	return result, nil
}
