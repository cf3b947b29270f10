// SPDX-License-Identifier: Apache-2.0

package store

import "github.com/akam1o/block-orchestrator/pkg/block"

// Store defines the interface for Block metadata storage.
// Implementations include MemoryStore (in-memory), CRDStore (persistent
// via Kubernetes CRDs) and CachedStore (LRU read-through wrapper).
type Store interface {
	CreateBlock(b *block.Block) error
	UpdateBlock(b *block.Block) error
	GetBlock(blockID string) (*block.Block, error)
	GetBlockByName(namespace, name string) (*block.Block, error)
	DeleteBlock(blockID string) error
	ListBlocks(namespace string, includeDeleted bool) ([]*block.Block, error)

	// FindBlockByPod resolves the Block owning podUID, matching either the
	// controller handle or any replica's pod handle (spec.md §4.7). Returns
	// ErrNotFound if no non-deleted Block owns it.
	FindBlockByPod(podUID string) (*block.Block, error)
}
