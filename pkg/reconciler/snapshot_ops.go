// SPDX-License-Identifier: Apache-2.0

package reconciler

import (
	"context"

	"github.com/akam1o/block-orchestrator/pkg/engine"
)

// Snapshot operations exec directly against an already-running controller
// and don't mutate the Block entity, so none of the wrappers below take
// the per-block lock the other Reconciler operations do.

// CreateSnapshot takes a new snapshot of blockID's current head.
func (r *Reconciler) CreateSnapshot(ctx context.Context, blockID string) (string, error) {
	b, err := r.store.GetBlock(blockID)
	if err != nil {
		return "", err
	}
	return r.snapshot.Create(ctx, b)
}

// RevertSnapshot rolls blockID back to a named snapshot.
func (r *Reconciler) RevertSnapshot(ctx context.Context, blockID, name string) error {
	b, err := r.store.GetBlock(blockID)
	if err != nil {
		return err
	}
	return r.snapshot.Revert(ctx, b, name)
}

// ListSnapshots returns blockID's snapshot names.
func (r *Reconciler) ListSnapshots(ctx context.Context, blockID string) ([]string, error) {
	b, err := r.store.GetBlock(blockID)
	if err != nil {
		return nil, err
	}
	return r.snapshot.List(ctx, b)
}

// RemoveSnapshot deletes a named snapshot from blockID.
func (r *Reconciler) RemoveSnapshot(ctx context.Context, blockID, name string) error {
	b, err := r.store.GetBlock(blockID)
	if err != nil {
		return err
	}
	return r.snapshot.Remove(ctx, b, name)
}

// PurgeSnapshots reclaims blockID's snapshots whose child is the volume
// head.
func (r *Reconciler) PurgeSnapshots(ctx context.Context, blockID string, skipIfInProgress bool) error {
	b, err := r.store.GetBlock(blockID)
	if err != nil {
		return err
	}
	return r.snapshot.Purge(ctx, b, skipIfInProgress)
}

// SnapshotPurgeStatus reports blockID's in-flight purge progress.
func (r *Reconciler) SnapshotPurgeStatus(ctx context.Context, blockID string) (string, error) {
	b, err := r.store.GetBlock(blockID)
	if err != nil {
		return "", err
	}
	return r.snapshot.PurgeStatus(ctx, b)
}

// SnapshotInfo returns blockID's snapshot chain description.
func (r *Reconciler) SnapshotInfo(ctx context.Context, blockID string) (string, error) {
	b, err := r.store.GetBlock(blockID)
	if err != nil {
		return "", err
	}
	return r.snapshot.Info(ctx, b)
}

// CloneSnapshot creates a snapshot on blockID by cloning from another
// volume's controller.
func (r *Reconciler) CloneSnapshot(ctx context.Context, blockID string, opts engine.CloneOptions) error {
	b, err := r.store.GetBlock(blockID)
	if err != nil {
		return err
	}
	return r.snapshot.Clone(ctx, b, opts)
}

// SnapshotCloneStatus reports a clone's progress on blockID.
func (r *Reconciler) SnapshotCloneStatus(ctx context.Context, blockID, name string) (string, error) {
	b, err := r.store.GetBlock(blockID)
	if err != nil {
		return "", err
	}
	return r.snapshot.CloneStatus(ctx, b, name)
}

// HashSnapshot requests a checksum of a snapshot on blockID.
func (r *Reconciler) HashSnapshot(ctx context.Context, blockID, name string) (string, error) {
	b, err := r.store.GetBlock(blockID)
	if err != nil {
		return "", err
	}
	return r.snapshot.Hash(ctx, b, name)
}

// HashSnapshotCancel cancels an in-flight hash computation on blockID.
func (r *Reconciler) HashSnapshotCancel(ctx context.Context, blockID, name string) (string, error) {
	b, err := r.store.GetBlock(blockID)
	if err != nil {
		return "", err
	}
	return r.snapshot.HashCancel(ctx, b, name)
}

// HashSnapshotStatus reports a hash computation's progress on blockID.
func (r *Reconciler) HashSnapshotStatus(ctx context.Context, blockID, name string) (string, error) {
	b, err := r.store.GetBlock(blockID)
	if err != nil {
		return "", err
	}
	return r.snapshot.HashStatus(ctx, b, name)
}
