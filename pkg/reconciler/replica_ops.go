// SPDX-License-Identifier: Apache-2.0

package reconciler

import (
	"context"

	"github.com/akam1o/block-orchestrator/pkg/block"
	"github.com/akam1o/block-orchestrator/pkg/blockerr"
	"github.com/akam1o/block-orchestrator/pkg/engine"
)

// ListReplicas returns b's stored replicas joined with the controller's
// live ls-replica view.
func (r *Reconciler) ListReplicas(ctx context.Context, blockID string) ([]engine.JoinedReplica, error) {
	b, err := r.store.GetBlock(blockID)
	if err != nil {
		return nil, err
	}
	return r.replica.ListReplicas(ctx, b)
}

// CreateReplica allocates a new replica for blockID on diskID under lock.
func (r *Reconciler) CreateReplica(ctx context.Context, blockID, diskID string) (*block.Replica, error) {
	var created *block.Replica
	err := r.withLock(ctx, blockID, func(ctx context.Context) error {
		b, err := r.store.GetBlock(blockID)
		if err != nil {
			return err
		}
		disks, err := r.substrate.ListDisks(ctx, "")
		if err != nil {
			return err
		}
		for i := range disks {
			if disks[i].ID == diskID {
				rc, err := r.replica.CreateReplica(ctx, b, &disks[i])
				if err != nil {
					return err
				}
				created = rc
				return nil
			}
		}
		return blockerr.DiskNotFound(diskID)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// RemoveReplica removes replicaID from blockID under lock. Fails
// LastReplicaWithoutForce if it is the block's only replica and force is
// not set.
func (r *Reconciler) RemoveReplica(ctx context.Context, blockID, replicaID string, force bool) error {
	return r.withLock(ctx, blockID, func(ctx context.Context) error {
		b, err := r.store.GetBlock(blockID)
		if err != nil {
			return err
		}
		rc, ok := b.ReplicaByID(replicaID)
		if !ok {
			return blockerr.ReplicaNotFound(replicaID)
		}
		if len(b.Replicas) <= 1 && !force {
			return blockerr.LastReplicaWithoutForce(blockID)
		}
		return r.replica.RemoveReplicaFromBlock(ctx, b, rc)
	})
}

// AttachReplica attaches replicaID to blockID's frontend under lock.
func (r *Reconciler) AttachReplica(ctx context.Context, blockID, replicaID string, opts *engine.AddReplicaOptions) error {
	return r.withLock(ctx, blockID, func(ctx context.Context) error {
		b, err := r.store.GetBlock(blockID)
		if err != nil {
			return err
		}
		rc, ok := b.ReplicaByID(replicaID)
		if !ok {
			return blockerr.ReplicaNotFound(replicaID)
		}
		return r.replica.AddReplicaToFrontend(ctx, b, rc, opts)
	})
}

// DetachReplica detaches replicaID from blockID's frontend under lock.
func (r *Reconciler) DetachReplica(ctx context.Context, blockID, replicaID string) error {
	return r.withLock(ctx, blockID, func(ctx context.Context) error {
		b, err := r.store.GetBlock(blockID)
		if err != nil {
			return err
		}
		rc, ok := b.ReplicaByID(replicaID)
		if !ok {
			return blockerr.ReplicaNotFound(replicaID)
		}
		return r.replica.RemoveReplicaFromFrontend(ctx, b, rc)
	})
}

// UpdateReplicaMode sets replicaID's engine-visible mode under lock.
func (r *Reconciler) UpdateReplicaMode(ctx context.Context, blockID, replicaID string, mode block.Mode) error {
	return r.withLock(ctx, blockID, func(ctx context.Context) error {
		b, err := r.store.GetBlock(blockID)
		if err != nil {
			return err
		}
		rc, ok := b.ReplicaByID(replicaID)
		if !ok {
			return blockerr.ReplicaNotFound(replicaID)
		}
		return r.replica.UpdateReplica(ctx, b, rc, mode)
	})
}

// RebuildStatus reports replicaID's rebuild progress.
func (r *Reconciler) RebuildStatus(ctx context.Context, blockID, replicaID string) (string, error) {
	b, err := r.store.GetBlock(blockID)
	if err != nil {
		return "", err
	}
	rc, ok := b.ReplicaByID(replicaID)
	if !ok {
		return "", blockerr.ReplicaNotFound(replicaID)
	}
	return r.replica.RebuildStatus(ctx, b, rc)
}

// VerifyRebuild verifies a just-rebuilt replica under lock.
func (r *Reconciler) VerifyRebuild(ctx context.Context, blockID, replicaID string) error {
	return r.withLock(ctx, blockID, func(ctx context.Context) error {
		b, err := r.store.GetBlock(blockID)
		if err != nil {
			return err
		}
		rc, ok := b.ReplicaByID(replicaID)
		if !ok {
			return blockerr.ReplicaNotFound(replicaID)
		}
		return r.replica.VerifyRebuild(ctx, b, rc)
	})
}
