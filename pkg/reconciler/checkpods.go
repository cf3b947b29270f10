// SPDX-License-Identifier: Apache-2.0

package reconciler

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/klog/v2"

	"github.com/akam1o/block-orchestrator/pkg/block"
	"github.com/akam1o/block-orchestrator/pkg/blockerr"
)

// CheckPods reconciles b's controller and replica state against what the
// orchestrator currently reports for their pods (spec.md §4.5).
func (r *Reconciler) CheckPods(ctx context.Context, blockID string) error {
	return r.withLock(ctx, blockID, func(ctx context.Context) error {
		b, err := r.store.GetBlock(blockID)
		if err != nil {
			return err
		}
		if err := r.checkController(ctx, b); err != nil {
			return err
		}
		r.checkReplicas(ctx, b)
		return r.controller.UpdateFrontendState(ctx, b)
	})
}

// checkController is fatal if the controller pod is missing entirely; it
// flips the block offline if the pod exists but isn't Running, and back
// online if it has recovered.
func (r *Reconciler) checkController(ctx context.Context, b *block.Block) error {
	if b.Controller == nil {
		return blockerr.NoController(b.ID)
	}

	pod, err := r.orch.GetPod(ctx, b.Namespace, b.Name)
	if err != nil {
		return blockerr.PodNotFound(b.Name)
	}

	running := pod.Status.Phase == corev1.PodRunning
	if running && !b.Online {
		b.Online = true
		klog.Infof("block %s controller pod recovered: marking online", b.ID)
	} else if !running && b.Online {
		b.Online = false
		klog.Infof("block %s controller pod not running (phase %s): marking offline", b.ID, pod.Status.Phase)
	}
	return r.store.UpdateBlock(b)
}

// checkReplicas walks every replica, reconciling its pod state:
//   - missing pod: detach from frontend, mark unhealthy.
//   - pod present but not Running: detach, await the next Running event.
//   - pod Running but replica not yet healthy: populate ip/endpoint, mark
//     healthy, attempt attach.
func (r *Reconciler) checkReplicas(ctx context.Context, b *block.Block) {
	replicas := make([]block.Replica, len(b.Replicas))
	copy(replicas, b.Replicas)

	for i := range replicas {
		rc := &replicas[i]
		pod, err := r.orch.GetPod(ctx, b.Namespace, rc.Name)
		if err != nil {
			r.markReplicaUnhealthy(ctx, b, rc)
			continue
		}

		switch pod.Status.Phase {
		case corev1.PodRunning:
			if !rc.Healthy {
				r.markReplicaHealthy(ctx, b, rc, pod.Status.PodIP)
			}
		default:
			if rc.Healthy {
				r.markReplicaUnhealthy(ctx, b, rc)
			}
		}
	}
}

func (r *Reconciler) markReplicaUnhealthy(ctx context.Context, b *block.Block, rc *block.Replica) {
	if rc.Attached {
		if stored, ok := b.ReplicaByID(rc.ID); ok {
			if err := r.replica.RemoveReplicaFromFrontend(ctx, b, stored); err != nil {
				klog.Warningf("failed to detach unhealthy replica %s (block %s): %v", rc.Name, b.ID, err)
			}
		}
	}
	applyToStored(b, rc.ID, func(stored *block.Replica) {
		stored.Healthy = false
		stored.Status = block.StatusUnhealthy
		stored.Attached = false
	})
}

func (r *Reconciler) markReplicaHealthy(ctx context.Context, b *block.Block, rc *block.Replica, podIP string) {
	endpoint := block.Endpoint(podIP)
	applyToStored(b, rc.ID, func(stored *block.Replica) {
		stored.IP = &podIP
		stored.Endpoint = &endpoint
		stored.Healthy = true
		stored.Status = block.StatusHealthy
	})
	if err := r.store.UpdateBlock(b); err != nil {
		klog.Warningf("failed to persist replica health for block %s replica %s: %v", b.ID, rc.Name, err)
		return
	}
	if updated, ok := b.ReplicaByID(rc.ID); ok {
		if err := r.replica.AddReplicaToFrontend(ctx, b, updated, nil); err != nil {
			klog.Warningf("failed to attach recovered replica %s (block %s): %v", rc.Name, b.ID, err)
		}
	}
}

// applyToStored finds the replica with id in b.Replicas and applies fn to
// it in place, since CheckPods' working copy is a separate snapshot.
func applyToStored(b *block.Block, id string, fn func(*block.Replica)) {
	if stored, ok := b.ReplicaByID(id); ok {
		fn(stored)
	}
}

// BalanceBlock reconciles replica count toward b.ReplicaCount, preserving
// locality where possible (spec.md §4.5).
func (r *Reconciler) BalanceBlock(ctx context.Context, blockID string) error {
	return r.withLock(ctx, blockID, func(ctx context.Context) error {
		b, err := r.store.GetBlock(blockID)
		if err != nil {
			return err
		}

		switch {
		case len(b.Replicas) < b.ReplicaCount:
			r.balanceUp(ctx, b)
		case len(b.Replicas) > b.ReplicaCount:
			r.balanceDown(ctx, b)
		default:
			if b.Locality == block.LocalityRemote {
				r.balanceLocal(ctx, b)
			}
		}

		return r.controller.UpdateFrontendState(ctx, b)
	})
}

func (r *Reconciler) balanceUp(ctx context.Context, b *block.Block) {
	for len(b.Replicas) < b.ReplicaCount {
		exclude := make(map[string]bool, len(b.Replicas))
		for _, rc := range b.Replicas {
			exclude[rc.Disk] = true
		}
		candidates, err := r.budgetDisks(ctx, b.SizeGiB, exclude)
		if err != nil {
			klog.Warningf("balanceUp: failed to list candidate disks for block %s: %v", b.ID, err)
			return
		}
		if len(candidates) == 0 {
			klog.Warningf("balanceUp: no available disk to grow block %s to %d replicas (have %d)", b.ID, b.ReplicaCount, len(b.Replicas))
			return
		}
		if _, err := r.replica.CreateReplica(ctx, b, &candidates[0]); err != nil {
			klog.Warningf("balanceUp: failed to create replica for block %s: %v", b.ID, err)
			return
		}
	}
}

func (r *Reconciler) balanceDown(ctx context.Context, b *block.Block) {
	candidates := make([]block.Replica, len(b.Replicas))
	copy(candidates, b.Replicas)

	for i := len(candidates) - 1; i >= 0 && len(b.Replicas) > b.ReplicaCount; i-- {
		rc := candidates[i]
		if rc.Node == b.Node {
			continue // preserve locality: never remove the local replica here
		}
		if _, ok := b.ReplicaByID(rc.ID); !ok {
			continue // already removed in an earlier pass
		}
		if err := r.replica.RemoveReplicaFromBlock(ctx, b, &rc); err != nil {
			klog.Warningf("balanceDown: failed to remove replica %s from block %s: %v", rc.Name, b.ID, err)
		}
	}
}

func (r *Reconciler) balanceLocal(ctx context.Context, b *block.Block) {
	disks, err := r.nodeDisks(ctx, b.Node)
	if err != nil || len(disks) == 0 {
		klog.V(4).Infof("balanceLocal: no disk on preferred node %s for block %s", b.Node, b.ID)
		return
	}
	if _, err := r.replica.CreateReplica(ctx, b, &disks[0]); err != nil {
		klog.Warningf("balanceLocal: best-effort local replica creation failed for block %s: %v", b.ID, err)
	}
}
