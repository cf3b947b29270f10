// SPDX-License-Identifier: Apache-2.0

// Package events maps orchestrator pod lifecycle events to the Block they
// belong to and dispatches the resulting state transition under that
// Block's lock (spec.md §4.6).
package events

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/klog/v2"

	"github.com/akam1o/block-orchestrator/pkg/block"
	"github.com/akam1o/block-orchestrator/pkg/engine"
	"github.com/akam1o/block-orchestrator/pkg/lock"
	"github.com/akam1o/block-orchestrator/pkg/orchestrator"
	"github.com/akam1o/block-orchestrator/pkg/store"
)

// Multiplexer subscribes to pod lifecycle events in the configured
// namespace and resolves each to its owning Block.
type Multiplexer struct {
	orch       orchestrator.Client
	store      store.Store
	locks      *lock.Manager
	controller *engine.ControllerDriver
	replica    *engine.ReplicaDriver
	namespace  string
}

// New creates a new Event Multiplexer.
func New(orch orchestrator.Client, st store.Store, locks *lock.Manager, controller *engine.ControllerDriver, replica *engine.ReplicaDriver, namespace string) *Multiplexer {
	return &Multiplexer{orch: orch, store: st, locks: locks, controller: controller, replica: replica, namespace: namespace}
}

// Run subscribes to the namespace's pod events and dispatches each until
// ctx is cancelled. Intended to run in its own goroutine from main.
func (m *Multiplexer) Run(ctx context.Context) error {
	events, err := m.orch.WatchPods(ctx, m.namespace, "")
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			m.dispatch(ctx, ev)
		}
	}
}

func (m *Multiplexer) dispatch(ctx context.Context, ev orchestrator.PodEvent) {
	if ev.Pod == nil {
		return
	}

	owner, err := m.store.FindBlockByPod(string(ev.Pod.UID))
	if err != nil {
		klog.V(4).Infof("pod event for %s/%s matches no block: %v", ev.Pod.Namespace, ev.Pod.Name, err)
		return
	}

	if err := m.handle(ctx, owner.ID, ev.Pod); err != nil {
		klog.Errorf("failed to handle pod event for block %s: %v", owner.ID, err)
	}
}

// handle acquires the owning Block's lock, reloads its freshest persisted
// state, and applies the single applicable case of spec.md §4.6 step 3.
func (m *Multiplexer) handle(ctx context.Context, blockID string, pod *corev1.Pod) error {
	l, err := m.locks.AcquireLock(ctx, blockID)
	if err != nil {
		return err
	}
	defer l.Release(ctx)

	b, err := m.store.GetBlock(blockID)
	if err != nil {
		return err
	}
	if b.Deleted() {
		return nil
	}

	if b.Controller != nil && *b.Controller == string(pod.UID) {
		return m.handleControllerEvent(ctx, b, pod)
	}
	if rc, ok := b.ReplicaByPod(string(pod.UID)); ok {
		return m.handleReplicaEvent(ctx, b, rc, pod)
	}
	return nil
}

func (m *Multiplexer) handleControllerEvent(ctx context.Context, b *block.Block, pod *corev1.Pod) error {
	switch {
	case pod.Status.Phase == corev1.PodRunning && !b.Online:
		b.Online = true
		if err := m.store.UpdateBlock(b); err != nil {
			return err
		}
		klog.Infof("block %s controller pod running: marking online", b.ID)

		replicas := make([]block.Replica, len(b.Replicas))
		copy(replicas, b.Replicas)
		for i := range replicas {
			if stored, ok := b.ReplicaByID(replicas[i].ID); ok {
				if err := m.replica.AddReplicaToFrontend(ctx, b, stored, nil); err != nil {
					klog.Warningf("failed to attach replica %s on controller-up for block %s: %v", stored.Name, b.ID, err)
				}
			}
		}
		return m.controller.UpdateFrontendState(ctx, b)

	case isTerminating(pod) && b.Online:
		b.Online = false
		b.Mounted = false
		b.FrontendState = false
		b.Device = nil
		return m.store.UpdateBlock(b)
	}
	return nil
}

func (m *Multiplexer) handleReplicaEvent(ctx context.Context, b *block.Block, rc *block.Replica, pod *corev1.Pod) error {
	switch {
	case pod.Status.Phase == corev1.PodRunning && !rc.Healthy:
		ip := pod.Status.PodIP
		endpoint := block.Endpoint(ip)
		rc.Healthy = true
		rc.Status = block.StatusHealthy
		rc.IP = &ip
		rc.Endpoint = &endpoint
		if err := m.store.UpdateBlock(b); err != nil {
			return err
		}
		if err := m.replica.AddReplicaToFrontend(ctx, b, rc, nil); err != nil {
			klog.Warningf("failed to attach newly-healthy replica %s for block %s: %v", rc.Name, b.ID, err)
		}
		return m.controller.UpdateFrontendState(ctx, b)

	case isTerminating(pod) && rc.Healthy:
		if err := m.replica.RemoveReplicaFromFrontend(ctx, b, rc); err != nil {
			klog.Warningf("failed to detach terminating replica %s for block %s: %v", rc.Name, b.ID, err)
		}
		rc.Pod = ""
		rc.IP = nil
		rc.Endpoint = nil
		rc.Healthy = false
		rc.Status = block.StatusUnhealthy
		if err := m.store.UpdateBlock(b); err != nil {
			return err
		}
		return m.controller.UpdateFrontendState(ctx, b)
	}
	return nil
}

// isTerminating reports whether pod is on its way out: either already
// gone, or marked for deletion by the orchestrator.
func isTerminating(pod *corev1.Pod) bool {
	return pod.DeletionTimestamp != nil || pod.Status.Phase == corev1.PodFailed || pod.Status.Phase == corev1.PodSucceeded
}
