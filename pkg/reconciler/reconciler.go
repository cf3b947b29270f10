// SPDX-License-Identifier: Apache-2.0

// Package reconciler implements the Volume Reconciler (spec.md §4.5): the
// state machine that provisions, balances, formats, mounts and unmounts a
// Block, delegating to the engine drivers for the controller/replica
// protocol and to the node terminal for filesystem operations.
package reconciler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/akam1o/block-orchestrator/pkg/block"
	"github.com/akam1o/block-orchestrator/pkg/blockerr"
	"github.com/akam1o/block-orchestrator/pkg/engine"
	"github.com/akam1o/block-orchestrator/pkg/lock"
	"github.com/akam1o/block-orchestrator/pkg/nodeterm"
	"github.com/akam1o/block-orchestrator/pkg/orchestrator"
	"github.com/akam1o/block-orchestrator/pkg/store"
	"github.com/akam1o/block-orchestrator/pkg/substrate"
)

const (
	mountFolderPrefix = "block"
	defaultFSType     = "ext4"
)

// Config carries the reconciler's cluster-wide defaults (spec.md §6).
type Config struct {
	Cluster      string
	Namespace    string
	DefaultSizeGiB int
	ReplicaCount int
}

// Reconciler is the Volume Reconciler (C5).
type Reconciler struct {
	store     store.Store
	locks     *lock.Manager
	orch      orchestrator.Client
	substrate substrate.Client
	nodeterm  nodeterm.Client

	controller *engine.ControllerDriver
	replica    *engine.ReplicaDriver
	snapshot   *engine.SnapshotOperator

	cfg Config
}

// New creates a new Volume Reconciler, wiring the engine drivers' follow-on
// continuation to this Reconciler's Format/Mount/Unmount chain.
func New(st store.Store, locks *lock.Manager, orch orchestrator.Client, sub substrate.Client, nt nodeterm.Client, controller *engine.ControllerDriver, replica *engine.ReplicaDriver, snapshot *engine.SnapshotOperator, cfg Config) *Reconciler {
	r := &Reconciler{
		store: st, locks: locks, orch: orch, substrate: sub, nodeterm: nt,
		controller: controller, replica: replica, snapshot: snapshot, cfg: cfg,
	}
	controller.SetFollowOn(r.frontendStateFollowOn)
	return r
}

func (r *Reconciler) withLock(ctx context.Context, blockID string, fn func(ctx context.Context) error) error {
	l, err := r.locks.AcquireLock(ctx, blockID)
	if err != nil {
		return err
	}
	defer l.Release(ctx)
	return fn(ctx)
}

// frontendStateFollowOn runs after UpdateFrontendState observes a
// transition, inside the caller's held lock: format+mount on frontend-up,
// unmount on frontend-down (spec.md §4.2).
func (r *Reconciler) frontendStateFollowOn(ctx context.Context, b *block.Block, up bool) error {
	if up && !b.Mounted {
		if !b.Formatted {
			if err := r.format(ctx, b, defaultFSType, 0, false); err != nil {
				klog.Warningf("follow-on format failed for block %s: %v", b.ID, err)
				return nil
			}
		}
		if err := r.mount(ctx, b, false); err != nil {
			klog.Warningf("follow-on mount failed for block %s: %v", b.ID, err)
		}
		return nil
	}
	if !up && b.Mounted {
		if err := r.unmount(ctx, b, true); err != nil {
			klog.Warningf("follow-on unmount failed for block %s: %v", b.ID, err)
		}
	}
	return nil
}

// budgetDisks returns schedulable disks with at least sizeGiB available,
// excluding any in excludeDiskIDs. size*1024 MiB equals sizeGiB when
// re-expressed in GiB, so the budget comparison stays in GiB throughout.
func (r *Reconciler) budgetDisks(ctx context.Context, sizeGiB int, excludeDiskIDs map[string]bool) ([]substrate.Disk, error) {
	disks, err := r.substrate.ListDisks(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list disks: %w", err)
	}
	var out []substrate.Disk
	for _, d := range disks {
		if !d.Schedulable || d.AvailableGiB < sizeGiB {
			continue
		}
		if excludeDiskIDs != nil && excludeDiskIDs[d.ID] {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *Reconciler) nodeDisks(ctx context.Context, node string) ([]substrate.Disk, error) {
	disks, err := r.substrate.ListDisks(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list disks: %w", err)
	}
	var out []substrate.Disk
	for _, d := range disks {
		if d.Schedulable && d.Node == node {
			out = append(out, d)
		}
	}
	return out, nil
}

// Provision creates a new Block and brings up its controller and initial
// replica set (spec.md §4.5).
func (r *Reconciler) Provision(ctx context.Context, name, node string, sizeGiB, replicaCount int) (*block.Block, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	if _, err := r.store.GetBlockByName(r.cfg.Namespace, name); err == nil {
		return nil, blockerr.BlockExists(name)
	} else if !store.IsNotFound(err) {
		return nil, fmt.Errorf("failed to look up block %s: %w", name, err)
	}

	disks, err := r.nodeDisks(ctx, node)
	if err != nil {
		return nil, err
	}
	if len(disks) == 0 {
		return nil, blockerr.NodeStorageNotFound(node)
	}

	folder, err := r.substrate.AllocateFolder(ctx, disks[0].ID, mountFolderPrefix+"-"+name)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate mount-point folder for block %s: %w", name, err)
	}

	now := time.Now()
	b := &block.Block{
		ID:            uuid.New().String(),
		Name:          name,
		Cluster:       r.cfg.Cluster,
		Namespace:     r.cfg.Namespace,
		Node:          node,
		SizeGiB:       sizeGiB,
		ReplicaCount:  replicaCount,
		MountPoint:    folder.Path,
		MountFolderID: folder.ID,
		Status:        block.StatusPending,
		Replicas:      []block.Replica{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.store.CreateBlock(b); err != nil {
		return nil, fmt.Errorf("failed to create block %s: %w", name, err)
	}

	var result *block.Block
	err = r.withLock(ctx, b.ID, func(ctx context.Context) error {
		b, err := r.store.GetBlock(b.ID)
		if err != nil {
			return err
		}

		if err := r.controller.CreateController(ctx, b, nil); err != nil {
			return err
		}

		candidates, err := r.budgetDisks(ctx, sizeGiB, nil)
		if err != nil {
			return err
		}
		if len(candidates) > replicaCount {
			candidates = candidates[:replicaCount]
		}
		for i := range candidates {
			if _, err := r.replica.CreateReplica(ctx, b, &candidates[i]); err != nil {
				klog.Warningf("failed to create replica for block %s on disk %s: %v", b.ID, candidates[i].ID, err)
			}
		}
		if len(b.Replicas) < replicaCount {
			klog.Warningf("block %s provisioned with %d/%d replicas: insufficient schedulable disk capacity", b.ID, len(b.Replicas), replicaCount)
		}

		result = b.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Deprovision tears b down best-effort and soft-deletes its entity. Fails
// BlockMounted if the block is still mounted.
func (r *Reconciler) Deprovision(ctx context.Context, blockID string) error {
	return r.withLock(ctx, blockID, func(ctx context.Context) error {
		b, err := r.store.GetBlock(blockID)
		if err != nil {
			return err
		}
		if b.Mounted {
			return blockerr.BlockMounted(b.ID)
		}

		if b.Controller != nil {
			if err := r.controller.DeleteController(ctx, b); err != nil {
				klog.Warningf("best-effort controller deletion failed for block %s: %v", b.ID, err)
			}
		}

		toRemove := make([]block.Replica, len(b.Replicas))
		copy(toRemove, b.Replicas)
		for i := range toRemove {
			if err := r.replica.RemoveReplicaFromBlock(ctx, b, &toRemove[i]); err != nil {
				klog.Warningf("best-effort replica removal failed for block %s replica %s: %v", b.ID, toRemove[i].Name, err)
			}
		}

		if b.MountFolderID != "" {
			if err := r.substrate.ReleaseFolder(ctx, b.MountFolderID); err != nil {
				klog.Warningf("best-effort mount-point folder release failed for block %s: %v", b.ID, err)
			}
		}

		return r.store.DeleteBlock(b.ID)
	})
}

// FormatOptions carries Format's optional parameters (spec.md §4.5/§6).
type FormatOptions struct {
	Force   bool
	Type    string
	Reserve int
}

// Format runs mkfs against b's device through the node terminal, as
// `mkfs.<type> <device>`. opts.Reserve is not applied and no filesystem
// label is set.
func (r *Reconciler) Format(ctx context.Context, blockID string, opts FormatOptions) error {
	return r.withLock(ctx, blockID, func(ctx context.Context) error {
		b, err := r.store.GetBlock(blockID)
		if err != nil {
			return err
		}
		fsType := opts.Type
		if fsType == "" {
			fsType = defaultFSType
		}
		return r.format(ctx, b, fsType, opts.Reserve, opts.Force)
	})
}

func (r *Reconciler) format(ctx context.Context, b *block.Block, fsType string, reserve int, force bool) error {
	if b.Formatted && !force {
		return blockerr.BlockFormatted(b.ID)
	}
	if b.Mounted {
		return blockerr.BlockMounted(b.ID)
	}
	if b.Device == nil {
		return blockerr.NoController(b.ID)
	}

	if err := r.nodeterm.Mkfs(ctx, b.Node, *b.Device, fsType); err != nil {
		return fmt.Errorf("mkfs failed for block %s: %w", b.ID, err)
	}

	b.Formatted = true
	return r.store.UpdateBlock(b)
}

// Mount mounts b's device at its mount-point folder.
func (r *Reconciler) Mount(ctx context.Context, blockID string, force bool) error {
	return r.withLock(ctx, blockID, func(ctx context.Context) error {
		b, err := r.store.GetBlock(blockID)
		if err != nil {
			return err
		}
		return r.mount(ctx, b, force)
	})
}

func (r *Reconciler) mount(ctx context.Context, b *block.Block, force bool) error {
	if b.Mounted && !force {
		return blockerr.BlockMounted(b.ID)
	}
	if !b.Formatted {
		return blockerr.BlockNotFormatted(b.ID)
	}
	if b.Device == nil {
		return blockerr.NoController(b.ID)
	}

	if err := r.nodeterm.Mount(ctx, b.Node, *b.Device, b.MountPoint, defaultFSType, nil); err != nil {
		return fmt.Errorf("mount failed for block %s: %w", b.ID, err)
	}

	b.Mounted = true
	return r.store.UpdateBlock(b)
}

// Unmount unmounts b's mount-point folder.
func (r *Reconciler) Unmount(ctx context.Context, blockID string, force bool) error {
	return r.withLock(ctx, blockID, func(ctx context.Context) error {
		b, err := r.store.GetBlock(blockID)
		if err != nil {
			return err
		}
		return r.unmount(ctx, b, force)
	})
}

func (r *Reconciler) unmount(ctx context.Context, b *block.Block, force bool) error {
	if !b.Mounted && !force {
		return blockerr.BlockNotMounted(b.ID)
	}

	if err := r.nodeterm.Unmount(ctx, b.Node, b.MountPoint); err != nil {
		return fmt.Errorf("unmount failed for block %s: %w", b.ID, err)
	}

	b.Mounted = false
	return r.store.UpdateBlock(b)
}

// ReplicaUsage reports the du-derived size of a single replica's folder,
// with unhealthy replicas reporting -1 per spec.md §4.5.
type ReplicaUsage struct {
	ReplicaID string
	UsedGiB   int
}

// Usage reports b's filesystem usage and per-replica folder sizes.
func (r *Reconciler) Usage(ctx context.Context, blockID string) (usedGiB, totalGiB int, replicas []ReplicaUsage, err error) {
	b, err := r.store.GetBlock(blockID)
	if err != nil {
		return 0, 0, nil, err
	}

	used, total, err := r.nodeterm.FilesystemUsageGiB(ctx, b.Node, b.MountPoint)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("df failed for block %s: %w", b.ID, err)
	}

	replicaUsage := make([]ReplicaUsage, len(b.Replicas))
	for i, rc := range b.Replicas {
		if !rc.Healthy {
			replicaUsage[i] = ReplicaUsage{ReplicaID: rc.ID, UsedGiB: -1}
			continue
		}
		du, err := r.nodeterm.DiskUsageGiB(ctx, rc.Node, rc.Folder)
		if err != nil {
			klog.Warningf("du failed for block %s replica %s: %v", b.ID, rc.ID, err)
			replicaUsage[i] = ReplicaUsage{ReplicaID: rc.ID, UsedGiB: -1}
			continue
		}
		replicaUsage[i] = ReplicaUsage{ReplicaID: rc.ID, UsedGiB: du}
	}

	err = r.withLock(ctx, b.ID, func(ctx context.Context) error {
		current, err := r.store.GetBlock(b.ID)
		if err != nil {
			return err
		}
		current.UsedGiB = used
		return r.store.UpdateBlock(current)
	})
	if err != nil {
		return 0, 0, nil, err
	}

	return used, total, replicaUsage, nil
}

// Trim runs fstrim against b's mounted filesystem.
func (r *Reconciler) Trim(ctx context.Context, blockID string) error {
	b, err := r.store.GetBlock(blockID)
	if err != nil {
		return err
	}
	if err := r.nodeterm.Fstrim(ctx, b.Node, b.MountPoint); err != nil {
		return fmt.Errorf("fstrim failed for block %s: %w", b.ID, err)
	}
	return nil
}
