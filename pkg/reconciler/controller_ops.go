// SPDX-License-Identifier: Apache-2.0

package reconciler

import (
	"context"

	"github.com/akam1o/block-orchestrator/pkg/engine"
)

// CreateController provisions b's engine controller pod under lock.
func (r *Reconciler) CreateController(ctx context.Context, blockID string, opts *engine.ControllerOptions) error {
	return r.withLock(ctx, blockID, func(ctx context.Context) error {
		b, err := r.store.GetBlock(blockID)
		if err != nil {
			return err
		}
		return r.controller.CreateController(ctx, b, opts)
	})
}

// DeleteController tears down b's engine controller pod under lock.
func (r *Reconciler) DeleteController(ctx context.Context, blockID string) error {
	return r.withLock(ctx, blockID, func(ctx context.Context) error {
		b, err := r.store.GetBlock(blockID)
		if err != nil {
			return err
		}
		return r.controller.DeleteController(ctx, b)
	})
}

// StartFrontend starts b's frontend under lock.
func (r *Reconciler) StartFrontend(ctx context.Context, blockID string) error {
	return r.withLock(ctx, blockID, func(ctx context.Context) error {
		b, err := r.store.GetBlock(blockID)
		if err != nil {
			return err
		}
		return r.controller.StartFrontend(ctx, b)
	})
}

// ShutdownFrontend shuts down b's frontend under lock.
func (r *Reconciler) ShutdownFrontend(ctx context.Context, blockID string) error {
	return r.withLock(ctx, blockID, func(ctx context.Context) error {
		b, err := r.store.GetBlock(blockID)
		if err != nil {
			return err
		}
		return r.controller.ShutdownFrontend(ctx, b)
	})
}

// GetControllerInfo reads b's live controller info (read-only, no lock
// needed beyond the exec call itself).
func (r *Reconciler) GetControllerInfo(ctx context.Context, blockID string) (*engine.ControllerInfo, error) {
	b, err := r.store.GetBlock(blockID)
	if err != nil {
		return nil, err
	}
	return r.controller.GetControllerInfo(ctx, b)
}

// Expand resizes b's controller to its currently persisted SizeGiB.
func (r *Reconciler) Expand(ctx context.Context, blockID string) error {
	return r.withLock(ctx, blockID, func(ctx context.Context) error {
		b, err := r.store.GetBlock(blockID)
		if err != nil {
			return err
		}
		return r.controller.Expand(ctx, b)
	})
}

// Resize persists a new SizeGiB for blockID, then issues Expand.
func (r *Reconciler) Resize(ctx context.Context, blockID string, sizeGiB int) error {
	return r.withLock(ctx, blockID, func(ctx context.Context) error {
		b, err := r.store.GetBlock(blockID)
		if err != nil {
			return err
		}
		b.SizeGiB = sizeGiB
		if err := r.store.UpdateBlock(b); err != nil {
			return err
		}
		return r.controller.Expand(ctx, b)
	})
}
