// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"

	"github.com/akam1o/block-orchestrator/pkg/block"
	"github.com/akam1o/block-orchestrator/pkg/blockerr"
)

// CloneOptions addresses the source controller a snapshot is cloned from.
type CloneOptions struct {
	SnapshotName              string
	FromControllerAddress     string
	FromVolumeName            string
	FromControllerInstanceName string
}

// SnapshotOperator creates/reverts/removes/purges/hashes/clones snapshots
// via the engine CLI (spec.md §4.4). All operations require the block to
// be online; the operator reports whatever the engine returns and does
// not itself enforce purge/hash coalescing semantics.
type SnapshotOperator struct {
	gateway *Gateway
}

// NewSnapshotOperator creates a new Snapshot Operator.
func NewSnapshotOperator(gateway *Gateway) *SnapshotOperator {
	return &SnapshotOperator{gateway: gateway}
}

func (s *SnapshotOperator) requireOnline(b *block.Block) error {
	if !b.Online {
		return blockerr.BlockOffline(b.ID)
	}
	return nil
}

// Create takes a new snapshot of the volume's current head.
func (s *SnapshotOperator) Create(ctx context.Context, b *block.Block) (string, error) {
	if err := s.requireOnline(b); err != nil {
		return "", err
	}
	res, err := s.gateway.Exec(ctx, b, []string{"longhorn", "snapshots", "create"})
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// Revert rolls the volume back to a named snapshot.
func (s *SnapshotOperator) Revert(ctx context.Context, b *block.Block, name string) error {
	if err := s.requireOnline(b); err != nil {
		return err
	}
	_, err := s.gateway.Exec(ctx, b, []string{"longhorn", "snapshots", "revert", name})
	return err
}

// List returns the volume's snapshot names.
func (s *SnapshotOperator) List(ctx context.Context, b *block.Block) ([]string, error) {
	if err := s.requireOnline(b); err != nil {
		return nil, err
	}
	res, err := s.gateway.Exec(ctx, b, []string{"longhorn", "snapshots", "ls"})
	if err != nil {
		return nil, err
	}
	return ParseSnapshotList(res.Stdout), nil
}

// Remove deletes a named snapshot.
func (s *SnapshotOperator) Remove(ctx context.Context, b *block.Block, name string) error {
	if err := s.requireOnline(b); err != nil {
		return err
	}
	_, err := s.gateway.Exec(ctx, b, []string{"longhorn", "snapshots", "rm", name})
	return err
}

// Purge reclaims snapshots whose child is the volume head. Asynchronous:
// callers poll PurgeStatus. skipIfInProgress avoids queueing a redundant
// purge while one is already running.
func (s *SnapshotOperator) Purge(ctx context.Context, b *block.Block, skipIfInProgress bool) error {
	if err := s.requireOnline(b); err != nil {
		return err
	}
	argv := []string{"longhorn", "snapshots", "purge"}
	if skipIfInProgress {
		argv = append(argv, "--skip-if-in-progress")
	}
	_, err := s.gateway.Exec(ctx, b, argv)
	return err
}

// PurgeStatus reports the in-flight purge's progress as raw JSON.
func (s *SnapshotOperator) PurgeStatus(ctx context.Context, b *block.Block) (string, error) {
	if err := s.requireOnline(b); err != nil {
		return "", err
	}
	res, err := s.gateway.Exec(ctx, b, []string{"longhorn", "snapshots", "purge-status"})
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// Info returns the snapshot chain's JSON description.
func (s *SnapshotOperator) Info(ctx context.Context, b *block.Block) (string, error) {
	if err := s.requireOnline(b); err != nil {
		return "", err
	}
	res, err := s.gateway.Exec(ctx, b, []string{"longhorn", "snapshots", "info"})
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// Clone creates a snapshot by cloning from another volume's controller.
func (s *SnapshotOperator) Clone(ctx context.Context, b *block.Block, opts CloneOptions) error {
	if err := s.requireOnline(b); err != nil {
		return err
	}
	_, err := s.gateway.Exec(ctx, b, []string{
		"longhorn", "snapshots", "clone",
		"--snapshot-name", opts.SnapshotName,
		"--from-controller-address", opts.FromControllerAddress,
		"--from-volume-name", opts.FromVolumeName,
		"--from-controller-instance-name", opts.FromControllerInstanceName,
	})
	return err
}

// CloneStatus reports a clone's progress as raw JSON.
func (s *SnapshotOperator) CloneStatus(ctx context.Context, b *block.Block, name string) (string, error) {
	if err := s.requireOnline(b); err != nil {
		return "", err
	}
	res, err := s.gateway.Exec(ctx, b, []string{"longhorn", "snapshots", "clone-status", name})
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// Hash requests a checksum of a snapshot.
func (s *SnapshotOperator) Hash(ctx context.Context, b *block.Block, name string) (string, error) {
	return s.hashOp(ctx, b, "hash", name)
}

// HashCancel cancels an in-flight hash computation.
func (s *SnapshotOperator) HashCancel(ctx context.Context, b *block.Block, name string) (string, error) {
	return s.hashOp(ctx, b, "hash-cancel", name)
}

// HashStatus reports a hash computation's progress as raw JSON.
func (s *SnapshotOperator) HashStatus(ctx context.Context, b *block.Block, name string) (string, error) {
	return s.hashOp(ctx, b, "hash-status", name)
}

func (s *SnapshotOperator) hashOp(ctx context.Context, b *block.Block, subcommand, name string) (string, error) {
	if err := s.requireOnline(b); err != nil {
		return "", err
	}
	res, err := s.gateway.Exec(ctx, b, []string{"longhorn", "snapshots", subcommand, name})
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}
