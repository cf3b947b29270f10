// SPDX-License-Identifier: Apache-2.0

package substrate

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	sqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// diskModel and folderModel are the gorm-mapped tables backing SQLiteFake.
// Node/Zone topology is seeded in memory rather than persisted, since it
// changes far less often than disk/folder allocation during a test run.
type diskModel struct {
	ID           string `gorm:"primaryKey"`
	Node         string
	Path         string
	TotalGiB     int
	AvailableGiB int
	Zone         string
	Schedulable  bool
}

type folderModel struct {
	ID     string `gorm:"primaryKey"`
	DiskID string `gorm:"index"`
	Path   string
}

// SQLiteFake is a local, file- or memory-backed stand-in for the cluster's
// storage-topology service, for development and tests without a real
// backend. It speaks the same Client interface as HTTPClient.
type SQLiteFake struct {
	db    *gorm.DB
	nodes []Node
	zones []Zone
}

// NewSQLiteFake opens (or creates) a sqlite database at dsn, e.g. ":memory:"
// or "file:substrate.db?cache=shared", and migrates its schema.
func NewSQLiteFake(dsn string) (*SQLiteFake, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open substrate fake database: %w", err)
	}

	if err := db.AutoMigrate(&diskModel{}, &folderModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate substrate fake schema: %w", err)
	}

	return &SQLiteFake{db: db}, nil
}

// SeedTopology registers the nodes and zones available to the fake, and
// inserts one disk per node with the given per-disk capacity.
func (f *SQLiteFake) SeedTopology(ctx context.Context, zones []Zone, diskGiBPerNode int) error {
	f.zones = zones
	f.nodes = nil

	for _, z := range zones {
		for _, nodeName := range z.Nodes {
			f.nodes = append(f.nodes, Node{Name: nodeName, Zone: z.Name, Schedulable: true})
			disk := &diskModel{
				ID:           uuid.New().String(),
				Node:         nodeName,
				Path:         "/var/lib/block-orchestrator/disks/" + nodeName,
				TotalGiB:     diskGiBPerNode,
				AvailableGiB: diskGiBPerNode,
				Zone:         z.Name,
				Schedulable:  true,
			}
			if err := f.db.WithContext(ctx).Create(disk).Error; err != nil {
				return fmt.Errorf("failed to seed disk for node %s: %w", nodeName, err)
			}
		}
	}
	return nil
}

// ListDisks lists schedulable disks, optionally filtered by zone.
func (f *SQLiteFake) ListDisks(ctx context.Context, zone string) ([]Disk, error) {
	var rows []diskModel
	query := f.db.WithContext(ctx).Where("schedulable = ?", true)
	if zone != "" {
		query = query.Where("zone = ?", zone)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list disks: %w", err)
	}

	disks := make([]Disk, len(rows))
	for i, r := range rows {
		disks[i] = Disk{ID: r.ID, Node: r.Node, Path: r.Path, TotalGiB: r.TotalGiB, AvailableGiB: r.AvailableGiB, Zone: r.Zone, Schedulable: r.Schedulable}
	}
	return disks, nil
}

// ListNodes lists nodes seeded via SeedTopology.
func (f *SQLiteFake) ListNodes(ctx context.Context) ([]Node, error) {
	return f.nodes, nil
}

// ListZones lists zones seeded via SeedTopology.
func (f *SQLiteFake) ListZones(ctx context.Context) ([]Zone, error) {
	return f.zones, nil
}

// AllocateFolder records a new folder row under diskID's path, failing with
// ErrDiskNotFound if the disk is unknown. Disk capacity is neither checked
// nor decremented.
func (f *SQLiteFake) AllocateFolder(ctx context.Context, diskID, name string) (*Folder, error) {
	var folder *Folder
	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var disk diskModel
		if err := tx.Where("id = ?", diskID).First(&disk).Error; err != nil {
			return ErrDiskNotFound
		}

		row := &folderModel{
			ID:     uuid.New().String(),
			DiskID: diskID,
			Path:   disk.Path + "/" + name,
		}
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("failed to allocate folder: %w", err)
		}

		folder = &Folder{ID: row.ID, DiskID: row.DiskID, Path: row.Path}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// ReleaseFolder removes a previously allocated folder (idempotent).
func (f *SQLiteFake) ReleaseFolder(ctx context.Context, folderID string) error {
	if err := f.db.WithContext(ctx).Where("id = ?", folderID).Delete(&folderModel{}).Error; err != nil {
		return fmt.Errorf("failed to release folder %s: %w", folderID, err)
	}
	return nil
}
