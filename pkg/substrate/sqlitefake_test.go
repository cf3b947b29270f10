// SPDX-License-Identifier: Apache-2.0

package substrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSeededFake(t *testing.T) *SQLiteFake {
	t.Helper()
	f, err := NewSQLiteFake(":memory:")
	require.NoError(t, err)
	require.NoError(t, f.SeedTopology(context.Background(), []Zone{
		{Name: "z1", Nodes: []string{"n-1", "n-2"}},
		{Name: "z2", Nodes: []string{"n-3"}},
	}, 100))
	return f
}

func TestSeedTopologyCreatesOneDiskPerNode(t *testing.T) {
	f := newSeededFake(t)

	disks, err := f.ListDisks(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, disks, 3)
	for _, d := range disks {
		assert.Equal(t, 100, d.TotalGiB)
		assert.Equal(t, 100, d.AvailableGiB)
		assert.True(t, d.Schedulable)
	}
}

func TestListDisksFiltersByZone(t *testing.T) {
	f := newSeededFake(t)

	disks, err := f.ListDisks(context.Background(), "z2")
	require.NoError(t, err)
	require.Len(t, disks, 1)
	assert.Equal(t, "n-3", disks[0].Node)
}

func TestListNodesAndZonesReflectSeed(t *testing.T) {
	f := newSeededFake(t)

	nodes, err := f.ListNodes(context.Background())
	require.NoError(t, err)
	assert.Len(t, nodes, 3)

	zones, err := f.ListZones(context.Background())
	require.NoError(t, err)
	assert.Len(t, zones, 2)
}

func TestAllocateAndReleaseFolder(t *testing.T) {
	f := newSeededFake(t)
	disks, err := f.ListDisks(context.Background(), "")
	require.NoError(t, err)
	disk := disks[0]

	folder, err := f.AllocateFolder(context.Background(), disk.ID, "replica-1")
	require.NoError(t, err)
	assert.Equal(t, disk.ID, folder.DiskID)
	assert.Contains(t, folder.Path, "replica-1")

	require.NoError(t, f.ReleaseFolder(context.Background(), folder.ID))
	require.NoError(t, f.ReleaseFolder(context.Background(), folder.ID), "release must be idempotent")
}

func TestAllocateFolderFailsForUnknownDisk(t *testing.T) {
	f := newSeededFake(t)

	_, err := f.AllocateFolder(context.Background(), "does-not-exist", "replica-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDiskNotFound)
}
