// SPDX-License-Identifier: Apache-2.0

package reconciler

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akam1o/block-orchestrator/pkg/block"
	"github.com/akam1o/block-orchestrator/pkg/blockerr"
	"github.com/akam1o/block-orchestrator/pkg/engine"
	"github.com/akam1o/block-orchestrator/pkg/lock"
	"github.com/akam1o/block-orchestrator/pkg/nodeterm"
	"github.com/akam1o/block-orchestrator/pkg/orchestrator"
	"github.com/akam1o/block-orchestrator/pkg/store"
	"github.com/akam1o/block-orchestrator/pkg/substrate"
)

type fixture struct {
	r    *Reconciler
	st   *store.MemoryStore
	fake *orchestrator.FakeClient
	sub  *substrate.SQLiteFake
	nt   *nodeterm.FakeClient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	fake := orchestrator.NewFakeClient()
	gw := engine.NewGateway(fake)
	sub, err := substrate.NewSQLiteFake(":memory:")
	require.NoError(t, err)
	require.NoError(t, sub.SeedTopology(context.Background(), []substrate.Zone{{Name: "z1", Nodes: []string{"n-1"}}}, 100))
	nt := nodeterm.NewFakeClient()
	locks := lock.NewManager()

	cdrv := engine.NewControllerDriver(gw, fake, st, "longhornio/engine:v1", "tgt-blockdev", "storage")
	rdrv := engine.NewReplicaDriver(gw, fake, st, sub, cdrv, "longhornio/engine:v1", "storage")
	snap := engine.NewSnapshotOperator(gw)

	r := New(st, locks, fake, sub, nt, cdrv, rdrv, snap, Config{
		Cluster: "prod", Namespace: "storage", DefaultSizeGiB: 10, ReplicaCount: 3,
	})
	return &fixture{r: r, st: st, fake: fake, sub: sub, nt: nt}
}

func TestProvisionCreatesControllerAndReplicas(t *testing.T) {
	f := newFixture(t)

	b, err := f.r.Provision(context.Background(), "V1", "n-1", 10, 1)
	require.NoError(t, err)
	assert.Equal(t, "v1", b.Name, "provision lower-cases the volume name")
	require.NotNil(t, b.Controller)
	assert.Len(t, b.Replicas, 1)
	assert.NotEmpty(t, b.MountPoint)
	assert.NotEmpty(t, b.MountFolderID)

	_, err = f.fake.GetPod(context.Background(), "storage", "v1")
	assert.NoError(t, err, "controller pod should exist")
}

func TestProvisionRejectsDuplicateName(t *testing.T) {
	f := newFixture(t)
	_, err := f.r.Provision(context.Background(), "v1", "n-1", 10, 1)
	require.NoError(t, err)

	_, err = f.r.Provision(context.Background(), "v1", "n-1", 10, 1)
	require.Error(t, err)
	assert.True(t, blockerr.Is(err, blockerr.CodeBlockExists))
}

func TestProvisionFailsWhenNodeHasNoSchedulableDisk(t *testing.T) {
	f := newFixture(t)
	_, err := f.r.Provision(context.Background(), "v1", "n-does-not-exist", 10, 1)
	require.Error(t, err)
	assert.True(t, blockerr.Is(err, blockerr.CodeNodeStorageNotFound))
}

func TestProvisionToleratesPartialReplicaPlacement(t *testing.T) {
	f := newFixture(t)
	// Only one disk (n-1) is schedulable, so asking for 3 replicas still
	// succeeds with the controller up but fewer replicas placed.
	b, err := f.r.Provision(context.Background(), "v1", "n-1", 10, 3)
	require.NoError(t, err)
	require.NotNil(t, b.Controller)
	assert.LessOrEqual(t, len(b.Replicas), 3)
}

func TestDeprovisionFailsWhileMounted(t *testing.T) {
	f := newFixture(t)
	b, err := f.r.Provision(context.Background(), "v1", "n-1", 10, 1)
	require.NoError(t, err)

	got, err := f.st.GetBlock(b.ID)
	require.NoError(t, err)
	got.Mounted = true
	require.NoError(t, f.st.UpdateBlock(got))

	err = f.r.Deprovision(context.Background(), b.ID)
	require.Error(t, err)
	assert.True(t, blockerr.Is(err, blockerr.CodeBlockMounted))
}

func TestDeprovisionTearsDownAndSoftDeletes(t *testing.T) {
	f := newFixture(t)
	b, err := f.r.Provision(context.Background(), "v1", "n-1", 10, 1)
	require.NoError(t, err)

	require.NoError(t, f.r.Deprovision(context.Background(), b.ID))

	_, err = f.fake.GetPod(context.Background(), "storage", "v1")
	assert.Error(t, err, "controller pod should be gone")

	got, err := f.st.GetBlock(b.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted())
}

func newFormattableBlock(t *testing.T, f *fixture) *block.Block {
	t.Helper()
	device := "/dev/longhorn/v1"
	b := &block.Block{
		ID: "b1", Name: "v1", Namespace: "storage", Node: "n-1",
		SizeGiB: 10, MountPoint: "/mnt/block/v1", Device: &device,
	}
	require.NoError(t, f.st.CreateBlock(b))
	return b
}

func TestFormatRequiresDevice(t *testing.T) {
	f := newFixture(t)
	b := &block.Block{ID: "b1", Name: "v1", Namespace: "storage"}
	require.NoError(t, f.st.CreateBlock(b))

	err := f.r.Format(context.Background(), b.ID, FormatOptions{})
	require.Error(t, err)
	assert.True(t, blockerr.Is(err, blockerr.CodeNoController))
}

func TestFormatSucceedsAndPersists(t *testing.T) {
	f := newFixture(t)
	b := newFormattableBlock(t, f)

	require.NoError(t, f.r.Format(context.Background(), b.ID, FormatOptions{Type: "xfs"}))

	got, err := f.st.GetBlock(b.ID)
	require.NoError(t, err)
	assert.True(t, got.Formatted)
}

func TestFormatFailsWhenAlreadyFormattedWithoutForce(t *testing.T) {
	f := newFixture(t)
	b := newFormattableBlock(t, f)
	require.NoError(t, f.r.Format(context.Background(), b.ID, FormatOptions{}))

	err := f.r.Format(context.Background(), b.ID, FormatOptions{})
	require.Error(t, err)
	assert.True(t, blockerr.Is(err, blockerr.CodeBlockFormatted))
}

func TestFormatWithForceReformats(t *testing.T) {
	f := newFixture(t)
	b := newFormattableBlock(t, f)
	require.NoError(t, f.r.Format(context.Background(), b.ID, FormatOptions{}))

	err := f.r.Format(context.Background(), b.ID, FormatOptions{Force: true})
	assert.NoError(t, err)
}

func TestMountRequiresFormatted(t *testing.T) {
	f := newFixture(t)
	b := newFormattableBlock(t, f)

	err := f.r.Mount(context.Background(), b.ID, false)
	require.Error(t, err)
	assert.True(t, blockerr.Is(err, blockerr.CodeBlockNotFormatted))
}

func TestMountSucceedsAfterFormat(t *testing.T) {
	f := newFixture(t)
	b := newFormattableBlock(t, f)
	require.NoError(t, f.r.Format(context.Background(), b.ID, FormatOptions{}))

	require.NoError(t, f.r.Mount(context.Background(), b.ID, false))

	got, err := f.st.GetBlock(b.ID)
	require.NoError(t, err)
	assert.True(t, got.Mounted)

	mounted, err := f.nt.IsMounted(context.Background(), "n-1", got.MountPoint)
	require.NoError(t, err)
	assert.True(t, mounted)
}

func TestMountFailsWhenAlreadyMountedWithoutForce(t *testing.T) {
	f := newFixture(t)
	b := newFormattableBlock(t, f)
	require.NoError(t, f.r.Format(context.Background(), b.ID, FormatOptions{}))
	require.NoError(t, f.r.Mount(context.Background(), b.ID, false))

	err := f.r.Mount(context.Background(), b.ID, false)
	require.Error(t, err)
	assert.True(t, blockerr.Is(err, blockerr.CodeBlockMounted))
}

func TestUnmountRequiresMountedUnlessForce(t *testing.T) {
	f := newFixture(t)
	b := newFormattableBlock(t, f)

	err := f.r.Unmount(context.Background(), b.ID, false)
	require.Error(t, err)
	assert.True(t, blockerr.Is(err, blockerr.CodeBlockNotMounted))

	assert.NoError(t, f.r.Unmount(context.Background(), b.ID, true))
}

func TestUnmountSucceedsAfterMount(t *testing.T) {
	f := newFixture(t)
	b := newFormattableBlock(t, f)
	require.NoError(t, f.r.Format(context.Background(), b.ID, FormatOptions{}))
	require.NoError(t, f.r.Mount(context.Background(), b.ID, false))

	require.NoError(t, f.r.Unmount(context.Background(), b.ID, false))

	got, err := f.st.GetBlock(b.ID)
	require.NoError(t, err)
	assert.False(t, got.Mounted)
}

func TestUsageReportsFilesystemAndPerReplicaSizes(t *testing.T) {
	f := newFixture(t)
	b := newFormattableBlock(t, f)
	got, err := f.st.GetBlock(b.ID)
	require.NoError(t, err)
	got.Replicas = []block.Replica{
		{ID: "r1", Name: "r1", Node: "n-1", Folder: "/data/r1", Healthy: true},
		{ID: "r2", Name: "r2", Node: "n-1", Folder: "/data/r2", Healthy: false},
	}
	require.NoError(t, f.st.UpdateBlock(got))

	f.nt.UsedGiB = 4
	f.nt.TotalGiB = 20

	used, total, replicaUsage, err := f.r.Usage(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, used)
	assert.Equal(t, 20, total)
	require.Len(t, replicaUsage, 2)
	assert.Equal(t, 4, replicaUsage[0].UsedGiB)
	assert.Equal(t, -1, replicaUsage[1].UsedGiB, "unhealthy replicas report -1")

	persisted, err := f.st.GetBlock(b.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, persisted.UsedGiB)
}

func TestTrimCallsFstrimOnMountPoint(t *testing.T) {
	f := newFixture(t)
	b := newFormattableBlock(t, f)

	assert.NoError(t, f.r.Trim(context.Background(), b.ID))
}

func TestFrontendStateFollowOnFormatsAndMountsOnFrontendUp(t *testing.T) {
	f := newFixture(t)
	b, err := f.r.Provision(context.Background(), "v1", "n-1", 10, 1)
	require.NoError(t, err)

	f.fake.SetPodStatus("storage", "v1", corev1.PodRunning, "")
	f.fake.ExecFn = func(namespace, pod, container string, argv []string) (string, string, error) {
		return `{"frontendState":"up","endpoint":"/dev/longhorn/v1"}`, "", nil
	}

	got, err := f.st.GetBlock(b.ID)
	require.NoError(t, err)
	err = f.r.controller.UpdateFrontendState(context.Background(), got)
	require.NoError(t, err)

	final, err := f.st.GetBlock(b.ID)
	require.NoError(t, err)
	assert.True(t, final.FrontendState)
	assert.True(t, final.Formatted, "follow-on should have formatted the device")
	assert.True(t, final.Mounted, "follow-on should have mounted the device")
}

func TestFrontendStateFollowOnUnmountsOnFrontendDown(t *testing.T) {
	f := newFixture(t)
	b, err := f.r.Provision(context.Background(), "v1", "n-1", 10, 1)
	require.NoError(t, err)
	f.fake.SetPodStatus("storage", "v1", corev1.PodRunning, "")

	f.fake.ExecFn = func(namespace, pod, container string, argv []string) (string, string, error) {
		return `{"frontendState":"up","endpoint":"/dev/longhorn/v1"}`, "", nil
	}
	got, err := f.st.GetBlock(b.ID)
	require.NoError(t, err)
	require.NoError(t, f.r.controller.UpdateFrontendState(context.Background(), got))

	f.fake.ExecFn = func(namespace, pod, container string, argv []string) (string, string, error) {
		return `{"frontendState":"down"}`, "", nil
	}
	got, err = f.st.GetBlock(b.ID)
	require.NoError(t, err)
	require.NoError(t, f.r.controller.UpdateFrontendState(context.Background(), got))

	final, err := f.st.GetBlock(b.ID)
	require.NoError(t, err)
	assert.False(t, final.FrontendState)
	assert.False(t, final.Mounted)
}
