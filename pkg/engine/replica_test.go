// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akam1o/block-orchestrator/pkg/block"
	"github.com/akam1o/block-orchestrator/pkg/blockerr"
	"github.com/akam1o/block-orchestrator/pkg/orchestrator"
	"github.com/akam1o/block-orchestrator/pkg/store"
	"github.com/akam1o/block-orchestrator/pkg/substrate"
)

func newReplicaFixture(t *testing.T) (*store.MemoryStore, *orchestrator.FakeClient, *substrate.SQLiteFake, *ControllerDriver, *ReplicaDriver) {
	t.Helper()
	st := store.NewMemoryStore()
	fake := orchestrator.NewFakeClient()
	gw := NewGateway(fake)
	sub, err := substrate.NewSQLiteFake(":memory:")
	require.NoError(t, err)
	require.NoError(t, sub.SeedTopology(context.Background(), []substrate.Zone{{Name: "z1", Nodes: []string{"n-1"}}}, 100))

	cdrv := NewControllerDriver(gw, fake, st, "longhornio/engine:v1", "tgt-blockdev", "storage")
	rdrv := NewReplicaDriver(gw, fake, st, sub, cdrv, "longhornio/engine:v1", "storage")
	return st, fake, sub, cdrv, rdrv
}

func runningControllerPod(t *testing.T, fake *orchestrator.FakeClient, namespace, name string) {
	t.Helper()
	_, err := fake.CreatePod(context.Background(), &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: name},
	})
	require.NoError(t, err)
	fake.SetPodStatus(namespace, name, corev1.PodRunning, "")
}

func firstDisk(t *testing.T, sub *substrate.SQLiteFake) *substrate.Disk {
	t.Helper()
	disks, err := sub.ListDisks(context.Background(), "")
	require.NoError(t, err)
	require.NotEmpty(t, disks)
	return &disks[0]
}

func TestCreateReplica(t *testing.T) {
	st, fake, sub, _, rdrv := newReplicaFixture(t)
	b := seedBlock(t, st, &block.Block{ID: "b1", Name: "v1", Namespace: "storage", Node: "n-1", SizeGiB: 10})

	disk := firstDisk(t, sub)
	rc, err := rdrv.CreateReplica(context.Background(), b, disk)
	require.NoError(t, err)

	assert.Equal(t, block.StatusPending, rc.Status)
	assert.False(t, rc.Healthy)
	assert.False(t, rc.Attached)
	assert.Equal(t, block.ModeRW, rc.Mode)
	assert.NotEmpty(t, rc.Pod)
	assert.Len(t, b.Replicas, 1)

	pod, err := fake.GetPod(context.Background(), "storage", rc.Name)
	require.NoError(t, err)
	assert.Equal(t, "n-1", pod.Spec.NodeName)
	assert.Len(t, pod.Spec.Containers[0].Ports, 15)
}

func TestCreateReplicaNamesAreUniqueUnderCollisionPressure(t *testing.T) {
	st, _, sub, _, rdrv := newReplicaFixture(t)
	b := seedBlock(t, st, &block.Block{ID: "b1", Name: "v1", Namespace: "storage", Node: "n-1", SizeGiB: 1})

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		rc, err := rdrv.CreateReplica(context.Background(), b, firstDisk(t, sub))
		require.NoError(t, err)
		assert.False(t, seen[rc.Name], "replica name %s collided", rc.Name)
		seen[rc.Name] = true
	}
}

func TestAddReplicaToFrontend(t *testing.T) {
	t.Run("skips_when_replica_unhealthy", func(t *testing.T) {
		st, _, _, _, rdrv := newReplicaFixture(t)
		b := seedBlock(t, st, &block.Block{ID: "b1", Name: "v1", Namespace: "storage", Online: true})
		rc := &block.Replica{ID: "r1", Name: "r1", Healthy: false}

		err := rdrv.AddReplicaToFrontend(context.Background(), b, rc, nil)
		assert.NoError(t, err)
		assert.False(t, rc.Attached)
	})

	t.Run("skips_when_block_offline", func(t *testing.T) {
		st, _, _, _, rdrv := newReplicaFixture(t)
		b := seedBlock(t, st, &block.Block{ID: "b1", Name: "v1", Namespace: "storage", Online: false})
		endpoint := "tcp://10.0.0.11:10000"
		rc := &block.Replica{ID: "r1", Name: "r1", Healthy: true, Endpoint: &endpoint}

		err := rdrv.AddReplicaToFrontend(context.Background(), b, rc, nil)
		assert.NoError(t, err)
		assert.False(t, rc.Attached)
	})

	t.Run("attaches_healthy_replica_and_runs_followon", func(t *testing.T) {
		st, fake, _, _, rdrv := newReplicaFixture(t)
		handle := "ctrl-1"
		endpoint := "tcp://10.0.0.11:10000"
		b := seedBlock(t, st, &block.Block{
			ID: "b1", Name: "v1", Namespace: "storage", SizeGiB: 10, Online: true, Controller: &handle,
			Replicas: []block.Replica{{ID: "r1", Name: "r1", Healthy: true, Endpoint: &endpoint}},
		})
		runningControllerPod(t, fake, "storage", "v1")
		rc, _ := b.ReplicaByID("r1")

		var capturedArgv []string
		fake.ExecFn = func(namespace, pod, container string, argv []string) (string, string, error) {
			if len(argv) > 1 && argv[1] == "add-replica" {
				capturedArgv = argv
			}
			return `{"frontendState":"down"}`, "", nil
		}

		err := rdrv.AddReplicaToFrontend(context.Background(), b, rc, &AddReplicaOptions{FastSync: true})
		require.NoError(t, err)
		assert.True(t, rc.Attached)
		assert.Contains(t, capturedArgv, "--fast-sync")
		assert.Equal(t, endpoint, capturedArgv[len(capturedArgv)-1])
	})

	t.Run("add_replica_command_error_surfaces_upstream_error", func(t *testing.T) {
		st, fake, _, _, rdrv := newReplicaFixture(t)
		handle := "ctrl-1"
		endpoint := "tcp://10.0.0.11:10000"
		b := seedBlock(t, st, &block.Block{
			ID: "b1", Name: "v1", Namespace: "storage", SizeGiB: 10, Online: true, Controller: &handle,
			Replicas: []block.Replica{{ID: "r1", Name: "r1", Healthy: true, Endpoint: &endpoint}},
		})
		runningControllerPod(t, fake, "storage", "v1")
		rc, _ := b.ReplicaByID("r1")

		fake.ExecFn = func(namespace, pod, container string, argv []string) (string, string, error) {
			return "", "Error running add replica command: replica busy", assertError{}
		}

		err := rdrv.AddReplicaToFrontend(context.Background(), b, rc, nil)
		require.Error(t, err)
		assert.True(t, blockerr.Is(err, blockerr.CodeAddReplicaError))
	})
}

func TestRemoveReplicaFromFrontend(t *testing.T) {
	t.Run("fails_without_endpoint", func(t *testing.T) {
		st, _, _, _, rdrv := newReplicaFixture(t)
		b := seedBlock(t, st, &block.Block{ID: "b1", Name: "v1", Namespace: "storage"})
		rc := &block.Replica{ID: "r1", Name: "r1"}

		err := rdrv.RemoveReplicaFromFrontend(context.Background(), b, rc)
		require.Error(t, err)
		assert.True(t, blockerr.Is(err, blockerr.CodeNoReplicaEndpoint))
	})

	t.Run("cannot_remove_last_replica_maps_to_specific_error", func(t *testing.T) {
		st, fake, _, _, rdrv := newReplicaFixture(t)
		handle := "ctrl-1"
		endpoint := "tcp://10.0.0.11:10000"
		b := seedBlock(t, st, &block.Block{ID: "b1", Name: "v1", Namespace: "storage", Controller: &handle})
		runningControllerPod(t, fake, "storage", "v1")
		rc := &block.Replica{ID: "r1", Name: "r1", Endpoint: &endpoint, Attached: true}
		b.Replicas = []block.Replica{*rc}

		fake.ExecFn = func(namespace, pod, container string, argv []string) (string, string, error) {
			return "", "cannot remove last replica if volume is up", assertError{}
		}

		err := rdrv.RemoveReplicaFromFrontend(context.Background(), b, rc)
		require.Error(t, err)
		assert.True(t, blockerr.Is(err, blockerr.CodeCannotRemoveLastReplica))
	})
}

func TestRemoveReplicaFromBlockIsBestEffort(t *testing.T) {
	st, fake, sub, _, rdrv := newReplicaFixture(t)
	b := seedBlock(t, st, &block.Block{ID: "b1", Name: "v1", Namespace: "storage", Node: "n-1", SizeGiB: 10})

	disk := firstDisk(t, sub)
	rc, err := rdrv.CreateReplica(context.Background(), b, disk)
	require.NoError(t, err)
	name := rc.Name

	err = rdrv.RemoveReplicaFromBlock(context.Background(), b, rc)
	require.NoError(t, err)
	assert.Empty(t, b.Replicas)

	_, err = fake.GetPod(context.Background(), "storage", name)
	assert.Error(t, err)
}

func TestUpdateReplicaValidatesMode(t *testing.T) {
	st, _, _, _, rdrv := newReplicaFixture(t)
	b := seedBlock(t, st, &block.Block{ID: "b1", Name: "v1", Namespace: "storage"})
	endpoint := "tcp://10.0.0.11:10000"
	rc := &block.Replica{ID: "r1", Name: "r1", Endpoint: &endpoint}
	b.Replicas = []block.Replica{*rc}

	err := rdrv.UpdateReplica(context.Background(), b, rc, "bogus")
	require.Error(t, err)
	assert.True(t, blockerr.Is(err, blockerr.CodeInvalidMode))
}

func TestListReplicasJoinsRowsByEndpoint(t *testing.T) {
	st, fake, _, _, rdrv := newReplicaFixture(t)
	handle := "ctrl-1"
	endpoint := "tcp://10.0.0.11:10000"
	b := seedBlock(t, st, &block.Block{
		ID: "b1", Name: "v1", Namespace: "storage", Controller: &handle,
		Replicas: []block.Replica{{ID: "r1", Name: "block-replica-v1-red-fox-1", Disk: "disk-1", Node: "n-1", Folder: "folder-1", Endpoint: &endpoint}},
	})
	runningControllerPod(t, fake, "storage", "v1")

	fake.ExecFn = func(namespace, pod, container string, argv []string) (string, string, error) {
		return "ADDRESS MODE\ntcp://10.0.0.11:10000 RW [vol-head-000.img]\n", "", nil
	}

	rows, err := rdrv.ListReplicas(context.Background(), b)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "tcp://10.0.0.11:10000", rows[0].Endpoint)
	assert.Equal(t, "r1", rows[0].ID, "the row must be joined back to the stored replica by endpoint")
	assert.Equal(t, "block-replica-v1-red-fox-1", rows[0].Name)
	assert.Equal(t, "disk-1", rows[0].Disk)
	assert.Equal(t, "n-1", rows[0].Node)
}

func TestListReplicasReturnsUnjoinedRowForUnknownEndpoint(t *testing.T) {
	st, fake, _, _, rdrv := newReplicaFixture(t)
	handle := "ctrl-1"
	b := seedBlock(t, st, &block.Block{ID: "b1", Name: "v1", Namespace: "storage", Controller: &handle})
	runningControllerPod(t, fake, "storage", "v1")

	fake.ExecFn = func(namespace, pod, container string, argv []string) (string, string, error) {
		return "ADDRESS MODE\ntcp://10.0.0.99:10000 RW []\n", "", nil
	}

	rows, err := rdrv.ListReplicas(context.Background(), b)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "tcp://10.0.0.99:10000", rows[0].Endpoint)
	assert.Empty(t, rows[0].ID, "a row with no stored match must carry only its parsed fields")
}
