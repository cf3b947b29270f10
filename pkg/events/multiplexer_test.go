// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akam1o/block-orchestrator/pkg/block"
	"github.com/akam1o/block-orchestrator/pkg/engine"
	"github.com/akam1o/block-orchestrator/pkg/lock"
	"github.com/akam1o/block-orchestrator/pkg/orchestrator"
	"github.com/akam1o/block-orchestrator/pkg/store"
)

type mplexFixture struct {
	m    *Multiplexer
	st   *store.MemoryStore
	fake *orchestrator.FakeClient
}

func newMplexFixture(t *testing.T) *mplexFixture {
	t.Helper()
	st := store.NewMemoryStore()
	fake := orchestrator.NewFakeClient()
	gw := engine.NewGateway(fake)
	cdrv := engine.NewControllerDriver(gw, fake, st, "longhornio/engine:v1", "tgt-blockdev", "storage")
	rdrv := engine.NewReplicaDriver(gw, fake, st, nil, cdrv, "longhornio/engine:v1", "storage")
	locks := lock.NewManager()

	m := New(fake, st, locks, cdrv, rdrv, "storage")
	return &mplexFixture{m: m, st: st, fake: fake}
}

func TestDispatchIgnoresNilPod(t *testing.T) {
	f := newMplexFixture(t)
	f.m.dispatch(context.Background(), orchestrator.PodEvent{Pod: nil})
}

func TestDispatchIgnoresPodNotOwnedByAnyBlock(t *testing.T) {
	f := newMplexFixture(t)
	pod := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Namespace: "storage", Name: "orphan", UID: "unknown-uid"}}
	f.m.dispatch(context.Background(), orchestrator.PodEvent{Pod: pod})
}

func TestHandleSkipsSoftDeletedBlock(t *testing.T) {
	f := newMplexFixture(t)
	handle := "ctrl-1"
	b := &block.Block{ID: "b1", Name: "v1", Namespace: "storage", Controller: &handle}
	require.NoError(t, f.st.CreateBlock(b))
	require.NoError(t, f.st.DeleteBlock(b.ID))

	pod := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Namespace: "storage", Name: "v1", UID: "ctrl-1"}, Status: corev1.PodStatus{Phase: corev1.PodRunning}}
	err := f.m.handle(context.Background(), b.ID, pod)
	assert.NoError(t, err)

	got, err := f.st.GetBlock(b.ID)
	require.NoError(t, err)
	assert.False(t, got.Online, "a soft-deleted block must never be reconciled")
}

func TestHandleControllerEventMarksOnlineAndAttachesHealthyReplicas(t *testing.T) {
	f := newMplexFixture(t)
	handle := "ctrl-1"
	endpoint := "tcp://10.0.0.9:10000"
	b := &block.Block{
		ID: "b1", Name: "v1", Namespace: "storage", Controller: &handle,
		Replicas: []block.Replica{{ID: "r1", Name: "r1", Healthy: true, Endpoint: &endpoint}},
	}
	require.NoError(t, f.st.CreateBlock(b))

	_, err := f.fake.CreatePod(context.Background(), &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Namespace: "storage", Name: "v1"}})
	require.NoError(t, err)
	f.fake.SetPodStatus("storage", "v1", corev1.PodRunning, "")

	var sawAddReplica bool
	f.fake.ExecFn = func(namespace, pod, container string, argv []string) (string, string, error) {
		if len(argv) > 1 && argv[1] == "add-replica" {
			sawAddReplica = true
		}
		return `{"frontendState":"up","endpoint":"/dev/longhorn/v1"}`, "", nil
	}

	pod := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Namespace: "storage", Name: "v1", UID: "ctrl-1"}, Status: corev1.PodStatus{Phase: corev1.PodRunning}}
	require.NoError(t, f.m.handle(context.Background(), b.ID, pod))

	got, err := f.st.GetBlock(b.ID)
	require.NoError(t, err)
	assert.True(t, got.Online)
	assert.True(t, sawAddReplica)
}

func TestHandleControllerEventMarksOfflineOnTermination(t *testing.T) {
	f := newMplexFixture(t)
	handle := "ctrl-1"
	b := &block.Block{ID: "b1", Name: "v1", Namespace: "storage", Controller: &handle, Online: true, Mounted: true, FrontendState: true}
	require.NoError(t, f.st.CreateBlock(b))

	pod := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Namespace: "storage", Name: "v1", UID: "ctrl-1"}, Status: corev1.PodStatus{Phase: corev1.PodFailed}}
	require.NoError(t, f.m.handle(context.Background(), b.ID, pod))

	got, err := f.st.GetBlock(b.ID)
	require.NoError(t, err)
	assert.False(t, got.Online)
	assert.False(t, got.Mounted)
	assert.False(t, got.FrontendState)
	assert.Nil(t, got.Device)
}

func TestHandleReplicaEventMarksHealthyAndAttaches(t *testing.T) {
	f := newMplexFixture(t)
	handle := "ctrl-1"
	b := &block.Block{
		ID: "b1", Name: "v1", Namespace: "storage", Online: true, Controller: &handle,
		Replicas: []block.Replica{{ID: "r1", Name: "r1", Pod: "replica-uid-1", Healthy: false}},
	}
	require.NoError(t, f.st.CreateBlock(b))

	_, err := f.fake.CreatePod(context.Background(), &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Namespace: "storage", Name: "v1"}})
	require.NoError(t, err)
	f.fake.SetPodStatus("storage", "v1", corev1.PodRunning, "")
	f.fake.ExecFn = func(namespace, pod, container string, argv []string) (string, string, error) {
		return `{"frontendState":"up","endpoint":"/dev/longhorn/v1"}`, "", nil
	}

	pod := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Namespace: "storage", Name: "r1", UID: "replica-uid-1"}, Status: corev1.PodStatus{Phase: corev1.PodRunning, PodIP: "10.0.0.9"}}
	require.NoError(t, f.m.handle(context.Background(), b.ID, pod))

	got, err := f.st.GetBlock(b.ID)
	require.NoError(t, err)
	require.Len(t, got.Replicas, 1)
	assert.True(t, got.Replicas[0].Healthy)
	require.NotNil(t, got.Replicas[0].Endpoint)
	assert.Equal(t, "tcp://10.0.0.9:10000", *got.Replicas[0].Endpoint)
}

func TestHandleReplicaEventDetachesOnTermination(t *testing.T) {
	f := newMplexFixture(t)
	handle := "ctrl-1"
	endpoint := "tcp://10.0.0.9:10000"
	b := &block.Block{
		ID: "b1", Name: "v1", Namespace: "storage", Online: true, Controller: &handle,
		Replicas: []block.Replica{{ID: "r1", Name: "r1", Pod: "replica-uid-1", Healthy: true, Endpoint: &endpoint}},
	}
	require.NoError(t, f.st.CreateBlock(b))

	_, err := f.fake.CreatePod(context.Background(), &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Namespace: "storage", Name: "v1"}})
	require.NoError(t, err)
	f.fake.SetPodStatus("storage", "v1", corev1.PodRunning, "")
	f.fake.ExecFn = func(namespace, pod, container string, argv []string) (string, string, error) {
		return `{"frontendState":"down"}`, "", nil
	}

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Namespace: "storage", Name: "r1", UID: "replica-uid-1", DeletionTimestamp: &metav1.Time{Time: time.Now()}},
	}
	require.NoError(t, f.m.handle(context.Background(), b.ID, pod))

	got, err := f.st.GetBlock(b.ID)
	require.NoError(t, err)
	require.Len(t, got.Replicas, 1)
	assert.False(t, got.Replicas[0].Healthy)
	assert.Nil(t, got.Replicas[0].Endpoint)
}
