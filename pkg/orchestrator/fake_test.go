// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakePod(namespace, name string) *corev1.Pod {
	return &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: name}}
}

func drainEvent(t *testing.T, ch <-chan PodEvent) PodEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pod event")
		return PodEvent{}
	}
}

func TestFakeClientCreatePodEmitsAddedEvent(t *testing.T) {
	f := NewFakeClient()
	events, err := f.WatchPods(context.Background(), "storage", "")
	require.NoError(t, err)

	_, err = f.CreatePod(context.Background(), newFakePod("storage", "v1"))
	require.NoError(t, err)

	ev := drainEvent(t, events)
	assert.Equal(t, PodEventAdded, ev.Type)
	assert.Equal(t, "v1", ev.Pod.Name)
}

func TestFakeClientCreatePodIsIdempotent(t *testing.T) {
	f := NewFakeClient()
	first, err := f.CreatePod(context.Background(), newFakePod("storage", "v1"))
	require.NoError(t, err)

	second, err := f.CreatePod(context.Background(), newFakePod("storage", "v1"))
	require.NoError(t, err)
	assert.Equal(t, first.Name, second.Name)
}

func TestFakeClientGetPodMissingReturnsError(t *testing.T) {
	f := NewFakeClient()
	_, err := f.GetPod(context.Background(), "storage", "missing")
	assert.Error(t, err)
}

func TestFakeClientDeletePodEmitsDeletedEventAndIsIdempotent(t *testing.T) {
	f := NewFakeClient()
	events, err := f.WatchPods(context.Background(), "storage", "")
	require.NoError(t, err)

	_, err = f.CreatePod(context.Background(), newFakePod("storage", "v1"))
	require.NoError(t, err)
	drainEvent(t, events) // Added

	require.NoError(t, f.DeletePod(context.Background(), "storage", "v1"))
	ev := drainEvent(t, events)
	assert.Equal(t, PodEventDeleted, ev.Type)

	require.NoError(t, f.DeletePod(context.Background(), "storage", "v1"), "deleting a missing pod must be a no-op")
}

func TestFakeClientSetPodStatusEmitsModifiedEvent(t *testing.T) {
	f := NewFakeClient()
	events, err := f.WatchPods(context.Background(), "storage", "")
	require.NoError(t, err)

	_, err = f.CreatePod(context.Background(), newFakePod("storage", "v1"))
	require.NoError(t, err)
	drainEvent(t, events) // Added

	f.SetPodStatus("storage", "v1", corev1.PodRunning, "10.0.0.5")
	ev := drainEvent(t, events)
	assert.Equal(t, PodEventModified, ev.Type)
	assert.Equal(t, corev1.PodRunning, ev.Pod.Status.Phase)
	assert.Equal(t, "10.0.0.5", ev.Pod.Status.PodIP)

	got, err := f.GetPod(context.Background(), "storage", "v1")
	require.NoError(t, err)
	assert.Equal(t, corev1.PodRunning, got.Status.Phase)
}

func TestFakeClientSetPodStatusOnMissingPodIsNoop(t *testing.T) {
	f := NewFakeClient()
	f.SetPodStatus("storage", "does-not-exist", corev1.PodRunning, "")
}

func TestFakeClientExecUsesExecFnWhenSet(t *testing.T) {
	f := NewFakeClient()
	f.ExecFn = func(namespace, pod, container string, argv []string) (string, string, error) {
		return "ok", "", nil
	}
	stdout, _, err := f.Exec(context.Background(), "storage", "v1", "engine", []string{"info"})
	require.NoError(t, err)
	assert.Equal(t, "ok", stdout)
}

func TestFakeClientExecReturnsEmptyOutputWithoutExecFn(t *testing.T) {
	f := NewFakeClient()
	stdout, stderr, err := f.Exec(context.Background(), "storage", "v1", "engine", []string{"info"})
	require.NoError(t, err)
	assert.Empty(t, stdout)
	assert.Empty(t, stderr)
}
