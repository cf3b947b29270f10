// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
)

// ExecFunc stubs a single Exec call's output for FakeClient.
type ExecFunc func(namespace, pod, container string, argv []string) (stdout, stderr string, err error)

// FakeClient is an in-process Client double for reconciler and event
// multiplexer tests. It never talks to a real cluster.
type FakeClient struct {
	mu   sync.Mutex
	pods map[string]*corev1.Pod // namespace/name -> pod

	// ExecFn, when set, is consulted for every Exec call. Tests typically
	// set it once per scenario to return canned engine-controller output.
	ExecFn ExecFunc

	events chan PodEvent
}

// NewFakeClient creates an empty FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		pods:   make(map[string]*corev1.Pod),
		events: make(chan PodEvent, 64),
	}
}

func podKey(namespace, name string) string {
	return namespace + "/" + name
}

// CreatePod records the pod, assigning it a UID when it has none (as the API
// server does), and emits an Added event.
func (f *FakeClient) CreatePod(ctx context.Context, pod *corev1.Pod) (*corev1.Pod, error) {
	f.mu.Lock()
	key := podKey(pod.Namespace, pod.Name)
	if existing, ok := f.pods[key]; ok {
		f.mu.Unlock()
		return existing, nil
	}
	stored := pod.DeepCopy()
	if stored.UID == "" {
		stored.UID = types.UID(uuid.NewString())
	}
	f.pods[key] = stored
	f.mu.Unlock()

	f.emit(PodEvent{Type: PodEventAdded, Pod: stored.DeepCopy()})
	return stored.DeepCopy(), nil
}

// GetPod returns a previously created pod.
func (f *FakeClient) GetPod(ctx context.Context, namespace, name string) (*corev1.Pod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pod, ok := f.pods[podKey(namespace, name)]
	if !ok {
		return nil, fmt.Errorf("pod %s/%s not found", namespace, name)
	}
	return pod.DeepCopy(), nil
}

// DeletePod removes the pod and emits a Deleted event.
func (f *FakeClient) DeletePod(ctx context.Context, namespace, name string) error {
	f.mu.Lock()
	key := podKey(namespace, name)
	pod, ok := f.pods[key]
	if !ok {
		f.mu.Unlock()
		return nil
	}
	delete(f.pods, key)
	f.mu.Unlock()

	f.emit(PodEvent{Type: PodEventDeleted, Pod: pod})
	return nil
}

// Exec delegates to ExecFn, or returns empty output if unset.
func (f *FakeClient) Exec(ctx context.Context, namespace, pod, container string, argv []string) (string, string, error) {
	if f.ExecFn == nil {
		return "", "", nil
	}
	return f.ExecFn(namespace, pod, container, argv)
}

// WatchPods returns the channel fed by CreatePod/DeletePod/SetPodStatus.
func (f *FakeClient) WatchPods(ctx context.Context, namespace string, labelSelector string) (<-chan PodEvent, error) {
	return f.events, nil
}

// SetPodStatus mutates a pod's status in place and emits a Modified event,
// letting tests simulate a pod transitioning to Running or vanishing.
func (f *FakeClient) SetPodStatus(namespace, name string, phase corev1.PodPhase, podIP string) {
	f.mu.Lock()
	pod, ok := f.pods[podKey(namespace, name)]
	if !ok {
		f.mu.Unlock()
		return
	}
	pod.Status.Phase = phase
	pod.Status.PodIP = podIP
	snapshot := pod.DeepCopy()
	f.mu.Unlock()

	f.emit(PodEvent{Type: PodEventModified, Pod: snapshot})
}

func (f *FakeClient) emit(ev PodEvent) {
	select {
	case f.events <- ev:
	default:
	}
}
