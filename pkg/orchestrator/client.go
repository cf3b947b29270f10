// SPDX-License-Identifier: Apache-2.0

// Package orchestrator wraps the pod CRUD, exec, and event-watch surface
// the block orchestrator drives engine-controller and replica pods through.
package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"
	"k8s.io/klog/v2"
)

const (
	podCreateTimeout = 30 * time.Second
	podGetTimeout    = 10 * time.Second
	execTimeout      = 30 * time.Second
)

// PodEventType classifies a pod lifecycle event for the event multiplexer.
type PodEventType string

const (
	PodEventAdded    PodEventType = "Added"
	PodEventModified PodEventType = "Modified"
	PodEventDeleted  PodEventType = "Deleted"
)

// PodEvent is a single pod lifecycle transition delivered to a Watcher.
type PodEvent struct {
	Type PodEventType
	Pod  *corev1.Pod
}

// Client is the interface the reconciler and event multiplexer use to drive
// pod lifecycles. A FakeClient implementation backs tests.
type Client interface {
	CreatePod(ctx context.Context, pod *corev1.Pod) (*corev1.Pod, error)
	GetPod(ctx context.Context, namespace, name string) (*corev1.Pod, error)
	DeletePod(ctx context.Context, namespace, name string) error
	Exec(ctx context.Context, namespace, pod, container string, argv []string) (stdout, stderr string, err error)
	WatchPods(ctx context.Context, namespace string, labelSelector string) (<-chan PodEvent, error)
}

// KubeClient drives pods on a real Kubernetes cluster via client-go.
type KubeClient struct {
	clientset  kubernetes.Interface
	restConfig *rest.Config
}

// NewKubeClient creates a new orchestrator client.
func NewKubeClient(clientset kubernetes.Interface, restConfig *rest.Config) *KubeClient {
	return &KubeClient{clientset: clientset, restConfig: restConfig}
}

// CreatePod creates a pod, returning the created object (idempotent: an
// AlreadyExists error is mapped to a fetch of the existing pod).
func (c *KubeClient) CreatePod(ctx context.Context, pod *corev1.Pod) (*corev1.Pod, error) {
	ctx, cancel := context.WithTimeout(ctx, podCreateTimeout)
	defer cancel()

	created, err := c.clientset.CoreV1().Pods(pod.Namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		if apierrors.IsAlreadyExists(err) {
			klog.V(4).Infof("pod %s/%s already exists, fetching", pod.Namespace, pod.Name)
			return c.GetPod(ctx, pod.Namespace, pod.Name)
		}
		return nil, fmt.Errorf("failed to create pod %s/%s: %w", pod.Namespace, pod.Name, err)
	}

	klog.Infof("created pod %s/%s", pod.Namespace, pod.Name)
	return created, nil
}

// GetPod fetches a pod by namespace/name.
func (c *KubeClient) GetPod(ctx context.Context, namespace, name string) (*corev1.Pod, error) {
	ctx, cancel := context.WithTimeout(ctx, podGetTimeout)
	defer cancel()

	pod, err := c.clientset.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get pod %s/%s: %w", namespace, name, err)
	}
	return pod, nil
}

// DeletePod deletes a pod (idempotent: NotFound is not an error).
func (c *KubeClient) DeletePod(ctx context.Context, namespace, name string) error {
	ctx, cancel := context.WithTimeout(ctx, podGetTimeout)
	defer cancel()

	err := c.clientset.CoreV1().Pods(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete pod %s/%s: %w", namespace, name, err)
	}
	klog.Infof("deleted pod %s/%s", namespace, name)
	return nil
}

// Exec runs argv inside a running container via the SPDY exec subresource
// and returns its captured stdout/stderr.
func (c *KubeClient) Exec(ctx context.Context, namespace, pod, container string, argv []string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()

	req := c.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(pod).
		Namespace(namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: container,
			Command:   argv,
			Stdin:     false,
			Stdout:    true,
			Stderr:    true,
			TTY:       false,
		}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(c.restConfig, "POST", req.URL())
	if err != nil {
		return "", "", fmt.Errorf("failed to build exec executor for %s/%s: %w", namespace, pod, err)
	}

	var stdout, stderr bytes.Buffer
	err = executor.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: &stdout,
		Stderr: &stderr,
	})
	return stdout.String(), stderr.String(), err
}

// WatchPods streams pod lifecycle events for pods matching labelSelector in
// namespace until ctx is cancelled.
func (c *KubeClient) WatchPods(ctx context.Context, namespace string, labelSelector string) (<-chan PodEvent, error) {
	w, err := c.clientset.CoreV1().Pods(namespace).Watch(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		return nil, fmt.Errorf("failed to watch pods in %s: %w", namespace, err)
	}

	out := make(chan PodEvent)
	go func() {
		defer close(out)
		defer w.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.ResultChan():
				if !ok {
					return
				}
				pod, ok := ev.Object.(*corev1.Pod)
				if !ok {
					continue
				}
				var t PodEventType
				switch ev.Type {
				case watch.Added:
					t = PodEventAdded
				case watch.Modified:
					t = PodEventModified
				case watch.Deleted:
					t = PodEventDeleted
				default:
					continue
				}
				select {
				case out <- PodEvent{Type: t, Pod: pod}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
