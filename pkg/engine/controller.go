// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/klog/v2"

	"github.com/akam1o/block-orchestrator/pkg/block"
	"github.com/akam1o/block-orchestrator/pkg/blockerr"
	"github.com/akam1o/block-orchestrator/pkg/orchestrator"
	"github.com/akam1o/block-orchestrator/pkg/store"
)

const controllerListenPort = 9501

// ControllerOptions carries the engine controller's conditional flags.
// Each is consulted at most once, in the fixed order the engine CLI
// expects: upgrade, disableRevCounter, salvageRequested,
// unmapMarkSnapChainRemoved, snapshotMaxCount, snapshotMaxSize,
// engineReplicaTimeout, dataServerProtocol, fileSyncHTTPClientTimeout.
type ControllerOptions struct {
	Upgrade                   bool
	DisableRevCounter         bool
	SalvageRequested          bool
	UnmapMarkSnapChainRemoved bool
	SnapshotMaxCount          *int
	SnapshotMaxSize           string
	EngineReplicaTimeout      string
	DataServerProtocol        string
	FileSyncHTTPClientTimeout string
}

// ControllerInfo is the JSON document returned by `longhorn info`.
type ControllerInfo struct {
	FrontendState string `json:"frontendState"`
	Endpoint      string `json:"endpoint"`
}

// ControllerDriver owns controller-pod lifecycle and the frontend
// start/shutdown/expand/info protocol (spec.md §4.2).
type ControllerDriver struct {
	gateway   *Gateway
	orch      orchestrator.Client
	store     store.Store
	image     string
	frontend  string
	namespace string
	followOn  followOnFunc
}

// NewControllerDriver creates a new Engine Controller Driver.
func NewControllerDriver(gateway *Gateway, orch orchestrator.Client, st store.Store, image, frontend, namespace string) *ControllerDriver {
	return &ControllerDriver{gateway: gateway, orch: orch, store: st, image: image, frontend: frontend, namespace: namespace}
}

func controllerArgv(b *block.Block, frontend string, opts *ControllerOptions) []string {
	argv := []string{
		"longhorn", "controller",
		"--listen", "0.0.0.0:9501",
		"--size", sizeArg(b.SizeGiB),
		"--current-size", sizeArg(b.SizeGiB),
		"--frontend", frontend,
	}
	for _, r := range b.Replicas {
		if r.Endpoint != nil {
			argv = append(argv, "--replica", *r.Endpoint)
		}
	}
	if opts != nil {
		if opts.Upgrade {
			argv = append(argv, "--upgrade")
		}
		if opts.DisableRevCounter {
			argv = append(argv, "--disableRevCounter")
		}
		if opts.SalvageRequested {
			argv = append(argv, "--salvageRequested")
		}
		if opts.UnmapMarkSnapChainRemoved {
			argv = append(argv, "--unmap-mark-snap-chain-removed")
		}
		if opts.SnapshotMaxCount != nil {
			argv = append(argv, "--snapshot-max-count", fmt.Sprintf("%d", *opts.SnapshotMaxCount))
		}
		if opts.SnapshotMaxSize != "" {
			argv = append(argv, "--snapshot-max-size", opts.SnapshotMaxSize)
		}
		if opts.EngineReplicaTimeout != "" {
			argv = append(argv, "--engine-replica-timeout", opts.EngineReplicaTimeout)
		}
		if opts.DataServerProtocol != "" {
			argv = append(argv, "--data-server-protocol", opts.DataServerProtocol)
		}
		if opts.FileSyncHTTPClientTimeout != "" {
			argv = append(argv, "--file-sync-http-client-timeout", opts.FileSyncHTTPClientTimeout)
		}
	}
	argv = append(argv, b.Name)
	return argv
}

func (d *ControllerDriver) controllerPodSpec(b *block.Block, argv []string) *corev1.Pod {
	privileged := true
	hostPathDir := corev1.HostPathDirectory
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Namespace: b.Namespace,
			Name:      b.Name,
			Labels:    map[string]string{"block": b.ID},
		},
		Spec: corev1.PodSpec{
			NodeName:      b.Node,
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{
				{
					Name:    engineControllerContainer,
					Image:   d.image,
					Command: argv,
					SecurityContext: &corev1.SecurityContext{
						Privileged: &privileged,
					},
					Ports: []corev1.ContainerPort{
						{ContainerPort: controllerListenPort, Protocol: corev1.ProtocolTCP},
					},
					VolumeMounts: []corev1.VolumeMount{
						{Name: "mnt", MountPath: "/mnt"},
						{Name: "dev", MountPath: "/host/dev"},
						{Name: "proc", MountPath: "/host/proc"},
					},
				},
			},
			Volumes: []corev1.Volume{
				{Name: "mnt", VolumeSource: corev1.VolumeSource{HostPath: &corev1.HostPathVolumeSource{Path: "/mnt", Type: &hostPathDir}}},
				{Name: "dev", VolumeSource: corev1.VolumeSource{HostPath: &corev1.HostPathVolumeSource{Path: "/dev", Type: &hostPathDir}}},
				{Name: "proc", VolumeSource: corev1.VolumeSource{HostPath: &corev1.HostPathVolumeSource{Path: "/proc", Type: &hostPathDir}}},
			},
		},
	}
}

// CreateController submits the engine controller pod for b and persists
// the resulting handle. Fails ControllerExists if b already has one.
func (d *ControllerDriver) CreateController(ctx context.Context, b *block.Block, opts *ControllerOptions) error {
	if b.Controller != nil {
		return blockerr.ControllerExists(b.ID)
	}

	argv := controllerArgv(b, d.frontend, opts)
	pod := d.controllerPodSpec(b, argv)
	created, err := d.orch.CreatePod(ctx, pod)
	if err != nil {
		return blockerr.PodCreationError("failed to create controller pod for block "+b.ID, err)
	}

	handle := string(created.UID)
	b.Controller = &handle
	if err := d.store.UpdateBlock(b); err != nil {
		return fmt.Errorf("failed to persist controller handle for block %s: %w", b.ID, err)
	}
	klog.Infof("created controller pod for block %s (handle %s)", b.ID, handle)
	return nil
}

// StartFrontend issues the frontend-start command, then reconciles derived
// state from the engine's view via UpdateFrontendState.
func (d *ControllerDriver) StartFrontend(ctx context.Context, b *block.Block) error {
	if _, err := d.gateway.Exec(ctx, b, []string{"longhorn", "frontend", "start", d.frontend}); err != nil {
		return err
	}
	return d.UpdateFrontendState(ctx, b)
}

// ShutdownFrontend issues the frontend-shutdown command, then reconciles
// derived state via UpdateFrontendState.
func (d *ControllerDriver) ShutdownFrontend(ctx context.Context, b *block.Block) error {
	if _, err := d.gateway.Exec(ctx, b, []string{"longhorn", "frontend", "shutdown"}); err != nil {
		return err
	}
	return d.UpdateFrontendState(ctx, b)
}

// GetControllerInfo runs `longhorn info` and parses its JSON body.
func (d *ControllerDriver) GetControllerInfo(ctx context.Context, b *block.Block) (*ControllerInfo, error) {
	res, err := d.gateway.Exec(ctx, b, []string{"longhorn", "info"})
	if err != nil {
		return nil, err
	}
	var info ControllerInfo
	if err := ParseJSON(res.Stdout, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Expand resizes the controller's view of the volume to b.SizeGiB.
func (d *ControllerDriver) Expand(ctx context.Context, b *block.Block) error {
	_, err := d.gateway.Exec(ctx, b, []string{"longhorn", "expand", "--size", sizeArg(b.SizeGiB)})
	return err
}

// DeleteController tears down the controller pod and clears the handle.
// Fails ControllerMounted if the block is still mounted.
func (d *ControllerDriver) DeleteController(ctx context.Context, b *block.Block) error {
	if b.Mounted {
		return blockerr.ControllerMounted(b.ID)
	}

	if err := d.orch.DeletePod(ctx, b.Namespace, b.Name); err != nil {
		return fmt.Errorf("failed to delete controller pod for block %s: %w", b.ID, err)
	}

	b.Controller = nil
	b.Online = false
	if err := d.store.UpdateBlock(b); err != nil {
		return fmt.Errorf("failed to persist controller removal for block %s: %w", b.ID, err)
	}
	return nil
}

// UpdateFrontendState reads GetControllerInfo and merges the engine's view
// of frontend state, device, locality and health into b, logging an up/down
// transition (no event is published for it) and chaining Format/Mount/Unmount
// follow-ons under the same critical section the caller already holds.
func (d *ControllerDriver) UpdateFrontendState(ctx context.Context, b *block.Block) error {
	info, err := d.GetControllerInfo(ctx, b)
	if err != nil {
		klog.Warningf("UpdateFrontendState: failed to read controller info for block %s: %v", b.ID, err)
		return nil
	}

	wasUp := b.FrontendState
	up := info.FrontendState == "up"
	b.FrontendState = up
	if info.Endpoint != "" {
		device := info.Endpoint
		b.Device = &device
	} else {
		b.Device = nil
	}
	b.Locality = b.DeriveLocality()
	b.Healthy = b.DeriveHealthy()

	if err := d.store.UpdateBlock(b); err != nil {
		return fmt.Errorf("failed to persist frontend state for block %s: %w", b.ID, err)
	}

	if up != wasUp {
		if up {
			klog.Infof("block %s frontend state up (endpoint %s)", b.ID, info.Endpoint)
		} else {
			klog.Infof("block %s frontend state down", b.ID)
		}
	}

	if d.followOn == nil {
		return nil
	}
	return d.followOn(ctx, b, up)
}

// followOn, when set by the reconciler, runs Format/Mount/Unmount after a
// frontend-state transition, inside the caller's held lock.
type followOnFunc func(ctx context.Context, b *block.Block, up bool) error

// SetFollowOn wires the reconciler's Format/Mount/Unmount continuation.
func (d *ControllerDriver) SetFollowOn(fn followOnFunc) {
	d.followOn = fn
}
