// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/klog/v2"

	"github.com/akam1o/block-orchestrator/pkg/block"
	"github.com/akam1o/block-orchestrator/pkg/blockerr"
	"github.com/akam1o/block-orchestrator/pkg/moniker"
	"github.com/akam1o/block-orchestrator/pkg/orchestrator"
	"github.com/akam1o/block-orchestrator/pkg/store"
	"github.com/akam1o/block-orchestrator/pkg/substrate"
)

const (
	replicaListenPort   = 10000
	replicaPortRangeEnd = 10014
	replicaFolderPrefix = "block-replica"
)

// AddReplicaOptions carries add-replica's conditional flags.
type AddReplicaOptions struct {
	Restore                   bool
	FastSync                  bool
	FileSyncHTTPClientTimeout string
}

// ReplicaDriver owns replica-pod lifecycle and the controller-side
// add/remove/update/verify-rebuild protocol (spec.md §4.3).
type ReplicaDriver struct {
	gateway    *Gateway
	orch       orchestrator.Client
	store      store.Store
	substrate  substrate.Client
	controller *ControllerDriver
	image      string
	namespace  string
}

// NewReplicaDriver creates a new Replica Driver.
func NewReplicaDriver(gateway *Gateway, orch orchestrator.Client, st store.Store, sub substrate.Client, controller *ControllerDriver, image, namespace string) *ReplicaDriver {
	return &ReplicaDriver{gateway: gateway, orch: orch, store: st, substrate: sub, controller: controller, image: image, namespace: namespace}
}

func replicaArgv(name string, sizeGiB int) []string {
	return []string{
		"longhorn", "replica", "/mnt/",
		"--size", sizeArg(sizeGiB),
		"--replica-instance-name", name,
		"--listen", "0.0.0.0:10000",
		"--data-server-protocol", "tcp",
		"--snapshot-max-count", "250",
		"--snapshot-max-size", "1gb",
	}
}

func (d *ReplicaDriver) replicaPodSpec(b *block.Block, r *block.Replica, node, hostPath string) *corev1.Pod {
	ports := make([]corev1.ContainerPort, 0, replicaPortRangeEnd-replicaListenPort+1)
	for p := replicaListenPort; p <= replicaPortRangeEnd; p++ {
		ports = append(ports, corev1.ContainerPort{ContainerPort: int32(p), Protocol: corev1.ProtocolTCP})
	}
	hostPathDir := corev1.HostPathDirectory
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Namespace: b.Namespace,
			Name:      r.Name,
			Labels:    map[string]string{"block": b.ID},
		},
		Spec: corev1.PodSpec{
			NodeName:      node,
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{
				{
					Name:    "replica",
					Image:   d.image,
					Command: replicaArgv(r.Name, b.SizeGiB),
					Ports:   ports,
					VolumeMounts: []corev1.VolumeMount{
						{Name: "data", MountPath: "/mnt"},
					},
				},
			},
			Volumes: []corev1.Volume{
				{Name: "data", VolumeSource: corev1.VolumeSource{HostPath: &corev1.HostPathVolumeSource{Path: hostPath, Type: &hostPathDir}}},
			},
		},
	}
}

// CreateReplica allocates a folder on disk, submits a replica pod, and
// appends the new Replica to b.Replicas.
func (d *ReplicaDriver) CreateReplica(ctx context.Context, b *block.Block, disk *substrate.Disk) (*block.Replica, error) {
	folder, err := d.substrate.AllocateFolder(ctx, disk.ID, replicaFolderPrefix+"-"+b.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate replica folder on disk %s: %w", disk.ID, err)
	}

	existing := make(map[string]bool, len(b.Replicas))
	for _, r := range b.Replicas {
		existing[r.Name] = true
	}
	name := "block-replica-" + b.Name + "-" + moniker.Name(func(n string) bool { return existing[n] })

	replica := block.Replica{
		ID:       name,
		Name:     name,
		Disk:     disk.ID,
		Node:     disk.Node,
		Folder:   folder.ID,
		Status:   block.StatusPending,
		Healthy:  false,
		Attached: false,
		Mode:     block.ModeRW,
	}

	pod := d.replicaPodSpec(b, &replica, disk.Node, folder.Path)
	created, err := d.orch.CreatePod(ctx, pod)
	if err != nil {
		if releaseErr := d.substrate.ReleaseFolder(ctx, folder.ID); releaseErr != nil {
			klog.Warningf("failed to release folder %s after replica pod creation failure: %v", folder.ID, releaseErr)
		}
		return nil, blockerr.PodCreationError("failed to create replica pod for block "+b.ID, err)
	}
	replica.Pod = string(created.UID)

	b.Replicas = append(b.Replicas, replica)
	if err := d.store.UpdateBlock(b); err != nil {
		return nil, fmt.Errorf("failed to persist new replica for block %s: %w", b.ID, err)
	}
	klog.Infof("created replica %s for block %s on disk %s", name, b.ID, disk.ID)
	return &b.Replicas[len(b.Replicas)-1], nil
}

// AddReplicaToFrontend attaches a healthy replica to the controller's
// replica set. Skips (with a log) if the replica isn't healthy or the
// block isn't online yet.
func (d *ReplicaDriver) AddReplicaToFrontend(ctx context.Context, b *block.Block, r *block.Replica, opts *AddReplicaOptions) error {
	if !r.Healthy || !b.Online {
		klog.V(4).Infof("skipping AddReplicaToFrontend for block %s replica %s: healthy=%v online=%v", b.ID, r.Name, r.Healthy, b.Online)
		return nil
	}

	argv := []string{
		"longhorn", "add-replica",
		"--replica-instance-name", r.Name,
		"--size", sizeArg(b.SizeGiB),
		"--current-size", sizeArg(b.SizeGiB),
	}
	if opts != nil {
		if opts.Restore {
			argv = append(argv, "--restore")
		}
		if opts.FastSync {
			argv = append(argv, "--fast-sync")
		}
		if opts.FileSyncHTTPClientTimeout != "" {
			argv = append(argv, "--file-sync-http-client-timeout", opts.FileSyncHTTPClientTimeout)
		}
	}
	argv = append(argv, *r.Endpoint)

	res, err := d.gateway.Exec(ctx, b, argv)
	if res != nil && strings.Contains(res.Stderr, "Error running add replica command") {
		return blockerr.AddReplicaError(strings.TrimSpace(res.Stderr))
	}
	if err != nil {
		return err
	}

	r.Attached = true
	if err := d.store.UpdateBlock(b); err != nil {
		return fmt.Errorf("failed to persist replica attach for block %s: %w", b.ID, err)
	}
	return d.controller.UpdateFrontendState(ctx, b)
}

// RemoveReplicaFromFrontend detaches a replica from the controller's
// replica set. Fails NoReplicaEndpoint if the replica has no endpoint.
func (d *ReplicaDriver) RemoveReplicaFromFrontend(ctx context.Context, b *block.Block, r *block.Replica) error {
	if r.Endpoint == nil {
		return blockerr.NoReplicaEndpoint(r.ID)
	}

	res, err := d.gateway.Exec(ctx, b, []string{"longhorn", "rm-replica", *r.Endpoint})
	if res != nil && strings.Contains(res.Stderr, "cannot remove last replica if volume is up") {
		return blockerr.CannotRemoveLastReplica(strings.TrimSpace(res.Stderr))
	}
	if err != nil {
		return err
	}

	r.Attached = false
	if err := d.store.UpdateBlock(b); err != nil {
		return fmt.Errorf("failed to persist replica detach for block %s: %w", b.ID, err)
	}
	return d.controller.UpdateFrontendState(ctx, b)
}

// RemoveReplicaFromBlock tears a replica down best-effort: detach, delete
// its pod, deprovision its folder, each independently logged on failure,
// then drops it from b.Replicas.
func (d *ReplicaDriver) RemoveReplicaFromBlock(ctx context.Context, b *block.Block, r *block.Replica) error {
	if err := d.RemoveReplicaFromFrontend(ctx, b, r); err != nil {
		klog.Warningf("best-effort detach of replica %s (block %s) failed: %v", r.Name, b.ID, err)
	}
	if err := d.orch.DeletePod(ctx, b.Namespace, r.Name); err != nil {
		klog.Warningf("best-effort deletion of replica pod %s (block %s) failed: %v", r.Name, b.ID, err)
	}
	if r.Folder != "" {
		if err := d.substrate.ReleaseFolder(ctx, r.Folder); err != nil {
			klog.Warningf("best-effort release of replica folder %s (block %s) failed: %v", r.Folder, b.ID, err)
		}
	}

	kept := make([]block.Replica, 0, len(b.Replicas))
	for _, existing := range b.Replicas {
		if existing.ID != r.ID {
			kept = append(kept, existing)
		}
	}
	b.Replicas = kept
	if err := d.store.UpdateBlock(b); err != nil {
		return fmt.Errorf("failed to persist replica removal for block %s: %w", b.ID, err)
	}
	return d.controller.UpdateFrontendState(ctx, b)
}

// JoinedReplica is one ls-replica row joined back to its stored replica by
// endpoint equality (spec.md §4.1, §4.3). A row with no matching stored
// replica is returned with only its parsed fields set.
type JoinedReplica struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Disk   string `json:"disk,omitempty"`
	Node   string `json:"node,omitempty"`
	Folder string `json:"folder,omitempty"`

	Endpoint      string   `json:"endpoint"`
	Mode          string   `json:"mode"`
	SnapshotChain []string `json:"snapshotChain,omitempty"`
}

// ListReplicas runs ls-replica and joins each row back to a stored replica
// by endpoint equality.
func (d *ReplicaDriver) ListReplicas(ctx context.Context, b *block.Block) ([]JoinedReplica, error) {
	res, err := d.gateway.Exec(ctx, b, []string{"longhorn", "ls-replica"})
	if err != nil {
		return nil, err
	}
	rows, err := ParseReplicaList(res.Stdout)
	if err != nil {
		return nil, err
	}

	joined := make([]JoinedReplica, len(rows))
	for i, row := range rows {
		jr := JoinedReplica{Endpoint: row.Endpoint, Mode: row.Mode, SnapshotChain: row.SnapshotChain}
		if rc, ok := b.ReplicaByEndpoint(row.Endpoint); ok {
			jr.ID = rc.ID
			jr.Name = rc.Name
			jr.Disk = rc.Disk
			jr.Node = rc.Node
			jr.Folder = rc.Folder
		}
		joined[i] = jr
	}
	return joined, nil
}

// UpdateReplica sets a replica's engine-visible read/write mode.
func (d *ReplicaDriver) UpdateReplica(ctx context.Context, b *block.Block, r *block.Replica, mode block.Mode) error {
	if mode != block.ModeRW && mode != block.ModeRO && mode != block.ModeErr {
		return blockerr.InvalidMode(string(mode))
	}
	if r.Endpoint == nil {
		return blockerr.NoReplicaEndpoint(r.ID)
	}
	if _, err := d.gateway.Exec(ctx, b, []string{"longhorn", "update-replica", "--mode", string(mode), *r.Endpoint}); err != nil {
		return err
	}
	r.Mode = mode
	return d.store.UpdateBlock(b)
}

// RebuildStatus reports a replica's rebuild progress as raw JSON.
func (d *ReplicaDriver) RebuildStatus(ctx context.Context, b *block.Block, r *block.Replica) (string, error) {
	if r.Endpoint == nil {
		return "", blockerr.NoReplicaEndpoint(r.ID)
	}
	res, err := d.gateway.Exec(ctx, b, []string{"longhorn", "replica-rebuild-status", *r.Endpoint})
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// VerifyRebuild asks the controller to verify a just-rebuilt replica.
func (d *ReplicaDriver) VerifyRebuild(ctx context.Context, b *block.Block, r *block.Replica) error {
	if r.Endpoint == nil {
		return blockerr.NoReplicaEndpoint(r.ID)
	}
	_, err := d.gateway.Exec(ctx, b, []string{"longhorn", "verify-rebuild-replica", "--replica-instance-name", r.ID, *r.Endpoint})
	return err
}
