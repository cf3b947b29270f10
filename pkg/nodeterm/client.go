// SPDX-License-Identifier: Apache-2.0

// Package nodeterm issues filesystem and mount operations on a storage
// node by shelling out inside that node's node-agent pod, the way the
// orchestrator drives engine pods through pkg/orchestrator. Mount's argument
// list is built with k8s.io/mount-utils so the same argv conventions apply
// whether the call runs locally or, as here, remotely; unmount is a plain
// `umount <target>`.
package nodeterm

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/akam1o/block-orchestrator/pkg/orchestrator"
	mountutils "k8s.io/mount-utils"
)

const nodeAgentContainer = "node-agent"

// Client issues filesystem/mount commands on a bare node.
type Client interface {
	Mkfs(ctx context.Context, node, device, fsType string) error
	Mount(ctx context.Context, node, device, target, fsType string, options []string) error
	Unmount(ctx context.Context, node, target string) error
	IsMounted(ctx context.Context, node, target string) (bool, error)
	DiskUsageGiB(ctx context.Context, node, path string) (usedGiB int, err error)
	FilesystemUsageGiB(ctx context.Context, node, path string) (usedGiB, totalGiB int, err error)
	Fstrim(ctx context.Context, node, path string) error
	CreateFolder(ctx context.Context, node, path string) error
	RemoveFolder(ctx context.Context, node, path string) error
}

// PodClient drives nodeterm commands through the node-agent DaemonSet pod
// running on the target node.
type PodClient struct {
	orch      orchestrator.Client
	namespace string
}

// NewPodClient creates a new node-terminal client.
func NewPodClient(orch orchestrator.Client, namespace string) *PodClient {
	return &PodClient{orch: orch, namespace: namespace}
}

func nodeAgentPodName(node string) string {
	return "node-agent-" + node
}

func (c *PodClient) exec(ctx context.Context, node string, argv []string) (string, string, error) {
	stdout, stderr, err := c.orch.Exec(ctx, c.namespace, nodeAgentPodName(node), nodeAgentContainer, argv)
	if err != nil {
		return stdout, stderr, fmt.Errorf("exec %v on node %s failed: %w (stderr: %s)", argv, node, err, strings.TrimSpace(stderr))
	}
	return stdout, stderr, nil
}

// Mkfs formats device with fsType by running `mkfs.<fsType> <device>`. It
// formats on every call; callers check Block.Formatted before calling, per
// the reconciler's state machine.
func (c *PodClient) Mkfs(ctx context.Context, node, device, fsType string) error {
	_, _, err := c.exec(ctx, node, []string{"mkfs." + fsType, device})
	return err
}

// Mount mounts device at target using mount-utils' standard argument order.
func (c *PodClient) Mount(ctx context.Context, node, device, target, fsType string, options []string) error {
	if _, _, err := c.exec(ctx, node, []string{"mkdir", "-p", target}); err != nil {
		return err
	}
	argv := append([]string{"mount"}, mountutils.MakeMountArgs(device, target, fsType, options)...)
	_, _, err := c.exec(ctx, node, argv)
	return err
}

// Unmount unmounts target.
func (c *PodClient) Unmount(ctx context.Context, node, target string) error {
	_, _, err := c.exec(ctx, node, []string{"umount", target})
	return err
}

// IsMounted reports whether target is currently a mount point.
func (c *PodClient) IsMounted(ctx context.Context, node, target string) (bool, error) {
	_, _, err := c.exec(ctx, node, []string{"findmnt", "--noheadings", target})
	if err != nil {
		// findmnt exits non-zero when the path is not a mount point; that
		// is a normal answer, not a transport failure.
		return false, nil
	}
	return true, nil
}

// DiskUsageGiB returns the used size of path in GiB via `du -sB1`.
func (c *PodClient) DiskUsageGiB(ctx context.Context, node, path string) (int, error) {
	stdout, _, err := c.exec(ctx, node, []string{"du", "-sB1", path})
	if err != nil {
		return 0, err
	}
	return parseDUOutput(stdout)
}

// FilesystemUsageGiB returns used/total size of the filesystem mounted at
// path in GiB via `df -B1`.
func (c *PodClient) FilesystemUsageGiB(ctx context.Context, node, path string) (int, int, error) {
	stdout, _, err := c.exec(ctx, node, []string{"df", "-B1", "--output=used,size", path})
	if err != nil {
		return 0, 0, err
	}
	return parseDFOutput(stdout)
}

// Fstrim runs fstrim against a mounted path.
func (c *PodClient) Fstrim(ctx context.Context, node, path string) error {
	_, _, err := c.exec(ctx, node, []string{"fstrim", path})
	return err
}

// CreateFolder creates a replica data folder.
func (c *PodClient) CreateFolder(ctx context.Context, node, path string) error {
	_, _, err := c.exec(ctx, node, []string{"mkdir", "-p", path})
	return err
}

// RemoveFolder removes a replica data folder (best-effort recursive).
func (c *PodClient) RemoveFolder(ctx context.Context, node, path string) error {
	_, _, err := c.exec(ctx, node, []string{"rm", "-rf", path})
	return err
}

const giB = 1 << 30

func parseDUOutput(stdout string) (int, error) {
	fields := strings.Fields(strings.TrimSpace(stdout))
	if len(fields) < 1 {
		return 0, fmt.Errorf("unexpected du output: %q", stdout)
	}
	bytesUsed, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse du output %q: %w", stdout, err)
	}
	return int(bytesUsed / giB), nil
}

func parseDFOutput(stdout string) (int, int, error) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) < 2 {
		return 0, 0, fmt.Errorf("unexpected df output: %q", stdout)
	}
	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("unexpected df output line: %q", lines[len(lines)-1])
	}
	used, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse df used bytes %q: %w", fields[0], err)
	}
	total, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse df total bytes %q: %w", fields[1], err)
	}
	return int(used / giB), int(total / giB), nil
}
