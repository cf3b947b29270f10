// SPDX-License-Identifier: Apache-2.0

// Package engine issues the engine CLI's command-line protocol against a
// block's controller container via the orchestrator's exec facility, and
// parses the resulting stdout/stderr. It is the only layer that knows the
// "longhorn ..." argv grammar; drivers above it (controller, replica,
// snapshot) speak Go types.
package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/akam1o/block-orchestrator/pkg/block"
	"github.com/akam1o/block-orchestrator/pkg/blockerr"
	"github.com/akam1o/block-orchestrator/pkg/orchestrator"
	"k8s.io/klog/v2"
)

const engineControllerContainer = "controller"

// Result is the captured output of a single exec call.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Gateway issues argv commands inside a block's controller container.
type Gateway struct {
	orch orchestrator.Client
}

// NewGateway creates a new Command Gateway.
func NewGateway(orch orchestrator.Client) *Gateway {
	return &Gateway{orch: orch}
}

// Exec runs argv inside b's controller pod, failing with NoController if
// the block has never had a controller assigned, and with PodNotFound if
// the pod no longer exists.
func (g *Gateway) Exec(ctx context.Context, b *block.Block, argv []string) (*Result, error) {
	if b.Controller == nil {
		return nil, blockerr.NoController(b.ID)
	}

	pod, err := g.orch.GetPod(ctx, b.Namespace, b.Name)
	if err != nil {
		return nil, blockerr.PodNotFound(b.Name)
	}
	if pod.Status.Phase != "Running" {
		return nil, blockerr.PodNotRunning(b.Name)
	}

	klog.V(4).Infof("exec on block %s controller: %v", b.ID, argv)
	stdout, stderr, err := g.orch.Exec(ctx, b.Namespace, b.Name, engineControllerContainer, argv)
	if err != nil {
		return &Result{Stdout: stdout, Stderr: stderr}, blockerr.EngineCommandFailed(fmt.Sprintf("command %v failed: %s", argv, stderr), err)
	}
	return &Result{Stdout: stdout, Stderr: stderr}, nil
}

// sizeArg formats a GiB size the way the engine CLI expects: "<N>gb".
func sizeArg(sizeGiB int) string {
	return strconv.Itoa(sizeGiB) + "gb"
}
