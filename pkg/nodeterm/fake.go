// SPDX-License-Identifier: Apache-2.0

package nodeterm

import (
	"context"
	"sync"
)

// FakeClient is an in-process nodeterm.Client double for reconciler tests.
type FakeClient struct {
	mu        sync.Mutex
	formatted map[string]bool   // node/device -> formatted
	mounted   map[string]string // node/target -> device
	folders   map[string]bool   // node/path -> exists

	UsedGiB  int
	TotalGiB int
}

// NewFakeClient creates an empty FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		formatted: make(map[string]bool),
		mounted:   make(map[string]string),
		folders:   make(map[string]bool),
	}
}

func key(node, p string) string { return node + "/" + p }

func (f *FakeClient) Mkfs(ctx context.Context, node, device, fsType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.formatted[key(node, device)] = true
	return nil
}

func (f *FakeClient) Mount(ctx context.Context, node, device, target, fsType string, options []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mounted[key(node, target)] = device
	return nil
}

func (f *FakeClient) Unmount(ctx context.Context, node, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.mounted, key(node, target))
	return nil
}

func (f *FakeClient) IsMounted(ctx context.Context, node, target string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.mounted[key(node, target)]
	return ok, nil
}

func (f *FakeClient) DiskUsageGiB(ctx context.Context, node, path string) (int, error) {
	return f.UsedGiB, nil
}

func (f *FakeClient) FilesystemUsageGiB(ctx context.Context, node, path string) (int, int, error) {
	return f.UsedGiB, f.TotalGiB, nil
}

func (f *FakeClient) Fstrim(ctx context.Context, node, path string) error {
	return nil
}

func (f *FakeClient) CreateFolder(ctx context.Context, node, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.folders[key(node, path)] = true
	return nil
}

func (f *FakeClient) RemoveFolder(ctx context.Context, node, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.folders, key(node, path))
	return nil
}

// FolderExists reports whether CreateFolder has been called for node/path
// without a matching RemoveFolder.
func (f *FakeClient) FolderExists(node, path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.folders[key(node, path)]
}
