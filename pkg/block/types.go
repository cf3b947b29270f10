// SPDX-License-Identifier: Apache-2.0

// Package block defines the Block/Replica domain model for the orchestrator.
package block

import "time"

// Status is the derived health status of a Block or Replica.
type Status string

const (
	StatusPending    Status = "pending"
	StatusHealthy    Status = "healthy"
	StatusUnhealthy  Status = "unhealthy"
	StatusRepairing  Status = "repairing"
	StatusOffline    Status = "offline"
)

// Locality describes whether a healthy replica shares the Block's preferred node.
type Locality string

const (
	LocalityLocal    Locality = "local"
	LocalityRemote   Locality = "remote"
	LocalityUnknown  Locality = "unknown"
)

// Mode is the engine's view of a replica's read/write capability.
type Mode string

const (
	ModeRW  Mode = "RW"
	ModeRO  Mode = "RO"
	ModeErr Mode = "ERR"
)

// Replica is a single storage copy of a Block's data, embedded in Block.Replicas.
// It is treated as a value object: callers always replace the whole slice on
// persistence rather than mutating an element in place.
type Replica struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	Pod    string `json:"pod,omitempty"`
	Disk   string `json:"disk"`
	Node   string `json:"node"`
	Folder string `json:"folder"`

	Status   Status `json:"status"`
	Healthy  bool   `json:"healthy"`
	Attached bool   `json:"attached"`

	IP       *string `json:"ip,omitempty"`
	Endpoint *string `json:"endpoint,omitempty"`

	Mode Mode `json:"mode"`
}

// Endpoint builds the tcp://<ip>:10000 endpoint for a replica IP.
func Endpoint(ip string) string {
	return "tcp://" + ip + ":10000"
}

// Block is the root aggregate: a logical replicated block device.
type Block struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	Cluster   string `json:"cluster"`
	Namespace string `json:"namespace"`
	Node      string `json:"node"`

	SizeGiB int `json:"size"`
	UsedGiB int `json:"used"`

	ReplicaCount int `json:"replicaCount"`

	Controller *string `json:"controller,omitempty"`
	Device     *string `json:"device,omitempty"`

	// MountPoint is the folder handle's resolved path; MountFolderID is the
	// opaque handle itself, kept so Deprovision can release it without a
	// round trip back through the substrate to resolve path -> id.
	MountPoint    string `json:"mountPoint"`
	MountFolderID string `json:"mountFolderID,omitempty"`
	Formatted     bool   `json:"formatted"`
	Mounted       bool   `json:"mounted"`

	Online        bool     `json:"online"`
	FrontendState bool     `json:"frontendState"`
	Locality      Locality `json:"locality"`
	Healthy       bool     `json:"healthy"`
	Status        Status   `json:"status"`

	Replicas []Replica `json:"replicas"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// Deleted reports whether this Block has been soft-deleted.
func (b *Block) Deleted() bool {
	return b.DeletedAt != nil
}

// ReplicaByEndpoint finds a replica by its engine endpoint.
func (b *Block) ReplicaByEndpoint(endpoint string) (*Replica, bool) {
	for i := range b.Replicas {
		if b.Replicas[i].Endpoint != nil && *b.Replicas[i].Endpoint == endpoint {
			return &b.Replicas[i], true
		}
	}
	return nil, false
}

// ReplicaByID finds a replica by id.
func (b *Block) ReplicaByID(id string) (*Replica, bool) {
	for i := range b.Replicas {
		if b.Replicas[i].ID == id {
			return &b.Replicas[i], true
		}
	}
	return nil, false
}

// ReplicaByPod finds a replica by its pod handle.
func (b *Block) ReplicaByPod(pod string) (*Replica, bool) {
	for i := range b.Replicas {
		if b.Replicas[i].Pod == pod {
			return &b.Replicas[i], true
		}
	}
	return nil, false
}

// DeriveLocality recomputes Locality per invariant 6: local iff some healthy
// replica's node equals the block's preferred node.
func (b *Block) DeriveLocality() Locality {
	for _, r := range b.Replicas {
		if r.Healthy && r.Node == b.Node {
			return LocalityLocal
		}
	}
	if len(b.Replicas) == 0 {
		return LocalityUnknown
	}
	return LocalityRemote
}

// DeriveHealthy recomputes Healthy per invariant: all replicas healthy.
func (b *Block) DeriveHealthy() bool {
	for _, r := range b.Replicas {
		if !r.Healthy {
			return false
		}
	}
	return true
}

// Clone returns a deep-enough copy for read paths that must not alias the
// stored slice (spec.md §9: replicas are a value object, never mutated
// through an aliased reference).
func (b *Block) Clone() *Block {
	c := *b
	c.Replicas = make([]Replica, len(b.Replicas))
	copy(c.Replicas, b.Replicas)
	if b.Controller != nil {
		v := *b.Controller
		c.Controller = &v
	}
	if b.Device != nil {
		v := *b.Device
		c.Device = &v
	}
	if b.DeletedAt != nil {
		v := *b.DeletedAt
		c.DeletedAt = &v
	}
	return &c
}
