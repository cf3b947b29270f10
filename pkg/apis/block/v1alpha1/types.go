// SPDX-License-Identifier: Apache-2.0

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ReplicaMode mirrors the engine's view of a replica's read/write capability.
type ReplicaMode string

const (
	ReplicaModeRW  ReplicaMode = "RW"
	ReplicaModeRO  ReplicaMode = "RO"
	ReplicaModeErr ReplicaMode = "ERR"
)

// ReplicaSpec is a persisted snapshot of a single replica, embedded wholesale
// in BlockVolumeSpec.Replicas. Replicas are never patched in place; the
// whole slice is replaced on every update.
type ReplicaSpec struct {
	// +kubebuilder:validation:Required
	ID string `json:"id"`
	// +kubebuilder:validation:Required
	Name string `json:"name"`

	Pod    string `json:"pod,omitempty"`
	Disk   string `json:"disk"`
	Node   string `json:"node"`
	Folder string `json:"folder"`

	Status   string `json:"status"`
	Healthy  bool   `json:"healthy"`
	Attached bool   `json:"attached"`

	IP       *string     `json:"ip,omitempty"`
	Endpoint *string     `json:"endpoint,omitempty"`
	Mode     ReplicaMode `json:"mode,omitempty"`
}

// BlockVolumeSpec is the desired and observed shape of a replicated block device.
type BlockVolumeSpec struct {
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:MinLength=1
	// +kubebuilder:validation:MaxLength=253
	// +kubebuilder:validation:Pattern=`^[A-Za-z0-9]([A-Za-z0-9_.-]{0,251}[A-Za-z0-9])?$`
	BlockName string `json:"blockName"`

	// +kubebuilder:validation:Required
	Cluster string `json:"cluster"`
	// +kubebuilder:validation:Required
	Namespace string `json:"namespace"`
	Node      string `json:"node,omitempty"`

	// +kubebuilder:validation:Minimum=1
	SizeGiB int `json:"sizeGiB"`
	UsedGiB int `json:"usedGiB,omitempty"`

	// +kubebuilder:validation:Minimum=1
	ReplicaCount int `json:"replicaCount"`

	Controller *string `json:"controller,omitempty"`
	Device     *string `json:"device,omitempty"`

	MountPoint    string `json:"mountPoint,omitempty"`
	MountFolderID string `json:"mountFolderID,omitempty"`
	Formatted     bool   `json:"formatted,omitempty"`
	Mounted       bool   `json:"mounted,omitempty"`

	// +kubebuilder:validation:Optional
	// +listType=map
	// +listMapKey=id
	Replicas []ReplicaSpec `json:"replicas,omitempty"`
}

// BlockVolumeStatus carries the reconciler's derived observations.
type BlockVolumeStatus struct {
	Online        bool   `json:"online,omitempty"`
	FrontendState bool   `json:"frontendState,omitempty"`
	Locality      string `json:"locality,omitempty"`
	Healthy       bool   `json:"healthy,omitempty"`
	Phase         string `json:"phase,omitempty"`

	ObservedGeneration int64              `json:"observedGeneration,omitempty"`
	Conditions         []metav1.Condition `json:"conditions,omitempty"`
}

// BlockVolume is a cluster-scoped persistent record of a replicated block device.
//
// +kubebuilder:object:root=true
// +kubebuilder:resource:scope=Cluster,path=blockvolumes,singular=blockvolume,shortName=bv,categories=storage;block
// +kubebuilder:subresource:status
// +kubebuilder:storageversion
// +kubebuilder:printcolumn:name="Name",type="string",JSONPath=".spec.blockName"
// +kubebuilder:printcolumn:name="Node",type="string",JSONPath=".spec.node"
// +kubebuilder:printcolumn:name="Size",type="integer",JSONPath=".spec.sizeGiB"
// +kubebuilder:printcolumn:name="Replicas",type="integer",JSONPath=".spec.replicaCount"
// +kubebuilder:printcolumn:name="Phase",type="string",JSONPath=".status.phase"
// +kubebuilder:printcolumn:name="Age",type="date",JSONPath=".metadata.creationTimestamp"
type BlockVolume struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   BlockVolumeSpec   `json:"spec"`
	Status BlockVolumeStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true
type BlockVolumeList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []BlockVolume `json:"items"`
}
