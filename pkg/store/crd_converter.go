// SPDX-License-Identifier: Apache-2.0

package store

import (
	"github.com/akam1o/block-orchestrator/pkg/apis/block/v1alpha1"
	"github.com/akam1o/block-orchestrator/pkg/block"
	"github.com/jinzhu/copier"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func replicasToCRD(replicas []block.Replica) []v1alpha1.ReplicaSpec {
	out := make([]v1alpha1.ReplicaSpec, len(replicas))
	for i, r := range replicas {
		var spec v1alpha1.ReplicaSpec
		copier.Copy(&spec, &r)
		spec.Status = string(r.Status)
		spec.Mode = v1alpha1.ReplicaMode(r.Mode)
		out[i] = spec
	}
	return out
}

func replicasFromCRD(specs []v1alpha1.ReplicaSpec) []block.Replica {
	out := make([]block.Replica, len(specs))
	for i, s := range specs {
		var r block.Replica
		copier.Copy(&r, &s)
		r.Status = block.Status(s.Status)
		r.Mode = block.Mode(s.Mode)
		out[i] = r
	}
	return out
}

// blockToCRD converts a domain Block to a BlockVolume CRD, preserving any
// existing ObjectMeta (resourceVersion, uid, finalizers) the caller supplies.
func blockToCRD(b *block.Block, meta metav1.ObjectMeta) *v1alpha1.BlockVolume {
	if meta.Name == "" {
		meta.Name = b.ID
	}
	if meta.Labels == nil {
		meta.Labels = map[string]string{}
	}
	meta.Labels["block.akam1o.io/namespace"] = b.Namespace
	meta.Labels["block.akam1o.io/name"] = b.Name

	bv := &v1alpha1.BlockVolume{
		ObjectMeta: meta,
		Spec: v1alpha1.BlockVolumeSpec{
			BlockName:    b.Name,
			Cluster:      b.Cluster,
			Namespace:    b.Namespace,
			Node:         b.Node,
			SizeGiB:      b.SizeGiB,
			UsedGiB:      b.UsedGiB,
			ReplicaCount: b.ReplicaCount,
			Controller:   b.Controller,
			Device:       b.Device,
			MountPoint:    b.MountPoint,
			MountFolderID: b.MountFolderID,
			Formatted:     b.Formatted,
			Mounted:       b.Mounted,
			Replicas:     replicasToCRD(b.Replicas),
		},
		Status: v1alpha1.BlockVolumeStatus{
			Online:        b.Online,
			FrontendState: b.FrontendState,
			Locality:      string(b.Locality),
			Healthy:       b.Healthy,
			Phase:         string(b.Status),
		},
	}
	if b.DeletedAt != nil {
		now := metav1.NewTime(*b.DeletedAt)
		bv.ObjectMeta.DeletionTimestamp = &now
	}
	return bv
}

// crdToBlock converts a BlockVolume CRD to the domain Block.
func crdToBlock(bv *v1alpha1.BlockVolume) *block.Block {
	b := &block.Block{
		ID:            bv.Name,
		Name:          bv.Spec.BlockName,
		Cluster:       bv.Spec.Cluster,
		Namespace:     bv.Spec.Namespace,
		Node:          bv.Spec.Node,
		SizeGiB:       bv.Spec.SizeGiB,
		UsedGiB:       bv.Spec.UsedGiB,
		ReplicaCount:  bv.Spec.ReplicaCount,
		Controller:    bv.Spec.Controller,
		Device:        bv.Spec.Device,
		MountPoint:    bv.Spec.MountPoint,
		MountFolderID: bv.Spec.MountFolderID,
		Formatted:     bv.Spec.Formatted,
		Mounted:       bv.Spec.Mounted,
		Online:        bv.Status.Online,
		FrontendState: bv.Status.FrontendState,
		Locality:      block.Locality(bv.Status.Locality),
		Healthy:       bv.Status.Healthy,
		Status:        block.Status(bv.Status.Phase),
		Replicas:      replicasFromCRD(bv.Spec.Replicas),
		CreatedAt:     bv.CreationTimestamp.Time,
	}
	if bv.DeletionTimestamp != nil {
		t := bv.DeletionTimestamp.Time
		b.DeletedAt = &t
	}
	return b
}
