// SPDX-License-Identifier: Apache-2.0

// +kubebuilder:object:generate=true
// +groupName=block.akam1o.io
// +k8s:deepcopy-gen=package
// +k8s:openapi-gen=true

// Package v1alpha1 contains API Schema definitions for the block.akam1o.io v1alpha1 API group.
package v1alpha1
