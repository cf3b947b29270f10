// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/akam1o/block-orchestrator/pkg/apis/block/v1alpha1"
	"github.com/akam1o/block-orchestrator/pkg/block"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	apiextensionsclientset "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const (
	FinalizerBlockOrchestrator = "block.akam1o.io/orchestrator"

	crudTimeout = 10 * time.Second
	listTimeout = 30 * time.Second
)

func removeFinalizer(finalizers []string, finalizerToRemove string) []string {
	result := make([]string, 0, len(finalizers))
	for _, f := range finalizers {
		if f != finalizerToRemove {
			result = append(result, f)
		}
	}
	return result
}

func hasFinalizer(finalizers []string, finalizer string) bool {
	for _, f := range finalizers {
		if f == finalizer {
			return true
		}
	}
	return false
}

// CRDStore implements Store using Kubernetes Custom Resource Definitions.
type CRDStore struct {
	client client.Client
}

// NewCRDStore creates a new CRD-based store using a controller-runtime client.
func NewCRDStore(config *rest.Config, k8sClient kubernetes.Interface) (*CRDStore, error) {
	scheme := runtime.NewScheme()
	if err := v1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("failed to add v1alpha1 to scheme: %w", err)
	}
	if err := apiextensionsv1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("failed to add apiextensions to scheme: %w", err)
	}

	c, err := client.New(config, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("failed to create controller-runtime client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), crudTimeout)
	defer cancel()

	apiextClient, err := apiextensionsclientset.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create apiextensions client: %w", err)
	}

	const requiredCRD = "blockvolumes.block.akam1o.io"
	if _, err := apiextClient.ApiextensionsV1().CustomResourceDefinitions().Get(ctx, requiredCRD, metav1.GetOptions{}); err != nil {
		return nil, fmt.Errorf("CRD %s not found: %w - install it first: kubectl apply -f deploy/crds/", requiredCRD, err)
	}

	klog.Info("required CRDs are installed")

	return &CRDStore{client: c}, nil
}

// CreateBlock stores a Block as a BlockVolume CRD (idempotent).
func (s *CRDStore) CreateBlock(b *block.Block) error {
	ctx, cancel := context.WithTimeout(context.Background(), crudTimeout)
	defer cancel()

	bv := blockToCRD(b, metav1.ObjectMeta{Finalizers: []string{FinalizerBlockOrchestrator}})

	if err := s.client.Create(ctx, bv); err != nil {
		mapped := MapKubernetesError(err, "BlockVolume", b.ID)
		if IsAlreadyExists(mapped) {
			return mapped
		}
		return fmt.Errorf("failed to create BlockVolume: %w", mapped)
	}

	klog.Infof("created BlockVolume %s", b.ID)
	return nil
}

// UpdateBlock updates the spec and status of an existing BlockVolume.
func (s *CRDStore) UpdateBlock(b *block.Block) error {
	ctx, cancel := context.WithTimeout(context.Background(), crudTimeout)
	defer cancel()

	existing := &v1alpha1.BlockVolume{}
	if err := s.client.Get(ctx, client.ObjectKey{Name: b.ID}, existing); err != nil {
		return fmt.Errorf("failed to get existing BlockVolume: %w", MapKubernetesError(err, "BlockVolume", b.ID))
	}

	updated := blockToCRD(b, existing.ObjectMeta)
	existing.Spec = updated.Spec
	existing.Labels = updated.Labels

	if err := s.client.Update(ctx, existing); err != nil {
		return fmt.Errorf("failed to update BlockVolume: %w", MapKubernetesError(err, "BlockVolume", b.ID))
	}

	existing.Status = updated.Status
	if err := s.client.Status().Update(ctx, existing); err != nil {
		return fmt.Errorf("failed to update BlockVolume status: %w", MapKubernetesError(err, "BlockVolume", b.ID))
	}

	klog.Infof("updated BlockVolume %s", b.ID)
	return nil
}

// GetBlock retrieves a Block by id.
func (s *CRDStore) GetBlock(blockID string) (*block.Block, error) {
	ctx, cancel := context.WithTimeout(context.Background(), crudTimeout)
	defer cancel()

	bv := &v1alpha1.BlockVolume{}
	if err := s.client.Get(ctx, client.ObjectKey{Name: blockID}, bv); err != nil {
		return nil, MapKubernetesError(err, "BlockVolume", blockID)
	}

	return crdToBlock(bv), nil
}

// GetBlockByName retrieves a Block by namespace/name via label selector.
func (s *CRDStore) GetBlockByName(namespace, name string) (*block.Block, error) {
	ctx, cancel := context.WithTimeout(context.Background(), listTimeout)
	defer cancel()

	bvList := &v1alpha1.BlockVolumeList{}
	selector, _ := metav1.LabelSelectorAsSelector(&metav1.LabelSelector{
		MatchLabels: map[string]string{
			"block.akam1o.io/namespace": namespace,
			"block.akam1o.io/name":      name,
		},
	})
	if err := s.client.List(ctx, bvList, &client.ListOptions{LabelSelector: selector}); err != nil {
		return nil, fmt.Errorf("failed to list BlockVolumes: %w", err)
	}

	for i := range bvList.Items {
		if bvList.Items[i].DeletionTimestamp == nil {
			return crdToBlock(&bvList.Items[i]), nil
		}
	}
	return nil, fmt.Errorf("%w: block %s/%s", ErrNotFound, namespace, name)
}

// FindBlockByPod resolves the Block owning podUID by listing all
// BlockVolumes and matching controller/replica pod handles in-process; the
// CRD schema has no index on either field.
func (s *CRDStore) FindBlockByPod(podUID string) (*block.Block, error) {
	ctx, cancel := context.WithTimeout(context.Background(), listTimeout)
	defer cancel()

	bvList := &v1alpha1.BlockVolumeList{}
	if err := s.client.List(ctx, bvList); err != nil {
		return nil, fmt.Errorf("failed to list BlockVolumes: %w", err)
	}

	for i := range bvList.Items {
		if bvList.Items[i].DeletionTimestamp != nil {
			continue
		}
		b := crdToBlock(&bvList.Items[i])
		if b.Controller != nil && *b.Controller == podUID {
			return b, nil
		}
		if _, ok := b.ReplicaByPod(podUID); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: pod %s", ErrNotFound, podUID)
}

// DeleteBlock removes the finalizer and deletes the BlockVolume (idempotent).
func (s *CRDStore) DeleteBlock(blockID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), crudTimeout)
	defer cancel()

	bv := &v1alpha1.BlockVolume{}
	if err := s.client.Get(ctx, client.ObjectKey{Name: blockID}, bv); err != nil {
		mapped := MapKubernetesError(err, "BlockVolume", blockID)
		if IsNotFound(mapped) {
			klog.V(4).Infof("BlockVolume %s already deleted", blockID)
			return nil
		}
		return fmt.Errorf("failed to get BlockVolume for deletion: %w", mapped)
	}

	if hasFinalizer(bv.Finalizers, FinalizerBlockOrchestrator) {
		bv.Finalizers = removeFinalizer(bv.Finalizers, FinalizerBlockOrchestrator)
		if err := s.client.Update(ctx, bv); err != nil {
			mapped := MapKubernetesError(err, "BlockVolume", blockID)
			if !IsNotFound(mapped) {
				klog.Warningf("failed to remove finalizer from BlockVolume %s: %v", blockID, mapped)
			}
		}
	}

	if err := s.client.Delete(ctx, bv); err != nil {
		mapped := MapKubernetesError(err, "BlockVolume", blockID)
		if IsNotFound(mapped) {
			return nil
		}
		return fmt.Errorf("failed to delete BlockVolume: %w", mapped)
	}

	klog.Infof("deleted BlockVolume %s", blockID)
	return nil
}

// ListBlocks returns Blocks in a namespace.
func (s *CRDStore) ListBlocks(namespace string, includeDeleted bool) ([]*block.Block, error) {
	ctx, cancel := context.WithTimeout(context.Background(), listTimeout)
	defer cancel()

	bvList := &v1alpha1.BlockVolumeList{}
	listOpts := &client.ListOptions{}
	if namespace != "" {
		selector, _ := metav1.LabelSelectorAsSelector(&metav1.LabelSelector{
			MatchLabels: map[string]string{"block.akam1o.io/namespace": namespace},
		})
		listOpts.LabelSelector = selector
	}

	if err := s.client.List(ctx, bvList, listOpts); err != nil {
		return nil, fmt.Errorf("failed to list BlockVolumes: %w", err)
	}

	result := make([]*block.Block, 0, len(bvList.Items))
	for i := range bvList.Items {
		if bvList.Items[i].DeletionTimestamp != nil && !includeDeleted {
			continue
		}
		result = append(result, crdToBlock(&bvList.Items[i]))
	}

	return result, nil
}
