// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"testing"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKubeClientFixture() (*KubeClient, *fake.Clientset) {
	cs := fake.NewSimpleClientset()
	return NewKubeClient(cs, nil), cs
}

func TestKubeClientCreatePodReturnsCreatedObject(t *testing.T) {
	c, _ := newKubeClientFixture()
	created, err := c.CreatePod(context.Background(), newFakePod("storage", "v1"))
	require.NoError(t, err)
	assert.Equal(t, "v1", created.Name)
}

func TestKubeClientCreatePodAlreadyExistsFetchesExisting(t *testing.T) {
	c, cs := newKubeClientFixture()
	_, err := cs.CoreV1().Pods("storage").Create(context.Background(), newFakePod("storage", "v1"), metav1.CreateOptions{})
	require.NoError(t, err)

	got, err := c.CreatePod(context.Background(), newFakePod("storage", "v1"))
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Name)
}

func TestKubeClientGetPodMissingReturnsError(t *testing.T) {
	c, _ := newKubeClientFixture()
	_, err := c.GetPod(context.Background(), "storage", "missing")
	assert.Error(t, err)
}

func TestKubeClientDeletePodTreatsNotFoundAsSuccess(t *testing.T) {
	c, _ := newKubeClientFixture()
	err := c.DeletePod(context.Background(), "storage", "missing")
	assert.NoError(t, err)
}

func TestKubeClientDeletePodDeletesExisting(t *testing.T) {
	c, cs := newKubeClientFixture()
	_, err := cs.CoreV1().Pods("storage").Create(context.Background(), newFakePod("storage", "v1"), metav1.CreateOptions{})
	require.NoError(t, err)

	require.NoError(t, c.DeletePod(context.Background(), "storage", "v1"))

	_, err = cs.CoreV1().Pods("storage").Get(context.Background(), "v1", metav1.GetOptions{})
	assert.True(t, apierrors.IsNotFound(err))
}
