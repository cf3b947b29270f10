// SPDX-License-Identifier: Apache-2.0

package blockerr

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructorsSetKindAndStatus(t *testing.T) {
	t.Run("block_not_found", func(t *testing.T) {
		err := BlockNotFound("b1")
		assert.Equal(t, KindNotFound, err.Kind)
		assert.Equal(t, http.StatusNotFound, err.HTTPStatus)
		assert.Equal(t, CodeBlockNotFound, err.Code)
	})

	t.Run("block_mounted_is_conflict", func(t *testing.T) {
		err := BlockMounted("b1")
		assert.Equal(t, http.StatusConflict, err.HTTPStatus)
	})

	t.Run("block_offline_is_bad_request", func(t *testing.T) {
		err := BlockOffline("b1")
		assert.Equal(t, http.StatusBadRequest, err.HTTPStatus)
	})

	t.Run("no_controller_is_precondition_500", func(t *testing.T) {
		err := NoController("b1")
		assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus)
		assert.Equal(t, KindPrecondition, err.Kind)
	})

	t.Run("add_replica_error_is_upstream", func(t *testing.T) {
		err := AddReplicaError("boom")
		assert.Equal(t, KindUpstream, err.Kind)
		assert.Equal(t, "boom", err.Detail)
	})
}

func TestIsMatchesWrappedErrors(t *testing.T) {
	base := BlockExists("v1")
	wrapped := fmt.Errorf("provision failed: %w", base)

	assert.True(t, Is(wrapped, CodeBlockExists))
	assert.False(t, Is(wrapped, CodeBlockMounted))
	assert.False(t, Is(fmt.Errorf("plain error"), CodeBlockExists))
}

func TestAsErrorUnwrapsChain(t *testing.T) {
	base := PodCreationError("failed to create pod", fmt.Errorf("etcdserver timeout"))
	wrapped := fmt.Errorf("provision: %w", base)

	got, ok := AsError(wrapped)
	assert.True(t, ok)
	assert.Equal(t, CodePodCreationError, got.Code)
	assert.ErrorContains(t, got.Unwrap(), "etcdserver timeout")
}

func TestErrorStringIncludesDetail(t *testing.T) {
	err := New(KindConflict, "SomeCode", "some detail")
	assert.Equal(t, "SomeCode: some detail", err.Error())

	bare := New(KindConflict, "SomeCode", "")
	assert.Equal(t, "SomeCode", bare.Error())
}
