// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akam1o/block-orchestrator/pkg/blockerr"
	"github.com/akam1o/block-orchestrator/pkg/store"
)

// errorResponse is the JSON body returned for any failed request.
type errorResponse struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// respondError maps a core error to its spec.md §7 HTTP status and writes
// the JSON error envelope. Store lookup misses (plain ErrNotFound, not yet
// wrapped as a blockerr.Error) map to 404 BlockNotFound since every lookup
// in this facade is by block id.
func respondError(c *gin.Context, err error) {
	if be, ok := blockerr.AsError(err); ok {
		c.JSON(be.HTTPStatus, errorResponse{Code: be.Code, Detail: be.Detail})
		return
	}
	if store.IsNotFound(err) {
		c.JSON(http.StatusNotFound, errorResponse{Code: blockerr.CodeBlockNotFound, Detail: err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, errorResponse{Code: blockerr.CodeEngineCommandFailed, Detail: err.Error()})
}
