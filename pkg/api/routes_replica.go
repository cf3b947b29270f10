// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akam1o/block-orchestrator/pkg/block"
	"github.com/akam1o/block-orchestrator/pkg/engine"
)

func (a *API) registerReplicaRoutes(g *gin.RouterGroup) {
	g.GET("/:id/replicas", a.listReplicas)
	g.POST("/:id/replicas", a.createReplica)
	g.DELETE("/:id/replicas/:replicaId", a.removeReplica)
	g.POST("/:id/replicas/:replicaId/attach", a.attachReplica)
	g.POST("/:id/replicas/:replicaId/detach", a.detachReplica)
	g.POST("/:id/replicas/:replicaId/mode", a.updateReplicaMode)
	g.GET("/:id/replicas/:replicaId/rebuild-status", a.replicaRebuildStatus)
	g.POST("/:id/replicas/:replicaId/verify-rebuild", a.verifyRebuildReplica)
}

func (a *API) listReplicas(c *gin.Context) {
	rows, err := a.reconciler.ListReplicas(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

type createReplicaRequest struct {
	DiskID string `json:"diskId" binding:"required"`
}

func (a *API) createReplica(c *gin.Context) {
	var req createReplicaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: err.Error()})
		return
	}

	rc, err := a.reconciler.CreateReplica(c.Request.Context(), c.Param("id"), req.DiskID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rc)
}

func (a *API) removeReplica(c *gin.Context) {
	var req forceRequest
	_ = c.ShouldBindJSON(&req)

	if err := a.reconciler.RemoveReplica(c.Request.Context(), c.Param("id"), c.Param("replicaId"), req.Force); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

type attachReplicaRequest struct {
	Restore                   bool   `json:"restore"`
	FastSync                  bool   `json:"fastSync"`
	FileSyncHTTPClientTimeout string `json:"fileSyncHttpClientTimeout"`
}

func (a *API) attachReplica(c *gin.Context) {
	var req attachReplicaRequest
	_ = c.ShouldBindJSON(&req)

	opts := &engine.AddReplicaOptions{
		Restore:                   req.Restore,
		FastSync:                  req.FastSync,
		FileSyncHTTPClientTimeout: req.FileSyncHTTPClientTimeout,
	}
	if err := a.reconciler.AttachReplica(c.Request.Context(), c.Param("id"), c.Param("replicaId"), opts); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (a *API) detachReplica(c *gin.Context) {
	if err := a.reconciler.DetachReplica(c.Request.Context(), c.Param("id"), c.Param("replicaId")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

type updateModeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

func (a *API) updateReplicaMode(c *gin.Context) {
	var req updateModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: err.Error()})
		return
	}

	if err := a.reconciler.UpdateReplicaMode(c.Request.Context(), c.Param("id"), c.Param("replicaId"), block.Mode(req.Mode)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (a *API) replicaRebuildStatus(c *gin.Context) {
	status, err := a.reconciler.RebuildStatus(c.Request.Context(), c.Param("id"), c.Param("replicaId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(status))
}

func (a *API) verifyRebuildReplica(c *gin.Context) {
	if err := a.reconciler.VerifyRebuild(c.Request.Context(), c.Param("id"), c.Param("replicaId")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}
