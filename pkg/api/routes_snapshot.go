// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akam1o/block-orchestrator/pkg/engine"
)

func (a *API) registerSnapshotRoutes(g *gin.RouterGroup) {
	g.POST("/:id/snapshots/create", a.createSnapshot)
	g.POST("/:id/snapshots/revert/:name", a.revertSnapshot)
	g.GET("/:id/snapshots/list", a.listSnapshots)
	g.DELETE("/:id/snapshots/:name", a.removeSnapshot)
	g.POST("/:id/snapshots/purge", a.purgeSnapshots)
	g.GET("/:id/snapshots/purge-status", a.snapshotPurgeStatus)
	g.GET("/:id/snapshots/info", a.snapshotInfo)
	g.POST("/:id/snapshots/clone", a.cloneSnapshot)
	g.GET("/:id/snapshots/clone-status/:name", a.snapshotCloneStatus)
	g.POST("/:id/snapshots/:name/hash", a.hashSnapshot)
	g.POST("/:id/snapshots/:name/hash-cancel", a.hashSnapshotCancel)
	g.GET("/:id/snapshots/:name/hash-status", a.hashSnapshotStatus)
}

type snapshotCreateResponse struct {
	Name string `json:"name"`
}

func (a *API) createSnapshot(c *gin.Context) {
	name, err := a.reconciler.CreateSnapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshotCreateResponse{Name: name})
}

func (a *API) revertSnapshot(c *gin.Context) {
	if err := a.reconciler.RevertSnapshot(c.Request.Context(), c.Param("id"), c.Param("name")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (a *API) listSnapshots(c *gin.Context) {
	names, err := a.reconciler.ListSnapshots(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, names)
}

func (a *API) removeSnapshot(c *gin.Context) {
	if err := a.reconciler.RemoveSnapshot(c.Request.Context(), c.Param("id"), c.Param("name")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

type purgeRequest struct {
	SkipIfInProgress bool `json:"skipIfInProgress"`
}

func (a *API) purgeSnapshots(c *gin.Context) {
	var req purgeRequest
	_ = c.ShouldBindJSON(&req)

	if err := a.reconciler.PurgeSnapshots(c.Request.Context(), c.Param("id"), req.SkipIfInProgress); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (a *API) snapshotPurgeStatus(c *gin.Context) {
	status, err := a.reconciler.SnapshotPurgeStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(status))
}

func (a *API) snapshotInfo(c *gin.Context) {
	info, err := a.reconciler.SnapshotInfo(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(info))
}

type cloneRequest struct {
	SnapshotName               string `json:"snapshotName" binding:"required"`
	FromControllerAddress      string `json:"fromControllerAddress" binding:"required"`
	FromVolumeName             string `json:"fromVolumeName" binding:"required"`
	FromControllerInstanceName string `json:"fromControllerInstanceName" binding:"required"`
}

func (a *API) cloneSnapshot(c *gin.Context) {
	var req cloneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: err.Error()})
		return
	}

	opts := engine.CloneOptions{
		SnapshotName:               req.SnapshotName,
		FromControllerAddress:      req.FromControllerAddress,
		FromVolumeName:             req.FromVolumeName,
		FromControllerInstanceName: req.FromControllerInstanceName,
	}
	if err := a.reconciler.CloneSnapshot(c.Request.Context(), c.Param("id"), opts); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (a *API) snapshotCloneStatus(c *gin.Context) {
	status, err := a.reconciler.SnapshotCloneStatus(c.Request.Context(), c.Param("id"), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(status))
}

func (a *API) hashSnapshot(c *gin.Context) {
	status, err := a.reconciler.HashSnapshot(c.Request.Context(), c.Param("id"), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(status))
}

func (a *API) hashSnapshotCancel(c *gin.Context) {
	status, err := a.reconciler.HashSnapshotCancel(c.Request.Context(), c.Param("id"), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(status))
}

func (a *API) hashSnapshotStatus(c *gin.Context) {
	status, err := a.reconciler.HashSnapshotStatus(c.Request.Context(), c.Param("id"), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(status))
}
