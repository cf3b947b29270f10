// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akam1o/block-orchestrator/pkg/engine"
)

func (a *API) registerControllerRoutes(g *gin.RouterGroup) {
	g.POST("/:id/controller", a.createController)
	g.DELETE("/:id/controller", a.deleteController)
	g.GET("/:id/controller/info", a.controllerInfo)
	g.POST("/:id/controller/frontend/start", a.startFrontend)
	g.POST("/:id/controller/frontend/shutdown", a.shutdownFrontend)
	g.POST("/:id/controller/expand", a.expandController)
	g.POST("/:id/controller/resize", a.resizeBlock)
}

type createControllerRequest struct {
	Upgrade                   bool   `json:"upgrade"`
	DisableRevCounter         bool   `json:"disableRevCounter"`
	SalvageRequested          bool   `json:"salvageRequested"`
	UnmapMarkSnapChainRemoved bool   `json:"unmapMarkSnapChainRemoved"`
	SnapshotMaxCount          *int   `json:"snapshotMaxCount"`
	SnapshotMaxSize           string `json:"snapshotMaxSize"`
	EngineReplicaTimeout      string `json:"engineReplicaTimeout"`
	DataServerProtocol        string `json:"dataServerProtocol"`
	FileSyncHTTPClientTimeout string `json:"fileSyncHttpClientTimeout"`
}

func (a *API) createController(c *gin.Context) {
	var req createControllerRequest
	_ = c.ShouldBindJSON(&req)

	opts := &engine.ControllerOptions{
		Upgrade:                   req.Upgrade,
		DisableRevCounter:         req.DisableRevCounter,
		SalvageRequested:          req.SalvageRequested,
		UnmapMarkSnapChainRemoved: req.UnmapMarkSnapChainRemoved,
		SnapshotMaxCount:          req.SnapshotMaxCount,
		SnapshotMaxSize:           req.SnapshotMaxSize,
		EngineReplicaTimeout:      req.EngineReplicaTimeout,
		DataServerProtocol:        req.DataServerProtocol,
		FileSyncHTTPClientTimeout: req.FileSyncHTTPClientTimeout,
	}
	if err := a.reconciler.CreateController(c.Request.Context(), c.Param("id"), opts); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (a *API) deleteController(c *gin.Context) {
	if err := a.reconciler.DeleteController(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// controllerInfo reads live controller state directly through the Engine
// Controller Driver, bypassing the reconciler's block lock: it is a
// read-only exec call, not a state mutation (spec.md §4.2 UpdateFrontendState
// is the path that actually persists what this reads).
func (a *API) controllerInfo(c *gin.Context) {
	b, err := a.store.GetBlock(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	info, err := a.controller.GetControllerInfo(c.Request.Context(), b)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (a *API) startFrontend(c *gin.Context) {
	if err := a.reconciler.StartFrontend(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (a *API) shutdownFrontend(c *gin.Context) {
	if err := a.reconciler.ShutdownFrontend(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (a *API) expandController(c *gin.Context) {
	if err := a.reconciler.Expand(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

type resizeRequest struct {
	Size int `json:"size" binding:"required"`
}

func (a *API) resizeBlock(c *gin.Context) {
	var req resizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: err.Error()})
		return
	}
	if req.Size < minSizeGiB || req.Size > maxSizeGiB {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: "size must be between 1 and 1024 GiB"})
		return
	}

	if err := a.reconciler.Resize(c.Request.Context(), c.Param("id"), req.Size); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}
