// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/akam1o/block-orchestrator/pkg/reconciler"
)

// provisionRequest is the body of POST /v1/storage/blocks/provision.
type provisionRequest struct {
	Name     string `json:"name" binding:"required"`
	Node     string `json:"node" binding:"required"`
	Size     int    `json:"size"`
	Replicas int    `json:"replicas"`
}

const (
	minBlockNameLen = 3
	maxBlockNameLen = 128
	minSizeGiB      = 1
	maxSizeGiB      = 1024
	minReplicaCount = 1
	maxReplicaCount = 7
)

func (a *API) registerBlockRoutes(g *gin.RouterGroup) {
	g.GET("", a.listBlocks)
	g.GET("/:id", a.getBlock)
	g.POST("/provision", a.provision)
	g.DELETE("/:id/deprovision", a.deprovision)
	g.POST("/:id/format", a.format)
	g.POST("/:id/mount", a.mount)
	g.POST("/:id/unmount", a.unmount)
	g.GET("/:id/usage", a.usage)
	g.POST("/:id/trim", a.trim)
	g.GET("/:id/check-pods", a.checkPods)
	g.POST("/:id/balance", a.balance)
}

func (a *API) listBlocks(c *gin.Context) {
	blocks, err := a.store.ListBlocks(c.Query("namespace"), false)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, blocks)
}

func (a *API) getBlock(c *gin.Context) {
	b, err := a.store.GetBlock(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (a *API) provision(c *gin.Context) {
	var req provisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: err.Error()})
		return
	}
	if req.Size == 0 {
		req.Size = 10
	}
	if req.Replicas == 0 {
		req.Replicas = 3
	}

	name := strings.ToLower(strings.TrimSpace(req.Name))
	if len(name) < minBlockNameLen || len(name) > maxBlockNameLen {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: "name must be between 3 and 128 characters"})
		return
	}
	if req.Size < minSizeGiB || req.Size > maxSizeGiB {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: "size must be between 1 and 1024 GiB"})
		return
	}
	if req.Replicas < minReplicaCount || req.Replicas > maxReplicaCount {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: "replicas must be between 1 and 7"})
		return
	}

	b, err := a.reconciler.Provision(c.Request.Context(), name, req.Node, req.Size, req.Replicas)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (a *API) deprovision(c *gin.Context) {
	if err := a.reconciler.Deprovision(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

type forceRequest struct {
	Force   bool   `json:"force"`
	Type    string `json:"type"`
	Reserve int    `json:"reserve"`
}

func (a *API) format(c *gin.Context) {
	var req forceRequest
	_ = c.ShouldBindJSON(&req)

	opts := reconciler.FormatOptions{Force: req.Force, Type: req.Type, Reserve: req.Reserve}
	if err := a.reconciler.Format(c.Request.Context(), c.Param("id"), opts); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (a *API) mount(c *gin.Context) {
	var req forceRequest
	_ = c.ShouldBindJSON(&req)

	if err := a.reconciler.Mount(c.Request.Context(), c.Param("id"), req.Force); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (a *API) unmount(c *gin.Context) {
	var req forceRequest
	_ = c.ShouldBindJSON(&req)

	if err := a.reconciler.Unmount(c.Request.Context(), c.Param("id"), req.Force); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// usageReplica mirrors spec.md §6's usage response replica entry.
type usageReplica struct {
	ReplicaID string `json:"replicaId"`
	UsedGiB   int    `json:"usedGiB"`
}

type usageResponse struct {
	Size        int            `json:"size"`
	Used        int            `json:"used"`
	Available   int            `json:"available"`
	UsedPercent int            `json:"usedPercent"`
	Replicas    []usageReplica `json:"replicas"`
}

func (a *API) usage(c *gin.Context) {
	used, total, replicas, err := a.reconciler.Usage(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]usageReplica, len(replicas))
	for i, rc := range replicas {
		out[i] = usageReplica{ReplicaID: rc.ReplicaID, UsedGiB: rc.UsedGiB}
	}

	pct := 0
	if total > 0 {
		pct = used * 100 / total
	}

	c.JSON(http.StatusOK, usageResponse{
		Size:        total,
		Used:        used,
		Available:   total - used,
		UsedPercent: pct,
		Replicas:    out,
	})
}

func (a *API) trim(c *gin.Context) {
	if err := a.reconciler.Trim(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (a *API) checkPods(c *gin.Context) {
	if err := a.reconciler.CheckPods(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (a *API) balance(c *gin.Context) {
	if err := a.reconciler.BalanceBlock(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}
