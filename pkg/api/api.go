// SPDX-License-Identifier: Apache-2.0

// Package api translates the HTTP/REST surface of spec.md §6 into calls on
// the Volume Reconciler and engine drivers, validating request parameters
// before they enter the core (the External API Facade, C8).
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/akam1o/block-orchestrator/pkg/engine"
	"github.com/akam1o/block-orchestrator/pkg/reconciler"
	"github.com/akam1o/block-orchestrator/pkg/store"
)

// API is the HTTP facade over the Volume Reconciler.
type API struct {
	router *gin.Engine
	server *http.Server

	reconciler *reconciler.Reconciler
	controller *engine.ControllerDriver
	store      store.Store
}

// New creates a new External API Facade bound to addr.
func New(addr string, r *reconciler.Reconciler, controller *engine.ControllerDriver, st store.Store) *API {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery(), requestLogger())

	a := &API{
		router:     e,
		reconciler: r,
		controller: controller,
		store:      st,
	}
	a.registerRoutes()

	a.server = &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return a
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		klog.V(4).Infof("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func (a *API) registerRoutes() {
	blocks := a.router.Group("/v1/storage/blocks")
	a.registerBlockRoutes(blocks)
	a.registerReplicaRoutes(blocks)
	a.registerSnapshotRoutes(blocks)
	a.registerControllerRoutes(blocks)
}

// Run starts the HTTP server and blocks until it exits.
func (a *API) Run() error {
	klog.Infof("API facade listening on %s", a.server.Addr)
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (a *API) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}
