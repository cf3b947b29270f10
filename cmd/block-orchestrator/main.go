// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"

	"github.com/akam1o/block-orchestrator/pkg/api"
	"github.com/akam1o/block-orchestrator/pkg/config"
	"github.com/akam1o/block-orchestrator/pkg/engine"
	"github.com/akam1o/block-orchestrator/pkg/events"
	"github.com/akam1o/block-orchestrator/pkg/lock"
	"github.com/akam1o/block-orchestrator/pkg/nodeterm"
	"github.com/akam1o/block-orchestrator/pkg/orchestrator"
	"github.com/akam1o/block-orchestrator/pkg/reconciler"
	"github.com/akam1o/block-orchestrator/pkg/store"
	"github.com/akam1o/block-orchestrator/pkg/substrate"
)

var (
	configPath  = flag.String("config", "/etc/block-orchestrator/config.yaml", "Path to configuration file")
	kubeconfig  = flag.String("kubeconfig", "", "Path to kubeconfig file (optional, uses in-cluster config if not specified)")
	substrateDB = flag.String("substrate-db", "", "DSN for the local SQLite substrate fake (dev/test only; empty disables it)")
	cluster     = flag.String("cluster", "default", "Cluster identifier passed to the orchestrator client")
	version     = flag.Bool("version", false, "Print version information and exit")
)

const driverVersion = "0.1.0"

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if *version {
		fmt.Printf("Block Orchestrator\nVersion: %s\n", driverVersion)
		os.Exit(0)
	}

	klog.Infof("starting block orchestrator version %s", driverVersion)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		klog.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		klog.Fatalf("invalid configuration: %v", err)
	}

	k8sConfig, k8sClient, err := createKubernetesClient(*kubeconfig)
	if err != nil {
		klog.Fatalf("failed to create kubernetes client: %v", err)
	}

	orch := orchestrator.NewKubeClient(k8sClient, k8sConfig)
	nt := nodeterm.NewPodClient(orch, cfg.Storage.Namespace)

	sub, err := createSubstrateClient(k8sConfig)
	if err != nil {
		klog.Fatalf("failed to create substrate client: %v", err)
	}

	metadataStore, err := createStore(k8sConfig, k8sClient)
	if err != nil {
		klog.Fatalf("failed to create entity store: %v", err)
	}

	locks := lock.NewManager()

	gateway := engine.NewGateway(orch)
	controllerDriver := engine.NewControllerDriver(gateway, orch, metadataStore, cfg.Engine.Image, cfg.Engine.Frontend, cfg.Storage.Namespace)
	replicaDriver := engine.NewReplicaDriver(gateway, orch, metadataStore, sub, controllerDriver, cfg.Engine.Image, cfg.Storage.Namespace)
	snapshotOperator := engine.NewSnapshotOperator(gateway)

	rc := reconciler.New(metadataStore, locks, orch, sub, nt, controllerDriver, replicaDriver, snapshotOperator, reconciler.Config{
		Cluster:        *cluster,
		Namespace:      cfg.Storage.Namespace,
		DefaultSizeGiB: cfg.Storage.DefaultSizeGiB,
		ReplicaCount:   cfg.Storage.ReplicaCount,
	})

	mux := events.New(orch, metadataStore, locks, controllerDriver, replicaDriver, cfg.Storage.Namespace)

	httpAPI := api.New(cfg.Server.ListenAddr, rc, controllerDriver, metadataStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		klog.Infof("received signal %v, initiating shutdown", sig)
		cancel()
	}()

	errCh := make(chan error, 2)
	go func() {
		if err := mux.Run(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("event multiplexer stopped: %w", err)
		}
	}()
	go func() {
		if err := httpAPI.Run(); err != nil {
			errCh <- fmt.Errorf("API server stopped: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		klog.Errorf("%v", err)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace.Duration)
	defer shutdownCancel()
	if err := httpAPI.Shutdown(shutdownCtx); err != nil {
		klog.Warningf("API server shutdown error: %v", err)
	}

	klog.Info("block orchestrator stopped")
}

func createKubernetesClient(kubeconfigPath string) (*rest.Config, *kubernetes.Clientset, error) {
	var cfg *rest.Config
	var err error

	if kubeconfigPath != "" {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build config from kubeconfig: %w", err)
		}
		klog.V(2).Infof("using kubeconfig: %s", kubeconfigPath)
	} else {
		cfg, err = rest.InClusterConfig()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get in-cluster config: %w", err)
		}
		klog.V(2).Info("using in-cluster kubernetes configuration")
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	return cfg, clientset, nil
}

func createSubstrateClient(k8sConfig *rest.Config) (substrate.Client, error) {
	if *substrateDB != "" {
		fake, err := substrate.NewSQLiteFake(*substrateDB)
		if err != nil {
			return nil, err
		}
		klog.Infof("using local sqlite substrate fake: %s", *substrateDB)
		return fake, nil
	}
	if baseURL := os.Getenv("BLOCK_ORCHESTRATOR_SUBSTRATE_URL"); baseURL != "" {
		klog.Infof("using substrate service at %s", baseURL)
		return substrate.NewHTTPClient(&substrate.HTTPClientConfig{
			BaseURL:   baseURL,
			AuthToken: os.Getenv("BLOCK_ORCHESTRATOR_SUBSTRATE_TOKEN"),
		}), nil
	}
	return nil, fmt.Errorf("no substrate backend configured: set --substrate-db or BLOCK_ORCHESTRATOR_SUBSTRATE_URL")
}

func createStore(k8sConfig *rest.Config, k8sClient *kubernetes.Clientset) (store.Store, error) {
	crdStore, err := store.NewCRDStore(k8sConfig, k8sClient)
	if err != nil {
		return nil, err
	}
	cachedStore, err := store.NewCachedStore(crdStore, 60*time.Second, 1000)
	if err != nil {
		return nil, err
	}
	klog.Info("using CRD-based persistent store with caching")
	return cachedStore, nil
}
