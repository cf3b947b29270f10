// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the orchestrator's configuration.
type Config struct {
	// Storage configuration
	Storage StorageConfig `yaml:"storage"`

	// Engine configuration
	Engine EngineConfig `yaml:"engine"`

	// Server configuration
	Server ServerConfig `yaml:"server"`
}

// StorageConfig holds Block-provisioning defaults.
type StorageConfig struct {
	Namespace               string   `yaml:"namespace"`
	DefaultSizeGiB          int      `yaml:"default_size_gib"`
	ReplicaCount            int      `yaml:"replica_count"`
	StaleReplicaTimeout     Duration `yaml:"stale_replica_timeout"`
	ReplicaSoftAntiAffinity bool     `yaml:"replica_soft_anti_affinity"`
}

// EngineConfig holds the engine-controller/replica image and frontend defaults.
type EngineConfig struct {
	Image    string `yaml:"image"`
	Frontend string `yaml:"frontend"`
}

// ServerConfig holds the HTTP API server configuration.
type ServerConfig struct {
	ListenAddr     string   `yaml:"listen_addr"`
	ShutdownGrace  Duration `yaml:"shutdown_grace"`
	KubeconfigPath string   `yaml:"kubeconfig_path"`
}

// Duration is a wrapper for time.Duration to support YAML unmarshaling.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	duration, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = duration
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// LoadConfig loads configuration from a file, applying defaults and
// environment overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&config)

	if envNS := os.Getenv("BLOCK_ORCHESTRATOR_NAMESPACE"); envNS != "" {
		config.Storage.Namespace = envNS
	}
	if envImg := os.Getenv("BLOCK_ORCHESTRATOR_ENGINE_IMAGE"); envImg != "" {
		config.Engine.Image = envImg
	}
	if envAddr := os.Getenv("BLOCK_ORCHESTRATOR_LISTEN_ADDR"); envAddr != "" {
		config.Server.ListenAddr = envAddr
	}

	return &config, nil
}

func applyDefaults(c *Config) {
	if c.Storage.Namespace == "" {
		c.Storage.Namespace = "storage"
	}
	if c.Storage.DefaultSizeGiB == 0 {
		c.Storage.DefaultSizeGiB = 10
	}
	if c.Storage.ReplicaCount == 0 {
		c.Storage.ReplicaCount = 3
	}
	if c.Storage.StaleReplicaTimeout.Duration == 0 {
		c.Storage.StaleReplicaTimeout.Duration = 8 * time.Hour
	}
	if c.Engine.Frontend == "" {
		c.Engine.Frontend = "tgt-blockdev"
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.ShutdownGrace.Duration == 0 {
		c.Server.ShutdownGrace.Duration = 15 * time.Second
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Storage.Namespace == "" {
		return fmt.Errorf("storage.namespace is required")
	}
	if c.Storage.ReplicaCount <= 0 || c.Storage.ReplicaCount > 7 {
		return fmt.Errorf("storage.replica_count must be between 1 and 7")
	}
	if d := c.Storage.StaleReplicaTimeout.Duration; d != 0 && (d < 60*time.Second || d > 86400*time.Second) {
		return fmt.Errorf("storage.stale_replica_timeout must be between 60s and 86400s")
	}
	if c.Engine.Image == "" {
		return fmt.Errorf("engine.image is required")
	}
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	return nil
}
