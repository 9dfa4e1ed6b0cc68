// Package config loads and validates the engine configuration. Values come
// from built-in defaults, then an optional YAML file, then environment
// variables, later sources winning.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Engine-wide constants. ModuloBase partitions the user set into one shard
// per hour on the default production schedule.
const (
	ModuloBase = 24

	ProductionJobDelay = time.Hour
	DevJobDelay        = 3 * time.Second

	MaxSyncMonitoringDuration = 6 * time.Minute
	SyncMonitoringRetryDelay  = 15 * time.Second
)

// NodeEntry is one known content node: its endpoint and the service-provider
// ID the registry assigned to it.
type NodeEntry struct {
	Endpoint string `yaml:"endpoint"`
	SPID     int    `yaml:"sp_id"`
}

// Config holds every tunable of the replica-set engine.
type Config struct {
	// SelfEndpoint is this node's public base URL (creatorNodeEndpoint).
	SelfEndpoint string `yaml:"self_endpoint"`
	// SPID is this node's service-provider ID.
	SPID int `yaml:"sp_id"`
	// MetadataNode disables the engine entirely when true.
	MetadataNode bool `yaml:"metadata_node"`
	// DevMode selects the short scan interval.
	DevMode bool `yaml:"dev_mode"`

	ListenAddr        string `yaml:"listen_addr"`
	DiscoveryEndpoint string `yaml:"discovery_endpoint"`
	RegistryEndpoint  string `yaml:"registry_endpoint"`
	ClockDBPath       string `yaml:"clock_db_path"`
	Tracing           bool   `yaml:"tracing"`

	ManualConcurrency    int   `yaml:"manual_concurrency"`
	RecurringConcurrency int   `yaml:"recurring_concurrency"`
	MaxExportClockRange  int64 `yaml:"max_export_clock_range"`

	// Nodes is the registry's service list, used to build the endpoint-to-ID
	// map and as the candidate pool for replica selection.
	Nodes []NodeEntry `yaml:"nodes"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:           ":4000",
		ClockDBPath:          "clocks.db",
		ManualConcurrency:    3,
		RecurringConcurrency: 6,
		MaxExportClockRange:  10000,
	}
}

// Load builds the configuration from defaults, the YAML file at path (if path
// is non-empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.SelfEndpoint = getenv("REPLSET_SELF_ENDPOINT", cfg.SelfEndpoint)
	cfg.ListenAddr = getenv("REPLSET_LISTEN", cfg.ListenAddr)
	cfg.DiscoveryEndpoint = getenv("REPLSET_DISCOVERY_ENDPOINT", cfg.DiscoveryEndpoint)
	cfg.RegistryEndpoint = getenv("REPLSET_REGISTRY_ENDPOINT", cfg.RegistryEndpoint)
	cfg.ClockDBPath = getenv("REPLSET_CLOCK_DB", cfg.ClockDBPath)

	var err error
	if cfg.SPID, err = getenvInt("REPLSET_SP_ID", cfg.SPID); err != nil {
		return cfg, err
	}
	if cfg.ManualConcurrency, err = getenvInt("REPLSET_MANUAL_CONCURRENCY", cfg.ManualConcurrency); err != nil {
		return cfg, err
	}
	if cfg.RecurringConcurrency, err = getenvInt("REPLSET_RECURRING_CONCURRENCY", cfg.RecurringConcurrency); err != nil {
		return cfg, err
	}
	maxRange, err := getenvInt("REPLSET_MAX_EXPORT_CLOCK_RANGE", int(cfg.MaxExportClockRange))
	if err != nil {
		return cfg, err
	}
	cfg.MaxExportClockRange = int64(maxRange)
	if cfg.DevMode, err = getenvBool("REPLSET_DEV_MODE", cfg.DevMode); err != nil {
		return cfg, err
	}
	if cfg.MetadataNode, err = getenvBool("REPLSET_METADATA_NODE", cfg.MetadataNode); err != nil {
		return cfg, err
	}
	if cfg.Tracing, err = getenvBool("REPLSET_TRACING", cfg.Tracing); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.SelfEndpoint == "" {
		return errors.New("self endpoint is required")
	}
	if c.ManualConcurrency <= 0 {
		return fmt.Errorf("manual concurrency must be positive, got %d", c.ManualConcurrency)
	}
	if c.RecurringConcurrency <= 0 {
		return fmt.Errorf("recurring concurrency must be positive, got %d", c.RecurringConcurrency)
	}
	if c.MaxExportClockRange <= 0 {
		return fmt.Errorf("max export clock range must be positive, got %d", c.MaxExportClockRange)
	}
	return nil
}

// ScanInterval returns the delay between state-machine iterations.
func (c Config) ScanInterval() time.Duration {
	if c.DevMode {
		return DevJobDelay
	}
	return ProductionJobDelay
}

// IDEntries returns the endpoint -> service-provider ID pairs from Nodes.
func (c Config) IDEntries() map[string]int {
	out := make(map[string]int, len(c.Nodes))
	for _, n := range c.Nodes {
		out[n.Endpoint] = n.SPID
	}
	return out
}

// Endpoints returns the endpoints of every configured node.
func (c Config) Endpoints() []string {
	out := make([]string, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		out = append(out, n.Endpoint)
	}
	return out
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getenvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
