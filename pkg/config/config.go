package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration for a warden node. One file carries
// every role's section; each subcommand reads its own.
type Config struct {
	Log         LogConfig         `yaml:"log"`
	Writer      WriterConfig      `yaml:"writer"`
	Reader      ReaderConfig      `yaml:"reader"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Router      RouterConfig      `yaml:"router"`
}

// LogConfig selects the log level and output format
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// WriterConfig configures the authoritative writer node of one shard
type WriterConfig struct {
	NodeID        string        `yaml:"node_id"`
	ListenAddr    string        `yaml:"listen_addr"`
	DataPath      string        `yaml:"data_path"`
	CacheCapacity int           `yaml:"cache_capacity"`
	SizeThreshold int           `yaml:"size_threshold"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	TripMode      string        `yaml:"trip_mode"` // "reject" or "shutdown"
	Strict        bool          `yaml:"strict"`
}

// ReaderConfig configures a read replica. The fast path tails the writer's
// event cache over HTTP; the cold path opens the writer's event store
// read-only.
type ReaderConfig struct {
	NodeID           string        `yaml:"node_id"`
	ListenAddr       string        `yaml:"listen_addr"`
	WriterEndpoint   string        `yaml:"writer_endpoint"`
	WriterCredential string        `yaml:"writer_credential"`
	DataPath         string        `yaml:"data_path"`
	RefreshInterval  time.Duration `yaml:"refresh_interval"`
	BatchLimit       int           `yaml:"batch_limit"`
}

// CoordinatorConfig configures the client-facing coordinator node
type CoordinatorConfig struct {
	ListenAddr        string        `yaml:"listen_addr"`
	ConfigPath        string        `yaml:"config_path"`
	RefreshInterval   time.Duration `yaml:"refresh_interval"`
	FanoutParallelism int           `yaml:"fanout_parallelism"`
}

// RouterConfig configures the split-time router in front of a source shard
type RouterConfig struct {
	ListenAddr       string `yaml:"listen_addr"`
	SourceEndpoint   string `yaml:"source_endpoint"`
	SourceCredential string `yaml:"source_credential"`
}

// Default returns a configuration suitable for a single-node development
// setup
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Writer: WriterConfig{
			NodeID:        "writer-1",
			ListenAddr:    ":7601",
			DataPath:      "warden-data",
			CacheCapacity: 8192,
			SizeThreshold: 64,
			FlushInterval: time.Second,
			TripMode:      "reject",
		},
		Reader: ReaderConfig{
			NodeID:          "reader-1",
			ListenAddr:      ":7602",
			WriterEndpoint:  "http://localhost:7601",
			DataPath:        "warden-data",
			RefreshInterval: time.Second,
			BatchLimit:      1000,
		},
		Coordinator: CoordinatorConfig{
			ListenAddr:        ":7600",
			ConfigPath:        "warden-coordinator",
			RefreshInterval:   30 * time.Second,
			FanoutParallelism: 8,
		},
		Router: RouterConfig{
			ListenAddr:     ":7603",
			SourceEndpoint: "http://localhost:7601",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	switch c.Writer.TripMode {
	case "", "reject", "shutdown":
	default:
		return fmt.Errorf("invalid trip_mode %q", c.Writer.TripMode)
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}
	if c.Writer.CacheCapacity < 0 || c.Writer.SizeThreshold < 0 {
		return fmt.Errorf("writer capacities must be non-negative")
	}
	if c.Reader.BatchLimit < 0 {
		return fmt.Errorf("reader batch_limit must be non-negative")
	}
	if c.Coordinator.FanoutParallelism < 0 {
		return fmt.Errorf("coordinator fanout_parallelism must be non-negative")
	}
	return nil
}
