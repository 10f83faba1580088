package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Clawav ClawavConfig `yaml:"clawav"`
}

// ClawavConfig is the project configuration.
type ClawavConfig struct {
	Network    NetworkConfig    `yaml:"network"`
	RedisQueue RedisQueueConfig `yaml:"redis_queue"`
	Rules      RulesConfig      `yaml:"rules"`
	Store      StoreConfig      `yaml:"store"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Firewall   FirewallConfig   `yaml:"firewall"`
	Output     OutputConfig     `yaml:"output"`
	API        APIConfig        `yaml:"api"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// NetworkConfig controls the kernel firewall log source.
type NetworkConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Source       string        `yaml:"source"` // auto|file|journald
	LogPath      string        `yaml:"log_path"`
	Prefix       string        `yaml:"prefix"`
	PollInterval time.Duration `yaml:"poll_interval"`
	ErrorBackoff time.Duration `yaml:"error_backoff"`
}

// RedisQueueConfig controls the optional Redis list event source.
type RedisQueueConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Key          string        `yaml:"key"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

// RulesConfig controls Sigma rules.
type RulesConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Path     string        `yaml:"path"`
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce"`
}

// StoreConfig controls the in-memory alert history.
type StoreConfig struct {
	Capacity int `yaml:"capacity"`
}

// PipelineConfig controls alert delivery and batching.
type PipelineConfig struct {
	ChannelSize   int           `yaml:"channel_size"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxRetries    int           `yaml:"max_retries"`
}

// FirewallConfig controls the prompt firewall.
type FirewallConfig struct {
	Enabled   bool              `yaml:"enabled"`
	Tier      int               `yaml:"tier"`
	Overrides map[string]string `yaml:"overrides"`
}

// OutputConfig controls alert fan-out.
type OutputConfig struct {
	Mode       string                 `yaml:"mode"` // none|file|http|redis|clickhouse
	File       FileOutputConfig       `yaml:"file"`
	HTTP       HTTPOutputConfig       `yaml:"http"`
	Redis      RedisOutputConfig      `yaml:"redis"`
	ClickHouse ClickHouseOutputConfig `yaml:"clickhouse"`
}

// FileOutputConfig config for local JSON output.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// HTTPOutputConfig config for remote output.
type HTTPOutputConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// RedisOutputConfig config for the bounded Redis alert list.
type RedisOutputConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
	MaxLen   int64  `yaml:"max_len"`
}

// APIConfig controls the status API.
type APIConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Listen    string  `yaml:"listen"`
	ScanRate  float64 `yaml:"scan_rate"`
	ScanBurst int     `yaml:"scan_burst"`
}

// ClickHouseOutputConfig config for ClickHouse HTTP JSONEachRow writes.
type ClickHouseOutputConfig struct {
	URL      string            `yaml:"url"`
	Database string            `yaml:"database"`
	Table    string            `yaml:"table"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	Timeout  time.Duration     `yaml:"timeout"`
	Headers  map[string]string `yaml:"headers"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// Default is the configuration used when no file is found: network monitoring with automatic
// source selection, the tier 2 firewall, the status API and console logging.
func Default() *Config {
	return &Config{Clawav: ClawavConfig{
		Network:  NetworkConfig{Enabled: true, Source: "auto"},
		Firewall: FirewallConfig{Enabled: true, Tier: 2},
		API:      APIConfig{Enabled: true},
		Logging:  LoggingConfig{Enabled: true, Level: "info", Console: true},
	}}
}

// LoadConfig reads a YAML config file on top of Default.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}

	return cfg, nil
}

// ApplyDefaults fills unset values.
func ApplyDefaults(cfg *Config) {
	c := &cfg.Clawav

	if c.Network.Source == "" {
		c.Network.Source = "auto"
	}
	if c.Network.LogPath == "" {
		c.Network.LogPath = "/var/log/syslog"
	}
	if c.Network.Prefix == "" {
		c.Network.Prefix = "CLAWAV_NET"
	}
	if c.Network.PollInterval <= 0 {
		c.Network.PollInterval = 500 * time.Millisecond
	}
	if c.Network.ErrorBackoff <= 0 {
		c.Network.ErrorBackoff = 5 * time.Second
	}

	if c.RedisQueue.Addr == "" {
		c.RedisQueue.Addr = "127.0.0.1:6379"
	}
	if c.RedisQueue.Key == "" {
		c.RedisQueue.Key = "clawav:events"
	}
	if c.RedisQueue.BlockTimeout == 0 {
		c.RedisQueue.BlockTimeout = 5 * time.Second
	}

	if c.Rules.Debounce <= 0 {
		c.Rules.Debounce = 500 * time.Millisecond
	}

	if c.Store.Capacity <= 0 {
		c.Store.Capacity = 1000
	}

	if c.Pipeline.ChannelSize <= 0 {
		c.Pipeline.ChannelSize = 1000
	}
	if c.Pipeline.BatchSize <= 0 {
		c.Pipeline.BatchSize = 100
	}
	if c.Pipeline.FlushInterval <= 0 {
		c.Pipeline.FlushInterval = 2 * time.Second
	}
	if c.Pipeline.MaxRetries <= 0 {
		c.Pipeline.MaxRetries = 3
	}

	if c.Firewall.Tier == 0 {
		c.Firewall.Tier = 2
	}

	if c.Output.Mode == "" {
		c.Output.Mode = "none"
	}
	if c.Output.File.Path == "" {
		c.Output.File.Path = "output/alerts.jsonl"
	}
	if c.Output.Redis.Addr == "" {
		c.Output.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Output.Redis.Key == "" {
		c.Output.Redis.Key = "clawav:alerts"
	}
	if c.Output.Redis.MaxLen == 0 {
		c.Output.Redis.MaxLen = 10000
	}

	if c.Output.ClickHouse.Database == "" {
		c.Output.ClickHouse.Database = "clawav"
	}
	if c.Output.ClickHouse.Table == "" {
		c.Output.ClickHouse.Table = "alerts"
	}

	if c.API.Listen == "" {
		c.API.Listen = "127.0.0.1:18790"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate rejects settings the monitor cannot run with.
func Validate(cfg *Config) error {
	c := &cfg.Clawav

	switch c.Network.Source {
	case "auto", "file", "journald":
	default:
		return errors.Newf("unknown network.source %q (want auto, file or journald)", c.Network.Source)
	}

	if c.Firewall.Tier < 1 || c.Firewall.Tier > 3 {
		return errors.Newf("firewall.tier must be 1, 2 or 3, got %d", c.Firewall.Tier)
	}

	switch c.Output.Mode {
	case "none", "file", "redis":
	case "http":
		if strings.TrimSpace(c.Output.HTTP.URL) == "" {
			return errors.New("output.http.url is required for http output")
		}
	case "clickhouse":
		if strings.TrimSpace(c.Output.ClickHouse.URL) == "" {
			return errors.New("output.clickhouse.url is required for clickhouse output")
		}
	default:
		return errors.Newf("unknown output.mode %q", c.Output.Mode)
	}

	if c.Rules.Enabled && strings.TrimSpace(c.Rules.Path) == "" {
		return errors.New("rules.path is required when rules are enabled")
	}

	return nil
}
