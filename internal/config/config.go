package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	WebUI     WebUIConfig     `yaml:"webui"`
	Store     StoreConfig     `yaml:"store"`
	Stream    StreamConfig    `yaml:"stream"`
	Sync      SyncConfig      `yaml:"sync"`
	Provider  ProviderConfig  `yaml:"provider"`
	Metadata  MetadataConfig  `yaml:"metadata"`
	Library   LibraryConfig   `yaml:"library"`
	Indexers  IndexersConfig  `yaml:"indexers"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig contains API server settings
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	MaxBodySize  int    `yaml:"max_body_size"`
	ReadTimeout  int    `yaml:"read_timeout"`
	WriteTimeout int    `yaml:"write_timeout"`
	IdleTimeout  int    `yaml:"idle_timeout"`
}

// WebUIConfig contains web UI server settings
type WebUIConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StoreConfig contains storage engine settings
type StoreConfig struct {
	DataDir                string `yaml:"data_dir"`
	StoreType              string `yaml:"store_type"`
	CacheEnabled           bool   `yaml:"cache_enabled"`
	AccountCacheSize       int    `yaml:"account_cache_size"`
	ChannelCacheSize       int    `yaml:"channel_cache_size"`
	GuideCacheSize         int    `yaml:"guide_cache_size"`
	CacheExpirationSeconds int    `yaml:"cache_expiration_seconds"`
	GCIntervalMinutes      int    `yaml:"gc_interval_minutes"`
}

// StreamConfig contains push stream settings
type StreamConfig struct {
	HeartbeatIntervalSeconds int `yaml:"heartbeat_interval_seconds"`
	BufferSize               int `yaml:"buffer_size"`
}

// SyncConfig contains sync orchestration settings
type SyncConfig struct {
	ChannelsConcurrency int `yaml:"channels_concurrency"`
	GuideConcurrency    int `yaml:"guide_concurrency"`
}

// ProviderConfig contains live-TV provider client settings
type ProviderConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	UserAgent      string `yaml:"user_agent"`
}

// MetadataConfig contains metadata lookup settings
type MetadataConfig struct {
	Enabled                bool   `yaml:"enabled"`
	BaseURL                string `yaml:"base_url"`
	APIKey                 string `yaml:"api_key"`
	TimeoutSeconds         int    `yaml:"timeout_seconds"`
	CacheSize              int    `yaml:"cache_size"`
	CacheExpirationSeconds int    `yaml:"cache_expiration_seconds"`
}

// LibraryConfig contains media library settings
type LibraryConfig struct {
	Root string `yaml:"root"`
}

// IndexersConfig contains indexer definition settings
type IndexersConfig struct {
	DefsDir string `yaml:"defs_dir"`
}

// SchedulerConfig contains scheduled sync settings
type SchedulerConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ChannelsCron string `yaml:"channels_cron"`
	GuideCron    string `yaml:"guide_cron"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level         string            `yaml:"level"`
	Format        string            `yaml:"format"`
	IncludeCaller bool              `yaml:"include_caller"`
	GlobalFields  map[string]string `yaml:"global_fields"`
}

// TelemetryConfig contains OpenTelemetry settings
type TelemetryConfig struct {
	Enabled       bool    `yaml:"enabled"`
	ServiceName   string  `yaml:"service_name"`
	Endpoint      string  `yaml:"endpoint"`
	SamplingRatio float64 `yaml:"sampling_ratio"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			MaxBodySize:  1048576, // 1MB
			ReadTimeout:  5,
			WriteTimeout: 0, // a write deadline would cut long-lived event streams
			IdleTimeout:  120,
		},
		WebUI: WebUIConfig{
			Enabled:        true,
			Addr:           ":8081",
			AllowedOrigins: []string{"*"},
		},
		Store: StoreConfig{
			DataDir:                "./data",
			StoreType:              "badger",
			CacheEnabled:           true,
			AccountCacheSize:       256,
			ChannelCacheSize:       4096,
			GuideCacheSize:         512,
			CacheExpirationSeconds: 60,
			GCIntervalMinutes:      10,
		},
		Stream: StreamConfig{
			HeartbeatIntervalSeconds: 30,
			BufferSize:               64,
		},
		Sync: SyncConfig{
			ChannelsConcurrency: 1,
			GuideConcurrency:    1,
		},
		Provider: ProviderConfig{
			TimeoutSeconds: 30,
			UserAgent:      "telecast/0.9",
		},
		Metadata: MetadataConfig{
			Enabled:                false,
			BaseURL:                "https://api.themoviedb.org/3",
			TimeoutSeconds:         10,
			CacheSize:              512,
			CacheExpirationSeconds: 21600,
		},
		Library: LibraryConfig{
			Root: "./media",
		},
		Indexers: IndexersConfig{
			DefsDir: "./definitions",
		},
		Scheduler: SchedulerConfig{
			Enabled:      false,
			ChannelsCron: "0 */6 * * *",
			GuideCron:    "15 */12 * * *",
		},
		Logging: LoggingConfig{
			Level:         "info",
			Format:        "json",
			IncludeCaller: true,
			GlobalFields:  map[string]string{},
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			ServiceName:   "telecast",
			Endpoint:      "localhost:4317",
			SamplingRatio: 0.1,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}

// LoadConfigFromFile loads configuration from a YAML file
func LoadConfigFromFile(filePath string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("file", filePath).Msg("Configuration file not found, using defaults")
			return config, nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

// LoadConfig loads configuration from file, environment variables, and flags
func LoadConfig(configFile string, dataDir string, serverAddr string, logLevel string) (*Config, error) {
	var config *Config
	var err error

	if configFile != "" {
		config, err = LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		config = DefaultConfig()
	}

	applyEnvOverrides(config)

	// Command line flags take highest priority
	if dataDir != "" {
		absDataDir, err := filepath.Abs(dataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for data directory: %w", err)
		}
		config.Store.DataDir = absDataDir
	}

	if serverAddr != "" {
		config.Server.Addr = serverAddr
	}

	if logLevel != "" {
		config.Logging.Level = logLevel
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(config *Config) {
	if addr := os.Getenv("TELECAST_SERVER_ADDR"); addr != "" {
		config.Server.Addr = addr
	}
	if addr := os.Getenv("TELECAST_WEBUI_ADDR"); addr != "" {
		config.WebUI.Addr = addr
	}

	if dataDir := os.Getenv("TELECAST_DATA_DIR"); dataDir != "" {
		config.Store.DataDir = dataDir
	}
	if root := os.Getenv("TELECAST_LIBRARY_ROOT"); root != "" {
		config.Library.Root = root
	}
	if defsDir := os.Getenv("TELECAST_INDEXER_DEFS_DIR"); defsDir != "" {
		config.Indexers.DefsDir = defsDir
	}

	if key := os.Getenv("TELECAST_METADATA_API_KEY"); key != "" {
		config.Metadata.APIKey = key
		config.Metadata.Enabled = true
	}

	if heartbeatStr := os.Getenv("TELECAST_STREAM_HEARTBEAT_SECONDS"); heartbeatStr != "" {
		if val, err := strconv.Atoi(heartbeatStr); err == nil {
			config.Stream.HeartbeatIntervalSeconds = val
		}
	}
	if concStr := os.Getenv("TELECAST_SYNC_CHANNELS_CONCURRENCY"); concStr != "" {
		if val, err := strconv.Atoi(concStr); err == nil {
			config.Sync.ChannelsConcurrency = val
		}
	}
	if concStr := os.Getenv("TELECAST_SYNC_GUIDE_CONCURRENCY"); concStr != "" {
		if val, err := strconv.Atoi(concStr); err == nil {
			config.Sync.GuideConcurrency = val
		}
	}

	if level := os.Getenv("TELECAST_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("TELECAST_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
}
