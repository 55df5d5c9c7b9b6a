package config

import (
	"strings"
	"time"

	"github.com/nkkko/telecast/internal/api"
	"github.com/nkkko/telecast/internal/bus"
	"github.com/nkkko/telecast/internal/domain"
	"github.com/nkkko/telecast/internal/indexer"
	"github.com/nkkko/telecast/internal/library"
	"github.com/nkkko/telecast/internal/logging"
	"github.com/nkkko/telecast/internal/metadata"
	"github.com/nkkko/telecast/internal/provider"
	"github.com/nkkko/telecast/internal/scheduler"
	badgerstore "github.com/nkkko/telecast/internal/store/badger"
	"github.com/nkkko/telecast/internal/stream"
	"github.com/nkkko/telecast/internal/syncer"
	"github.com/nkkko/telecast/internal/telemetry"
	"github.com/nkkko/telecast/internal/webui"
)

// ToStoreConfig converts to the store factory config
func (c *Config) ToStoreConfig() domain.StoreConfig {
	if c.Store.StoreType == "memory" {
		return domain.StoreConfig{Type: domain.MemoryStore}
	}

	return domain.StoreConfig{
		Type: domain.BadgerStore,
		Config: badgerstore.Config{
			DataDir:          c.Store.DataDir,
			CacheEnabled:     c.Store.CacheEnabled,
			AccountCacheSize: c.Store.AccountCacheSize,
			ChannelCacheSize: c.Store.ChannelCacheSize,
			GuideCacheSize:   c.Store.GuideCacheSize,
			CacheExpiration:  time.Duration(c.Store.CacheExpirationSeconds) * time.Second,
			GCInterval:       time.Duration(c.Store.GCIntervalMinutes) * time.Minute,
		},
	}
}

// ToBusConfig converts to event bus config
func (c *Config) ToBusConfig() bus.Config {
	return bus.DefaultConfig()
}

// ToStreamConfig converts to stream factory config
func (c *Config) ToStreamConfig() stream.Config {
	return stream.Config{
		HeartbeatInterval: time.Duration(c.Stream.HeartbeatIntervalSeconds) * time.Second,
		BufferSize:        c.Stream.BufferSize,
	}
}

// ToSyncConfig converts to the sync runner config for one resource
func (c *Config) ToSyncConfig(resource string) syncer.Config {
	concurrency := 1
	switch resource {
	case "channels":
		concurrency = c.Sync.ChannelsConcurrency
	case "guide":
		concurrency = c.Sync.GuideConcurrency
	}

	return syncer.Config{
		Resource:    resource,
		Concurrency: concurrency,
	}
}

// ToProviderConfig converts to provider client config
func (c *Config) ToProviderConfig() provider.Config {
	return provider.Config{
		Timeout:   time.Duration(c.Provider.TimeoutSeconds) * time.Second,
		UserAgent: c.Provider.UserAgent,
	}
}

// ToMetadataConfig converts to metadata service config. A disabled
// section clears the API key, which switches lookups off.
func (c *Config) ToMetadataConfig() metadata.Config {
	apiKey := c.Metadata.APIKey
	if !c.Metadata.Enabled {
		apiKey = ""
	}

	return metadata.Config{
		BaseURL:   c.Metadata.BaseURL,
		APIKey:    apiKey,
		CacheSize: c.Metadata.CacheSize,
		CacheTTL:  time.Duration(c.Metadata.CacheExpirationSeconds) * time.Second,
		Timeout:   time.Duration(c.Metadata.TimeoutSeconds) * time.Second,
	}
}

// ToLibraryConfig converts to library browser config
func (c *Config) ToLibraryConfig() library.Config {
	return library.Config{
		Root: c.Library.Root,
	}
}

// ToIndexerConfig converts to indexer registry config
func (c *Config) ToIndexerConfig() indexer.Config {
	return indexer.Config{
		DefinitionsDir: c.Indexers.DefsDir,
	}
}

// ToSchedulerConfig converts to scheduler config
func (c *Config) ToSchedulerConfig() scheduler.Config {
	return scheduler.Config{
		Enabled: c.Scheduler.Enabled,
	}
}

// ToAPIConfig converts to API server config
func (c *Config) ToAPIConfig() api.Config {
	return api.Config{
		Addr:           c.Server.Addr,
		BodyLimit:      c.Server.MaxBodySize,
		ReadTimeout:    time.Duration(c.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(c.Server.WriteTimeout) * time.Second,
		IdleTimeout:    time.Duration(c.Server.IdleTimeout) * time.Second,
		MetricsEnabled: c.Metrics.Enabled,
		MetricsPath:    c.Metrics.Endpoint,
	}
}

// ToWebUIConfig converts to web UI server config. The API proxy target
// is derived from the API server address.
func (c *Config) ToWebUIConfig() webui.Config {
	apiURL := c.Server.Addr
	if strings.HasPrefix(apiURL, ":") {
		apiURL = "127.0.0.1" + apiURL
	}

	return webui.Config{
		Addr:           c.WebUI.Addr,
		APIURL:         "http://" + apiURL,
		AllowedOrigins: c.WebUI.AllowedOrigins,
	}
}

// ToLoggingConfig converts to logging config
func (c *Config) ToLoggingConfig() logging.Config {
	var format logging.Format
	switch c.Logging.Format {
	case "console":
		format = logging.FormatConsole
	default:
		format = logging.FormatJSON
	}

	return logging.Config{
		Level:             c.Logging.Level,
		Format:            format,
		IncludeCaller:     c.Logging.IncludeCaller,
		IncludeStacktrace: true,
		GlobalFields:      c.Logging.GlobalFields,
	}
}

// ToTelemetryConfig converts to telemetry config
func (c *Config) ToTelemetryConfig() telemetry.Config {
	return telemetry.Config{
		Enabled:       c.Telemetry.Enabled,
		ServiceName:   c.Telemetry.ServiceName,
		Endpoint:      c.Telemetry.Endpoint,
		SamplingRatio: c.Telemetry.SamplingRatio,
		Timeout:       5 * time.Second,
	}
}
