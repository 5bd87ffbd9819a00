package config

import "time"

// StreamerConfig is the root configuration for a streamer instance.
type StreamerConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Exchange  ExchangeConfig  `yaml:"exchange"`
	Streaming StreamingConfig `yaml:"streaming"`
	Database  DatabaseConfig  `yaml:"database"`
	Recorder  RecorderConfig  `yaml:"recorder"`
	Catalogue CatalogueConfig `yaml:"catalogue"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// InstanceConfig identifies this streamer.
type InstanceConfig struct {
	ID     string `yaml:"id"`
	Region string `yaml:"region"`
}

// ExchangeConfig holds exchange endpoints and account credentials.
type ExchangeConfig struct {
	APIURL      string        `yaml:"api_url"`      // REST betting API base
	StreamURL   string        `yaml:"stream_url"`   // WebSocket stream endpoint
	IdentityURL string        `yaml:"identity_url"` // SSO login endpoint
	AppKey      string        `yaml:"app_key"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	RateLimit   float64       `yaml:"rate_limit"` // REST requests per second
	RateBurst   int           `yaml:"rate_burst"`
}

// StreamingConfig holds stream session settings. The zero value streams
// markets only; set order_stream to mirror the account's order activity.
type StreamingConfig struct {
	Disabled             bool           `yaml:"disabled"` // Run catalogue-only, no stream session
	OrderStream          bool           `yaml:"order_stream"`
	HeartbeatInterval    time.Duration  `yaml:"heartbeat_interval"`
	MonitorInterval      time.Duration  `yaml:"monitor_interval"`
	RefreshInterval      time.Duration  `yaml:"refresh_interval"`
	MaxReconnectAttempts int            `yaml:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration  `yaml:"reconnect_base_delay"`
	MarketFilters        []FilterConfig `yaml:"market_filters"`
}

// FilterConfig selects markets for one standing subscription.
type FilterConfig struct {
	MarketIDs    []string      `yaml:"market_ids"`
	EventTypes   []string      `yaml:"event_types"`
	MarketTypes  []string      `yaml:"market_types"`
	CountryCodes []string      `yaml:"country_codes"`
	TimeWindow   time.Duration `yaml:"time_window"` // Only markets starting within this window
}

// DatabaseConfig holds the Postgres connection for recorded stream data
// and the market catalogue.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RecorderConfig holds batch writer settings for change persistence.
type RecorderConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// CatalogueConfig holds market discovery poller settings. The poller
// queries the same market filters the stream subscribes to.
type CatalogueConfig struct {
	Disabled    bool          `yaml:"disabled"`
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
}

// MetricsConfig holds the health endpoint settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
