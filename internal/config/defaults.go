package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAPIURL               = "https://api.betfair.com/exchange/betting/rest/v1.0"
	DefaultStreamURL            = "wss://stream-api.betfair.com/api"
	DefaultIdentityURL          = "https://identitysso.betfair.com"
	DefaultAPITimeout           = 30 * time.Second
	DefaultMaxRetries           = 3
	DefaultRateLimit            = 10.0
	DefaultRateBurst            = 20
	DefaultHeartbeatInterval    = 5 * time.Second
	DefaultMonitorInterval      = 5 * time.Second
	DefaultRefreshInterval      = 5 * time.Minute
	DefaultMaxReconnectAttempts = 3
	DefaultReconnectBaseDelay   = 2 * time.Second
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultBatchSize            = 500
	DefaultFlushInterval        = 2 * time.Second
	DefaultBufferSize           = 8192
	DefaultCatalogueInterval    = 15 * time.Minute
	DefaultCatalogueConcurrency = 16
	DefaultCatalogueTimeout     = 10 * time.Second
	DefaultMetricsPort          = 9090
	DefaultMetricsPath          = "/metrics"
)

func (c *StreamerConfig) applyDefaults() {
	// Exchange defaults
	if c.Exchange.APIURL == "" {
		c.Exchange.APIURL = DefaultAPIURL
	}
	if c.Exchange.StreamURL == "" {
		c.Exchange.StreamURL = DefaultStreamURL
	}
	if c.Exchange.IdentityURL == "" {
		c.Exchange.IdentityURL = DefaultIdentityURL
	}
	if c.Exchange.Timeout == 0 {
		c.Exchange.Timeout = DefaultAPITimeout
	}
	if c.Exchange.MaxRetries == 0 {
		c.Exchange.MaxRetries = DefaultMaxRetries
	}
	if c.Exchange.RateLimit == 0 {
		c.Exchange.RateLimit = DefaultRateLimit
	}
	if c.Exchange.RateBurst == 0 {
		c.Exchange.RateBurst = DefaultRateBurst
	}

	// Streaming defaults
	if c.Streaming.HeartbeatInterval == 0 {
		c.Streaming.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Streaming.MonitorInterval == 0 {
		c.Streaming.MonitorInterval = DefaultMonitorInterval
	}
	if c.Streaming.RefreshInterval == 0 {
		c.Streaming.RefreshInterval = DefaultRefreshInterval
	}
	if c.Streaming.MaxReconnectAttempts == 0 {
		c.Streaming.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Streaming.ReconnectBaseDelay == 0 {
		c.Streaming.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// Recorder defaults
	if c.Recorder.BatchSize == 0 {
		c.Recorder.BatchSize = DefaultBatchSize
	}
	if c.Recorder.FlushInterval == 0 {
		c.Recorder.FlushInterval = DefaultFlushInterval
	}
	if c.Recorder.BufferSize == 0 {
		c.Recorder.BufferSize = DefaultBufferSize
	}

	// Catalogue defaults
	if c.Catalogue.Interval == 0 {
		c.Catalogue.Interval = DefaultCatalogueInterval
	}
	if c.Catalogue.Concurrency == 0 {
		c.Catalogue.Concurrency = DefaultCatalogueConcurrency
	}
	if c.Catalogue.Timeout == 0 {
		c.Catalogue.Timeout = DefaultCatalogueTimeout
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
