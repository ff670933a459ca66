// Package config handles loading and validating the application
// configuration from a gateway.json file.
//
// The configuration file is a JSON object with database connection
// details, the HTTP listen address, the shared secrets used by the
// credential verifier, and tuning knobs for the rate limiter, query
// executor, and webhook dispatcher.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
)

// Config holds all application configuration loaded from gateway.json.
// The file is read once at startup; changes require a restart.
type Config struct {
	// DBConn is the PostgreSQL host:port (e.g., "infra-postgres:5432").
	DBConn string `json:"dbConn"`

	// DBName is the PostgreSQL database name.
	DBName string `json:"dbName"`

	// DBUser is the PostgreSQL username.
	DBUser string `json:"dbUser"`

	// DBPass is the PostgreSQL password.
	DBPass string `json:"dbPass"`

	// ListenAddr is the HTTP listen address (default ":4000").
	ListenAddr string `json:"listenAddr"`

	// AdminSecret is the master secret accepted in the lattice_admin
	// cookie. Requests carrying it bypass all other credential checks.
	AdminSecret string `json:"adminSecret"`

	// SessionSecret is the HMAC secret used to sign and verify
	// pqc_session tokens.
	SessionSecret string `json:"sessionSecret"`

	// RateLimitMax is the number of raw-SQL requests a tenant may make
	// per window before being blocked (default 120).
	RateLimitMax int `json:"rateLimitMax"`

	// RateLimitWindowSecs is the rolling window length in seconds
	// (default 60).
	RateLimitWindowSecs int `json:"rateLimitWindowSecs"`

	// RateLimitBlockSecs is how long an over-limit tenant stays
	// blocked, in seconds (default 300).
	RateLimitBlockSecs int `json:"rateLimitBlockSecs"`

	// QueryTimeoutMs bounds a single statement's execution time
	// (default 30000). A query that exceeds it fails instead of
	// holding a pooled connection indefinitely.
	QueryTimeoutMs int `json:"queryTimeoutMs"`

	// WebhookQueueSize bounds the number of pending webhook deliveries
	// (default 256). Deliveries beyond the bound are dropped and logged.
	WebhookQueueSize int `json:"webhookQueueSize"`

	// WebhookWorkers is the number of concurrent delivery workers
	// (default 4).
	WebhookWorkers int `json:"webhookWorkers"`

	// WebhookTimeoutSecs bounds a single outbound delivery (default 10).
	WebhookTimeoutSecs int `json:"webhookTimeoutSecs"`

	// LegacyUnscopedReads, when true, lets the row CRUD read path
	// return unfiltered rows for tables absent from the table registry.
	// When false (the default) such reads are denied.
	LegacyUnscopedReads bool `json:"legacyUnscopedReads"`
}

// Load reads and parses configuration from the given file path.
// It returns an error if the file cannot be read, parsed, or is missing
// required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":4000"
	}
	if c.RateLimitMax == 0 {
		c.RateLimitMax = 120
	}
	if c.RateLimitWindowSecs == 0 {
		c.RateLimitWindowSecs = 60
	}
	if c.RateLimitBlockSecs == 0 {
		c.RateLimitBlockSecs = 300
	}
	if c.QueryTimeoutMs == 0 {
		c.QueryTimeoutMs = 30000
	}
	if c.WebhookQueueSize == 0 {
		c.WebhookQueueSize = 256
	}
	if c.WebhookWorkers == 0 {
		c.WebhookWorkers = 4
	}
	if c.WebhookTimeoutSecs == 0 {
		c.WebhookTimeoutSecs = 10
	}
}

// validate checks that all required fields are present.
func (c *Config) validate() error {
	switch {
	case c.DBConn == "":
		return fmt.Errorf("config: dbConn is required")
	case c.DBName == "":
		return fmt.Errorf("config: dbName is required")
	case c.DBUser == "":
		return fmt.Errorf("config: dbUser is required")
	case c.DBPass == "":
		return fmt.Errorf("config: dbPass is required")
	case c.AdminSecret == "":
		return fmt.Errorf("config: adminSecret is required")
	case c.SessionSecret == "":
		return fmt.Errorf("config: sessionSecret is required")
	}
	return nil
}

// ConnString builds a PostgreSQL connection URI from the config fields.
// The password is URL-encoded to handle special characters safely.
func (c *Config) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		url.QueryEscape(c.DBUser),
		url.QueryEscape(c.DBPass),
		c.DBConn,
		url.QueryEscape(c.DBName),
	)
}
