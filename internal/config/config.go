// Package config loads relaybus's runtime configuration: the gateway's
// listen address and origin policy, where to find the policy file,
// optional Postgres-backed audit storage, OpenTelemetry export, and the
// scheduler's heartbeat. JSON5 (github.com/titanous/json5) is used
// throughout so operators can comment their config files.
package config

import (
	"encoding/json"
	"fmt"
)

// FlexibleStringSlice accepts both `["a","b"]` and a single bare string
// in JSON, so a one-item allow-list doesn't require array syntax.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("expected a string or array of strings: %w", err)
	}
	*f = []string{single}
	return nil
}

// Config is the root configuration for the relaybus broker.
type Config struct {
	Policy    PolicyConfig    `json:"policy"`
	Gateway   GatewayConfig   `json:"gateway"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	Heartbeat HeartbeatConfig `json:"heartbeat,omitempty"`
}

// PolicyConfig points at the policy DSL source file and controls
// hot-reload behavior.
type PolicyConfig struct {
	Path      string `json:"path"`
	HotReload bool   `json:"hot_reload,omitempty"`
}

// GatewayConfig controls the WebSocket/HTTP listener.
type GatewayConfig struct {
	Host           string              `json:"host"`
	Port           int                 `json:"port"`
	AllowedOrigins FlexibleStringSlice `json:"allowed_origins,omitempty"`
	RateLimitRPS   float64             `json:"rate_limit_rps,omitempty"`
	RateLimitBurst int                 `json:"rate_limit_burst,omitempty"`
}

// DatabaseConfig configures the optional Postgres-backed audit store.
// PostgresDSN is never read from the config file — only from the
// RELAYBUS_POSTGRES_DSN environment variable — so it never ends up
// committed alongside the rest of the config.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
	Mode        string `json:"mode,omitempty"` // "file" (default) or "postgres"
}

// UsesPostgres reports whether the audit store should be backed by
// Postgres rather than the local JSON file store.
func (d DatabaseConfig) UsesPostgres() bool {
	return d.Mode == "postgres" && d.PostgresDSN != ""
}

// TelemetryConfig configures OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"service_name,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// HeartbeatConfig configures the scheduler's periodic broadcast,
// useful as a liveness signal for listeners with nothing else to
// subscribe to.
type HeartbeatConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Channel string `json:"channel,omitempty"`
	Cron    string `json:"cron,omitempty"` // cron expression; a six-field form leads with seconds
}

// Default returns a Config with sensible defaults for local use.
func Default() *Config {
	return &Config{
		Policy: PolicyConfig{
			HotReload: true,
		},
		Gateway: GatewayConfig{
			Host:           "127.0.0.1",
			Port:           3030,
			RateLimitRPS:   20,
			RateLimitBurst: 5,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "relaybus",
		},
		Heartbeat: HeartbeatConfig{
			Channel: "heartbeat",
			Cron:    "*/30 * * * * *",
		},
	}
}
