package config

import (
	"fmt"
	"os"

	"github.com/titanous/json5"
)

// Load reads the gateway config from path (JSON5) and overlays the
// database DSN from its environment variable. A missing file is not an
// error — Default() alone is returned, env overrides still applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("RELAYBUS_POSTGRES_DSN"); dsn != "" {
		c.Database.PostgresDSN = dsn
		if c.Database.Mode == "" {
			c.Database.Mode = "postgres"
		}
	}
}
