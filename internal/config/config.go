// Package config defines process configuration, read from the environment:
// PORT, ADMIN_PASSWORD, CORS_ORIGIN and LOG_LEVEL.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is the full process configuration.
type Config struct {
	Port          int    `mapstructure:"port"`
	AdminPassword string `mapstructure:"admin_password"`
	CORSOrigin    string `mapstructure:"cors_origin"`
	LogLevel      string `mapstructure:"log_level"`
}

// Load reads configuration from the environment with defaults applied.
func Load() (*Config, error) {
	v := viper.New()
	v.SetDefault("port", 8080)
	v.SetDefault("admin_password", "")
	v.SetDefault("cors_origin", "*")
	v.SetDefault("log_level", "info")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in 1..65535, got %d", c.Port)
	}
	if c.AdminPassword == "" {
		return fmt.Errorf("admin_password is required (set ADMIN_PASSWORD)")
	}
	return nil
}
