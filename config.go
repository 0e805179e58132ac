package mediacache

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the environment-driven cache configuration consumed by
// OpenFromConfig. A per-run override (WithDisabled) layers on top without
// mutating anything persisted.
type Config struct {
	Enabled   bool    `env:"MEDIACACHE_ENABLE"      envDefault:"true"`
	Dir       string  `env:"MEDIACACHE_DIR"         envDefault:".cache"`
	MaxSizeGB float64 `env:"MEDIACACHE_MAX_SIZE_GB" envDefault:"10"`
}

// ConfigFromEnv reads the configuration from the process environment.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse cache environment: %w", err)
	}
	return cfg, nil
}

// MaxBytes converts the configured ceiling to bytes. Zero means unlimited.
func (c Config) MaxBytes() int64 {
	return int64(c.MaxSizeGB * float64(1 << 30))
}
