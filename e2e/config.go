package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_REDIS_ADDR points at a disposable Redis; the suite is skipped when empty
	RedisAddr string `envconfig:"E2E_REDIS_ADDR"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
