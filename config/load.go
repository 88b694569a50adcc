package config

import (
	"errors"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Load reads the yaml config at path (if it exists) and overlays
// environment variables. An empty path means environment only.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}
	if strings.TrimSpace(path) != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, cfg); err != nil {
				return nil, err
			}
			return cfg, cfg.validate()
		}
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.validate()
}

func (c *AppConfig) validate() error {
	if strings.TrimSpace(c.BotToken) == "" {
		return errors.New("bot_token is required")
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return errors.New("db_driver must be sqlite or postgres")
	}
	if c.DBDriver == "postgres" && strings.TrimSpace(c.DBURL) == "" {
		return errors.New("db_url is required for postgres")
	}
	return nil
}
