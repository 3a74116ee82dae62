package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

// Config is populated from STOCKMAN_* environment variables. DatabasePath
// accepts the special value "memory" to run on the seeded in-memory store.
type Config struct {
	Host                  string `envconfig:"HOST" default:"127.0.0.1"`
	Port                  string `envconfig:"PORT" default:"8080"`
	DatabasePath          string `envconfig:"DATABASE_PATH"`
	RedisAddr             string `envconfig:"REDIS_ADDR"`
	RedisPassword         string `envconfig:"REDIS_PASSWORD"`
	RedisDB               int    `envconfig:"REDIS_DB" default:"0"`
	AuthSecret            string `envconfig:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `envconfig:"ACCESS_TOKEN_TTL_MINUTES" default:"480"`
	LogPretty             bool   `envconfig:"LOG_PRETTY" default:"false"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("stockman", &cfg); err != nil {
		return Config{}, err
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = defaultDatabasePath()
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// defaultDatabasePath puts the database file in the per-user config
// directory, falling back to the working directory when the platform has
// none.
func defaultDatabasePath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "stockman.db"
	}
	return filepath.Join(base, "StockMan", "stockman.db")
}
