// internal/workers/data-access/query-postgresql/config.go
package querypostgresql

import (
	"time"

	"oracle-worker/internal/common/config"
)

type Config struct {
	Timeout      time.Duration
	HistoryLimit int
	UserHashSalt string
}

func LoadConfig() *Config {
	return &Config{
		Timeout:      30 * time.Second,
		HistoryLimit: 10,
	}
}

func ConfigFrom(cfg *config.Config) *Config {
	c := LoadConfig()
	c.HistoryLimit = cfg.Worker.HistoryLimit
	c.UserHashSalt = cfg.App.UserHashSalt
	return c
}
