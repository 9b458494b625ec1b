// internal/workers/data-access/query-elasticsearch/config.go
package queryelasticsearch

import (
	"time"

	"oracle-worker/internal/common/config"
)

type Config struct {
	Timeout time.Duration
	Index   string
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
		Index:   "oracle-readings",
	}
}

func ConfigFrom(cfg config.ElasticsearchConfig) *Config {
	c := LoadConfig()
	if cfg.Index != "" {
		c.Index = cfg.Index
	}
	return c
}
