// internal/workers/communication/send-notification/config.go
package sendnotification

import (
	"time"

	"oracle-worker/internal/common/config"
)

type Config struct {
	Enabled bool
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 5 * time.Second,
	}
}

func ConfigFrom(cfg *config.Config) *Config {
	c := LoadConfig()
	c.Enabled = cfg.Notifications.SNS.Enabled
	return c
}
