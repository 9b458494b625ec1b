// internal/workers/oracle/process-chat-turn/config.go
package processchatturn

import (
	"oracle-worker/internal/common/config"
	"oracle-worker/internal/models"
)

type Config struct {
	// GatedKinds lists the job kinds that need a healthy subscription.
	GatedKinds   map[models.JobKind]bool
	HistoryLimit int
	// PersistBlockedNotice stores the billing notice as the reply to a
	// denied job. Off, a denied job writes nothing.
	PersistBlockedNotice bool
}

func LoadConfig() *Config {
	return &Config{
		HistoryLimit: 10,
		GatedKinds: map[models.JobKind]bool{
			models.JobKindChat:          true,
			models.JobKindHoroscope:     true,
			models.JobKindMoonPhase:     true,
			models.JobKindCosmicWeather: true,
		},
	}
}

func ConfigFrom(cfg *config.Config) *Config {
	c := LoadConfig()
	c.HistoryLimit = cfg.Worker.HistoryLimit
	c.PersistBlockedNotice = cfg.Worker.PersistBlockedNotice
	if cfg.Worker.GatedKinds != nil {
		c.GatedKinds = make(map[models.JobKind]bool, len(cfg.Worker.GatedKinds))
		for _, k := range cfg.Worker.GatedKinds {
			c.GatedKinds[models.JobKind(k)] = true
		}
	}
	return c
}

func (c *Config) gated(kind models.JobKind) bool {
	return c.GatedKinds[kind]
}
