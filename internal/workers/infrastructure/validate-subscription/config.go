// internal/workers/infrastructure/validate-subscription/config.go
package validatesubscription

import (
	"time"

	"oracle-worker/internal/common/config"
	"oracle-worker/internal/models"
)

type Config struct {
	// Timeout bounds one live check against the billing provider.
	Timeout time.Duration
	// CacheTTL is the freshness window of a cached health result.
	CacheTTL         time.Duration
	AcceptedStatuses []models.SubscriptionStatus
	TrialUserPrefix  string
	KeyPrefix        string
}

func LoadConfig() *Config {
	return &Config{
		Timeout:  5 * time.Second,
		CacheTTL: 5 * time.Minute,
		AcceptedStatuses: []models.SubscriptionStatus{
			models.SubscriptionActive,
			models.SubscriptionTrialing,
		},
		TrialUserPrefix: "temp_",
		KeyPrefix:       "sub:health:",
	}
}

// ConfigFrom maps the application config onto the validator settings.
func ConfigFrom(cfg *config.Config) *Config {
	c := LoadConfig()
	if cfg.APIs.Billing.Timeout > 0 {
		c.Timeout = config.GetDuration(cfg.APIs.Billing.Timeout)
	}
	if cfg.Subscription.CacheTTL > 0 {
		c.CacheTTL = config.GetDuration(cfg.Subscription.CacheTTL)
	}
	if len(cfg.Subscription.AcceptedStatuses) > 0 {
		c.AcceptedStatuses = c.AcceptedStatuses[:0]
		for _, s := range cfg.Subscription.AcceptedStatuses {
			c.AcceptedStatuses = append(c.AcceptedStatuses, models.SubscriptionStatus(s))
		}
	}
	c.TrialUserPrefix = cfg.Worker.TrialUserPrefix
	return c
}

func (c *Config) accepts(status models.SubscriptionStatus) bool {
	for _, s := range c.AcceptedStatuses {
		if s == status {
			return true
		}
	}
	return false
}
