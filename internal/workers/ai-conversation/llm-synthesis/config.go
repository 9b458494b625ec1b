// internal/workers/ai-conversation/llm-synthesis/config.go
package llmsynthesis

import (
	"time"

	"oracle-worker/internal/common/config"
)

type Config struct {
	GenAIBaseURL string
	APIKey       string
	ClientName   string
	SystemPrompt string
	Timeout      time.Duration
	MaxRetries   int
}

func LoadConfig() *Config {
	return &Config{
		ClientName: "oracle",
		Timeout:    2 * time.Minute,
		MaxRetries: 2,
	}
}

// ConfigFrom maps the application config onto the generation client settings.
func ConfigFrom(cfg *config.Config) *Config {
	c := LoadConfig()
	c.GenAIBaseURL = cfg.APIs.GenAI.BaseURL
	c.APIKey = cfg.APIs.GenAI.APIKey
	if cfg.APIs.GenAI.ClientName != "" {
		c.ClientName = cfg.APIs.GenAI.ClientName
	}
	if cfg.APIs.GenAI.Timeout > 0 {
		c.Timeout = config.GetDuration(cfg.APIs.GenAI.Timeout)
	}
	c.MaxRetries = cfg.APIs.GenAI.MaxRetries
	c.SystemPrompt = cfg.Worker.SystemPrompt
	return c
}
