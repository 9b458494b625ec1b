// internal/workers/oracle/extract-cards/config.go
package extractcards

import "oracle-worker/internal/common/config"

type Config struct {
	Policy        Policy
	ContextWindow int
	// SectionMarker is used by PolicyTruncateAtInsight.
	SectionMarker string
}

const (
	DefaultContextWindow = 60
	DefaultSectionMarker = `(?i)\b(?:insights?|interpretations?)\b`
)

func LoadConfig(cfg config.ExtractionConfig) *Config {
	c := &Config{
		Policy:        Policy(cfg.Policy),
		ContextWindow: cfg.ContextWindow,
		SectionMarker: DefaultSectionMarker,
	}
	if c.Policy == "" {
		c.Policy = PolicyFullText
	}
	if c.ContextWindow <= 0 {
		c.ContextWindow = DefaultContextWindow
	}
	return c
}
