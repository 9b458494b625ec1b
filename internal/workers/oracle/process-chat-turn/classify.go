// internal/workers/oracle/process-chat-turn/classify.go
package processchatturn

import (
	"strings"

	"oracle-worker/internal/models"
)

var kindKeywords = []struct {
	kind     models.JobKind
	keywords []string
}{
	{models.JobKindHoroscope, []string{"horoscope", "daily reading", "weekly reading", "cosmic guidance for me"}},
	{models.JobKindMoonPhase, []string{"moon phase", "lunar phase", "current moon", "lunar energy"}},
	{models.JobKindCosmicWeather, []string{"cosmic weather", "today's cosmic", "planetary energy", "planet positions"}},
}

// ClassifyKind picks the job kind from keywords in the message. The first
// matching kind wins; anything else is a plain chat turn.
func ClassifyKind(message string) models.JobKind {
	lower := strings.ToLower(message)
	for _, k := range kindKeywords {
		for _, kw := range k.keywords {
			if strings.Contains(lower, kw) {
				return k.kind
			}
		}
	}
	return models.JobKindChat
}
