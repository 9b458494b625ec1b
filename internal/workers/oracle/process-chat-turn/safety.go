// internal/workers/oracle/process-chat-turn/safety.go
package processchatturn

import (
	"regexp"
	"strings"

	"oracle-worker/internal/models"
)

var healthRefusalPhrases = []string{
	"can't provide medical",
	"cannot provide medical",
	"can't offer medical",
	"cannot offer medical",
	"consult a healthcare",
	"consult a doctor",
	"seek medical",
	"see a doctor",
	"medical professional",
	"healthcare professional",
	"not a medical",
	"not qualified to provide medical",
	"i'm not able to provide medical",
}

var crisisPhrases = []string{
	"national suicide prevention",
	"crisis helpline",
	"suicide prevention lifeline",
	"in crisis",
	"talk to someone who can help",
	"trusted adult, counselor",
	"mental health professional",
	"seek support from those who care",
	"you are not alone",
	"reach out for support",
	"healthy ways to cope",
	"healthier coping",
	"without resorting",
	"professional who can help",
}

var crisisLine = regexp.MustCompile(`\b988\b`)

var violationSeverity = map[models.ViolationType]string{
	models.ViolationHealthAdvice: "info",
	models.ViolationSelfHarm:     "warning",
}

// DetectViolations returns the safety signals present in a generated
// response, in a fixed order.
func DetectViolations(response string) []models.ViolationType {
	lower := strings.ToLower(response)
	var found []models.ViolationType
	if containsAny(lower, healthRefusalPhrases) {
		found = append(found, models.ViolationHealthAdvice)
	}
	if containsAny(lower, crisisPhrases) || crisisLine.MatchString(lower) {
		found = append(found, models.ViolationSelfHarm)
	}
	return found
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
