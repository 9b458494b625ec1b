// internal/workers/oracle/process-chat-turn/moderation.go
package processchatturn

import (
	"regexp"
	"strings"
	"time"

	"oracle-worker/internal/models"
)

// Action is the enforcement applied to a user message violation.
type Action string

const (
	ActionWarning   Action = "warning"
	ActionSuspended Action = "suspended"
	ActionDisabled  Action = "disabled"

	// The account was already restricted when the job arrived.
	ActionAccountDisabled  Action = "account_disabled"
	ActionAccountSuspended Action = "account_suspended"
)

const suspensionPeriod = 7 * 24 * time.Hour

type violationRule struct {
	kind     models.ViolationType
	severity string
	pattern  *regexp.Regexp
}

func keywordPattern(keywords ...string) *regexp.Regexp {
	quoted := make([]string, len(keywords))
	for i, k := range keywords {
		quoted[i] = regexp.QuoteMeta(k)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// Checked in order. The first match wins.
var violationRules = []violationRule{
	{models.ViolationMinorContent, "critical", keywordPattern(
		"child porn", "child sexual", "underage sex", "minor sex", "child abuse",
		"sexualize child", "sexualize minor", "loli", "shota", "child erotica",
		"preteen sex", "teenager sex", "teen porn", "school girl sex",
	)},
	{models.ViolationSelfHarmIntent, "critical", keywordPattern(
		"suicide", "kill myself", "end my life", "hurt myself", "self harm",
		"self-harm", "cut myself", "overdose", "hang myself",
	)},
	{models.ViolationHarmOthers, "critical", keywordPattern(
		"kill someone", "murder", "assault someone", "torture", "rape",
		"bomb making", "school shooting", "mass shooting", "terrorist attack",
		"incite violence", "harm people", "hurt people", "attack people",
	)},
	{models.ViolationDoxxingThreats, "critical", keywordPattern(
		"dox", "doxx", "home address", "social security",
		"will kill you", "going to hurt you", "find where you live", "track you down",
		"stalk", "stalking", "follow you home", "hunt you down",
	)},
	{models.ViolationHatefulContent, "critical", keywordPattern(
		"nazi", "white supremacy", "hate jews", "hate muslims", "hate blacks",
		"racial slur", "ethnic cleansing", "genocide", "holocaust denial",
		"hate crime", "kkk", "white power", "lynch", "lynching",
	)},
	{models.ViolationIllegalActivity, "critical", keywordPattern(
		"how to make meth", "cook meth", "fentanyl", "synthesize drugs", "make drugs",
		"build a bomb", "create explosives", "make weapon", "illegal weapon",
		"how to hack", "credit card fraud", "identity theft", "forge document",
		"counterfeit money", "trafficking", "smuggle", "drug deal",
	)},
	{models.ViolationSexualContent, "high", keywordPattern(
		"porn", "xxx", "sexually explicit", "orgy", "escort service",
		"non-consensual sex", "sexual assault", "sex slave",
	)},
	{models.ViolationJailbreak, "critical", keywordPattern(
		"ignore previous instructions", "disregard safety", "bypass filter",
		"override system", "disable safety", "jailbreak", "ignore guidelines",
		"roleplay as unrestricted", "act as if no rules",
		"forget your training", "ignore restrictions",
	)},
	{models.ViolationAbusiveLanguage, "medium", keywordPattern(
		"fuck", "shit", "motherfucker", "cunt",
	)},
}

// DetectMessageViolation returns the highest priority violation in a user
// message. Keywords match whole words only.
func DetectMessageViolation(message string) (models.ViolationType, string, bool) {
	for _, rule := range violationRules {
		if rule.pattern.MatchString(message) {
			return rule.kind, rule.severity, true
		}
	}
	return "", "", false
}

// EnforcementFor maps a violation and its running count to an action.
// Abusive language escalates with each repeat until the account is disabled.
// Sexual content is warned once. Everything else disables on the first offense.
func EnforcementFor(kind models.ViolationType, count int) Action {
	switch kind {
	case models.ViolationAbusiveLanguage:
		switch {
		case count <= 1:
			return ActionWarning
		case count == 2:
			return ActionSuspended
		default:
			return ActionDisabled
		}
	case models.ViolationSexualContent:
		if count <= 1 {
			return ActionWarning
		}
		return ActionDisabled
	default:
		return ActionDisabled
	}
}

var violationReplies = map[models.ViolationType]string{
	models.ViolationMinorContent: "I cannot engage with any content involving minors in an inappropriate context. " +
		"This is a serious violation of our policies and the law.",
	models.ViolationSelfHarmIntent: "I hear that you are going through something difficult, and your wellbeing matters. " +
		"What you are experiencing needs support that a reading cannot give.",
	models.ViolationHarmOthers: "I cannot provide guidance on harming others. If you are carrying conflict or anger, " +
		"a counselor can help you work through it.",
	models.ViolationDoxxingThreats: "I cannot engage with threatening, doxxing or stalking behavior. " +
		"If you are being harassed, please contact local law enforcement.",
	models.ViolationHatefulContent: "I cannot engage with hateful or discriminatory content. " +
		"This space is built on respect for all people.",
	models.ViolationIllegalActivity: "I cannot provide instructions or guidance for illegal activities.",
	models.ViolationSexualContent: "I am not able to discuss sexual or adult content. " +
		"Let's refocus on a question about your path, your relationships or your growth.",
	models.ViolationJailbreak: "I cannot bypass my guidelines. " +
		"Let's focus on what I can genuinely help you explore.",
	models.ViolationAbusiveLanguage: "I am not able to engage with abusive language. " +
		"Would you like to rephrase your question?",
}

var actionSuffixes = map[Action]string{
	ActionWarning:   "\n\nThis is a warning. Further violations will restrict your account.",
	ActionSuspended: "\n\nYour account has been suspended for 7 days.",
	ActionDisabled:  "\n\nYour account has been disabled for violating our community guidelines. To appeal, please contact support.",
}

const (
	selfHarmHotline = "If you are in danger or thinking about ending your life, please reach out now:\n" +
		"National Suicide Prevention Lifeline: 988 (US)\n" +
		"Crisis Text Line: text HOME to 741741\n" +
		"International crisis lines: findahelpline.com"

	accountDisabledReply  = "Your account has been permanently disabled due to repeated violations of our community guidelines. If you wish to appeal, please contact support."
	accountSuspendedReply = "Your account is currently suspended. Please try again after the suspension period ends."
)

// ViolationReply is the stored reply for a violation and the action taken.
// Self-harm replies lead with crisis resources.
func ViolationReply(kind models.ViolationType, action Action) string {
	reply, ok := violationReplies[kind]
	if !ok {
		reply = "I am unable to provide guidance on that topic."
	}
	reply += actionSuffixes[action]
	if kind == models.ViolationSelfHarmIntent {
		reply = selfHarmHotline + "\n\n" + reply
	}
	return reply
}
