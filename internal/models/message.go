// internal/models/message.go
package models

import "time"

// Message roles. Only the first three are sent back to the generator.
const (
	RoleSystem    = "system"
	RoleAssistant = "assistant"
	RoleUser      = "user"
	RoleNotice    = "notice"
)

// ChatMessage is one entry of the conversation context.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Turn is everything persisted for one processed job.
type Turn struct {
	UserID             string                 `json:"-"`
	UserIDHash         string                 `json:"userIdHash"`
	Kind               JobKind                `json:"kind"`
	UserMessageID      string                 `json:"userMessageId"`
	UserMessage        string                 `json:"userMessage"`
	AssistantMessageID string                 `json:"assistantMessageId"`
	AssistantText      string                 `json:"assistantText"`
	Brief              string                 `json:"brief,omitempty"`
	Cards              []StoredCard           `json:"cards"`
	Astrology          map[string]interface{} `json:"astrology,omitempty"`
	CreatedAt          time.Time              `json:"createdAt"`

	// Notice marks a turn whose reply is a billing or moderation notice
	// instead of a reading.
	Notice bool `json:"notice,omitempty"`
}

// AssistantRole is the role the reply is stored under.
func (t *Turn) AssistantRole() string {
	if t.Notice {
		return RoleNotice
	}
	return RoleAssistant
}

// ViolationType names a safety signal found in a response or a policy
// violation found in a user message.
type ViolationType string

// Signals found in generated responses. They are logged, never enforced.
const (
	ViolationHealthAdvice ViolationType = "health_medical_advice"
	ViolationSelfHarm     ViolationType = "self_harm_concern"
)

// Violations found in user messages, highest priority first.
const (
	ViolationMinorContent    ViolationType = "minor_content"
	ViolationSelfHarmIntent  ViolationType = "self_harm"
	ViolationHarmOthers      ViolationType = "harm_others"
	ViolationDoxxingThreats  ViolationType = "doxxing_threats"
	ViolationHatefulContent  ViolationType = "hateful_content"
	ViolationIllegalActivity ViolationType = "illegal_activity"
	ViolationSexualContent   ViolationType = "sexual_content"
	ViolationJailbreak       ViolationType = "jailbreak_attempt"
	ViolationAbusiveLanguage ViolationType = "abusive_language"
)

// Violation is a row of user_violations.
type Violation struct {
	UserID   string
	Type     ViolationType
	Message  string
	Severity string
}

// AccountStanding is the enforcement state of a user account.
type AccountStanding struct {
	Disabled       bool
	SuspendedUntil *time.Time
}

// Suspended reports whether a suspension is still running at now.
func (a *AccountStanding) Suspended(now time.Time) bool {
	return a != nil && a.SuspendedUntil != nil && now.Before(*a.SuspendedUntil)
}
