// internal/workers/communication/send-notification/models.go
package sendnotification

import "oracle-worker/internal/models"

type Input struct {
	UserIDHash string            `json:"userIdHash"`
	CustomerID string            `json:"customerId,omitempty"`
	Kind       models.JobKind    `json:"kind"`
	Reason     models.ReasonCode `json:"reason"`
	Message    string            `json:"message"`
}

type Output struct {
	NotificationID string `json:"notificationId"`
	Status         string `json:"status"` // "sent", "failed", "disabled"
	SentAt         string `json:"sentAt"` // ISO 8601
}

// Event types
const (
	EventSubscriptionBlocked = "subscription.blocked"
)

// Statuses
const (
	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
)

// payload is the JSON body published to the topic.
type payload struct {
	NotificationID string            `json:"notificationId"`
	UserIDHash     string            `json:"userIdHash"`
	CustomerID     string            `json:"customerId,omitempty"`
	Kind           models.JobKind    `json:"kind"`
	Reason         models.ReasonCode `json:"reason"`
	Message        string            `json:"message"`
	SentAt         string            `json:"sentAt"`
}
