// internal/workers/communication/send-notification/handler.go
package sendnotification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"oracle-worker/internal/common/logger"
	"oracle-worker/internal/models"

	"github.com/google/uuid"
)

const (
	TaskType = "send-notification"
)

var (
	ErrNotificationSendFailed = errors.New("NOTIFICATION_SEND_FAILED")
)

// Publisher is satisfied by aws.SNSClient.
type Publisher interface {
	PublishJSON(ctx context.Context, eventType, subject string, payload interface{}) (string, error)
}

type Handler struct {
	config    *Config
	publisher Publisher
	logger    logger.Logger
	subjects  map[models.ReasonCode]string
}

// NewHandler builds a notifier. A nil publisher disables sending.
func NewHandler(config *Config, publisher Publisher, log logger.Logger) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	return &Handler{
		config:    config,
		publisher: publisher,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType}),
		subjects:  loadSubjects(),
	}
}

// Execute publishes a billing-blocked notice. Delivery failures are reported
// in the output status and the returned error; callers treat them as best
// effort.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	notificationID := uuid.New().String()
	sentAt := time.Now().UTC().Format(time.RFC3339)

	if !h.config.Enabled || h.publisher == nil {
		return &Output{NotificationID: notificationID, Status: StatusDisabled, SentAt: sentAt}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	subject := renderTemplate(h.subjectFor(input.Reason), map[string]interface{}{
		"kind":   strings.ReplaceAll(string(input.Kind), "_", " "),
		"reason": input.Reason,
	})

	messageID, err := h.publisher.PublishJSON(ctx, EventSubscriptionBlocked, subject, payload{
		NotificationID: notificationID,
		UserIDHash:     input.UserIDHash,
		CustomerID:     input.CustomerID,
		Kind:           input.Kind,
		Reason:         input.Reason,
		Message:        input.Message,
		SentAt:         sentAt,
	})
	if err != nil {
		h.logger.Error("billing notice publish failed", map[string]interface{}{
			"error":  err.Error(),
			"reason": input.Reason,
		})
		return &Output{NotificationID: notificationID, Status: StatusFailed, SentAt: sentAt},
			fmt.Errorf("%w: %v", ErrNotificationSendFailed, err)
	}

	h.logger.Info("billing notice published", map[string]interface{}{
		"notificationId": notificationID,
		"messageId":      messageID,
		"reason":         input.Reason,
	})

	return &Output{NotificationID: notificationID, Status: StatusSent, SentAt: sentAt}, nil
}

func (h *Handler) subjectFor(reason models.ReasonCode) string {
	if s, ok := h.subjects[reason]; ok {
		return s
	}
	return "Your {{kind}} request was blocked ({{reason}})"
}

func loadSubjects() map[models.ReasonCode]string {
	return map[models.ReasonCode]string{
		models.ReasonCanceled:            "Subscription canceled: {{kind}} unavailable",
		models.ReasonExpired:             "Subscription expired: {{kind}} unavailable",
		models.ReasonNotFound:            "No subscription found for {{kind}}",
		models.ReasonNoPaymentMethod:     "Add a payment method to continue",
		models.ReasonCardExpired:         "Your card has expired",
		models.ReasonProviderUnavailable: "Billing check unavailable for {{kind}}",
	}
}

// renderTemplate replaces {{key}} placeholders and drops any left unfilled.
func renderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl
	for k, v := range data {
		value := ""
		if v != nil {
			value = fmt.Sprintf("%v", v)
		}
		result = strings.ReplaceAll(result, "{{"+k+"}}", value)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		end += start + 2
		result = result[:start] + result[end:]
	}
	return result
}
