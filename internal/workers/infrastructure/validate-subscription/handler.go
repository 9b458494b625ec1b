// internal/workers/infrastructure/validate-subscription/handler.go
package validatesubscription

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	commonerrors "oracle-worker/internal/common/errors"
	"oracle-worker/internal/common/logger"
	"oracle-worker/internal/common/metrics"
	"oracle-worker/internal/models"
)

const (
	TaskType = "validate-subscription"

	// SignatureHeader carries the hex HMAC-SHA256 of the webhook body.
	SignatureHeader = "X-Billing-Signature"
	maxWebhookBody  = 1 << 20
)

var ErrSubscriptionDenied = errors.New("SUBSCRIPTION_DENIED")

type Handler struct {
	config    *Config
	validator *Validator
	resolver  CustomerResolver
	logger    logger.Logger
}

func NewHandler(config *Config, validator *Validator, resolver CustomerResolver, log logger.Logger) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	return &Handler{
		config:    config,
		validator: validator,
		resolver:  resolver,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

// Execute decides whether input.UserID may run a gated action. A denial is
// returned as a VALIDATION_DENIED StandardError together with the output that
// explains it.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if h.config.TrialUserPrefix != "" && strings.HasPrefix(input.UserID, h.config.TrialUserPrefix) {
		return &Output{Allowed: true, Trial: true}, nil
	}

	customerID, err := h.resolver.ResolveCustomerID(ctx, input.UserID)
	if err != nil {
		// Fail closed when the customer cannot be looked up.
		h.logger.Error("Failed to resolve billing customer", map[string]interface{}{
			"userId": input.UserID,
			"error":  err.Error(),
		})
		health := &models.HealthResult{
			BlockedReason:  models.ReasonProviderUnavailable,
			BlockedMessage: BlockedMessage(models.ReasonProviderUnavailable),
			Subscription: models.SubscriptionValidationResult{
				Status: models.SubscriptionUnknown,
				Reason: models.ReasonProviderUnavailable,
			},
		}
		return h.deny(input, "", health)
	}

	health, err := h.validator.CheckSubscriptionHealth(ctx, customerID)
	if err != nil {
		h.logger.Warn("Subscription check ran without cache", map[string]interface{}{
			"customerId": customerID,
			"error":      err.Error(),
		})
	}

	if !health.Healthy {
		return h.deny(input, customerID, health)
	}
	return &Output{Allowed: true, CustomerID: customerID, Health: health}, nil
}

func (h *Handler) deny(input *Input, customerID string, health *models.HealthResult) (*Output, error) {
	metrics.SubscriptionDenials.WithLabelValues(string(health.BlockedReason)).Inc()
	h.logger.Info("Gated action denied", map[string]interface{}{
		"userId":     input.UserID,
		"customerId": customerID,
		"reason":     string(health.BlockedReason),
		"fromCache":  health.FromCache,
	})

	out := &Output{CustomerID: customerID, Health: health}
	stdErr := commonerrors.NewValidationDeniedError(string(health.BlockedReason), health.BlockedMessage)
	stdErr.Details = ErrSubscriptionDenied.Error() + ": " + string(health.BlockedReason)
	return out, stdErr
}

// ==========================
// Webhook
// ==========================

// WebhookHandler invalidates cached health when the billing provider reports
// a change for a customer.
type WebhookHandler struct {
	validator *Validator
	secret    []byte
	logger    logger.Logger
}

func NewWebhookHandler(validator *Validator, secret string, log logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		validator: validator,
		secret:    []byte(secret),
		logger:    log.WithFields(map[string]interface{}{"component": "billing-webhook"}),
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	if len(h.secret) > 0 && !h.verify(body, r.Header.Get(SignatureHeader)) {
		h.logger.Warn("Rejected webhook with bad signature", map[string]interface{}{
			"remoteAddr": r.RemoteAddr,
		})
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		return
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil || event.Type == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event"})
		return
	}

	if !invalidatingEvents[event.Type] {
		writeJSON(w, http.StatusOK, map[string]interface{}{"received": true, "invalidated": false})
		return
	}

	customerID := event.CustomerID()
	if customerID == "" {
		h.logger.Warn("Webhook event without customer", map[string]interface{}{
			"eventId":   event.ID,
			"eventType": event.Type,
		})
		writeJSON(w, http.StatusOK, map[string]interface{}{"received": true, "invalidated": false})
		return
	}

	if err := h.validator.Invalidate(r.Context(), customerID); err != nil {
		h.logger.Error("Failed to invalidate subscription cache", map[string]interface{}{
			"eventId":    event.ID,
			"eventType":  event.Type,
			"customerId": customerID,
			"error":      err.Error(),
		})
		// A non-2xx answer makes the provider retry the delivery.
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "invalidation failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"received": true, "invalidated": true})
}

func (h *WebhookHandler) verify(body []byte, signature string) bool {
	want, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(want) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// Sign returns the signature header value for body. Producers and tests use it.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
