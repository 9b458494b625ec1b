// internal/workers/infrastructure/validate-subscription/models.go
package validatesubscription

import "oracle-worker/internal/models"

type Input struct {
	UserID string `json:"userId"`
}

type Output struct {
	Allowed    bool                 `json:"allowed"`
	Trial      bool                 `json:"trial"`
	CustomerID string               `json:"customerId,omitempty"`
	Health     *models.HealthResult `json:"health,omitempty"`
}

// WebhookEvent is the subset of a billing provider event needed to find the
// affected customer.
type WebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string `json:"id"`
			Customer string `json:"customer"`
		} `json:"object"`
	} `json:"data"`
}

// CustomerID returns the customer the event refers to. Customer objects carry
// their own id rather than a customer reference.
func (e *WebhookEvent) CustomerID() string {
	if e.Data.Object.Customer != "" {
		return e.Data.Object.Customer
	}
	if len(e.Type) > len("customer.") && e.Type[:len("customer.")] == "customer." {
		return e.Data.Object.ID
	}
	return ""
}

// invalidatingEvents lists the event types that can change a customer's health.
var invalidatingEvents = map[string]bool{
	"customer.subscription.created":        true,
	"customer.subscription.updated":        true,
	"customer.subscription.deleted":        true,
	"customer.subscription.paused":         true,
	"customer.subscription.resumed":        true,
	"invoice.payment_succeeded":            true,
	"invoice.payment_failed":               true,
	"payment_method.attached":              true,
	"payment_method.detached":              true,
	"payment_method.updated":               true,
	"payment_method.automatically_updated": true,
}
