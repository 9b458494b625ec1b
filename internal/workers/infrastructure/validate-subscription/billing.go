// internal/workers/infrastructure/validate-subscription/billing.go
package validatesubscription

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	commonhttp "oracle-worker/internal/common/http"
	"oracle-worker/internal/models"
)

var (
	// ErrCustomerNotFound means the provider answered 404 for the customer.
	ErrCustomerNotFound = errors.New("CUSTOMER_NOT_FOUND")
	// ErrBillingUnavailable covers network failures, timeouts and 5xx answers.
	ErrBillingUnavailable = errors.New("BILLING_UNAVAILABLE")
)

// BillingClient reads subscription state from the billing provider.
type BillingClient interface {
	GetSubscription(ctx context.Context, customerID string) (*models.BillingSubscription, error)
	GetPaymentMethod(ctx context.Context, customerID string) (*models.BillingPaymentMethod, error)
}

type HTTPBillingClient struct {
	client *commonhttp.Client
}

func NewHTTPBillingClient(baseURL, apiKey string, timeout time.Duration) *HTTPBillingClient {
	return &HTTPBillingClient{
		client: commonhttp.NewClient(baseURL, timeout).WithBearerToken(apiKey),
	}
}

func (c *HTTPBillingClient) GetSubscription(ctx context.Context, customerID string) (*models.BillingSubscription, error) {
	var sub models.BillingSubscription
	if err := c.client.DoJSON(ctx, http.MethodGet, customerPath(customerID, "subscription"), nil, &sub); err != nil {
		return nil, classify(err)
	}
	return &sub, nil
}

func (c *HTTPBillingClient) GetPaymentMethod(ctx context.Context, customerID string) (*models.BillingPaymentMethod, error) {
	var pm models.BillingPaymentMethod
	if err := c.client.DoJSON(ctx, http.MethodGet, customerPath(customerID, "payment-method"), nil, &pm); err != nil {
		return nil, classify(err)
	}
	return &pm, nil
}

func customerPath(customerID, resource string) string {
	return "/v1/customers/" + url.PathEscape(customerID) + "/" + resource
}

// classify keeps "not found" apart from every other failure. Anything that is
// not a definite 404 is treated as the provider being unavailable.
func classify(err error) error {
	var statusErr *commonhttp.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return ErrCustomerNotFound
	}
	return fmt.Errorf("%w: %v", ErrBillingUnavailable, err)
}
