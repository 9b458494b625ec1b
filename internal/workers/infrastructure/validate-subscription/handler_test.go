// internal/workers/infrastructure/validate-subscription/handler_test.go
package validatesubscription

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	commonerrors "oracle-worker/internal/common/errors"
	"oracle-worker/internal/common/logger"
	"oracle-worker/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type staticResolver map[string]string

func (r staticResolver) ResolveCustomerID(_ context.Context, userID string) (string, error) {
	return r[userID], nil
}

type brokenResolver struct{}

func (brokenResolver) ResolveCustomerID(context.Context, string) (string, error) {
	return "", errors.New("connection reset")
}

func createTestHandler(t *testing.T, billing BillingClient, resolver CustomerResolver) *Handler {
	t.Helper()
	v, _ := createTestValidator(t, billing)
	return NewHandler(createTestConfig(), v, resolver, logger.NewTestLogger(t))
}

// ==========================
// Execute
// ==========================

func TestHandler_Execute(t *testing.T) {
	billing := newFakeBilling()
	billing.setStatus("cus_ok", models.SubscriptionActive)
	billing.setCard("cus_ok", 2027, 1)
	billing.setStatus("cus_gone", models.SubscriptionCanceled)
	billing.setCard("cus_gone", 2027, 1)

	handler := createTestHandler(t, billing, staticResolver{
		"u-ok":   "cus_ok",
		"u-gone": "cus_gone",
	})
	ctx := context.Background()

	t.Run("healthy customer is allowed", func(t *testing.T) {
		out, err := handler.Execute(ctx, &Input{UserID: "u-ok"})
		require.NoError(t, err)
		assert.True(t, out.Allowed)
		assert.Equal(t, "cus_ok", out.CustomerID)
		assert.True(t, out.Health.Healthy)
	})

	t.Run("canceled customer is denied", func(t *testing.T) {
		out, err := handler.Execute(ctx, &Input{UserID: "u-gone"})
		require.Error(t, err)

		var stdErr *commonerrors.StandardError
		require.True(t, errors.As(err, &stdErr))
		assert.Equal(t, commonerrors.ErrCodeValidationDenied, stdErr.Code)
		assert.Equal(t, string(models.ReasonCanceled), stdErr.Metadata["reason"])
		assert.Equal(t, BlockedMessage(models.ReasonCanceled), stdErr.Message)

		require.NotNil(t, out)
		assert.False(t, out.Allowed)
		assert.Equal(t, models.ReasonCanceled, out.Health.BlockedReason)
	})

	t.Run("user without billing customer is denied", func(t *testing.T) {
		calls := billing.calls()
		out, err := handler.Execute(ctx, &Input{UserID: "u-unknown"})
		require.Error(t, err)
		assert.Equal(t, models.ReasonNotFound, out.Health.BlockedReason)
		assert.Equal(t, calls, billing.calls())
	})

	t.Run("trial users bypass the check", func(t *testing.T) {
		calls := billing.calls()
		out, err := handler.Execute(ctx, &Input{UserID: "temp_abc123"})
		require.NoError(t, err)
		assert.True(t, out.Allowed)
		assert.True(t, out.Trial)
		assert.Equal(t, calls, billing.calls())
	})
}

func TestHandler_Execute_ResolverFailureFailsClosed(t *testing.T) {
	handler := createTestHandler(t, newFakeBilling(), brokenResolver{})

	out, err := handler.Execute(context.Background(), &Input{UserID: "u-1"})
	require.Error(t, err)
	assert.False(t, out.Allowed)
	assert.Equal(t, models.ReasonProviderUnavailable, out.Health.BlockedReason)
}

// ==========================
// Customer Resolver
// ==========================

func TestSQLCustomerResolver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	resolver := NewSQLCustomerResolver(db)
	ctx := context.Background()
	query := `SELECT customer_id FROM billing_customers WHERE user_id = \$1`

	mock.ExpectQuery(query).WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id"}).AddRow("cus_1"))
	id, err := resolver.ResolveCustomerID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", id)

	mock.ExpectQuery(query).WithArgs("u-2").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id"}))
	id, err = resolver.ResolveCustomerID(ctx, "u-2")
	require.NoError(t, err)
	assert.Empty(t, id)

	mock.ExpectQuery(query).WithArgs("u-3").WillReturnError(errors.New("connection refused"))
	_, err = resolver.ResolveCustomerID(ctx, "u-3")
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Webhook
// ==========================

func TestWebhookHandler(t *testing.T) {
	const secret = "whsec_test"

	tests := []struct {
		name            string
		body            string
		sign            bool
		wantStatus      int
		wantInvalidated bool
	}{
		{
			name:            "subscription deleted invalidates",
			body:            `{"id":"evt_1","type":"customer.subscription.deleted","data":{"object":{"id":"sub_1","customer":"cus_1"}}}`,
			sign:            true,
			wantStatus:      http.StatusOK,
			wantInvalidated: true,
		},
		{
			name:            "payment failed invalidates",
			body:            `{"id":"evt_2","type":"invoice.payment_failed","data":{"object":{"id":"in_1","customer":"cus_1"}}}`,
			sign:            true,
			wantStatus:      http.StatusOK,
			wantInvalidated: true,
		},
		{
			name:       "unrelated event is acknowledged",
			body:       `{"id":"evt_3","type":"charge.refunded","data":{"object":{"id":"ch_1","customer":"cus_1"}}}`,
			sign:       true,
			wantStatus: http.StatusOK,
		},
		{
			name:       "bad signature",
			body:       `{"id":"evt_4","type":"customer.subscription.deleted","data":{"object":{"customer":"cus_1"}}}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed body",
			body:       `{"type":`,
			sign:       true,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			billing := newFakeBilling()
			billing.setStatus("cus_1", models.SubscriptionActive)
			billing.setCard("cus_1", 2027, 1)
			v, store := createTestValidator(t, billing)
			ctx := context.Background()

			_, err := v.CheckSubscriptionHealth(ctx, "cus_1")
			require.NoError(t, err)
			require.Equal(t, 1, store.Len())

			req := httptest.NewRequest(http.MethodPost, "/webhooks/billing", bytes.NewBufferString(tt.body))
			if tt.sign {
				req.Header.Set(SignatureHeader, Sign(secret, []byte(tt.body)))
			} else {
				req.Header.Set(SignatureHeader, "deadbeef")
			}
			rec := httptest.NewRecorder()

			NewWebhookHandler(v, secret, logger.NewTestLogger(t)).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			cached, _ := store.Get(ctx, "cus_1")
			assert.Equal(t, tt.wantInvalidated, cached == nil)
		})
	}
}

func TestWebhookEvent_CustomerID(t *testing.T) {
	var e WebhookEvent
	e.Type = "customer.updated"
	e.Data.Object.ID = "cus_9"
	assert.Equal(t, "cus_9", e.CustomerID())

	e.Type = "invoice.payment_failed"
	assert.Empty(t, e.CustomerID())

	e.Data.Object.Customer = "cus_1"
	assert.Equal(t, "cus_1", e.CustomerID())
}

// ==========================
// Invalidation Bus
// ==========================

func TestInvalidationBus(t *testing.T) {
	_, rdb := newMiniRedis(t)
	log := logger.NewTestLogger(t)

	local, err := NewMemoryStore(10, time.Minute)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err = local.Put(ctx, "cus_1", healthyResult(), 0)
	require.NoError(t, err)

	bus := NewInvalidationBus(rdb, "subscription:invalidate", log)
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- bus.Listen(ctx, local, ready) }()
	<-ready

	billing := newFakeBilling()
	publisherStore, err := NewMemoryStore(10, time.Minute)
	require.NoError(t, err)
	v := NewValidator(createTestConfig(), billing, publisherStore, log).WithBroadcaster(bus)

	require.NoError(t, v.Invalidate(ctx, "cus_1"))

	require.Eventually(t, func() bool {
		got, _ := local.Get(ctx, "cus_1")
		return got == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
