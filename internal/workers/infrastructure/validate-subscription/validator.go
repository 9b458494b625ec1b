// internal/workers/infrastructure/validate-subscription/validator.go
package validatesubscription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"oracle-worker/internal/common/logger"
	"oracle-worker/internal/common/metrics"
	"oracle-worker/internal/models"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var blockedMessages = map[models.ReasonCode]string{
	models.ReasonExpired:             "Your subscription is no longer active. Please renew it to continue.",
	models.ReasonCanceled:            "Your subscription has been canceled. Please resubscribe to continue.",
	models.ReasonNoPaymentMethod:     "No payment method on file. Please add one to continue.",
	models.ReasonCardExpired:         "Your card on file has expired. Please update your payment method.",
	models.ReasonNotFound:            "No subscription found. Please subscribe to continue.",
	models.ReasonProviderUnavailable: "We could not verify your subscription right now. Please try again shortly.",
}

// BlockedMessage returns the user-facing text for reason.
func BlockedMessage(reason models.ReasonCode) string {
	if msg, ok := blockedMessages[reason]; ok {
		return msg
	}
	return "Your subscription needs attention. Please review your billing details."
}

// Validator answers whether a customer may use gated features.
type Validator struct {
	config      *Config
	billing     BillingClient
	store       Store
	broadcaster Broadcaster
	group       singleflight.Group
	logger      logger.Logger
	now         func() time.Time
}

func NewValidator(config *Config, billing BillingClient, store Store, log logger.Logger) *Validator {
	if config == nil {
		config = LoadConfig()
	}
	return &Validator{
		config:  config,
		billing: billing,
		store:   store,
		logger:  log.WithFields(map[string]interface{}{"component": "subscription-validator"}),
		now:     time.Now,
	}
}

// WithBroadcaster makes Invalidate notify other workers as well.
func (v *Validator) WithBroadcaster(b Broadcaster) *Validator {
	v.broadcaster = b
	return v
}

// CheckSubscriptionHealth returns the combined subscription and payment
// method health for customerID. The result is never nil. A non-nil error
// means the cache could not be used; the result then comes from a live check.
func (v *Validator) CheckSubscriptionHealth(ctx context.Context, customerID string) (*models.HealthResult, error) {
	if strings.TrimSpace(customerID) == "" {
		return v.notFound(), nil
	}

	var cacheErr error
	cached, err := v.store.Get(ctx, customerID)
	switch {
	case err != nil:
		cacheErr = err
		metrics.SubscriptionCacheRequests.WithLabelValues("error").Inc()
		v.logger.Warn("Subscription cache read failed, checking live", map[string]interface{}{
			"customerId": customerID,
			"error":      err.Error(),
		})
	case cached != nil && v.fresh(cached):
		metrics.SubscriptionCacheRequests.WithLabelValues("hit").Inc()
		cached.FromCache = true
		return cached, nil
	case cached != nil:
		metrics.SubscriptionCacheRequests.WithLabelValues("stale").Inc()
	default:
		metrics.SubscriptionCacheRequests.WithLabelValues("miss").Inc()
	}

	res, _, _ := v.group.Do(customerID, func() (interface{}, error) {
		// Shared by every waiter, so it must not die with the first caller.
		liveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.config.Timeout)
		defer cancel()
		return v.refresh(liveCtx, customerID), nil
	})

	result := *res.(*models.HealthResult)
	return &result, cacheErr
}

func (v *Validator) fresh(result *models.HealthResult) bool {
	return v.now().Sub(result.CheckedAt) < v.config.CacheTTL
}

// refresh runs a live check and caches it unless the customer was
// invalidated in the meantime.
func (v *Validator) refresh(ctx context.Context, customerID string) *models.HealthResult {
	generation, genErr := v.store.Generation(ctx, customerID)

	var (
		sub models.SubscriptionValidationResult
		pm  models.PaymentMethodValidationResult
	)
	var g errgroup.Group
	g.Go(func() error {
		sub = v.ValidateSubscriptionStatus(ctx, customerID)
		return nil
	})
	g.Go(func() error {
		pm = v.ValidatePaymentMethod(ctx, customerID)
		return nil
	})
	_ = g.Wait()

	result := v.combine(sub, pm)

	if result.BlockedReason == models.ReasonProviderUnavailable || genErr != nil {
		return result
	}
	stored, err := v.store.Put(ctx, customerID, result, generation)
	switch {
	case err != nil:
		v.logger.Warn("Failed to cache subscription health", map[string]interface{}{
			"customerId": customerID,
			"error":      err.Error(),
		})
	case !stored:
		v.logger.Debug("Customer invalidated during live check, result not cached", map[string]interface{}{
			"customerId": customerID,
		})
	}
	return result
}

func (v *Validator) combine(sub models.SubscriptionValidationResult, pm models.PaymentMethodValidationResult) *models.HealthResult {
	result := &models.HealthResult{
		Healthy:       sub.Valid && pm.Valid,
		Subscription:  sub,
		PaymentMethod: pm,
		CheckedAt:     v.now().UTC(),
	}
	if result.Healthy {
		return result
	}

	switch {
	case sub.Reason == models.ReasonProviderUnavailable || pm.Reason == models.ReasonProviderUnavailable:
		result.BlockedReason = models.ReasonProviderUnavailable
	case !sub.Valid:
		result.BlockedReason = sub.Reason
	default:
		result.BlockedReason = pm.Reason
	}
	result.BlockedMessage = BlockedMessage(result.BlockedReason)
	return result
}

// ValidateSubscriptionStatus asks the provider for the customer's subscription.
func (v *Validator) ValidateSubscriptionStatus(ctx context.Context, customerID string) models.SubscriptionValidationResult {
	sub, err := v.billing.GetSubscription(ctx, customerID)
	switch {
	case errors.Is(err, ErrCustomerNotFound):
		return models.SubscriptionValidationResult{
			Status: models.SubscriptionNone,
			Reason: models.ReasonNotFound,
		}
	case err != nil:
		v.logger.Warn("Billing provider unavailable for subscription", map[string]interface{}{
			"customerId": customerID,
			"error":      err.Error(),
		})
		return models.SubscriptionValidationResult{
			Status: models.SubscriptionUnknown,
			Reason: models.ReasonProviderUnavailable,
		}
	case sub.Status == "":
		v.logger.Warn("Billing provider returned a subscription without status", map[string]interface{}{
			"customerId": customerID,
		})
		return models.SubscriptionValidationResult{
			Status: models.SubscriptionUnknown,
			Reason: models.ReasonProviderUnavailable,
		}
	}

	result := models.SubscriptionValidationResult{
		Valid:        v.config.accepts(sub.Status),
		Status:       sub.Status,
		Subscription: subscriptionDetail(sub),
	}
	if !result.Valid {
		result.Reason = reasonForStatus(sub.Status)
	}
	return result
}

func reasonForStatus(status models.SubscriptionStatus) models.ReasonCode {
	switch status {
	case models.SubscriptionCanceled:
		return models.ReasonCanceled
	case models.SubscriptionNone:
		return models.ReasonNotFound
	default:
		return models.ReasonExpired
	}
}

func subscriptionDetail(sub *models.BillingSubscription) *models.SubscriptionDetail {
	detail := &models.SubscriptionDetail{
		CurrentPeriodStart: time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:   time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
	}
	if sub.CanceledAt > 0 {
		at := time.Unix(sub.CanceledAt, 0).UTC()
		detail.CanceledAt = &at
	}
	return detail
}

// ValidatePaymentMethod checks that the customer has a usable default
// payment method.
func (v *Validator) ValidatePaymentMethod(ctx context.Context, customerID string) models.PaymentMethodValidationResult {
	pm, err := v.billing.GetPaymentMethod(ctx, customerID)
	switch {
	case errors.Is(err, ErrCustomerNotFound):
		return models.PaymentMethodValidationResult{Reason: models.ReasonNoPaymentMethod}
	case err != nil:
		v.logger.Warn("Billing provider unavailable for payment method", map[string]interface{}{
			"customerId": customerID,
			"error":      err.Error(),
		})
		return models.PaymentMethodValidationResult{Reason: models.ReasonProviderUnavailable}
	case pm.ID == "":
		return models.PaymentMethodValidationResult{Reason: models.ReasonNoPaymentMethod}
	}

	if pm.Type == "card" && pm.Card != nil {
		if cardExpired(pm.Card.ExpYear, pm.Card.ExpMonth, v.now()) {
			return models.PaymentMethodValidationResult{
				Reason:   models.ReasonCardExpired,
				LastFour: pm.Card.Last4,
			}
		}
		return models.PaymentMethodValidationResult{Valid: true, LastFour: pm.Card.Last4}
	}
	return models.PaymentMethodValidationResult{Valid: true}
}

// cardExpired reports whether a card is past its expiry month. A card is
// usable through the end of its expiry month.
func cardExpired(expYear, expMonth int, now time.Time) bool {
	year, month := now.Year(), int(now.Month())
	return expYear < year || (expYear == year && expMonth < month)
}

// Invalidate drops the cached health for customerID and tells other workers
// to do the same.
func (v *Validator) Invalidate(ctx context.Context, customerID string) error {
	if strings.TrimSpace(customerID) == "" {
		return nil
	}
	if err := v.store.Invalidate(ctx, customerID); err != nil {
		return err
	}
	if v.broadcaster != nil {
		if err := v.broadcaster.Broadcast(ctx, customerID); err != nil {
			return fmt.Errorf("broadcast invalidation: %w", err)
		}
	}
	v.logger.Info("Subscription cache invalidated", map[string]interface{}{"customerId": customerID})
	return nil
}

func (v *Validator) notFound() *models.HealthResult {
	return &models.HealthResult{
		BlockedReason:  models.ReasonNotFound,
		BlockedMessage: BlockedMessage(models.ReasonNotFound),
		Subscription: models.SubscriptionValidationResult{
			Status: models.SubscriptionNone,
			Reason: models.ReasonNotFound,
		},
		PaymentMethod: models.PaymentMethodValidationResult{Reason: models.ReasonNoPaymentMethod},
		CheckedAt:     v.now().UTC(),
	}
}
