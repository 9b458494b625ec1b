// internal/models/subscription.go
package models

import "time"

// SubscriptionStatus mirrors the billing provider's subscription state.
type SubscriptionStatus string

const (
	SubscriptionActive            SubscriptionStatus = "active"
	SubscriptionTrialing          SubscriptionStatus = "trialing"
	SubscriptionCanceled          SubscriptionStatus = "canceled"
	SubscriptionPastDue           SubscriptionStatus = "past_due"
	SubscriptionUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionPaused            SubscriptionStatus = "paused"
	// SubscriptionNone is used when the customer has no subscription at all.
	SubscriptionNone SubscriptionStatus = "none"
	// SubscriptionUnknown is used when the provider could not be asked.
	SubscriptionUnknown SubscriptionStatus = "unknown"
)

// ReasonCode explains why a customer is not healthy.
type ReasonCode string

const (
	ReasonNone                ReasonCode = ""
	ReasonExpired             ReasonCode = "expired"
	ReasonCanceled            ReasonCode = "canceled"
	ReasonNoPaymentMethod     ReasonCode = "no_payment_method"
	ReasonCardExpired         ReasonCode = "card_expired"
	ReasonNotFound            ReasonCode = "not_found"
	ReasonProviderUnavailable ReasonCode = "provider_unavailable"
)

// BillingSubscription is the provider's view of a subscription.
type BillingSubscription struct {
	ID                 string             `json:"id"`
	Status             SubscriptionStatus `json:"status"`
	CurrentPeriodStart int64              `json:"current_period_start"`
	CurrentPeriodEnd   int64              `json:"current_period_end"`
	CancelAtPeriodEnd  bool               `json:"cancel_at_period_end"`
	CanceledAt         int64              `json:"canceled_at,omitempty"`
}

// BillingPaymentMethod is the provider's view of the default payment method.
type BillingPaymentMethod struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Card *struct {
		ExpMonth int    `json:"exp_month"`
		ExpYear  int    `json:"exp_year"`
		Last4    string `json:"last4"`
	} `json:"card,omitempty"`
}

type SubscriptionDetail struct {
	CurrentPeriodStart time.Time  `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time  `json:"currentPeriodEnd"`
	CancelAtPeriodEnd  bool       `json:"cancelAtPeriodEnd"`
	CanceledAt         *time.Time `json:"canceledAt,omitempty"`
}

type SubscriptionValidationResult struct {
	Valid        bool                `json:"valid"`
	Status       SubscriptionStatus  `json:"status"`
	Reason       ReasonCode          `json:"reason,omitempty"`
	Subscription *SubscriptionDetail `json:"subscription,omitempty"`
}

type PaymentMethodValidationResult struct {
	Valid    bool       `json:"valid"`
	Reason   ReasonCode `json:"reason,omitempty"`
	LastFour string     `json:"lastFour,omitempty"`
}

// HealthResult combines subscription and payment method checks.
type HealthResult struct {
	Healthy        bool                          `json:"healthy"`
	BlockedReason  ReasonCode                    `json:"blockedReason,omitempty"`
	BlockedMessage string                        `json:"blockedMessage,omitempty"`
	Subscription   SubscriptionValidationResult  `json:"subscription"`
	PaymentMethod  PaymentMethodValidationResult `json:"paymentMethod"`
	CheckedAt      time.Time                     `json:"checkedAt"`
	FromCache      bool                          `json:"-"`
}
