package billing

import "time"

// SubscriptionStatus mirrors the payment provider's subscription lifecycle.
type SubscriptionStatus string

const (
	StatusTrialing SubscriptionStatus = "trialing"
	StatusActive   SubscriptionStatus = "active"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
)

// Plan describes the limits a subscription tier grants. Plans are loaded from
// configuration, not persisted.
type Plan struct {
	Name            string  `json:"name" yaml:"name"`
	MaxUnits        int     `json:"max_units" yaml:"max_units"`
	SMSCredits      int     `json:"sms_credits" yaml:"sms_credits"`
	PriceUSDMonthly float64 `json:"price_usd_monthly" yaml:"price_usd_monthly"`
}

// Subscription is the per-org billing state, kept in sync by provider
// webhooks.
type Subscription struct {
	OrgID               string             `json:"org_id"`
	Plan                string             `json:"plan"`
	Status              SubscriptionStatus `json:"status"`
	ProviderCustomerID  string             `json:"provider_customer_id,omitempty"`
	CurrentPeriodEnd    time.Time          `json:"current_period_end,omitempty"`
	SMSCreditsRemaining int                `json:"sms_credits_remaining"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}
