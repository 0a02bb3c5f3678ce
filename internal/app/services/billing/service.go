// Package billing tracks subscription plans, enforces their limits and
// processes payment provider webhooks.
package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/getdatasurge/frostguard/internal/app/domain/billing"
	"github.com/getdatasurge/frostguard/internal/app/storage"
	"github.com/getdatasurge/frostguard/pkg/logger"
)

// ErrLimitReached is returned when a plan limit blocks the operation.
var ErrLimitReached = errors.New("plan limit reached")

// ErrBadSignature is returned when a webhook payload fails HMAC verification.
var ErrBadSignature = errors.New("invalid webhook signature")

// DefaultTrialPlan is assigned to organizations with no subscription record.
const DefaultTrialPlan = "starter"

// TrialDays is the length of the trial granted on first use.
const TrialDays = 14

// Service manages per-org subscription state.
type Service struct {
	store         storage.SubscriptionStore
	units         storage.UnitStore
	plans         map[string]billing.Plan
	webhookSecret string
	log           *logger.Logger
}

// New constructs a billing service with the provided plan catalog.
func New(store storage.SubscriptionStore, units storage.UnitStore, plans map[string]billing.Plan, webhookSecret string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("billing")
	}
	if plans == nil {
		plans = DefaultPlans()
	}
	return &Service{
		store:         store,
		units:         units,
		plans:         plans,
		webhookSecret: webhookSecret,
		log:           log,
	}
}

// DefaultPlans returns the built-in plan catalog used when no plans file is
// configured.
func DefaultPlans() map[string]billing.Plan {
	return map[string]billing.Plan{
		"starter": {Name: "starter", MaxUnits: 5, SMSCredits: 50, PriceUSDMonthly: 29},
		"pro":     {Name: "pro", MaxUnits: 25, SMSCredits: 500, PriceUSDMonthly: 99},
		"business": {
			Name: "business", MaxUnits: 100, SMSCredits: 2500, PriceUSDMonthly: 299,
		},
	}
}

// LoadPlans reads a plan catalog from a YAML file.
func LoadPlans(path string) (map[string]billing.Plan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Plans []billing.Plan `yaml:"plans"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse plans file: %w", err)
	}
	if len(doc.Plans) == 0 {
		return nil, fmt.Errorf("plans file %s defines no plans", path)
	}
	plans := make(map[string]billing.Plan, len(doc.Plans))
	for _, p := range doc.Plans {
		if p.Name == "" {
			return nil, fmt.Errorf("plans file %s contains a plan without a name", path)
		}
		plans[p.Name] = p
	}
	return plans, nil
}

// Plans returns the catalog sorted by monthly price.
func (s *Service) Plans() []billing.Plan {
	result := make([]billing.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PriceUSDMonthly < result[j].PriceUSDMonthly })
	return result
}

// Plan looks up a plan by name.
func (s *Service) Plan(name string) (billing.Plan, bool) {
	p, ok := s.plans[name]
	return p, ok
}

// Subscription returns the org's subscription, creating a trial record on
// first access.
func (s *Service) Subscription(ctx context.Context, orgID string) (billing.Subscription, error) {
	sub, err := s.store.GetSubscription(ctx, orgID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return billing.Subscription{}, err
	}

	plan := s.plans[DefaultTrialPlan]
	sub = billing.Subscription{
		OrgID:               orgID,
		Plan:                DefaultTrialPlan,
		Status:              billing.StatusTrialing,
		CurrentPeriodEnd:    time.Now().UTC().AddDate(0, 0, TrialDays),
		SMSCreditsRemaining: plan.SMSCredits,
	}
	sub, err = s.store.UpsertSubscription(ctx, sub)
	if err != nil {
		return billing.Subscription{}, err
	}
	s.log.WithField("org_id", orgID).Info("trial subscription started")
	return sub, nil
}

// CheckUnitQuota returns ErrLimitReached when the org already has as many
// units as its plan allows. Canceled subscriptions block new units outright.
func (s *Service) CheckUnitQuota(ctx context.Context, orgID string) error {
	sub, err := s.Subscription(ctx, orgID)
	if err != nil {
		return err
	}
	if sub.Status == billing.StatusCanceled {
		return fmt.Errorf("subscription canceled: %w", ErrLimitReached)
	}

	plan, ok := s.plans[sub.Plan]
	if !ok {
		return fmt.Errorf("unknown plan %q", sub.Plan)
	}
	units, err := s.units.ListUnits(ctx, orgID)
	if err != nil {
		return err
	}
	if len(units) >= plan.MaxUnits {
		return fmt.Errorf("plan %s allows %d units: %w", plan.Name, plan.MaxUnits, ErrLimitReached)
	}
	return nil
}

// ConsumeSMSCredit decrements one SMS credit, returning ErrLimitReached when
// the org has none left.
func (s *Service) ConsumeSMSCredit(ctx context.Context, orgID string) error {
	sub, err := s.Subscription(ctx, orgID)
	if err != nil {
		return err
	}
	if sub.SMSCreditsRemaining <= 0 {
		return fmt.Errorf("sms credits exhausted: %w", ErrLimitReached)
	}
	sub.SMSCreditsRemaining--
	_, err = s.store.UpsertSubscription(ctx, sub)
	return err
}

// WebhookEvent is the subset of the payment provider's event payload the
// service consumes.
type WebhookEvent struct {
	Type string `json:"type"`
	Data struct {
		OrgID            string `json:"org_id"`
		CustomerID       string `json:"customer_id"`
		Plan             string `json:"plan"`
		Status           string `json:"status"`
		CurrentPeriodEnd int64  `json:"current_period_end"`
	} `json:"data"`
}

// VerifySignature checks the provider's HMAC-SHA256 signature over the raw
// payload. Comparison is constant time.
func (s *Service) VerifySignature(payload []byte, signature string) error {
	if s.webhookSecret == "" {
		return fmt.Errorf("billing webhook secret not configured")
	}
	mac := hmac.New(sha256.New, []byte(s.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}

// ProcessWebhook applies a verified provider event to the org's subscription.
func (s *Service) ProcessWebhook(ctx context.Context, payload []byte, signature string) error {
	if err := s.VerifySignature(payload, signature); err != nil {
		return err
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("decode webhook event: %w", err)
	}
	if event.Data.OrgID == "" {
		return fmt.Errorf("webhook event missing org_id")
	}

	switch event.Type {
	case "subscription.created", "subscription.updated":
		return s.applySubscriptionEvent(ctx, event, false)
	case "subscription.canceled", "subscription.deleted":
		return s.applySubscriptionEvent(ctx, event, true)
	case "invoice.paid":
		return s.applyInvoicePaid(ctx, event)
	case "invoice.payment_failed":
		return s.markPastDue(ctx, event.Data.OrgID)
	default:
		s.log.WithField("type", event.Type).Debug("ignoring billing event")
		return nil
	}
}

// applyInvoicePaid reactivates the subscription and restores the plan's
// monthly SMS allowance.
func (s *Service) applyInvoicePaid(ctx context.Context, event WebhookEvent) error {
	sub, err := s.Subscription(ctx, event.Data.OrgID)
	if err != nil {
		return err
	}
	plan, ok := s.plans[sub.Plan]
	if !ok {
		return fmt.Errorf("subscription references unknown plan %q", sub.Plan)
	}
	sub.SMSCreditsRemaining = plan.SMSCredits
	sub.Status = billing.StatusActive
	if event.Data.CurrentPeriodEnd > 0 {
		sub.CurrentPeriodEnd = time.Unix(event.Data.CurrentPeriodEnd, 0).UTC()
	}
	if _, err := s.store.UpsertSubscription(ctx, sub); err != nil {
		return err
	}
	s.log.WithField("org_id", sub.OrgID).
		WithField("plan", sub.Plan).
		Info("invoice paid, sms credits reset")
	return nil
}

func (s *Service) applySubscriptionEvent(ctx context.Context, event WebhookEvent, canceled bool) error {
	sub, err := s.Subscription(ctx, event.Data.OrgID)
	if err != nil {
		return err
	}

	if event.Data.Plan != "" {
		plan, ok := s.plans[event.Data.Plan]
		if !ok {
			return fmt.Errorf("unknown plan %q in billing event", event.Data.Plan)
		}
		// A plan change resets the SMS allowance.
		if sub.Plan != plan.Name {
			sub.SMSCreditsRemaining = plan.SMSCredits
		}
		sub.Plan = plan.Name
	}
	if event.Data.CustomerID != "" {
		sub.ProviderCustomerID = event.Data.CustomerID
	}
	if event.Data.CurrentPeriodEnd > 0 {
		sub.CurrentPeriodEnd = time.Unix(event.Data.CurrentPeriodEnd, 0).UTC()
	}
	if canceled {
		sub.Status = billing.StatusCanceled
	} else if event.Data.Status != "" {
		sub.Status = billing.SubscriptionStatus(event.Data.Status)
	} else {
		sub.Status = billing.StatusActive
	}

	if _, err := s.store.UpsertSubscription(ctx, sub); err != nil {
		return err
	}
	s.log.WithField("org_id", sub.OrgID).
		WithField("plan", sub.Plan).
		WithField("status", string(sub.Status)).
		Info("subscription updated from billing event")
	return nil
}

func (s *Service) markPastDue(ctx context.Context, orgID string) error {
	sub, err := s.Subscription(ctx, orgID)
	if err != nil {
		return err
	}
	sub.Status = billing.StatusPastDue
	_, err = s.store.UpsertSubscription(ctx, sub)
	if err == nil {
		s.log.WithField("org_id", orgID).Warn("subscription past due")
	}
	return err
}
