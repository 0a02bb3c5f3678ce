package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"github.com/getdatasurge/frostguard/internal/app/domain/billing"
	"github.com/getdatasurge/frostguard/internal/app/domain/unit"
	"github.com/getdatasurge/frostguard/internal/app/storage/memory"
)

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestSubscriptionStartsTrial(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil, "secret", nil)

	sub, err := svc.Subscription(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("Subscription: %v", err)
	}
	if sub.Status != billing.StatusTrialing {
		t.Fatalf("expected trialing, got %s", sub.Status)
	}
	if sub.Plan != DefaultTrialPlan {
		t.Fatalf("expected %s plan, got %s", DefaultTrialPlan, sub.Plan)
	}
	if sub.SMSCreditsRemaining != DefaultPlans()[DefaultTrialPlan].SMSCredits {
		t.Fatalf("unexpected credits %d", sub.SMSCreditsRemaining)
	}
}

func TestCheckUnitQuota(t *testing.T) {
	store := memory.New()
	plans := map[string]billing.Plan{
		"starter": {Name: "starter", MaxUnits: 1, SMSCredits: 10},
	}
	svc := New(store, store, plans, "secret", nil)
	ctx := context.Background()

	if err := svc.CheckUnitQuota(ctx, "org-1"); err != nil {
		t.Fatalf("quota should allow first unit: %v", err)
	}

	store.CreateUnit(ctx, unit.Unit{OrgID: "org-1", Name: "Fridge", Kind: unit.KindFridge})
	if err := svc.CheckUnitQuota(ctx, "org-1"); !errors.Is(err, ErrLimitReached) {
		t.Fatalf("expected ErrLimitReached, got %v", err)
	}
}

func TestConsumeSMSCredit(t *testing.T) {
	store := memory.New()
	plans := map[string]billing.Plan{
		"starter": {Name: "starter", MaxUnits: 5, SMSCredits: 1},
	}
	svc := New(store, store, plans, "secret", nil)
	ctx := context.Background()

	if err := svc.ConsumeSMSCredit(ctx, "org-1"); err != nil {
		t.Fatalf("first credit: %v", err)
	}
	if err := svc.ConsumeSMSCredit(ctx, "org-1"); !errors.Is(err, ErrLimitReached) {
		t.Fatalf("expected ErrLimitReached, got %v", err)
	}
}

func TestProcessWebhookRejectsBadSignature(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil, "secret", nil)

	payload := []byte(`{"type":"subscription.updated","data":{"org_id":"org-1","plan":"pro"}}`)
	err := svc.ProcessWebhook(context.Background(), payload, "deadbeef")
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestProcessWebhookUpgradesPlan(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil, "secret", nil)
	ctx := context.Background()

	payload := []byte(`{"type":"subscription.updated","data":{"org_id":"org-1","plan":"pro","customer_id":"cus_123","status":"active"}}`)
	if err := svc.ProcessWebhook(ctx, payload, sign("secret", payload)); err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}

	sub, err := svc.Subscription(ctx, "org-1")
	if err != nil {
		t.Fatalf("Subscription: %v", err)
	}
	if sub.Plan != "pro" || sub.Status != billing.StatusActive {
		t.Fatalf("unexpected subscription %+v", sub)
	}
	if sub.SMSCreditsRemaining != DefaultPlans()["pro"].SMSCredits {
		t.Fatalf("expected plan change to reset credits, got %d", sub.SMSCreditsRemaining)
	}
	if sub.ProviderCustomerID != "cus_123" {
		t.Fatalf("unexpected customer %q", sub.ProviderCustomerID)
	}
}

func TestProcessWebhookPaymentFailed(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil, "secret", nil)
	ctx := context.Background()

	payload := []byte(`{"type":"invoice.payment_failed","data":{"org_id":"org-1"}}`)
	if err := svc.ProcessWebhook(ctx, payload, sign("secret", payload)); err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}

	sub, _ := svc.Subscription(ctx, "org-1")
	if sub.Status != billing.StatusPastDue {
		t.Fatalf("expected past_due, got %s", sub.Status)
	}
}

func TestProcessWebhookSignaturePrefix(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil, "secret", nil)

	payload := []byte(`{"type":"noop","data":{"org_id":"org-1"}}`)
	sig := "sha256=" + sign("secret", payload)
	if err := svc.ProcessWebhook(context.Background(), payload, sig); err != nil {
		t.Fatalf("prefixed signature should verify: %v", err)
	}
}

func TestProcessWebhookSubscriptionDeleted(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil, "secret", nil)
	ctx := context.Background()

	payload := []byte(`{"type":"subscription.deleted","data":{"org_id":"org-1"}}`)
	if err := svc.ProcessWebhook(ctx, payload, sign("secret", payload)); err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}

	sub, err := svc.Subscription(ctx, "org-1")
	if err != nil {
		t.Fatalf("Subscription: %v", err)
	}
	if sub.Status != billing.StatusCanceled {
		t.Fatalf("expected canceled, got %s", sub.Status)
	}
}

func TestProcessWebhookInvoicePaidResetsCredits(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil, "secret", nil)
	ctx := context.Background()

	if err := svc.ConsumeSMSCredit(ctx, "org-1"); err != nil {
		t.Fatalf("consume credit: %v", err)
	}
	before, _ := svc.Subscription(ctx, "org-1")
	full := DefaultPlans()[DefaultTrialPlan].SMSCredits
	if before.SMSCreditsRemaining != full-1 {
		t.Fatalf("expected %d credits after consume, got %d", full-1, before.SMSCreditsRemaining)
	}

	payload := []byte(`{"type":"invoice.paid","data":{"org_id":"org-1","current_period_end":1790000000}}`)
	if err := svc.ProcessWebhook(ctx, payload, sign("secret", payload)); err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}

	sub, err := svc.Subscription(ctx, "org-1")
	if err != nil {
		t.Fatalf("Subscription: %v", err)
	}
	if sub.SMSCreditsRemaining != full {
		t.Fatalf("expected credits reset to %d, got %d", full, sub.SMSCreditsRemaining)
	}
	if sub.Status != billing.StatusActive {
		t.Fatalf("expected active, got %s", sub.Status)
	}
	if sub.CurrentPeriodEnd.Unix() != 1790000000 {
		t.Fatalf("expected period end applied, got %v", sub.CurrentPeriodEnd)
	}
}

func ExampleService_Plans() {
	svc := New(nil, nil, nil, "", nil)
	for _, p := range svc.Plans() {
		fmt.Printf("%s: %d units, %d sms\n", p.Name, p.MaxUnits, p.SMSCredits)
	}
	// Output:
	// starter: 5 units, 50 sms
	// pro: 25 units, 500 sms
	// business: 100 units, 2500 sms
}
