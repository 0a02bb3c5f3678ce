package app

import (
	"context"
	"testing"
)

func TestNewDefaultsToMemoryStores(t *testing.T) {
	application, err := New(Stores{}, Options{}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}

	ctx := context.Background()
	o, err := application.Orgs.Create(ctx, "Acme Cold Chain", "", "ops@acme.test", "UTC", 7)
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	if o.Slug == "" {
		t.Fatal("expected generated slug")
	}

	sub, err := application.Billing.Subscription(ctx, o.ID)
	if err != nil {
		t.Fatalf("subscription: %v", err)
	}
	if sub.Plan == "" {
		t.Fatal("expected a trial subscription plan")
	}
}

func TestApplicationStartStop(t *testing.T) {
	application, err := New(Stores{}, Options{}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}

	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := application.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	health := application.Health()
	if len(health.Services) == 0 {
		t.Fatal("expected registered services in health snapshot")
	}
}
