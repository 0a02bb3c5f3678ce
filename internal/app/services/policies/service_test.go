package policies

import (
	"context"
	"errors"
	"testing"

	"github.com/getdatasurge/frostguard/internal/app/domain/org"
	"github.com/getdatasurge/frostguard/internal/app/domain/policy"
	"github.com/getdatasurge/frostguard/internal/app/domain/site"
	"github.com/getdatasurge/frostguard/internal/app/domain/unit"
	"github.com/getdatasurge/frostguard/internal/app/storage/memory"
)

type fixture struct {
	store *memory.Store
	svc   *Service
	org   org.Organization
	site  site.Site
	unit  unit.Unit
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	o, err := store.CreateOrg(ctx, org.Organization{Name: "Acme", Slug: "acme"})
	if err != nil {
		t.Fatalf("CreateOrg: %v", err)
	}
	st, err := store.CreateSite(ctx, site.Site{OrgID: o.ID, Name: "Downtown"})
	if err != nil {
		t.Fatalf("CreateSite: %v", err)
	}
	u, err := store.CreateUnit(ctx, unit.Unit{OrgID: o.ID, SiteID: st.ID, Name: "Fridge 1", Kind: unit.KindFridge})
	if err != nil {
		t.Fatalf("CreateUnit: %v", err)
	}
	return fixture{store: store, svc: New(store, store, store, store, nil), org: o, site: st, unit: u}
}

func TestCreateValidatesThresholds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.org.ID, policy.ScopeOrg, "", Input{MinTempC: 8, MaxTempC: 2, Enabled: true})
	if err == nil {
		t.Fatal("expected inverted thresholds to be rejected")
	}

	_, err = f.svc.Create(ctx, f.org.ID, policy.ScopeOrg, "", Input{MinTempC: 0, MaxTempC: 5, DelayMinutes: -1, Enabled: true})
	if err == nil {
		t.Fatal("expected negative delay to be rejected")
	}
}

func TestResolvePrefersMostSpecificScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, f.org.ID, policy.ScopeOrg, "", Input{MinTempC: 0, MaxTempC: 8, Enabled: true}); err != nil {
		t.Fatalf("create org policy: %v", err)
	}
	if _, err := f.svc.Create(ctx, f.org.ID, policy.ScopeSite, f.site.ID, Input{MinTempC: 0, MaxTempC: 6, Enabled: true}); err != nil {
		t.Fatalf("create site policy: %v", err)
	}

	resolved, err := f.svc.ResolveForUnit(ctx, f.unit)
	if err != nil {
		t.Fatalf("ResolveForUnit: %v", err)
	}
	if resolved.Source != policy.ScopeSite {
		t.Fatalf("expected site scope, got %s", resolved.Source)
	}
	if resolved.Policy.MaxTempC != 6 {
		t.Fatalf("unexpected max temp %v", resolved.Policy.MaxTempC)
	}

	if _, err := f.svc.Create(ctx, f.org.ID, policy.ScopeUnit, f.unit.ID, Input{MinTempC: 1, MaxTempC: 4, Enabled: true}); err != nil {
		t.Fatalf("create unit policy: %v", err)
	}
	resolved, err = f.svc.ResolveForUnit(ctx, f.unit)
	if err != nil {
		t.Fatalf("ResolveForUnit: %v", err)
	}
	if resolved.Source != policy.ScopeUnit || resolved.Policy.MaxTempC != 4 {
		t.Fatalf("expected unit policy, got %+v", resolved)
	}
}

func TestResolveSkipsDisabledPolicies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, f.org.ID, policy.ScopeOrg, "", Input{MinTempC: 0, MaxTempC: 8, Enabled: true}); err != nil {
		t.Fatalf("create org policy: %v", err)
	}
	if _, err := f.svc.Create(ctx, f.org.ID, policy.ScopeUnit, f.unit.ID, Input{MinTempC: 1, MaxTempC: 4, Enabled: false}); err != nil {
		t.Fatalf("create unit policy: %v", err)
	}

	resolved, err := f.svc.ResolveForUnit(ctx, f.unit)
	if err != nil {
		t.Fatalf("ResolveForUnit: %v", err)
	}
	if resolved.Source != policy.ScopeOrg {
		t.Fatalf("disabled unit policy should not shadow org default, got %s", resolved.Source)
	}
}

func TestResolveNoPolicy(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ResolveForUnit(context.Background(), f.unit)
	if !errors.Is(err, ErrNoPolicy) {
		t.Fatalf("expected ErrNoPolicy, got %v", err)
	}
}

func TestResolveAppliesCadenceDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, f.org.ID, policy.ScopeOrg, "", Input{MinTempC: 0, MaxTempC: 8, Enabled: true}); err != nil {
		t.Fatalf("create org policy: %v", err)
	}

	resolved, err := f.svc.ResolveForUnit(ctx, f.unit)
	if err != nil {
		t.Fatalf("ResolveForUnit: %v", err)
	}
	if resolved.Policy.RepeatMinutes != DefaultRepeatMinutes {
		t.Fatalf("expected default repeat, got %d", resolved.Policy.RepeatMinutes)
	}
	if resolved.Policy.OfflineGraceMinutes != DefaultOfflineGraceMinutes {
		t.Fatalf("expected default offline grace, got %d", resolved.Policy.OfflineGraceMinutes)
	}
}

func TestCreateRejectsCrossOrgScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other, _ := f.store.CreateOrg(ctx, org.Organization{Name: "Other", Slug: "other"})
	if _, err := f.svc.Create(ctx, other.ID, policy.ScopeUnit, f.unit.ID, Input{MinTempC: 0, MaxTempC: 5, Enabled: true}); err == nil {
		t.Fatal("expected cross-org unit scope to be rejected")
	}
}
