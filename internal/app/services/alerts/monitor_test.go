package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/getdatasurge/frostguard/internal/app/domain/alert"
	"github.com/getdatasurge/frostguard/internal/app/domain/org"
	"github.com/getdatasurge/frostguard/internal/app/domain/policy"
	"github.com/getdatasurge/frostguard/internal/app/domain/unit"
	"github.com/getdatasurge/frostguard/internal/app/services/policies"
	"github.com/getdatasurge/frostguard/internal/app/storage/memory"
)

type fakeNotifier struct {
	calls []struct {
		alertID string
		level   int
	}
}

func (f *fakeNotifier) NotifyAlert(_ context.Context, a alert.Alert, level int) error {
	f.calls = append(f.calls, struct {
		alertID string
		level   int
	}{a.ID, level})
	return nil
}

type monitorFixture struct {
	store    *memory.Store
	monitor  *Monitor
	notifier *fakeNotifier
	unit     unit.Unit
	now      time.Time
}

func newMonitorFixture(t *testing.T, in policies.Input) *monitorFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	o, err := store.CreateOrg(ctx, org.Organization{Name: "Acme", Slug: "acme"})
	if err != nil {
		t.Fatalf("CreateOrg: %v", err)
	}
	polSvc := policies.New(store, store, store, store, nil)
	if _, err := polSvc.Create(ctx, o.ID, policy.ScopeOrg, "", in); err != nil {
		t.Fatalf("create policy: %v", err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	temp := 4.0
	u, err := store.CreateUnit(ctx, unit.Unit{
		OrgID:         o.ID,
		Name:          "Fridge 1",
		Kind:          unit.KindFridge,
		Status:        unit.StatusOK,
		DeviceID:      "dev-1",
		LastTempC:     &temp,
		LastReadingAt: now,
	})
	if err != nil {
		t.Fatalf("CreateUnit: %v", err)
	}

	notifier := &fakeNotifier{}
	m := NewMonitor(store, store, polSvc, nil)
	m.WithNotifier(notifier)

	f := &monitorFixture{store: store, monitor: m, notifier: notifier, unit: u, now: now}
	m.now = func() time.Time { return f.now }
	return f
}

func (f *monitorFixture) setTemp(t *testing.T, temp float64) {
	t.Helper()
	u, err := f.store.GetUnit(context.Background(), f.unit.ID)
	if err != nil {
		t.Fatalf("GetUnit: %v", err)
	}
	u.LastTempC = &temp
	u.LastReadingAt = f.now
	if _, err := f.store.UpdateUnit(context.Background(), u); err != nil {
		t.Fatalf("UpdateUnit: %v", err)
	}
}

func (f *monitorFixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *monitorFixture) openAlerts(t *testing.T) []alert.Alert {
	t.Helper()
	got, err := f.store.ListUnresolvedAlerts(context.Background())
	if err != nil {
		t.Fatalf("ListUnresolvedAlerts: %v", err)
	}
	return got
}

func TestMonitorOpensHighTempAlertAfterDelay(t *testing.T) {
	f := newMonitorFixture(t, policies.Input{MinTempC: 0, MaxTempC: 5, DelayMinutes: 10, OfflineGraceMinutes: 60, Enabled: true})
	ctx := context.Background()

	f.setTemp(t, 9.5)
	f.monitor.Tick(ctx)

	if got := f.openAlerts(t); len(got) != 0 {
		t.Fatalf("alert should wait for the delay, got %d", len(got))
	}
	u, _ := f.store.GetUnit(ctx, f.unit.ID)
	if u.ExcursionSince.IsZero() {
		t.Fatal("expected excursion clock to start")
	}

	f.advance(11 * time.Minute)
	f.setTemp(t, 9.5)
	f.monitor.Tick(ctx)

	got := f.openAlerts(t)
	if len(got) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(got))
	}
	a := got[0]
	if a.Kind != alert.KindHighTemp || a.Status != alert.StatusOpen {
		t.Fatalf("unexpected alert %+v", a)
	}
	if a.PeakTempC == nil || *a.PeakTempC != 9.5 {
		t.Fatalf("unexpected peak %v", a.PeakTempC)
	}
	if len(f.notifier.calls) != 1 || f.notifier.calls[0].level != 1 {
		t.Fatalf("expected level 1 notification, got %+v", f.notifier.calls)
	}

	u, _ = f.store.GetUnit(ctx, f.unit.ID)
	if u.Status != unit.StatusExcursion {
		t.Fatalf("expected excursion status, got %s", u.Status)
	}
}

func TestMonitorZeroDelayOpensImmediately(t *testing.T) {
	f := newMonitorFixture(t, policies.Input{MinTempC: -25, MaxTempC: -15, DelayMinutes: 0, OfflineGraceMinutes: 60, Enabled: true})
	ctx := context.Background()

	f.setTemp(t, -10)
	f.monitor.Tick(ctx)

	got := f.openAlerts(t)
	if len(got) != 1 || got[0].Kind != alert.KindHighTemp {
		t.Fatalf("expected immediate high temp alert, got %+v", got)
	}
}

func TestMonitorLowTempAndAutoResolve(t *testing.T) {
	f := newMonitorFixture(t, policies.Input{MinTempC: 2, MaxTempC: 8, DelayMinutes: 0, OfflineGraceMinutes: 60, Enabled: true})
	ctx := context.Background()

	f.setTemp(t, 0.5)
	f.monitor.Tick(ctx)

	got := f.openAlerts(t)
	if len(got) != 1 || got[0].Kind != alert.KindLowTemp {
		t.Fatalf("expected low temp alert, got %+v", got)
	}

	f.advance(5 * time.Minute)
	f.setTemp(t, 4.0)
	f.monitor.Tick(ctx)

	if got := f.openAlerts(t); len(got) != 0 {
		t.Fatalf("expected auto-resolve, got %+v", got)
	}
	u, _ := f.store.GetUnit(ctx, f.unit.ID)
	if u.Status != unit.StatusOK || !u.ExcursionSince.IsZero() {
		t.Fatalf("expected cleared excursion state, got %+v", u)
	}
}

func TestMonitorOfflineDetection(t *testing.T) {
	f := newMonitorFixture(t, policies.Input{MinTempC: 0, MaxTempC: 5, OfflineGraceMinutes: 30, Enabled: true})
	ctx := context.Background()

	f.advance(45 * time.Minute)
	f.monitor.Tick(ctx)

	got := f.openAlerts(t)
	if len(got) != 1 || got[0].Kind != alert.KindOffline {
		t.Fatalf("expected offline alert, got %+v", got)
	}
	u, _ := f.store.GetUnit(ctx, f.unit.ID)
	if u.Status != unit.StatusOffline {
		t.Fatalf("expected offline status, got %s", u.Status)
	}

	// The unit reports again in range.
	f.advance(5 * time.Minute)
	f.setTemp(t, 4.0)
	f.monitor.Tick(ctx)

	if got := f.openAlerts(t); len(got) != 0 {
		t.Fatalf("expected offline alert to resolve, got %+v", got)
	}
}

func TestMonitorEscalatesUnacknowledged(t *testing.T) {
	f := newMonitorFixture(t, policies.Input{MinTempC: 0, MaxTempC: 5, AckTimeoutMinutes: 15, RepeatMinutes: 60, OfflineGraceMinutes: 120, Enabled: true})
	ctx := context.Background()

	f.setTemp(t, 9.0)
	f.monitor.Tick(ctx)
	if len(f.notifier.calls) != 1 {
		t.Fatalf("expected initial notification, got %d", len(f.notifier.calls))
	}

	f.advance(16 * time.Minute)
	f.setTemp(t, 9.0)
	f.monitor.Tick(ctx)

	got := f.openAlerts(t)
	if len(got) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(got))
	}
	if got[0].EscalationLevel != 2 {
		t.Fatalf("expected escalation level 2, got %d", got[0].EscalationLevel)
	}
	last := f.notifier.calls[len(f.notifier.calls)-1]
	if last.level != 2 {
		t.Fatalf("expected level 2 notification, got %d", last.level)
	}
}

func TestMonitorAcknowledgeStopsEscalation(t *testing.T) {
	f := newMonitorFixture(t, policies.Input{MinTempC: 0, MaxTempC: 5, AckTimeoutMinutes: 15, RepeatMinutes: 60, OfflineGraceMinutes: 120, Enabled: true})
	ctx := context.Background()

	f.setTemp(t, 9.0)
	f.monitor.Tick(ctx)

	svc := New(f.store, nil)
	open := f.openAlerts(t)[0]
	if _, err := svc.Acknowledge(ctx, open.ID, "jo@acme.test"); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}

	f.advance(30 * time.Minute)
	f.setTemp(t, 9.0)
	f.monitor.Tick(ctx)

	got := f.openAlerts(t)
	if got[0].EscalationLevel != 1 {
		t.Fatalf("acknowledged alert should not escalate, got level %d", got[0].EscalationLevel)
	}
}

func TestMonitorRepeatNotifications(t *testing.T) {
	f := newMonitorFixture(t, policies.Input{MinTempC: 0, MaxTempC: 5, RepeatMinutes: 30, OfflineGraceMinutes: 120, Enabled: true})
	ctx := context.Background()

	f.setTemp(t, 9.0)
	f.monitor.Tick(ctx)

	f.advance(10 * time.Minute)
	f.setTemp(t, 9.0)
	f.monitor.Tick(ctx)
	if len(f.notifier.calls) != 1 {
		t.Fatalf("repeat should wait the cadence, got %d calls", len(f.notifier.calls))
	}

	f.advance(25 * time.Minute)
	f.setTemp(t, 9.0)
	f.monitor.Tick(ctx)
	if len(f.notifier.calls) != 2 {
		t.Fatalf("expected repeat notification, got %d calls", len(f.notifier.calls))
	}
}

func TestMonitorTracksPeak(t *testing.T) {
	f := newMonitorFixture(t, policies.Input{MinTempC: 0, MaxTempC: 5, RepeatMinutes: 60, OfflineGraceMinutes: 120, Enabled: true})
	ctx := context.Background()

	f.setTemp(t, 7.0)
	f.monitor.Tick(ctx)

	f.advance(5 * time.Minute)
	f.setTemp(t, 11.0)
	f.monitor.Tick(ctx)

	got := f.openAlerts(t)
	if got[0].PeakTempC == nil || *got[0].PeakTempC != 11.0 {
		t.Fatalf("expected peak 11.0, got %v", got[0].PeakTempC)
	}
}
