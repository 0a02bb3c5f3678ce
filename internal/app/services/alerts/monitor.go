package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/getdatasurge/frostguard/internal/app/domain/alert"
	"github.com/getdatasurge/frostguard/internal/app/domain/policy"
	"github.com/getdatasurge/frostguard/internal/app/domain/unit"
	"github.com/getdatasurge/frostguard/internal/app/metrics"
	"github.com/getdatasurge/frostguard/internal/app/services/policies"
	"github.com/getdatasurge/frostguard/internal/app/storage"
	"github.com/getdatasurge/frostguard/internal/app/system"
	"github.com/getdatasurge/frostguard/pkg/logger"
)

var _ system.Service = (*Monitor)(nil)

// Notifier queues deliveries for an alert to contacts at or below the level.
type Notifier interface {
	NotifyAlert(ctx context.Context, a alert.Alert, level int) error
}

// Notifiers fans an alert out to several sinks. The first error wins but
// every sink still gets the alert.
type Notifiers []Notifier

func (ns Notifiers) NotifyAlert(ctx context.Context, a alert.Alert, level int) error {
	var first error
	for _, n := range ns {
		if err := n.NotifyAlert(ctx, a, level); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Monitor periodically evaluates every monitored unit against its resolved
// policy: it starts and clears the excursion clock, opens and auto-resolves
// alerts, flags silent units offline and walks the escalation ladder while
// alerts stay unacknowledged.
type Monitor struct {
	units    storage.UnitStore
	store    storage.AlertStore
	policies *policies.Service
	notifier Notifier
	metrics  *metrics.Metrics
	log      *logger.Logger
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewMonitor creates a lifecycle-managed alert monitor.
func NewMonitor(units storage.UnitStore, store storage.AlertStore, pol *policies.Service, log *logger.Logger) *Monitor {
	if log == nil {
		log = logger.NewDefault("alert-monitor")
	}
	return &Monitor{
		units:    units,
		store:    store,
		policies: pol,
		log:      log,
		interval: 30 * time.Second,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithNotifier assigns the notification sink. Call before Start.
func (m *Monitor) WithNotifier(n Notifier) {
	m.mu.Lock()
	m.notifier = n
	m.mu.Unlock()
}

// WithMetrics assigns the metrics collectors. Call before Start.
func (m *Monitor) WithMetrics(mx *metrics.Metrics) {
	m.mu.Lock()
	m.metrics = mx
	m.mu.Unlock()
}

// WithInterval overrides the evaluation cadence. Call before Start.
func (m *Monitor) WithInterval(d time.Duration) {
	if d > 0 {
		m.interval = d
	}
}

func (m *Monitor) Name() string { return "alert-monitor" }

func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				m.Tick(runCtx)
			}
		}
	}()

	m.log.Info("alert monitor started")
	return nil
}

func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.log.Info("alert monitor stopped")
	return nil
}

// Tick runs one evaluation pass. Exposed for tests and manual runs.
func (m *Monitor) Tick(ctx context.Context) {
	units, err := m.units.ListMonitoredUnits(ctx)
	if err != nil {
		m.log.WithError(err).Warn("list monitored units")
		return
	}

	statusCounts := make(map[unit.Status]int)
	for _, u := range units {
		if err := m.evaluateUnit(ctx, u); err != nil {
			m.log.WithError(err).WithField("unit_id", u.ID).Warn("evaluate unit")
		}
		if fresh, err := m.units.GetUnit(ctx, u.ID); err == nil {
			statusCounts[fresh.Status]++
		}
	}

	if m.metrics != nil {
		for _, st := range []unit.Status{unit.StatusOK, unit.StatusExcursion, unit.StatusOffline, unit.StatusUnmonitored} {
			m.metrics.UnitsByStatus.WithLabelValues(string(st)).Set(float64(statusCounts[st]))
		}
	}
}

func (m *Monitor) evaluateUnit(ctx context.Context, u unit.Unit) error {
	resolved, err := m.policies.ResolveForUnit(ctx, u)
	if err != nil {
		if errors.Is(err, policies.ErrNoPolicy) {
			return nil
		}
		return err
	}
	p := resolved.Policy
	now := m.now()

	if u.LastReadingAt.IsZero() {
		// Never heard from; provisioning handles the silence.
		return nil
	}

	if now.Sub(u.LastReadingAt) > time.Duration(p.OfflineGraceMinutes)*time.Minute {
		return m.handleOffline(ctx, u, p, now)
	}

	if u.LastTempC == nil {
		return nil
	}
	temp := *u.LastTempC

	switch {
	case temp > p.MaxTempC:
		return m.handleExcursion(ctx, u, p, alert.KindHighTemp, temp, now)
	case temp < p.MinTempC:
		return m.handleExcursion(ctx, u, p, alert.KindLowTemp, temp, now)
	default:
		return m.handleInRange(ctx, u, now)
	}
}

func (m *Monitor) handleOffline(ctx context.Context, u unit.Unit, p policy.Policy, now time.Time) error {
	if u.Status != unit.StatusOffline {
		u.Status = unit.StatusOffline
		u.ExcursionSince = time.Time{}
		if _, err := m.units.UpdateUnit(ctx, u); err != nil {
			return err
		}
	}

	existing, err := m.store.GetOpenAlert(ctx, u.ID, alert.KindOffline)
	if err == nil {
		return m.maintainAlert(ctx, existing, p, now)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	msg := fmt.Sprintf("%s has not reported since %s", u.Name, u.LastReadingAt.Format(time.RFC3339))
	return m.openAlert(ctx, u, alert.KindOffline, msg, nil, now)
}

func (m *Monitor) handleExcursion(ctx context.Context, u unit.Unit, p policy.Policy, kind alert.Kind, temp float64, now time.Time) error {
	if u.ExcursionSince.IsZero() {
		u.ExcursionSince = now
		if _, err := m.units.UpdateUnit(ctx, u); err != nil {
			return err
		}
	}

	existing, err := m.store.GetOpenAlert(ctx, u.ID, kind)
	if err == nil {
		if updated, changed := trackPeak(existing, kind, temp); changed {
			if _, err := m.store.UpdateAlert(ctx, updated); err != nil {
				return err
			}
			existing = updated
		}
		return m.maintainAlert(ctx, existing, p, now)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	if now.Sub(u.ExcursionSince) < time.Duration(p.DelayMinutes)*time.Minute {
		return nil
	}

	if u.Status != unit.StatusExcursion {
		u.Status = unit.StatusExcursion
		if _, err := m.units.UpdateUnit(ctx, u); err != nil {
			return err
		}
	}

	limit := "above"
	bound := p.MaxTempC
	if kind == alert.KindLowTemp {
		limit = "below"
		bound = p.MinTempC
	}
	msg := fmt.Sprintf("%s is at %.1f°C, %s the %.1f°C limit", u.Name, temp, limit, bound)
	return m.openAlert(ctx, u, kind, msg, &temp, now)
}

func (m *Monitor) handleInRange(ctx context.Context, u unit.Unit, now time.Time) error {
	if !u.ExcursionSince.IsZero() || u.Status == unit.StatusExcursion || u.Status == unit.StatusOffline {
		u.ExcursionSince = time.Time{}
		u.Status = unit.StatusOK
		if _, err := m.units.UpdateUnit(ctx, u); err != nil {
			return err
		}
	}

	for _, kind := range []alert.Kind{alert.KindHighTemp, alert.KindLowTemp, alert.KindOffline} {
		a, err := m.store.GetOpenAlert(ctx, u.ID, kind)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return err
		}
		a.Status = alert.StatusResolved
		a.ResolvedAt = now
		if _, err := m.store.UpdateAlert(ctx, a); err != nil {
			return err
		}
		if m.metrics != nil {
			m.metrics.AlertsResolved.Inc()
		}
		m.log.WithField("alert_id", a.ID).
			WithField("unit_id", u.ID).
			Info("alert auto-resolved")
	}
	return nil
}

func (m *Monitor) openAlert(ctx context.Context, u unit.Unit, kind alert.Kind, msg string, peak *float64, now time.Time) error {
	a := alert.Alert{
		OrgID:           u.OrgID,
		UnitID:          u.ID,
		Kind:            kind,
		Status:          alert.StatusOpen,
		Message:         msg,
		PeakTempC:       peak,
		EscalationLevel: 1,
		OpenedAt:        now,
	}
	a, err := m.store.CreateAlert(ctx, a)
	if err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.AlertsOpened.WithLabelValues(string(kind)).Inc()
	}
	m.log.WithField("alert_id", a.ID).
		WithField("unit_id", u.ID).
		WithField("kind", string(kind)).
		Warn("alert opened")

	return m.notify(ctx, a, now)
}

// maintainAlert re-notifies on the repeat cadence and escalates when the
// alert has sat unacknowledged past the ack timeout.
func (m *Monitor) maintainAlert(ctx context.Context, a alert.Alert, p policy.Policy, now time.Time) error {
	changed := false

	if a.Status == alert.StatusOpen && p.AckTimeoutMinutes > 0 {
		deadline := a.OpenedAt.Add(time.Duration(a.EscalationLevel) * time.Duration(p.AckTimeoutMinutes) * time.Minute)
		if now.After(deadline) {
			a.EscalationLevel++
			changed = true
			m.log.WithField("alert_id", a.ID).
				WithField("level", a.EscalationLevel).
				Warn("alert escalated")
		}
	}

	due := a.LastNotifiedAt.IsZero() || now.Sub(a.LastNotifiedAt) >= time.Duration(p.RepeatMinutes)*time.Minute
	if changed || (a.Status == alert.StatusOpen && due) {
		return m.notify(ctx, a, now)
	}
	return nil
}

func (m *Monitor) notify(ctx context.Context, a alert.Alert, now time.Time) error {
	if m.notifier != nil {
		if err := m.notifier.NotifyAlert(ctx, a, a.EscalationLevel); err != nil {
			m.log.WithError(err).WithField("alert_id", a.ID).Warn("queue notifications")
		}
	}
	a.LastNotifiedAt = now
	_, err := m.store.UpdateAlert(ctx, a)
	return err
}

func trackPeak(a alert.Alert, kind alert.Kind, temp float64) (alert.Alert, bool) {
	if a.PeakTempC == nil {
		a.PeakTempC = &temp
		return a, true
	}
	if kind == alert.KindHighTemp && temp > *a.PeakTempC {
		a.PeakTempC = &temp
		return a, true
	}
	if kind == alert.KindLowTemp && temp < *a.PeakTempC {
		a.PeakTempC = &temp
		return a, true
	}
	return a, false
}
