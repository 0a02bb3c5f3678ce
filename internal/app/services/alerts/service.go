// Package alerts manages the alert lifecycle and runs the monitor that opens,
// escalates and resolves alerts from unit state.
package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/getdatasurge/frostguard/internal/app/domain/alert"
	"github.com/getdatasurge/frostguard/internal/app/storage"
	"github.com/getdatasurge/frostguard/pkg/logger"
)

// Service manages alert records.
type Service struct {
	store storage.AlertStore
	log   *logger.Logger
}

// New constructs an alert service.
func New(store storage.AlertStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("alerts")
	}
	return &Service{store: store, log: log}
}

// Get returns an alert by ID.
func (s *Service) Get(ctx context.Context, id string) (alert.Alert, error) {
	return s.store.GetAlert(ctx, id)
}

// List returns alerts filtered by status and unit.
func (s *Service) List(ctx context.Context, orgID string, status alert.Status, unitID string) ([]alert.Alert, error) {
	if status != "" {
		switch status {
		case alert.StatusOpen, alert.StatusAcknowledged, alert.StatusResolved:
		default:
			return nil, fmt.Errorf("unknown status %q", status)
		}
	}
	return s.store.ListAlerts(ctx, orgID, status, unitID)
}

// Acknowledge marks an open alert as acknowledged, stopping escalation.
// Acknowledging twice is a no-op; acknowledging a resolved alert fails.
func (s *Service) Acknowledge(ctx context.Context, id, by string) (alert.Alert, error) {
	a, err := s.store.GetAlert(ctx, id)
	if err != nil {
		return alert.Alert{}, err
	}
	switch a.Status {
	case alert.StatusResolved:
		return alert.Alert{}, fmt.Errorf("alert %s is already resolved", id)
	case alert.StatusAcknowledged:
		return a, nil
	}

	a.Status = alert.StatusAcknowledged
	a.AcknowledgedAt = time.Now().UTC()
	a.AcknowledgedBy = strings.TrimSpace(by)
	updated, err := s.store.UpdateAlert(ctx, a)
	if err != nil {
		return alert.Alert{}, err
	}
	s.log.WithField("alert_id", id).
		WithField("by", a.AcknowledgedBy).
		Info("alert acknowledged")
	return updated, nil
}

// Resolve closes an alert. Normally the monitor calls this when readings
// return in range, but operators can force it.
func (s *Service) Resolve(ctx context.Context, id string) (alert.Alert, error) {
	a, err := s.store.GetAlert(ctx, id)
	if err != nil {
		return alert.Alert{}, err
	}
	if a.Status == alert.StatusResolved {
		return a, nil
	}
	a.Status = alert.StatusResolved
	a.ResolvedAt = time.Now().UTC()
	updated, err := s.store.UpdateAlert(ctx, a)
	if err != nil {
		return alert.Alert{}, err
	}
	s.log.WithField("alert_id", id).Info("alert resolved")
	return updated, nil
}
