// Package digests builds and schedules the daily summary email each
// organization receives at its configured local hour.
package digests

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/getdatasurge/frostguard/internal/app/domain/alert"
	"github.com/getdatasurge/frostguard/internal/app/domain/notification"
	"github.com/getdatasurge/frostguard/internal/app/domain/org"
	"github.com/getdatasurge/frostguard/internal/app/domain/unit"
	"github.com/getdatasurge/frostguard/internal/app/metrics"
	"github.com/getdatasurge/frostguard/internal/app/storage"
	"github.com/getdatasurge/frostguard/pkg/logger"
)

// Mailer queues a digest email for delivery.
type Mailer interface {
	QueueEmail(ctx context.Context, orgID, destination, subject, body string) (notification.Notification, error)
}

// Service builds digest content.
type Service struct {
	orgs    storage.OrgStore
	units   storage.UnitStore
	alerts  storage.AlertStore
	mailer  Mailer
	metrics *metrics.Metrics
	log     *logger.Logger
}

// New constructs a digest service.
func New(orgs storage.OrgStore, units storage.UnitStore, alerts storage.AlertStore, mailer Mailer, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("digests")
	}
	return &Service{orgs: orgs, units: units, alerts: alerts, mailer: mailer, log: log}
}

// WithMetrics assigns the metrics collectors. Call before scheduling.
func (s *Service) WithMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Digest is one day's summary for an organization.
type Digest struct {
	Org            org.Organization
	Units          []unit.Unit
	Alerts         []alert.Alert
	Opened         int
	Resolved       int
	OpenAlerts     int
	ExcursionUnits int
	OfflineUnits   int
	Window         time.Duration
}

// Build assembles the digest covering the 24 hours before now.
func (s *Service) Build(ctx context.Context, o org.Organization, now time.Time) (Digest, error) {
	units, err := s.units.ListUnits(ctx, o.ID)
	if err != nil {
		return Digest{}, err
	}
	all, err := s.alerts.ListAlerts(ctx, o.ID, "", "")
	if err != nil {
		return Digest{}, err
	}

	since := now.Add(-24 * time.Hour)
	d := Digest{Org: o, Units: units, Window: 24 * time.Hour}
	for _, a := range all {
		if a.Status != alert.StatusResolved {
			d.OpenAlerts++
		}
		if a.OpenedAt.After(since) {
			d.Alerts = append(d.Alerts, a)
			d.Opened++
		}
		if a.Status == alert.StatusResolved && a.ResolvedAt.After(since) {
			d.Resolved++
		}
	}
	for _, u := range units {
		switch u.Status {
		case unit.StatusOffline:
			d.OfflineUnits++
		case unit.StatusExcursion:
			d.ExcursionUnits++
		}
	}
	return d, nil
}

// Render produces the digest email subject and plain-text body.
func Render(d Digest, now time.Time) (subject, body string) {
	subject = fmt.Sprintf("[FrostGuard] Daily summary for %s (%s)", d.Org.Name, now.Format("Jan 2"))

	var b strings.Builder
	fmt.Fprintf(&b, "Daily summary for %s\n\n", d.Org.Name)
	fmt.Fprintf(&b, "Units monitored: %d\n", len(d.Units))
	fmt.Fprintf(&b, "Alerts opened in the last 24h: %d\n", d.Opened)
	fmt.Fprintf(&b, "Alerts resolved in the last 24h: %d\n", d.Resolved)
	fmt.Fprintf(&b, "Currently open alerts: %d\n", d.OpenAlerts)
	fmt.Fprintf(&b, "Units in excursion: %d\n", d.ExcursionUnits)
	fmt.Fprintf(&b, "Units offline: %d\n", d.OfflineUnits)

	if len(d.Alerts) > 0 {
		b.WriteString("\nRecent alerts:\n")
		names := make(map[string]string, len(d.Units))
		for _, u := range d.Units {
			names[u.ID] = u.Name
		}
		for _, a := range d.Alerts {
			name := names[a.UnitID]
			if name == "" {
				name = a.UnitID
			}
			status := string(a.Status)
			fmt.Fprintf(&b, "  - %s: %s (%s)\n", name, a.Message, status)
		}
	} else {
		b.WriteString("\nNo alerts in the last 24 hours. All units stayed in range.\n")
	}
	return subject, b.String()
}

// SendFor builds, renders and queues the digest for one organization.
func (s *Service) SendFor(ctx context.Context, o org.Organization, now time.Time) error {
	if o.ContactEmail == "" {
		s.log.WithField("org_id", o.ID).Debug("org has no contact email, skipping digest")
		return nil
	}
	d, err := s.Build(ctx, o, now)
	if err != nil {
		return err
	}
	subject, body := Render(d, now)
	if _, err := s.mailer.QueueEmail(ctx, o.ID, o.ContactEmail, subject, body); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.DigestsSent.Inc()
	}
	s.log.WithField("org_id", o.ID).Info("daily digest queued")
	return nil
}
