// Package reports produces compliance reports for an organization's units
// over an arbitrary time window.
package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/getdatasurge/frostguard/internal/app/domain/report"
	"github.com/getdatasurge/frostguard/internal/app/storage"
	"github.com/getdatasurge/frostguard/pkg/logger"
)

// MaxWindow caps the reporting window a single request may cover.
const MaxWindow = 92 * 24 * time.Hour

// Service generates compliance reports.
type Service struct {
	store storage.ReportStore
	log   *logger.Logger
	now   func() time.Time
}

// New constructs a report service.
func New(store storage.ReportStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("reports")
	}
	return &Service{store: store, log: log, now: time.Now}
}

// Compliance builds the report for one organization. siteID and unitID
// narrow the report when non-empty.
func (s *Service) Compliance(ctx context.Context, orgID, siteID, unitID string, from, to time.Time) (report.Compliance, error) {
	if orgID == "" {
		return report.Compliance{}, fmt.Errorf("org id is required")
	}
	if from.IsZero() || to.IsZero() {
		return report.Compliance{}, fmt.Errorf("report window is required")
	}
	if !to.After(from) {
		return report.Compliance{}, fmt.Errorf("report window end must be after start")
	}
	if to.Sub(from) > MaxWindow {
		return report.Compliance{}, fmt.Errorf("report window exceeds %d days", int(MaxWindow.Hours()/24))
	}

	rows, err := s.store.ComplianceRows(ctx, orgID, siteID, from, to)
	if err != nil {
		return report.Compliance{}, fmt.Errorf("compute compliance rows: %w", err)
	}
	if unitID != "" {
		filtered := rows[:0]
		for _, r := range rows {
			if r.UnitID == unitID {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}

	rep := report.Compliance{
		OrgID:       orgID,
		SiteID:      siteID,
		UnitID:      unitID,
		From:        from,
		To:          to,
		Units:       rows,
		GeneratedAt: s.now().UTC(),
	}
	for _, r := range rows {
		rep.TotalAlerts += r.AlertCount
	}

	s.log.WithField("org_id", orgID).WithField("units", len(rows)).Info("compliance report generated")
	return rep, nil
}
