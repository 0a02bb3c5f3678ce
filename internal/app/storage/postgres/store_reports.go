package postgres

import (
	"context"
	"time"

	"github.com/getdatasurge/frostguard/internal/app/domain/report"
)

// ComplianceRows aggregates per-unit reading and alert figures for the
// window. Excursion minutes count time spent inside temperature alerts;
// offline alerts contribute to the alert count only.
func (s *Store) ComplianceRows(ctx context.Context, orgID, siteID string, from, to time.Time) ([]report.UnitRow, error) {
	const query = `
		SELECT u.id AS unit_id,
		       u.name AS unit_name,
		       u.site_id AS site_id,
		       COALESCE(r.reading_count, 0) AS reading_count,
		       r.min_temp_c AS min_temp_c,
		       r.max_temp_c AS max_temp_c,
		       r.avg_temp_c AS avg_temp_c,
		       COALESCE(a.alert_count, 0) AS alert_count,
		       COALESCE(a.excursion_minutes, 0) AS excursion_minutes
		FROM fg_units u
		LEFT JOIN (
			SELECT unit_id,
			       COUNT(*) AS reading_count,
			       MIN(temp_c) AS min_temp_c,
			       MAX(temp_c) AS max_temp_c,
			       AVG(temp_c) AS avg_temp_c
			FROM fg_readings
			WHERE recorded_at BETWEEN $3 AND $4
			GROUP BY unit_id
		) r ON r.unit_id = u.id
		LEFT JOIN (
			SELECT unit_id,
			       COUNT(*) AS alert_count,
			       COALESCE(SUM(
			           CASE WHEN kind <> 'offline'
			                THEN EXTRACT(EPOCH FROM (COALESCE(resolved_at, $4) - opened_at)) / 60
			                ELSE 0
			           END
			       ), 0)::int AS excursion_minutes
			FROM fg_alerts
			WHERE opened_at BETWEEN $3 AND $4
			GROUP BY unit_id
		) a ON a.unit_id = u.id
		WHERE u.org_id = $1
		  AND ($2 = '' OR u.site_id = $2)
		ORDER BY u.created_at
	`

	rows := make([]report.UnitRow, 0)
	if err := s.dbx.SelectContext(ctx, &rows, query, orgID, siteID, from, to); err != nil {
		return nil, err
	}
	return rows, nil
}
