package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/getdatasurge/frostguard/internal/app/domain/alert"
	"github.com/getdatasurge/frostguard/internal/app/domain/billing"
	"github.com/getdatasurge/frostguard/internal/app/domain/contact"
	"github.com/getdatasurge/frostguard/internal/app/domain/device"
	"github.com/getdatasurge/frostguard/internal/app/domain/notification"
	"github.com/getdatasurge/frostguard/internal/app/domain/org"
	"github.com/getdatasurge/frostguard/internal/app/domain/policy"
	"github.com/getdatasurge/frostguard/internal/app/domain/reading"
	"github.com/getdatasurge/frostguard/internal/app/domain/site"
	"github.com/getdatasurge/frostguard/internal/app/domain/unit"
	"github.com/getdatasurge/frostguard/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
	// dbx wraps the same handle for the aggregate report queries.
	dbx *sqlx.DB
}

var _ storage.OrgStore = (*Store)(nil)
var _ storage.SiteStore = (*Store)(nil)
var _ storage.UnitStore = (*Store)(nil)
var _ storage.PolicyStore = (*Store)(nil)
var _ storage.ReadingStore = (*Store)(nil)
var _ storage.AlertStore = (*Store)(nil)
var _ storage.ContactStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)
var _ storage.DeviceStore = (*Store)(nil)
var _ storage.SubscriptionStore = (*Store)(nil)
var _ storage.ReportStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db, dbx: sqlx.NewDb(db, "postgres")}
}

func mapNotFound(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
	}
	return err
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func fromNullTime(nt sql.NullTime) time.Time {
	if !nt.Valid {
		return time.Time{}
	}
	return nt.Time
}

func toNullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func fromNullFloat(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

// --- OrgStore ---------------------------------------------------------------

func (s *Store) CreateOrg(ctx context.Context, o org.Organization) (org.Organization, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fg_orgs (id, name, slug, contact_email, timezone, digest_hour, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, o.ID, o.Name, o.Slug, o.ContactEmail, o.Timezone, o.DigestHour, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return org.Organization{}, err
	}
	return o, nil
}

func (s *Store) UpdateOrg(ctx context.Context, o org.Organization) (org.Organization, error) {
	o.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE fg_orgs
		SET name = $2, slug = $3, contact_email = $4, timezone = $5, digest_hour = $6, updated_at = $7
		WHERE id = $1
	`, o.ID, o.Name, o.Slug, o.ContactEmail, o.Timezone, o.DigestHour, o.UpdatedAt)
	if err != nil {
		return org.Organization{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return org.Organization{}, mapNotFound(sql.ErrNoRows, "org", o.ID)
	}
	return s.GetOrg(ctx, o.ID)
}

func (s *Store) scanOrg(row interface{ Scan(...any) error }) (org.Organization, error) {
	var o org.Organization
	err := row.Scan(&o.ID, &o.Name, &o.Slug, &o.ContactEmail, &o.Timezone, &o.DigestHour, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (s *Store) GetOrg(ctx context.Context, id string) (org.Organization, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, contact_email, timezone, digest_hour, created_at, updated_at
		FROM fg_orgs
		WHERE id = $1
	`, id)
	o, err := s.scanOrg(row)
	if err != nil {
		return org.Organization{}, mapNotFound(err, "org", id)
	}
	return o, nil
}

func (s *Store) GetOrgBySlug(ctx context.Context, slug string) (org.Organization, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, contact_email, timezone, digest_hour, created_at, updated_at
		FROM fg_orgs
		WHERE slug = $1
	`, slug)
	o, err := s.scanOrg(row)
	if err != nil {
		return org.Organization{}, mapNotFound(err, "org slug", slug)
	}
	return o, nil
}

func (s *Store) ListOrgs(ctx context.Context) ([]org.Organization, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, slug, contact_email, timezone, digest_hour, created_at, updated_at
		FROM fg_orgs
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]org.Organization, 0)
	for rows.Next() {
		o, err := s.scanOrg(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func (s *Store) DeleteOrg(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM fg_orgs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return mapNotFound(sql.ErrNoRows, "org", id)
	}
	return nil
}

// --- SiteStore --------------------------------------------------------------

func (s *Store) CreateSite(ctx context.Context, st site.Site) (site.Site, error) {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	st.CreatedAt = now
	st.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fg_sites (id, org_id, name, address, timezone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, st.ID, st.OrgID, st.Name, st.Address, st.Timezone, st.CreatedAt, st.UpdatedAt)
	if err != nil {
		return site.Site{}, err
	}
	return st, nil
}

func (s *Store) UpdateSite(ctx context.Context, st site.Site) (site.Site, error) {
	st.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE fg_sites
		SET name = $2, address = $3, timezone = $4, updated_at = $5
		WHERE id = $1
	`, st.ID, st.Name, st.Address, st.Timezone, st.UpdatedAt)
	if err != nil {
		return site.Site{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return site.Site{}, mapNotFound(sql.ErrNoRows, "site", st.ID)
	}
	return s.GetSite(ctx, st.ID)
}

func (s *Store) GetSite(ctx context.Context, id string) (site.Site, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, name, address, timezone, created_at, updated_at
		FROM fg_sites
		WHERE id = $1
	`, id)

	var st site.Site
	if err := row.Scan(&st.ID, &st.OrgID, &st.Name, &st.Address, &st.Timezone, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return site.Site{}, mapNotFound(err, "site", id)
	}
	return st, nil
}

func (s *Store) ListSites(ctx context.Context, orgID string) ([]site.Site, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, name, address, timezone, created_at, updated_at
		FROM fg_sites
		WHERE ($1 = '' OR org_id = $1)
		ORDER BY created_at
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]site.Site, 0)
	for rows.Next() {
		var st site.Site
		if err := rows.Scan(&st.ID, &st.OrgID, &st.Name, &st.Address, &st.Timezone, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, st)
	}
	return result, rows.Err()
}

func (s *Store) DeleteSite(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM fg_sites WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return mapNotFound(sql.ErrNoRows, "site", id)
	}
	return nil
}

// --- UnitStore --------------------------------------------------------------

func (s *Store) CreateUnit(ctx context.Context, u unit.Unit) (unit.Unit, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fg_units (id, org_id, site_id, name, kind, status, device_id, last_temp_c, last_reading_at, excursion_since, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, u.ID, u.OrgID, u.SiteID, u.Name, u.Kind, u.Status, u.DeviceID, toNullFloat(u.LastTempC), toNullTime(u.LastReadingAt), toNullTime(u.ExcursionSince), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return unit.Unit{}, err
	}
	return u, nil
}

func (s *Store) UpdateUnit(ctx context.Context, u unit.Unit) (unit.Unit, error) {
	u.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE fg_units
		SET site_id = $2, name = $3, kind = $4, status = $5, device_id = $6, last_temp_c = $7, last_reading_at = $8, excursion_since = $9, updated_at = $10
		WHERE id = $1
	`, u.ID, u.SiteID, u.Name, u.Kind, u.Status, u.DeviceID, toNullFloat(u.LastTempC), toNullTime(u.LastReadingAt), toNullTime(u.ExcursionSince), u.UpdatedAt)
	if err != nil {
		return unit.Unit{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return unit.Unit{}, mapNotFound(sql.ErrNoRows, "unit", u.ID)
	}
	return s.GetUnit(ctx, u.ID)
}

func scanUnit(row interface{ Scan(...any) error }) (unit.Unit, error) {
	var (
		u              unit.Unit
		lastTemp       sql.NullFloat64
		lastReading    sql.NullTime
		excursionSince sql.NullTime
	)
	err := row.Scan(&u.ID, &u.OrgID, &u.SiteID, &u.Name, &u.Kind, &u.Status, &u.DeviceID, &lastTemp, &lastReading, &excursionSince, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return unit.Unit{}, err
	}
	u.LastTempC = fromNullFloat(lastTemp)
	u.LastReadingAt = fromNullTime(lastReading)
	u.ExcursionSince = fromNullTime(excursionSince)
	return u, nil
}

const unitColumns = `id, org_id, site_id, name, kind, status, device_id, last_temp_c, last_reading_at, excursion_since, created_at, updated_at`

func (s *Store) GetUnit(ctx context.Context, id string) (unit.Unit, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM fg_units WHERE id = $1`, id)
	u, err := scanUnit(row)
	if err != nil {
		return unit.Unit{}, mapNotFound(err, "unit", id)
	}
	return u, nil
}

func (s *Store) listUnits(ctx context.Context, query string, args ...any) ([]unit.Unit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]unit.Unit, 0)
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (s *Store) ListUnits(ctx context.Context, orgID string) ([]unit.Unit, error) {
	return s.listUnits(ctx, `
		SELECT `+unitColumns+` FROM fg_units
		WHERE ($1 = '' OR org_id = $1)
		ORDER BY created_at
	`, orgID)
}

func (s *Store) ListMonitoredUnits(ctx context.Context) ([]unit.Unit, error) {
	return s.listUnits(ctx, `
		SELECT `+unitColumns+` FROM fg_units
		WHERE device_id <> ''
		ORDER BY created_at
	`)
}

func (s *Store) DeleteUnit(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM fg_units WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return mapNotFound(sql.ErrNoRows, "unit", id)
	}
	return nil
}

// --- PolicyStore ------------------------------------------------------------

const policyColumns = `id, org_id, scope, scope_id, min_temp_c, max_temp_c, delay_minutes, repeat_minutes, ack_timeout_minutes, offline_grace_minutes, enabled, created_at, updated_at`

func scanPolicy(row interface{ Scan(...any) error }) (policy.Policy, error) {
	var p policy.Policy
	err := row.Scan(&p.ID, &p.OrgID, &p.Scope, &p.ScopeID, &p.MinTempC, &p.MaxTempC, &p.DelayMinutes, &p.RepeatMinutes, &p.AckTimeoutMinutes, &p.OfflineGraceMinutes, &p.Enabled, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) CreatePolicy(ctx context.Context, p policy.Policy) (policy.Policy, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fg_policies (id, org_id, scope, scope_id, min_temp_c, max_temp_c, delay_minutes, repeat_minutes, ack_timeout_minutes, offline_grace_minutes, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, p.ID, p.OrgID, p.Scope, p.ScopeID, p.MinTempC, p.MaxTempC, p.DelayMinutes, p.RepeatMinutes, p.AckTimeoutMinutes, p.OfflineGraceMinutes, p.Enabled, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return policy.Policy{}, err
	}
	return p, nil
}

func (s *Store) UpdatePolicy(ctx context.Context, p policy.Policy) (policy.Policy, error) {
	p.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE fg_policies
		SET min_temp_c = $2, max_temp_c = $3, delay_minutes = $4, repeat_minutes = $5, ack_timeout_minutes = $6, offline_grace_minutes = $7, enabled = $8, updated_at = $9
		WHERE id = $1
	`, p.ID, p.MinTempC, p.MaxTempC, p.DelayMinutes, p.RepeatMinutes, p.AckTimeoutMinutes, p.OfflineGraceMinutes, p.Enabled, p.UpdatedAt)
	if err != nil {
		return policy.Policy{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return policy.Policy{}, mapNotFound(sql.ErrNoRows, "policy", p.ID)
	}
	return s.GetPolicy(ctx, p.ID)
}

func (s *Store) GetPolicy(ctx context.Context, id string) (policy.Policy, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+policyColumns+` FROM fg_policies WHERE id = $1`, id)
	p, err := scanPolicy(row)
	if err != nil {
		return policy.Policy{}, mapNotFound(err, "policy", id)
	}
	return p, nil
}

func (s *Store) GetPolicyByScope(ctx context.Context, orgID string, scope policy.Scope, scopeID string) (policy.Policy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+policyColumns+` FROM fg_policies
		WHERE org_id = $1 AND scope = $2 AND scope_id = $3
	`, orgID, scope, scopeID)
	p, err := scanPolicy(row)
	if err != nil {
		return policy.Policy{}, mapNotFound(err, "policy scope", string(scope)+"/"+scopeID)
	}
	return p, nil
}

func (s *Store) ListPolicies(ctx context.Context, orgID string) ([]policy.Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+policyColumns+` FROM fg_policies
		WHERE ($1 = '' OR org_id = $1)
		ORDER BY created_at
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]policy.Policy, 0)
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) DeletePolicy(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM fg_policies WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return mapNotFound(sql.ErrNoRows, "policy", id)
	}
	return nil
}

// --- ReadingStore -----------------------------------------------------------

func (s *Store) CreateReading(ctx context.Context, r reading.Reading) (reading.Reading, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fg_readings (id, org_id, unit_id, device_id, temp_c, humidity_pct, battery_volts, recorded_at, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.ID, r.OrgID, r.UnitID, r.DeviceID, r.TempC, toNullFloat(r.HumidityPct), toNullFloat(r.BatteryVolts), r.RecordedAt, r.ReceivedAt)
	if err != nil {
		return reading.Reading{}, err
	}
	return r, nil
}

func (s *Store) ListReadings(ctx context.Context, unitID string, from, to time.Time, limit int) ([]reading.Reading, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, org_id, unit_id, device_id, temp_c, humidity_pct, battery_volts, recorded_at, received_at
		FROM fg_readings
		WHERE unit_id = $1
	`)
	args := []any{unitID}
	if !from.IsZero() {
		args = append(args, from)
		fmt.Fprintf(&sb, " AND recorded_at >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		fmt.Fprintf(&sb, " AND recorded_at <= $%d", len(args))
	}
	sb.WriteString(" ORDER BY recorded_at DESC")
	if limit > 0 {
		args = append(args, limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]reading.Reading, 0)
	for rows.Next() {
		var (
			r        reading.Reading
			humidity sql.NullFloat64
			battery  sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.OrgID, &r.UnitID, &r.DeviceID, &r.TempC, &humidity, &battery, &r.RecordedAt, &r.ReceivedAt); err != nil {
			return nil, err
		}
		r.HumidityPct = fromNullFloat(humidity)
		r.BatteryVolts = fromNullFloat(battery)
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *Store) HasReading(ctx context.Context, deviceID string, recordedAt time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM fg_readings WHERE device_id = $1 AND recorded_at = $2)
	`, deviceID, recordedAt).Scan(&exists)
	return exists, err
}

// --- AlertStore -------------------------------------------------------------

const alertColumns = `id, org_id, unit_id, kind, status, message, peak_temp_c, escalation_level, last_notified_at, opened_at, acknowledged_at, acknowledged_by, resolved_at, created_at, updated_at`

func scanAlert(row interface{ Scan(...any) error }) (alert.Alert, error) {
	var (
		a            alert.Alert
		peak         sql.NullFloat64
		lastNotified sql.NullTime
		acked        sql.NullTime
		resolved     sql.NullTime
	)
	err := row.Scan(&a.ID, &a.OrgID, &a.UnitID, &a.Kind, &a.Status, &a.Message, &peak, &a.EscalationLevel, &lastNotified, &a.OpenedAt, &acked, &a.AcknowledgedBy, &resolved, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return alert.Alert{}, err
	}
	a.PeakTempC = fromNullFloat(peak)
	a.LastNotifiedAt = fromNullTime(lastNotified)
	a.AcknowledgedAt = fromNullTime(acked)
	a.ResolvedAt = fromNullTime(resolved)
	return a, nil
}

func (s *Store) CreateAlert(ctx context.Context, a alert.Alert) (alert.Alert, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.OpenedAt.IsZero() {
		a.OpenedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fg_alerts (id, org_id, unit_id, kind, status, message, peak_temp_c, escalation_level, last_notified_at, opened_at, acknowledged_at, acknowledged_by, resolved_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, a.ID, a.OrgID, a.UnitID, a.Kind, a.Status, a.Message, toNullFloat(a.PeakTempC), a.EscalationLevel, toNullTime(a.LastNotifiedAt), a.OpenedAt, toNullTime(a.AcknowledgedAt), a.AcknowledgedBy, toNullTime(a.ResolvedAt), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return alert.Alert{}, err
	}
	return a, nil
}

func (s *Store) UpdateAlert(ctx context.Context, a alert.Alert) (alert.Alert, error) {
	a.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE fg_alerts
		SET status = $2, message = $3, peak_temp_c = $4, escalation_level = $5, last_notified_at = $6, acknowledged_at = $7, acknowledged_by = $8, resolved_at = $9, updated_at = $10
		WHERE id = $1
	`, a.ID, a.Status, a.Message, toNullFloat(a.PeakTempC), a.EscalationLevel, toNullTime(a.LastNotifiedAt), toNullTime(a.AcknowledgedAt), a.AcknowledgedBy, toNullTime(a.ResolvedAt), a.UpdatedAt)
	if err != nil {
		return alert.Alert{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return alert.Alert{}, mapNotFound(sql.ErrNoRows, "alert", a.ID)
	}
	return s.GetAlert(ctx, a.ID)
}

func (s *Store) GetAlert(ctx context.Context, id string) (alert.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM fg_alerts WHERE id = $1`, id)
	a, err := scanAlert(row)
	if err != nil {
		return alert.Alert{}, mapNotFound(err, "alert", id)
	}
	return a, nil
}

func (s *Store) GetOpenAlert(ctx context.Context, unitID string, kind alert.Kind) (alert.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+alertColumns+` FROM fg_alerts
		WHERE unit_id = $1 AND kind = $2 AND status <> 'resolved'
		ORDER BY opened_at DESC
		LIMIT 1
	`, unitID, kind)
	a, err := scanAlert(row)
	if err != nil {
		return alert.Alert{}, mapNotFound(err, "open alert", unitID+"/"+string(kind))
	}
	return a, nil
}

func (s *Store) listAlerts(ctx context.Context, query string, args ...any) ([]alert.Alert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]alert.Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *Store) ListAlerts(ctx context.Context, orgID string, status alert.Status, unitID string) ([]alert.Alert, error) {
	return s.listAlerts(ctx, `
		SELECT `+alertColumns+` FROM fg_alerts
		WHERE ($1 = '' OR org_id = $1)
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR unit_id = $3)
		ORDER BY opened_at DESC
	`, orgID, status, unitID)
}

func (s *Store) ListUnresolvedAlerts(ctx context.Context) ([]alert.Alert, error) {
	return s.listAlerts(ctx, `
		SELECT `+alertColumns+` FROM fg_alerts
		WHERE status <> 'resolved'
		ORDER BY opened_at
	`)
}

// --- ContactStore -----------------------------------------------------------

const contactColumns = `id, org_id, site_id, name, phone, email, level, channels, enabled, created_at, updated_at`

func scanContact(row interface{ Scan(...any) error }) (contact.Contact, error) {
	var (
		c           contact.Contact
		channelsRaw []byte
	)
	err := row.Scan(&c.ID, &c.OrgID, &c.SiteID, &c.Name, &c.Phone, &c.Email, &c.Level, &channelsRaw, &c.Enabled, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return contact.Contact{}, err
	}
	if len(channelsRaw) > 0 {
		_ = json.Unmarshal(channelsRaw, &c.Channels)
	}
	return c, nil
}

func (s *Store) CreateContact(ctx context.Context, c contact.Contact) (contact.Contact, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	channelsJSON, err := json.Marshal(c.Channels)
	if err != nil {
		return contact.Contact{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fg_contacts (id, org_id, site_id, name, phone, email, level, channels, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, c.ID, c.OrgID, c.SiteID, c.Name, c.Phone, c.Email, c.Level, channelsJSON, c.Enabled, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return contact.Contact{}, err
	}
	return c, nil
}

func (s *Store) UpdateContact(ctx context.Context, c contact.Contact) (contact.Contact, error) {
	c.UpdatedAt = time.Now().UTC()

	channelsJSON, err := json.Marshal(c.Channels)
	if err != nil {
		return contact.Contact{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE fg_contacts
		SET site_id = $2, name = $3, phone = $4, email = $5, level = $6, channels = $7, enabled = $8, updated_at = $9
		WHERE id = $1
	`, c.ID, c.SiteID, c.Name, c.Phone, c.Email, c.Level, channelsJSON, c.Enabled, c.UpdatedAt)
	if err != nil {
		return contact.Contact{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return contact.Contact{}, mapNotFound(sql.ErrNoRows, "contact", c.ID)
	}
	return s.GetContact(ctx, c.ID)
}

func (s *Store) GetContact(ctx context.Context, id string) (contact.Contact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM fg_contacts WHERE id = $1`, id)
	c, err := scanContact(row)
	if err != nil {
		return contact.Contact{}, mapNotFound(err, "contact", id)
	}
	return c, nil
}

func (s *Store) ListContacts(ctx context.Context, orgID string) ([]contact.Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contactColumns+` FROM fg_contacts
		WHERE ($1 = '' OR org_id = $1)
		ORDER BY level, created_at
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]contact.Contact, 0)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) DeleteContact(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM fg_contacts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return mapNotFound(sql.ErrNoRows, "contact", id)
	}
	return nil
}

// --- NotificationStore ------------------------------------------------------

const notificationColumns = `id, org_id, alert_id, contact_id, channel, destination, subject, body, status, attempts, last_error, sent_at, created_at, updated_at`

func scanNotification(row interface{ Scan(...any) error }) (notification.Notification, error) {
	var (
		n      notification.Notification
		sentAt sql.NullTime
	)
	err := row.Scan(&n.ID, &n.OrgID, &n.AlertID, &n.ContactID, &n.Channel, &n.Destination, &n.Subject, &n.Body, &n.Status, &n.Attempts, &n.LastError, &sentAt, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return notification.Notification{}, err
	}
	n.SentAt = fromNullTime(sentAt)
	return n, nil
}

func (s *Store) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now
	if n.Status == "" {
		n.Status = notification.StatusPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fg_notifications (id, org_id, alert_id, contact_id, channel, destination, subject, body, status, attempts, last_error, sent_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, n.ID, n.OrgID, n.AlertID, n.ContactID, n.Channel, n.Destination, n.Subject, n.Body, n.Status, n.Attempts, n.LastError, toNullTime(n.SentAt), n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return notification.Notification{}, err
	}
	return n, nil
}

func (s *Store) UpdateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	n.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE fg_notifications
		SET status = $2, attempts = $3, last_error = $4, sent_at = $5, updated_at = $6
		WHERE id = $1
	`, n.ID, n.Status, n.Attempts, n.LastError, toNullTime(n.SentAt), n.UpdatedAt)
	if err != nil {
		return notification.Notification{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return notification.Notification{}, mapNotFound(sql.ErrNoRows, "notification", n.ID)
	}
	return s.GetNotification(ctx, n.ID)
}

func (s *Store) GetNotification(ctx context.Context, id string) (notification.Notification, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM fg_notifications WHERE id = $1`, id)
	n, err := scanNotification(row)
	if err != nil {
		return notification.Notification{}, mapNotFound(err, "notification", id)
	}
	return n, nil
}

func (s *Store) listNotifications(ctx context.Context, query string, args ...any) ([]notification.Notification, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]notification.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (s *Store) ListNotifications(ctx context.Context, orgID string, alertID string) ([]notification.Notification, error) {
	return s.listNotifications(ctx, `
		SELECT `+notificationColumns+` FROM fg_notifications
		WHERE ($1 = '' OR org_id = $1)
		  AND ($2 = '' OR alert_id = $2)
		ORDER BY created_at
	`, orgID, alertID)
}

func (s *Store) ListPendingNotifications(ctx context.Context) ([]notification.Notification, error) {
	return s.listNotifications(ctx, `
		SELECT `+notificationColumns+` FROM fg_notifications
		WHERE status = 'pending'
		ORDER BY created_at
	`)
}

// --- DeviceStore ------------------------------------------------------------

const deviceColumns = `id, org_id, unit_id, dev_eui, join_eui, app_key, network_device_id, status, failure_reason, attempts, last_uplink_at, created_at, updated_at`

func scanDevice(row interface{ Scan(...any) error }) (device.Device, error) {
	var (
		d          device.Device
		lastUplink sql.NullTime
	)
	err := row.Scan(&d.ID, &d.OrgID, &d.UnitID, &d.DevEUI, &d.JoinEUI, &d.AppKey, &d.NetworkDeviceID, &d.Status, &d.FailureReason, &d.Attempts, &lastUplink, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return device.Device{}, err
	}
	d.LastUplinkAt = fromNullTime(lastUplink)
	return d, nil
}

func (s *Store) CreateDevice(ctx context.Context, d device.Device) (device.Device, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	if d.Status == "" {
		d.Status = device.StatusPending
	}
	d.DevEUI = strings.ToUpper(d.DevEUI)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fg_devices (id, org_id, unit_id, dev_eui, join_eui, app_key, network_device_id, status, failure_reason, attempts, last_uplink_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, d.ID, d.OrgID, d.UnitID, d.DevEUI, d.JoinEUI, d.AppKey, d.NetworkDeviceID, d.Status, d.FailureReason, d.Attempts, toNullTime(d.LastUplinkAt), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return device.Device{}, err
	}
	return d, nil
}

func (s *Store) UpdateDevice(ctx context.Context, d device.Device) (device.Device, error) {
	d.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE fg_devices
		SET unit_id = $2, join_eui = $3, app_key = $4, network_device_id = $5, status = $6, failure_reason = $7, attempts = $8, last_uplink_at = $9, updated_at = $10
		WHERE id = $1
	`, d.ID, d.UnitID, d.JoinEUI, d.AppKey, d.NetworkDeviceID, d.Status, d.FailureReason, d.Attempts, toNullTime(d.LastUplinkAt), d.UpdatedAt)
	if err != nil {
		return device.Device{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return device.Device{}, mapNotFound(sql.ErrNoRows, "device", d.ID)
	}
	return s.GetDevice(ctx, d.ID)
}

func (s *Store) GetDevice(ctx context.Context, id string) (device.Device, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM fg_devices WHERE id = $1`, id)
	d, err := scanDevice(row)
	if err != nil {
		return device.Device{}, mapNotFound(err, "device", id)
	}
	return d, nil
}

func (s *Store) GetDeviceByEUI(ctx context.Context, devEUI string) (device.Device, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM fg_devices WHERE dev_eui = $1`, strings.ToUpper(devEUI))
	d, err := scanDevice(row)
	if err != nil {
		return device.Device{}, mapNotFound(err, "device EUI", devEUI)
	}
	return d, nil
}

func (s *Store) listDevices(ctx context.Context, query string, args ...any) ([]device.Device, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]device.Device, 0)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (s *Store) ListDevices(ctx context.Context, orgID string) ([]device.Device, error) {
	return s.listDevices(ctx, `
		SELECT `+deviceColumns+` FROM fg_devices
		WHERE ($1 = '' OR org_id = $1)
		ORDER BY created_at
	`, orgID)
}

func (s *Store) ListPendingDevices(ctx context.Context) ([]device.Device, error) {
	return s.listDevices(ctx, `
		SELECT `+deviceColumns+` FROM fg_devices
		WHERE status = 'pending'
		ORDER BY created_at
	`)
}

// --- SubscriptionStore ------------------------------------------------------

func (s *Store) UpsertSubscription(ctx context.Context, sub billing.Subscription) (billing.Subscription, error) {
	now := time.Now().UTC()
	sub.UpdatedAt = now
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fg_subscriptions (org_id, plan, status, provider_customer_id, current_period_end, sms_credits_remaining, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (org_id) DO UPDATE
		SET plan = EXCLUDED.plan,
		    status = EXCLUDED.status,
		    provider_customer_id = EXCLUDED.provider_customer_id,
		    current_period_end = EXCLUDED.current_period_end,
		    sms_credits_remaining = EXCLUDED.sms_credits_remaining,
		    updated_at = EXCLUDED.updated_at
	`, sub.OrgID, sub.Plan, sub.Status, sub.ProviderCustomerID, toNullTime(sub.CurrentPeriodEnd), sub.SMSCreditsRemaining, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return billing.Subscription{}, err
	}
	return s.GetSubscription(ctx, sub.OrgID)
}

func (s *Store) GetSubscription(ctx context.Context, orgID string) (billing.Subscription, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT org_id, plan, status, provider_customer_id, current_period_end, sms_credits_remaining, created_at, updated_at
		FROM fg_subscriptions
		WHERE org_id = $1
	`, orgID)

	var (
		sub       billing.Subscription
		periodEnd sql.NullTime
	)
	if err := row.Scan(&sub.OrgID, &sub.Plan, &sub.Status, &sub.ProviderCustomerID, &periodEnd, &sub.SMSCreditsRemaining, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return billing.Subscription{}, mapNotFound(err, "subscription", orgID)
	}
	sub.CurrentPeriodEnd = fromNullTime(periodEnd)
	return sub, nil
}
