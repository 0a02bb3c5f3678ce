package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	_ "github.com/lib/pq"

	"github.com/getdatasurge/frostguard/internal/app/domain/org"
	"github.com/getdatasurge/frostguard/internal/app/domain/policy"
	"github.com/getdatasurge/frostguard/internal/app/domain/reading"
	"github.com/getdatasurge/frostguard/internal/app/domain/unit"
	"github.com/getdatasurge/frostguard/internal/app/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestGetOrgNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM fg_orgs`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetOrg(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateOrgMissingRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE fg_orgs`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.UpdateOrg(context.Background(), org.Organization{ID: "missing", Name: "x", Slug: "x"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetPolicyByScopeQuery(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "org_id", "scope", "scope_id", "min_temp_c", "max_temp_c",
		"delay_minutes", "repeat_minutes", "ack_timeout_minutes", "offline_grace_minutes",
		"enabled", "created_at", "updated_at",
	}).AddRow("pol-1", "org-1", "site", "site-1", 0.0, 5.0, 10, 30, 15, 45, true, now, now)

	mock.ExpectQuery(`SELECT .+ FROM fg_policies`).
		WithArgs("org-1", policy.ScopeSite, "site-1").
		WillReturnRows(rows)

	p, err := store.GetPolicyByScope(context.Background(), "org-1", policy.ScopeSite, "site-1")
	if err != nil {
		t.Fatalf("GetPolicyByScope: %v", err)
	}
	if p.ID != "pol-1" || p.DelayMinutes != 10 {
		t.Fatalf("unexpected policy %+v", p)
	}
}

func TestHasReading(t *testing.T) {
	store, mock := newMockStore(t)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("dev-1", at).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	seen, err := store.HasReading(context.Background(), "dev-1", at)
	if err != nil {
		t.Fatalf("HasReading: %v", err)
	}
	if !seen {
		t.Fatal("expected existing reading")
	}
}

func TestListReadingsBuildsWindowQuery(t *testing.T) {
	store, mock := newMockStore(t)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "org_id", "unit_id", "device_id", "temp_c", "humidity_pct", "battery_volts", "recorded_at", "received_at",
	}).AddRow("r-1", "org-1", "unit-1", "dev-1", 4.2, nil, 3.6, from.Add(time.Hour), now)

	mock.ExpectQuery(`SELECT .+ FROM fg_readings .+ LIMIT`).
		WithArgs("unit-1", from, to, 10).
		WillReturnRows(rows)

	got, err := store.ListReadings(context.Background(), "unit-1", from, to, 10)
	if err != nil {
		t.Fatalf("ListReadings: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 reading, got %d", len(got))
	}
	if got[0].HumidityPct != nil {
		t.Fatal("expected nil humidity")
	}
	if got[0].BatteryVolts == nil || *got[0].BatteryVolts != 3.6 {
		t.Fatalf("unexpected battery %v", got[0].BatteryVolts)
	}
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store := New(db)

	ctx := context.Background()
	o, err := store.CreateOrg(ctx, org.Organization{Name: "Acme", Slug: "acme-it", Timezone: "UTC", DigestHour: 7})
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	defer store.DeleteOrg(ctx, o.ID)

	u, err := store.CreateUnit(ctx, unit.Unit{OrgID: o.ID, Name: "Fridge 1", Kind: unit.KindFridge, Status: unit.StatusUnmonitored})
	if err != nil {
		t.Fatalf("create unit: %v", err)
	}

	if _, err := store.CreateReading(ctx, reading.Reading{OrgID: o.ID, UnitID: u.ID, DeviceID: "dev-it", TempC: 4.0, RecordedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("create reading: %v", err)
	}

	rows, err := store.ComplianceRows(ctx, o.ID, "", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("compliance rows: %v", err)
	}
	if len(rows) != 1 || rows[0].ReadingCount != 1 {
		t.Fatalf("unexpected rows %+v", rows)
	}
}
