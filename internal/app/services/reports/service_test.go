package reports

import (
	"context"
	"testing"
	"time"

	"github.com/getdatasurge/frostguard/internal/app/domain/org"
	"github.com/getdatasurge/frostguard/internal/app/domain/reading"
	"github.com/getdatasurge/frostguard/internal/app/domain/unit"
	"github.com/getdatasurge/frostguard/internal/app/storage/memory"
)

func TestComplianceValidation(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(7 * 24 * time.Hour)

	if _, err := svc.Compliance(ctx, "", "", "", from, to); err == nil {
		t.Fatal("expected error for missing org id")
	}
	if _, err := svc.Compliance(ctx, "org-1", "", "", time.Time{}, to); err == nil {
		t.Fatal("expected error for missing window start")
	}
	if _, err := svc.Compliance(ctx, "org-1", "", "", to, from); err == nil {
		t.Fatal("expected error for inverted window")
	}
	if _, err := svc.Compliance(ctx, "org-1", "", "", from, from.Add(MaxWindow+time.Hour)); err == nil {
		t.Fatal("expected error for oversized window")
	}
}

func TestComplianceSumsAlerts(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(store, nil)

	o, err := store.CreateOrg(ctx, org.Organization{Name: "Acme", Slug: "acme", Timezone: "UTC"})
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	u, err := store.CreateUnit(ctx, unit.Unit{OrgID: o.ID, Name: "Freezer 1", Status: unit.StatusOK})
	if err != nil {
		t.Fatalf("create unit: %v", err)
	}

	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	temp := -18.5
	if _, err := store.CreateReading(ctx, reading.Reading{
		OrgID:      o.ID,
		UnitID:     u.ID,
		DeviceID:   "dev-1",
		TempC:      temp,
		RecordedAt: from.Add(time.Hour),
	}); err != nil {
		t.Fatalf("create reading: %v", err)
	}

	rep, err := svc.Compliance(ctx, o.ID, "", "", from, to)
	if err != nil {
		t.Fatalf("compliance: %v", err)
	}
	if len(rep.Units) != 1 {
		t.Fatalf("expected 1 unit row, got %d", len(rep.Units))
	}
	row := rep.Units[0]
	if row.ReadingCount != 1 {
		t.Fatalf("expected 1 reading, got %d", row.ReadingCount)
	}
	if row.MinTempC == nil || *row.MinTempC != temp {
		t.Fatalf("unexpected min temp: %v", row.MinTempC)
	}
	if rep.GeneratedAt.IsZero() {
		t.Fatal("generated_at should be set")
	}
}
