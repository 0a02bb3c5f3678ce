package organizations

import (
	"context"
	"testing"

	"github.com/getdatasurge/frostguard/internal/app/storage/memory"
)

func TestCreateDerivesSlug(t *testing.T) {
	svc := New(memory.New(), nil)

	o, err := svc.Create(context.Background(), "Joe's Corner Deli", "", "ops@deli.test", "", 7)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if o.Slug != "joe-s-corner-deli" {
		t.Fatalf("unexpected slug %q", o.Slug)
	}
	if o.Timezone != "UTC" {
		t.Fatalf("expected UTC default, got %q", o.Timezone)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "", "", "", "", 7); err == nil {
		t.Fatal("expected missing name to be rejected")
	}
	if _, err := svc.Create(ctx, "Acme", "Bad Slug!", "", "", 7); err == nil {
		t.Fatal("expected invalid slug to be rejected")
	}
	if _, err := svc.Create(ctx, "Acme", "", "", "Mars/Olympus", 7); err == nil {
		t.Fatal("expected invalid timezone to be rejected")
	}
	if _, err := svc.Create(ctx, "Acme", "", "", "", 24); err == nil {
		t.Fatal("expected out-of-range digest hour to be rejected")
	}
}

func TestUpdatePartialFields(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	o, err := svc.Create(ctx, "Acme", "acme", "", "UTC", 7)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	tz := "America/Chicago"
	updated, err := svc.Update(ctx, o.ID, nil, nil, &tz, nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Timezone != tz {
		t.Fatalf("unexpected timezone %q", updated.Timezone)
	}
	if updated.Name != "Acme" {
		t.Fatalf("name should be unchanged, got %q", updated.Name)
	}

	empty := ""
	if _, err := svc.Update(ctx, o.ID, &empty, nil, nil, nil); err == nil {
		t.Fatal("expected empty name to be rejected")
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Acme Cold Chain":   "acme-cold-chain",
		"  Fridge #1  ":     "fridge-1",
		"ALL CAPS":          "all-caps",
		"trailing symbol!!": "trailing-symbol",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}
