package units

import (
	"context"
	"errors"
	"testing"

	"github.com/getdatasurge/frostguard/internal/app/domain/device"
	"github.com/getdatasurge/frostguard/internal/app/domain/org"
	"github.com/getdatasurge/frostguard/internal/app/domain/site"
	"github.com/getdatasurge/frostguard/internal/app/domain/unit"
	"github.com/getdatasurge/frostguard/internal/app/storage/memory"
)

type denyQuota struct{ err error }

func (d denyQuota) CheckUnitQuota(context.Context, string) error { return d.err }

func fixture(t *testing.T) (*memory.Store, org.Organization) {
	t.Helper()
	store := memory.New()
	o, err := store.CreateOrg(context.Background(), org.Organization{Name: "Acme", Slug: "acme"})
	if err != nil {
		t.Fatalf("CreateOrg: %v", err)
	}
	return store, o
}

func TestCreateStartsUnmonitored(t *testing.T) {
	store, o := fixture(t)
	svc := New(store, store, store, store, nil, nil)

	u, err := svc.Create(context.Background(), o.ID, "", "Walk-in", unit.KindColdroom)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.Status != unit.StatusUnmonitored {
		t.Fatalf("expected unmonitored, got %s", u.Status)
	}
}

func TestCreateEnforcesQuota(t *testing.T) {
	store, o := fixture(t)
	quotaErr := errors.New("plan limit reached")
	svc := New(store, store, store, store, denyQuota{err: quotaErr}, nil)

	if _, err := svc.Create(context.Background(), o.ID, "", "Fridge", unit.KindFridge); !errors.Is(err, quotaErr) {
		t.Fatalf("expected quota error, got %v", err)
	}
}

func TestCreateRejectsForeignSite(t *testing.T) {
	store, o := fixture(t)
	other, _ := store.CreateOrg(context.Background(), org.Organization{Name: "Other", Slug: "other"})
	st, _ := store.CreateSite(context.Background(), site.Site{OrgID: other.ID, Name: "Warehouse"})
	svc := New(store, store, store, store, nil, nil)

	if _, err := svc.Create(context.Background(), o.ID, st.ID, "Fridge", unit.KindFridge); err == nil {
		t.Fatal("expected cross-org site to be rejected")
	}
}

func TestBindUnbindDevice(t *testing.T) {
	store, o := fixture(t)
	svc := New(store, store, store, store, nil, nil)
	ctx := context.Background()

	u, _ := svc.Create(ctx, o.ID, "", "Freezer", unit.KindFreezer)
	d, err := store.CreateDevice(ctx, device.Device{OrgID: o.ID, DevEUI: "70B3D57ED0000001"})
	if err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}

	bound, err := svc.BindDevice(ctx, u.ID, d.ID)
	if err != nil {
		t.Fatalf("BindDevice: %v", err)
	}
	if bound.Status != unit.StatusOK || bound.DeviceID != d.ID {
		t.Fatalf("unexpected unit %+v", bound)
	}
	got, _ := store.GetDevice(ctx, d.ID)
	if got.UnitID != u.ID {
		t.Fatalf("device should point back at the unit, got %q", got.UnitID)
	}

	unbound, err := svc.UnbindDevice(ctx, u.ID)
	if err != nil {
		t.Fatalf("UnbindDevice: %v", err)
	}
	if unbound.Status != unit.StatusUnmonitored || unbound.DeviceID != "" {
		t.Fatalf("unexpected unit %+v", unbound)
	}
	got, _ = store.GetDevice(ctx, d.ID)
	if got.UnitID != "" {
		t.Fatalf("unbind should clear the device side, got %q", got.UnitID)
	}
}

func TestBindDeviceRejectsDoubleBind(t *testing.T) {
	store, o := fixture(t)
	svc := New(store, store, store, store, nil, nil)
	ctx := context.Background()

	u1, _ := svc.Create(ctx, o.ID, "", "Freezer 1", unit.KindFreezer)
	u2, _ := svc.Create(ctx, o.ID, "", "Freezer 2", unit.KindFreezer)
	d, _ := store.CreateDevice(ctx, device.Device{OrgID: o.ID, DevEUI: "70B3D57ED0000002"})

	if _, err := svc.BindDevice(ctx, u1.ID, d.ID); err != nil {
		t.Fatalf("first bind: %v", err)
	}
	if _, err := svc.BindDevice(ctx, u2.ID, d.ID); err == nil {
		t.Fatal("binding the same device to a second unit should fail")
	}
}

func TestBindDeviceValidates(t *testing.T) {
	store, o := fixture(t)
	svc := New(store, store, store, store, nil, nil)
	ctx := context.Background()

	u, _ := svc.Create(ctx, o.ID, "", "Fridge", unit.KindFridge)

	if _, err := svc.BindDevice(ctx, u.ID, "missing"); err == nil {
		t.Fatal("binding an unknown device should fail")
	}

	other, _ := store.CreateOrg(ctx, org.Organization{Name: "Other", Slug: "other2"})
	foreign, _ := store.CreateDevice(ctx, device.Device{OrgID: other.ID, DevEUI: "70B3D57ED0000003"})
	if _, err := svc.BindDevice(ctx, u.ID, foreign.ID); err == nil {
		t.Fatal("binding a foreign org's device should fail")
	}
}

func TestBindDeviceReplacesPrevious(t *testing.T) {
	store, o := fixture(t)
	svc := New(store, store, store, store, nil, nil)
	ctx := context.Background()

	u, _ := svc.Create(ctx, o.ID, "", "Coldroom", unit.KindColdroom)
	d1, _ := store.CreateDevice(ctx, device.Device{OrgID: o.ID, DevEUI: "70B3D57ED0000004"})
	d2, _ := store.CreateDevice(ctx, device.Device{OrgID: o.ID, DevEUI: "70B3D57ED0000005"})

	if _, err := svc.BindDevice(ctx, u.ID, d1.ID); err != nil {
		t.Fatalf("bind d1: %v", err)
	}
	if _, err := svc.BindDevice(ctx, u.ID, d2.ID); err != nil {
		t.Fatalf("bind d2: %v", err)
	}

	old, _ := store.GetDevice(ctx, d1.ID)
	if old.UnitID != "" {
		t.Fatalf("replaced device should be released, got %q", old.UnitID)
	}
	cur, _ := store.GetDevice(ctx, d2.ID)
	if cur.UnitID != u.ID {
		t.Fatalf("new device should point at the unit, got %q", cur.UnitID)
	}
}
