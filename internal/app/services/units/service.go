// Package units manages monitored refrigeration assets.
package units

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/getdatasurge/frostguard/internal/app/domain/unit"
	"github.com/getdatasurge/frostguard/internal/app/storage"
	"github.com/getdatasurge/frostguard/pkg/logger"
)

// QuotaChecker gates unit creation on the org's subscription limits.
type QuotaChecker interface {
	CheckUnitQuota(ctx context.Context, orgID string) error
}

// Service manages unit records.
type Service struct {
	orgs    storage.OrgStore
	sites   storage.SiteStore
	store   storage.UnitStore
	devices storage.DeviceStore
	quota   QuotaChecker
	log     *logger.Logger
}

// New constructs a unit service. A nil quota checker disables plan
// enforcement.
func New(orgs storage.OrgStore, sites storage.SiteStore, store storage.UnitStore, devices storage.DeviceStore, quota QuotaChecker, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("units")
	}
	return &Service{orgs: orgs, sites: sites, store: store, devices: devices, quota: quota, log: log}
}

func validKind(k unit.Kind) bool {
	switch k {
	case unit.KindFridge, unit.KindFreezer, unit.KindColdroom, unit.KindOther:
		return true
	}
	return false
}

// Create registers a unit. New units start unmonitored until a device is
// bound.
func (s *Service) Create(ctx context.Context, orgID, siteID, name string, kind unit.Kind) (unit.Unit, error) {
	orgID = strings.TrimSpace(orgID)
	siteID = strings.TrimSpace(siteID)
	name = strings.TrimSpace(name)

	if orgID == "" {
		return unit.Unit{}, fmt.Errorf("org_id is required")
	}
	if name == "" {
		return unit.Unit{}, fmt.Errorf("name is required")
	}
	if kind == "" {
		kind = unit.KindFridge
	}
	if !validKind(kind) {
		return unit.Unit{}, fmt.Errorf("unknown unit kind %q", kind)
	}

	if _, err := s.orgs.GetOrg(ctx, orgID); err != nil {
		return unit.Unit{}, fmt.Errorf("org validation failed: %w", err)
	}
	if siteID != "" {
		st, err := s.sites.GetSite(ctx, siteID)
		if err != nil {
			return unit.Unit{}, fmt.Errorf("site validation failed: %w", err)
		}
		if st.OrgID != orgID {
			return unit.Unit{}, fmt.Errorf("site %s belongs to a different org", siteID)
		}
	}
	if s.quota != nil {
		if err := s.quota.CheckUnitQuota(ctx, orgID); err != nil {
			return unit.Unit{}, err
		}
	}

	created, err := s.store.CreateUnit(ctx, unit.Unit{
		OrgID:  orgID,
		SiteID: siteID,
		Name:   name,
		Kind:   kind,
		Status: unit.StatusUnmonitored,
	})
	if err != nil {
		return unit.Unit{}, err
	}
	s.log.WithField("unit_id", created.ID).
		WithField("org_id", orgID).
		Info("unit created")
	return created, nil
}

// Update applies the provided mutable fields. Status is owned by ingestion
// and the monitor, not by API clients.
func (s *Service) Update(ctx context.Context, id string, name *string, kind *unit.Kind, siteID *string) (unit.Unit, error) {
	u, err := s.store.GetUnit(ctx, id)
	if err != nil {
		return unit.Unit{}, err
	}

	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return unit.Unit{}, fmt.Errorf("name cannot be empty")
		}
		u.Name = trimmed
	}
	if kind != nil {
		if !validKind(*kind) {
			return unit.Unit{}, fmt.Errorf("unknown unit kind %q", *kind)
		}
		u.Kind = *kind
	}
	if siteID != nil {
		trimmed := strings.TrimSpace(*siteID)
		if trimmed != "" {
			st, err := s.sites.GetSite(ctx, trimmed)
			if err != nil {
				return unit.Unit{}, fmt.Errorf("site validation failed: %w", err)
			}
			if st.OrgID != u.OrgID {
				return unit.Unit{}, fmt.Errorf("site %s belongs to a different org", trimmed)
			}
		}
		u.SiteID = trimmed
	}

	return s.store.UpdateUnit(ctx, u)
}

// BindDevice attaches a device to the unit and starts monitoring. The
// binding is written on both records; a device bound to another unit is
// rejected.
func (s *Service) BindDevice(ctx context.Context, unitID, deviceID string) (unit.Unit, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return unit.Unit{}, fmt.Errorf("device_id is required")
	}
	u, err := s.store.GetUnit(ctx, unitID)
	if err != nil {
		return unit.Unit{}, err
	}
	d, err := s.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return unit.Unit{}, fmt.Errorf("device validation failed: %w", err)
	}
	if d.OrgID != u.OrgID {
		return unit.Unit{}, fmt.Errorf("device %s belongs to a different org", deviceID)
	}
	if d.UnitID != "" && d.UnitID != u.ID {
		return unit.Unit{}, fmt.Errorf("device %s is already bound to unit %s", deviceID, d.UnitID)
	}

	// Release the unit's previous device before taking the new one.
	if u.DeviceID != "" && u.DeviceID != deviceID {
		if prev, err := s.devices.GetDevice(ctx, u.DeviceID); err == nil && prev.UnitID == u.ID {
			prev.UnitID = ""
			if _, err := s.devices.UpdateDevice(ctx, prev); err != nil {
				return unit.Unit{}, err
			}
		}
	}

	d.UnitID = u.ID
	if _, err := s.devices.UpdateDevice(ctx, d); err != nil {
		return unit.Unit{}, err
	}

	u.DeviceID = deviceID
	if u.Status == unit.StatusUnmonitored {
		u.Status = unit.StatusOK
	}
	updated, err := s.store.UpdateUnit(ctx, u)
	if err != nil {
		// Roll the device side back so the two records stay in step.
		d.UnitID = ""
		_, _ = s.devices.UpdateDevice(ctx, d)
		return unit.Unit{}, err
	}
	s.log.WithField("unit_id", unitID).
		WithField("device_id", deviceID).
		Info("device bound to unit")
	return updated, nil
}

// UnbindDevice detaches the unit's device, returning it to unmonitored.
func (s *Service) UnbindDevice(ctx context.Context, unitID string) (unit.Unit, error) {
	u, err := s.store.GetUnit(ctx, unitID)
	if err != nil {
		return unit.Unit{}, err
	}
	if u.DeviceID != "" {
		if d, err := s.devices.GetDevice(ctx, u.DeviceID); err == nil && d.UnitID == u.ID {
			d.UnitID = ""
			if _, err := s.devices.UpdateDevice(ctx, d); err != nil {
				return unit.Unit{}, err
			}
		}
	}
	u.DeviceID = ""
	u.Status = unit.StatusUnmonitored
	u.LastTempC = nil
	u.ExcursionSince = time.Time{}
	return s.store.UpdateUnit(ctx, u)
}

// Get returns a unit by ID.
func (s *Service) Get(ctx context.Context, id string) (unit.Unit, error) {
	return s.store.GetUnit(ctx, id)
}

// List returns the organization's units.
func (s *Service) List(ctx context.Context, orgID string) ([]unit.Unit, error) {
	return s.store.ListUnits(ctx, orgID)
}

// Delete removes a unit and its readings.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteUnit(ctx, id)
}
