// Package devices manages LoRaWAN sensor registration and the provisioning
// state machine that drives it.
package devices

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/getdatasurge/frostguard/internal/app/domain/device"
	"github.com/getdatasurge/frostguard/internal/app/domain/unit"
	"github.com/getdatasurge/frostguard/internal/app/storage"
	"github.com/getdatasurge/frostguard/pkg/logger"
)

var euiPattern = regexp.MustCompile(`^[0-9A-F]{16}$`)

var keyPattern = regexp.MustCompile(`^[0-9A-F]{32}$`)

// ErrBadTransition is returned for lifecycle operations invalid in the
// device's current state.
var ErrBadTransition = errors.New("invalid device state transition")

// Service manages device records.
type Service struct {
	orgs  storage.OrgStore
	units storage.UnitStore
	store storage.DeviceStore
	log   *logger.Logger
}

// New constructs a device service.
func New(orgs storage.OrgStore, units storage.UnitStore, store storage.DeviceStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("devices")
	}
	return &Service{orgs: orgs, units: units, store: store, log: log}
}

// Register records a device awaiting network provisioning. The provisioner
// picks it up from pending.
func (s *Service) Register(ctx context.Context, orgID, unitID, devEUI, joinEUI, appKey string) (device.Device, error) {
	orgID = strings.TrimSpace(orgID)
	devEUI = strings.ToUpper(strings.TrimSpace(devEUI))
	joinEUI = strings.ToUpper(strings.TrimSpace(joinEUI))
	appKey = strings.ToUpper(strings.TrimSpace(appKey))

	if orgID == "" {
		return device.Device{}, fmt.Errorf("org_id is required")
	}
	if !euiPattern.MatchString(devEUI) {
		return device.Device{}, fmt.Errorf("dev_eui must be 16 hex characters")
	}
	if !euiPattern.MatchString(joinEUI) {
		return device.Device{}, fmt.Errorf("join_eui must be 16 hex characters")
	}
	if !keyPattern.MatchString(appKey) {
		return device.Device{}, fmt.Errorf("app_key must be 32 hex characters")
	}

	if _, err := s.orgs.GetOrg(ctx, orgID); err != nil {
		return device.Device{}, fmt.Errorf("org validation failed: %w", err)
	}
	unitID = strings.TrimSpace(unitID)
	var boundUnit unit.Unit
	if unitID != "" {
		u, err := s.units.GetUnit(ctx, unitID)
		if err != nil {
			return device.Device{}, fmt.Errorf("unit validation failed: %w", err)
		}
		if u.OrgID != orgID {
			return device.Device{}, fmt.Errorf("unit %s belongs to a different org", unitID)
		}
		if u.DeviceID != "" {
			return device.Device{}, fmt.Errorf("unit %s already has device %s bound", unitID, u.DeviceID)
		}
		boundUnit = u
	}

	created, err := s.store.CreateDevice(ctx, device.Device{
		OrgID:   orgID,
		UnitID:  unitID,
		DevEUI:  devEUI,
		JoinEUI: joinEUI,
		AppKey:  appKey,
		Status:  device.StatusPending,
	})
	if err != nil {
		return device.Device{}, err
	}

	// Write the unit half of the binding so the offline monitor sees the
	// unit as instrumented.
	if unitID != "" {
		boundUnit.DeviceID = created.ID
		if boundUnit.Status == unit.StatusUnmonitored {
			boundUnit.Status = unit.StatusOK
		}
		if _, err := s.units.UpdateUnit(ctx, boundUnit); err != nil {
			return device.Device{}, fmt.Errorf("bind unit %s: %w", unitID, err)
		}
	}
	s.log.WithField("device_id", created.ID).
		WithField("dev_eui", devEUI).
		Info("device registered, awaiting provisioning")
	return created, nil
}

// Retry requeues a failed device for provisioning.
func (s *Service) Retry(ctx context.Context, id string) (device.Device, error) {
	d, err := s.store.GetDevice(ctx, id)
	if err != nil {
		return device.Device{}, err
	}
	if d.Status != device.StatusFailed {
		return device.Device{}, fmt.Errorf("device %s is %s: %w", id, d.Status, ErrBadTransition)
	}
	d.Status = device.StatusPending
	d.FailureReason = ""
	d.Attempts = 0
	updated, err := s.store.UpdateDevice(ctx, d)
	if err != nil {
		return device.Device{}, err
	}
	s.log.WithField("device_id", id).Info("device requeued for provisioning")
	return updated, nil
}

// Deactivate retires a device. Deactivated devices reject uplinks and never
// return to service; register a new record to reuse the hardware.
func (s *Service) Deactivate(ctx context.Context, id string) (device.Device, error) {
	d, err := s.store.GetDevice(ctx, id)
	if err != nil {
		return device.Device{}, err
	}
	if d.Status == device.StatusDeactivated {
		return d, nil
	}
	d.Status = device.StatusDeactivated
	updated, err := s.store.UpdateDevice(ctx, d)
	if err != nil {
		return device.Device{}, err
	}

	// Unbind the unit so it reads as unmonitored rather than silently
	// offline.
	if d.UnitID != "" {
		if u, err := s.units.GetUnit(ctx, d.UnitID); err == nil && u.DeviceID == d.ID {
			u.DeviceID = ""
			u.Status = unit.StatusUnmonitored
			u.LastTempC = nil
			u.ExcursionSince = time.Time{}
			if _, err := s.units.UpdateUnit(ctx, u); err != nil {
				s.log.WithError(err).WithField("unit_id", d.UnitID).Warn("unbind unit on deactivate")
			}
		}
	}

	s.log.WithField("device_id", id).Warn("device deactivated")
	return updated, nil
}

// Get returns a device by ID.
func (s *Service) Get(ctx context.Context, id string) (device.Device, error) {
	return s.store.GetDevice(ctx, id)
}

// List returns the organization's devices.
func (s *Service) List(ctx context.Context, orgID string) ([]device.Device, error) {
	return s.store.ListDevices(ctx, orgID)
}
