// Package ingest decodes LoRaWAN uplinks from the network server webhook and
// turns them into readings and unit state updates.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/getdatasurge/frostguard/internal/app/domain/device"
	"github.com/getdatasurge/frostguard/internal/app/domain/reading"
	"github.com/getdatasurge/frostguard/internal/app/domain/unit"
	"github.com/getdatasurge/frostguard/internal/app/metrics"
	"github.com/getdatasurge/frostguard/internal/app/storage"
	"github.com/getdatasurge/frostguard/internal/cache"
	"github.com/getdatasurge/frostguard/pkg/logger"
)

// ErrUnknownDevice is returned for uplinks from EUIs never registered.
var ErrUnknownDevice = errors.New("unknown device")

// ErrDuplicate is returned when the uplink was already ingested.
var ErrDuplicate = errors.New("duplicate uplink")

// ErrInvalidUplink is returned when the payload lacks required fields.
var ErrInvalidUplink = errors.New("invalid uplink payload")

// Publisher receives accepted readings, e.g. for live streaming.
type Publisher interface {
	PublishReading(r reading.Reading)
}

// Service ingests sensor uplinks.
type Service struct {
	devices  storage.DeviceStore
	units    storage.UnitStore
	readings storage.ReadingStore
	cache    *cache.Cache
	metrics  *metrics.Metrics
	pub      Publisher
	log      *logger.Logger
}

// New constructs an ingest service. Cache, metrics and publisher are
// optional.
func New(devices storage.DeviceStore, units storage.UnitStore, readings storage.ReadingStore, c *cache.Cache, m *metrics.Metrics, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("ingest")
	}
	return &Service{
		devices:  devices,
		units:    units,
		readings: readings,
		cache:    c,
		metrics:  m,
		log:      log,
	}
}

// AttachPublisher sets the sink for accepted readings. Call before serving.
func (s *Service) AttachPublisher(pub Publisher) {
	s.pub = pub
}

// Uplink is a decoded network-server uplink.
type Uplink struct {
	DevEUI       string
	TempC        float64
	HumidityPct  *float64
	BatteryVolts *float64
	RecordedAt   time.Time
}

// ParseUplink extracts the fields FrostGuard needs from a network server
// uplink message. The decoded payload must carry a temperature under one of
// the common decoder field names.
func ParseUplink(payload []byte) (Uplink, error) {
	if !gjson.ValidBytes(payload) {
		return Uplink{}, fmt.Errorf("malformed JSON: %w", ErrInvalidUplink)
	}
	doc := gjson.ParseBytes(payload)

	devEUI := euiFromDeviceID(doc.Get("end_device_ids.device_id").String())
	if devEUI == "" {
		devEUI = doc.Get("end_device_ids.dev_eui").String()
	}
	if devEUI == "" {
		return Uplink{}, fmt.Errorf("missing end_device_ids.device_id: %w", ErrInvalidUplink)
	}

	decoded := doc.Get("uplink_message.decoded_payload")
	if !decoded.Exists() {
		return Uplink{}, fmt.Errorf("missing decoded_payload: %w", ErrInvalidUplink)
	}

	var temp gjson.Result
	for _, field := range []string{"temperature", "temp_c", "TempC_SHT"} {
		if v := decoded.Get(field); v.Exists() {
			temp = v
			break
		}
	}
	if !temp.Exists() {
		return Uplink{}, fmt.Errorf("decoded_payload has no temperature field: %w", ErrInvalidUplink)
	}

	up := Uplink{
		DevEUI: strings.ToUpper(strings.TrimSpace(devEUI)),
		TempC:  temp.Float(),
	}

	if v := decoded.Get("humidity"); v.Exists() {
		h := v.Float()
		up.HumidityPct = &h
	}
	for _, field := range []string{"battery", "battery_voltage", "BatV"} {
		if v := decoded.Get(field); v.Exists() {
			b := v.Float()
			up.BatteryVolts = &b
			break
		}
	}

	if ts := doc.Get("received_at").String(); ts != "" {
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return Uplink{}, fmt.Errorf("bad received_at %q: %w", ts, ErrInvalidUplink)
		}
		up.RecordedAt = parsed.UTC().Truncate(time.Second)
	} else {
		up.RecordedAt = time.Now().UTC().Truncate(time.Second)
	}

	return up, nil
}

// euiFromDeviceID recovers the DevEUI from the "eui-<dev_eui>" device
// identifier the registrar assigns on the network server. Other naming
// schemes return "" so the caller falls back to the dev_eui field.
func euiFromDeviceID(deviceID string) string {
	rest, ok := strings.CutPrefix(strings.TrimSpace(deviceID), "eui-")
	if !ok || len(rest) != 16 {
		return ""
	}
	for _, c := range rest {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return ""
		}
	}
	return rest
}

func (s *Service) countUplink(outcome string) {
	if s.metrics != nil {
		s.metrics.UplinksReceived.WithLabelValues(outcome).Inc()
	}
}

// Ingest processes one parsed uplink: deduplicates, persists the reading,
// activates the device on first contact and refreshes the unit's state.
func (s *Service) Ingest(ctx context.Context, up Uplink) (reading.Reading, error) {
	dev, err := s.devices.GetDeviceByEUI(ctx, up.DevEUI)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.countUplink("unknown_device")
			return reading.Reading{}, fmt.Errorf("dev_eui %s: %w", up.DevEUI, ErrUnknownDevice)
		}
		return reading.Reading{}, err
	}
	if dev.Status == device.StatusDeactivated {
		s.countUplink("deactivated")
		return reading.Reading{}, fmt.Errorf("device %s is deactivated: %w", dev.ID, ErrUnknownDevice)
	}

	seen, err := s.cache.MarkUplink(ctx, dev.ID, up.RecordedAt)
	if err != nil {
		s.log.WithError(err).Warn("uplink dedup cache unavailable; falling back to store")
		seen = false
	}
	if !seen {
		// The network server retries webhooks, so also guard against
		// duplicates that predate the cache entry.
		seen, err = s.readings.HasReading(ctx, dev.ID, up.RecordedAt)
		if err != nil {
			return reading.Reading{}, err
		}
	}
	if seen {
		s.countUplink("duplicate")
		return reading.Reading{}, fmt.Errorf("device %s at %s: %w", dev.ID, up.RecordedAt.Format(time.RFC3339), ErrDuplicate)
	}

	r := reading.Reading{
		OrgID:        dev.OrgID,
		UnitID:       dev.UnitID,
		DeviceID:     dev.ID,
		TempC:        up.TempC,
		HumidityPct:  up.HumidityPct,
		BatteryVolts: up.BatteryVolts,
		RecordedAt:   up.RecordedAt,
	}
	r, err = s.readings.CreateReading(ctx, r)
	if err != nil {
		// Release the dedup key so the network server's retry is not
		// swallowed as a duplicate of a reading that never persisted.
		if cerr := s.cache.ClearUplink(ctx, dev.ID, up.RecordedAt); cerr != nil {
			s.log.WithError(cerr).WithField("device_id", dev.ID).Warn("clear uplink dedup key")
		}
		return reading.Reading{}, err
	}

	if err := s.touchDevice(ctx, dev, up.RecordedAt); err != nil {
		s.log.WithError(err).WithField("device_id", dev.ID).Warn("update device after uplink")
	}
	if dev.UnitID != "" {
		if err := s.touchUnit(ctx, dev.UnitID, r); err != nil {
			s.log.WithError(err).WithField("unit_id", dev.UnitID).Warn("update unit after uplink")
		}
	}

	if err := s.cache.SetLatest(ctx, r); err != nil {
		s.log.WithError(err).Debug("cache latest reading")
	}
	if s.pub != nil {
		s.pub.PublishReading(r)
	}

	s.countUplink("accepted")
	if s.metrics != nil {
		s.metrics.ReadingsIngested.Inc()
	}
	return r, nil
}

// IngestPayload parses and ingests a raw webhook body.
func (s *Service) IngestPayload(ctx context.Context, payload []byte) (reading.Reading, error) {
	up, err := ParseUplink(payload)
	if err != nil {
		s.countUplink("invalid")
		return reading.Reading{}, err
	}
	return s.Ingest(ctx, up)
}

// Latest returns the most recent reading for a unit, served from cache when
// possible.
func (s *Service) Latest(ctx context.Context, unitID string) (reading.Reading, error) {
	if r, ok, err := s.cache.Latest(ctx, unitID); err == nil && ok {
		return r, nil
	}
	list, err := s.readings.ListReadings(ctx, unitID, time.Time{}, time.Time{}, 1)
	if err != nil {
		return reading.Reading{}, err
	}
	if len(list) == 0 {
		return reading.Reading{}, fmt.Errorf("unit %s has no readings: %w", unitID, storage.ErrNotFound)
	}
	return list[0], nil
}

// History returns readings for a unit within the window.
func (s *Service) History(ctx context.Context, unitID string, from, to time.Time, limit int) ([]reading.Reading, error) {
	return s.readings.ListReadings(ctx, unitID, from, to, limit)
}

// touchDevice records the uplink time and promotes a provisioning device to
// active on its first contact.
func (s *Service) touchDevice(ctx context.Context, dev device.Device, at time.Time) error {
	dev.LastUplinkAt = at
	if dev.Status == device.StatusProvisioning || dev.Status == device.StatusPending {
		dev.Status = device.StatusActive
		s.log.WithField("device_id", dev.ID).Info("device activated by first uplink")
	}
	_, err := s.devices.UpdateDevice(ctx, dev)
	return err
}

// touchUnit refreshes the unit's latest sample. Threshold evaluation and the
// excursion clock belong to the alert monitor, which has the resolved policy.
func (s *Service) touchUnit(ctx context.Context, unitID string, r reading.Reading) error {
	u, err := s.units.GetUnit(ctx, unitID)
	if err != nil {
		return err
	}

	temp := r.TempC
	u.LastTempC = &temp
	u.LastReadingAt = r.RecordedAt
	if u.Status == unit.StatusOffline || u.Status == unit.StatusUnmonitored {
		u.Status = unit.StatusOK
	}

	_, err = s.units.UpdateUnit(ctx, u)
	return err
}
