package unit

import "time"

// Kind classifies the refrigeration asset being monitored.
type Kind string

const (
	KindFridge   Kind = "fridge"
	KindFreezer  Kind = "freezer"
	KindColdroom Kind = "coldroom"
	KindOther    Kind = "other"
)

// Status reflects the unit's current compliance state. Transitions are driven
// by reading ingestion and the offline monitor, never directly by API clients.
type Status string

const (
	StatusOK          Status = "ok"
	StatusExcursion   Status = "excursion"
	StatusOffline     Status = "offline"
	StatusUnmonitored Status = "unmonitored"
)

// Unit is a monitored refrigeration asset inside a site.
type Unit struct {
	ID     string `json:"id"`
	OrgID  string `json:"org_id"`
	SiteID string `json:"site_id"`
	Name   string `json:"name"`
	Kind   Kind   `json:"kind"`
	Status Status `json:"status"`

	// DeviceID binds the unit to a provisioned sensor. Empty means no sensor
	// is attached and the unit is unmonitored.
	DeviceID string `json:"device_id,omitempty"`

	LastTempC     *float64  `json:"last_temp_c,omitempty"`
	LastReadingAt time.Time `json:"last_reading_at,omitempty"`

	// ExcursionSince is set while the latest readings are out of bounds. The
	// alert monitor opens an alert once it has persisted past the policy
	// delay.
	ExcursionSince time.Time `json:"excursion_since,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
