package reading

import "time"

// Reading is a single decoded sensor observation.
type Reading struct {
	ID           string    `json:"id"`
	OrgID        string    `json:"org_id"`
	UnitID       string    `json:"unit_id"`
	DeviceID     string    `json:"device_id"`
	TempC        float64   `json:"temp_c"`
	HumidityPct  *float64  `json:"humidity_pct,omitempty"`
	BatteryVolts *float64  `json:"battery_volts,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
	ReceivedAt   time.Time `json:"received_at"`
}
