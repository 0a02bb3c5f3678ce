package alert

import "time"

// Kind distinguishes what condition raised the alert.
type Kind string

const (
	KindHighTemp Kind = "high_temp"
	KindLowTemp  Kind = "low_temp"
	KindOffline  Kind = "offline"
)

// Status is the alert lifecycle state.
type Status string

const (
	StatusOpen         Status = "open"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// Alert records a compliance incident on a unit. At most one unresolved
// alert exists per (unit, kind).
type Alert struct {
	ID      string `json:"id"`
	OrgID   string `json:"org_id"`
	UnitID  string `json:"unit_id"`
	Kind    Kind   `json:"kind"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`

	// PeakTempC tracks the worst temperature observed while the alert was
	// open. Unused for offline alerts.
	PeakTempC *float64 `json:"peak_temp_c,omitempty"`

	// EscalationLevel is the highest contact level already notified.
	EscalationLevel int `json:"escalation_level"`

	LastNotifiedAt time.Time `json:"last_notified_at,omitempty"`

	OpenedAt       time.Time `json:"opened_at"`
	AcknowledgedAt time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string    `json:"acknowledged_by,omitempty"`
	ResolvedAt     time.Time `json:"resolved_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
