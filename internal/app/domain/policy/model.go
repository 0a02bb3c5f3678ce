package policy

import "time"

// Scope identifies the level of the hierarchy a policy applies to. Unit
// policies override site policies, which override the organization default.
type Scope string

const (
	ScopeOrg  Scope = "org"
	ScopeSite Scope = "site"
	ScopeUnit Scope = "unit"
)

// Policy holds alerting thresholds and notification cadence for a scope.
type Policy struct {
	ID    string `json:"id"`
	OrgID string `json:"org_id"`
	Scope Scope  `json:"scope"`

	// ScopeID is the site or unit the policy targets. Empty for org scope.
	ScopeID string `json:"scope_id,omitempty"`

	MinTempC float64 `json:"min_temp_c"`
	MaxTempC float64 `json:"max_temp_c"`

	// DelayMinutes is how long an excursion must persist before an alert
	// opens. Zero opens immediately.
	DelayMinutes int `json:"delay_minutes"`

	// RepeatMinutes is the re-notification cadence while an alert stays open.
	RepeatMinutes int `json:"repeat_minutes"`

	// AckTimeoutMinutes is how long an alert may sit unacknowledged before
	// notifications escalate to the next contact level. Zero disables
	// escalation.
	AckTimeoutMinutes int `json:"ack_timeout_minutes"`

	// OfflineGraceMinutes is the silence window after which a unit is
	// considered offline.
	OfflineGraceMinutes int `json:"offline_grace_minutes"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Resolved pairs an effective policy with the scope it was inherited from.
type Resolved struct {
	Policy Policy `json:"policy"`
	Source Scope  `json:"source"`
}
