package contact

import "time"

// Channel is a delivery medium for notifications.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// Contact is an escalation target. Level 1 contacts are notified first; the
// monitor walks up the levels while an alert stays unacknowledged.
type Contact struct {
	ID    string `json:"id"`
	OrgID string `json:"org_id"`

	// SiteID limits the contact to one site's units. Empty means org-wide.
	SiteID string `json:"site_id,omitempty"`

	Name     string    `json:"name"`
	Phone    string    `json:"phone,omitempty"`
	Email    string    `json:"email,omitempty"`
	Level    int       `json:"level"`
	Channels []Channel `json:"channels"`
	Enabled  bool      `json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
