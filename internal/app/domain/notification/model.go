package notification

import (
	"time"

	"github.com/getdatasurge/frostguard/internal/app/domain/contact"
)

// Status is the delivery state of a queued notification.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"

	// StatusSkipped marks SMS notifications dropped because the org ran out
	// of plan credits.
	StatusSkipped Status = "skipped"
)

// Notification is one queued delivery of an alert or digest to a contact.
type Notification struct {
	ID          string          `json:"id"`
	OrgID       string          `json:"org_id"`
	AlertID     string          `json:"alert_id,omitempty"`
	ContactID   string          `json:"contact_id,omitempty"`
	Channel     contact.Channel `json:"channel"`
	Destination string          `json:"destination"`
	Subject     string          `json:"subject,omitempty"`
	Body        string          `json:"body"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"last_error,omitempty"`
	SentAt      time.Time       `json:"sent_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
