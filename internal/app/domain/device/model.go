package device

import "time"

// Status is the provisioning state of a LoRaWAN sensor.
//
// Lifecycle: pending -> provisioning -> active, with failed reachable from
// provisioning when retries are exhausted and deactivated reachable from any
// state. A registered device parks at provisioning until its first uplink
// arrives; ingestion promotes it to active.
type Status string

const (
	StatusPending      Status = "pending"
	StatusProvisioning Status = "provisioning"
	StatusActive       Status = "active"
	StatusFailed       Status = "failed"
	StatusDeactivated  Status = "deactivated"
)

// Device is a LoRaWAN temperature sensor registered (or being registered)
// with the network server.
type Device struct {
	ID     string `json:"id"`
	OrgID  string `json:"org_id"`
	UnitID string `json:"unit_id,omitempty"`

	DevEUI  string `json:"dev_eui"`
	JoinEUI string `json:"join_eui"`
	AppKey  string `json:"-"`

	// NetworkDeviceID is the identifier assigned on the network server side
	// once registration succeeds.
	NetworkDeviceID string `json:"network_device_id,omitempty"`

	Status        Status    `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
	Attempts      int       `json:"attempts"`
	LastUplinkAt  time.Time `json:"last_uplink_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
