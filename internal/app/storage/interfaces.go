package storage

import (
	"context"
	"errors"
	"time"

	"github.com/getdatasurge/frostguard/internal/app/domain/alert"
	"github.com/getdatasurge/frostguard/internal/app/domain/billing"
	"github.com/getdatasurge/frostguard/internal/app/domain/contact"
	"github.com/getdatasurge/frostguard/internal/app/domain/device"
	"github.com/getdatasurge/frostguard/internal/app/domain/notification"
	"github.com/getdatasurge/frostguard/internal/app/domain/org"
	"github.com/getdatasurge/frostguard/internal/app/domain/policy"
	"github.com/getdatasurge/frostguard/internal/app/domain/reading"
	"github.com/getdatasurge/frostguard/internal/app/domain/report"
	"github.com/getdatasurge/frostguard/internal/app/domain/site"
	"github.com/getdatasurge/frostguard/internal/app/domain/unit"
)

// ErrNotFound is returned by Get operations when no record matches. Both the
// memory and postgres implementations wrap it so callers can branch with
// errors.Is without caring which backend is configured.
var ErrNotFound = errors.New("not found")

// OrgStore persists organization records.
type OrgStore interface {
	CreateOrg(ctx context.Context, o org.Organization) (org.Organization, error)
	UpdateOrg(ctx context.Context, o org.Organization) (org.Organization, error)
	GetOrg(ctx context.Context, id string) (org.Organization, error)
	GetOrgBySlug(ctx context.Context, slug string) (org.Organization, error)
	ListOrgs(ctx context.Context) ([]org.Organization, error)
	DeleteOrg(ctx context.Context, id string) error
}

// SiteStore persists site records.
type SiteStore interface {
	CreateSite(ctx context.Context, s site.Site) (site.Site, error)
	UpdateSite(ctx context.Context, s site.Site) (site.Site, error)
	GetSite(ctx context.Context, id string) (site.Site, error)
	ListSites(ctx context.Context, orgID string) ([]site.Site, error)
	DeleteSite(ctx context.Context, id string) error
}

// UnitStore persists monitored units.
type UnitStore interface {
	CreateUnit(ctx context.Context, u unit.Unit) (unit.Unit, error)
	UpdateUnit(ctx context.Context, u unit.Unit) (unit.Unit, error)
	GetUnit(ctx context.Context, id string) (unit.Unit, error)
	ListUnits(ctx context.Context, orgID string) ([]unit.Unit, error)
	// ListMonitoredUnits spans all orgs and returns units with a bound
	// device; the alert monitor uses it.
	ListMonitoredUnits(ctx context.Context) ([]unit.Unit, error)
	DeleteUnit(ctx context.Context, id string) error
}

// PolicyStore persists alert policies.
type PolicyStore interface {
	CreatePolicy(ctx context.Context, p policy.Policy) (policy.Policy, error)
	UpdatePolicy(ctx context.Context, p policy.Policy) (policy.Policy, error)
	GetPolicy(ctx context.Context, id string) (policy.Policy, error)
	// GetPolicyByScope returns the policy registered for the exact scope, or
	// a not-found error when none exists.
	GetPolicyByScope(ctx context.Context, orgID string, scope policy.Scope, scopeID string) (policy.Policy, error)
	ListPolicies(ctx context.Context, orgID string) ([]policy.Policy, error)
	DeletePolicy(ctx context.Context, id string) error
}

// ReadingStore persists sensor readings.
type ReadingStore interface {
	CreateReading(ctx context.Context, r reading.Reading) (reading.Reading, error)
	ListReadings(ctx context.Context, unitID string, from, to time.Time, limit int) ([]reading.Reading, error)
	// HasReading reports whether a reading for the device at the exact
	// recorded timestamp already exists. Used for uplink deduplication when
	// no cache is configured.
	HasReading(ctx context.Context, deviceID string, recordedAt time.Time) (bool, error)
}

// AlertStore persists alerts.
type AlertStore interface {
	CreateAlert(ctx context.Context, a alert.Alert) (alert.Alert, error)
	UpdateAlert(ctx context.Context, a alert.Alert) (alert.Alert, error)
	GetAlert(ctx context.Context, id string) (alert.Alert, error)
	// GetOpenAlert returns the unresolved (open or acknowledged) alert for
	// the unit and kind, or a not-found error when none exists.
	GetOpenAlert(ctx context.Context, unitID string, kind alert.Kind) (alert.Alert, error)
	ListAlerts(ctx context.Context, orgID string, status alert.Status, unitID string) ([]alert.Alert, error)
	// ListUnresolvedAlerts spans all orgs; the alert monitor uses it.
	ListUnresolvedAlerts(ctx context.Context) ([]alert.Alert, error)
}

// ContactStore persists escalation contacts.
type ContactStore interface {
	CreateContact(ctx context.Context, c contact.Contact) (contact.Contact, error)
	UpdateContact(ctx context.Context, c contact.Contact) (contact.Contact, error)
	GetContact(ctx context.Context, id string) (contact.Contact, error)
	ListContacts(ctx context.Context, orgID string) ([]contact.Contact, error)
	DeleteContact(ctx context.Context, id string) error
}

// NotificationStore persists queued notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error)
	UpdateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error)
	GetNotification(ctx context.Context, id string) (notification.Notification, error)
	ListNotifications(ctx context.Context, orgID string, alertID string) ([]notification.Notification, error)
	// ListPendingNotifications spans all orgs; the dispatcher uses it.
	ListPendingNotifications(ctx context.Context) ([]notification.Notification, error)
}

// DeviceStore persists sensor devices.
type DeviceStore interface {
	CreateDevice(ctx context.Context, d device.Device) (device.Device, error)
	UpdateDevice(ctx context.Context, d device.Device) (device.Device, error)
	GetDevice(ctx context.Context, id string) (device.Device, error)
	GetDeviceByEUI(ctx context.Context, devEUI string) (device.Device, error)
	ListDevices(ctx context.Context, orgID string) ([]device.Device, error)
	// ListPendingDevices spans all orgs; the provisioner uses it.
	ListPendingDevices(ctx context.Context) ([]device.Device, error)
}

// SubscriptionStore persists per-org billing state.
type SubscriptionStore interface {
	UpsertSubscription(ctx context.Context, s billing.Subscription) (billing.Subscription, error)
	GetSubscription(ctx context.Context, orgID string) (billing.Subscription, error)
}

// ReportStore computes aggregate compliance figures.
type ReportStore interface {
	ComplianceRows(ctx context.Context, orgID, siteID string, from, to time.Time) ([]report.UnitRow, error)
}
