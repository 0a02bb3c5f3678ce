package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
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
	"github.com/getdatasurge/frostguard/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development.
type Store struct {
	mu            sync.RWMutex
	nextID        int64
	orgs          map[string]org.Organization
	sites         map[string]site.Site
	units         map[string]unit.Unit
	policies      map[string]policy.Policy
	readings      map[string][]reading.Reading // keyed by unit ID
	alerts        map[string]alert.Alert
	contacts      map[string]contact.Contact
	notifications map[string]notification.Notification
	devices       map[string]device.Device
	devicesByEUI  map[string]string
	subscriptions map[string]billing.Subscription // keyed by org ID
}

var _ storage.OrgStore = (*Store)(nil)
var _ storage.SiteStore = (*Store)(nil)
var _ storage.UnitStore = (*Store)(nil)
var _ storage.PolicyStore = (*Store)(nil)
var _ storage.ReadingStore = (*Store)(nil)
var _ storage.AlertStore = (*Store)(nil)
var _ storage.ContactStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)
var _ storage.DeviceStore = (*Store)(nil)
var _ storage.SubscriptionStore = (*Store)(nil)
var _ storage.ReportStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:        1,
		orgs:          make(map[string]org.Organization),
		sites:         make(map[string]site.Site),
		units:         make(map[string]unit.Unit),
		policies:      make(map[string]policy.Policy),
		readings:      make(map[string][]reading.Reading),
		alerts:        make(map[string]alert.Alert),
		contacts:      make(map[string]contact.Contact),
		notifications: make(map[string]notification.Notification),
		devices:       make(map[string]device.Device),
		devicesByEUI:  make(map[string]string),
		subscriptions: make(map[string]billing.Subscription),
	}
}

func (m *Store) nextIDLocked() string {
	id := m.nextID
	m.nextID++
	return fmt.Sprintf("%d", id)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
}

// OrgStore implementation ----------------------------------------------------

func (m *Store) CreateOrg(_ context.Context, o org.Organization) (org.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o.ID == "" {
		o.ID = m.nextIDLocked()
	} else if _, exists := m.orgs[o.ID]; exists {
		return org.Organization{}, fmt.Errorf("org %s already exists", o.ID)
	}
	for _, other := range m.orgs {
		if other.Slug == o.Slug {
			return org.Organization{}, fmt.Errorf("org slug %q already in use", o.Slug)
		}
	}

	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	m.orgs[o.ID] = o
	return o, nil
}

func (m *Store) UpdateOrg(_ context.Context, o org.Organization) (org.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	original, ok := m.orgs[o.ID]
	if !ok {
		return org.Organization{}, notFound("org", o.ID)
	}
	o.CreatedAt = original.CreatedAt
	o.UpdatedAt = time.Now().UTC()
	m.orgs[o.ID] = o
	return o, nil
}

func (m *Store) GetOrg(_ context.Context, id string) (org.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orgs[id]
	if !ok {
		return org.Organization{}, notFound("org", id)
	}
	return o, nil
}

func (m *Store) GetOrgBySlug(_ context.Context, slug string) (org.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, o := range m.orgs {
		if o.Slug == slug {
			return o, nil
		}
	}
	return org.Organization{}, notFound("org slug", slug)
}

func (m *Store) ListOrgs(_ context.Context) ([]org.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]org.Organization, 0, len(m.orgs))
	for _, o := range m.orgs {
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *Store) DeleteOrg(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orgs[id]; !ok {
		return notFound("org", id)
	}
	delete(m.orgs, id)
	delete(m.subscriptions, id)
	for sid, s := range m.sites {
		if s.OrgID == id {
			delete(m.sites, sid)
		}
	}
	for uid, u := range m.units {
		if u.OrgID == id {
			delete(m.units, uid)
			delete(m.readings, uid)
		}
	}
	for pid, p := range m.policies {
		if p.OrgID == id {
			delete(m.policies, pid)
		}
	}
	for cid, c := range m.contacts {
		if c.OrgID == id {
			delete(m.contacts, cid)
		}
	}
	for aid, a := range m.alerts {
		if a.OrgID == id {
			delete(m.alerts, aid)
		}
	}
	for nid, n := range m.notifications {
		if n.OrgID == id {
			delete(m.notifications, nid)
		}
	}
	for did, d := range m.devices {
		if d.OrgID == id {
			delete(m.devices, did)
			delete(m.devicesByEUI, strings.ToUpper(d.DevEUI))
		}
	}
	return nil
}

// SiteStore implementation ---------------------------------------------------

func (m *Store) CreateSite(_ context.Context, s site.Site) (site.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == "" {
		s.ID = m.nextIDLocked()
	} else if _, exists := m.sites[s.ID]; exists {
		return site.Site{}, fmt.Errorf("site %s already exists", s.ID)
	}

	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	m.sites[s.ID] = s
	return s, nil
}

func (m *Store) UpdateSite(_ context.Context, s site.Site) (site.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	original, ok := m.sites[s.ID]
	if !ok {
		return site.Site{}, notFound("site", s.ID)
	}
	s.OrgID = original.OrgID
	s.CreatedAt = original.CreatedAt
	s.UpdatedAt = time.Now().UTC()
	m.sites[s.ID] = s
	return s, nil
}

func (m *Store) GetSite(_ context.Context, id string) (site.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sites[id]
	if !ok {
		return site.Site{}, notFound("site", id)
	}
	return s, nil
}

func (m *Store) ListSites(_ context.Context, orgID string) ([]site.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]site.Site, 0)
	for _, s := range m.sites {
		if orgID == "" || s.OrgID == orgID {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *Store) DeleteSite(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sites[id]; !ok {
		return notFound("site", id)
	}
	delete(m.sites, id)
	return nil
}

// UnitStore implementation ---------------------------------------------------

func (m *Store) CreateUnit(_ context.Context, u unit.Unit) (unit.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u.ID == "" {
		u.ID = m.nextIDLocked()
	} else if _, exists := m.units[u.ID]; exists {
		return unit.Unit{}, fmt.Errorf("unit %s already exists", u.ID)
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	m.units[u.ID] = u
	return u, nil
}

func (m *Store) UpdateUnit(_ context.Context, u unit.Unit) (unit.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	original, ok := m.units[u.ID]
	if !ok {
		return unit.Unit{}, notFound("unit", u.ID)
	}
	u.OrgID = original.OrgID
	u.CreatedAt = original.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	m.units[u.ID] = u
	return u, nil
}

func (m *Store) GetUnit(_ context.Context, id string) (unit.Unit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.units[id]
	if !ok {
		return unit.Unit{}, notFound("unit", id)
	}
	return u, nil
}

func (m *Store) ListUnits(_ context.Context, orgID string) ([]unit.Unit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]unit.Unit, 0)
	for _, u := range m.units {
		if orgID == "" || u.OrgID == orgID {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *Store) ListMonitoredUnits(_ context.Context) ([]unit.Unit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]unit.Unit, 0)
	for _, u := range m.units {
		if u.DeviceID != "" {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *Store) DeleteUnit(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.units[id]; !ok {
		return notFound("unit", id)
	}
	delete(m.units, id)
	delete(m.readings, id)
	return nil
}

// PolicyStore implementation -------------------------------------------------

func (m *Store) CreatePolicy(_ context.Context, p policy.Policy) (policy.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID == "" {
		p.ID = m.nextIDLocked()
	} else if _, exists := m.policies[p.ID]; exists {
		return policy.Policy{}, fmt.Errorf("policy %s already exists", p.ID)
	}
	for _, other := range m.policies {
		if other.OrgID == p.OrgID && other.Scope == p.Scope && other.ScopeID == p.ScopeID {
			return policy.Policy{}, fmt.Errorf("policy for %s %s already exists", p.Scope, p.ScopeID)
		}
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	m.policies[p.ID] = p
	return p, nil
}

func (m *Store) UpdatePolicy(_ context.Context, p policy.Policy) (policy.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	original, ok := m.policies[p.ID]
	if !ok {
		return policy.Policy{}, notFound("policy", p.ID)
	}
	p.OrgID = original.OrgID
	p.Scope = original.Scope
	p.ScopeID = original.ScopeID
	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	m.policies[p.ID] = p
	return p, nil
}

func (m *Store) GetPolicy(_ context.Context, id string) (policy.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.policies[id]
	if !ok {
		return policy.Policy{}, notFound("policy", id)
	}
	return p, nil
}

func (m *Store) GetPolicyByScope(_ context.Context, orgID string, scope policy.Scope, scopeID string) (policy.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.policies {
		if p.OrgID == orgID && p.Scope == scope && p.ScopeID == scopeID {
			return p, nil
		}
	}
	return policy.Policy{}, notFound("policy scope", string(scope)+"/"+scopeID)
}

func (m *Store) ListPolicies(_ context.Context, orgID string) ([]policy.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]policy.Policy, 0)
	for _, p := range m.policies {
		if orgID == "" || p.OrgID == orgID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *Store) DeletePolicy(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.policies[id]; !ok {
		return notFound("policy", id)
	}
	delete(m.policies, id)
	return nil
}

// ReadingStore implementation ------------------------------------------------

func (m *Store) CreateReading(_ context.Context, r reading.Reading) (reading.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID == "" {
		r.ID = m.nextIDLocked()
	}
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = time.Now().UTC()
	}
	m.readings[r.UnitID] = append(m.readings[r.UnitID], r)
	return r, nil
}

func (m *Store) ListReadings(_ context.Context, unitID string, from, to time.Time, limit int) ([]reading.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.readings[unitID]
	result := make([]reading.Reading, 0)
	for _, r := range all {
		if !from.IsZero() && r.RecordedAt.Before(from) {
			continue
		}
		if !to.IsZero() && r.RecordedAt.After(to) {
			continue
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RecordedAt.After(result[j].RecordedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *Store) HasReading(_ context.Context, deviceID string, recordedAt time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, list := range m.readings {
		for _, r := range list {
			if r.DeviceID == deviceID && r.RecordedAt.Equal(recordedAt) {
				return true, nil
			}
		}
	}
	return false, nil
}

// AlertStore implementation --------------------------------------------------

func (m *Store) CreateAlert(_ context.Context, a alert.Alert) (alert.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.ID == "" {
		a.ID = m.nextIDLocked()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.OpenedAt.IsZero() {
		a.OpenedAt = now
	}
	m.alerts[a.ID] = a
	return a, nil
}

func (m *Store) UpdateAlert(_ context.Context, a alert.Alert) (alert.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	original, ok := m.alerts[a.ID]
	if !ok {
		return alert.Alert{}, notFound("alert", a.ID)
	}
	a.OrgID = original.OrgID
	a.UnitID = original.UnitID
	a.Kind = original.Kind
	a.CreatedAt = original.CreatedAt
	a.UpdatedAt = time.Now().UTC()
	m.alerts[a.ID] = a
	return a, nil
}

func (m *Store) GetAlert(_ context.Context, id string) (alert.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.alerts[id]
	if !ok {
		return alert.Alert{}, notFound("alert", id)
	}
	return a, nil
}

func (m *Store) GetOpenAlert(_ context.Context, unitID string, kind alert.Kind) (alert.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.alerts {
		if a.UnitID == unitID && a.Kind == kind && a.Status != alert.StatusResolved {
			return a, nil
		}
	}
	return alert.Alert{}, notFound("open alert", unitID+"/"+string(kind))
}

func (m *Store) ListAlerts(_ context.Context, orgID string, status alert.Status, unitID string) ([]alert.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]alert.Alert, 0)
	for _, a := range m.alerts {
		if orgID != "" && a.OrgID != orgID {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		if unitID != "" && a.UnitID != unitID {
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].OpenedAt.After(result[j].OpenedAt) })
	return result, nil
}

func (m *Store) ListUnresolvedAlerts(_ context.Context) ([]alert.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]alert.Alert, 0)
	for _, a := range m.alerts {
		if a.Status != alert.StatusResolved {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].OpenedAt.Before(result[j].OpenedAt) })
	return result, nil
}

// ContactStore implementation ------------------------------------------------

func (m *Store) CreateContact(_ context.Context, c contact.Contact) (contact.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == "" {
		c.ID = m.nextIDLocked()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Channels = append([]contact.Channel(nil), c.Channels...)
	m.contacts[c.ID] = c
	return c, nil
}

func (m *Store) UpdateContact(_ context.Context, c contact.Contact) (contact.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	original, ok := m.contacts[c.ID]
	if !ok {
		return contact.Contact{}, notFound("contact", c.ID)
	}
	c.OrgID = original.OrgID
	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	c.Channels = append([]contact.Channel(nil), c.Channels...)
	m.contacts[c.ID] = c
	return c, nil
}

func (m *Store) GetContact(_ context.Context, id string) (contact.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.contacts[id]
	if !ok {
		return contact.Contact{}, notFound("contact", id)
	}
	return c, nil
}

func (m *Store) ListContacts(_ context.Context, orgID string) ([]contact.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]contact.Contact, 0)
	for _, c := range m.contacts {
		if orgID == "" || c.OrgID == orgID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Level != result[j].Level {
			return result[i].Level < result[j].Level
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Store) DeleteContact(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.contacts[id]; !ok {
		return notFound("contact", id)
	}
	delete(m.contacts, id)
	return nil
}

// NotificationStore implementation -------------------------------------------

func (m *Store) CreateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n.ID == "" {
		n.ID = m.nextIDLocked()
	}
	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now
	if n.Status == "" {
		n.Status = notification.StatusPending
	}
	m.notifications[n.ID] = n
	return n, nil
}

func (m *Store) UpdateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	original, ok := m.notifications[n.ID]
	if !ok {
		return notification.Notification{}, notFound("notification", n.ID)
	}
	n.OrgID = original.OrgID
	n.AlertID = original.AlertID
	n.CreatedAt = original.CreatedAt
	n.UpdatedAt = time.Now().UTC()
	m.notifications[n.ID] = n
	return n, nil
}

func (m *Store) GetNotification(_ context.Context, id string) (notification.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.notifications[id]
	if !ok {
		return notification.Notification{}, notFound("notification", id)
	}
	return n, nil
}

func (m *Store) ListNotifications(_ context.Context, orgID string, alertID string) ([]notification.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]notification.Notification, 0)
	for _, n := range m.notifications {
		if orgID != "" && n.OrgID != orgID {
			continue
		}
		if alertID != "" && n.AlertID != alertID {
			continue
		}
		result = append(result, n)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *Store) ListPendingNotifications(_ context.Context) ([]notification.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]notification.Notification, 0)
	for _, n := range m.notifications {
		if n.Status == notification.StatusPending {
			result = append(result, n)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// DeviceStore implementation -------------------------------------------------

func (m *Store) CreateDevice(_ context.Context, d device.Device) (device.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	eui := strings.ToUpper(d.DevEUI)
	if _, exists := m.devicesByEUI[eui]; exists {
		return device.Device{}, fmt.Errorf("device EUI %s already registered", d.DevEUI)
	}
	if d.ID == "" {
		d.ID = m.nextIDLocked()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	if d.Status == "" {
		d.Status = device.StatusPending
	}
	m.devices[d.ID] = d
	m.devicesByEUI[eui] = d.ID
	return d, nil
}

func (m *Store) UpdateDevice(_ context.Context, d device.Device) (device.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	original, ok := m.devices[d.ID]
	if !ok {
		return device.Device{}, notFound("device", d.ID)
	}
	d.OrgID = original.OrgID
	d.DevEUI = original.DevEUI
	d.CreatedAt = original.CreatedAt
	d.UpdatedAt = time.Now().UTC()
	m.devices[d.ID] = d
	return d, nil
}

func (m *Store) GetDevice(_ context.Context, id string) (device.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.devices[id]
	if !ok {
		return device.Device{}, notFound("device", id)
	}
	return d, nil
}

func (m *Store) GetDeviceByEUI(_ context.Context, devEUI string) (device.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.devicesByEUI[strings.ToUpper(devEUI)]
	if !ok {
		return device.Device{}, notFound("device EUI", devEUI)
	}
	return m.devices[id], nil
}

func (m *Store) ListDevices(_ context.Context, orgID string) ([]device.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]device.Device, 0)
	for _, d := range m.devices {
		if orgID == "" || d.OrgID == orgID {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *Store) ListPendingDevices(_ context.Context) ([]device.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]device.Device, 0)
	for _, d := range m.devices {
		if d.Status == device.StatusPending {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// SubscriptionStore implementation -------------------------------------------

func (m *Store) UpsertSubscription(_ context.Context, s billing.Subscription) (billing.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := m.subscriptions[s.OrgID]; ok {
		s.CreatedAt = existing.CreatedAt
	} else {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	m.subscriptions[s.OrgID] = s
	return s, nil
}

func (m *Store) GetSubscription(_ context.Context, orgID string) (billing.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.subscriptions[orgID]
	if !ok {
		return billing.Subscription{}, notFound("subscription", orgID)
	}
	return s, nil
}

// ReportStore implementation -------------------------------------------------

func (m *Store) ComplianceRows(_ context.Context, orgID, siteID string, from, to time.Time) ([]report.UnitRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := make([]report.UnitRow, 0)
	units := make([]unit.Unit, 0)
	for _, u := range m.units {
		if u.OrgID != orgID {
			continue
		}
		if siteID != "" && u.SiteID != siteID {
			continue
		}
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].CreatedAt.Before(units[j].CreatedAt) })

	for _, u := range units {
		row := report.UnitRow{UnitID: u.ID, UnitName: u.Name, SiteID: u.SiteID}
		for _, r := range m.readings[u.ID] {
			if r.RecordedAt.Before(from) || r.RecordedAt.After(to) {
				continue
			}
			row.ReadingCount++
			t := r.TempC
			if row.MinTempC == nil || t < *row.MinTempC {
				v := t
				row.MinTempC = &v
			}
			if row.MaxTempC == nil || t > *row.MaxTempC {
				v := t
				row.MaxTempC = &v
			}
			if row.AvgTempC == nil {
				v := 0.0
				row.AvgTempC = &v
			}
			*row.AvgTempC += t
		}
		if row.ReadingCount > 0 {
			*row.AvgTempC /= float64(row.ReadingCount)
		}
		for _, a := range m.alerts {
			if a.UnitID != u.ID || a.OpenedAt.Before(from) || a.OpenedAt.After(to) {
				continue
			}
			row.AlertCount++
			if a.Kind != alert.KindOffline {
				end := a.ResolvedAt
				if end.IsZero() {
					end = to
				}
				row.ExcursionMinutes += int(end.Sub(a.OpenedAt).Minutes())
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
