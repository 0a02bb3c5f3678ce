// Package contacts manages escalation contacts.
package contacts

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/getdatasurge/frostguard/internal/app/domain/contact"
	"github.com/getdatasurge/frostguard/internal/app/storage"
	"github.com/getdatasurge/frostguard/pkg/logger"
)

// E.164, as the SMS provider requires.
var phonePattern = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Service manages contact records.
type Service struct {
	orgs  storage.OrgStore
	sites storage.SiteStore
	store storage.ContactStore
	log   *logger.Logger
}

// New constructs a contact service.
func New(orgs storage.OrgStore, sites storage.SiteStore, store storage.ContactStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("contacts")
	}
	return &Service{orgs: orgs, sites: sites, store: store, log: log}
}

func validateChannels(c contact.Contact) error {
	if len(c.Channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	for _, ch := range c.Channels {
		switch ch {
		case contact.ChannelSMS:
			if !phonePattern.MatchString(c.Phone) {
				return fmt.Errorf("sms channel requires an E.164 phone number")
			}
		case contact.ChannelEmail:
			if !emailPattern.MatchString(c.Email) {
				return fmt.Errorf("email channel requires a valid email address")
			}
		default:
			return fmt.Errorf("unknown channel %q", ch)
		}
	}
	return nil
}

// Create registers a contact. Level 1 is notified first during escalation.
func (s *Service) Create(ctx context.Context, orgID, siteID, name, phone, email string, level int, channels []contact.Channel) (contact.Contact, error) {
	orgID = strings.TrimSpace(orgID)
	name = strings.TrimSpace(name)

	if orgID == "" {
		return contact.Contact{}, fmt.Errorf("org_id is required")
	}
	if name == "" {
		return contact.Contact{}, fmt.Errorf("name is required")
	}
	if level < 1 {
		level = 1
	}
	if _, err := s.orgs.GetOrg(ctx, orgID); err != nil {
		return contact.Contact{}, fmt.Errorf("org validation failed: %w", err)
	}
	siteID = strings.TrimSpace(siteID)
	if siteID != "" {
		st, err := s.sites.GetSite(ctx, siteID)
		if err != nil {
			return contact.Contact{}, fmt.Errorf("site validation failed: %w", err)
		}
		if st.OrgID != orgID {
			return contact.Contact{}, fmt.Errorf("site %s belongs to a different org", siteID)
		}
	}

	c := contact.Contact{
		OrgID:    orgID,
		SiteID:   siteID,
		Name:     name,
		Phone:    strings.TrimSpace(phone),
		Email:    strings.TrimSpace(email),
		Level:    level,
		Channels: channels,
		Enabled:  true,
	}
	if err := validateChannels(c); err != nil {
		return contact.Contact{}, err
	}

	created, err := s.store.CreateContact(ctx, c)
	if err != nil {
		return contact.Contact{}, err
	}
	s.log.WithField("contact_id", created.ID).
		WithField("org_id", orgID).
		WithField("level", level).
		Info("contact created")
	return created, nil
}

// Update applies the provided mutable fields.
func (s *Service) Update(ctx context.Context, id string, name, phone, email *string, level *int, channels []contact.Channel, enabled *bool) (contact.Contact, error) {
	c, err := s.store.GetContact(ctx, id)
	if err != nil {
		return contact.Contact{}, err
	}

	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return contact.Contact{}, fmt.Errorf("name cannot be empty")
		}
		c.Name = trimmed
	}
	if phone != nil {
		c.Phone = strings.TrimSpace(*phone)
	}
	if email != nil {
		c.Email = strings.TrimSpace(*email)
	}
	if level != nil {
		if *level < 1 {
			return contact.Contact{}, fmt.Errorf("level must be at least 1")
		}
		c.Level = *level
	}
	if channels != nil {
		c.Channels = channels
	}
	if enabled != nil {
		c.Enabled = *enabled
	}

	if err := validateChannels(c); err != nil {
		return contact.Contact{}, err
	}
	return s.store.UpdateContact(ctx, c)
}

// Get returns a contact by ID.
func (s *Service) Get(ctx context.Context, id string) (contact.Contact, error) {
	return s.store.GetContact(ctx, id)
}

// List returns the organization's contacts ordered by escalation level.
func (s *Service) List(ctx context.Context, orgID string) ([]contact.Contact, error) {
	return s.store.ListContacts(ctx, orgID)
}

// ForUnit returns enabled contacts eligible for a unit's alerts: org-wide
// contacts plus those scoped to the unit's site, at or below the level.
func (s *Service) ForUnit(ctx context.Context, orgID, siteID string, maxLevel int) ([]contact.Contact, error) {
	all, err := s.store.ListContacts(ctx, orgID)
	if err != nil {
		return nil, err
	}

	eligible := make([]contact.Contact, 0, len(all))
	for _, c := range all {
		if !c.Enabled {
			continue
		}
		if c.SiteID != "" && c.SiteID != siteID {
			continue
		}
		if maxLevel > 0 && c.Level > maxLevel {
			continue
		}
		eligible = append(eligible, c)
	}
	return eligible, nil
}

// Delete removes a contact.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteContact(ctx, id)
}
