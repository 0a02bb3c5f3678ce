// Package sites manages physical locations within an organization.
package sites

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/getdatasurge/frostguard/internal/app/domain/site"
	"github.com/getdatasurge/frostguard/internal/app/storage"
	"github.com/getdatasurge/frostguard/pkg/logger"
)

// Service manages site records.
type Service struct {
	orgs  storage.OrgStore
	store storage.SiteStore
	log   *logger.Logger
}

// New constructs a site service.
func New(orgs storage.OrgStore, store storage.SiteStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("sites")
	}
	return &Service{orgs: orgs, store: store, log: log}
}

// Create registers a site under an organization. An empty timezone inherits
// the organization's.
func (s *Service) Create(ctx context.Context, orgID, name, address, timezone string) (site.Site, error) {
	orgID = strings.TrimSpace(orgID)
	name = strings.TrimSpace(name)
	timezone = strings.TrimSpace(timezone)

	if orgID == "" {
		return site.Site{}, fmt.Errorf("org_id is required")
	}
	if name == "" {
		return site.Site{}, fmt.Errorf("name is required")
	}

	o, err := s.orgs.GetOrg(ctx, orgID)
	if err != nil {
		return site.Site{}, fmt.Errorf("org validation failed: %w", err)
	}
	if timezone == "" {
		timezone = o.Timezone
	} else if _, err := time.LoadLocation(timezone); err != nil {
		return site.Site{}, fmt.Errorf("invalid timezone %q", timezone)
	}

	created, err := s.store.CreateSite(ctx, site.Site{
		OrgID:    orgID,
		Name:     name,
		Address:  strings.TrimSpace(address),
		Timezone: timezone,
	})
	if err != nil {
		return site.Site{}, err
	}
	s.log.WithField("site_id", created.ID).
		WithField("org_id", orgID).
		Info("site created")
	return created, nil
}

// Update applies the provided mutable fields.
func (s *Service) Update(ctx context.Context, id string, name, address, timezone *string) (site.Site, error) {
	st, err := s.store.GetSite(ctx, id)
	if err != nil {
		return site.Site{}, err
	}

	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return site.Site{}, fmt.Errorf("name cannot be empty")
		}
		st.Name = trimmed
	}
	if address != nil {
		st.Address = strings.TrimSpace(*address)
	}
	if timezone != nil {
		trimmed := strings.TrimSpace(*timezone)
		if _, err := time.LoadLocation(trimmed); err != nil {
			return site.Site{}, fmt.Errorf("invalid timezone %q", trimmed)
		}
		st.Timezone = trimmed
	}

	return s.store.UpdateSite(ctx, st)
}

// Get returns a site by ID.
func (s *Service) Get(ctx context.Context, id string) (site.Site, error) {
	return s.store.GetSite(ctx, id)
}

// List returns the organization's sites.
func (s *Service) List(ctx context.Context, orgID string) ([]site.Site, error) {
	return s.store.ListSites(ctx, orgID)
}

// Delete removes a site. Units remain but fall back to org-scope policies.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteSite(ctx, id)
}
