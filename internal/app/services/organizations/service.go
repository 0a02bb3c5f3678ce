// Package organizations manages tenant organizations.
package organizations

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/getdatasurge/frostguard/internal/app/domain/org"
	"github.com/getdatasurge/frostguard/internal/app/storage"
	"github.com/getdatasurge/frostguard/pkg/logger"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Service manages organization records.
type Service struct {
	store storage.OrgStore
	log   *logger.Logger
}

// New constructs an organization service.
func New(store storage.OrgStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("organizations")
	}
	return &Service{store: store, log: log}
}

// Create registers a new organization. An empty slug is derived from the name.
func (s *Service) Create(ctx context.Context, name, slug, contactEmail, timezone string, digestHour int) (org.Organization, error) {
	name = strings.TrimSpace(name)
	slug = strings.TrimSpace(slug)
	contactEmail = strings.TrimSpace(contactEmail)
	timezone = strings.TrimSpace(timezone)

	if name == "" {
		return org.Organization{}, fmt.Errorf("name is required")
	}
	if slug == "" {
		slug = Slugify(name)
	}
	if !slugPattern.MatchString(slug) {
		return org.Organization{}, fmt.Errorf("slug %q must be lowercase alphanumeric with hyphens", slug)
	}
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return org.Organization{}, fmt.Errorf("invalid timezone %q", timezone)
	}
	if digestHour < 0 || digestHour > 23 {
		return org.Organization{}, fmt.Errorf("digest_hour must be between 0 and 23")
	}

	created, err := s.store.CreateOrg(ctx, org.Organization{
		Name:         name,
		Slug:         slug,
		ContactEmail: contactEmail,
		Timezone:     timezone,
		DigestHour:   digestHour,
	})
	if err != nil {
		return org.Organization{}, err
	}
	s.log.WithField("org_id", created.ID).
		WithField("slug", created.Slug).
		Info("organization created")
	return created, nil
}

// Update applies the provided mutable fields.
func (s *Service) Update(ctx context.Context, id string, name, contactEmail, timezone *string, digestHour *int) (org.Organization, error) {
	o, err := s.store.GetOrg(ctx, id)
	if err != nil {
		return org.Organization{}, err
	}

	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return org.Organization{}, fmt.Errorf("name cannot be empty")
		}
		o.Name = trimmed
	}
	if contactEmail != nil {
		o.ContactEmail = strings.TrimSpace(*contactEmail)
	}
	if timezone != nil {
		trimmed := strings.TrimSpace(*timezone)
		if _, err := time.LoadLocation(trimmed); err != nil {
			return org.Organization{}, fmt.Errorf("invalid timezone %q", trimmed)
		}
		o.Timezone = trimmed
	}
	if digestHour != nil {
		if *digestHour < 0 || *digestHour > 23 {
			return org.Organization{}, fmt.Errorf("digest_hour must be between 0 and 23")
		}
		o.DigestHour = *digestHour
	}

	return s.store.UpdateOrg(ctx, o)
}

// Get returns an organization by ID.
func (s *Service) Get(ctx context.Context, id string) (org.Organization, error) {
	return s.store.GetOrg(ctx, id)
}

// GetBySlug returns an organization by its slug.
func (s *Service) GetBySlug(ctx context.Context, slug string) (org.Organization, error) {
	return s.store.GetOrgBySlug(ctx, strings.TrimSpace(slug))
}

// List returns all organizations.
func (s *Service) List(ctx context.Context) ([]org.Organization, error) {
	return s.store.ListOrgs(ctx)
}

// Delete removes an organization and everything it owns.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteOrg(ctx, id); err != nil {
		return err
	}
	s.log.WithField("org_id", id).Warn("organization deleted")
	return nil
}

// Slugify derives a URL-safe slug from a display name.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
