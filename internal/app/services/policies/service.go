// Package policies manages alert thresholds and resolves the effective
// policy for a unit through the unit, site and organization scopes.
package policies

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/getdatasurge/frostguard/internal/app/domain/policy"
	"github.com/getdatasurge/frostguard/internal/app/domain/unit"
	"github.com/getdatasurge/frostguard/internal/app/storage"
	"github.com/getdatasurge/frostguard/pkg/logger"
)

// ErrNoPolicy is returned when no enabled policy covers a unit at any scope.
var ErrNoPolicy = errors.New("no enabled policy for unit")

// Defaults applied when a policy leaves cadence fields at zero.
const (
	DefaultRepeatMinutes       = 30
	DefaultOfflineGraceMinutes = 30
)

// Service manages policies and scope resolution.
type Service struct {
	orgs  storage.OrgStore
	sites storage.SiteStore
	units storage.UnitStore
	store storage.PolicyStore
	log   *logger.Logger
}

// New constructs a policy service.
func New(orgs storage.OrgStore, sites storage.SiteStore, units storage.UnitStore, store storage.PolicyStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("policies")
	}
	return &Service{orgs: orgs, sites: sites, units: units, store: store, log: log}
}

// Input carries the policy fields accepted on create.
type Input struct {
	MinTempC            float64
	MaxTempC            float64
	DelayMinutes        int
	RepeatMinutes       int
	AckTimeoutMinutes   int
	OfflineGraceMinutes int
	Enabled             bool
}

func validateThresholds(minTemp, maxTemp float64, delay, repeat, ackTimeout, offlineGrace int) error {
	if minTemp >= maxTemp {
		return fmt.Errorf("min_temp_c must be below max_temp_c")
	}
	if delay < 0 || repeat < 0 || ackTimeout < 0 || offlineGrace < 0 {
		return fmt.Errorf("durations cannot be negative")
	}
	return nil
}

// Create registers a policy at the given scope. One policy per scope target.
func (s *Service) Create(ctx context.Context, orgID string, scope policy.Scope, scopeID string, in Input) (policy.Policy, error) {
	orgID = strings.TrimSpace(orgID)
	scopeID = strings.TrimSpace(scopeID)

	if orgID == "" {
		return policy.Policy{}, fmt.Errorf("org_id is required")
	}
	if _, err := s.orgs.GetOrg(ctx, orgID); err != nil {
		return policy.Policy{}, fmt.Errorf("org validation failed: %w", err)
	}

	switch scope {
	case policy.ScopeOrg:
		scopeID = ""
	case policy.ScopeSite:
		st, err := s.sites.GetSite(ctx, scopeID)
		if err != nil {
			return policy.Policy{}, fmt.Errorf("site validation failed: %w", err)
		}
		if st.OrgID != orgID {
			return policy.Policy{}, fmt.Errorf("site %s belongs to a different org", scopeID)
		}
	case policy.ScopeUnit:
		u, err := s.units.GetUnit(ctx, scopeID)
		if err != nil {
			return policy.Policy{}, fmt.Errorf("unit validation failed: %w", err)
		}
		if u.OrgID != orgID {
			return policy.Policy{}, fmt.Errorf("unit %s belongs to a different org", scopeID)
		}
	default:
		return policy.Policy{}, fmt.Errorf("unknown scope %q", scope)
	}

	if err := validateThresholds(in.MinTempC, in.MaxTempC, in.DelayMinutes, in.RepeatMinutes, in.AckTimeoutMinutes, in.OfflineGraceMinutes); err != nil {
		return policy.Policy{}, err
	}

	created, err := s.store.CreatePolicy(ctx, policy.Policy{
		OrgID:               orgID,
		Scope:               scope,
		ScopeID:             scopeID,
		MinTempC:            in.MinTempC,
		MaxTempC:            in.MaxTempC,
		DelayMinutes:        in.DelayMinutes,
		RepeatMinutes:       in.RepeatMinutes,
		AckTimeoutMinutes:   in.AckTimeoutMinutes,
		OfflineGraceMinutes: in.OfflineGraceMinutes,
		Enabled:             in.Enabled,
	})
	if err != nil {
		return policy.Policy{}, err
	}
	s.log.WithField("policy_id", created.ID).
		WithField("org_id", orgID).
		WithField("scope", string(scope)).
		Info("policy created")
	return created, nil
}

// Update applies the provided mutable fields. Scope cannot change.
func (s *Service) Update(ctx context.Context, id string, minTemp, maxTemp *float64, delay, repeat, ackTimeout, offlineGrace *int, enabled *bool) (policy.Policy, error) {
	p, err := s.store.GetPolicy(ctx, id)
	if err != nil {
		return policy.Policy{}, err
	}

	if minTemp != nil {
		p.MinTempC = *minTemp
	}
	if maxTemp != nil {
		p.MaxTempC = *maxTemp
	}
	if delay != nil {
		p.DelayMinutes = *delay
	}
	if repeat != nil {
		p.RepeatMinutes = *repeat
	}
	if ackTimeout != nil {
		p.AckTimeoutMinutes = *ackTimeout
	}
	if offlineGrace != nil {
		p.OfflineGraceMinutes = *offlineGrace
	}
	if enabled != nil {
		p.Enabled = *enabled
	}

	if err := validateThresholds(p.MinTempC, p.MaxTempC, p.DelayMinutes, p.RepeatMinutes, p.AckTimeoutMinutes, p.OfflineGraceMinutes); err != nil {
		return policy.Policy{}, err
	}
	return s.store.UpdatePolicy(ctx, p)
}

// Get returns a policy by ID.
func (s *Service) Get(ctx context.Context, id string) (policy.Policy, error) {
	return s.store.GetPolicy(ctx, id)
}

// List returns the organization's policies.
func (s *Service) List(ctx context.Context, orgID string) ([]policy.Policy, error) {
	return s.store.ListPolicies(ctx, orgID)
}

// Delete removes a policy. Units covered by it fall back to the next scope.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeletePolicy(ctx, id)
}

// ResolveForUnit finds the most specific enabled policy for a unit, checking
// unit scope, then site scope, then the organization default. Disabled
// policies are skipped rather than shadowing broader scopes.
func (s *Service) ResolveForUnit(ctx context.Context, u unit.Unit) (policy.Resolved, error) {
	lookups := []struct {
		scope   policy.Scope
		scopeID string
	}{
		{policy.ScopeUnit, u.ID},
		{policy.ScopeSite, u.SiteID},
		{policy.ScopeOrg, ""},
	}

	for _, l := range lookups {
		if l.scope == policy.ScopeSite && l.scopeID == "" {
			continue
		}
		p, err := s.store.GetPolicyByScope(ctx, u.OrgID, l.scope, l.scopeID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return policy.Resolved{}, err
		}
		if !p.Enabled {
			continue
		}
		return policy.Resolved{Policy: applyDefaults(p), Source: l.scope}, nil
	}
	return policy.Resolved{}, fmt.Errorf("unit %s: %w", u.ID, ErrNoPolicy)
}

func applyDefaults(p policy.Policy) policy.Policy {
	if p.RepeatMinutes == 0 {
		p.RepeatMinutes = DefaultRepeatMinutes
	}
	if p.OfflineGraceMinutes == 0 {
		p.OfflineGraceMinutes = DefaultOfflineGraceMinutes
	}
	return p
}
