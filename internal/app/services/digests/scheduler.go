package digests

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/getdatasurge/frostguard/internal/app/domain/org"
	"github.com/getdatasurge/frostguard/pkg/logger"
)

// Scheduler fires once an hour and sends the digest to every organization
// whose configured digest hour has just arrived in its own timezone. A digest
// is sent at most once per org per calendar day.
type Scheduler struct {
	svc *Service
	log *logger.Logger

	cron *cron.Cron
	now  func() time.Time

	mu       sync.Mutex
	lastSent map[string]string // org ID -> local date the digest went out
	running  bool
}

// NewScheduler constructs a scheduler around a digest service.
func NewScheduler(svc *Service, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("digest-scheduler")
	}
	return &Scheduler{
		svc:      svc,
		log:      log,
		now:      time.Now,
		lastSent: make(map[string]string),
	}
}

// Name implements system.Service.
func (s *Scheduler) Name() string { return "digest-scheduler" }

// Start implements system.Service.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("digest scheduler already running")
	}
	s.cron = cron.New()
	if _, err := s.cron.AddFunc("0 * * * *", func() {
		if err := s.Tick(context.Background()); err != nil {
			s.log.WithError(err).Error("digest tick failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule digest job: %w", err)
	}
	s.cron.Start()
	s.running = true
	s.log.Info("digest scheduler started")
	return nil
}

// Stop implements system.Service. It waits for an in-flight tick to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.running = false
	s.log.Info("digest scheduler stopped")
	return nil
}

// Tick sends digests to every organization whose local digest hour matches
// the current time. It is safe to call directly from tests.
func (s *Scheduler) Tick(ctx context.Context) error {
	orgs, err := s.svc.orgs.ListOrgs(ctx)
	if err != nil {
		return fmt.Errorf("list orgs: %w", err)
	}
	now := s.now()
	var firstErr error
	for _, o := range orgs {
		if !s.due(o, now) {
			continue
		}
		if err := s.svc.SendFor(ctx, o, now); err != nil {
			s.log.WithError(err).WithField("org_id", o.ID).Error("digest send failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.markSent(o.ID, s.localDate(o, now))
	}
	return firstErr
}

func (s *Scheduler) due(o org.Organization, now time.Time) bool {
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)
	if local.Hour() != o.DigestHour {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSent[o.ID] != local.Format("2006-01-02")
}

func (s *Scheduler) localDate(o org.Organization, now time.Time) string {
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return now.In(loc).Format("2006-01-02")
}

func (s *Scheduler) markSent(orgID, date string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSent[orgID] = date
}
