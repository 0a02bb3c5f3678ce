// Package notifications queues and delivers alert and digest messages over
// SMS and email.
package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/getdatasurge/frostguard/internal/app/domain/alert"
	"github.com/getdatasurge/frostguard/internal/app/domain/contact"
	"github.com/getdatasurge/frostguard/internal/app/domain/notification"
	"github.com/getdatasurge/frostguard/internal/app/storage"
	"github.com/getdatasurge/frostguard/pkg/logger"
)

// ContactFinder returns the enabled contacts eligible for a unit's alerts at
// or below the escalation level.
type ContactFinder interface {
	ForUnit(ctx context.Context, orgID, siteID string, maxLevel int) ([]contact.Contact, error)
}

// Service queues notifications for delivery by the dispatcher.
type Service struct {
	store    storage.NotificationStore
	units    storage.UnitStore
	contacts ContactFinder
	log      *logger.Logger
}

// New constructs a notification service.
func New(store storage.NotificationStore, units storage.UnitStore, contacts ContactFinder, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("notifications")
	}
	return &Service{store: store, units: units, contacts: contacts, log: log}
}

// NotifyAlert queues one notification per eligible contact channel. Repeat
// calls queue again; the monitor controls the cadence.
func (s *Service) NotifyAlert(ctx context.Context, a alert.Alert, level int) error {
	u, err := s.units.GetUnit(ctx, a.UnitID)
	if err != nil {
		return fmt.Errorf("load unit for alert %s: %w", a.ID, err)
	}

	eligible, err := s.contacts.ForUnit(ctx, a.OrgID, u.SiteID, level)
	if err != nil {
		return err
	}
	if len(eligible) == 0 {
		s.log.WithField("alert_id", a.ID).Warn("no eligible contacts for alert")
		return nil
	}

	subject := alertSubject(a, u.Name)
	body := a.Message
	if a.Kind != alert.KindOffline && a.PeakTempC != nil {
		body = fmt.Sprintf("%s (peak %.1f°C)", a.Message, *a.PeakTempC)
	}

	queued := 0
	for _, c := range eligible {
		for _, ch := range c.Channels {
			n := notification.Notification{
				OrgID:     a.OrgID,
				AlertID:   a.ID,
				ContactID: c.ID,
				Channel:   ch,
				Subject:   subject,
				Body:      body,
				Status:    notification.StatusPending,
			}
			switch ch {
			case contact.ChannelSMS:
				n.Destination = c.Phone
			case contact.ChannelEmail:
				n.Destination = c.Email
			default:
				continue
			}
			if n.Destination == "" {
				continue
			}
			if _, err := s.store.CreateNotification(ctx, n); err != nil {
				return err
			}
			queued++
		}
	}

	s.log.WithField("alert_id", a.ID).
		WithField("queued", queued).
		WithField("level", level).
		Info("alert notifications queued")
	return nil
}

// QueueEmail queues a standalone email, e.g. a daily digest.
func (s *Service) QueueEmail(ctx context.Context, orgID, destination, subject, body string) (notification.Notification, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return notification.Notification{}, fmt.Errorf("destination is required")
	}
	return s.store.CreateNotification(ctx, notification.Notification{
		OrgID:       orgID,
		Channel:     contact.ChannelEmail,
		Destination: destination,
		Subject:     subject,
		Body:        body,
		Status:      notification.StatusPending,
	})
}

// List returns notifications filtered by alert.
func (s *Service) List(ctx context.Context, orgID, alertID string) ([]notification.Notification, error) {
	return s.store.ListNotifications(ctx, orgID, alertID)
}

func alertSubject(a alert.Alert, unitName string) string {
	switch a.Kind {
	case alert.KindOffline:
		return fmt.Sprintf("[FrostGuard] %s is offline", unitName)
	case alert.KindLowTemp:
		return fmt.Sprintf("[FrostGuard] Low temperature on %s", unitName)
	default:
		return fmt.Sprintf("[FrostGuard] High temperature on %s", unitName)
	}
}
