package notifications

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/getdatasurge/frostguard/internal/app/domain/contact"
	"github.com/getdatasurge/frostguard/internal/app/domain/notification"
	"github.com/getdatasurge/frostguard/internal/app/metrics"
	billingsvc "github.com/getdatasurge/frostguard/internal/app/services/billing"
	"github.com/getdatasurge/frostguard/internal/app/storage"
	"github.com/getdatasurge/frostguard/internal/app/system"
	"github.com/getdatasurge/frostguard/pkg/logger"
)

var _ system.Service = (*Dispatcher)(nil)

// maxAttempts bounds delivery retries before a notification is failed.
const maxAttempts = 3

// CreditConsumer decrements one SMS credit, returning an error wrapping
// billing.ErrLimitReached when the org has none left.
type CreditConsumer interface {
	ConsumeSMSCredit(ctx context.Context, orgID string) error
}

// Dispatcher drains pending notifications, delivering each through the
// messenger for its channel. SMS deliveries consume plan credits first;
// exhausted orgs get their SMS marked skipped rather than sent.
type Dispatcher struct {
	store    storage.NotificationStore
	sms      Messenger
	email    Messenger
	credits  CreditConsumer
	metrics  *metrics.Metrics
	log      *logger.Logger
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewDispatcher creates a lifecycle-managed notification dispatcher. Nil
// messengers cause that channel's notifications to fail with an error.
func NewDispatcher(store storage.NotificationStore, sms, email Messenger, credits CreditConsumer, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefault("notification-dispatcher")
	}
	return &Dispatcher{
		store:    store,
		sms:      sms,
		email:    email,
		credits:  credits,
		log:      log,
		interval: 15 * time.Second,
	}
}

// WithMetrics assigns the metrics collectors. Call before Start.
func (d *Dispatcher) WithMetrics(mx *metrics.Metrics) {
	d.mu.Lock()
	d.metrics = mx
	d.mu.Unlock()
}

// WithInterval overrides the drain cadence. Call before Start.
func (d *Dispatcher) WithInterval(interval time.Duration) {
	if interval > 0 {
		d.interval = interval
	}
}

func (d *Dispatcher) Name() string { return "notification-dispatcher" }

func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				d.Tick(runCtx)
			}
		}
	}()

	d.log.Info("notification dispatcher started")
	return nil
}

func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	cancel := d.cancel
	d.running = false
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	d.log.Info("notification dispatcher stopped")
	return nil
}

// Tick drains the pending queue once. Exposed for tests and manual runs.
func (d *Dispatcher) Tick(ctx context.Context) {
	pending, err := d.store.ListPendingNotifications(ctx)
	if err != nil {
		d.log.WithError(err).Warn("list pending notifications")
		return
	}

	for _, n := range pending {
		d.deliver(ctx, n)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n notification.Notification) {
	now := time.Now().UTC()

	// Credits are consumed on the first attempt only; retries ride the
	// original deduction.
	if n.Channel == contact.ChannelSMS && d.credits != nil && n.Attempts == 0 {
		if err := d.credits.ConsumeSMSCredit(ctx, n.OrgID); err != nil {
			if errors.Is(err, billingsvc.ErrLimitReached) {
				n.Status = notification.StatusSkipped
				n.LastError = err.Error()
				if _, uerr := d.store.UpdateNotification(ctx, n); uerr != nil {
					d.log.WithError(uerr).WithField("notification_id", n.ID).Warn("mark notification skipped")
				}
				d.count(n.Channel, notification.StatusSkipped)
				d.log.WithField("notification_id", n.ID).
					WithField("org_id", n.OrgID).
					Warn("sms skipped, plan credits exhausted")
				return
			}
			d.log.WithError(err).WithField("notification_id", n.ID).Warn("consume sms credit")
			return
		}
	}

	var messenger Messenger
	switch n.Channel {
	case contact.ChannelSMS:
		messenger = d.sms
	case contact.ChannelEmail:
		messenger = d.email
	}

	n.Attempts++
	var sendErr error
	if messenger == nil {
		sendErr = errors.New("no messenger configured for channel " + string(n.Channel))
	} else {
		sendErr = messenger.Send(ctx, n)
	}

	if sendErr != nil {
		n.LastError = sendErr.Error()
		if n.Attempts >= maxAttempts {
			n.Status = notification.StatusFailed
			d.count(n.Channel, notification.StatusFailed)
			d.log.WithError(sendErr).
				WithField("notification_id", n.ID).
				WithField("attempts", n.Attempts).
				Warn("notification failed permanently")
		} else {
			d.log.WithError(sendErr).
				WithField("notification_id", n.ID).
				WithField("attempts", n.Attempts).
				Warn("notification delivery failed, will retry")
		}
	} else {
		n.Status = notification.StatusSent
		n.SentAt = now
		n.LastError = ""
		d.count(n.Channel, notification.StatusSent)
	}

	if _, err := d.store.UpdateNotification(ctx, n); err != nil {
		d.log.WithError(err).WithField("notification_id", n.ID).Warn("update notification")
	}
}

func (d *Dispatcher) count(ch contact.Channel, st notification.Status) {
	if d.metrics != nil {
		d.metrics.NotificationsSent.WithLabelValues(string(ch), string(st)).Inc()
	}
}
