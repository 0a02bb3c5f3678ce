package devices

import (
	"context"
	"sync"
	"time"

	"github.com/getdatasurge/frostguard/internal/app/domain/device"
	"github.com/getdatasurge/frostguard/internal/app/metrics"
	"github.com/getdatasurge/frostguard/internal/app/storage"
	"github.com/getdatasurge/frostguard/internal/app/system"
	"github.com/getdatasurge/frostguard/pkg/logger"
)

var _ system.Service = (*Provisioner)(nil)

// maxProvisionAttempts bounds registration retries before a device is marked
// failed.
const maxProvisionAttempts = 5

// retryBackoff is the base delay between registration attempts; it grows
// linearly with the attempt count.
const retryBackoff = 30 * time.Second

// Provisioner drains pending devices, registering each with the network
// server. Registered devices park at provisioning until their first uplink
// promotes them to active.
type Provisioner struct {
	store     storage.DeviceStore
	registrar Registrar
	metrics   *metrics.Metrics
	log       *logger.Logger
	interval  time.Duration

	mu          sync.Mutex
	nextAttempt map[string]time.Time
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool
}

// NewProvisioner creates a lifecycle-managed device provisioner.
func NewProvisioner(store storage.DeviceStore, registrar Registrar, log *logger.Logger) *Provisioner {
	if log == nil {
		log = logger.NewDefault("device-provisioner")
	}
	return &Provisioner{
		store:       store,
		registrar:   registrar,
		log:         log,
		interval:    20 * time.Second,
		nextAttempt: make(map[string]time.Time),
	}
}

// WithMetrics assigns the metrics collectors. Call before Start.
func (p *Provisioner) WithMetrics(mx *metrics.Metrics) {
	p.mu.Lock()
	p.metrics = mx
	p.mu.Unlock()
}

// WithInterval overrides the scan cadence. Call before Start.
func (p *Provisioner) WithInterval(interval time.Duration) {
	if interval > 0 {
		p.interval = interval
	}
}

func (p *Provisioner) Name() string { return "device-provisioner" }

func (p *Provisioner) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				p.Tick(runCtx)
			}
		}
	}()

	p.log.Info("device provisioner started")
	return nil
}

func (p *Provisioner) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.log.Info("device provisioner stopped")
	return nil
}

// Tick scans pending devices once. Exposed for tests and manual runs.
func (p *Provisioner) Tick(ctx context.Context) {
	if p.registrar == nil {
		return
	}

	pending, err := p.store.ListPendingDevices(ctx)
	if err != nil {
		p.log.WithError(err).Warn("list pending devices")
		return
	}

	now := time.Now().UTC()
	for _, d := range pending {
		p.mu.Lock()
		next, deferred := p.nextAttempt[d.ID]
		p.mu.Unlock()
		if deferred && now.Before(next) {
			continue
		}
		p.provision(ctx, d, now)
	}
}

func (p *Provisioner) provision(ctx context.Context, d device.Device, now time.Time) {
	networkID, err := p.registrar.RegisterDevice(ctx, d)
	if err != nil {
		d.Attempts++
		p.countAttempt("error")
		if d.Attempts >= maxProvisionAttempts {
			d.Status = device.StatusFailed
			d.FailureReason = err.Error()
			p.countAttempt("failed")
			p.clearBackoff(d.ID)
			p.log.WithError(err).
				WithField("device_id", d.ID).
				WithField("attempts", d.Attempts).
				Warn("device provisioning failed permanently")
		} else {
			p.mu.Lock()
			p.nextAttempt[d.ID] = now.Add(time.Duration(d.Attempts) * retryBackoff)
			p.mu.Unlock()
			p.log.WithError(err).
				WithField("device_id", d.ID).
				WithField("attempts", d.Attempts).
				Warn("device provisioning attempt failed, will retry")
		}
		if _, uerr := p.store.UpdateDevice(ctx, d); uerr != nil {
			p.log.WithError(uerr).WithField("device_id", d.ID).Warn("update device after provisioning attempt")
		}
		return
	}

	d.Status = device.StatusProvisioning
	d.NetworkDeviceID = networkID
	d.FailureReason = ""
	p.clearBackoff(d.ID)
	if _, err := p.store.UpdateDevice(ctx, d); err != nil {
		p.log.WithError(err).WithField("device_id", d.ID).Warn("update device after registration")
		return
	}
	p.countAttempt("registered")
	p.log.WithField("device_id", d.ID).
		WithField("network_device_id", networkID).
		Info("device registered with network server, awaiting first uplink")
}

func (p *Provisioner) clearBackoff(id string) {
	p.mu.Lock()
	delete(p.nextAttempt, id)
	p.mu.Unlock()
}

func (p *Provisioner) countAttempt(outcome string) {
	if p.metrics != nil {
		p.metrics.ProvisionAttempts.WithLabelValues(outcome).Inc()
	}
}
