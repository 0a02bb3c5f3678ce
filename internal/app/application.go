// Package app wires the domain services together and manages their
// lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/getdatasurge/frostguard/internal/app/domain/billing"
	"github.com/getdatasurge/frostguard/internal/app/metrics"
	alertsvc "github.com/getdatasurge/frostguard/internal/app/services/alerts"
	billingsvc "github.com/getdatasurge/frostguard/internal/app/services/billing"
	contactsvc "github.com/getdatasurge/frostguard/internal/app/services/contacts"
	devicesvc "github.com/getdatasurge/frostguard/internal/app/services/devices"
	digestsvc "github.com/getdatasurge/frostguard/internal/app/services/digests"
	ingestsvc "github.com/getdatasurge/frostguard/internal/app/services/ingest"
	notifysvc "github.com/getdatasurge/frostguard/internal/app/services/notifications"
	orgsvc "github.com/getdatasurge/frostguard/internal/app/services/organizations"
	policysvc "github.com/getdatasurge/frostguard/internal/app/services/policies"
	reportsvc "github.com/getdatasurge/frostguard/internal/app/services/reports"
	sitesvc "github.com/getdatasurge/frostguard/internal/app/services/sites"
	unitsvc "github.com/getdatasurge/frostguard/internal/app/services/units"
	"github.com/getdatasurge/frostguard/internal/app/storage"
	"github.com/getdatasurge/frostguard/internal/app/storage/memory"
	"github.com/getdatasurge/frostguard/internal/app/system"
	"github.com/getdatasurge/frostguard/internal/cache"
	"github.com/getdatasurge/frostguard/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Orgs          storage.OrgStore
	Sites         storage.SiteStore
	Units         storage.UnitStore
	Policies      storage.PolicyStore
	Readings      storage.ReadingStore
	Alerts        storage.AlertStore
	Contacts      storage.ContactStore
	Notifications storage.NotificationStore
	Devices       storage.DeviceStore
	Subscriptions storage.SubscriptionStore
	Reports       storage.ReportStore
}

// Options carries the external integrations the application runs with. Every
// field is optional; missing integrations disable the dependent background
// service and log a warning.
type Options struct {
	Cache   *cache.Cache
	Metrics *metrics.Metrics

	SMS       notifysvc.Messenger
	Email     notifysvc.Messenger
	Registrar devicesvc.Registrar

	Plans                map[string]billing.Plan
	BillingWebhookSecret string

	MonitorInterval   time.Duration
	DispatchInterval  time.Duration
	ProvisionInterval time.Duration
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Orgs          *orgsvc.Service
	Sites         *sitesvc.Service
	Units         *unitsvc.Service
	Policies      *policysvc.Service
	Contacts      *contactsvc.Service
	Alerts        *alertsvc.Service
	Notifications *notifysvc.Service
	Devices       *devicesvc.Service
	Ingest        *ingestsvc.Service
	Billing       *billingsvc.Service
	Digests       *digestsvc.Service
	Reports       *reportsvc.Service
	Monitor       *alertsvc.Monitor
	Metrics       *metrics.Metrics
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Orgs == nil {
		stores.Orgs = mem
	}
	if stores.Sites == nil {
		stores.Sites = mem
	}
	if stores.Units == nil {
		stores.Units = mem
	}
	if stores.Policies == nil {
		stores.Policies = mem
	}
	if stores.Readings == nil {
		stores.Readings = mem
	}
	if stores.Alerts == nil {
		stores.Alerts = mem
	}
	if stores.Contacts == nil {
		stores.Contacts = mem
	}
	if stores.Notifications == nil {
		stores.Notifications = mem
	}
	if stores.Devices == nil {
		stores.Devices = mem
	}
	if stores.Subscriptions == nil {
		stores.Subscriptions = mem
	}
	if stores.Reports == nil {
		stores.Reports = mem
	}

	if opts.Plans == nil {
		opts.Plans = billingsvc.DefaultPlans()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}

	manager := system.NewManager()

	billingService := billingsvc.New(stores.Subscriptions, stores.Units, opts.Plans, opts.BillingWebhookSecret, log)
	orgService := orgsvc.New(stores.Orgs, log)
	siteService := sitesvc.New(stores.Orgs, stores.Sites, log)
	unitService := unitsvc.New(stores.Orgs, stores.Sites, stores.Units, stores.Devices, billingService, log)
	policyService := policysvc.New(stores.Orgs, stores.Sites, stores.Units, stores.Policies, log)
	contactService := contactsvc.New(stores.Orgs, stores.Sites, stores.Contacts, log)
	alertService := alertsvc.New(stores.Alerts, log)
	notifyService := notifysvc.New(stores.Notifications, stores.Units, contactService, log)
	deviceService := devicesvc.New(stores.Orgs, stores.Units, stores.Devices, log)
	ingestService := ingestsvc.New(stores.Devices, stores.Units, stores.Readings, opts.Cache, opts.Metrics, log)
	digestService := digestsvc.New(stores.Orgs, stores.Units, stores.Alerts, notifyService, log)
	digestService.WithMetrics(opts.Metrics)
	reportService := reportsvc.New(stores.Reports, log)

	monitor := alertsvc.NewMonitor(stores.Units, stores.Alerts, policyService, log)
	monitor.WithNotifier(notifyService)
	monitor.WithMetrics(opts.Metrics)
	if opts.MonitorInterval > 0 {
		monitor.WithInterval(opts.MonitorInterval)
	}

	dispatcher := notifysvc.NewDispatcher(stores.Notifications, opts.SMS, opts.Email, billingService, log)
	dispatcher.WithMetrics(opts.Metrics)
	if opts.DispatchInterval > 0 {
		dispatcher.WithInterval(opts.DispatchInterval)
	}

	digestScheduler := digestsvc.NewScheduler(digestService, log)

	services := []system.Service{monitor, dispatcher, digestScheduler}

	if opts.Registrar != nil {
		provisioner := devicesvc.NewProvisioner(stores.Devices, opts.Registrar, log)
		provisioner.WithMetrics(opts.Metrics)
		if opts.ProvisionInterval > 0 {
			provisioner.WithInterval(opts.ProvisionInterval)
		}
		services = append(services, provisioner)
	} else {
		log.Warn("device registrar not configured; provisioning disabled")
	}
	if opts.SMS == nil {
		log.Warn("sms messenger not configured; sms notifications will fail")
	}
	if opts.Email == nil {
		log.Warn("email messenger not configured; email notifications will fail")
	}

	for _, svc := range services {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:       manager,
		log:           log,
		Orgs:          orgService,
		Sites:         siteService,
		Units:         unitService,
		Policies:      policyService,
		Contacts:      contactService,
		Alerts:        alertService,
		Notifications: notifyService,
		Devices:       deviceService,
		Ingest:        ingestService,
		Billing:       billingService,
		Digests:       digestService,
		Reports:       reportService,
		Monitor:       monitor,
		Metrics:       opts.Metrics,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Health reports process health and which services are registered.
func (a *Application) Health() system.Health {
	return a.manager.Snapshot()
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
