// Package services is the application-layer service container of the
// procurement context. It wires agents, the orchestrator and the queue to the
// infrastructure held by app.Application.
package services

import (
	"fmt"

	"github.com/ghuser/procureflow/pkg/app"
	"github.com/ghuser/procureflow/pkg/browser"
	"github.com/ghuser/procureflow/pkg/cache"
	"github.com/ghuser/procureflow/pkg/llm"
	"github.com/ghuser/procureflow/pkg/mailer"
	"github.com/ghuser/procureflow/pkg/taskqueue"
	"github.com/ghuser/procureflow/services/procurement/application/agents/forecaster"
	"github.com/ghuser/procureflow/services/procurement/application/agents/negotiator"
	"github.com/ghuser/procureflow/services/procurement/application/agents/scanner"
	"github.com/ghuser/procureflow/services/procurement/application/orchestrator"
	"github.com/ghuser/procureflow/services/procurement/application/workflows"
	domainevents "github.com/ghuser/procureflow/services/procurement/domain/events"
	"github.com/ghuser/procureflow/services/procurement/domain/repositories"
	"github.com/ghuser/procureflow/services/procurement/domain/task"
	"github.com/ghuser/procureflow/services/procurement/infrastructure/adapters"
	"github.com/ghuser/procureflow/services/procurement/infrastructure/persistence/memory"
	"github.com/ghuser/procureflow/services/procurement/infrastructure/persistence/postgres"
)

const userAgent = "procureflow-scanner/1.0"

// Repositories groups the repository implementations of one store backend.
type Repositories struct {
	Organizations repositories.OrganizationRepository
	Suppliers     repositories.SupplierRepository
	Catalog       repositories.CatalogRepository
	Inventory     repositories.InventoryRepository
	Forecasts     repositories.ForecastRepository
	Negotiations  repositories.NegotiationRepository
	ScrapingJobs  repositories.ScrapingJobRepository
	Activity      repositories.ActivityLogRepository
}

// Services is the application-layer service container for this bounded context.
type Services struct {
	Repositories
	Orchestrator *orchestrator.Orchestrator
	Negotiator   *negotiator.Agent
	Queue        orchestrator.Queue
	Offers       *cache.OfferCache // nil without Redis
	Browser      *browser.Pool

	// Memory is the backing store with STORE_BACKEND=memory, nil otherwise.
	Memory *memory.Store
}

// New wires all procurement application services with infrastructure from the
// Application container. Construct it once per process.
func New(a *app.Application) (*Services, error) {
	cfg := a.Config
	s := &Services{}

	if a.InMemory() {
		s.Memory = memory.New()
		s.Repositories = MemoryRepositories(s.Memory)
	} else {
		s.Repositories = PostgresRepositories(a)
		if a.EventBus != nil {
			if err := a.EventBus.InitializeTopics(domainevents.Topics()...); err != nil {
				return nil, err
			}
		}
	}

	qopts := taskqueue.Options{
		Name:         cfg.QueueName,
		MaxAttempts:  cfg.QueueMaxAttempts,
		BackoffBase:  cfg.QueueBackoffBase,
		LeaseTimeout: cfg.QueueLeaseTimeout,
	}
	if a.Redis != nil {
		s.Queue = taskqueue.NewRedisQueue(a.Redis, qopts)
		s.Offers = cache.NewOfferCache(a.Redis)
	} else {
		s.Queue = taskqueue.NewMemoryQueue(qopts)
	}

	profiles, err := adapters.LoadProfiles(cfg.PortalProfilesPath)
	if err != nil {
		return nil, fmt.Errorf("load portal profiles: %w", err)
	}
	s.Browser = browser.NewPool(browser.Options{
		Headless:  cfg.BrowserHeadless,
		Timeout:   cfg.HTTPClientTimeout,
		UserAgent: userAgent,
	}, a.Logger)

	scanDeps := scanner.Deps{
		Suppliers: s.Suppliers,
		Catalog:   s.Catalog,
		Jobs:      s.ScrapingJobs,
		Adapters: adapters.Set{
			API:     adapters.NewAPIAdapter(cfg.HTTPClientTimeout),
			Portal:  adapters.NewPortalAdapter(s.Browser, profiles, a.Logger),
			Website: adapters.NewWebsiteAdapter(cfg.HTTPClientTimeout, userAgent),
		},
		Browser: s.Browser,
	}
	if s.Offers != nil {
		scanDeps.Offers = s.Offers
	}

	negDeps := negotiator.Deps{
		Organizations: s.Organizations,
		Suppliers:     s.Suppliers,
		Catalog:       s.Catalog,
		Negotiations:  s.Negotiations,
		Mailer:        mailer.NewSendGridMailer(cfg, a.Logger),
		LLM:           llm.NewClient(cfg),
	}
	if a.TemporalClient != nil {
		negDeps.Expiry = workflows.NewExpiryScheduler(a.TemporalClient)
	}
	s.Negotiator = negotiator.New(negDeps, negotiator.Config{
		MaxRounds:         cfg.NegotiationMaxRounds,
		TargetImprovement: cfg.NegotiationTargetImprovement,
		TTL:               cfg.NegotiationTTL,
	}, a.Logger)

	agents := []task.Agent{
		scanner.New(scanDeps, cfg.ScanSupplierDelay, a.Logger),
		forecaster.New(forecaster.Deps{
			Organizations: s.Organizations,
			Inventory:     s.Inventory,
			Catalog:       s.Catalog,
			Forecasts:     s.Forecasts,
		}, forecaster.Config{
			ThresholdDays:       cfg.StockoutThresholdDays,
			OrderingCost:        cfg.OrderingCost,
			HoldingCostRate:     cfg.HoldingCostRate,
			DefaultLeadTimeDays: cfg.DefaultLeadTimeDays,
		}, a.Logger),
		s.Negotiator,
	}

	orchDeps := orchestrator.Deps{
		Agents:        agents,
		Queue:         s.Queue,
		Activity:      s.Activity,
		Organizations: s.Organizations,
		Inventory:     s.Inventory,
		Catalog:       s.Catalog,
	}
	if a.Metrics != nil {
		orchDeps.Metrics = a.Metrics
	}
	s.Orchestrator = orchestrator.New(orchDeps, orchestrator.Config{
		Concurrency:   cfg.QueueConcurrency,
		PollInterval:  cfg.QueuePollInterval,
		StatusTimeout: cfg.StatusTimeout,
		ThresholdDays: cfg.StockoutThresholdDays,
	}, a.Logger)
	return s, nil
}

// PostgresRepositories builds the sqlx-backed repositories. Writes that emit
// domain events publish through a.EventBus.
func PostgresRepositories(a *app.Application) Repositories {
	return Repositories{
		Organizations: postgres.NewOrganizationRepository(a.Db),
		Suppliers:     postgres.NewSupplierRepository(a.Db),
		Catalog:       postgres.NewCatalogRepository(a.Db, a.EventBus),
		Inventory:     postgres.NewInventoryRepository(a.Db),
		Forecasts:     postgres.NewForecastRepository(a.Db),
		Negotiations:  postgres.NewNegotiationRepository(a.Db, a.EventBus),
		ScrapingJobs:  postgres.NewScrapingJobRepository(a.Db),
		Activity:      postgres.NewActivityLogRepository(a.Db, a.EventBus),
	}
}

// MemoryRepositories exposes an in-process store through the repository interfaces.
func MemoryRepositories(m *memory.Store) Repositories {
	return Repositories{
		Organizations: m.Organizations(),
		Suppliers:     m.Suppliers(),
		Catalog:       m.Catalog(),
		Inventory:     m.Inventory(),
		Forecasts:     m.Forecasts(),
		Negotiations:  m.Negotiations(),
		ScrapingJobs:  m.ScrapingJobs(),
		Activity:      m.Activity(),
	}
}
