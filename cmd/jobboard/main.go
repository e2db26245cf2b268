package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/talentbridge/jobboard/app/repository"
	"github.com/talentbridge/jobboard/internal/pkg/archive"
	"github.com/talentbridge/jobboard/internal/pkg/ats"
	"github.com/talentbridge/jobboard/internal/pkg/auth"
	"github.com/talentbridge/jobboard/internal/pkg/billing"
	"github.com/talentbridge/jobboard/internal/pkg/cache"
	"github.com/talentbridge/jobboard/internal/pkg/config"
	"github.com/talentbridge/jobboard/internal/pkg/crm"
	"github.com/talentbridge/jobboard/internal/pkg/database"
	"github.com/talentbridge/jobboard/internal/pkg/env"
	"github.com/talentbridge/jobboard/internal/pkg/jobqueue"
	"github.com/talentbridge/jobboard/internal/pkg/mail"
	"github.com/talentbridge/jobboard/internal/pkg/metrics"
	"github.com/talentbridge/jobboard/internal/pkg/notify"
	"github.com/talentbridge/jobboard/internal/pkg/paadmin"
	"github.com/talentbridge/jobboard/internal/pkg/push"
	"github.com/talentbridge/jobboard/internal/pkg/router"
	"github.com/talentbridge/jobboard/internal/pkg/scheduler"
)

const shutdownTimeout = 30 * time.Second

// Application bundles the HTTP app with the background pieces that must be
// stopped with it.
type Application struct {
	App       *fiber.App
	cache     *redis.Client
	scheduler *scheduler.Scheduler
	producer  *push.Producer
}

func main() {
	env.SetupEnvFile()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Main] Invalid configuration: %v", err)
	}

	application, err := NewApplication(cfg)
	if err != nil {
		log.Fatalf("[Main] Startup failed: %v", err)
	}

	go func() {
		if err := application.App.Listen(cfg.Server.Addr()); err != nil {
			log.Errorf("[Main] Server stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("[Main] Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	application.Shutdown(shutdownCtx)
}

func NewApplication(cfg *config.Config) (*Application, error) {
	db, err := database.SetupDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	repository.InitializeFactory(db)
	repos := repository.GetGlobalRepositories()

	cacheClient := cache.SetupCache(cfg.Cache)
	collector := metrics.New()
	tokens := auth.NewTokens(cfg.Auth)

	// background delivery
	queue := jobqueue.NewQueueWithClient(cacheClient, cfg.Billing.QueueWorkers)
	sender, err := mail.NewSMTPMailer(cfg.Mail)
	if err != nil {
		return nil, fmt.Errorf("mail: %w", err)
	}
	var (
		publisher push.Publisher = push.LogPublisher{}
		producer  *push.Producer
	)
	if cfg.Push.Enabled {
		producer, err = push.NewProducer(cfg.Push)
		if err != nil {
			return nil, fmt.Errorf("push: %w", err)
		}
		publisher = producer
	}
	notify.Register(queue, sender, publisher)
	queue.Handle(jobqueue.JobTypeCRMSync, crm.NewSyncer(crm.NewClient(cfg.CRM), repos, cfg.Environment).HandleJob)
	crmSync := crm.NewQueueSyncer(queue, cfg.Environment)

	webhookArchive, err := archive.New(context.Background(), cfg.Archive)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}

	billingSvc := billing.NewService(billing.Deps{
		Repos:    repos,
		Gateway:  billing.NewRazorpayClient(cfg.Gateway),
		Notifier: notify.NewQueueNotifier(queue, repos.Notification),
		CRM:      crmSync,
		Archive:  webhookArchive,
		Downtime: cache.NewStore(cacheClient),
		Metrics:  collector,
	}, billing.Options{
		Environment:   cfg.Environment,
		Currency:      cfg.Billing.Currency,
		KeyID:         cfg.Gateway.KeyID,
		MonthlyCycles: cfg.Billing.MonthlyCycles,
		YearlyCycles:  cfg.Billing.YearlyCycles,
		SalesAddress:  cfg.Mail.SalesAddress,
	})

	app := fiber.New(fiber.Config{
		BodyLimit:    cfg.Server.BodyLimit,
		ReadTimeout:  cfg.Billing.RequestTimeout,
		WriteTimeout: cfg.Billing.RequestTimeout,
	})
	app.Use(recover.New(), logger.New())

	router.InstallRouter(app, router.Deps{
		Config:         cfg,
		Repos:          repos,
		Tokens:         tokens,
		ATS:            ats.NewService(repos, billingSvc, collector),
		PAAdmin:        paadmin.NewService(repos, tokens, crmSync),
		Billing:        billingSvc,
		Metrics:        collector,
		LimiterStorage: router.NewLimiterStorage(cacheClient),
		OpenAPIPath:    env.GetEnv("OPENAPI_PATH", "./docs/openapi.yml"),
	})

	sched := scheduler.New(billingSvc, jobqueue.InitManager(queue), cfg.Billing.ExpirySweep).WithMetrics(collector)
	if err := sched.Start(); err != nil {
		return nil, err
	}

	return &Application{
		App:       app,
		cache:     cacheClient,
		scheduler: sched,
		producer:  producer,
	}, nil
}

// Shutdown stops accepting requests, then drains background work.
func (a *Application) Shutdown(ctx context.Context) {
	if err := a.App.ShutdownWithContext(ctx); err != nil {
		log.Warnf("[Main] HTTP shutdown: %v", err)
	}
	a.scheduler.Stop(ctx)
	if a.producer != nil {
		a.producer.Close()
	}
	if err := a.cache.Close(); err != nil {
		log.Warnf("[Main] Cache close: %v", err)
	}
}
