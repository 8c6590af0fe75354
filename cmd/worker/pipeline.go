package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zapflow/campaignd/internal/audit"
	"github.com/zapflow/campaignd/internal/campaign"
	"github.com/zapflow/campaignd/internal/config"
	"github.com/zapflow/campaignd/internal/db"
	"github.com/zapflow/campaignd/internal/gateway"
	"github.com/zapflow/campaignd/internal/kafka"
	"github.com/zapflow/campaignd/internal/logger"
	"github.com/zapflow/campaignd/internal/metrics"
	"github.com/zapflow/campaignd/internal/model"
	"github.com/zapflow/campaignd/internal/notify"
	"github.com/zapflow/campaignd/internal/queue"
	"github.com/zapflow/campaignd/internal/repository"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run the campaign dispatch pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		return runPipeline(cfgPath)
	},
}

func runPipeline(cfgPath string) error {
	// 1) load config + logger
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level)
	log := logger.Log

	metrics.MustRegister(prometheus.DefaultRegisterer)

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		}); err != nil {
			return fmt.Errorf("sentry init: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// 2) MySQL
	dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
		PingTimeout:     cfg.MySQL.PingTimeout,
	})
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer dbx.Close()

	// 3) Redis (UI fan-out)
	rds, err := db.NewRedisClient(db.RedisOpts{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
	})
	if err != nil {
		return fmt.Errorf("redis connect: %w", err)
	}
	defer func() { _ = rds.Close() }()

	// 4) Kafka producer (audit trail)
	writer := kafka.NewWriter(kafka.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.AuditTopic,
	})
	auditPub := audit.NewPublisher(writer, log)
	defer func() { _ = auditPub.Close() }()

	notifier := notify.NewRedisNotifier(rds, log)

	// 5) repositories + queue
	campaignsRepo := repository.NewCampaignsRepository(dbx)
	contactsRepo := repository.NewContactsRepository(dbx)
	shipmentsRepo := repository.NewShipmentsRepository(dbx)
	settingsRepo := repository.NewSettingsRepository(dbx)
	filesRepo := repository.NewFilesRepository(dbx)
	jobs := queue.NewRepository(dbx)

	// 6) gateway registry
	registry := gateway.NewHTTPRegistry(
		strings.TrimRight(cfg.Gateway.BaseURL, "/"),
		cfg.Gateway.Token,
		cfg.Gateway.TimeoutMs,
		cfg.Gateway.Breaker.FailThreshold,
		cfg.Gateway.Breaker.OpenForMs,
	)

	// 7) pipeline components
	scanner := campaign.NewScanner(campaignsRepo, jobs, notifier, auditPub, log)
	if cfg.Pipeline.ScanWindow > 0 {
		scanner.Window = cfg.Pipeline.ScanWindow
	}

	processor := campaign.NewProcessor(campaignsRepo, contactsRepo, settingsRepo, jobs, notifier, auditPub, log)
	if cfg.Pipeline.PageSize > 0 {
		processor.PageSize = cfg.Pipeline.PageSize
	}

	preparer := campaign.NewPreparer(campaignsRepo, contactsRepo, shipmentsRepo, jobs, log)
	finalizer := campaign.NewFinalizer(campaignsRepo, contactsRepo, shipmentsRepo, notifier, auditPub, log)

	dispatcher := campaign.NewDispatcher(campaignsRepo, shipmentsRepo, filesRepo, registry, finalizer, notifier, auditPub, log)
	if cfg.Pipeline.SendTimeout > 0 {
		dispatcher.SendTimeout = cfg.Pipeline.SendTimeout
	}

	reconciler := campaign.NewReconciler(campaignsRepo, shipmentsRepo, jobs, finalizer, auditPub, log)
	if cfg.Pipeline.ReconcileAfter > 0 {
		reconciler.StaleAfter = cfg.Pipeline.ReconcileAfter
	}
	if cfg.Pipeline.ReconcileForce > 0 {
		reconciler.ForceAfter = cfg.Pipeline.ReconcileForce
	}

	// 8) queue worker: dispatch stays at concurrency 1 so sends pace out
	// through one lane per process.
	w := queue.NewWorker(jobs, log)
	w.Handle(model.TaskProcessCampaign, workers(cfg.Pipeline.ProcessWorkers, 2), func(ctx context.Context, job queue.Job) error {
		var p model.ProcessCampaignPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			log.Error("bad process payload", zap.String("job", job.ID), zap.Error(err))
			return nil
		}
		return processor.Handle(ctx, p)
	})
	w.Handle(model.TaskPrepareContact, workers(cfg.Pipeline.PrepareWorkers, 8), func(ctx context.Context, job queue.Job) error {
		var p model.PrepareContactPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			log.Error("bad prepare payload", zap.String("job", job.ID), zap.Error(err))
			return nil
		}
		return preparer.Handle(ctx, p)
	})
	w.Handle(model.TaskDispatchCampaign, workers(cfg.Pipeline.DispatchWorkers, 1), func(ctx context.Context, job queue.Job) error {
		var p model.DispatchPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			log.Error("bad dispatch payload", zap.String("job", job.ID), zap.Error(err))
			return nil
		}
		return dispatcher.Handle(ctx, p)
	})

	// 9) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 10) periodic sweeps
	c := cron.New()
	schedule(c, log, fmt.Sprintf("@every %s", interval(cfg.Pipeline.ScanInterval, 20*time.Second)), "scan", func() error {
		return scanner.Scan(ctx)
	})
	schedule(c, log, fmt.Sprintf("@every %s", interval(cfg.Pipeline.FinalizeInterval, 10*time.Minute)), "finalize", func() error {
		return finalizer.SweepRunning(ctx)
	})
	schedule(c, log, fmt.Sprintf("@every %s", interval(cfg.Pipeline.ReconcileInterval, 30*time.Minute)), "reconcile", func() error {
		return reconciler.Sweep(ctx)
	})
	schedule(c, log, "@hourly", "purge", func() error {
		n, err := jobs.PurgeSettled(ctx, interval(cfg.Pipeline.JobRetention, 7*24*time.Hour))
		if n > 0 {
			log.Info("purged settled jobs", zap.Int64("count", n))
		}
		return err
	})
	c.Start()
	defer c.Stop()

	log.Info("pipeline started",
		zap.Duration("scan_interval", interval(cfg.Pipeline.ScanInterval, 20*time.Second)),
		zap.Int("dispatch_workers", workers(cfg.Pipeline.DispatchWorkers, 1)),
	)

	return w.Run(ctx)
}

func schedule(c *cron.Cron, log *zap.Logger, spec, name string, fn func() error) {
	if _, err := c.AddFunc(spec, func() {
		if err := fn(); err != nil {
			sentry.CaptureException(err)
			log.Error("sweep failed", zap.String("sweep", name), zap.Error(err))
		}
	}); err != nil {
		panic(fmt.Sprintf("bad cron spec %q for %s: %v", spec, name, err))
	}
}

func workers(n, def int) int {
	if n > 0 {
		return n
	}
	return def
}

func interval(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
