package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aiassistantthx/browser-ai-agent/internal/config"
	"github.com/aiassistantthx/browser-ai-agent/internal/decompose"
	"github.com/aiassistantthx/browser-ai-agent/internal/driver"
	"github.com/aiassistantthx/browser-ai-agent/internal/engine"
	"github.com/aiassistantthx/browser-ai-agent/internal/events"
	"github.com/aiassistantthx/browser-ai-agent/internal/lifecycle"
	"github.com/aiassistantthx/browser-ai-agent/internal/logger"
	"github.com/aiassistantthx/browser-ai-agent/internal/monitoring"
	"github.com/aiassistantthx/browser-ai-agent/internal/queue"
	"github.com/aiassistantthx/browser-ai-agent/internal/server"
	"github.com/aiassistantthx/browser-ai-agent/internal/storage"
	"github.com/aiassistantthx/browser-ai-agent/internal/worker"
)

const queueSampleInterval = 5 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, event stream and execution worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			logger.Init(cfg.Logging.Level, cfg.Logging.Format, "pilot")

			a, err := buildApp(cfg, logger.GetDefault())
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx)
		},
	}
}

// app holds the wired service
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	redis   *redis.Client
	store   storage.Storage
	queue   queue.Queue
	metrics *monitoring.Metrics
	engine  *engine.Engine
	orch    *lifecycle.Orchestrator
	worker  *worker.Worker
	server  *server.Server
}

func buildApp(cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	if cfg.UsesRedis() {
		client, err := storage.NewRedisClient(cfg.Redis.RedisAddr(), cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
		if err != nil {
			return nil, err
		}
		a.redis = client
	}

	switch cfg.Storage.Backend {
	case "redis":
		a.store = storage.NewRedisStorage(a.redis, cfg.Storage.TTL)
	default:
		a.store = storage.NewMemoryStorage(cfg.Storage.MaxTasks, cfg.Storage.TTL)
	}

	switch cfg.Queue.Backend {
	case "redis":
		q, err := queue.NewRedisQueue(a.redis, cfg.Queue.DequeueTimeout)
		if err != nil {
			a.close()
			return nil, err
		}
		a.queue = q
	default:
		a.queue = queue.NewMemoryQueue(cfg.Queue.Capacity, cfg.Queue.DequeueTimeout)
	}

	a.metrics = monitoring.NewMetrics(a.queue)
	a.engine = engine.New(buildDriver(cfg.Driver, log.WithComponent("driver")), log.WithComponent("engine"), a.metrics)

	broadcaster := events.NewBroadcaster(log.WithComponent("broadcaster"))
	broadcaster.OnChange = a.metrics.SetSubscribers

	a.orch = lifecycle.New(lifecycle.Config{
		Decomposer: decompose.New(decompose.Options{
			MaxActions: cfg.Decomposer.MaxActions,
			MaxPhrases: cfg.Decomposer.MaxPhrases,
			MaxWait:    cfg.Decomposer.MaxWait,
		}),
		Store:       a.store,
		Queue:       a.queue,
		Engine:      a.engine,
		Broadcaster: broadcaster,
		Metrics:     a.metrics,
		Logger:      log.WithComponent("lifecycle"),
	})
	a.worker = worker.NewWorker(a.queue, a.orch, worker.Config{
		ID:     "executor",
		Logger: log.WithComponent("worker"),
	})
	a.server = server.New(cfg, a.orch, a.metrics, log.WithComponent("server"))
	return a, nil
}

func buildDriver(cfg config.DriverConfig, log *logger.Logger) driver.Driver {
	if cfg.Kind == "remote" {
		return driver.NewRemote(driver.RemoteConfig{
			BaseURL:      cfg.BaseURL,
			Timeout:      cfg.Timeout,
			StartRetries: cfg.StartRetries,
			Headless:     cfg.Headless,
		}, log)
	}
	return driver.NewDryRun(log)
}

// run serves until ctx is done or a component fails, then shuts down within
// the configured timeout
func (a *app) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	a.metrics.StartCollection(gctx, queueSampleInterval, a.log.WithComponent("metrics"))

	g.Go(a.server.Run)
	g.Go(func() error {
		return a.worker.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		<-a.server.Ready()
		a.log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Worker.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Worker.ShutdownTimeout)
	defer cancel()
	if cerr := a.engine.Close(closeCtx); cerr != nil {
		err = errors.Join(err, cerr)
	}
	a.metrics.Stop()
	return err
}

func (a *app) close() {
	if a.queue != nil {
		_ = a.queue.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
