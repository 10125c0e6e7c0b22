package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/stwalsh4118/landflow/internal/authz"
	"github.com/stwalsh4118/landflow/internal/config"
	"github.com/stwalsh4118/landflow/internal/database"
	"github.com/stwalsh4118/landflow/internal/events"
	"github.com/stwalsh4118/landflow/internal/handlers"
	"github.com/stwalsh4118/landflow/internal/logger"
	"github.com/stwalsh4118/landflow/internal/metrics"
	"github.com/stwalsh4118/landflow/internal/models"
	"github.com/stwalsh4118/landflow/internal/repository"
	"github.com/stwalsh4118/landflow/internal/services"
)

const (
	shutdownTimeout = 30 * time.Second
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Server.Env)
	log.Info("Starting landflow", map[string]interface{}{
		"version":     handlers.APIVersion,
		"environment": cfg.Server.Env,
		"port":        cfg.Server.Port,
		"store":       cfg.Store.Backend,
		"events_sink": cfg.Events.Sink,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg, log)
	defer closeStore()

	policy := authz.Default()
	if cfg.Workflow.PermissionsFile != "" {
		policy, err = authz.Load(cfg.Workflow.PermissionsFile)
		if err != nil {
			log.Fatal("Failed to load permission table", err, map[string]interface{}{
				"file": cfg.Workflow.PermissionsFile,
			})
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	sink, closeSink := openSink(ctx, cfg, log)
	defer closeSink()
	dispatcher := events.NewDispatcher(sink, events.Options{
		QueueSize:  cfg.Events.QueueSize,
		MaxRetries: cfg.Events.MaxRetries,
	}, log, m)
	// Delivery outlives the signal context so queued events can drain.
	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())
	defer cancelDispatch()
	go dispatcher.Run(dispatchCtx)

	wf := services.NewWorkflow(services.Deps{
		Store:     store,
		Policy:    policy,
		Publisher: dispatcher,
		Metrics:   m,
		Log:       log,
	}, services.Settings{
		ObjectionWindow: cfg.Workflow.ObjectionWindow,
		RequestSLA:      requestSLA(cfg.Workflow.RequestSLA, log),
	})

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(handlers.RouterConfig{
		Workflow:  wf,
		Log:       log,
		Origins:   cfg.CORS.Origins,
		Env:       cfg.Server.Env,
		StoreKind: cfg.Store.Backend,
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server listening", map[string]interface{}{
			"port": cfg.Server.Port,
			"addr": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed to start", err, nil)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", err, map[string]interface{}{
			"timeout": shutdownTimeout.String(),
		})
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Error("Event dispatcher did not drain", err, nil)
	}

	log.Info("Server exited", nil)
}

func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (repository.Store, func()) {
	if cfg.Store.Backend == config.StoreMemory {
		log.Warn("Using in-memory store; state is lost on restart", nil)
		return repository.NewMemoryStore(), func() {}
	}

	if cfg.Store.MigrateOnStart {
		version, err := database.Migrate(cfg.Database.URL())
		if err != nil {
			log.Fatal("Failed to migrate database", err, map[string]interface{}{
				"host": cfg.Database.Host,
				"name": cfg.Database.Name,
			})
		}
		log.Info("Database schema up to date", map[string]interface{}{"version": version})
	}

	db, err := database.NewPostgresPool(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", err, map[string]interface{}{
			"host": cfg.Database.Host,
			"port": cfg.Database.Port,
			"name": cfg.Database.Name,
		})
	}
	log.Info("Database connection established", map[string]interface{}{
		"host":     cfg.Database.Host,
		"port":     cfg.Database.Port,
		"database": cfg.Database.Name,
		"pool_min": cfg.Database.PoolMin,
		"pool_max": cfg.Database.PoolMax,
	})
	return repository.NewPostgresStore(db), db.Close
}

func openSink(ctx context.Context, cfg *config.Config, log *logger.Logger) (events.Sink, func()) {
	if cfg.Events.Sink != config.SinkRedis {
		return events.NewLogSink(log), func() {}
	}
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatal("Invalid REDIS_URL", err, nil)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to connect to redis", err, map[string]interface{}{"addr": opts.Addr})
	}
	log.Info("Publishing events to redis stream", map[string]interface{}{
		"addr":   opts.Addr,
		"stream": cfg.Events.Stream,
	})
	return events.NewRedisSink(client, cfg.Events.Stream), func() {
		if err := client.Close(); err != nil {
			log.Error("Failed to close redis client", err, nil)
		}
	}
}

// requestSLA keeps the configured deadlines for known request types.
func requestSLA(raw map[string]time.Duration, log *logger.Logger) map[models.RequestType]time.Duration {
	out := make(map[models.RequestType]time.Duration, len(raw))
	for name, d := range raw {
		t := models.RequestType(name)
		if !t.Valid() {
			log.Warn("Ignoring SLA for unknown service request type", map[string]interface{}{"type": name})
			continue
		}
		out[t] = d
	}
	return out
}
