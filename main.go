package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"trello-api/api"
	"trello-api/config"
	"trello-api/storage"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := log.New()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	if !cfg.Development() {
		logger.SetFormatter(&log.JSONFormatter{})
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())))
	otel.SetTracerProvider(tp)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rc *redis.Client
	if cfg.Redis.ConnectionString != "" {
		opts, err := config.RedisOptions(cfg.Redis.ConnectionString)
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		rc = redis.NewClient(opts)
	}

	backend, err := openBackend(ctx, cfg, rc)
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}
	logger.Infof("storage driver: %s", cfg.Storage.Driver)

	deps := api.Deps{
		Store:       backend,
		Users:       backend,
		Logger:      logger,
		Development: cfg.Development(),
	}

	if cfg.Auth.Enabled {
		if cfg.LocalAuth() {
			auth := api.NewLocalAuth([]byte(cfg.Auth.LocalSecret), cfg.Auth.TokenTTL)
			deps.Auth = auth
			deps.Issuer = auth
		} else {
			jwks, err := keyfunc.Get(cfg.JWKSURL(), keyfunc.Options{})
			if err != nil {
				logger.Fatalf("jwks: %v", err)
			}
			defer jwks.EndBackground()
			deps.Auth = api.NewAuth(jwks, cfg.Auth.Auth0Audience, cfg.Auth0Issuer(), cfg.Auth.JWKSCacheTTL)
		}
	} else {
		logger.Warn("authentication disabled; every request sees every board")
	}

	if rc != nil {
		deps.Deduper = api.NewRedisDeduper(rc, cfg.IdempotencyTTL)
	}

	var sinks []api.EventSink
	if cfg.Events.Queue != "" {
		if err := storage.EnsureQueue(ctx, cfg.Storage.ConnectionString, cfg.Events.Queue); err != nil {
			logger.Fatalf("events queue: %v", err)
		}
		publisher, err := storage.NewQueuePublisher(cfg.Storage.ConnectionString, cfg.Events.Queue, cfg.Events.Concurrency)
		if err != nil {
			logger.Fatalf("events queue: %v", err)
		}
		sinks = append(sinks, publisher)
	}
	var hub *api.Hub
	if cfg.Events.Live {
		hub = api.NewHub(logger)
		deps.Hub = hub
		sinks = append(sinks, hub)
	}
	var dispatcher *api.Dispatcher
	if len(sinks) > 0 {
		dispatcher = api.NewDispatcher(api.DispatcherConfig{
			Workers:          cfg.Events.Workers,
			Buffer:           cfg.Events.Buffer,
			QueueConcurrency: cfg.Events.Concurrency,
			CPUs:             runtime.NumCPU(),
			Timeout:          cfg.Events.Timeout,
		}, logger, sinks...)
		deps.Events = dispatcher
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
	}))
	api.Register(e, deps)

	go func() {
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("server shutdown")
	}
	if hub != nil {
		hub.Close()
	}
	if dispatcher != nil {
		dispatcher.Close()
	}
	if err := backend.Close(); err != nil {
		logger.WithError(err).Warn("storage close")
	}
	if rc != nil && cfg.Storage.Driver != config.DriverRedis {
		_ = rc.Close()
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("tracer shutdown")
	}
}

func openBackend(ctx context.Context, cfg *config.Config, rc *redis.Client) (storage.Backend, error) {
	switch cfg.Storage.Driver {
	case config.DriverTable:
		names := storage.TableNames{
			Boards: cfg.Storage.Tables.Boards,
			Lists:  cfg.Storage.Tables.Lists,
			Cards:  cfg.Storage.Tables.Cards,
			Users:  cfg.Storage.Tables.Users,
		}
		if err := storage.EnsureTables(ctx, cfg.Storage.ConnectionString, names); err != nil {
			return nil, err
		}
		return storage.NewTable(cfg.Storage.ConnectionString, names)
	case config.DriverRedis:
		return storage.NewRedis(rc), nil
	case config.DriverSQLite:
		return storage.OpenSQLite(cfg.Storage.SQLitePath)
	default:
		if cfg.Storage.FixturesFile == "" {
			return storage.NewMemory(), nil
		}
		boards, err := storage.LoadFixtures(cfg.Storage.FixturesFile)
		if err != nil {
			return nil, err
		}
		return storage.NewMemory(boards...), nil
	}
}
