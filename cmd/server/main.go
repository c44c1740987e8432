package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/Pratikk2op/Mechiee-sub000/internal/chat"
	"github.com/Pratikk2op/Mechiee-sub000/internal/config"
	"github.com/Pratikk2op/Mechiee-sub000/internal/dispatch"
	"github.com/Pratikk2op/Mechiee-sub000/internal/eta"
	"github.com/Pratikk2op/Mechiee-sub000/internal/geo"
	httpapi "github.com/Pratikk2op/Mechiee-sub000/internal/http"
	"github.com/Pratikk2op/Mechiee-sub000/internal/ingest"
	"github.com/Pratikk2op/Mechiee-sub000/internal/logging"
	"github.com/Pratikk2op/Mechiee-sub000/internal/notify"
	"github.com/Pratikk2op/Mechiee-sub000/internal/presence"
	"github.com/Pratikk2op/Mechiee-sub000/internal/rooms"
	"github.com/Pratikk2op/Mechiee-sub000/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) error {
	var checks []func(context.Context) error

	var store storage.Store
	if cfg.PGDSN != "" {
		pg, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		if cfg.RunMigrations {
			if err := pg.Migrate(ctx); err != nil {
				return err
			}
			logger.Info("migrations applied")
		}
		store = pg
		checks = append(checks, pg.Ping)
	} else {
		mem := storage.NewMemoryStore()
		store = mem
		logger.Warn("PG_DSN not set, using in-memory store")
	}

	hubOpts := []presence.Option{presence.WithSendBuffer(cfg.WSSendBuffer)}
	var locator geo.Locator
	var members httpapi.MemberLister
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping failed", "addr", cfg.RedisAddr, "error", err)
		}
		locator = geo.NewRedisGeo(rdb, cfg.RedisGeoKey)
		mirror := presence.NewRedisMirror(rdb)
		hubOpts = append(hubOpts, presence.WithMirror(mirror))
		members = mirror
		checks = append(checks, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	} else {
		known, err := store.ListGarages(ctx)
		if err != nil {
			return err
		}
		locator = geo.NewIndex(known...)
		logger.Info("using in-process garage index", "garages", len(known))
	}

	hub := presence.NewHub(logger, hubOpts...)

	var notifyOpts []notify.Option
	if cfg.PushEndpoint != "" {
		notifyOpts = append(notifyOpts, notify.WithPusher(notify.NewWebhookPusher(cfg.PushEndpoint, cfg.PushKey)))
	}
	notifier := notify.New(store, hub, logger, notifyOpts...)

	estimator := &eta.Estimator{SpeedMps: cfg.DefaultSpeedMps, Cache: eta.NewCache(cfg.ETACacheTTL)}
	if cfg.OSRMEndpoint != "" {
		estimator.Client = eta.NewOSRMClient(cfg.OSRMEndpoint)
	}

	registry := rooms.New(store, logger)
	engine := chat.New(registry, store, hub, logger)
	svc := &dispatch.Service{
		Store:    store,
		Geo:      locator,
		ETA:      estimator,
		Rooms:    registry,
		Notify:   notifier,
		Hub:      hub,
		RadiusKm: cfg.DispatchRadiusKm,
		Logger:   logger.With("component", "dispatch"),
	}

	var locations httpapi.LocationPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaLocationTopic)
		defer producer.Close()
		locations = producer
	}

	api := httpapi.NewServer(httpapi.Deps{
		Dispatch:  svc,
		Rooms:     registry,
		Chat:      engine,
		Hub:       hub,
		Locator:   locator,
		Locations: locations,
		Garages:   store,
		Members:   members,
		Ready: func(ctx context.Context) error {
			var errs []error
			for _, check := range checks {
				errs = append(errs, check(ctx))
			}
			return errors.Join(errs...)
		},
		Logger: logger,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mechiee dispatch listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
