package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohammed-shakir/h3-raster-store/internal/config"
	"github.com/mohammed-shakir/h3-raster-store/internal/events"
	"github.com/mohammed-shakir/h3-raster-store/internal/logger"
	"github.com/mohammed-shakir/h3-raster-store/internal/mapper"
	h3mapper "github.com/mohammed-shakir/h3-raster-store/internal/mapper/h3"
	"github.com/mohammed-shakir/h3-raster-store/internal/metrics"
	"github.com/mohammed-shakir/h3-raster-store/internal/observability"
	"github.com/mohammed-shakir/h3-raster-store/internal/raster"
	"github.com/mohammed-shakir/h3-raster-store/internal/registry"
	"github.com/mohammed-shakir/h3-raster-store/internal/server"
	"github.com/mohammed-shakir/h3-raster-store/internal/store/redisstore"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	addrFlag := flag.String("addr", "", "listen address (overrides ADDR)")
	flag.Parse()

	cfg := config.FromEnv()
	if *addrFlag != "" {
		cfg.Addr = *addrFlag
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "rasterd",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	appLog.Info("starting rasterd",
		"addr", cfg.Addr,
		"version", Version,
		"redis", cfg.RedisAddr,
		"h3_res", cfg.H3Res)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	store, err := redisstore.New(dialCtx, cfg.RedisAddr)
	cancel()
	if err != nil {
		appLog.Error("failed to connect raster store", "err", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	if cfg.Metrics.Enabled {
		p := metrics.NewProvider(metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			BuildDate: os.Getenv("BUILD_DATE"),
		})
		serveMetrics(ctx, cfg.Metrics, p, appLog.With("component", "metrics"))
	}

	affine, err := mapper.NewAffine(cfg.GeoTransform)
	if err != nil {
		appLog.Error("invalid geotransform", "err", err)
		return 1
	}

	pub, err := newPublisher(cfg.Events, appLog)
	if err != nil {
		appLog.Error("failed to start event publisher", "err", err)
		return 1
	}
	defer func() {
		if err := pub.Close(); err != nil {
			appLog.Warn("event publisher close", "err", err)
		}
	}()

	factory := raster.NewFactory(
		raster.WithLogger(appLog.With("component", "factory")),
		raster.WithObserver(observability.RasterObserver{}),
		raster.WithMaxCells(cfg.MaxCells),
	)
	reg := registry.New(cfg.RegistrySize, func(id string) {
		appLog.Debug("raster evicted from registry", "raster_id", id)
	})

	if cfg.Events.Enabled && cfg.Events.Follow {
		fl := zl.With().Str("component", "events_follower").Logger()
		follower := events.NewFollower(events.FollowerConfig{
			Brokers: cfg.Events.Brokers,
			Topic:   cfg.Events.Topic,
			GroupID: cfg.Events.GroupID,
			Origin:  cfg.Events.Origin,
		}, reg, &fl)
		go func() {
			if err := follower.Start(ctx); err != nil {
				appLog.Error("event follower stopped", "err", err)
			}
		}()
	}

	srv := server.New(server.Deps{
		Store:     store,
		Factory:   factory,
		Registry:  reg,
		Events:    pub,
		Mapper:    h3mapper.New(affine),
		H3Res:     cfg.H3Res,
		OpTimeout: cfg.StoreOpTimeout,
		MaxCells:  cfg.MaxCells,
		Logger:    appLog,
	})

	if err := server.Run(ctx, cfg.Addr, srv.Routes(), appLog); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

// newPublisher returns a nil publisher when events are disabled; Publish and
// Close are no-ops on nil.
func newPublisher(cfg config.EventsCfg, log *slog.Logger) (*events.Publisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	log.Info("publishing raster events", "brokers", cfg.Brokers, "topic", cfg.Topic, "origin", cfg.Origin)
	pub, err := events.NewPublisher(cfg.Brokers, cfg.Topic, cfg.Queue, log.With("component", "events"))
	if err != nil {
		return nil, err
	}
	pub.SetOrigin(cfg.Origin)
	return pub, nil
}

func serveMetrics(ctx context.Context, cfg config.MetricsCfg, p *metrics.Provider, log *slog.Logger) {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           p.Mux(cfg.Path),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info("metrics listening", "addr", cfg.Addr, "path", cfg.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server exited", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics shutdown", "err", err)
		}
	}()
}
