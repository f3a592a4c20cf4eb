// Package server exposes the raster factory over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/h3-raster-store/internal/events"
	"github.com/mohammed-shakir/h3-raster-store/internal/health"
	"github.com/mohammed-shakir/h3-raster-store/internal/mapper"
	imw "github.com/mohammed-shakir/h3-raster-store/internal/middleware"
	"github.com/mohammed-shakir/h3-raster-store/internal/raster"
	"github.com/mohammed-shakir/h3-raster-store/internal/rasterservice"
	"github.com/mohammed-shakir/h3-raster-store/internal/registry"
)

// Store is what the server needs from the raster store.
type Store interface {
	rasterservice.Store
	health.Pinger
}

type Deps struct {
	Store     Store
	Factory   *raster.Factory
	Registry  *registry.Registry
	Events    *events.Publisher
	Mapper    mapper.Mapper
	H3Res     int
	OpTimeout time.Duration
	// MaxCells caps bands*rows*cols of created rasters, persisted or not.
	MaxCells  int
	Logger    *slog.Logger
}

const defaultMaxCells = 1 << 24

type Server struct {
	store    Store
	factory  *raster.Factory
	reg      *registry.Registry
	events   *events.Publisher
	mapper   mapper.Mapper
	h3Res    int
	timeout  time.Duration
	maxCells int
	log      *slog.Logger
}

func New(d Deps) *Server {
	s := &Server{
		store:    d.Store,
		factory:  d.Factory,
		reg:      d.Registry,
		events:   d.Events,
		mapper:   d.Mapper,
		h3Res:    d.H3Res,
		timeout:  d.OpTimeout,
		maxCells: d.MaxCells,
		log:      d.Logger,
	}
	if s.maxCells <= 0 {
		s.maxCells = defaultMaxCells
	}
	if s.log == nil {
		s.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.factory == nil {
		s.factory = raster.NewFactory(raster.WithLogger(s.log), raster.WithMaxCells(s.maxCells))
	}
	if s.reg == nil {
		s.reg = registry.New(0, nil)
	}
	if s.timeout <= 0 {
		s.timeout = 250 * time.Millisecond
	}
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(imw.Recover(s.log))
	r.Use(imw.Logging(s.log))

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(s.store, s.timeout))

	r.Route("/rasters", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleDescribe)
			r.Delete("/", s.handleDelete)
			r.Post("/masks", s.handleMask)
			r.Post("/clone", s.handleClone)
			r.Get("/bands/{band}/cells/{row}/{col}", s.handleGetCell)
			r.Put("/bands/{band}/cells/{row}/{col}", s.handlePutCell)
			r.Get("/cells/{row}/{col}/h3", s.handleH3)
			r.Get("/h3", s.handleCoverage)
		})
	})
	return r
}

// Run serves handler on addr until ctx is cancelled.
func Run(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
