// Package rasterservice is a Redis backed raster data service. It persists a
// raster's geometry header and samples so proxy rasters can be created over
// it with raster.Factory.CreateProxy.
package rasterservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/mohammed-shakir/h3-raster-store/internal/raster"
	"github.com/mohammed-shakir/h3-raster-store/internal/store/keys"
)

var (
	ErrNotFound = errors.New("raster not found")
	ErrExists   = errors.New("raster already exists")
)

// Store is the subset of redisstore.Client the service needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	SetNX(ctx context.Context, key string, val []byte) (bool, error)
	Del(ctx context.Context, keys ...string) error
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HSet(ctx context.Context, key, field, val string) error
}

type Header struct {
	ID          string `json:"id"`
	Format      string `json:"format"`
	Bands       int    `json:"bands"`
	Rows        int    `json:"rows"`
	Columns     int    `json:"columns"`
	Resolutions []int  `json:"resolutions"`
}

type Option func(*Service)

func WithOpTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// Service implements raster.Service. Per-cell methods cannot return errors,
// so the first storage failure is kept and reported by Err; failed reads
// yield zero and failed writes are lost.
type Service struct {
	st      Store
	hdr     Header
	format  raster.Format
	kind    raster.Kind
	timeout time.Duration
	log     *slog.Logger

	mu  sync.Mutex
	err error
}

var _ raster.Service = (*Service)(nil)

func newService(st Store, hdr Header, format raster.Format, opts []Option) *Service {
	s := &Service{
		st:      st,
		hdr:     hdr,
		format:  format,
		timeout: 250 * time.Millisecond,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	s.kind, _ = raster.Select(format, hdr.Resolutions)
	for _, o := range opts {
		o(s)
	}
	return s
}

// Kind is the in-memory representation whose sample semantics the service
// mirrors.
func (s *Service) Kind() raster.Kind { return s.kind }

// Create validates and persists a new raster header. Resolutions may be nil
// for the format default.
func Create(ctx context.Context, st Store, hdr Header, opts ...Option) (*Service, error) {
	if hdr.ID == "" {
		return nil, errors.New("raster id is required")
	}
	format, err := raster.ParseFormat(hdr.Format)
	if err != nil {
		return nil, err
	}
	if err := raster.Validate(format, hdr.Bands, hdr.Rows, hdr.Columns, hdr.Resolutions); err != nil {
		return nil, err
	}
	if format == raster.Any {
		format = raster.Integer
	}
	if hdr.Resolutions == nil {
		hdr.Resolutions = make([]int, hdr.Bands)
		for i := range hdr.Resolutions {
			hdr.Resolutions[i] = raster.DefaultResolution(format)
		}
	} else {
		hdr.Resolutions = append([]int(nil), hdr.Resolutions...)
	}
	hdr.Format = format.String()

	b, err := json.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("encode header %q: %w", hdr.ID, err)
	}
	ok, err := st.SetNX(ctx, keys.Header(hdr.ID), b)
	if err != nil {
		return nil, fmt.Errorf("create raster %q: %w", hdr.ID, err)
	}
	if !ok {
		return nil, fmt.Errorf("create raster %q: %w", hdr.ID, ErrExists)
	}
	return newService(st, hdr, format, opts), nil
}

func Open(ctx context.Context, st Store, id string, opts ...Option) (*Service, error) {
	hdr, err := loadHeader(ctx, st, id)
	if err != nil {
		return nil, err
	}
	format, err := raster.ParseFormat(hdr.Format)
	if err != nil {
		return nil, fmt.Errorf("open raster %q: %w", id, err)
	}
	return newService(st, hdr, format, opts), nil
}

func Delete(ctx context.Context, st Store, id string) error {
	hdr, err := loadHeader(ctx, st, id)
	if err != nil {
		return err
	}
	ks := append(keys.Bands(id, hdr.Bands), keys.Header(id))
	if err := st.Del(ctx, ks...); err != nil {
		return fmt.Errorf("delete raster %q: %w", id, err)
	}
	return nil
}

func loadHeader(ctx context.Context, st Store, id string) (Header, error) {
	var hdr Header
	b, ok, err := st.Get(ctx, keys.Header(id))
	if err != nil {
		return hdr, fmt.Errorf("load raster %q: %w", id, err)
	}
	if !ok {
		return hdr, fmt.Errorf("raster %q: %w", id, ErrNotFound)
	}
	if err := json.Unmarshal(b, &hdr); err != nil {
		return hdr, fmt.Errorf("decode header %q: %w", id, err)
	}
	return hdr, nil
}

func (s *Service) Header() Header {
	h := s.hdr
	h.Resolutions = append([]int(nil), s.hdr.Resolutions...)
	return h
}

func (s *Service) ID() string                    { return s.hdr.ID }
func (s *Service) Format() raster.Format         { return s.format }
func (s *Service) NumberOfBands() int            { return s.hdr.Bands }
func (s *Service) NumberOfRows() int             { return s.hdr.Rows }
func (s *Service) NumberOfColumns() int          { return s.hdr.Columns }
func (s *Service) RadiometricResolutions() []int { return append([]int(nil), s.hdr.Resolutions...) }

// Err returns the first storage error seen by a per-cell operation.
func (s *Service) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// TakeErr returns the pending storage failure and clears it.
func (s *Service) TakeErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.err
	s.err = nil
	return err
}

func (s *Service) fail(op string, err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.log.Error("raster store operation failed", "raster_id", s.hdr.ID, "op", op, "err", err)
}

func (s *Service) inBounds(row, col, band int) bool {
	return band >= 0 && band < s.hdr.Bands &&
		row >= 0 && row < s.hdr.Rows &&
		col >= 0 && col < s.hdr.Columns
}

func (s *Service) read(row, col, band int) (string, bool) {
	if !s.inBounds(row, col, band) {
		return "", false
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	v, ok, err := s.st.HGet(ctx, keys.Band(s.hdr.ID, band), keys.Cell(row, col))
	if err != nil {
		s.fail("read", err)
		return "", false
	}
	return v, ok
}

func (s *Service) write(row, col, band int, v string) {
	if !s.inBounds(row, col, band) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.st.HSet(ctx, keys.Band(s.hdr.ID, band), keys.Cell(row, col), v); err != nil {
		s.fail("write", err)
	}
}

// Samples are stored in the encoding of the kind raster.Select picks for the
// header and keep exactly what that in-memory kind would keep, so a proxy
// over the service reads like a native raster of the same geometry.

func (s *Service) Value(row, col, band int) uint64 {
	v, ok := s.read(row, col, band)
	if !ok {
		return 0
	}
	if s.kind.Floating() {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.fail("decode", err)
			return 0
		}
		return raster.FloatToUint(f)
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		s.fail("decode", err)
		return 0
	}
	return n
}

func (s *Service) SetValue(row, col, band int, v uint64) {
	if s.kind.Floating() {
		s.writeFloat(row, col, band, s.kind.KeepUintAsFloat(v))
		return
	}
	s.write(row, col, band, strconv.FormatUint(s.kind.KeepUint(v), 10))
}

func (s *Service) FloatValue(row, col, band int) float64 {
	v, ok := s.read(row, col, band)
	if !ok {
		return 0
	}
	if !s.kind.Floating() {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			s.fail("decode", err)
			return 0
		}
		return float64(n)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		s.fail("decode", err)
		return 0
	}
	return f
}

func (s *Service) SetFloatValue(row, col, band int, v float64) {
	if !s.kind.Floating() {
		s.SetValue(row, col, band, raster.FloatToUint(v))
		return
	}
	s.writeFloat(row, col, band, s.kind.KeepFloat(v))
}

func (s *Service) writeFloat(row, col, band int, v float64) {
	s.write(row, col, band, strconv.FormatFloat(v, 'g', -1, 64))
}
