package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/h3-raster-store/internal/events"
	mylog "github.com/mohammed-shakir/h3-raster-store/internal/logger"
	h3mapper "github.com/mohammed-shakir/h3-raster-store/internal/mapper/h3"
	"github.com/mohammed-shakir/h3-raster-store/internal/raster"
	"github.com/mohammed-shakir/h3-raster-store/internal/rasterservice"
)

const (
	storageRedis  = "redis"
	storageMemory = "memory"
	storageView   = "view"
)

var errBadRequest = errors.New("bad request")

type createRequest struct {
	ID          string `json:"id"`
	Storage     string `json:"storage"`
	Format      string `json:"format"`
	Bands       int    `json:"bands"`
	Rows        int    `json:"rows"`
	Columns     int    `json:"columns"`
	Resolutions []int  `json:"resolutions"`
}

type windowRequest struct {
	Row     int `json:"row"`
	Column  int `json:"column"`
	Rows    int `json:"rows"`
	Columns int `json:"columns"`
}

type rasterResponse struct {
	ID          string  `json:"id"`
	Storage     string  `json:"storage"`
	Kind        string  `json:"kind"`
	Format      string  `json:"format"`
	Bands       int     `json:"bands"`
	Rows        int     `json:"rows"`
	Columns     int     `json:"columns"`
	Resolutions []int   `json:"resolutions"`
	Window      *window `json:"window,omitempty"`
}

type window struct {
	Row     int `json:"row"`
	Column  int `json:"column"`
	Rows    int `json:"rows"`
	Columns int `json:"columns"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("decode body: %v: %w", err, errBadRequest))
		return
	}
	if req.ID == "" {
		req.ID = mylog.NewID()
	}
	if err := s.checkSize(req.Bands, req.Rows, req.Columns); err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx := mylog.WithRasterID(r.Context(), req.ID)

	var (
		rs  raster.Raster
		err error
	)
	switch req.Storage {
	case "", storageRedis:
		rs, err = s.createPersisted(ctx, req)
	case storageMemory:
		rs, err = s.createInMemory(req)
	default:
		err = fmt.Errorf("unknown storage %q: %w", req.Storage, errBadRequest)
	}
	if err != nil {
		s.writeError(w, r.WithContext(ctx), err)
		return
	}

	s.reg.Put(req.ID, rs)
	resp := describe(req.ID, rs)
	s.events.Publish(eventFor(events.OpCreated, req.ID, "", resp))
	s.log.InfoContext(ctx, "raster created", "storage", resp.Storage, "kind", resp.Kind)
	writeJSON(w, http.StatusCreated, resp)
}

// checkSize enforces the sample limit; malformed geometry is left to
// raster.Validate.
func (s *Server) checkSize(bands, rows, cols int) error {
	if bands < 1 || rows < 0 || cols < 0 {
		return nil
	}
	if n, ok := raster.CellCount(bands, rows, cols); ok && n > s.maxCells {
		return fmt.Errorf("%d samples, limit %d: %w", n, s.maxCells, raster.ErrTooLarge)
	}
	return nil
}

func (s *Server) createPersisted(ctx context.Context, req createRequest) (raster.Raster, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	svc, err := rasterservice.Create(ctx, s.store, rasterservice.Header{
		ID:          req.ID,
		Format:      req.Format,
		Bands:       req.Bands,
		Rows:        req.Rows,
		Columns:     req.Columns,
		Resolutions: req.Resolutions,
	}, s.serviceOptions()...)
	if err != nil {
		return nil, err
	}
	return s.factory.CreateProxy(svc, s.mapper)
}

func (s *Server) createInMemory(req createRequest) (raster.Raster, error) {
	format, err := raster.ParseFormat(req.Format)
	if err != nil {
		return nil, err
	}
	return s.factory.CreateRaster(format, req.Bands, req.Rows, req.Columns, req.Resolutions, s.mapper)
}

func (s *Server) serviceOptions() []rasterservice.Option {
	return []rasterservice.Option{
		rasterservice.WithOpTimeout(s.timeout),
		rasterservice.WithLogger(s.log),
	}
}

// lookup resolves id from the registry, reopening persisted rasters as
// proxies when they were evicted or created by another process.
func (s *Server) lookup(ctx context.Context, id string) (raster.Raster, error) {
	if rs, ok := s.reg.Get(id); ok {
		return rs, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	svc, err := rasterservice.Open(ctx, s.store, id, s.serviceOptions()...)
	if err != nil {
		return nil, err
	}
	rs, err := s.factory.CreateProxy(svc, s.mapper)
	if err != nil {
		return nil, err
	}
	s.reg.Put(id, rs)
	return rs, nil
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rs, err := s.lookup(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, describe(id, rs))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	removed := s.reg.RemoveTree(id) > 0

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	err := rasterservice.Delete(ctx, s.store, id)
	switch {
	case errors.Is(err, rasterservice.ErrNotFound) && removed:
	case err != nil:
		s.writeError(w, r, err)
		return
	}
	s.events.Publish(events.Event{Op: events.OpDeleted, RasterID: id})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req windowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("decode body: %v: %w", err, errBadRequest))
		return
	}
	src, err := s.lookup(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.factory.CreateMask(src, req.Row, req.Column, req.Rows, req.Columns)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	maskID := "m-" + mylog.NewID()
	s.reg.Put(maskID, m)
	resp := describe(maskID, m)
	s.events.Publish(eventFor(events.OpMasked, maskID, id, resp))
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleClone(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	src, err := s.lookup(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.factory.Clone(src)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.storageErr(src); err != nil {
		s.writeError(w, r, err)
		return
	}

	cloneID := "c-" + mylog.NewID()
	s.reg.Put(cloneID, c)
	resp := describe(cloneID, c)
	s.events.Publish(eventFor(events.OpCloned, cloneID, id, resp))
	writeJSON(w, http.StatusCreated, resp)
}

type cellResponse struct {
	Band  int `json:"band"`
	Row   int `json:"row"`
	Col   int `json:"col"`
	Value any `json:"value"`
}

func (s *Server) cell(r *http.Request, withBand bool) (rs raster.Raster, band, row, col int, err error) {
	rs, err = s.lookup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, 0, 0, 0, err
	}
	names := []string{"row", "col"}
	if withBand {
		names = append(names, "band")
	}
	vals := make([]int, len(names))
	for i, n := range names {
		v, err := strconv.Atoi(chi.URLParam(r, n))
		if err != nil {
			return nil, 0, 0, 0, fmt.Errorf("%s: %v: %w", n, err, errBadRequest)
		}
		vals[i] = v
	}
	row, col = vals[0], vals[1]
	if withBand {
		band = vals[2]
	}
	if band < 0 || band >= rs.NumberOfBands() || row < 0 || row >= rs.NumberOfRows() || col < 0 || col >= rs.NumberOfColumns() {
		return nil, 0, 0, 0, fmt.Errorf("cell (%d,%d,%d) outside raster: %w", row, col, band, errBadRequest)
	}
	return rs, band, row, col, nil
}

func (s *Server) handleGetCell(w http.ResponseWriter, r *http.Request) {
	rs, band, row, col, err := s.cell(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := cellResponse{Band: band, Row: row, Col: col}
	if rs.Format() == raster.Floating {
		resp.Value = rs.FloatValue(row, col, band)
	} else {
		resp.Value = rs.Value(row, col, band)
	}
	if err := s.storageErr(rs); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePutCell(w http.ResponseWriter, r *http.Request) {
	rs, band, row, col, err := s.cell(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body struct {
		Value json.Number `json:"value"`
	}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		s.writeError(w, r, fmt.Errorf("decode body: %v: %w", err, errBadRequest))
		return
	}

	resp := cellResponse{Band: band, Row: row, Col: col}
	if rs.Format() == raster.Floating {
		v, err := body.Value.Float64()
		if err != nil {
			s.writeError(w, r, fmt.Errorf("value %q: %w", body.Value, errBadRequest))
			return
		}
		rs.SetFloatValue(row, col, band, v)
		resp.Value = v
	} else {
		v, err := strconv.ParseUint(body.Value.String(), 10, 64)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("value %q is not an unsigned integer: %w", body.Value, errBadRequest))
			return
		}
		rs.SetValue(row, col, band, v)
		resp.Value = v
	}
	if err := s.storageErr(rs); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleH3(w http.ResponseWriter, r *http.Request) {
	rs, _, row, col, err := s.cell(r, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res := s.h3Res
	if q := r.URL.Query().Get("res"); q != "" {
		if res, err = strconv.Atoi(q); err != nil {
			s.writeError(w, r, fmt.Errorf("res: %v: %w", err, errBadRequest))
			return
		}
	}
	cell, err := h3mapper.IndexOf(rs.Mapper(), row, col, res)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%v: %w", err, errBadRequest))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"row": row, "col": col, "res": res, "cell": cell})
}

// handleCoverage lists the H3 cells covering a raster. Masks are resolved to
// their window on the georeferenced source.
func (s *Server) handleCoverage(w http.ResponseWriter, r *http.Request) {
	rs, err := s.lookup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res := s.h3Res
	if q := r.URL.Query().Get("res"); q != "" {
		if res, err = strconv.Atoi(q); err != nil {
			s.writeError(w, r, fmt.Errorf("res: %v: %w", err, errBadRequest))
			return
		}
	}

	row, col, rows, cols := 0, 0, rs.NumberOfRows(), rs.NumberOfColumns()
	base := rs
	for {
		src, r0, c0, _, _, ok := raster.Window(base)
		if !ok {
			break
		}
		row, col, base = row+r0, col+c0, src
	}
	hm, ok := base.Mapper().(*h3mapper.Mapper)
	if !ok {
		s.writeError(w, r, fmt.Errorf("raster is not georeferenced in lon/lat: %w", errBadRequest))
		return
	}
	cells, err := hm.RasterCells(row, col, rows, cols, res)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%v: %w", err, errBadRequest))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"res": res, "cells": cells})
}

// storageErr takes the pending storage failure of the service behind rs, if
// any, following masks down to their source.
func (s *Server) storageErr(rs raster.Raster) error {
	for rs != nil {
		if svc, ok := raster.ServiceOf(rs); ok {
			if t, ok := svc.(interface{ TakeErr() error }); ok {
				return t.TakeErr()
			}
			return nil
		}
		src, _, _, _, _, ok := raster.Window(rs)
		if !ok {
			return nil
		}
		rs = src
	}
	return nil
}

func describe(id string, rs raster.Raster) rasterResponse {
	resp := rasterResponse{
		ID:          id,
		Format:      rs.Format().String(),
		Bands:       rs.NumberOfBands(),
		Rows:        rs.NumberOfRows(),
		Columns:     rs.NumberOfColumns(),
		Resolutions: rs.RadiometricResolutions(),
	}
	if k, ok := raster.KindOf(rs); ok {
		resp.Storage, resp.Kind = storageMemory, k.String()
	} else if _, ok := raster.ServiceOf(rs); ok {
		resp.Storage, resp.Kind = storageRedis, "proxy"
	} else if _, row, col, rows, cols, ok := raster.Window(rs); ok {
		resp.Storage, resp.Kind = storageView, "mask"
		resp.Window = &window{Row: row, Column: col, Rows: rows, Columns: cols}
	}
	return resp
}

func eventFor(op, id, source string, r rasterResponse) events.Event {
	return events.Event{
		Op:       op,
		RasterID: id,
		SourceID: source,
		Kind:     r.Kind,
		Format:   r.Format,
		Bands:    r.Bands,
		Rows:     r.Rows,
		Columns:  r.Columns,
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusBadGateway
	switch {
	case errors.Is(err, raster.ErrTooLarge):
		code = http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest), raster.Reason(err) != "other":
		code = http.StatusBadRequest
	case errors.Is(err, rasterservice.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, rasterservice.ErrExists):
		code = http.StatusConflict
	}
	if code == http.StatusBadGateway {
		s.log.ErrorContext(r.Context(), "raster store failure", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
