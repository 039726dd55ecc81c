// Package service exposes a catalog over HTTP/JSON.
package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/viant/sqlite-kd/catalog"
	"github.com/viant/sqlite-kd/changelog"
	"github.com/viant/sqlite-kd/geo"
	"github.com/viant/sqlite-kd/index"
	"github.com/viant/sqlite-kd/internal/cache"
	"github.com/viant/sqlite-kd/internal/logger"
	"github.com/viant/sqlite-kd/internal/metrics"
	"github.com/viant/sqlite-kd/render"
	"github.com/viant/sqlite-kd/store"
)

const maxBodyBytes = 8 << 20

// Server serves dataset queries from a catalog.
type Server struct {
	catalog *catalog.Catalog
	cache   *cache.Cache
	log     *slog.Logger

	changes    *sql.DB
	pointTable string
}

// Option configures a Server.
type Option func(*Server)

// WithCache caches query answers in redis; nil disables caching.
func WithCache(c *cache.Cache) Option {
	return func(s *Server) { s.cache = c }
}

// WithChangelog enables the changes route over the log installed for pointTable.
func WithChangelog(db *sql.DB, pointTable string) Option {
	return func(s *Server) {
		s.changes = db
		s.pointTable = pointTable
	}
}

// WithLogger sets the logger; the default is logger.L().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New creates a Server over c.
func New(c *catalog.Catalog, opts ...Option) *Server {
	s := &Server{catalog: c}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.L()
	}
	if s.cache != nil {
		c.OnInvalidate(s.bumpAll)
	}
	return s
}

// Handler returns the routes mounted under base (for example "/api").
func (s *Server) Handler(base string) http.Handler {
	mux := http.NewServeMux()
	ds := base + "/datasets/{dataset}"
	s.handle(mux, "POST "+ds+"/points", "add", s.addPoints)
	s.handle(mux, "DELETE "+ds+"/points/{id}", "remove", s.removePoint)
	s.handle(mux, "GET "+ds+"/nearest", "nearest", s.nearest)
	s.handle(mux, "GET "+ds+"/range", "range", s.rangeQuery)
	s.handle(mux, "GET "+ds+"/contains", "contains", s.contains)
	s.handle(mux, "GET "+ds+"/size", "size", s.size)
	s.handle(mux, "GET "+ds+"/svg", "svg", s.svg)
	s.handle(mux, "POST "+ds+"/invalidate", "invalidate", s.invalidate)
	if s.changes != nil {
		s.handle(mux, "GET "+ds+"/changes", "changes", s.changeLog)
	}
	mux.Handle("GET "+base+"/metrics", metrics.Handler())
	mux.HandleFunc("GET "+base+"/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return logger.AccessMiddleware(s.log)(mux)
}

func (s *Server) handle(mux *http.ServeMux, pattern, route string, fn func(http.ResponseWriter, *http.Request) error) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if err := fn(w, r); err != nil {
			status := statusOf(err)
			if status >= http.StatusInternalServerError {
				s.log.Error("request_error", "route", route, "err", err)
			} else {
				s.log.Debug("request_rejected", "route", route, "err", err)
			}
			writeJSON(w, status, errorResponse{Error: err.Error()})
		}
		metrics.RequestDurationMs.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	})
}

// badRequest marks a malformed request parameter.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func statusOf(err error) int {
	var br *badRequest
	switch {
	case errors.As(err, &br),
		errors.Is(err, index.ErrInvalidArgument),
		errors.Is(err, store.ErrDatasetRequired):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func floatParam(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, &badRequest{msg: fmt.Sprintf("missing parameter %q", name)}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) {
		return 0, &badRequest{msg: fmt.Sprintf("invalid parameter %q: %q", name, raw)}
	}
	return v, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, &badRequest{msg: fmt.Sprintf("invalid parameter %q: %q", name, raw)}
	}
	return v, nil
}

func pointParam(r *http.Request) (geo.Point, error) {
	x, err := floatParam(r, "x")
	if err != nil {
		return geo.Point{}, err
	}
	y, err := floatParam(r, "y")
	if err != nil {
		return geo.Point{}, err
	}
	return geo.Point{X: x, Y: y}, nil
}

// cached answers from redis when possible, otherwise computes and stores the
// answer.
func (s *Server) cached(ctx context.Context, dataset, query string, out interface{}, compute func() error, args ...float64) error {
	if s.cache == nil {
		return compute()
	}
	epoch, err := s.cache.Epoch(ctx, dataset)
	if err != nil {
		s.log.Warn("cache_epoch_error", "dataset", dataset, "err", err)
		return compute()
	}
	size, err := s.catalog.Size(ctx, dataset)
	if err != nil {
		return err
	}
	key := cache.Key(dataset, epoch, size, query, args...)
	if ok, err := s.cache.Get(ctx, key, out); err != nil {
		s.log.Warn("cache_get_error", "key", key, "err", err)
	} else if ok {
		return nil
	}
	if err := compute(); err != nil {
		return err
	}
	if err := s.cache.Set(ctx, key, out); err != nil {
		s.log.Warn("cache_set_error", "key", key, "err", err)
	}
	return nil
}

func (s *Server) addPoints(w http.ResponseWriter, r *http.Request) error {
	var req AddRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		return &badRequest{msg: "invalid body: " + err.Error()}
	}
	records := make([]store.Record, len(req.Points))
	for i, p := range req.Points {
		records[i] = store.Record{ID: p.ID, Point: geo.Point{X: p.X, Y: p.Y}, Label: p.Label}
	}
	ids, err := s.catalog.Add(r.Context(), r.PathValue("dataset"), records)
	if err != nil {
		return err
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusCreated, AddResponse{IDs: ids})
	return nil
}

// bumpAll retires the cached answers of datasets. It runs on every catalog
// invalidation, including those fired by SQL triggers on the point table.
func (s *Server) bumpAll(datasets []string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, dataset := range datasets {
		if err := s.cache.Bump(ctx, dataset); err != nil {
			s.log.Warn("cache_bump_error", "dataset", dataset, "err", err)
		}
	}
}

func (s *Server) removePoint(w http.ResponseWriter, r *http.Request) error {
	dataset := r.PathValue("dataset")
	if err := s.catalog.Remove(r.Context(), dataset, r.PathValue("id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) nearest(w http.ResponseWriter, r *http.Request) error {
	p, err := pointParam(r)
	if err != nil {
		return err
	}
	k, err := intParam(r, "k", 0)
	if err != nil {
		return err
	}
	ctx, dataset := r.Context(), r.PathValue("dataset")
	var out NearestResponse
	if k > 0 {
		err = s.cached(ctx, dataset, "knn", &out, func() error {
			found, err := s.catalog.KNearest(ctx, dataset, p, k)
			if err != nil {
				return err
			}
			out.Found = len(found) > 0
			for _, n := range found {
				out.Neighbors = append(out.Neighbors, NeighborJSON{Point: toJSON(n.Point), Distance: n.Distance})
			}
			return nil
		}, p.X, p.Y, float64(k))
	} else {
		err = s.cached(ctx, dataset, "nearest", &out, func() error {
			q, ok, err := s.catalog.Nearest(ctx, dataset, p)
			if err != nil || !ok {
				return err
			}
			pj := toJSON(q)
			out = NearestResponse{Found: true, Point: &pj, Distance: q.DistanceTo(p)}
			return nil
		}, p.X, p.Y)
	}
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

func (s *Server) rangeQuery(w http.ResponseWriter, r *http.Request) error {
	var v [4]float64
	for i, name := range []string{"xmin", "ymin", "xmax", "ymax"} {
		f, err := floatParam(r, name)
		if err != nil {
			return err
		}
		v[i] = f
	}
	rect, err := geo.NewRect(v[0], v[1], v[2], v[3])
	if err != nil {
		return &badRequest{msg: err.Error()}
	}
	ctx, dataset := r.Context(), r.PathValue("dataset")
	out := RangeResponse{Points: []PointJSON{}}
	err = s.cached(ctx, dataset, "range", &out, func() error {
		points, err := s.catalog.Range(ctx, dataset, rect)
		if err != nil {
			return err
		}
		out.Points = toJSONs(points)
		return nil
	}, v[:]...)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

func (s *Server) contains(w http.ResponseWriter, r *http.Request) error {
	p, err := pointParam(r)
	if err != nil {
		return err
	}
	ok, err := s.catalog.Contains(r.Context(), r.PathValue("dataset"), p)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, ContainsResponse{Contains: ok})
	return nil
}

func (s *Server) size(w http.ResponseWriter, r *http.Request) error {
	n, err := s.catalog.Size(r.Context(), r.PathValue("dataset"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, SizeResponse{Size: n})
	return nil
}

func (s *Server) svg(w http.ResponseWriter, r *http.Request) error {
	width, err := intParam(r, "width", 0)
	if err != nil {
		return err
	}
	height, err := intParam(r, "height", 0)
	if err != nil {
		return err
	}
	dataset := r.PathValue("dataset")
	tree, ok, err := s.catalog.Tree(r.Context(), dataset)
	if err != nil {
		return err
	}
	if !ok {
		return &badRequest{msg: fmt.Sprintf("dataset %q is not indexed by a kd-tree", dataset)}
	}
	var buf bytes.Buffer
	if err := render.SVG(&buf, tree, render.Options{Width: width, Height: height, Title: dataset}); err != nil {
		return err
	}
	w.Header().Set("content-type", "image/svg+xml")
	_, _ = w.Write(buf.Bytes())
	return nil
}

func (s *Server) invalidate(w http.ResponseWriter, r *http.Request) error {
	dataset := r.PathValue("dataset")
	n := s.catalog.Invalidate(dataset)
	writeJSON(w, http.StatusOK, InvalidateResponse{Dropped: n})
	return nil
}

func (s *Server) changeLog(w http.ResponseWriter, r *http.Request) error {
	after, err := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
	if err != nil && r.URL.Query().Get("after") != "" {
		return &badRequest{msg: "invalid parameter \"after\""}
	}
	limit, err := intParam(r, "limit", 100)
	if err != nil {
		return err
	}
	entries, err := changelog.Since(r.Context(), s.changes, s.pointTable, r.PathValue("dataset"), after, limit)
	if err != nil {
		return err
	}
	out := ChangesResponse{Changes: make([]ChangeJSON, 0, len(entries)), Next: after}
	for i := range entries {
		e := &entries[i]
		c := ChangeJSON{SCN: e.SCN, Op: e.Op, ID: e.PointID, CreatedAt: e.CreatedAt}
		if rec, err := e.Record(); err == nil {
			pj := toJSON(rec.Point)
			c.Point = &pj
			c.Label = rec.Label
		}
		out.Changes = append(out.Changes, c)
		out.Next = e.SCN
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}
