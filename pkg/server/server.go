package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fastjson"

	"github.com/lkarlslund/redflag/pkg/assets"
	"github.com/lkarlslund/redflag/pkg/cache"
	"github.com/lkarlslund/redflag/pkg/config"
	"github.com/lkarlslund/redflag/pkg/event"
	"github.com/lkarlslund/redflag/pkg/eventstore"
	"github.com/lkarlslund/redflag/pkg/flagstore"
	"github.com/lkarlslund/redflag/pkg/kv"
)

const maxIngestBytes = 1 << 20

type Server struct {
	cfg        *config.ServerConfig
	events     *eventstore.Store
	flags      *flagstore.Store
	hub        *liveHub
	authCache  *cache.TTLMap[[32]byte, struct{}]
	httpServer *http.Server
}

func New(cfg *config.ServerConfig, conn kv.Conn) *Server {
	s := &Server{
		cfg:       cfg,
		events:    eventstore.New(conn),
		flags:     flagstore.New(conn),
		hub:       newLiveHub(),
		authCache: cache.NewTTLMap[[32]byte, struct{}](),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(s.authMiddleware)

		api.Post("/events", s.handleIngest)
		api.Get("/events", s.handleRange)
		api.Delete("/events", s.handlePurge)
		api.Get("/events/count", s.handleCount)
		api.Get("/events/hitcounts", s.handleHitCounts)
		api.Get("/events/timeseries", s.handleTimeSeries)
		api.Get("/events/live", s.handleLive)
		api.Get("/events/{uuid}", s.handleFindEvent)

		api.Get("/flags", s.handleListFlags)
		api.Post("/flags", s.handleCreateFlag)
		api.Get("/flags/{uid}", s.handleReadFlag)
		api.Put("/flags/{uid}", s.handleUpdateFlag)
		api.Delete("/flags/{uid}", s.handleDeleteFlag)
		api.Post("/flags/{uid}/enable", s.handleEnableFlag)
		api.Post("/flags/{uid}/disable", s.handleDisableFlag)
		api.Post("/flags/{uid}/roles/{role}", s.handleGrantRole)
		api.Delete("/flags/{uid}/roles/{role}", s.handleRemoveRole)

		api.Get("/groups", s.handleListGroups)
		api.Get("/groups/{group}", s.handleReadGroup)
		api.Post("/groups/{group}/enable", s.handleEnableGroup)
		api.Post("/groups/{group}/disable", s.handleDisableGroup)
		api.Post("/groups/{group}/flags/{uid}", s.handleAddToGroup)
		api.Delete("/groups/{group}/flags/{uid}", s.handleRemoveFromGroup)
	})

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler exposes the routing tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	b, err := assets.Load("index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(b)
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	if horizon := s.cfg.RetentionHorizon(); horizon > 0 {
		go s.retentionLoop(ctx, horizon, s.cfg.RetentionCheckInterval())
	}
	go func() {
		slog.Info("redflag listening", "addr", s.cfg.ListenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = s.httpServer.Shutdown(shutdownCtx)
	s.hub.closeAll()
	return firstErr(errCh)
}

func (s *Server) retentionLoop(ctx context.Context, horizon, every time.Duration) {
	slog.Info("retention loop running", "horizon", horizon, "every", every)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		s.purgeExpired(ctx, horizon)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (s *Server) purgeExpired(ctx context.Context, horizon time.Duration) {
	cutoff := time.Now().UTC().Add(-horizon).UnixMilli()
	removed, err := s.events.Purge(ctx, event.Query{From: 0, To: cutoff})
	if err != nil {
		slog.Warn("retention purge failed", "err", err)
		return
	}
	if removed > 0 {
		slog.Info("retention purge done", "removed", removed, "cutoff", cutoff)
	}
}

var ingestParsers fastjson.ParserPool

// handleIngest accepts one event object or an array of them. Events
// without a timestamp are stamped with the receive time; events without a
// uuid get one minted. Accepted events are fanned out to live subscribers.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body too large or unreadable"})
		return
	}
	p := ingestParsers.Get()
	defer ingestParsers.Put(p)
	v, err := p.ParseBytes(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	var events []event.Event
	if v.Type() == fastjson.TypeArray {
		for _, item := range v.GetArray() {
			e, err := eventFromValue(item)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			events = append(events, e)
		}
	} else {
		e, err := eventFromValue(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		events = append(events, e)
	}
	for i := range events {
		stampEvent(&events[i])
	}
	accepted, err := s.events.WriteBatch(r.Context(), events)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, event.ErrInvalidEvent) || errors.Is(err, event.ErrEncode) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]any{"accepted": accepted, "error": err.Error()})
		return
	}
	for _, e := range events[:accepted] {
		if payload, err := json.Marshal(e); err == nil {
			s.hub.broadcast(payload)
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": accepted})
}

func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	q, err := queryFromRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	events, err := s.events.Range(r.Context(), q)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if events == nil {
		events = []event.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	q, err := queryFromRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	n, err := s.events.Count(r.Context(), q)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (s *Server) handleHitCounts(w http.ResponseWriter, r *http.Request) {
	attr, ok := eventstore.ParseAttribute(r.URL.Query().Get("by"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "by must be one of name, host, source, user"})
		return
	}
	q, err := queryFromRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	counts, err := s.events.HitCounts(r.Context(), attr, q)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleTimeSeries(w http.ResponseWriter, r *http.Request) {
	slice, err := time.ParseDuration(r.URL.Query().Get("slice"))
	if err != nil || slice <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "slice must be a positive duration like 5m"})
		return
	}
	q, err := queryFromRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	points, err := s.events.TimeSeries(r.Context(), q, slice)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// handleFindEvent resolves one event by uuid. The ts parameter locates the
// bucket; when omitted a numeric uuid doubles as the timestamp, which is
// the writer's derived-identity scheme.
func (s *Server) handleFindEvent(w http.ResponseWriter, r *http.Request) {
	uuid := chi.URLParam(r, "uuid")
	tsRaw := r.URL.Query().Get("ts")
	if tsRaw == "" {
		tsRaw = uuid
	}
	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ts parameter required for non-numeric uuids"})
		return
	}
	e, err := s.events.FindByIdentity(r.Context(), uuid, ts)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	q, err := queryFromRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	removed, err := s.events.Purge(r.Context(), q)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, event.ErrInvalidEvent),
		errors.Is(err, event.ErrInvalidQuery),
		errors.Is(err, event.ErrEncode),
		errors.Is(err, flagstore.ErrInvalidFlag):
		status = http.StatusBadRequest
	case errors.Is(err, eventstore.ErrEventNotFound),
		errors.Is(err, flagstore.ErrFlagNotFound),
		errors.Is(err, flagstore.ErrGroupNotFound):
		status = http.StatusNotFound
	case errors.Is(err, flagstore.ErrFlagExists):
		status = http.StatusConflict
	case errors.Is(err, event.ErrDecode):
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func stampEvent(e *event.Event) {
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UTC().UnixMilli()
	}
	if e.UUID == "" {
		e.UUID = uuid.NewString()
	}
}

func eventFromValue(v *fastjson.Value) (event.Event, error) {
	if v.Type() != fastjson.TypeObject {
		return event.Event{}, fmt.Errorf("event must be a json object")
	}
	return event.Event{
		Timestamp:  v.GetInt64("timestamp"),
		UUID:       string(v.GetStringBytes("uuid")),
		Name:       string(v.GetStringBytes("name")),
		Source:     string(v.GetStringBytes("source")),
		Host:       string(v.GetStringBytes("host")),
		User:       string(v.GetStringBytes("user")),
		Action:     string(v.GetStringBytes("action")),
		DurationMS: v.GetInt64("duration_ms"),
	}, nil
}

func queryFromRequest(r *http.Request) (event.Query, error) {
	q := event.Query{To: time.Now().UTC().UnixMilli()}
	params := r.URL.Query()
	if raw := params.Get("from"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return event.Query{}, fmt.Errorf("from must be a millisecond timestamp")
		}
		q.From = v
	}
	if raw := params.Get("to"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return event.Query{}, fmt.Errorf("to must be a millisecond timestamp")
		}
		q.To = v
	}
	if raw := params.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return event.Query{}, fmt.Errorf("limit must be a positive integer")
		}
		q.Limit = v
	}
	return q, nil
}

func firstErr(ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	default:
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
