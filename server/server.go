// Package server exposes coordinator runs over HTTP.
//
// Routes:
//
//	POST /runs               start a run
//	GET  /runs/{id}          run status and summary
//	GET  /runs/{id}/report   rendered report, once the run has finished
//	GET  /runs/{id}/watch    websocket stream of the run's output lines
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quii/guardedcounter/config"
	"github.com/quii/guardedcounter/report"
	"github.com/quii/guardedcounter/service"
	"github.com/quii/guardedcounter/sink"
)

// DefaultTTL is how long a finished run stays available.
const DefaultTTL = 10 * time.Minute

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithTTL sets how long finished runs are kept.
func WithTTL(ttl time.Duration) Option {
	return func(s *Server) {
		s.ttl = ttl
	}
}

// WithSink also writes every run's lines to out, in addition to the
// run's websocket watchers.
func WithSink(out sink.Sink) Option {
	return func(s *Server) {
		s.out = out
	}
}

// Server is an [http.Handler] that starts and tracks runs. Create instances
// with [New].
type Server struct {
	ctx  context.Context
	mux  *http.ServeMux
	runs *registry
	log  *slog.Logger
	out  sink.Sink
	ttl  time.Duration
	wg   sync.WaitGroup
}

// New creates a [Server]. Runs started without waiting are bound to ctx,
// not to the request that started them.
func New(ctx context.Context, opts ...Option) *Server {
	s := &Server{
		ctx: ctx,
		mux: http.NewServeMux(),
		log: slog.Default(),
		out: sink.Discard,
		ttl: DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.runs = newRegistry(s.ttl, s.log)

	s.mux.HandleFunc("POST /runs", s.handleCreate)
	s.mux.HandleFunc("GET /runs/{id}", s.handleGet)
	s.mux.HandleFunc("GET /runs/{id}/report", s.handleReport)
	s.mux.HandleFunc("GET /runs/{id}/watch", s.handleWatch)

	return s
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Wait blocks until every run started by the server has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

// runRequest is the body of POST /runs. Omitted fields take their
// [config.Default] values.
type runRequest struct {
	config.Run

	SampleInterval string `json:"sample_interval,omitempty"`
	Timeout        string `json:"timeout,omitempty"`
	// Wait makes the request block until the run has finished.
	Wait bool `json:"wait,omitempty"`
}

func (req runRequest) toConfig() (config.Run, error) {
	cfg := req.Run

	if req.SampleInterval != "" {
		d, err := time.ParseDuration(req.SampleInterval)
		if err != nil {
			return cfg, fmt.Errorf("%w: sample_interval: %w", config.ErrInvalidConfig, err)
		}
		cfg.SampleInterval = d
	}

	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil {
			return cfg, fmt.Errorf("%w: timeout: %w", config.ErrInvalidConfig, err)
		}
		cfg.Timeout = d
	}

	return cfg, cfg.Validate()
}

type runResponse struct {
	ID      uuid.UUID        `json:"id"`
	Status  Status           `json:"status"`
	Summary *service.Summary `json:"summary,omitempty"`
	Error   string           `json:"error,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	req := runRequest{Run: config.Default()}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))

		return
	}

	cfg, err := req.toConfig()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)

		return
	}

	rn := &run{
		id:          uuid.New(),
		cfg:         cfg,
		broadcaster: sink.NewBroadcaster(sink.WithBroadcasterLogger(s.log)),
		done:        make(chan struct{}),
	}
	s.runs.add(rn)

	s.log.Info("starting run",
		slog.String("run", rn.id.String()),
		slog.Int("workers", cfg.Workers),
		slog.Int64("initial", cfg.Initial),
	)

	s.wg.Add(1)
	go s.execute(rn)

	w.Header().Set("Location", "/runs/"+rn.id.String())

	if !req.Wait {
		s.writeJSON(w, http.StatusAccepted, runResponse{ID: rn.id, Status: StatusRunning})

		return
	}

	select {
	case <-rn.done:
	case <-r.Context().Done():
		return
	}

	s.writeJSON(w, http.StatusOK, response(rn))
}

func (s *Server) execute(rn *run) {
	defer s.wg.Done()

	summary, err := service.Run(s.ctx, rn.cfg,
		service.WithSink(sink.Multi{rn.broadcaster, s.out}),
		service.WithServiceOptions(
			service.WithID(rn.id),
			service.WithLogger(s.log),
		),
	)
	if err != nil {
		s.log.Warn("run failed", slog.String("run", rn.id.String()), slog.Any("err", err))
	}

	rn.finish(summary, err)
	s.runs.expire(rn)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rn, ok := s.lookup(w, r)
	if !ok {
		return
	}

	s.writeJSON(w, http.StatusOK, response(rn))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rn, ok := s.lookup(w, r)
	if !ok {
		return
	}

	status, summary, _ := rn.snapshot()
	if status == StatusRunning {
		s.writeError(w, http.StatusConflict, fmt.Errorf("run %s is still running", rn.id))

		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = report.FormatHTML
	}

	body, err := report.Render(summary, format)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)

		return
	}

	switch format {
	case report.FormatMarkdown:
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	default:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}

	if _, err := w.Write(body); err != nil {
		s.log.Debug("write report", slog.Any("err", err))
	}
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	rn, ok := s.lookup(w, r)
	if !ok {
		return
	}

	rn.broadcaster.ServeHTTP(w, r)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*run, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid run id: %w", err))

		return nil, false
	}

	rn, err := s.runs.get(id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", err, id))

		return nil, false
	}

	return rn, true
}

func response(rn *run) runResponse {
	status, summary, err := rn.snapshot()

	out := runResponse{ID: rn.id, Status: status}
	if status != StatusRunning {
		out.Summary = &summary
	}

	if err != nil {
		out.Error = err.Error()
	}

	return out
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("write response", slog.Any("err", err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	s.log.Debug("request failed", slog.Int("code", code), slog.Any("err", err))

	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}
