package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/speedwagon-io/motordiag/internal/lib/logger/sl"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

const defaultCheckTimeout = 5 * time.Second

type ComponentHealth struct {
	Name     string  `json:"name"`
	Status   Status  `json:"status"`
	Message  string  `json:"message,omitempty"`
	Duration float64 `json:"duration_ms"`
}

type HealthResponse struct {
	Status     Status            `json:"status"`
	Components []ComponentHealth `json:"components"`
	Uptime     string            `json:"uptime"`
	Timestamp  time.Time         `json:"timestamp"`
}

type ReadyResponse struct {
	Ready   bool     `json:"ready"`
	Failing []string `json:"failing,omitempty"`
}

type HealthChecker interface {
	Name() string
	Check(ctx context.Context) (Status, string)
}

// Server exposes component checks and Prometheus metrics on a port
// separate from the public API.
type Server struct {
	log          *slog.Logger
	address      string
	server       *http.Server
	listener     net.Listener
	metrics      http.Handler
	checkTimeout time.Duration
	started      time.Time

	mu       sync.RWMutex
	checkers []HealthChecker
}

type Option func(*Server)

// WithMetricsHandler exposes h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

func WithCheckTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.checkTimeout = d
		}
	}
}

func NewServer(log *slog.Logger, address string, opts ...Option) *Server {
	s := &Server{
		log:          log.With(slog.String("component", "health")),
		address:      address,
		checkTimeout: defaultCheckTimeout,
		started:      time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) AddChecker(checker HealthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers = append(s.checkers, checker)
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/live", s.handleLive)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	return r
}

// Start binds the address and serves in the background. Bind errors are
// returned; later serve errors are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.log.Info("starting health server", slog.String("address", ln.Addr().String()))

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("health server error", sl.Err(err))
		}
	}()

	return nil
}

// Addr is the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Report runs every checker concurrently and folds the results into one
// overall status. Component order follows registration order.
func (s *Server) Report(ctx context.Context) HealthResponse {
	s.mu.RLock()
	checkers := append([]HealthChecker(nil), s.checkers...)
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, s.checkTimeout)
	defer cancel()

	components := make([]ComponentHealth, len(checkers))

	var wg sync.WaitGroup
	for i, checker := range checkers {
		i, checker := i, checker
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			status, message := checker.Check(ctx)
			components[i] = ComponentHealth{
				Name:     checker.Name(),
				Status:   status,
				Message:  message,
				Duration: float64(time.Since(start).Microseconds()) / 1000,
			}
		}()
	}
	wg.Wait()

	overall := StatusHealthy
	for _, c := range components {
		switch {
		case c.Status == StatusUnhealthy:
			overall = StatusUnhealthy
		case c.Status == StatusDegraded && overall == StatusHealthy:
			overall = StatusDegraded
		}
	}

	return HealthResponse{
		Status:     overall,
		Components: components,
		Uptime:     time.Since(s.started).Truncate(time.Second).String(),
		Timestamp:  time.Now().UTC(),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.Report(r.Context())

	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
		for _, c := range report.Components {
			if c.Status == StatusUnhealthy {
				s.log.Warn("component unhealthy", slog.String("name", c.Name), slog.String("message", c.Message))
			}
		}
	}

	s.writeJSON(w, code, report)
}

// handleReady fails while any checker reports unhealthy. Degraded
// components still accept traffic.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	report := s.Report(r.Context())

	resp := ReadyResponse{Ready: true}
	for _, c := range report.Components {
		if c.Status == StatusUnhealthy {
			resp.Ready = false
			resp.Failing = append(resp.Failing, c.Name)
		}
	}

	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, resp)
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("failed to write health response", sl.Err(err))
	}
}

// ComponentHealthChecker reports failStatus whenever healthFunc errors.
type ComponentHealthChecker struct {
	name       string
	failStatus Status
	healthFunc func(ctx context.Context) error
}

func NewComponentHealthChecker(name string, failStatus Status, healthFunc func(ctx context.Context) error) *ComponentHealthChecker {
	return &ComponentHealthChecker{
		name:       name,
		failStatus: failStatus,
		healthFunc: healthFunc,
	}
}

func (c *ComponentHealthChecker) Name() string {
	return c.name
}

func (c *ComponentHealthChecker) Check(ctx context.Context) (Status, string) {
	if err := c.healthFunc(ctx); err != nil {
		return c.failStatus, err.Error()
	}
	return StatusHealthy, ""
}

type StoreHealthChecker struct {
	countFunc func(ctx context.Context) (int64, error)
}

func NewStoreHealthChecker(countFunc func(ctx context.Context) (int64, error)) *StoreHealthChecker {
	return &StoreHealthChecker{countFunc: countFunc}
}

func (c *StoreHealthChecker) Name() string {
	return "store"
}

// Check is degraded while the store is empty: the service runs but only
// serves the No Data diagnosis.
func (c *StoreHealthChecker) Check(ctx context.Context) (Status, string) {
	count, err := c.countFunc(ctx)
	if err != nil {
		return StatusUnhealthy, err.Error()
	}

	if count == 0 {
		return StatusDegraded, "no readings stored"
	}

	return StatusHealthy, fmt.Sprintf("%d readings", count)
}
