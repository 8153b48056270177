// Package health serves liveness, readiness, metrics and the current
// gesture over HTTP.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/e7canasta/senyas-gesture/history"
	"github.com/e7canasta/senyas-gesture/internal/logging"
	"github.com/e7canasta/senyas-gesture/sink"
)

// Status is the health state of the daemon.
type Status struct {
	Status        string            `json:"status"` // healthy, degraded, unhealthy
	UptimeSeconds int64             `json:"uptime_seconds"`
	State         string            `json:"state"`
	SourceRunning bool              `json:"source_running"`
	MQTTEnabled   bool              `json:"mqtt_enabled"`
	MQTTConnected bool              `json:"mqtt_connected"`
	Counters      map[string]uint64 `json:"counters,omitempty"`
}

// Checker reports the daemon health.
type Checker interface {
	HealthCheck() Status
}

// GestureReader exposes the latest observation. Implemented by sink.Latest.
type GestureReader interface {
	Get() (sink.Snapshot, bool)
}

// Config configures the server.
type Config struct {
	Addr       string
	InstanceID string
	Logger     *zap.Logger
}

// Server is the HTTP health server.
type Server struct {
	cfg     Config
	checker Checker
	gesture GestureReader
	history history.Store // optional
	logger  *zap.Logger
	server  *http.Server
	router  *mux.Router
}

// NewServer builds the router. history may be nil.
func NewServer(cfg Config, checker Checker, gesture GestureReader, store history.Store) *Server {
	s := &Server{
		cfg:     cfg,
		checker: checker,
		gesture: gesture,
		history: store,
		logger:  logging.OrNop(cfg.Logger).Named("health"),
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.liveness).Methods(http.MethodGet)
	r.HandleFunc("/readiness", s.readiness).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.metrics).Methods(http.MethodGet)
	r.HandleFunc("/gesture", s.currentGesture).Methods(http.MethodGet)
	if store != nil {
		r.HandleFunc("/history", s.listHistory).Methods(http.MethodGet)
		r.HandleFunc("/history", s.clearHistory).Methods(http.MethodDelete)
		r.HandleFunc("/history/{text}", s.deleteHistory).Methods(http.MethodDelete)
	}
	s.router = r

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on Addr and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("health server listen %s: %w", s.cfg.Addr, err)
	}
	s.logger.Info("starting health check server",
		zap.String("addr", ln.Addr().String()),
		zap.Strings("endpoints", []string{"/health", "/readiness", "/metrics", "/gesture", "/history"}),
	)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("health check server failed", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) liveness(w http.ResponseWriter, _ *http.Request) {
	st := s.checker.HealthCheck()
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "alive",
		"uptime": st.UptimeSeconds,
	})
}

func (s *Server) readiness(w http.ResponseWriter, _ *http.Request) {
	st := s.checker.HealthCheck()
	code := http.StatusOK
	if st.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

// metrics renders counters in the Prometheus text format.
func (s *Server) metrics(w http.ResponseWriter, _ *http.Request) {
	st := s.checker.HealthCheck()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)

	label := fmt.Sprintf(`{instance="%s"}`, s.cfg.InstanceID)
	var b strings.Builder
	fmt.Fprintf(&b, "senyas_uptime_seconds%s %d\n", label, st.UptimeSeconds)
	fmt.Fprintf(&b, "senyas_up%s %d\n", label, boolInt(st.Status != "unhealthy"))
	fmt.Fprintf(&b, "senyas_mqtt_connected%s %d\n", label, boolInt(st.MQTTConnected))

	names := make([]string, 0, len(st.Counters))
	for name := range st.Counters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "senyas_%s_total%s %d\n", name, label, st.Counters[name])
	}
	_, _ = w.Write([]byte(b.String()))
}

func (s *Server) currentGesture(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.gesture.Get()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"text": sink.WaitingText})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.history.List(r.Context())
	if err != nil {
		s.logger.Error("health: list history failed", zap.Error(err))
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(entries), "entries": entries})
}

func (s *Server) deleteHistory(w http.ResponseWriter, r *http.Request) {
	text := mux.Vars(r)["text"]
	n, err := s.history.DeleteByText(r.Context(), text)
	if err != nil {
		s.logger.Error("health: delete history failed", zap.String("text", text), zap.Error(err))
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"text": text, "removed": n})
}

func (s *Server) clearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.history.Clear(r.Context()); err != nil {
		s.logger.Error("health: clear history failed", zap.Error(err))
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
