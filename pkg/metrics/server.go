package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"
)

// Endpoint paths and the default listen address.
const (
	DefaultMetricsAddr = "127.0.0.1:9090"
	MetricsPath        = "/metrics"
	HealthPath         = "/health"
)

// LedgerStatus is the ledger position reported by the health endpoint.
type LedgerStatus struct {
	Slot      uint64 `json:"slot"`
	Blockhash string `json:"blockhash"`
	Accounts  uint64 `json:"accounts"`
}

// Server exposes a Metrics registry over HTTP.
type Server struct {
	metrics *Metrics
	addr    string
	status  func() LedgerStatus

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates a server for m listening on addr. status may be nil, in
// which case the health endpoint reports liveness only.
func NewServer(m *Metrics, addr string, status func() LedgerStatus) *Server {
	if addr == "" {
		addr = DefaultMetricsAddr
	}
	return &Server{metrics: m, addr: addr, status: status}
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return errors.New("metrics server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(MetricsPath, Handler(s.metrics))
	mux.HandleFunc(HealthPath, s.handleHealth)
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	s.server, s.listener = server, listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server error: %v", err)
		}
	}()
	return nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// Addr returns the bound address once started, the configured one before.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := struct {
		Status    string        `json:"status"`
		Timestamp string        `json:"timestamp"`
		Ledger    *LedgerStatus `json:"ledger,omitempty"`
	}{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if s.status != nil {
		st := s.status()
		resp.Ledger = &st
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("metrics: failed to write health response: %v", err)
	}
}

// Handler serves m in Prometheus text format.
func Handler(m *Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		fmt.Fprint(w, m.Format())
	})
}
