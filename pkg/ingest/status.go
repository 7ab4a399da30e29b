package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/r3labs/sse"
	log "github.com/sirupsen/logrus"
	"github.com/vulcanize/mev-commit-indexer/pkg/loghelper"
)

// The SSE stream carrying one message per cycle report.
const CycleStream = "cycles"

// StatusServer exposes the state of the ingestion loop: /healthz, /metrics and an SSE stream of
// cycle reports on /events?stream=cycles.
type StatusServer struct {
	server *http.Server
	events *sse.Server

	mu   sync.RWMutex
	last *CycleReport
}

// Create a StatusServer listening on addr. Metrics are gathered from gatherer.
func NewStatusServer(addr string, gatherer prometheus.Gatherer) *StatusServer {
	events := sse.New()
	events.AutoReplay = false
	events.CreateStream(CycleStream)

	s := &StatusServer{events: events}
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/events", events.HTTPHandler).Methods(http.MethodGet)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler serving every status route.
func (s *StatusServer) Handler() http.Handler {
	return s.server.Handler
}

// Publish records the report and pushes it to the SSE subscribers.
func (s *StatusServer) Publish(report *CycleReport) {
	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	data, err := json.Marshal(report)
	if err != nil {
		loghelper.LogError(err).Error("Unable to encode the cycle report")
		return
	}
	s.events.Publish(CycleStream, &sse.Event{Event: []byte("cycle"), Data: data})
}

// Last returns the most recent cycle report, nil before the first cycle.
func (s *StatusServer) Last() *CycleReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

type healthResponse struct {
	Status    string       `json:"status"`
	LastCycle *CycleReport `json:"lastCycle,omitempty"`
}

// Healthy until a cycle fails; the next successful cycle restores it.
func (s *StatusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	last := s.Last()
	resp := healthResponse{Status: "ok", LastCycle: last}
	code := http.StatusOK
	if last != nil && last.Err != "" {
		resp.Status = "failing"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		loghelper.LogError(err).Error("Unable to write the health response")
	}
}

// ListenAndServe blocks until the server is shut down.
func (s *StatusServer) ListenAndServe() error {
	log.WithFields(log.Fields{"address": s.server.Addr}).Info("Serving the ingestion status")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and closes the SSE subscribers.
func (s *StatusServer) Shutdown(ctx context.Context) error {
	s.events.Close()
	return s.server.Shutdown(ctx)
}
