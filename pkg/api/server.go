// VulcanizeDB
// Copyright © 2022 Vulcanize

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package api is the read-only query service over the store. It serves the raw tables, the joined
// commitment view and aggregations over it.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/vulcanize/mev-commit-indexer/pkg/store"
)

const (
	DefaultPage  = 1
	DefaultLimit = 50
	MaxLimit     = 100
)

// Server answers queries against the store, opening it read-only for every request.
type Server struct {
	store   *store.Store
	server  *http.Server
	metrics *requestMetrics
}

// Create a query Server for st listening on addr. Request metrics are registered with reg and
// /metrics is served from gatherer.
func NewServer(st *store.Store, addr string, reg prometheus.Registerer, gatherer prometheus.Gatherer) *Server {
	s := &Server{store: st, metrics: newRequestMetrics(reg)}

	router := mux.NewRouter()
	router.Use(s.metrics.instrument)
	router.HandleFunc("/tables", s.listTables).Methods(http.MethodGet)
	router.HandleFunc("/tables/{name}/schema", s.tableSchema).Methods(http.MethodGet)
	router.HandleFunc("/preconfs", s.listPreconfs).Methods(http.MethodGet)
	router.HandleFunc("/preconfs/aggregations", s.aggregatePreconfs).Methods(http.MethodGet)
	router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Accept", "Authorization", "Content-Type", "X-Requested-With"}),
	)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           cors(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler serving every route of the query service.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	log.WithFields(log.Fields{"address": s.server.Addr, "store": s.store.Path()}).Info("Serving the query API")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown waits for in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
