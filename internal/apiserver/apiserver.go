// Package apiserver is the thin, deliberately minimal HTTP surface the spec
// names as an external collaborator (spec §1/§6: "the HTTP surface that
// exposes pending transactions" is out of scope). It exists only to the
// degree needed to exercise TxStore.listAll/listPendingByUser/
// listPendingByChain and to serve Prometheus's /metrics.
package apiserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pro123908/pepu-bridge-server/internal/model"
	"github.com/pro123908/pepu-bridge-server/internal/txstore"
)

// Server exposes listPending and /metrics over HTTP.
type Server struct {
	store    txstore.TxStore
	registry *prometheus.Registry
	log      *zap.SugaredLogger
}

// New constructs a Server. registry may be nil to omit /metrics.
func New(store txstore.TxStore, registry *prometheus.Registry, log *zap.SugaredLogger) *Server {
	return &Server{store: store, registry: registry, log: log}
}

// Handler builds the http.Handler for this server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/relays", s.handleListPending)
	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// handleListPending serves spec §6's external read API: with no query
// parameter, up to 1000 most-recent records of any status by createdAt
// descending. With ?user= or ?chain= it instead returns every PENDING record
// for that user or destination chain, with no limit.
func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	records, err := s.list(ctx, r)
	if err != nil {
		s.log.Errorw("listPending query failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(records); err != nil {
		s.log.Warnw("failed to encode listPending response", "err", err)
	}
}

func (s *Server) list(ctx context.Context, r *http.Request) ([]*model.RelayRecord, error) {
	if user := r.URL.Query().Get("user"); user != "" {
		return s.store.ListPendingByUser(ctx, user)
	}
	if chain := r.URL.Query().Get("chain"); chain != "" {
		return s.store.ListPendingByChain(ctx, model.Chain(chain))
	}
	return s.store.ListAll(ctx, 0)
}
