// Package api exposes the manager's HTTP surface: job submission and
// polling, partition retrieval, and a websocket stream of job progress.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/internal/bus"
	"github.com/betedge/edgelake/internal/catalog"
	"github.com/betedge/edgelake/internal/dispatch"
	"github.com/betedge/edgelake/internal/obs"
	"github.com/betedge/edgelake/internal/scan"
	"github.com/betedge/edgelake/pkg/exception"
)

// ReadyChecker probes the upstream provider for the health endpoint.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

type Config struct {
	Dispatcher *dispatch.Dispatcher
	Scanner    *scan.Scanner

	// Checker, Catalog, and Metrics are optional. Without a catalog the
	// job list covers only this process.
	Checker ReadyChecker
	Catalog *catalog.Catalog
	Metrics *obs.Metrics
}

func (cfg Config) validate() error {
	if cfg.Dispatcher == nil {
		return errors.Wrap(exception.ErrNilInstance, "api dispatcher")
	}

	if cfg.Scanner == nil {
		return errors.Wrap(exception.ErrNilInstance, "api scanner")
	}

	return nil
}

// Server owns the route table and the websocket hub.
type Server struct {
	cfg     Config
	hub     *Hub
	started time.Time
}

func New(cfg Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Server{
		cfg:     cfg,
		hub:     NewHub(),
		started: time.Now(),
	}, nil
}

// Router builds the manager's route table.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/jobs", s.handleSubmit).Methods(http.MethodPost)
	v1.HandleFunc("/jobs", s.handleList).Methods(http.MethodGet)
	v1.HandleFunc("/jobs/{id}", s.handlePoll).Methods(http.MethodGet)
	v1.HandleFunc("/retrieve", s.handleRetrieve).Methods(http.MethodGet)
	v1.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	v1.HandleFunc("/ws/jobs", s.hub.handleStream).Methods(http.MethodGet)

	return router
}

// Run pumps dispatcher events into the websocket hub. It returns after the
// context ends and the hub has closed its clients.
func (s *Server) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.hub.Run(ctx)
	}()

	s.cfg.Dispatcher.Events().Run(ctx, func(ev bus.Event) {
		if s.hub.HasClients() {
			s.hub.Broadcast(ev)
		}
	})

	wg.Wait()
}
