// Package server exposes the cluster registry over HTTP: a JSON API for UI
// consumers, the SSE change stream and a small HTML dashboard.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rbias/solboard/internal/cluster"
	"github.com/rbias/solboard/internal/explorer"
	"github.com/rbias/solboard/internal/probe"
)

// DefaultAddr is used when Options.Addr is empty.
const DefaultAddr = ":8080"

// maxBodyBytes caps request bodies; cluster records are tiny.
const maxBodyBytes = 64 << 10

// errBadRequest marks malformed request input.
var errBadRequest = errors.New("bad request")

// Registry is the subset of *cluster.Registry the server uses.
type Registry interface {
	Sync(ctx context.Context) error
	Snapshot() cluster.State
	Active() (cluster.Cluster, error)
	Get(name string) (cluster.Cluster, error)
	SetActive(ctx context.Context, name string) error
	Add(ctx context.Context, c cluster.Cluster) error
	Delete(ctx context.Context, name string) error
}

// HealthSource provides the active cluster's health. *probe.Monitor
// satisfies it.
type HealthSource interface {
	Report() probe.Report
	Refresh() error
}

// Options configures a Server.
type Options struct {
	Addr     string
	Registry Registry
	Resolver *explorer.Resolver

	// Health is optional; without it the health routes are not registered.
	Health HealthSource

	// Events is optional; when set it is mounted at /api/events.
	Events http.Handler
}

// Server serves the HTTP API.
type Server struct {
	addr     string
	registry Registry
	resolver *explorer.Resolver
	health   HealthSource
	events   http.Handler

	handler http.Handler
	httpSrv *http.Server
}

// ClusterView is a cluster as returned by the API, with its explorer link.
type ClusterView struct {
	cluster.Cluster
	ExplorerURL string `json:"explorerUrl,omitempty"`
}

// ClustersResponse is the body of GET /api/clusters.
type ClustersResponse struct {
	Clusters   []ClusterView `json:"clusters"`
	ActiveName string        `json:"activeName"`
}

// SelectRequest is the body of PUT /api/clusters/active.
type SelectRequest struct {
	Name string `json:"name"`
}

// LinkResponse is the body of GET /api/explorer.
type LinkResponse struct {
	Cluster string `json:"cluster"`
	URL     string `json:"url"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// New creates a Server. Registry and Resolver are required.
func New(opts Options) (*Server, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("server requires a cluster registry")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("server requires an explorer resolver")
	}
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}

	s := &Server{
		addr:     opts.Addr,
		registry: opts.Registry,
		resolver: opts.Resolver,
		health:   opts.Health,
		events:   opts.Events,
	}
	s.handler = s.routes()
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and blocks until the server stops.
// It returns nil after a graceful Shutdown, including one that happened
// before Start was called.
func (s *Server) Start() error {
	slog.Info("starting HTTP server", "address", s.addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/clusters", s.handleListClusters)
	mux.HandleFunc("POST /api/clusters", s.handleAddCluster)
	mux.HandleFunc("GET /api/clusters/active", s.handleGetActive)
	mux.HandleFunc("PUT /api/clusters/active", s.handleSetActive)
	mux.HandleFunc("DELETE /api/clusters/{name}", s.handleDeleteCluster)
	mux.HandleFunc("GET /api/explorer", s.handleExplorer)
	if s.health != nil {
		mux.HandleFunc("GET /api/health", s.handleHealth)
		mux.HandleFunc("POST /api/health/refresh", s.handleHealthRefresh)
	}
	if s.events != nil {
		mux.Handle("GET /api/events", s.events)
	}
	mux.HandleFunc("GET /{$}", s.handleDashboard)
	return mux
}

// handleListClusters handles GET /api/clusters.
func (s *Server) handleListClusters(w http.ResponseWriter, r *http.Request) {
	s.sync(r)
	writeJSON(w, http.StatusOK, s.clustersResponse())
}

func (s *Server) clustersResponse() ClustersResponse {
	state := s.registry.Snapshot()
	resp := ClustersResponse{
		Clusters:   make([]ClusterView, 0, len(state.Clusters)),
		ActiveName: state.ActiveName,
	}
	for _, c := range state.Clusters {
		view := ClusterView{Cluster: c}
		if link, err := s.resolver.Resolve(c, ""); err == nil {
			view.ExplorerURL = link
		}
		resp.Clusters = append(resp.Clusters, view)
	}
	return resp
}

// handleAddCluster handles POST /api/clusters.
func (s *Server) handleAddCluster(w http.ResponseWriter, r *http.Request) {
	var c cluster.Cluster
	if err := decodeBody(w, r, &c); err != nil {
		writeError(w, err)
		return
	}
	c.Active = false

	if err := s.registry.Add(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}

	added, err := s.registry.Get(c.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

// handleDeleteCluster handles DELETE /api/clusters/{name}.
func (s *Server) handleDeleteCluster(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Delete(r.Context(), r.PathValue("name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetActive handles GET /api/clusters/active.
func (s *Server) handleGetActive(w http.ResponseWriter, r *http.Request) {
	s.sync(r)
	active, err := s.registry.Active()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, active)
}

// handleSetActive handles PUT /api/clusters/active.
func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Name == "" {
		writeError(w, fmt.Errorf("%w: name is required", errBadRequest))
		return
	}

	if err := s.registry.SetActive(r.Context(), req.Name); err != nil {
		writeError(w, err)
		return
	}
	s.handleGetActive(w, r)
}

// handleExplorer handles GET /api/explorer?path=&cluster=. The active
// cluster is used unless cluster names another one.
func (s *Server) handleExplorer(w http.ResponseWriter, r *http.Request) {
	s.sync(r)
	query := r.URL.Query()

	var (
		c   cluster.Cluster
		err error
	)
	if name := query.Get("cluster"); name != "" {
		c, err = s.registry.Get(name)
	} else {
		c, err = s.registry.Active()
	}
	if err != nil {
		writeError(w, err)
		return
	}

	link, err := s.resolver.Resolve(c, query.Get("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LinkResponse{Cluster: c.Name, URL: link})
}

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.health.Report())
}

// handleHealthRefresh handles POST /api/health/refresh. The probe runs in the
// background; the reply carries the report current at the time of the call.
func (s *Server) handleHealthRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.health.Refresh(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.health.Report())
}

// sync picks up changes another process made to the shared store. Failure is
// not fatal for a read; the in-memory state is still consistent.
func (s *Server) sync(r *http.Request) {
	if err := s.registry.Sync(r.Context()); err != nil {
		slog.Warn("failed to sync cluster registry", "error", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps registry, resolver and probe errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		cluster.IsValidationError(err),
		errors.Is(err, explorer.ErrUnsupportedNetwork),
		errors.Is(err, explorer.ErrInvalidPath):
		return http.StatusBadRequest
	case cluster.IsNotFound(err):
		return http.StatusNotFound
	case cluster.IsConflict(err):
		return http.StatusConflict
	case probe.IsConnectionError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
