package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/cuemby/corescale/pkg/instancemanager"
	"github.com/cuemby/corescale/pkg/types"
)

// instanceManagerHandle is the subset of *manager.Manager the API
// server needs, kept as an interface so tests can substitute a bare
// *instancemanager.InstanceManager without a Raft cluster behind it.
type instanceManagerHandle interface {
	GetState() ([]*types.Instance, int64, error)
	Apply(expectedVersion int64, batch instancemanager.Batch, at time.Time) (int64, error)
}

// Server is the Instance Manager's HTTP surface.
type Server struct {
	mgr instanceManagerHandle
	mux *http.ServeMux
}

// NewServer creates a new Instance Manager HTTP server.
func NewServer(mgr instanceManagerHandle) *Server {
	mux := http.NewServeMux()
	s := &Server{mgr: mgr, mux: mux}

	mux.HandleFunc("/v1/instances", s.getInstancesHandler)
	mux.HandleFunc("/v1/instances/updates", s.postUpdateHandler)

	return s
}

// Start starts the HTTP server and blocks until it exits.
func (s *Server) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// Handler returns the HTTP handler for embedding in other servers.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// GetStateResponse is the GET /v1/instances response body.
type GetStateResponse struct {
	Instances []*types.Instance `json:"instances"`
	Version   int64             `json:"version"`
}

func (s *Server) getInstancesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	instances, version, err := s.mgr.GetState()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(GetStateResponse{Instances: instances, Version: version})
}

// UpdateRequest is the POST /v1/instances/updates request body.
type UpdateRequest struct {
	ExpectedVersion int64                 `json:"expected_version"`
	Batch           instancemanager.Batch `json:"batch"`
}

// UpdateResponse is the POST /v1/instances/updates response body.
type UpdateResponse struct {
	Version int64 `json:"version"`
}

func (s *Server) postUpdateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	version, err := s.mgr.Apply(req.ExpectedVersion, req.Batch, time.Now())
	if err != nil {
		if errors.Is(err, instancemanager.ErrVersionMismatch) {
			http.Error(w, err.Error(), http.StatusConflict)
		} else {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(UpdateResponse{Version: version})
}
