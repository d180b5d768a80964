// Package httpapi implements the HTTP+JSON transport a supervisor
// listens on, the server-side counterpart to broadcast/httpconnector.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"firestige.xyz/chainproto/internal/core"
	"firestige.xyz/chainproto/internal/eventbus"
	"firestige.xyz/chainproto/internal/model"
	"firestige.xyz/chainproto/internal/supervisor"
)

// Server exposes a Supervisor's signal dispatcher over HTTP.
type Server struct {
	addr       string
	supervisor *supervisor.Supervisor
	server     *http.Server
}

// New builds a Server bound to sup, listening on addr.
func New(addr string, sup *supervisor.Supervisor) *Server {
	return &Server{addr: addr, supervisor: sup}
}

// Start builds the route table and starts serving in the background. It
// returns right away without waiting for the listener: a listen error
// is only logged from the serving goroutine. Call Stop for graceful
// shutdown.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/chain/create-and-start", s.handleChainCreateAndStart)
	mux.HandleFunc("/chain/status", s.handleChainStatus)
	mux.HandleFunc("/node/communicate/setup", s.handleNodeSetup)
	mux.HandleFunc("/node/pre", s.handleNodePre)
	mux.HandleFunc("/node/communicate/run", s.handleNodeRun)
	mux.HandleFunc("/node/communicate/notify", s.handleNodeNotify)
	mux.HandleFunc("/node/communicate/enqueue-status", s.handleNodeEnqueueStatus)
	mux.HandleFunc("/node/suspend", s.handleNodeSuspend)
	mux.HandleFunc("/node/resume", s.handleNodeResume)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("starting httpapi server", "addr", s.addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("httpapi server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	slog.Info("stopping httpapi server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("httpapi server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func decodeJSON[T any](r *http.Request) (T, error) {
	var v T
	err := json.NewDecoder(r.Body).Decode(&v)
	return v, err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeError maps a core error taxonomy sentinel to an HTTP status code.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrConfigInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrRoutingMiss):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrStateViolation):
		status = http.StatusConflict
	case errors.Is(err, core.ErrTransport):
		status = http.StatusBadGateway
	case errors.Is(err, core.ErrProcessorFailure):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type chainCreateAndStartRequest struct {
	Chain model.ChainConfig `json:"chain"`
	Data  model.Data        `json:"data"`
}

func (s *Server) handleChainCreateAndStart(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[chainCreateAndStartRequest](r)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", core.ErrConfigInvalid, err))
		return
	}
	if len(req.Chain) == 0 {
		writeError(w, fmt.Errorf("%w: empty chain", core.ErrConfigInvalid))
		return
	}
	chainID := req.Chain[0].ChainID

	if err := s.supervisor.CreateChain(req.Chain); err != nil {
		writeError(w, err)
		return
	}
	if err := s.supervisor.DeployChain(chainID); err != nil {
		writeError(w, err)
		return
	}
	if err := s.supervisor.StartChain(r.Context(), chainID, req.Data); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"chainId": chainID,
		"message": "chain created and started",
	})
}

// handleChainStatus answers the Monitoring Agent's per-chain summary:
// the last known status of every node reported for ?chainId=.
func (s *Server) handleChainStatus(w http.ResponseWriter, r *http.Request) {
	chainID := r.URL.Query().Get("chainId")
	if chainID == "" {
		writeError(w, fmt.Errorf("%w: missing chainId query parameter", core.ErrConfigInvalid))
		return
	}
	monitor := s.supervisor.Monitor()
	if monitor == nil {
		writeError(w, fmt.Errorf("%w: monitoring agent not configured", core.ErrRoutingMiss))
		return
	}
	summary, ok := monitor.Summary(chainID)
	if !ok {
		writeError(w, fmt.Errorf("%w: no status reported for chain %q", core.ErrRoutingMiss, chainID))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleNodeSetup(w http.ResponseWriter, r *http.Request) {
	cfg, err := decodeJSON[model.NodeConfig](r)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", core.ErrConfigInvalid, err))
		return
	}
	nodeID := fmt.Sprintf("%s-%d", cfg.ChainID, cfg.Index)
	_, err = s.supervisor.HandleRequest(r.Context(), supervisor.Request{
		Signal:  supervisor.SignalNodeSetup,
		ChainID: cfg.ChainID,
		NodeID:  nodeID,
		Config:  cfg,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"nodeId": nodeID})
}

type nodePreRequest struct {
	ChainID string             `json:"chainId"`
	Pre     []model.NodeConfig `json:"pre"`
}

// handleNodePre is the receiving side of a remote node's BroadcastPre
// call: this host hosts the pre sub-chain's services, so it runs them
// directly rather than dispatching through an already-registered node.
func (s *Server) handleNodePre(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[nodePreRequest](r)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", core.ErrConfigInvalid, err))
		return
	}
	out, err := s.supervisor.RunPreStage(r.Context(), req.ChainID, [][]model.NodeConfig{req.Pre})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type nodeRunRequest struct {
	TargetID string     `json:"targetId"`
	ChainID  string     `json:"chainId"`
	Data     model.Data `json:"data"`
}

func (s *Server) handleNodeRun(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[nodeRunRequest](r)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", core.ErrConfigInvalid, err))
		return
	}
	out, err := s.supervisor.HandleRequest(r.Context(), supervisor.Request{
		Signal:  supervisor.SignalNodeRun,
		ChainID: req.ChainID,
		NodeID:  req.TargetID,
		Data:    req.Data,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleNodeNotify(w http.ResponseWriter, r *http.Request) {
	ev, err := decodeJSON[eventbus.StatusEvent](r)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", core.ErrConfigInvalid, err))
		return
	}
	if err := s.supervisor.PublishRemoteStatus(ev); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

type nodeSignalRequest struct {
	ChainID string      `json:"chainId"`
	NodeID  string      `json:"nodeId"`
	Data    *model.Data `json:"resumePayload,omitempty"`
}

func (s *Server) handleNodeSuspend(w http.ResponseWriter, r *http.Request) {
	s.nodeSignal(w, r, supervisor.SignalNodeSuspend)
}

func (s *Server) handleNodeResume(w http.ResponseWriter, r *http.Request) {
	s.nodeSignal(w, r, supervisor.SignalNodeResume)
}

func (s *Server) nodeSignal(w http.ResponseWriter, r *http.Request, signal string) {
	req, err := decodeJSON[nodeSignalRequest](r)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", core.ErrConfigInvalid, err))
		return
	}
	_, err = s.supervisor.HandleRequest(r.Context(), supervisor.Request{
		Signal:        signal,
		ChainID:       req.ChainID,
		NodeID:        req.NodeID,
		ResumePayload: req.Data,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

type nodeEnqueueStatusRequest struct {
	ChainID string     `json:"chainId"`
	NodeID  string     `json:"nodeId"`
	Signal  string     `json:"signal"`
	Data    model.Data `json:"data,omitempty"`
}

// handleNodeEnqueueStatus lets a caller push an arbitrary signal (e.g. a
// status/control signal outside the dedicated run/suspend/resume routes)
// onto a node's FIFO queue and drain it, returning whatever the node
// produced.
func (s *Server) handleNodeEnqueueStatus(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[nodeEnqueueStatusRequest](r)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", core.ErrConfigInvalid, err))
		return
	}
	if req.Signal == "" {
		writeError(w, fmt.Errorf("%w: missing signal", core.ErrConfigInvalid))
		return
	}
	out, err := s.supervisor.HandleRequest(r.Context(), supervisor.Request{
		Signal:  req.Signal,
		ChainID: req.ChainID,
		NodeID:  req.NodeID,
		Data:    req.Data,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
