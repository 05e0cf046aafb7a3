package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/agenthub/agent"
	"github.com/BaSui01/agenthub/capability"
	"github.com/BaSui01/agenthub/config"
	"github.com/BaSui01/agenthub/internal/metrics"
	"github.com/BaSui01/agenthub/internal/server"
	"github.com/BaSui01/agenthub/internal/telemetry"
	"github.com/BaSui01/agenthub/orchestrator"
	"github.com/BaSui01/agenthub/semstore"
	"github.com/BaSui01/agenthub/types"
)

// Server wires the orchestration runtime behind the HTTP surface.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	otel   *telemetry.Providers

	orc       *orchestrator.Orchestrator
	collector *metrics.Collector

	httpManager    *server.Manager
	metricsManager *server.Manager
}

// NewServer builds the runtime and registers the built-in templates.
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) (*Server, error) {
	collector := metrics.NewCollector("agenthub", logger)

	orc, err := orchestrator.New(cfg, logger, orchestrator.WithCollector(collector))
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		otel:      otelProviders,
		orc:       orc,
		collector: collector,
	}
	if err := s.registerBuiltinTemplates(); err != nil {
		return nil, fmt.Errorf("register builtin templates: %w", err)
	}
	return s, nil
}

// registerBuiltinTemplates installs the echo worker so a bare binary can
// serve workflows out of the box. Real deployments register their own
// templates through the orchestrator API.
func (s *Server) registerBuiltinTemplates() error {
	caps := []capability.Capability{
		capability.MustDeclare(capability.TypeTextGeneration, "1.0.0"),
		capability.MustDeclare(capability.TypeSummarization, "1.0.0"),
		capability.MustDeclare(capability.TypeConversation, "1.0.0"),
	}
	opts := append([]agent.Option{agent.WithLogger(s.logger)}, s.orc.AgentOptions()...)
	return s.orc.RegisterTemplate(agent.Template{
		Name:                "echo",
		DefaultCapabilities: caps,
		Constructor: func(id string, set *capability.Set) (agent.Agent, error) {
			handler := func(ctx context.Context, msg types.Message) (types.Message, error) {
				reply := msg.Reply(types.MessageTypeResponse, msg.Content)
				reply.Payload = map[string]any{"echo": msg.Content}
				return reply, nil
			}
			return agent.NewBaseAgent(id, "echo", set, handler, opts...), nil
		},
	})
}

// Start brings up the API and metrics servers.
func (s *Server) Start() error {
	if err := s.startAPIServer(); err != nil {
		return fmt.Errorf("start API server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}
	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

func (s *Server) startAPIServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleHealth)
	mux.HandleFunc("GET /version", s.handleVersion)

	mux.HandleFunc("POST /api/v1/workflows", s.handleSubmitWorkflow)
	mux.HandleFunc("GET /api/v1/workflows/{id}", s.handleWorkflowStatus)
	mux.HandleFunc("POST /api/v1/workflows/{id}/cancel", s.handleCancelWorkflow)

	mux.HandleFunc("GET /api/v1/agents", s.handleListAgents)
	mux.HandleFunc("POST /api/v1/agents", s.handleCreateAgent)
	mux.HandleFunc("GET /api/v1/templates", s.handleListTemplates)

	mux.HandleFunc("GET /api/v1/facts/export", s.handleExportFacts)
	mux.HandleFunc("GET /api/v1/monitor/stats", s.handleMonitorStats)

	mux.HandleFunc("GET /events", s.handleEvents)

	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		RequestLogger(s.logger),
		OTelTracing(),
	)

	s.httpManager = server.NewManager(handler, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	return s.httpManager.Start()
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager(mux, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	return s.metricsManager.Start()
}

// WaitForShutdown blocks on the API server's signal handling, then tears
// everything down.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown stops the servers and the runtime in dependency order.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	if err := s.orc.Shutdown(ctx); err != nil {
		s.logger.Error("orchestrator shutdown error", zap.Error(err))
	}
	if err := s.otel.Shutdown(ctx); err != nil {
		s.logger.Error("telemetry shutdown error", zap.Error(err))
	}
	s.logger.Info("graceful shutdown completed")
}

// ---- handlers ----

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	})
}

type submitWorkflowRequest struct {
	Name         string              `json:"name"`
	Capabilities []capabilitySpec    `json:"capabilities"`
	Dependencies map[string][]string `json:"dependencies"`
}

type capabilitySpec struct {
	Type    string `json:"type"`
	Version string `json:"version"`
}

func (s *Server) handleSubmitWorkflow(w http.ResponseWriter, r *http.Request) {
	var req submitWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	caps := make([]capability.Capability, 0, len(req.Capabilities))
	for _, c := range req.Capabilities {
		caps = append(caps, capability.Capability{
			Type:    capability.Type(c.Type),
			Version: c.Version,
		})
	}
	id, err := s.orc.SubmitWorkflow(req.Name, caps, req.Dependencies)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"workflow_id": id})
}

func (s *Server) handleWorkflowStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.orc.WorkflowStatus(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCancelWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.orc.CancelWorkflow(r.PathValue("id")); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

type agentView struct {
	ID           string       `json:"id"`
	Type         string       `json:"type"`
	Status       string       `json:"status"`
	Capabilities []string     `json:"capabilities"`
	Health       agent.Health `json:"health"`
}

func (s *Server) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	registry := s.orc.Registry()
	views := make([]agentView, 0, registry.Len())
	for _, id := range registry.List() {
		a, err := registry.Get(id)
		if err != nil {
			continue
		}
		caps := a.Capabilities()
		capStrs := make([]string, 0, len(caps))
		for _, c := range caps {
			capStrs = append(capStrs, c.String())
		}
		views = append(views, agentView{
			ID:           a.ID(),
			Type:         a.Type(),
			Status:       string(a.Status()),
			Capabilities: capStrs,
			Health:       a.Health(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": views})
}

type createAgentRequest struct {
	Template string `json:"template"`
	AgentID  string `json:"agent_id"`
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	a, err := s.orc.CreateAgent(r.Context(), req.Template, req.AgentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"agent_id": a.ID(),
		"status":   string(a.Status()),
	})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"templates": s.orc.Factory().Templates()})
}

func (s *Server) handleExportFacts(w http.ResponseWriter, r *http.Request) {
	format := semstore.FormatJSON
	if f := r.URL.Query().Get("format"); f != "" {
		format = f
	}
	data, err := s.orc.Store().ExportSnapshot(r.Context(), format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if format == semstore.FormatJSON {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleMonitorStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.orc.Monitor().Stats())
}

// ---- helpers ----

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	// Single-line JSON errors keep log scraping simple.
	writeJSON(w, status, map[string]string{"error": strings.TrimSpace(msg)})
}
