// Package server implements the imtcpd admin HTTP API: JSON
// introspection endpoints for rulesets and active sessions, plus a
// mounted grpc-health-v1 service for orchestrator liveness checks.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"connectrpc.com/grpchealth"

	"github.com/imtcpd/imtcpd/internal/ruleset"
)

// SessionCounter reports how many TCP sessions are currently open. A
// *tcpsrv.Server satisfies this directly.
type SessionCounter interface {
	ActiveSessionCount() int
}

// AdminServer serves read-only introspection over the ruleset registry
// and the running TCP server, plus a gRPC health endpoint.
type AdminServer struct {
	registry *ruleset.Registry
	sessions SessionCounter
	logger   *slog.Logger
}

// New builds the admin HTTP handler. registry and sessions must not be
// nil; logger may be nil, in which case slog.Default() is used.
func New(registry *ruleset.Registry, sessions SessionCounter, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &AdminServer{
		registry: registry,
		sessions: sessions,
		logger:   logger.With(slog.String("component", "admin")),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/rulesets", s.handleListRulesets)
	mux.HandleFunc("GET /v1/sessions", s.handleSessionSummary)

	checker := grpchealth.NewStaticChecker(grpchealth.HealthV1ServiceName, "imtcpd.admin.v1")
	mux.Handle(grpchealth.NewHandler(checker))

	return RecoveryMiddleware(s.logger)(LoggingMiddleware(s.logger)(mux))
}

// -------------------------------------------------------------------------
// JSON payloads
// -------------------------------------------------------------------------

// RulesetView is the JSON representation of one registered ruleset.
type RulesetView struct {
	Name               string   `json:"name"`
	RuleCount          int      `json:"rule_count"`
	Parsers            []string `json:"parsers"`
	UsesDefaultParsers bool     `json:"uses_default_parsers"`
	QueueDepth         int      `json:"queue_depth,omitempty"`
	QueueDroppedOnShut uint64   `json:"queue_dropped_on_shutdown,omitempty"`
}

// RulesetListResponse is the body of GET /v1/rulesets.
type RulesetListResponse struct {
	Rulesets []RulesetView `json:"rulesets"`
}

// SessionSummaryResponse is the body of GET /v1/sessions.
type SessionSummaryResponse struct {
	ActiveSessions int `json:"active_sessions"`
}

// -------------------------------------------------------------------------
// Handlers
// -------------------------------------------------------------------------

func (s *AdminServer) handleListRulesets(w http.ResponseWriter, r *http.Request) {
	rulesets := s.registry.Rulesets()
	views := make([]RulesetView, 0, len(rulesets))
	for _, rs := range rulesets {
		view := RulesetView{
			Name:               rs.Name(),
			RuleCount:          len(rs.Rules()),
			Parsers:            rs.Parsers(),
			UsesDefaultParsers: rs.UsesDefaultParsers(),
		}
		if q := rs.Queue(); q != nil {
			view.QueueDepth = q.Len()
			view.QueueDroppedOnShut = q.DroppedOnShutdown()
		}
		views = append(views, view)
	}

	writeJSON(w, r, s.logger, RulesetListResponse{Rulesets: views})
}

func (s *AdminServer) handleSessionSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, s.logger, SessionSummaryResponse{ActiveSessions: s.sessions.ActiveSessionCount()})
}

func writeJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.ErrorContext(r.Context(), "encode admin response", slog.String("error", err.Error()))
	}
}
