package server_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/imtcpd/imtcpd/internal/queue"
	"github.com/imtcpd/imtcpd/internal/ruleset"
	"github.com/imtcpd/imtcpd/internal/server"
)

type fixedSessionCounter int

func (f fixedSessionCounter) ActiveSessionCount() int { return int(f) }

func buildTestRegistry(t *testing.T) *ruleset.Registry {
	t.Helper()

	reg := ruleset.NewRegistry(nil)
	rs := ruleset.NewRuleset("R1")
	if err := reg.ConstructFinalize(rs); err != nil {
		t.Fatal(err)
	}
	reg.AddParser(rs, "rfc5424")
	q := queue.New(queue.Policy{Capacity: 10})
	if err := reg.AttachQueue(rs, q); err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestHandleListRulesets(t *testing.T) {
	t.Parallel()

	reg := buildTestRegistry(t)
	logger := slog.New(slog.DiscardHandler)

	handler := server.New(reg, fixedSessionCounter(0), logger)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/v1/rulesets")
	if err != nil {
		t.Fatalf("GET /v1/rulesets: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body server.RulesetListResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Rulesets) != 1 {
		t.Fatalf("len(Rulesets) = %d, want 1", len(body.Rulesets))
	}
	if body.Rulesets[0].Name != "R1" {
		t.Errorf("Rulesets[0].Name = %q, want %q", body.Rulesets[0].Name, "R1")
	}
	if body.Rulesets[0].UsesDefaultParsers {
		t.Error("UsesDefaultParsers = true, want false after AddParser")
	}
}

func TestHandleSessionSummary(t *testing.T) {
	t.Parallel()

	reg := buildTestRegistry(t)
	logger := slog.New(slog.DiscardHandler)

	handler := server.New(reg, fixedSessionCounter(7), logger)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/v1/sessions")
	if err != nil {
		t.Fatalf("GET /v1/sessions: %v", err)
	}
	defer resp.Body.Close()

	var body server.SessionSummaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.ActiveSessions != 7 {
		t.Errorf("ActiveSessions = %d, want 7", body.ActiveSessions)
	}
}

func TestHandleHealthCheck(t *testing.T) {
	t.Parallel()

	reg := buildTestRegistry(t)
	logger := slog.New(slog.DiscardHandler)

	handler := server.New(reg, fixedSessionCounter(0), logger)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/grpc.health.v1.Health/Check", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Connect-Protocol-Version", "1")

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("POST health check: %v", err)
	}
	defer resp.Body.Close()

	// The health endpoint must be routed, not 404'd by the mux; the
	// grpchealth handler itself validates the request further.
	if resp.StatusCode == http.StatusNotFound {
		t.Fatalf("health check endpoint not mounted, status = %d", resp.StatusCode)
	}
}
