package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"solana-trading-engine/internal/auth"
	"solana-trading-engine/internal/events"
	"solana-trading-engine/internal/pipeline"
	"solana-trading-engine/internal/pool"
	"solana-trading-engine/internal/risk"
	"solana-trading-engine/internal/signal"
)

type stubStats struct{}

func (stubStats) Snapshot() pipeline.Stats {
	return pipeline.Stats{Received: 3, Confirmed: 1}
}

func testServer(t *testing.T) (*Server, *risk.EmergencyStop, *auth.JWTManager) {
	t.Helper()
	reg, err := pool.NewRegistry([]pool.Spec{{
		ID: "primary", Kind: pool.KindPrimary,
		Balance: 20000, MaxPositionSize: 10000, MaxDailyLoss: 1000,
		MaxExposurePct: 80, MaxConcurrentPositions: 10,
		SupportedStrategies: []signal.StrategyTag{signal.StrategyArbitrage},
	}}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	stop := risk.NewEmergencyStop()
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	s := NewServer(Config{Host: "127.0.0.1", Port: 0, ProductionMode: true},
		reg, stubStats{}, stop, events.NewBus(), jwtManager, nil, nil, zerolog.Nop())
	return s, stop, jwtManager
}

func doRequest(s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthReportsOK(t *testing.T) {
	s, _, _ := testServer(t)
	w := doRequest(s, http.MethodGet, "/health", "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected ok status, got %v", body["status"])
	}
}

func TestHealthReportsHaltedUnderEmergencyStop(t *testing.T) {
	s, stop, _ := testServer(t)
	stop.Engage("drawdown breach")

	w := doRequest(s, http.MethodGet, "/health", "", "")
	var body map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["status"] != "halted" {
		t.Errorf("expected halted status, got %v", body["status"])
	}
	if body["stop_reason"] != "drawdown breach" {
		t.Errorf("expected stop reason, got %v", body["stop_reason"])
	}
}

func TestPoolsEndpointListsRegistry(t *testing.T) {
	s, _, _ := testServer(t)
	w := doRequest(s, http.MethodGet, "/pools", "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body pool.PortfolioSummary
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.TotalPools != 1 || len(body.Pools) != 1 || body.Pools[0].ID != "primary" {
		t.Errorf("unexpected portfolio: %+v", body)
	}
}

func TestStatsEndpoint(t *testing.T) {
	s, _, _ := testServer(t)
	w := doRequest(s, http.MethodGet, "/stats", "", "")

	var stats pipeline.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if stats.Received != 3 || stats.Confirmed != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestEmergencyStopRequiresToken(t *testing.T) {
	s, stop, _ := testServer(t)

	w := doRequest(s, http.MethodPost, "/emergency-stop", "", `{"reason":"halt"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if stop.Engaged() {
		t.Error("stop must not engage without authorization")
	}

	w = doRequest(s, http.MethodPost, "/emergency-stop", "garbage-token", `{"reason":"halt"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", w.Code)
	}
}

func TestEmergencyStopEngageAndClear(t *testing.T) {
	s, stop, jwtManager := testServer(t)
	token, err := jwtManager.GenerateOperatorToken("op-1")
	if err != nil {
		t.Fatalf("token generation failed: %v", err)
	}

	w := doRequest(s, http.MethodPost, "/emergency-stop", token, `{"reason":"operator halt"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !stop.Engaged() || stop.Reason() != "operator halt" {
		t.Errorf("stop not engaged correctly: engaged=%v reason=%q", stop.Engaged(), stop.Reason())
	}

	w = doRequest(s, http.MethodDelete, "/emergency-stop", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if stop.Engaged() {
		t.Error("stop should be cleared")
	}
}

func TestEngageStopRequiresReason(t *testing.T) {
	s, stop, jwtManager := testServer(t)
	token, _ := jwtManager.GenerateOperatorToken("op-1")

	w := doRequest(s, http.MethodPost, "/emergency-stop", token, `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without reason, got %d", w.Code)
	}
	if stop.Engaged() {
		t.Error("stop must not engage without a reason")
	}
}

func TestResultsUnavailableWithoutPersistence(t *testing.T) {
	s, _, _ := testServer(t)
	w := doRequest(s, http.MethodGet, "/results", "", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with persistence disabled, got %d", w.Code)
	}
}
