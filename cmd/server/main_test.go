package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dennisdiepolder/switchboard/internal/auth"
	"github.com/dennisdiepolder/switchboard/internal/callqueue"
	"github.com/dennisdiepolder/switchboard/internal/config"
	"github.com/dennisdiepolder/switchboard/internal/storage"
	"github.com/dennisdiepolder/switchboard/internal/types"
	"github.com/dennisdiepolder/switchboard/internal/websocket"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const testSecret = "test-secret"

func TestHealthHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	healthHandler(rec, req)

	// Check status code
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	// Check content type
	contentType := rec.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", contentType)
	}

	// Parse response body
	var response map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if response["status"] != "ok" {
		t.Errorf("expected status ok, got %s", response["status"])
	}
	if response["service"] != "switchboard" {
		t.Errorf("expected service switchboard, got %s", response["service"])
	}
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	d, err := callqueue.NewDispatcher([types.NumTiers]int{1, 1, 1}, zerolog.Nop(),
		callqueue.WithDecider(callqueue.AlwaysResolve),
		callqueue.WithWorkSimulator(callqueue.NoDelay),
	)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	authn, err := auth.New(auth.Options{Secret: testSecret}, zerolog.Nop())
	if err != nil {
		t.Fatalf("auth.New: %v", err)
	}

	cfg := &config.Config{AllowedOrigins: []string{"*"}, SimURL: "http://127.0.0.1:1"}
	hub := websocket.NewHub(zerolog.Nop())
	return newRouter(cfg, d, storage.NewNoopStore(), hub, authn, zerolog.Nop())
}

func token(t *testing.T, role string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": role + "@example.com",
		"role":  role,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestRouterAccess(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		role       string
		wantStatus int
	}{
		{"health is public", http.MethodGet, "/health", "", http.StatusOK},
		{"metrics is public", http.MethodGet, "/metrics", "", http.StatusOK},
		{"stats needs a token", http.MethodGet, "/calls/stats", "", http.StatusUnauthorized},
		{"viewer reads stats", http.MethodGet, "/calls/stats", auth.RoleViewer, http.StatusOK},
		{"viewer reads workers", http.MethodGet, "/workers", auth.RoleViewer, http.StatusOK},
		{"viewer reads history", http.MethodGet, "/history/2024-03-01", auth.RoleViewer, http.StatusOK},
		{"bad history date", http.MethodGet, "/history/yesterday", auth.RoleViewer, http.StatusBadRequest},
		{"unknown call", http.MethodGet, "/calls/nope", auth.RoleViewer, http.StatusNotFound},
		{"viewer cannot wipe", http.MethodDelete, "/admin/queues", auth.RoleViewer, http.StatusForbidden},
		{"admin wipes queues", http.MethodDelete, "/admin/queues", auth.RoleAdmin, http.StatusOK},
		{"admin wipes history", http.MethodDelete, "/admin/history", auth.RoleAdmin, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.role != "" {
				req.Header.Set("Authorization", "Bearer "+token(t, tt.role))
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRouterSubmitAndWait(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/calls?wait=true", strings.NewReader(`{"tier":"manager","callId":"c-1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var info types.CallInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.CallID != "c-1" || info.Status != types.CallStatusResolved {
		t.Errorf("unexpected call: %+v", info)
	}
	if info.ResolvedBy == nil || *info.ResolvedBy < types.TierManager {
		t.Errorf("expected a manager or above to resolve, got %v", info.ResolvedBy)
	}
}
