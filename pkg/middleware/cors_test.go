package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	handler := CORS([]string{"http://localhost:5173", "http://dashboard.example"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	tests := []struct {
		name          string
		origin        string
		method        string
		requestMethod string // Access-Control-Request-Method of a preflight
		wantOrigin    string
	}{
		{"allowed origin", "http://localhost:5173", http.MethodGet, "", "http://localhost:5173"},
		{"second allowed origin", "http://dashboard.example", http.MethodPost, "", "http://dashboard.example"},
		{"disallowed origin", "http://evil.example", http.MethodGet, "", ""},
		{"preflight for delete", "http://localhost:5173", http.MethodOptions, http.MethodDelete, "http://localhost:5173"},
		{"preflight for put", "http://localhost:5173", http.MethodOptions, http.MethodPut, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/admin/queues", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.requestMethod != "" {
				req.Header.Set("Access-Control-Request-Method", tt.requestMethod)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("expected Access-Control-Allow-Origin %q, got %q", tt.wantOrigin, got)
			}
		})
	}
}

func TestCORSExposesRequestID(t *testing.T) {
	handler := CORS([]string{"http://localhost:5173"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/calls/stats", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Expose-Headers"); got != RequestIDHeader {
		t.Errorf("expected exposed header %s, got %q", RequestIDHeader, got)
	}
}
