package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dennisdiepolder/switchboard/internal/callqueue"
	"github.com/dennisdiepolder/switchboard/internal/storage"
	"github.com/dennisdiepolder/switchboard/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// An unstaffed dispatcher keeps every submitted call waiting
func newIdleDispatcher(t *testing.T) *callqueue.Dispatcher {
	t.Helper()
	d, err := callqueue.NewDispatcher([types.NumTiers]int{0, 0, 0}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

type failingStore struct {
	*storage.NoopStore
}

func (failingStore) TruncateAll() error { return errors.New("table locked") }

func TestInjectCalls(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantStatus   int
		wantInjected float64
		wantDepths   []int
	}{
		{"one manager call", `{"count":1,"tier":"manager"}`, http.StatusOK, 1, []int{0, 1, 0}},
		{"default count", `{"tier":2}`, http.StatusOK, 1, []int{0, 0, 1}},
		{"capped", `{"count":5000,"tier":"respondent"}`, http.StatusOK, maxInjectedCalls, []int{maxInjectedCalls, 0, 0}},
		{"bad tier", `{"count":1,"tier":"intern"}`, http.StatusBadRequest, 0, nil},
		{"bad json", `{`, http.StatusBadRequest, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newIdleDispatcher(t)
			h := NewAdminHandler("", d, storage.NewNoopStore(), zerolog.Nop())

			rec := httptest.NewRecorder()
			h.InjectCalls(rec, httptest.NewRequest(http.MethodPost, "/admin/calls", strings.NewReader(tt.body)))

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp map[string]interface{}
			json.NewDecoder(rec.Body).Decode(&resp)
			if resp["injected"] != tt.wantInjected {
				t.Errorf("expected %v injected, got %v", tt.wantInjected, resp["injected"])
			}
			depths := d.QueueDepths()
			for i := range tt.wantDepths {
				if depths[i] != tt.wantDepths[i] {
					t.Errorf("expected depths %v, got %v", tt.wantDepths, depths)
					break
				}
			}
		})
	}
}

func TestInjectRandomTiers(t *testing.T) {
	d := newIdleDispatcher(t)
	h := NewAdminHandler("", d, storage.NewNoopStore(), zerolog.Nop())

	rec := httptest.NewRecorder()
	h.InjectCalls(rec, httptest.NewRequest(http.MethodPost, "/admin/calls", strings.NewReader(`{"count":30}`)))

	total := 0
	for _, n := range d.QueueDepths() {
		total += n
	}
	if total != 30 {
		t.Errorf("expected 30 waiting calls, got %d", total)
	}
}

func TestWipeQueues(t *testing.T) {
	d := newIdleDispatcher(t)
	h := NewAdminHandler("", d, storage.NewNoopStore(), zerolog.Nop())

	for _, tier := range types.AllTiers {
		d.Submit(types.NewCall(tier))
	}

	rec := httptest.NewRecorder()
	h.WipeQueues(rec, httptest.NewRequest(http.MethodDelete, "/admin/queues", nil))

	var resp map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["cleared"] != float64(3) {
		t.Errorf("expected 3 cleared, got %v", resp["cleared"])
	}
	if d.InFlight() != 0 {
		t.Errorf("expected no calls in flight, got %d", d.InFlight())
	}
}

func TestWipeHistory(t *testing.T) {
	store := newTestStore(t)
	store.SaveCallRecord(types.CallRecord{DateKey: "2026-03-01", CallID: "a", Status: "resolved"})

	h := NewAdminHandler("", newIdleDispatcher(t), store, zerolog.Nop())
	rec := httptest.NewRecorder()
	h.WipeHistory(rec, httptest.NewRequest(http.MethodDelete, "/admin/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	records, _ := store.GetCallRecords("2026-03-01")
	if len(records) != 0 {
		t.Errorf("expected history wiped, got %d records", len(records))
	}

	h = NewAdminHandler("", newIdleDispatcher(t), failingStore{storage.NewNoopStore()}, zerolog.Nop())
	rec = httptest.NewRecorder()
	h.WipeHistory(rec, httptest.NewRequest(http.MethodDelete, "/admin/history", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestSimProxy(t *testing.T) {
	var gotMethod, gotPath, gotBody string
	sim := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"rate":5}`))
	}))
	defer sim.Close()

	h := NewAdminHandler(sim.URL, newIdleDispatcher(t), storage.NewNoopStore(), zerolog.Nop())

	rec := httptest.NewRecorder()
	h.SetSimRate(rec, httptest.NewRequest(http.MethodPost, "/admin/sim/rate", strings.NewReader(`{"rate":5}`)))
	if rec.Code != http.StatusAccepted || rec.Body.String() != `{"rate":5}` {
		t.Errorf("unexpected proxied response %d %s", rec.Code, rec.Body.String())
	}
	if gotMethod != http.MethodPost || gotPath != "/rate" || gotBody != `{"rate":5}` {
		t.Errorf("unexpected upstream request %s %s %s", gotMethod, gotPath, gotBody)
	}

	rec = httptest.NewRecorder()
	h.GetSimStatus(rec, httptest.NewRequest(http.MethodGet, "/admin/sim/status", nil))
	if gotMethod != http.MethodGet || gotPath != "/status" {
		t.Errorf("unexpected upstream request %s %s", gotMethod, gotPath)
	}
}

func TestSimProxyUnavailable(t *testing.T) {
	sim := httptest.NewServer(http.NotFoundHandler())
	url := sim.URL
	sim.Close()

	h := NewAdminHandler(url, newIdleDispatcher(t), storage.NewNoopStore(), zerolog.Nop())
	rec := httptest.NewRecorder()
	h.GetSimStatus(rec, httptest.NewRequest(http.MethodGet, "/admin/sim/status", nil))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
}

func newHistoryRouter(store storage.Store) http.Handler {
	r := chi.NewRouter()
	NewHistoryHandler(store, zerolog.Nop()).Routes(r)
	return r
}

func TestHistoryGetCalls(t *testing.T) {
	store := newTestStore(t)
	for _, rec := range []types.CallRecord{
		{DateKey: "2026-03-01", CallID: "a", Status: "resolved", WorkerID: "respondent-1", ResolvedBy: "respondent"},
		{DateKey: "2026-03-01", CallID: "b", Status: "resolved", WorkerID: "manager-1", ResolvedBy: "manager"},
		{DateKey: "2026-03-02", CallID: "c", Status: "resolved", WorkerID: "manager-1", ResolvedBy: "manager"},
	} {
		if err := store.SaveCallRecord(rec); err != nil {
			t.Fatalf("SaveCallRecord: %v", err)
		}
	}
	router := newHistoryRouter(store)

	tests := []struct {
		name       string
		url        string
		wantStatus int
		wantIDs    []string
	}{
		{"whole day", "/history/2026-03-01", http.StatusOK, []string{"a", "b"}},
		{"one worker", "/history/2026-03-01?worker=manager-1", http.StatusOK, []string{"b"}},
		{"empty day", "/history/2026-01-01", http.StatusOK, []string{}},
		{"bad date", "/history/yesterday", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var records []types.CallRecord
			if err := json.NewDecoder(rec.Body).Decode(&records); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if records == nil {
				t.Fatal("expected a JSON array, got null")
			}
			if len(records) != len(tt.wantIDs) {
				t.Fatalf("expected %v, got %+v", tt.wantIDs, records)
			}
			got := make(map[string]bool)
			for _, r := range records {
				got[r.CallID] = true
			}
			for _, id := range tt.wantIDs {
				if !got[id] {
					t.Errorf("missing call %s", id)
				}
			}
		})
	}
}

func TestHistoryGetDailyStats(t *testing.T) {
	store := newTestStore(t)
	store.AddTierDailyStats(types.TierDailyStats{Tier: "manager", Date: "2026-03-01", Resolved: 4, ServiceLevel: 90})
	store.AddTierDailyStats(types.TierDailyStats{Tier: "respondent", Date: "2026-03-01", Resolved: 9})
	router := newHistoryRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats/daily/manager", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stats []types.TierDailyStats
	json.NewDecoder(rec.Body).Decode(&stats)
	if len(stats) != 1 || stats[0].Resolved != 4 || stats[0].ServiceLevel != 90 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats/daily/1", nil))
	json.NewDecoder(rec.Body).Decode(&stats)
	if rec.Code != http.StatusOK || len(stats) != 1 || stats[0].Tier != "manager" {
		t.Errorf("expected rank lookup to match manager, got %d %+v", rec.Code, stats)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats/daily/intern", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
