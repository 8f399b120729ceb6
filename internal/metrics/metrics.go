package metrics

import (
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dennisdiepolder/switchboard/internal/types"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	// Routing metrics, indexed by tier
	submitted [types.NumTiers]int64
	queued    [types.NumTiers]int64
	assigned  [types.NumTiers]int64
	escalated [types.NumTiers]int64
	resolved  [types.NumTiers]int64
	failed    [types.NumTiers]int64
	abandoned [types.NumTiers]int64
	rejected  int64

	// Assignments where a higher tier answered a lower tier's call
	assignedAbove int64

	// Handle time of resolved calls, per resolving tier
	handleSeconds [types.NumTiers]float64

	// Snapshot gauges
	queueDepth   [types.NumTiers]int
	busyWorkers  [types.NumTiers]int
	totalWorkers [types.NumTiers]int
	serviceLevel [types.NumTiers]float64

	// WebSocket metrics
	WebSocketConnectionsTotal    int64
	WebSocketDisconnectionsTotal int64
	WebSocketMessagesTotal       int64
	WebSocketErrorsTotal         int64
	activeConnections            int64

	// Snapshot broadcast metrics
	SnapshotCyclesTotal  int64
	lastSnapshotDuration time.Duration

	// HTTP metrics
	httpRequestsTotal    map[string]map[int]int64 // endpoint -> status -> count
	httpRequestDurations map[string][]float64     // endpoint -> durations

	// Timing
	startTime time.Time
}

// Global metrics instance
var instance *Metrics
var once sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = New()
	})
	return instance
}

// New creates an empty, unshared Metrics
func New() *Metrics {
	return &Metrics{
		httpRequestsTotal:    make(map[string]map[int]int64),
		httpRequestDurations: make(map[string][]float64),
		startTime:            time.Now(),
	}
}

// OnSubmit counts a call accepted for routing
func (m *Metrics) OnSubmit(tier types.Tier) {
	m.mu.Lock()
	m.submitted[tier]++
	m.mu.Unlock()
}

// OnReject counts a call refused at submission
func (m *Metrics) OnReject() {
	m.mu.Lock()
	m.rejected++
	m.mu.Unlock()
}

// OnQueue counts a call put on hold and records the new queue depth
func (m *Metrics) OnQueue(tier types.Tier, depth int) {
	m.mu.Lock()
	m.queued[tier]++
	m.queueDepth[tier] = depth
	m.mu.Unlock()
}

// OnAssign counts a call handed to a worker
func (m *Metrics) OnAssign(required, worker types.Tier) {
	m.mu.Lock()
	m.assigned[worker]++
	if worker > required {
		m.assignedAbove++
	}
	m.mu.Unlock()
}

// OnEscalate counts a call passed up from one tier
func (m *Metrics) OnEscalate(from, to types.Tier) {
	m.mu.Lock()
	m.escalated[from]++
	m.mu.Unlock()
}

// OnResolve counts a resolved call and its handle time
func (m *Metrics) OnResolve(tier types.Tier, handleTime time.Duration) {
	m.mu.Lock()
	m.resolved[tier]++
	m.handleSeconds[tier] += handleTime.Seconds()
	m.mu.Unlock()
}

// OnFailure counts a call that failed on a worker
func (m *Metrics) OnFailure(tier types.Tier) {
	m.mu.Lock()
	m.failed[tier]++
	m.mu.Unlock()
}

// OnAbandon counts a call dropped while waiting
func (m *Metrics) OnAbandon(tier types.Tier) {
	m.mu.Lock()
	m.abandoned[tier]++
	m.mu.Unlock()
}

// UpdateTierStats replaces the tier gauges with a fresh snapshot
func (m *Metrics) UpdateTierStats(tiers []types.TierSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range tiers {
		if !s.Tier.Valid() {
			continue
		}
		m.queueDepth[s.Tier] = s.WaitingCount
		m.busyWorkers[s.Tier] = s.BusyWorkers
		m.totalWorkers[s.Tier] = s.Workers
		m.serviceLevel[s.Tier] = s.ServiceLevel.CurrentSL
	}
}

// RecordSnapshotCycle records one tier overview broadcast
func (m *Metrics) RecordSnapshotCycle(duration time.Duration) {
	m.mu.Lock()
	m.SnapshotCyclesTotal++
	m.lastSnapshotDuration = duration
	m.mu.Unlock()
}

// RecordWebSocketConnect increments connection counters
func (m *Metrics) RecordWebSocketConnect() {
	m.mu.Lock()
	m.WebSocketConnectionsTotal++
	m.activeConnections++
	m.mu.Unlock()
}

// RecordWebSocketDisconnect increments disconnection counter
func (m *Metrics) RecordWebSocketDisconnect() {
	m.mu.Lock()
	m.WebSocketDisconnectionsTotal++
	m.activeConnections--
	m.mu.Unlock()
}

// RecordWebSocketMessage increments message counter
func (m *Metrics) RecordWebSocketMessage() {
	m.mu.Lock()
	m.WebSocketMessagesTotal++
	m.mu.Unlock()
}

// RecordWebSocketError increments WebSocket error counter
func (m *Metrics) RecordWebSocketError() {
	m.mu.Lock()
	m.WebSocketErrorsTotal++
	m.mu.Unlock()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint string, statusCode int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.httpRequestsTotal[endpoint] == nil {
		m.httpRequestsTotal[endpoint] = make(map[int]int64)
	}
	m.httpRequestsTotal[endpoint][statusCode]++

	// Keep last 100 durations for percentile calculation
	if len(m.httpRequestDurations[endpoint]) >= 100 {
		m.httpRequestDurations[endpoint] = m.httpRequestDurations[endpoint][1:]
	}
	m.httpRequestDurations[endpoint] = append(m.httpRequestDurations[endpoint], duration.Seconds())
}

// GetActiveConnections returns current WebSocket connections
func (m *Metrics) GetActiveConnections() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeConnections
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		// Helper to write metric
		write := func(name string, value interface{}, labels ...string) {
			labelStr := ""
			if len(labels) > 0 {
				labelStr = "{"
				for i := 0; i < len(labels); i += 2 {
					if i > 0 {
						labelStr += ","
					}
					labelStr += labels[i] + "=\"" + labels[i+1] + "\""
				}
				labelStr += "}"
			}

			switch v := value.(type) {
			case int:
				w.Write([]byte(name + labelStr + " " + strconv.Itoa(v) + "\n"))
			case int64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatInt(v, 10) + "\n"))
			case float64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatFloat(v, 'f', 6, 64) + "\n"))
			}
		}

		write("switchboard_uptime_seconds", time.Since(m.startTime).Seconds())
		write("switchboard_calls_rejected_total", m.rejected)
		write("switchboard_calls_assigned_above_tier_total", m.assignedAbove)

		for _, tier := range types.AllTiers {
			label := tier.String()
			write("switchboard_calls_submitted_total", m.submitted[tier], "tier", label)
			write("switchboard_calls_queued_total", m.queued[tier], "tier", label)
			write("switchboard_calls_assigned_total", m.assigned[tier], "tier", label)
			write("switchboard_calls_escalated_total", m.escalated[tier], "tier", label)
			write("switchboard_calls_resolved_total", m.resolved[tier], "tier", label)
			write("switchboard_calls_failed_total", m.failed[tier], "tier", label)
			write("switchboard_calls_abandoned_total", m.abandoned[tier], "tier", label)
			write("switchboard_handle_seconds_total", m.handleSeconds[tier], "tier", label)
			write("switchboard_queue_depth", m.queueDepth[tier], "tier", label)
			write("switchboard_workers", m.totalWorkers[tier], "tier", label)
			write("switchboard_workers_busy", m.busyWorkers[tier], "tier", label)
			write("switchboard_service_level_percent", m.serviceLevel[tier], "tier", label)
		}

		// WebSocket metrics
		write("switchboard_websocket_connections_total", m.WebSocketConnectionsTotal)
		write("switchboard_websocket_disconnections_total", m.WebSocketDisconnectionsTotal)
		write("switchboard_websocket_active_connections", m.activeConnections)
		write("switchboard_websocket_messages_total", m.WebSocketMessagesTotal)
		write("switchboard_websocket_errors_total", m.WebSocketErrorsTotal)

		write("switchboard_snapshot_cycles_total", m.SnapshotCyclesTotal)
		write("switchboard_snapshot_duration_seconds", m.lastSnapshotDuration.Seconds())

		// HTTP metrics, sorted so scrapes are stable
		endpoints := make([]string, 0, len(m.httpRequestsTotal))
		for endpoint := range m.httpRequestsTotal {
			endpoints = append(endpoints, endpoint)
		}
		sort.Strings(endpoints)
		for _, endpoint := range endpoints {
			for status, count := range m.httpRequestsTotal[endpoint] {
				write("switchboard_http_requests_total", count, "endpoint", endpoint, "status", strconv.Itoa(status))
			}
		}
	}
}

// Middleware records the status and duration of every request, keyed by
// the matched chi route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RecordHTTPRequest(endpoint, status, time.Since(start))
	})
}
