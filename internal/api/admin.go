package api

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/dennisdiepolder/switchboard/internal/callqueue"
	"github.com/dennisdiepolder/switchboard/internal/storage"
	"github.com/dennisdiepolder/switchboard/internal/types"
	"github.com/rs/zerolog"
)

const maxInjectedCalls = 1000

// AdminHandler serves operator actions on the dispatcher, the store and the
// call generator
type AdminHandler struct {
	simURL     string
	dispatcher *callqueue.Dispatcher
	store      storage.Store
	logger     zerolog.Logger
	client     *http.Client
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(simURL string, dispatcher *callqueue.Dispatcher, store storage.Store, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		simURL:     simURL,
		dispatcher: dispatcher,
		store:      store,
		logger:     logger.With().Str("component", "admin_handler").Logger(),
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// proxyToSim forwards a request to the call generator and copies the response back
func (h *AdminHandler) proxyToSim(w http.ResponseWriter, r *http.Request, method, path string) {
	url := h.simURL + path

	var body io.Reader
	if r.Body != nil && (method == http.MethodPost || method == http.MethodPut) {
		body = r.Body
	}

	req, err := http.NewRequestWithContext(r.Context(), method, url, body)
	if err != nil {
		h.logger.Error().Err(err).Str("path", path).Msg("failed to create proxy request")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Error().Err(err).Str("url", url).Msg("failed to reach call generator")
		http.Error(w, `{"error":"call generator unavailable"}`, http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

// GetSimStatus proxies GET /status to the call generator
func (h *AdminHandler) GetSimStatus(w http.ResponseWriter, r *http.Request) {
	h.proxyToSim(w, r, http.MethodGet, "/status")
}

// SetSimRate proxies POST /rate to the call generator
func (h *AdminHandler) SetSimRate(w http.ResponseWriter, r *http.Request) {
	h.proxyToSim(w, r, http.MethodPost, "/rate")
}

// InjectCalls submits calls straight to the dispatcher. Without a tier each
// call gets a random one.
func (h *AdminHandler) InjectCalls(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count int         `json:"count"`
		Tier  *types.Tier `json:"tier,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Count <= 0 {
		req.Count = 1
	}
	if req.Count > maxInjectedCalls {
		req.Count = maxInjectedCalls
	}

	injected := 0
	for i := 0; i < req.Count; i++ {
		tier := types.Tier(rand.Intn(types.NumTiers))
		if req.Tier != nil {
			tier = *req.Tier
		}
		if err := h.dispatcher.Submit(types.NewCall(tier)); err == nil {
			injected++
		}
	}

	h.logger.Info().Int("injected", injected).Int("requested", req.Count).Msg("calls injected via admin")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  fmt.Sprintf("injected %d calls", injected),
		"injected": injected,
		"errors":   req.Count - injected,
	})
}

// WipeQueues abandons every waiting call
func (h *AdminHandler) WipeQueues(w http.ResponseWriter, r *http.Request) {
	cleared := h.dispatcher.WipeQueues()

	h.logger.Info().Int("cleared", cleared).Msg("all queues wiped via admin")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "all queues wiped",
		"cleared": cleared,
	})
}

// WipeHistory truncates the call history and daily stats
func (h *AdminHandler) WipeHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.store.TruncateAll(); err != nil {
		h.logger.Error().Err(err).Msg("failed to truncate history")
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": fmt.Sprintf("failed to truncate: %v", err),
		})
		return
	}

	h.logger.Info().Msg("history truncated")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "history truncated",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
