package callqueue

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dennisdiepolder/switchboard/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// CallHandler handles HTTP requests for call operations
type CallHandler struct {
	d      *Dispatcher
	logger zerolog.Logger
}

// NewCallHandler creates a new CallHandler
func NewCallHandler(d *Dispatcher, logger zerolog.Logger) *CallHandler {
	return &CallHandler{
		d:      d,
		logger: logger,
	}
}

// Routes mounts the call endpoints on r
func (h *CallHandler) Routes(r chi.Router) {
	r.Post("/calls", h.HandleSubmit)
	r.Get("/calls/stats", h.HandleStats)
	r.Get("/calls/{callID}", h.HandleGet)
	r.Delete("/calls/{callID}", h.HandleAbandon)
	r.Get("/workers", h.HandleWorkers)
}

// submitRequest is the JSON body for POST /calls
type submitRequest struct {
	Tier   *types.Tier `json:"tier"`
	CallID string      `json:"callId,omitempty"`
}

// submitResponse is the JSON response for an accepted call
type submitResponse struct {
	CallID string           `json:"callId"`
	Tier   types.Tier       `json:"tier"`
	Status types.CallStatus `json:"status"`
}

// HandleSubmit handles POST /calls. With ?wait=true the response is held
// until the call is finished and carries the final call state.
func (h *CallHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	if req.Tier == nil {
		http.Error(w, "missing tier field", http.StatusBadRequest)
		return
	}

	call := types.NewCallWithID(req.CallID, *req.Tier)
	if err := h.d.Submit(call); err != nil {
		switch {
		case errors.Is(err, ErrInvalidCall):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, ErrClosed):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			http.Error(w, "failed to submit call", http.StatusInternalServerError)
		}
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		if err := call.Wait(r.Context()); err != nil && call.Status() != types.CallStatusFailed {
			h.logger.Debug().Err(err).Str("call_id", call.ID()).Msg("client stopped waiting for call")
			return
		}
		writeJSON(w, http.StatusOK, call.Info())
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{
		CallID: call.ID(),
		Tier:   call.RequiredTier(),
		Status: call.Status(),
	})
}

// HandleGet handles GET /calls/{callID} for calls still in flight
func (h *CallHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	info, ok := h.d.Lookup(chi.URLParam(r, "callID"))
	if !ok {
		http.Error(w, "call not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// HandleAbandon handles DELETE /calls/{callID}; only waiting calls qualify
func (h *CallHandler) HandleAbandon(w http.ResponseWriter, r *http.Request) {
	info, err := h.d.AbandonCall(chi.URLParam(r, "callID"))
	if err != nil {
		http.Error(w, "call not waiting", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// HandleStats returns per-tier statistics
// GET /calls/stats
func (h *CallHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"queueDepths": h.d.QueueDepths(),
		"inFlight":    h.d.InFlight(),
		"tiers":       h.d.Snapshot(),
	})
}

// HandleWorkers returns the state of every worker
// GET /workers
func (h *CallHandler) HandleWorkers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"workers": h.d.Workers(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
