package api

import (
	"net/http"
	"time"

	"github.com/dennisdiepolder/switchboard/internal/storage"
	"github.com/dennisdiepolder/switchboard/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// HistoryHandler provides REST endpoints for persisted call history
type HistoryHandler struct {
	store  storage.Store
	logger zerolog.Logger
}

// NewHistoryHandler creates a new HistoryHandler
func NewHistoryHandler(store storage.Store, logger zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{
		store:  store,
		logger: logger.With().Str("component", "history_handler").Logger(),
	}
}

// Routes registers the history endpoints
func (h *HistoryHandler) Routes(r chi.Router) {
	r.Get("/history/{date}", h.GetCalls)
	r.Get("/stats/daily/{tier}", h.GetDailyStats)
}

// GetCalls returns the finished calls of a day, optionally for one worker
// GET /history/{date}?worker=manager-1
func (h *HistoryHandler) GetCalls(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	var (
		records []types.CallRecord
		err     error
	)
	if worker := r.URL.Query().Get("worker"); worker != "" {
		records, err = h.store.GetWorkerCallsByDate(worker, date)
	} else {
		records, err = h.store.GetCallRecords(date)
	}
	if err != nil {
		h.logger.Error().Err(err).Str("date", date).Msg("failed to get call records")
		http.Error(w, "failed to retrieve calls", http.StatusInternalServerError)
		return
	}

	if records == nil {
		records = []types.CallRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// GetDailyStats returns the saved daily stats of a tier
// GET /stats/daily/{tier}
func (h *HistoryHandler) GetDailyStats(w http.ResponseWriter, r *http.Request) {
	tier, err := types.ParseTier(chi.URLParam(r, "tier"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stats, err := h.store.GetTierDailyStats(tier.String())
	if err != nil {
		h.logger.Error().Err(err).Str("tier", tier.String()).Msg("failed to get tier daily stats")
		http.Error(w, "failed to retrieve stats", http.StatusInternalServerError)
		return
	}

	if stats == nil {
		stats = []types.TierDailyStats{}
	}
	writeJSON(w, http.StatusOK, stats)
}
