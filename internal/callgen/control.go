package callgen

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dennisdiepolder/switchboard/internal/types"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const maxInject = 1000

// ControlAPI exposes a running Generator over HTTP
type ControlAPI struct {
	gen    *Generator
	logger zerolog.Logger
}

// NewControlAPI creates a control API for gen
func NewControlAPI(gen *Generator, logger zerolog.Logger) *ControlAPI {
	return &ControlAPI{
		gen:    gen,
		logger: logger.With().Str("component", "control_api").Logger(),
	}
}

// SetupRoutes configures HTTP routes
func (api *ControlAPI) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/health", api.healthHandler).Methods("GET")
	router.HandleFunc("/status", api.statusHandler).Methods("GET")
	router.HandleFunc("/rate", api.rateHandler).Methods("POST")
	router.HandleFunc("/inject", api.injectHandler).Methods("POST")
}

// healthHandler returns service health
func (api *ControlAPI) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// statusHandler returns the generator's settings and counters
func (api *ControlAPI) statusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(api.gen.Status())
}

// rateHandler changes the call rate and optionally the tier mix
func (api *ControlAPI) rateHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rate    *float64 `json:"rate"`
		Weights *Weights `json:"weights,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Rate == nil && req.Weights == nil {
		http.Error(w, "rate or weights required", http.StatusBadRequest)
		return
	}

	if req.Weights != nil {
		if err := api.gen.SetWeights(*req.Weights); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if req.Rate != nil {
		if err := api.gen.SetRate(*req.Rate); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(api.gen.Status())
}

// injectHandler submits a burst of calls
func (api *ControlAPI) injectHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count int         `json:"count"`
		Tier  *types.Tier `json:"tier,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Count <= 0 {
		req.Count = 1
	}
	if req.Count > maxInject {
		req.Count = maxInject
	}

	injected := api.gen.Inject(r.Context(), req.Count, req.Tier)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":  fmt.Sprintf("injected %d calls", injected),
		"injected": injected,
		"errors":   req.Count - injected,
	})
}

// Start serves the control API until ctx is done
func (api *ControlAPI) Start(ctx context.Context, addr string) error {
	router := mux.NewRouter()
	api.SetupRoutes(router)

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		api.logger.Info().Msg("shutting down control API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	api.logger.Info().Str("addr", addr).Msg("control API started")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
