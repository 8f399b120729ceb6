package websocket

import (
	"net/http"
	"net/url"

	"github.com/dennisdiepolder/switchboard/internal/auth"
	"github.com/dennisdiepolder/switchboard/internal/config"
	"github.com/dennisdiepolder/switchboard/internal/metrics"
	"github.com/dennisdiepolder/switchboard/internal/types"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Handler handles WebSocket upgrade requests
type Handler struct {
	hub      *Hub
	config   *config.Config
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, cfg *config.Config, logger zerolog.Logger) *Handler {
	h := &Handler{
		hub:    hub,
		config: cfg,
		logger: logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin accepts same-host requests, requests without an Origin header
// and origins listed in ALLOWED_ORIGINS ("*" allows any)
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	h.logger.Warn().Str("origin", origin).Msg("websocket origin rejected")
	return false
}

// ServeHTTP upgrades the connection. ?callId= follows a single call and
// ?tier= limits call notifications to one tier; both can be changed later
// with a subscribe message.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sub, err := parseSubscription(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade connection")
		metrics.Get().RecordWebSocketError()
		return
	}

	claims, _ := auth.GetUserFromContext(r.Context())
	client := NewClient(h.hub, conn, h.config, h.logger, claims, sub)
	if !h.hub.join(client) {
		conn.Close()
		return
	}
	metrics.Get().RecordWebSocketConnect()

	if claims != nil {
		client.logger.Debug().Str("email", claims.Email).Str("role", claims.Role).Msg("websocket client authenticated")
	}
	client.Start()
}

func parseSubscription(q url.Values) (Subscription, error) {
	sub := Subscription{CallID: q.Get("callId")}
	if raw := q.Get("tier"); raw != "" {
		tier, err := types.ParseTier(raw)
		if err != nil {
			return Subscription{}, err
		}
		sub.Tier = &tier
	}
	return sub, nil
}
