package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dennisdiepolder/switchboard/internal/types"
	"github.com/rs/zerolog"
)

// queueSize bounds the messages waiting for the hub loop
const queueSize = 256

// envelope holds the routing fields shared by every outbound message
type envelope struct {
	Type   string      `json:"type"`
	CallID string      `json:"callId"`
	Tier   *types.Tier `json:"tier"`
}

// Hub fans serialized messages out to the connected clients whose
// subscription matches
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	queue  chan []byte
	joins  chan *Client
	leaves chan *Client
	done   chan struct{} // closed when Run returns

	logger zerolog.Logger
}

// NewHub creates a new Hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		queue:   make(chan []byte, queueSize),
		joins:   make(chan *Client),
		leaves:  make(chan *Client),
		done:    make(chan struct{}),
		logger:  logger.With().Str("component", "ws_hub").Logger(),
	}
}

// Run serves joins, leaves and queued messages until ctx is done, then
// disconnects every client
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.disconnectAll()
			close(h.done)
			return

		case c := <-h.joins:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()

			sub := c.Subscription()
			h.logger.Info().
				Str("client_id", c.id).
				Str("call_id", sub.CallID).
				Int("total_clients", total).
				Msg("client connected")

		case c := <-h.leaves:
			h.mu.Lock()
			if h.dropLocked(c) {
				h.logger.Info().
					Str("client_id", c.id).
					Int("total_clients", len(h.clients)).
					Msg("client disconnected")
			}
			h.mu.Unlock()

		case message := <-h.queue:
			var env envelope
			if err := json.Unmarshal(message, &env); err != nil {
				// Unparseable payloads only reach unfiltered clients
				env = envelope{}
			}
			h.deliver(message, env)
		}
	}
}

// Broadcast queues a message, waiting for room in the queue. Messages sent
// after the hub stopped are discarded.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.queue <- message:
	case <-h.done:
	}
}

// TryBroadcast queues a message without blocking. It reports false when the
// queue is full and the message was dropped.
func (h *Hub) TryBroadcast(message []byte) bool {
	select {
	case h.queue <- message:
		return true
	default:
		return false
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// join hands c to the hub loop. It reports false once the hub stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.joins <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.leaves <- c:
	case <-h.done:
	}
}

func (h *Hub) deliver(message []byte, env envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		if !c.Subscription().Matches(env) {
			continue
		}
		select {
		case c.send <- message:
		default:
			h.dropLocked(c)
			h.logger.Warn().Str("client_id", c.id).Msg("client too slow, disconnecting")
		}
	}
}

// dropLocked forgets c and closes its send channel, which makes its write
// pump hang up. Caller holds h.mu.
func (h *Hub) dropLocked(c *Client) bool {
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	close(c.send)
	return true
}

func (h *Hub) disconnectAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.clients)
	for c := range h.clients {
		h.dropLocked(c)
	}
	h.logger.Info().Int("clients", n).Msg("hub stopped")
}
