package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/dennisdiepolder/switchboard/internal/auth"
	"github.com/dennisdiepolder/switchboard/internal/config"
	"github.com/dennisdiepolder/switchboard/internal/metrics"
	"github.com/dennisdiepolder/switchboard/internal/types"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// sendBuffer is how many messages a client may fall behind before the hub
// disconnects it
const sendBuffer = 256

// Subscription selects the messages a client receives. The zero value
// receives everything, which is what dashboards use.
type Subscription struct {
	// CallID restricts the client to the notifications of one call
	CallID string `json:"callId,omitempty"`

	// Tier restricts call notifications to one tier. Messages that carry
	// no tier, such as tier overviews, still get through.
	Tier *types.Tier `json:"tier,omitempty"`
}

// Matches reports whether a message with the given routing fields is for s
func (s Subscription) Matches(env envelope) bool {
	if s.CallID != "" {
		return env.CallID == s.CallID
	}
	if s.Tier != nil && env.Tier != nil {
		return *s.Tier == *env.Tier
	}
	return true
}

// Control actions a client may send
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// controlMessage changes a client's subscription, for example
// {"action":"subscribe","tier":"manager"}
type controlMessage struct {
	Action string `json:"action"`
	Subscription
}

// Client is one websocket connection registered with the hub
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	config *config.Config
	logger zerolog.Logger
	claims *auth.Claims // nil when auth is disabled

	mu  sync.Mutex
	sub Subscription
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, cfg *config.Config, logger zerolog.Logger, claims *auth.Claims, sub Subscription) *Client {
	id := uuid.New().String()
	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		config: cfg,
		logger: logger.With().Str("client_id", id).Logger(),
		claims: claims,
		sub:    sub,
	}
}

// Subscription returns the client's current subscription
func (c *Client) Subscription() Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sub
}

func (c *Client) setSubscription(sub Subscription) {
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
}

// handleControl applies a message received from the client. Unknown
// messages are logged and ignored.
func (c *Client) handleControl(data []byte) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Debug().Err(err).Msg("ignoring unparseable client message")
		return
	}

	switch msg.Action {
	case ActionSubscribe:
		c.setSubscription(msg.Subscription)
		ev := c.logger.Debug().Str("call_id", msg.CallID)
		if msg.Tier != nil {
			ev = ev.Str("tier", msg.Tier.String())
		}
		ev.Msg("subscription changed")
	case ActionUnsubscribe:
		c.setSubscription(Subscription{})
		c.logger.Debug().Msg("subscription cleared")
	default:
		c.logger.Debug().Str("action", msg.Action).Msg("ignoring unknown client action")
	}
}

// readPump handles control messages and pongs. It is the connection's only
// reader and unregisters the client when the connection ends.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
		metrics.Get().RecordWebSocketDisconnect()
	}()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error().Err(err).Msg("websocket read error")
				metrics.Get().RecordWebSocketError()
			}
			return
		}
		c.handleControl(data)
	}
}

// writePump writes queued messages and keepalive pings. It is the
// connection's only writer and hangs up once the hub closes c.send.
func (c *Client) writePump() {
	ping := time.NewTicker(c.config.PingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				metrics.Get().RecordWebSocketError()
				return
			}
			metrics.Get().RecordWebSocketMessage()

		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start runs the client's pumps
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
