package room

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"quiz-session-service/internal/metrics"
)

// Message is the envelope every outbound frame uses.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Presence mirrors room membership somewhere other instances can see it.
type Presence interface {
	Join(ctx context.Context, sessionID string) error
	Leave(ctx context.Context, sessionID string) error
}

// Client is one connection's outbound queue. The transport drains Send; the
// coordinator never blocks on it.
type Client struct {
	UserID string

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func NewClient(userID string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 16
	}
	return &Client{UserID: userID, send: make(chan []byte, buffer)}
}

// Send is closed once the client is closed.
func (c *Client) Send() <-chan []byte {
	return c.send
}

// Deliver queues data without blocking. When the buffer is full the oldest
// queued frame is dropped to make room; it reports false if anything was lost.
func (c *Client) Deliver(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
	}
	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- data:
	default:
	}
	return false
}

// DeliverMessage encodes and queues one envelope for this client only.
func (c *Client) DeliverMessage(msgType string, payload any) bool {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		return false
	}
	return c.Deliver(data)
}

// Close stops delivery and closes Send. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Coordinator keeps, per session, the set of connected clients and fans out
// room broadcasts to them.
type Coordinator struct {
	presence Presence
	log      *zap.Logger

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

func NewCoordinator(presence Presence, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		presence: presence,
		log:      log,
		rooms:    make(map[string]map[*Client]struct{}),
	}
}

// Register adds client to the session's room. Registering twice is a no-op.
func (c *Coordinator) Register(sessionID string, client *Client) {
	c.mu.Lock()
	members, ok := c.rooms[sessionID]
	if !ok {
		members = make(map[*Client]struct{})
		c.rooms[sessionID] = members
	}
	_, already := members[client]
	members[client] = struct{}{}
	c.mu.Unlock()

	if !already {
		c.touchPresence(sessionID, true)
	}
}

// Unregister removes client from the room and drops the room when it empties.
func (c *Coordinator) Unregister(sessionID string, client *Client) {
	c.mu.Lock()
	members, ok := c.rooms[sessionID]
	if !ok {
		c.mu.Unlock()
		return
	}
	_, present := members[client]
	delete(members, client)
	if len(members) == 0 {
		delete(c.rooms, sessionID)
	}
	c.mu.Unlock()

	if present {
		c.touchPresence(sessionID, false)
	}
}

// Broadcast encodes the envelope once and delivers it to every member of the
// room. Slow members lose their oldest queued frame instead of stalling the
// others.
func (c *Coordinator) Broadcast(sessionID, msgType string, payload any) {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		c.log.Error("encode broadcast", zap.String("session", sessionID), zap.String("type", msgType), zap.Error(err))
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for client := range c.rooms[sessionID] {
		if !client.Deliver(data) {
			metrics.BroadcastDropsTotal.Inc()
		}
	}
}

// Members returns the number of clients in a session's room.
func (c *Coordinator) Members(sessionID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rooms[sessionID])
}

func (c *Coordinator) touchPresence(sessionID string, joined bool) {
	if c.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var err error
	if joined {
		err = c.presence.Join(ctx, sessionID)
	} else {
		err = c.presence.Leave(ctx, sessionID)
	}
	if err != nil {
		c.log.Warn("room presence update failed", zap.String("session", sessionID), zap.Bool("joined", joined), zap.Error(err))
	}
}
