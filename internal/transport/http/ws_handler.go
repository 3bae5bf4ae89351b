package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/metrics"
	"quiz-session-service/internal/room"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// WSOptions bounds how fast one connection may send events.
type WSOptions struct {
	MessagesPerSecond float64
	Burst             int
}

type WSHandler struct {
	service  *app.QuizService
	rooms    *room.Coordinator
	log      *zap.Logger
	opts     WSOptions
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, rooms *room.Coordinator, log *zap.Logger, opts WSOptions) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MessagesPerSecond <= 0 {
		opts.MessagesPerSecond = 10
	}
	if opts.Burst <= 0 {
		opts.Burst = 20
	}
	return &WSHandler{
		service: service,
		rooms:   rooms,
		log:     log,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

type submitAnswerPayload struct {
	SessionID   string `json:"sessionId"`
	UserID      string `json:"userId"`
	QuestionID  string `json:"questionId"`
	AnswerValue string `json:"answerValue"`
}

type errorPayload struct {
	Reason string `json:"reason"`
}

// connection is the per-socket state owned by the read loop.
type connection struct {
	client    *room.Client
	sessionID string
	limiter   *rate.Limiter
}

// ServeWS upgrades the request and serves join/submitAnswer events until the
// peer goes away. A dropped connection only leaves its room; progress is
// persisted and a later join resumes it.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	metrics.ConnectedClients.Inc()
	defer metrics.ConnectedClients.Dec()

	conn := &connection{
		client:  room.NewClient("", sendBuffer),
		limiter: rate.NewLimiter(rate.Limit(h.opts.MessagesPerSecond), h.opts.Burst),
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(ws, conn.client)
	}()

	h.readPump(r, ws, conn)

	if conn.sessionID != "" {
		h.rooms.Unregister(conn.sessionID, conn.client)
	}
	conn.client.Close()
	<-writerDone
	_ = ws.Close()
}

func (h *WSHandler) readPump(r *http.Request, ws *websocket.Conn, conn *connection) {
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var inbound inboundMessage
		if err := ws.ReadJSON(&inbound); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("ws read ended", zap.Error(err))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))

		if !conn.limiter.Allow() {
			conn.client.DeliverMessage(app.EventError, errorPayload{Reason: "rate limit exceeded"})
			continue
		}

		switch inbound.Type {
		case "join":
			h.handleJoin(r, conn, inbound.Payload)
		case "submitAnswer":
			h.handleSubmit(r, conn, inbound.Payload)
		default:
			conn.client.DeliverMessage(app.EventError, errorPayload{Reason: "unsupported message type"})
		}
	}
}

func (h *WSHandler) handleJoin(r *http.Request, conn *connection, raw json.RawMessage) {
	var payload joinPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.SessionID == "" || payload.UserID == "" {
		conn.client.DeliverMessage(app.EventError, errorPayload{Reason: "join requires sessionId and userId"})
		return
	}

	result, err := h.service.Join(r.Context(), payload.SessionID, payload.UserID)
	if err != nil {
		h.replyError(conn, "join", payload.SessionID, payload.UserID, err)
		return
	}

	h.enterRoom(conn, payload.SessionID)
	if result.AlreadyAttempted != nil {
		conn.client.DeliverMessage(app.EventAlreadyAttempted, result.AlreadyAttempted)
		return
	}
	conn.client.DeliverMessage(app.EventQuestion, result.Question)
}

func (h *WSHandler) handleSubmit(r *http.Request, conn *connection, raw json.RawMessage) {
	var payload submitAnswerPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.SessionID == "" || payload.UserID == "" || payload.QuestionID == "" {
		conn.client.DeliverMessage(app.EventError, errorPayload{Reason: "submitAnswer requires sessionId, userId and questionId"})
		return
	}

	// A reconnecting client may submit without re-joining; keep it in the
	// room so it still receives the final leaderboard.
	h.enterRoom(conn, payload.SessionID)

	outcome, err := h.service.SubmitAnswer(r.Context(), payload.SessionID, payload.UserID, payload.QuestionID, payload.AnswerValue)
	if err != nil {
		h.replyError(conn, "submitAnswer", payload.SessionID, payload.UserID, err)
		return
	}
	if outcome.Completed != nil {
		conn.client.DeliverMessage(app.EventQuizEnd, outcome.Completed)
		if outcome.Leaderboard != nil {
			h.service.Announce(r.Context(), *outcome.Leaderboard)
		}
		return
	}
	conn.client.DeliverMessage(app.EventQuestion, outcome.Next)
}

func (h *WSHandler) enterRoom(conn *connection, sessionID string) {
	if conn.sessionID == sessionID {
		return
	}
	if conn.sessionID != "" {
		h.rooms.Unregister(conn.sessionID, conn.client)
	}
	conn.sessionID = sessionID
	h.rooms.Register(sessionID, conn.client)
}

func (h *WSHandler) replyError(conn *connection, event, sessionID, userID string, err error) {
	reason := errorReason(err)
	if reason == internalReason {
		h.log.Error("ws event failed",
			zap.String("event", event),
			zap.String("session", sessionID),
			zap.String("user", userID),
			zap.Error(err))
	}
	conn.client.DeliverMessage(app.EventError, errorPayload{Reason: reason})
}

const internalReason = "internal error"

// errorReason exposes classified domain errors verbatim and hides everything
// else behind a generic reason.
func errorReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInvalidInput):
		return err.Error()
	default:
		return internalReason
	}
}

func (h *WSHandler) writePump(ws *websocket.Conn, client *room.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-client.Send():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				h.log.Debug("ws write failed", zap.Error(err))
				// Unblock the read loop so the connection is torn down.
				_ = ws.Close()
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = ws.Close()
				return
			}
		}
	}
}
