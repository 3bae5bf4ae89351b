package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
	"quiz-session-service/internal/room"
)

type testEnv struct {
	store   *memory.Store
	service *app.QuizService
	admin   *app.AdminService
	server  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	// Handler goroutines outlive the test when the client hangs up, so they
	// get a no-op logger instead of zaptest.
	log := zap.NewNop()

	store := memory.NewStore()
	store.PutUser(domain.User{ID: "u1", Name: "Alice", Coins: 0})
	store.PutUser(domain.User{ID: "u2", Name: "Bob", Coins: 0})
	window, _ := domain.NewWindow("09:00", "10:00")
	_ = store.CreateSession(context.Background(), domain.Session{
		ID:     "s1",
		QuizID: "quiz-1",
		HostID: "host",
		Access: domain.AccessFree,
		Window: window,
		Status: domain.StatusStarted,
	})

	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuiz()), time.Minute)
	rooms := room.NewCoordinator(nil, log)
	service := app.NewQuizService(store, quizzes, rooms, nil, log, app.DefaultOptions())
	admin := app.NewAdminService(store, quizzes, time.UTC)

	router := NewRouter(
		NewWSHandler(service, rooms, log, WSOptions{MessagesPerSecond: 100, Burst: 100}),
		NewAdminHandler(admin, service, log),
		nil,
		log,
	)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testEnv{store: store, service: service, admin: admin, server: server}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketQuizFlow(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	send(t, conn, "join", map[string]any{"sessionId": "s1", "userId": "u1"})
	_, payload := readNext(t, conn, "question")
	if payload["questionId"] != "q1" {
		t.Fatalf("expected q1, got %v", payload["questionId"])
	}
	if _, leaked := payload["correctIndex"]; leaked {
		t.Fatalf("question payload must not reveal the answer")
	}

	send(t, conn, "submitAnswer", map[string]any{"sessionId": "s1", "userId": "u1", "questionId": "q1", "answerValue": "4"})
	_, payload = readNext(t, conn, "question")
	if payload["questionId"] != "q2" {
		t.Fatalf("expected q2, got %v", payload["questionId"])
	}

	send(t, conn, "submitAnswer", map[string]any{"sessionId": "s1", "userId": "u1", "questionId": "q2", "answerValue": "Lyon"})

	// The private result is queued before the room-wide leaderboard.
	_, private := readNext(t, conn, "quizEnd")
	if _, ok := private["leaderboard"]; ok {
		t.Fatalf("expected the private result first, got the room leaderboard %v", private)
	}
	_, broadcast := readNext(t, conn, "quizEnd")
	if _, ok := broadcast["leaderboard"]; !ok {
		t.Fatalf("expected the room leaderboard second, got %v", broadcast)
	}
	if private["correctAnswers"] != float64(1) || private["wrongAnswers"] != float64(1) || private["coinsEarned"] != float64(100) {
		t.Fatalf("unexpected private result %v", private)
	}

	user, _ := env.store.GetUser(context.Background(), "u1")
	if user.Coins != 200 {
		t.Fatalf("expected 100 answer coins plus 100 reward coins, got %d", user.Coins)
	}

	send(t, conn, "join", map[string]any{"sessionId": "s1", "userId": "u1"})
	_, payload = readNext(t, conn, "alreadyAttempted")
	if payload["rank"] != float64(1) || payload["score"] != float64(1) {
		t.Fatalf("unexpected alreadyAttempted payload %v", payload)
	}
}

func TestWebSocketErrors(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	send(t, conn, "join", map[string]any{"sessionId": "missing", "userId": "u1"})
	_, payload := readNext(t, conn, "error")
	if payload["reason"] != "session not found" {
		t.Fatalf("expected session not found, got %v", payload["reason"])
	}

	send(t, conn, "submitAnswer", map[string]any{"sessionId": "s1", "userId": "u2", "questionId": "q1", "answerValue": "4"})
	_, payload = readNext(t, conn, "error")
	if !strings.Contains(payload["reason"].(string), "not joined") {
		t.Fatalf("expected not joined, got %v", payload["reason"])
	}

	send(t, conn, "dance", map[string]any{})
	readNext(t, conn, "error")
}

func TestErrorReasonHidesPersistenceFaults(t *testing.T) {
	if got := errorReason(domain.ErrUserNotFound); got != "user not found" {
		t.Fatalf("unexpected reason %q", got)
	}
	if got := errorReason(errFake("connection refused")); got != internalReason {
		t.Fatalf("expected generic reason, got %q", got)
	}
}

type errFake string

func (e errFake) Error() string { return string(e) }

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": msgType, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

func readNext(t *testing.T, conn *websocket.Conn, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s (%v)", expect, msg.Type, msg.Payload)
	}
	return msg.Type, msg.Payload
}

func sampleQuiz() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID: "quiz-1",
			Questions: []domain.Question{
				{ID: "q1", Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectIndex: 1},
				{ID: "q2", Text: "Capital of France?", Options: []string{"Lyon", "Paris"}, CorrectIndex: 1},
			},
		},
	}
}
