package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"quiz-session-service/internal/domain"
)

func TestAdminCreateAndListSessions(t *testing.T) {
	env := newTestEnv(t)

	resp := doJSON(t, http.MethodPost, env.server.URL+"/sessions", map[string]any{
		"quizId":    "quiz-1",
		"hostId":    "host",
		"access":    "paid",
		"entryCost": 50,
		"startTime": "22:00",
		"endTime":   "02:00",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created domain.Session
	_ = json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()
	if created.ID == "" || created.Status != domain.StatusNotStarted || created.Window.String() != "22:00-02:00" {
		t.Fatalf("unexpected session %+v", created)
	}

	resp = doJSON(t, http.MethodGet, env.server.URL+"/sessions/today", nil)
	var today []map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&today)
	resp.Body.Close()
	if len(today) != 2 {
		t.Fatalf("expected 2 sessions today, got %d", len(today))
	}

	resp = doJSON(t, http.MethodPut, env.server.URL+"/sessions/"+created.ID, map[string]any{
		"access":    "free",
		"startTime": "08:00",
		"endTime":   "09:00",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on update, got %d", resp.StatusCode)
	}
}

func TestAdminStatusMapping(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"bad window", http.MethodPost, "/sessions", map[string]any{"quizId": "quiz-1", "hostId": "h", "startTime": "25:00", "endTime": "01:00"}, http.StatusBadRequest},
		{"unknown quiz", http.MethodPost, "/sessions", map[string]any{"quizId": "nope", "hostId": "h", "startTime": "10:00", "endTime": "11:00"}, http.StatusNotFound},
		{"free with cost", http.MethodPost, "/sessions", map[string]any{"quizId": "quiz-1", "hostId": "h", "entryCost": 5, "startTime": "10:00", "endTime": "11:00"}, http.StatusBadRequest},
		{"missing session", http.MethodPut, "/sessions/nope", map[string]any{"startTime": "10:00", "endTime": "11:00"}, http.StatusNotFound},
		{"no snapshot yet", http.MethodGet, "/sessions/s1/leaderboard", nil, http.StatusNotFound},
		{"entry without user", http.MethodPost, "/sessions/s1/entries", map[string]any{}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp := doJSON(t, tc.method, env.server.URL+tc.path, tc.body)
		resp.Body.Close()
		if resp.StatusCode != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.status, resp.StatusCode)
		}
	}
}

func TestAdminEntryChargesPaidSession(t *testing.T) {
	env := newTestEnv(t)
	env.store.PutUser(domain.User{ID: "rich", Name: "Rich", Coins: 80})

	resp := doJSON(t, http.MethodPost, env.server.URL+"/sessions", map[string]any{
		"quizId": "quiz-1", "hostId": "h", "access": "paid", "entryCost": 50, "startTime": "10:00", "endTime": "11:00",
	})
	var session domain.Session
	_ = json.NewDecoder(resp.Body).Decode(&session)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, env.server.URL+"/sessions/"+session.ID+"/entries", map[string]any{"userId": "rich"})
	var result map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&result)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || result["charged"] != float64(50) {
		t.Fatalf("expected a 50 coin charge, got %d %v", resp.StatusCode, result)
	}

	resp = doJSON(t, http.MethodPost, env.server.URL+"/sessions/"+session.ID+"/entries", map[string]any{"userId": "u1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("expected 402 for a broke user, got %d", resp.StatusCode)
	}
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}
