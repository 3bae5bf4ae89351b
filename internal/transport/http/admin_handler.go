package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

// AdminHandler serves session management and the entry precheck over HTTP.
type AdminHandler struct {
	admin   *app.AdminService
	service *app.QuizService
	log     *zap.Logger
}

func NewAdminHandler(admin *app.AdminService, service *app.QuizService, log *zap.Logger) *AdminHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{admin: admin, service: service, log: log}
}

type entryRequest struct {
	UserID string `json:"userId"`
}

// ListSessions handles GET /sessions
func (h *AdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.admin.ListSessions(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// ListToday handles GET /sessions/today
func (h *AdminHandler) ListToday(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.admin.ListToday(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// CreateSession handles POST /sessions
func (h *AdminHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var in app.SessionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	session, err := h.admin.CreateSession(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// UpdateSession handles PUT /sessions/{id}
func (h *AdminHandler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	var in app.SessionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	session, err := h.admin.UpdateSession(r.Context(), mux.Vars(r)["id"], in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Enter handles POST /sessions/{id}/entries
func (h *AdminHandler) Enter(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	result, err := h.service.Enter(r.Context(), mux.Vars(r)["id"], req.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Leaderboard handles GET /sessions/{id}/leaderboard
func (h *AdminHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.admin.GetLeaderboard(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *AdminHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, status, internalReason)
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidWindow):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
