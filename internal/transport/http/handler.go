package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"elsa-progression-service/internal/app"
	"elsa-progression-service/internal/domain"
	"elsa-progression-service/internal/logger"
)

const maxLeaderboardLimit = 100

// PermissionsHeader carries the caller's granted permissions, comma-separated. It is set by the
// authenticating gateway in front of the service and is the only source of permissions.
const PermissionsHeader = "X-Caller-Permissions"

// AdminPermission gates manual XP awards and corrections.
const AdminPermission = "admin"

type callerKey struct{}

// withCaller moves the caller's permissions from the request headers into the context.
func withCaller(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var perms []string
		for _, p := range strings.Split(r.Header.Get(PermissionsHeader), ",") {
			if p = strings.TrimSpace(p); p != "" {
				perms = append(perms, p)
			}
		}
		next(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, perms)))
	}
}

func callerPermissions(ctx context.Context) []string {
	perms, _ := ctx.Value(callerKey{}).([]string)
	return perms
}

// Handler exposes the progression use cases over HTTP.
type Handler struct {
	service *app.ActivityService
	log     *logger.Logger
}

func NewHandler(service *app.ActivityService, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{service: service, log: log}
}

// Routes registers every endpoint, including the leaderboard websocket, on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /v1/attempts", withCaller(h.SubmitAttempt))
	mux.HandleFunc("POST /v1/admin/awards", withCaller(h.SubmitAdminAward))
	mux.HandleFunc("GET /v1/users/{userId}/progress", h.GetProgress)
	mux.HandleFunc("GET /v1/leaderboard", h.GetLeaderboard)
	mux.HandleFunc("GET /ws/leaderboard", NewWSHandler(h.service, h.log).ServeWS)
}

// attemptRequest is a learner-submitted attempt. The occurrence time is stamped by the server
// and permissions come from the caller, so neither is accepted in the body.
type attemptRequest struct {
	Kind           domain.ActivityKind `json:"kind" validate:"required,oneof=EXAM MINIGAME CONTENT_LISTEN LOGIN"`
	UserID         string              `json:"userId" validate:"required"`
	ElapsedSeconds *int                `json:"elapsedSeconds" validate:"omitempty,min=0"`
	Exam           *examRequest        `json:"exam" validate:"required_if=Kind EXAM"`
	Minigame       *minigameRequest    `json:"minigame" validate:"required_if=Kind MINIGAME"`
	Content        *contentRequest     `json:"content" validate:"required_if=Kind CONTENT_LISTEN"`
}

type examRequest struct {
	ExamID  string            `json:"examId" validate:"required"`
	Answers map[string]string `json:"answers" validate:"required"`
}

type minigameRequest struct {
	MinigameID       string `json:"minigameId" validate:"required"`
	Score            int    `json:"score" validate:"min=0"`
	MaxPossibleScore int    `json:"maxPossibleScore" validate:"min=0"`
}

type contentRequest struct {
	ContentID string `json:"contentId" validate:"required"`
}

type adminAwardRequest struct {
	UserID string `json:"userId" validate:"required"`
	Amount int    `json:"amount"`
	Reason string `json:"reason" validate:"required"`
}

func (req attemptRequest) toAttempt(at time.Time, perms []string) domain.ScoreAttempt {
	a := domain.ScoreAttempt{
		Kind:           req.Kind,
		UserID:         req.UserID,
		OccurredAt:     at,
		ElapsedSeconds: req.ElapsedSeconds,
		Permissions:    perms,
	}
	if req.Exam != nil {
		a.Exam = &domain.ExamSubmission{ExamID: req.Exam.ExamID, Answers: req.Exam.Answers}
	}
	if req.Minigame != nil {
		a.Minigame = &domain.MinigameResult{
			MinigameID:       req.Minigame.MinigameID,
			Score:            req.Minigame.Score,
			MaxPossibleScore: req.Minigame.MaxPossibleScore,
		}
	}
	if req.Content != nil {
		a.Content = &domain.ContentEvent{ContentID: req.Content.ContentID}
	}
	return a
}

type errorPayload struct {
	Message string   `json:"message"`
	Reasons []string `json:"reasons,omitempty"`
}

func (h *Handler) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	var req attemptRequest
	if !decodeValid(w, r, &req) {
		return
	}

	// Payload/kind mismatches and extra payloads are rejected by the domain validation.
	attempt := req.toAttempt(h.service.Now(), callerPermissions(r.Context()))
	h.submit(w, r, attempt)
}

// SubmitAdminAward grants or corrects XP manually. Callers need AdminPermission.
func (h *Handler) SubmitAdminAward(w http.ResponseWriter, r *http.Request) {
	perms := callerPermissions(r.Context())
	if !slices.Contains(perms, AdminPermission) {
		writeJSON(w, http.StatusForbidden, errorPayload{Message: "admin permission required"})
		return
	}
	var req adminAwardRequest
	if !decodeValid(w, r, &req) {
		return
	}

	attempt, err := domain.NewAdminAward(req.UserID, h.service.Now(), req.Amount, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.submit(w, r, attempt.WithPermissions(perms...))
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, attempt domain.ScoreAttempt) {
	result, err := h.service.Submit(r.Context(), attempt)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func decodeValid(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid request body", Reasons: []string{err.Error()}})
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid attempt", Reasons: validationReasons(err)})
		return false
	}
	return true
}

func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "missing userId"})
		return
	}
	view, err := h.service.Progress(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxLeaderboardLimit {
			writeJSON(w, http.StatusBadRequest, errorPayload{Message: "limit must be between 1 and " + strconv.Itoa(maxLeaderboardLimit)})
			return
		}
		limit = n
	}
	lb, err := h.service.Leaderboard(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	payload := errorPayload{Message: err.Error()}
	var invalid *domain.InvalidAttemptError
	if errors.As(err, &invalid) {
		payload.Message = "invalid attempt"
		payload.Reasons = invalid.Reasons
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "error", err)
		payload.Message = "internal error"
	}
	writeJSON(w, status, payload)
}

// statusFor maps domain errors to HTTP status codes. A permission denial also wraps
// ErrInvalidAttempt, so it must be matched first.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidAttempt):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrExamNotFound),
		errors.Is(err, domain.ErrMinigameNotFound),
		errors.Is(err, domain.ErrContentNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoGradableQuestions):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrContentAlreadyAwarded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
