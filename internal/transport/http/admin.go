package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/skip2/go-qrcode"
)

// AdminHandler exposes the host's session commands as JSON routes.
type AdminHandler struct {
	service  *app.QuizService
	validate *validator.Validate
	log      *slog.Logger
	joinURL  string
}

// NewAdminHandler builds the admin routes. joinURL is the participant entry page
// encoded into session QR codes; the session code is appended as ?code=.
func NewAdminHandler(service *app.QuizService, joinURL string, log *slog.Logger) *AdminHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AdminHandler{
		service:  service,
		validate: validator.New(),
		log:      log,
		joinURL:  joinURL,
	}
}

type nextRequest struct {
	QuestionID string `json:"questionId" validate:"omitempty,max=128"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

// Routes returns the admin router; mount it under a prefix.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/sessions/{code}", func(r chi.Router) {
		r.Post("/", h.handleOpen)
		r.Get("/", h.handleStatus)
		r.Delete("/", h.handleClose)
		r.Post("/start", h.handleStart)
		r.Post("/next", h.handleNext)
		r.Post("/end", h.handleEnd)
		r.Get("/questions/{questionID}/tally", h.handleTally)
		r.Get("/participants/{userID}/progress", h.handleProgress)
		r.Delete("/participants/{userID}", h.handleRemoveParticipant)
		r.Get("/leaderboard", h.handleLeaderboard)
		r.Get("/stats", h.handleStats)
		r.Get("/responses", h.handleResponses)
		r.Get("/qr", h.handleQR)
	})
	return r
}

func (h *AdminHandler) handleOpen(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Open(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, status)
}

func (h *AdminHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *AdminHandler) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Close(r.Context(), chi.URLParam(r, "code")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := h.service.Start(r.Context(), code); err != nil {
		h.writeError(w, err)
		return
	}
	h.handleStatus(w, r)
}

// handleNext advances to the given question, or to the following one when the
// body is empty.
func (h *AdminHandler) handleNext(w http.ResponseWriter, r *http.Request) {
	var req nextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, apiError{Code: "BAD_REQUEST", Message: "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Code: "VALIDATION_ERROR", Message: err.Error()})
		return
	}

	code := chi.URLParam(r, "code")
	var (
		question domain.PublicQuestion
		err      error
	)
	if req.QuestionID != "" {
		question, err = h.service.AdvanceQuestion(r.Context(), code, req.QuestionID)
	} else {
		question, err = h.service.NextQuestion(r.Context(), code)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, question)
}

func (h *AdminHandler) handleEnd(w http.ResponseWriter, r *http.Request) {
	scores, err := h.service.End(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"finalScores": scores})
}

func (h *AdminHandler) handleTally(w http.ResponseWriter, r *http.Request) {
	tally, err := h.service.TallyFor(r.Context(), chi.URLParam(r, "code"), chi.URLParam(r, "questionID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tally)
}

func (h *AdminHandler) handleProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.service.Progress(r.Context(), chi.URLParam(r, "code"), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// handleRemoveParticipant drops a member whichever connection they hold. Unknown
// users are ignored.
func (h *AdminHandler) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if _, err := h.service.Status(r.Context(), code); err != nil {
		h.writeError(w, err)
		return
	}
	h.service.Leave(r.Context(), code, chi.URLParam(r, "userID"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	scores, err := h.service.Leaderboard(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": scores})
}

func (h *AdminHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) handleResponses(w http.ResponseWriter, r *http.Request) {
	responses, err := h.service.Responses(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if responses == nil {
		responses = []domain.Response{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"responses": responses, "total": len(responses)})
}

// handleQR renders a PNG that points participants at the join page for a live session.
func (h *AdminHandler) handleQR(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if _, err := h.service.Status(r.Context(), code); err != nil {
		h.writeError(w, err)
		return
	}
	png, err := qrcode.Encode(h.joinURL+"?code="+url.QueryEscape(code), qrcode.Medium, 256)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// writeError maps domain errors onto HTTP statuses.
func (h *AdminHandler) writeError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		status, code = http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrQuizNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrInvalidQuestion), errors.Is(err, domain.ErrInvalidOption):
		status, code = http.StatusBadRequest, "BAD_REQUEST"
	case errors.Is(err, domain.ErrParticipantNotFound):
		status, code = http.StatusForbidden, "NOT_JOINED"
	}
	if status == http.StatusInternalServerError {
		h.log.Error("admin request failed", "error", err)
	}
	writeJSON(w, status, apiError{Code: code, Message: err.Error()})
}

func (h *AdminHandler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Debug("admin request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"requestId", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
