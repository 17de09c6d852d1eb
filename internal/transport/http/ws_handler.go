package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const errConnectionReplaced = "connection replaced by a newer one"

type WSHandler struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
	validate *validator.Validate
	log      *slog.Logger
}

func NewWSHandler(service *app.QuizService, log *slog.Logger) *WSHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		validate: validator.New(),
		log:      log,
	}
}

type joinQuery struct {
	Code   string `validate:"required,max=64"`
	UserID string `validate:"required,max=128"`
	Name   string `validate:"required,max=128"`
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string `json:"questionId" validate:"required"`
	OptionID   string `json:"optionId" validate:"required"`
}

type answerResult struct {
	QuestionID string       `json:"questionId"`
	OptionID   string       `json:"optionId"`
	Tally      domain.Tally `json:"tally"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades a participant connection and wires it into the live session.
// Query: code, userId, name.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := joinQuery{
		Code:   r.URL.Query().Get("code"),
		UserID: r.URL.Query().Get("userId"),
		Name:   r.URL.Query().Get("name"),
	}
	if err := h.validate.Struct(q); err != nil {
		http.Error(w, "missing or invalid code, userId, or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// The request context ends with the handler; session work must not be tied to it.
	ctx := context.WithoutCancel(r.Context())
	client := newWSClient(conn, h.log)
	writerDone := make(chan struct{})
	go client.writePump(writerDone)
	defer func() {
		client.close()
		<-writerDone
	}()

	ref := domain.ParticipantRef{
		UserID:       q.UserID,
		DisplayName:  q.Name,
		ConnectionID: uuid.NewString(),
	}
	if _, err := h.service.Join(ctx, q.Code, ref, client); err != nil {
		client.fail(err.Error())
		return
	}
	defer h.service.Disconnect(ctx, ref.ConnectionID)
	h.log.Debug("participant connected", "code", q.Code, "userId", q.UserID, "conn", ref.ConnectionID)

	client.prepareRead()
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("ws read failed", "error", err)
			}
			return
		}
		// A reconnect hands the participant to the newer socket; this one may only close.
		if !h.service.Connected(ctx, ref.ConnectionID) {
			client.fail(errConnectionReplaced)
			return
		}
		switch inbound.Type {
		case "answer":
			h.handleAnswer(ctx, client, q.Code, q.UserID, inbound.Payload)
		case "progress":
			progress, err := h.service.Progress(ctx, q.Code, q.UserID)
			if err != nil {
				client.fail(err.Error())
				continue
			}
			client.reply("progress", progress)
		case "leave":
			h.service.Disconnect(ctx, ref.ConnectionID)
			return
		default:
			client.fail("unsupported message type")
		}
	}
}

func (h *WSHandler) handleAnswer(ctx context.Context, client *wsClient, code, userID string, raw json.RawMessage) {
	var payload answerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		client.fail("invalid answer payload")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		client.fail("questionId and optionId are required")
		return
	}
	tally, err := h.service.SubmitAnswer(ctx, code, userID, payload.QuestionID, payload.OptionID)
	if err != nil && !errors.Is(err, domain.ErrPersistence) {
		client.fail(err.Error())
		return
	}
	if err != nil {
		h.log.Warn("answer kept in memory only", "code", code, "userId", userID, "error", err)
	}
	client.reply("answer-result", answerResult{
		QuestionID: payload.QuestionID,
		OptionID:   payload.OptionID,
		Tally:      tally,
	})
}

// ServeWatch streams a session's events to an observer that does not count as a
// participant. Query: code.
func (h *WSHandler) ServeWatch(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if err := h.validate.Var(code, "required,max=64"); err != nil {
		http.Error(w, "missing or invalid code", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := context.WithoutCancel(r.Context())
	client := newWSClient(conn, h.log)
	writerDone := make(chan struct{})
	go client.writePump(writerDone)
	defer func() {
		client.close()
		<-writerDone
	}()

	cancel, err := h.service.Watch(ctx, code, client)
	if err != nil {
		client.fail(err.Error())
		return
	}
	defer cancel()
	if status, err := h.service.Status(ctx, code); err == nil {
		client.reply(string(domain.EventQuizStatus), status)
	}

	client.prepareRead()
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}
