package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Evictor removes ended sessions.
type Evictor interface {
	Evict(ctx context.Context, code string) bool
}

// Handlers processes queued session tasks.
type Handlers struct {
	evictor Evictor
	log     *slog.Logger
}

func NewHandlers(evictor Evictor, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{evictor: evictor, log: log}
}

// HandleEvictSessionTask removes the session named in the payload. A session that
// is already gone is not an error.
func (h *Handlers) HandleEvictSessionTask(ctx context.Context, t *asynq.Task) error {
	var payload EvictSessionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode evict payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Code == "" {
		return fmt.Errorf("evict payload without code: %w", asynq.SkipRetry)
	}
	if h.evictor.Evict(ctx, payload.Code) {
		h.log.Info("session evicted", "code", payload.Code)
	} else {
		h.log.Debug("session already gone", "code", payload.Code)
	}
	return nil
}

// Mux routes task types to their handlers.
func (h *Handlers) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeEvictSession, h.HandleEvictSessionTask)
	return mux
}
