package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TypeEvictSession = "session:evict"

type EvictSessionPayload struct {
	Code string `json:"code"`
}

func NewEvictSessionTask(code string) (*asynq.Task, error) {
	payload, err := json.Marshal(EvictSessionPayload{Code: code})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeEvictSession, payload), nil
}
