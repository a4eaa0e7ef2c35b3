package license

import (
	"context"
	"encoding/json"
	"fmt"

	taskname "widget-controlplane/pkg/asynq"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Task struct {
	service *Service
	asynq   *asynq.Client
}

type TaskParams struct {
	fx.In
	Service *Service
	Asynq   *asynq.Client
}

func NewTask(p TaskParams) *Task {
	return &Task{
		service: p.Service,
		asynq:   p.Asynq,
	}
}

// EnqueueExpirySweep queues a sweep run on the default queue.
func (t *Task) EnqueueExpirySweep(ctx context.Context, traceID string) error {
	payload, _ := json.Marshal(taskname.ExpirySweepPayload{TraceID: traceID})

	if _, err := t.asynq.EnqueueContext(ctx, asynq.NewTask(taskname.ExpirySweepTask, payload)); err != nil {
		zap.L().Error("failed to enqueue expiry sweep", zap.Error(err))
		return fmt.Errorf("enqueue expiry sweep: %w", err)
	}

	return nil
}

// HandleExpirySweep is the asynq handler for the expiry sweep task.
func (t *Task) HandleExpirySweep(ctx context.Context, task *asynq.Task) error {
	var payload taskname.ExpirySweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	zapLog := zap.L().With(
		zap.String("task_type", task.Type()),
		zap.String("trace_id", payload.TraceID),
	)
	zapLog.Info("starting license expiry sweep")

	count, err := t.service.SweepExpired(ctx)
	if err != nil {
		zapLog.Error("license expiry sweep failed", zap.Error(err))
		return err
	}

	zapLog.Info("license expiry sweep finished", zap.Int64("expired", count))
	return nil
}

func registerTaskHandlers(mux *asynq.ServeMux, task *Task) {
	mux.HandleFunc(taskname.ExpirySweepTask, task.HandleExpirySweep)
}
