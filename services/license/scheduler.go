package license

import (
	"context"
	"time"

	"widget-controlplane/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Scheduler struct {
	task *Task
	node *snowflake.Node
	hour int
}

func NewScheduler(task *Task, node *snowflake.Node, cfg *config.Config) *Scheduler {
	return &Scheduler{
		task: task,
		node: node,
		hour: cfg.Licensing.ExpirySweepHour,
	}
}

// StartScheduler wires the daily sweep loop to the fx lifecycle.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started license expiry scheduler", zap.Int("hour", s.hour))

	for {
		now := time.Now()
		next := nextRunTime(now, s.hour, 0)

		sleepDuration := next.Sub(now)
		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleepDuration),
		)
		select {
		case <-time.After(sleepDuration):
			s.runDaily(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) runDaily(ctx context.Context) {
	start := time.Now()
	traceID := s.node.Generate().String()
	zap.L().Info("[Scheduler] enqueueing license expiry sweep", zap.String("trace_id", traceID))

	if err := s.task.EnqueueExpirySweep(ctx, traceID); err != nil {
		zap.L().Error("[Scheduler] failed to enqueue expiry sweep", zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] expiry sweep enqueued",
		zap.Duration("duration", time.Since(start)),
	)
}

// nextRunTime computes the next occurrence of the given wall-clock time.
func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(next) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
