// Package tasks holds the background jobs run by cmd/worker.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// TypeMarkOverdue moves pending invoices past their due date to overdue.
const TypeMarkOverdue = "invoice:mark_overdue"

// Sweeper is satisfied by *invoice.Service.
type Sweeper interface {
	MarkOverdue(ctx context.Context) (int64, error)
}

// NewMarkOverdueTask builds the sweep task. The task has no payload; every run
// sweeps against the current time.
func NewMarkOverdueTask() *asynq.Task {
	return asynq.NewTask(TypeMarkOverdue, nil, asynq.MaxRetry(3), asynq.Timeout(2*time.Minute))
}

// EnqueueMarkOverdue queues a sweep unless one is already pending within dedup.
func EnqueueMarkOverdue(ctx context.Context, client *asynq.Client, dedup time.Duration) (*asynq.TaskInfo, error) {
	opts := []asynq.Option{}
	if dedup > 0 {
		opts = append(opts, asynq.Unique(dedup))
	}
	info, err := client.EnqueueContext(ctx, NewMarkOverdueTask(), opts...)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", TypeMarkOverdue, err)
	}
	return info, nil
}

// OverdueHandler processes TypeMarkOverdue tasks.
type OverdueHandler struct {
	sweeper Sweeper
	logger  zerolog.Logger
	marked  metric.Int64Counter
}

// NewOverdueHandler wires the sweeper with an otel counter. A nil meter uses
// the global provider.
func NewOverdueHandler(sweeper Sweeper, logger zerolog.Logger, meter metric.Meter) (*OverdueHandler, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("tasks: sweeper is required")
	}
	if meter == nil {
		meter = otel.Meter("github.com/noah-isme/backend-invoice/internal/tasks")
	}
	marked, err := meter.Int64Counter("invoice.overdue.marked",
		metric.WithDescription("Invoices moved to overdue by the sweep task."),
		metric.WithUnit("{invoice}"),
	)
	if err != nil {
		return nil, fmt.Errorf("tasks: overdue counter: %w", err)
	}
	return &OverdueHandler{sweeper: sweeper, logger: logger, marked: marked}, nil
}

// ProcessTask implements asynq.Handler.
func (h *OverdueHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if t.Type() != TypeMarkOverdue {
		return fmt.Errorf("%w: unexpected task type %q", asynq.SkipRetry, t.Type())
	}
	start := time.Now()
	n, err := h.sweeper.MarkOverdue(ctx)
	if err != nil {
		h.logger.Error().Err(err).Str("task", TypeMarkOverdue).Msg("overdue sweep failed")
		return err
	}
	h.marked.Add(ctx, n)
	h.logger.Info().
		Str("task", TypeMarkOverdue).
		Int64("marked", n).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("overdue sweep complete")
	return nil
}

// Register mounts every task handler on mux.
func Register(mux *asynq.ServeMux, overdue *OverdueHandler) {
	mux.Handle(TypeMarkOverdue, overdue)
}
