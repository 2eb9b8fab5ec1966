package tasks

import (
	"context"
	"errors"
	"log/slog"
)

type RefreshTask struct {
	Task
	acquirer *Acquirer
	want     int
}

func NewRefreshTask(trigger string, acquirer *Acquirer, want int) *RefreshTask {
	return &RefreshTask{
		Task:     NewTask(TaskTypeRefresh, trigger),
		acquirer: acquirer,
		want:     want,
	}
}

func (t *RefreshTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	err := t.acquirer.Refresh(ctx, t.want)
	if errors.Is(err, ErrCycleInProgress) {
		slog.Info("Refresh suppressed, cycle already running", "trigger", t.Trigger)
		return nil
	}
	if err != nil {
		return err
	}

	slog.Info("Task completed",
		"type", "Refresh",
		"trigger", t.Trigger,
		"duration", t.GetDuration(),
		"pool", t.acquirer.collection.Len())

	return nil
}
