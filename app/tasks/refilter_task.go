package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

type RefilterTask struct {
	Task
	acquirer *Acquirer
}

func NewRefilterTask(trigger string, acquirer *Acquirer) *RefilterTask {
	return &RefilterTask{
		Task:     NewTask(TaskTypeRefilter, trigger),
		acquirer: acquirer,
	}
}

func (t *RefilterTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	moved, err := t.acquirer.Refilter(ctx)
	if errors.Is(err, ErrCycleInProgress) {
		return fmt.Errorf("failed to refilter: %w", err)
	}
	if err != nil {
		return err
	}

	slog.Info("Task completed",
		"type", "Refilter",
		"trigger", t.Trigger,
		"catalog_version", t.acquirer.screener.CatalogVersion(),
		"duration", t.GetDuration(),
		"moved", moved,
		"pool", t.acquirer.collection.Len())

	return nil
}
