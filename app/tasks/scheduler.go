package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type SchedulerConfig struct {
	Interval    time.Duration
	RefreshSize int
	QueueSize   int
	TaskTimeout time.Duration
}

// Scheduler executes queued tasks on a single worker so that refresh and
// refilter passes never overlap. A cron entry enqueues the periodic refresh.
type Scheduler struct {
	acquirer  *Acquirer
	config    SchedulerConfig
	cron      *cron.Cron
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	taskQueue chan TaskInterface
}

func NewScheduler(acquirer *Acquirer, config SchedulerConfig) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	if config.QueueSize <= 0 {
		config.QueueSize = 16
	}
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = 5 * time.Minute
	}

	return &Scheduler{
		acquirer:  acquirer,
		config:    config,
		cron:      cron.New(),
		ctx:       ctx,
		cancel:    cancel,
		taskQueue: make(chan TaskInterface, config.QueueSize),
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.worker()

	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.config.Interval), func() {
		if _, err := s.TriggerRefresh("cron"); err != nil {
			slog.Warn("Failed to enqueue RefreshTask", "trigger", "cron", "error", err)
		}
	}); err != nil {
		slog.Error("Failed to schedule refresh", "interval", s.config.Interval, "error", err)
	}
	s.cron.Start()

	s.enqueueStartupTasks()
}

// Stop halts the trigger and waits for the in-flight task to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) TriggerRefresh(trigger string) (string, error) {
	task := NewRefreshTask(trigger, s.acquirer, s.config.RefreshSize)
	if err := s.EnqueueTask(task); err != nil {
		return "", err
	}
	return task.GetID(), nil
}

func (s *Scheduler) TriggerRefilter(trigger string) (string, error) {
	task := NewRefilterTask(trigger, s.acquirer)
	if err := s.EnqueueTask(task); err != nil {
		return "", err
	}
	return task.GetID(), nil
}

func (s *Scheduler) enqueueStartupTasks() {
	if s.acquirer.CatalogChanged(s.ctx) {
		slog.Info("Catalog version changed, scheduling refilter", "catalog_version", s.acquirer.screener.CatalogVersion())
		if _, err := s.TriggerRefilter("startup"); err != nil {
			slog.Warn("Failed to enqueue RefilterTask", "trigger", "startup", "error", err)
		}
	}

	if _, err := s.TriggerRefresh("startup"); err != nil {
		slog.Warn("Failed to enqueue RefreshTask", "trigger", "startup", "error", err)
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, s.config.TaskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		return
	}

	slog.Error("Task execution failed", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	task.IncrementRetryCount()
	retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
	if retryDelay > 30*time.Second {
		retryDelay = 30 * time.Second
	}

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "trigger", task.GetTrigger(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	go func() {
		if err := sleep(s.ctx, retryDelay); err != nil {
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
			return
		}
		if retryErr := s.EnqueueTask(task); retryErr != nil {
			slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
		}
	}()
}
