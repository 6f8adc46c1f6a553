package intelligence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/FairForge/dropsense/internal/config"
	"github.com/FairForge/dropsense/internal/metrics"
	"github.com/FairForge/dropsense/internal/queue"
	"go.uber.org/zap"
)

// ReasonSchedule marks jobs enqueued by the periodic scheduler.
const ReasonSchedule = "schedule"

// Runner performs one analysis. *Analyzer implements it.
type Runner interface {
	Analyze(ctx context.Context, userID, reason string) (*Report, error)
}

// ActivitySource lists recently active users for the scheduler.
type ActivitySource interface {
	ActiveUsers(ctx context.Context, since time.Time) ([]string, error)
}

// Worker drains the analysis outbox and periodically re-enqueues users
// that were active since the previous sweep.
type Worker struct {
	outbox  *queue.Outbox
	runner  Runner
	source  ActivitySource
	cfg     config.WorkerConfig
	logger  *zap.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

// NewWorker creates a worker. A zero ScheduleInterval disables the
// scheduler.
func NewWorker(outbox *queue.Outbox, runner Runner, source ActivitySource, cfg config.WorkerConfig, logger *zap.Logger, m *metrics.Collector) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	return &Worker{
		outbox:  outbox,
		runner:  runner,
		source:  source,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Run blocks until ctx is cancelled and every consumer has returned.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.consume(ctx, id)
		}(i)
	}

	if w.cfg.ScheduleInterval > 0 && w.source != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.schedule(ctx)
		}()
	}

	w.logger.Info("analysis worker started",
		zap.Int("concurrency", w.cfg.Concurrency),
		zap.Duration("schedule_interval", w.cfg.ScheduleInterval))
	wg.Wait()
	w.logger.Info("analysis worker stopped")
}

func (w *Worker) consume(ctx context.Context, id int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		for w.ProcessOne(ctx) {
			if ctx.Err() != nil {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-w.outbox.Ready():
		case <-ticker.C:
		}
	}
}

// ProcessOne dequeues and runs a single job. It reports whether a job was
// available. Failed analyses are acked: the next trigger recomputes from
// the full log. Only a job interrupted by shutdown is returned to the queue.
func (w *Worker) ProcessOne(ctx context.Context) bool {
	job, err := w.outbox.Dequeue(ctx)
	if err != nil || job == nil {
		return false
	}
	defer w.metrics.QueueDepth(w.outbox.Stats().Pending)

	_, err = w.runner.Analyze(ctx, job.UserID, job.Reason)
	switch {
	case err == nil, errors.Is(err, ErrAnalysisInFlight):
	case ctx.Err() != nil:
		if nerr := w.outbox.Nack(context.Background(), job.ReceiptHandle); nerr != nil {
			w.logger.Warn("requeue interrupted job", zap.String("job_id", job.ID), zap.Error(nerr))
		}
		return true
	default:
		w.logger.Warn("analysis job failed",
			zap.String("job_id", job.ID),
			zap.String("user_id", job.UserID),
			zap.Int("attempts", job.Attempts),
			zap.Error(err))
	}

	if err := w.outbox.Ack(ctx, job.ReceiptHandle); err != nil {
		w.logger.Warn("ack analysis job", zap.String("job_id", job.ID), zap.Error(err))
	}
	return true
}

func (w *Worker) schedule(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.ScheduleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Sweep enqueues every user active within the last schedule interval and
// returns how many new jobs were created.
func (w *Worker) Sweep(ctx context.Context) int {
	since := w.now().Add(-w.cfg.ScheduleInterval)
	users, err := w.source.ActiveUsers(ctx, since)
	if err != nil {
		w.logger.Warn("scheduled sweep failed", zap.Error(err))
		return 0
	}

	queued := 0
	for _, userID := range users {
		added, err := w.outbox.Enqueue(ctx, userID, ReasonSchedule)
		if err != nil {
			w.logger.Warn("schedule analysis", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		if added {
			queued++
			w.metrics.AnalysisTriggered(ReasonSchedule)
		}
	}
	w.metrics.QueueDepth(w.outbox.Stats().Pending)

	if queued > 0 {
		w.logger.Debug("scheduled analyses", zap.Int("active_users", len(users)), zap.Int("queued", queued))
	}
	return queued
}
