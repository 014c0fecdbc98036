// Package scheduler runs batch jobs on a fixed period.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one batch run
type Job interface {
	Name() string
	RunOnce(ctx context.Context) error
}

// JobFunc adapts a function to a Job
type JobFunc struct {
	JobName string
	Run     func(ctx context.Context) error
}

func (f JobFunc) Name() string { return f.JobName }

func (f JobFunc) RunOnce(ctx context.Context) error { return f.Run(ctx) }

// Worker runs a job once per period. The first run happens after one
// period has elapsed.
type Worker struct {
	job    Job
	period time.Duration
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker creates a worker for job
func NewWorker(job Job, period time.Duration, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		job:    job,
		period: period,
		logger: logger.Named("scheduler").With(zap.String("job", job.Name())),
	}
}

// Start launches the schedule. Starting a running worker restarts it.
func (w *Worker) Start(ctx context.Context) {
	w.Stop()

	w.mu.Lock()
	defer w.mu.Unlock()
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.logger.Info("start", zap.Duration("period", w.period))
	go w.loop(ctx, w.done)
}

// Stop cancels the schedule and waits for it to exit. A cycle that is
// already running is allowed to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	w.logger.Info("cancelled")
}

func (w *Worker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Cancellation only takes effect between cycles.
			w.runCycle(context.WithoutCancel(ctx))
		}
	}
}

func (w *Worker) runCycle(ctx context.Context) {
	start := time.Now()
	if err := w.job.RunOnce(ctx); err != nil {
		w.logger.Error("run failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return
	}
	w.logger.Info("run finished", zap.Duration("elapsed", time.Since(start)))
}

// Pipeline runs its steps in order and stops at the first failure
type Pipeline struct {
	name  string
	steps []Job
}

// NewPipeline creates a pipeline job
func NewPipeline(name string, steps ...Job) *Pipeline {
	return &Pipeline{name: name, steps: steps}
}

func (p *Pipeline) Name() string { return p.name }

func (p *Pipeline) RunOnce(ctx context.Context) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step.RunOnce(ctx); err != nil {
			return fmt.Errorf("%s: %w", step.Name(), err)
		}
	}
	return nil
}
