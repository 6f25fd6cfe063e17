// Package worker runs queued executions on a fixed-size pool. Each job is
// an independent, isolated run; the pool only bounds how many execute at
// once.
package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vitalstat/vitalstat/internal/domain"
)

// Pool drains the broker's job stream with a fixed number of workers.
type Pool struct {
	workerCount int
	broker      domain.JobBroker
	runner      domain.CodeRunner
	wg          sync.WaitGroup
}

// NewPool initializes the pool with a fixed concurrency limit.
func NewPool(concurrency int, broker domain.JobBroker, runner domain.CodeRunner) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{workerCount: concurrency, broker: broker, runner: runner}
}

// Start spawns the workers and returns immediately.
func (p *Pool) Start(ctx context.Context) error {
	jobs, err := p.broker.Subscribe(ctx)
	if err != nil {
		return err
	}
	slog.Info("Starting worker pool", "concurrency", p.workerCount)
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i, jobs)
	}
	return nil
}

// Stop closes the broker and blocks until every in-flight job finishes.
func (p *Pool) Stop() {
	slog.Info("Stopping worker pool, draining queued jobs")
	p.broker.Close()
	p.wg.Wait()
	slog.Info("Worker pool stopped")
}

func (p *Pool) worker(ctx context.Context, id int, jobs <-chan domain.Job) {
	defer p.wg.Done()
	slog.Debug("Worker started", "workerID", id)

	for job := range jobs {
		slog.Debug("Processing job", "workerID", id, "jobID", job.ID)

		// The engine owns the per-run deadline; the pool's context only
		// carries shutdown.
		result := p.runner.Execute(ctx, job.Request)

		if job.ResultCh != nil {
			job.ResultCh <- result
		}
		if err := p.broker.Broadcast(ctx, domain.JobUpdate{JobID: job.ID, Result: result}); err != nil {
			slog.Error("Failed to broadcast result", "jobID", job.ID, "error", err)
		}
	}
	slog.Debug("Worker stopped", "workerID", id)
}
