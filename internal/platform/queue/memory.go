// Package queue provides the in-process job broker between the HTTP
// boundary and the worker pool. Executions are single-tenant and carry live
// result channels, so the broker is channel-backed rather than a network
// message bus.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vitalstat/vitalstat/internal/domain"
)

// MemoryBroker implements domain.JobBroker over buffered channels.
type MemoryBroker struct {
	jobs chan domain.Job

	mu     sync.Mutex
	subs   map[int]chan domain.JobUpdate
	nextID int
	closed bool
}

var _ domain.JobBroker = (*MemoryBroker)(nil)

// NewMemoryBroker returns a broker able to hold up to buffer queued jobs
// before Publish blocks.
func NewMemoryBroker(buffer int) *MemoryBroker {
	if buffer < 1 {
		buffer = 1
	}
	return &MemoryBroker{
		jobs: make(chan domain.Job, buffer),
		subs: make(map[int]chan domain.JobUpdate),
	}
}

// Publish enqueues a job for the worker pool.
func (b *MemoryBroker) Publish(ctx context.Context, job domain.Job) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return fmt.Errorf("broker is closed")
	}
	select {
	case b.jobs <- job:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish aborted: %w", ctx.Err())
	}
}

// Subscribe returns the job stream shared by all pool workers.
func (b *MemoryBroker) Subscribe(ctx context.Context) (<-chan domain.Job, error) {
	return b.jobs, nil
}

// Broadcast fans a finished job out to every result subscriber. A
// subscriber that cannot keep up misses the update; delivery to observers
// is best-effort by design, the job's own ResultCh is the reliable path.
func (b *MemoryBroker) Broadcast(ctx context.Context, update domain.JobUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- update:
		default:
			slog.Debug("Dropping result update for slow subscriber", "subscriber", id, "jobID", update.JobID)
		}
	}
	return nil
}

// SubscribeResults registers a result observer detached when ctx ends.
func (b *MemoryBroker) SubscribeResults(ctx context.Context) (<-chan domain.JobUpdate, error) {
	ch := make(chan domain.JobUpdate, 16)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// Close stops the broker: the job stream closes and the pool drains.
func (b *MemoryBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.jobs)
}
