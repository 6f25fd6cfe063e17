package domain

import "context"

// Job is one queued execution. ResultCh, when set, receives the result
// exactly once; it is send-only so workers cannot read it back.
type Job struct {
	ID      string           `json:"id"`
	Request ExecutionRequest `json:"request"`

	ResultCh chan<- ExecutionResult `json:"-"`
}

// JobUpdate is a finished job's result, fanned out to observers such as the
// websocket feed.
type JobUpdate struct {
	JobID  string          `json:"job_id"`
	Result ExecutionResult `json:"result"`
}

// JobBroker decouples submission from execution. The implementation is
// in-process: the system is single-tenant and jobs carry live channels.
type JobBroker interface {
	// Publish enqueues a job for the worker pool. It fails once the broker
	// is closed or the context is done.
	Publish(ctx context.Context, job Job) error

	// Subscribe returns the stream of queued jobs. The channel closes when
	// the broker shuts down.
	Subscribe(ctx context.Context) (<-chan Job, error)

	// Broadcast fans a finished job out to all result subscribers. Slow
	// subscribers are skipped, never blocked on.
	Broadcast(ctx context.Context, update JobUpdate) error

	// SubscribeResults returns a stream of broadcast results. The stream is
	// detached when ctx is done.
	SubscribeResults(ctx context.Context) (<-chan JobUpdate, error)

	// Close stops the broker and closes the job stream.
	Close()
}
