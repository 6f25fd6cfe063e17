package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalstat/vitalstat/internal/domain"
	"github.com/vitalstat/vitalstat/internal/platform/queue"
)

// echoRunner returns the submitted code as output, recording concurrency.
type echoRunner struct {
	mu      sync.Mutex
	active  int
	maxSeen int
}

func (r *echoRunner) Execute(ctx context.Context, req domain.ExecutionRequest) domain.ExecutionResult {
	r.mu.Lock()
	r.active++
	if r.active > r.maxSeen {
		r.maxSeen = r.active
	}
	r.mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	r.mu.Lock()
	r.active--
	r.mu.Unlock()
	return domain.ExecutionResult{Success: true, Output: req.Code, State: domain.StateCompleted}
}

func TestPoolProcessesJobs(t *testing.T) {
	broker := queue.NewMemoryBroker(8)
	runner := &echoRunner{}
	pool := NewPool(2, broker, runner)
	require.NoError(t, pool.Start(context.Background()))

	ctx := context.Background()
	resultCh := make(chan domain.ExecutionResult, 1)
	job := domain.Job{ID: "job-1", Request: domain.ExecutionRequest{Code: "analysis"}, ResultCh: resultCh}
	require.NoError(t, broker.Publish(ctx, job))

	select {
	case res := <-resultCh:
		assert.True(t, res.Success)
		assert.Equal(t, "analysis", res.Output)
	case <-time.After(time.Second):
		t.Fatal("job was not processed")
	}
	pool.Stop()
}

func TestPoolBroadcastsResults(t *testing.T) {
	broker := queue.NewMemoryBroker(8)
	pool := NewPool(1, broker, &echoRunner{})
	require.NoError(t, pool.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, err := broker.SubscribeResults(ctx)
	require.NoError(t, err)

	require.NoError(t, broker.Publish(ctx, domain.Job{ID: "observed", Request: domain.ExecutionRequest{Code: "x"}}))

	select {
	case update := <-updates:
		assert.Equal(t, "observed", update.JobID)
		assert.True(t, update.Result.Success)
	case <-time.After(time.Second):
		t.Fatal("result was not broadcast")
	}
	pool.Stop()
}

func TestPoolBoundsConcurrency(t *testing.T) {
	broker := queue.NewMemoryBroker(16)
	runner := &echoRunner{}
	pool := NewPool(2, broker, runner)
	require.NoError(t, pool.Start(context.Background()))

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, broker.Publish(ctx, domain.Job{
			ID:      fmt.Sprintf("job-%d", i),
			Request: domain.ExecutionRequest{Code: "x"},
		}))
	}
	pool.Stop()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.LessOrEqual(t, runner.maxSeen, 2)
	assert.Greater(t, runner.maxSeen, 0)
}

func TestPoolStopDrainsQueuedJobs(t *testing.T) {
	broker := queue.NewMemoryBroker(16)
	var processed sync.Map
	runner := &countingRunner{processed: &processed}
	pool := NewPool(3, broker, runner)
	require.NoError(t, pool.Start(context.Background()))

	ctx := context.Background()
	for i := 0; i < 8; i++ {
		require.NoError(t, broker.Publish(ctx, domain.Job{
			ID:      fmt.Sprintf("job-%d", i),
			Request: domain.ExecutionRequest{Code: fmt.Sprintf("job-%d", i)},
		}))
	}
	pool.Stop()

	count := 0
	processed.Range(func(_, _ any) bool { count++; return true })
	assert.Equal(t, 8, count)
}

type countingRunner struct {
	processed *sync.Map
}

func (r *countingRunner) Execute(ctx context.Context, req domain.ExecutionRequest) domain.ExecutionResult {
	r.processed.Store(req.Code, true)
	return domain.ExecutionResult{Success: true, State: domain.StateCompleted}
}
