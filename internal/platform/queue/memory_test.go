package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalstat/vitalstat/internal/domain"
)

func TestPublishSubscribeRoundTrip(t *testing.T) {
	b := NewMemoryBroker(4)
	defer b.Close()
	ctx := context.Background()

	jobs, err := b.Subscribe(ctx)
	require.NoError(t, err)

	want := domain.Job{ID: "job-1", Request: domain.ExecutionRequest{Code: "fmt.Println(1)"}}
	require.NoError(t, b.Publish(ctx, want))

	select {
	case got := <-jobs:
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Request.Code, got.Request.Code)
	case <-time.After(time.Second):
		t.Fatal("job was not delivered")
	}
}

func TestPublishAfterCloseFails(t *testing.T) {
	b := NewMemoryBroker(1)
	b.Close()
	err := b.Publish(context.Background(), domain.Job{ID: "late"})
	assert.Error(t, err)
}

func TestPublishHonorsContext(t *testing.T) {
	b := NewMemoryBroker(1)
	defer b.Close()
	ctx := context.Background()

	// Fill the buffer, then a cancelled publish must not block.
	require.NoError(t, b.Publish(ctx, domain.Job{ID: "first"}))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := b.Publish(cancelled, domain.Job{ID: "second"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	b := NewMemoryBroker(1)
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := b.SubscribeResults(ctx)
	require.NoError(t, err)
	second, err := b.SubscribeResults(ctx)
	require.NoError(t, err)

	update := domain.JobUpdate{JobID: "job-9", Result: domain.ExecutionResult{Success: true}}
	require.NoError(t, b.Broadcast(ctx, update))

	for _, ch := range []<-chan domain.JobUpdate{first, second} {
		select {
		case got := <-ch:
			assert.Equal(t, "job-9", got.JobID)
			assert.True(t, got.Result.Success)
		case <-time.After(time.Second):
			t.Fatal("update was not delivered")
		}
	}
}

func TestSubscribeResultsDetachesOnContextEnd(t *testing.T) {
	b := NewMemoryBroker(1)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	updates, err := b.SubscribeResults(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, open := <-updates:
		assert.False(t, open, "channel must close when the subscriber detaches")
	case <-time.After(time.Second):
		t.Fatal("channel did not close")
	}

	// Broadcasting afterwards must not panic or block.
	require.NoError(t, b.Broadcast(context.Background(), domain.JobUpdate{JobID: "after"}))
}

func TestCloseIsIdempotent(t *testing.T) {
	b := NewMemoryBroker(1)
	b.Close()
	assert.NotPanics(t, func() { b.Close() })
}
