package analyses

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bryanwahyu/automaton-cam/internal/domain/analysis"
)

func TestPoolRunsEveryJob(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p := NewPool(context.Background(), 3, 16, nil, nil)
	var done atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(analysis.NewID(), func(context.Context) {
			defer wg.Done()
			done.Add(1)
		}))
	}
	wg.Wait()
	require.NoError(t, p.Drain())
	assert.Equal(t, int32(10), done.Load())
	assert.ErrorIs(t, p.Submit(analysis.NewID(), func(context.Context) {}), ErrPoolClosed)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p := NewPool(context.Background(), 2, 8, nil, nil)
	var running, peak atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(analysis.NewID(), func(context.Context) {
			defer wg.Done()
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-release
			running.Add(-1)
		}))
	}
	require.Eventually(t, func() bool { return running.Load() == 2 }, 5*time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()
	require.NoError(t, p.Close())
	assert.Equal(t, int32(2), peak.Load())
}

func TestPoolQueueFull(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p := NewPool(context.Background(), 1, 1, nil, nil)
	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(analysis.NewID(), func(context.Context) { close(started); <-block }))
	<-started
	require.NoError(t, p.Submit(analysis.NewID(), func(context.Context) {}))
	assert.ErrorIs(t, p.Submit(analysis.NewID(), func(context.Context) {}), ErrQueueFull)
	close(block)
	require.NoError(t, p.Close())
}

func TestPoolCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p := NewPool(context.Background(), 1, 4, nil, nil)
	running, queued := analysis.NewID(), analysis.NewID()
	started := make(chan struct{})
	gotRunning := make(chan error, 1)
	gotQueued := make(chan error, 1)

	require.NoError(t, p.Submit(running, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		gotRunning <- ctx.Err()
	}))
	require.NoError(t, p.Submit(queued, func(ctx context.Context) { gotQueued <- ctx.Err() }))
	<-started

	assert.True(t, p.Cancel(queued))
	assert.True(t, p.Cancel(running))
	assert.ErrorIs(t, <-gotRunning, context.Canceled)
	assert.ErrorIs(t, <-gotQueued, context.Canceled)
	assert.False(t, p.Cancel(analysis.NewID()))
	require.NoError(t, p.Close())
}

func TestPoolCloseCancelsRunningWork(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p := NewPool(context.Background(), 1, 1, nil, nil)
	started := make(chan struct{})
	require.NoError(t, p.Submit(analysis.NewID(), func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	}))
	<-started
	require.NoError(t, p.Close())
}
