package analyses

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/automaton-cam/internal/domain/analysis"
)

var (
	ErrQueueFull  = errors.New("analysis queue is full")
	ErrPoolClosed = errors.New("analysis pool is closed")
)

type job struct {
	id  analysis.ID
	ctx context.Context
	run func(ctx context.Context)
}

// Pool runs analyses on a fixed number of workers. Each job gets its own
// context so it can be cancelled by analysis id while queued or running.
type Pool struct {
	ctx     context.Context
	stop    context.CancelFunc
	jobs    chan job
	g       *errgroup.Group
	log     *zap.Logger
	onDepth func(int)

	mu      sync.Mutex
	closed  bool
	cancels map[analysis.ID]context.CancelFunc
}

// NewPool starts workers that live until Close or until ctx is cancelled
func NewPool(ctx context.Context, workers, queueSize int, log *zap.Logger, onDepth func(int)) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	if onDepth == nil {
		onDepth = func(int) {}
	}
	pctx, stop := context.WithCancel(ctx)
	p := &Pool{
		ctx:     pctx,
		stop:    stop,
		jobs:    make(chan job, queueSize),
		g:       &errgroup.Group{},
		log:     log,
		onDepth: onDepth,
		cancels: map[analysis.ID]context.CancelFunc{},
	}
	for i := 0; i < workers; i++ {
		p.g.Go(p.work)
	}
	return p
}

func (p *Pool) work() error {
	for j := range p.jobs {
		p.onDepth(len(p.jobs))
		j.run(j.ctx)
		p.release(j.id)
	}
	return nil
}

func (p *Pool) release(id analysis.ID) {
	p.mu.Lock()
	cancel, ok := p.cancels[id]
	delete(p.cancels, id)
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

// Submit queues run without blocking. It fails with ErrQueueFull when every
// slot is taken.
func (p *Pool) Submit(id analysis.ID, run func(ctx context.Context)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	ctx, cancel := context.WithCancel(p.ctx)
	select {
	case p.jobs <- job{id: id, ctx: ctx, run: run}:
		p.cancels[id] = cancel
		p.onDepth(len(p.jobs))
		return nil
	default:
		cancel()
		return ErrQueueFull
	}
}

// Cancel cancels a queued or running job. It reports false when the pool
// does not hold the job.
func (p *Pool) Cancel(id analysis.ID) bool {
	p.mu.Lock()
	cancel, ok := p.cancels[id]
	p.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Close stops accepting work, cancels whatever is still queued or running and
// waits for the workers to return
func (p *Pool) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.stop()
	err := p.g.Wait()
	p.log.Info("analysis pool stopped")
	return err
}

// Drain stops accepting work and waits for queued jobs to finish normally
func (p *Pool) Drain() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	err := p.g.Wait()
	p.stop()
	return err
}
