package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrPoolClosed is returned by Acquire once the pool has been closed.
var ErrPoolClosed = errors.New("permit pool closed")

// Pool bounds how many captures may run at once.
type Pool struct {
	limit  int64
	sem    *semaphore.Weighted
	inUse  atomic.Int64
	closed chan struct{}

	closeOnce sync.Once
}

// Permit is the right to run one capture. Release is idempotent.
type Permit struct {
	pool     *Pool
	released atomic.Bool
}

// NewPool creates a Pool admitting at most limit concurrent holders.
func NewPool(limit int) (*Pool, error) {
	if limit < 1 {
		return nil, fmt.Errorf("permit limit must be >= 1, got %d", limit)
	}
	return &Pool{
		limit:  int64(limit),
		sem:    semaphore.NewWeighted(int64(limit)),
		closed: make(chan struct{}),
	}, nil
}

// Acquire blocks until a slot is free, the pool is closed, or ctx ends.
func (p *Pool) Acquire(ctx context.Context) (*Permit, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.closed:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if p.isClosed() {
			return nil, ErrPoolClosed
		}
		return nil, fmt.Errorf("acquire permit: %w", err)
	}
	if p.isClosed() {
		p.sem.Release(1)
		return nil, ErrPoolClosed
	}
	p.inUse.Add(1)
	return &Permit{pool: p}, nil
}

// Close fails all current and future waiters with ErrPoolClosed. Permits
// already held stay valid and must still be released.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
}

// InUse reports how many permits are currently held.
func (p *Pool) InUse() int {
	return int(p.inUse.Load())
}

// Limit returns the configured concurrency limit.
func (p *Pool) Limit() int {
	return int(p.limit)
}

func (p *Pool) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// Release returns the permit to its pool. Calls after the first are no-ops.
func (p *Permit) Release() {
	if p == nil || !p.released.CompareAndSwap(false, true) {
		return
	}
	p.pool.inUse.Add(-1)
	p.pool.sem.Release(1)
}
