package sandbox

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrPoolClosed     = errors.New("sandbox pool is closed")
	ErrAcquireTimeout = errors.New("sandbox acquisition timeout")
)

// DefaultAcquireTimeout bounds how long Acquire waits for a free runtime
const DefaultAcquireTimeout = 5 * time.Second

// Pool manages a fixed set of reusable runtimes
type Pool struct {
	config    Config
	runtimes  chan *Runtime
	size      int
	acquireTO time.Duration
	mu        sync.RWMutex
	closed    bool
}

// PoolStats describes pool occupancy
type PoolStats struct {
	Size      int  `json:"size"`
	Available int  `json:"available"`
	InUse     int  `json:"in_use"`
	Closed    bool `json:"closed"`
}

// NewPool creates a pool of size runtimes sharing config
func NewPool(config Config, size int) (*Pool, error) {
	if size <= 0 {
		size = 4
	}

	pool := &Pool{
		config:    config,
		runtimes:  make(chan *Runtime, size),
		size:      size,
		acquireTO: DefaultAcquireTimeout,
	}

	for i := 0; i < size; i++ {
		rt, err := NewRuntime(config)
		if err != nil {
			pool.Close()
			return nil, err
		}
		pool.runtimes <- rt
	}

	return pool, nil
}

// Acquire takes a runtime from the pool, waiting up to the acquire timeout
func (p *Pool) Acquire(ctx context.Context) (*Runtime, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	timer := time.NewTimer(p.acquireTO)
	defer timer.Stop()

	select {
	case rt := <-p.runtimes:
		return rt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrAcquireTimeout
	}
}

// Release returns rt to the pool. Live contexts are disposed; a disposed
// runtime is replaced with a fresh one.
func (p *Pool) Release(rt *Runtime) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		rt.Dispose()
		return nil
	}

	if rt.Disposed() {
		fresh, err := NewRuntime(p.config)
		if err != nil {
			return err
		}
		rt = fresh
	} else {
		rt.Reset()
	}

	select {
	case p.runtimes <- rt:
		return nil
	default:
		// Not ours, pool already full
		rt.Dispose()
		return nil
	}
}

// Eval runs code in a fresh context of a pooled runtime
func (p *Pool) Eval(ctx context.Context, code string) (Value, error) {
	rt, err := p.Acquire(ctx)
	if err != nil {
		return Value{}, err
	}
	defer p.Release(rt)

	c, err := rt.CreateContext()
	if err != nil {
		return Value{}, err
	}
	defer c.Dispose()

	return c.EvalContext(ctx, code)
}

// Close disposes every pooled runtime. Runtimes checked out at the time are
// disposed when released.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	close(p.runtimes)

	for rt := range p.runtimes {
		rt.Dispose()
	}

	return nil
}

// Stats returns pool statistics
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return PoolStats{
		Size:      p.size,
		Available: len(p.runtimes),
		InUse:     p.size - len(p.runtimes),
		Closed:    p.closed,
	}
}
