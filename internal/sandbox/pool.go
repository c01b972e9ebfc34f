package sandbox

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pool manages reusable runtimes built with the same config and extensions.
// Released runtimes are reset, so nothing a guest left behind survives into
// the next acquisition.
type Pool struct {
	config   Config
	opts     []Option
	runtimes chan *Runtime
	size     int
	logger   *zap.Logger
	mu       sync.RWMutex
	closed   bool
}

// PoolStats is a point-in-time view of a pool
type PoolStats struct {
	Size      int  `json:"size"`
	Available int  `json:"available"`
	InUse     int  `json:"in_use"`
	Closed    bool `json:"closed"`
}

// NewPool creates a pool of size runtimes
func NewPool(config Config, size int, opts ...Option) (*Pool, error) {
	if size <= 0 {
		size = 4
	}

	p := &Pool{
		config:   config,
		opts:     opts,
		runtimes: make(chan *Runtime, size),
		size:     size,
		logger:   zap.NewNop(),
	}

	for i := 0; i < size; i++ {
		rt, err := New(config, opts...)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.logger = rt.base
		p.runtimes <- rt
	}

	return p, nil
}

// Acquire takes a runtime, waiting up to the runtime timeout
func (p *Pool) Acquire(ctx context.Context) (*Runtime, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	wait := p.config.Timeout
	if wait <= 0 {
		wait = 5 * time.Second
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case rt := <-p.runtimes:
		return rt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, &TimeoutError{Op: "acquire", After: wait}
	}
}

// Release resets rt and returns it to the pool
func (p *Pool) Release(rt *Runtime) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return rt.Close()
	}

	if err := rt.Reset(); err != nil {
		rt.Close()
		p.logger.Warn("Replacing runtime after failed reset", zap.Error(err))
		if fresh, newErr := New(p.config, p.opts...); newErr == nil {
			p.runtimes <- fresh
		}
		return err
	}

	select {
	case p.runtimes <- rt:
		return nil
	default:
		return rt.Close()
	}
}

// Run acquires a runtime, passes it to fn and releases it afterwards.
// Values produced by the runtime must not escape fn.
func (p *Pool) Run(ctx context.Context, fn func(rt *Runtime) error) error {
	rt, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(rt)

	return fn(rt)
}

// Close closes the pool and every idle runtime
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	close(p.runtimes)

	for rt := range p.runtimes {
		rt.Close()
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
