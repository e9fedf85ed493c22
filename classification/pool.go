package classification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultPoolSize of one keeps inference strictly sequential.
	DefaultPoolSize       = 1
	DefaultAcquireTimeout = 30 * time.Second
)

var (
	ErrPoolClosed     = errors.New("session pool is closed")
	ErrAcquireTimeout = errors.New("timeout waiting for available session")
)

// session is one inference session with its bound input and output buffers.
type session interface {
	Run(input []float32) ([]float32, error)
	Destroy()
}

type SessionPool struct {
	sessions       chan session
	size           int
	acquireTimeout time.Duration
	mu             sync.Mutex
	closed         bool
	metrics        *poolMetrics
}

type poolMetrics struct {
	mu              sync.RWMutex
	inUse           int
	totalAcquired   int64
	totalReleased   int64
	acquireFailures int64
	waitTime        time.Duration
}

// PoolStats is a point-in-time snapshot of pool usage.
type PoolStats struct {
	Size            int
	InUse           int
	TotalAcquired   int64
	TotalReleased   int64
	AcquireFailures int64
	WaitTime        time.Duration
}

func newSessionPool(size int, acquireTimeout time.Duration, factory func() (session, error)) (*SessionPool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if acquireTimeout <= 0 {
		acquireTimeout = DefaultAcquireTimeout
	}

	pool := &SessionPool{
		sessions:       make(chan session, size),
		size:           size,
		acquireTimeout: acquireTimeout,
		metrics:        &poolMetrics{},
	}

	for i := 0; i < size; i++ {
		s, err := factory()
		if err != nil {
			pool.Destroy()
			return nil, fmt.Errorf("failed to initialize session %d: %w", i, err)
		}
		pool.sessions <- s
	}

	return pool, nil
}

func (p *SessionPool) Acquire(ctx context.Context) (session, error) {
	start := time.Now()
	defer func() {
		p.metrics.mu.Lock()
		p.metrics.waitTime += time.Since(start)
		p.metrics.mu.Unlock()
	}()

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case s, ok := <-p.sessions:
		if !ok {
			return nil, ErrPoolClosed
		}
		p.metrics.mu.Lock()
		p.metrics.inUse++
		p.metrics.totalAcquired++
		p.metrics.mu.Unlock()
		return s, nil
	case <-timer.C:
		p.recordFailure()
		return nil, ErrAcquireTimeout
	case <-ctx.Done():
		p.recordFailure()
		return nil, ctx.Err()
	}
}

func (p *SessionPool) Release(s session) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.totalReleased++
	p.metrics.mu.Unlock()

	if p.closed {
		s.Destroy()
		return
	}
	p.sessions <- s
}

func (p *SessionPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.sessions)

	for s := range p.sessions {
		s.Destroy()
	}
}

func (p *SessionPool) recordFailure() {
	p.metrics.mu.Lock()
	p.metrics.acquireFailures++
	p.metrics.mu.Unlock()
}

func (p *SessionPool) Stats() PoolStats {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()
	return PoolStats{
		Size:            p.size,
		InUse:           p.metrics.inUse,
		TotalAcquired:   p.metrics.totalAcquired,
		TotalReleased:   p.metrics.totalReleased,
		AcquireFailures: p.metrics.acquireFailures,
		WaitTime:        p.metrics.waitTime,
	}
}

// pooledEngine runs tensors on sessions borrowed from a SessionPool.
type pooledEngine struct {
	input      InputSpec
	outputSize int
	pool       *SessionPool
}

func newPooledEngine(input InputSpec, outputSize int, pool *SessionPool) *pooledEngine {
	return &pooledEngine{input: input, outputSize: outputSize, pool: pool}
}

func (e *pooledEngine) Input() InputSpec { return e.input }

func (e *pooledEngine) OutputSize() int { return e.outputSize }

func (e *pooledEngine) Stats() PoolStats { return e.pool.Stats() }

func (e *pooledEngine) Close() { e.pool.Destroy() }

func (e *pooledEngine) Run(ctx context.Context, t *Tensor) ([]float32, error) {
	if want := e.input.Elements(); len(t.Data) != want {
		return nil, newError(KindInference, "engine.run",
			fmt.Errorf("input has %d values, model expects %d", len(t.Data), want))
	}

	s, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, newError(KindBusy, "engine.acquire", err)
	}
	defer e.pool.Release(s)

	out, err := s.Run(t.Data)
	if err != nil {
		return nil, newError(KindInference, "engine.run", fmt.Errorf("inference failed: %w", err))
	}
	return out, nil
}
