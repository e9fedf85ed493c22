package classification

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSession struct {
	output    []float32
	err       error
	destroyed atomic.Bool
	lastInput []float32
}

func (f *fakeSession) Run(input []float32) ([]float32, error) {
	f.lastInput = input
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

func (f *fakeSession) Destroy() { f.destroyed.Store(true) }

func newFakePool(t *testing.T, size int, timeout time.Duration, sessions ...*fakeSession) *SessionPool {
	t.Helper()
	i := 0
	pool, err := newSessionPool(size, timeout, func() (session, error) {
		s := sessions[i]
		i++
		return s, nil
	})
	if err != nil {
		t.Fatalf("newSessionPool: %v", err)
	}
	return pool
}

func TestSessionPoolAcquireRelease(t *testing.T) {
	s := &fakeSession{}
	pool := newFakePool(t, 1, time.Second, s)
	defer pool.Destroy()

	got, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got != s {
		t.Fatal("expected the pooled session")
	}
	if stats := pool.Stats(); stats.InUse != 1 || stats.TotalAcquired != 1 {
		t.Fatalf("unexpected stats after acquire: %+v", stats)
	}

	pool.Release(got)
	stats := pool.Stats()
	if stats.InUse != 0 || stats.TotalReleased != 1 || stats.Size != 1 {
		t.Fatalf("unexpected stats after release: %+v", stats)
	}
}

func TestSessionPoolAcquireTimeout(t *testing.T) {
	pool := newFakePool(t, 1, 20*time.Millisecond, &fakeSession{})
	defer pool.Destroy()

	held, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer pool.Release(held)

	_, err = pool.Acquire(context.Background())
	if !errors.Is(err, ErrAcquireTimeout) {
		t.Fatalf("expected ErrAcquireTimeout, got %v", err)
	}
	if pool.Stats().AcquireFailures != 1 {
		t.Fatalf("expected one acquire failure, got %d", pool.Stats().AcquireFailures)
	}
}

func TestSessionPoolAcquireCancelled(t *testing.T) {
	pool := newFakePool(t, 1, time.Minute, &fakeSession{})
	defer pool.Destroy()

	held, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer pool.Release(held)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pool.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSessionPoolDestroy(t *testing.T) {
	idle := &fakeSession{}
	busy := &fakeSession{}
	pool := newFakePool(t, 2, time.Second, busy, idle)

	held, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	pool.Destroy()
	pool.Destroy()

	if _, err := pool.Acquire(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}

	pool.Release(held)
	if !idle.destroyed.Load() || !busy.destroyed.Load() {
		t.Fatal("expected every session to be destroyed")
	}
}

func TestNewSessionPoolDestroysOnFactoryError(t *testing.T) {
	first := &fakeSession{}
	calls := 0
	_, err := newSessionPool(2, time.Second, func() (session, error) {
		calls++
		if calls == 1 {
			return first, nil
		}
		return nil, errors.New("no memory")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !first.destroyed.Load() {
		t.Fatal("expected the created session to be destroyed")
	}
}

func TestPooledEngineRun(t *testing.T) {
	spec := InputSpec{Size: Size{Width: 2, Height: 2}, Layout: NHWC}
	s := &fakeSession{output: []float32{0.9}}
	engine := newPooledEngine(spec, 1, newFakePool(t, 1, time.Second, s))
	defer engine.Close()

	out, err := engine.Run(context.Background(), &Tensor{Data: make([]float32, spec.Elements())})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out) != 1 || out[0] != 0.9 {
		t.Fatalf("out = %v", out)
	}
	if len(s.lastInput) != spec.Elements() {
		t.Fatalf("session saw %d values", len(s.lastInput))
	}
	if engine.Stats().InUse != 0 {
		t.Fatal("session should be released after Run")
	}
}

func TestPooledEngineRunErrors(t *testing.T) {
	spec := InputSpec{Size: Size{Width: 2, Height: 2}, Layout: NHWC}

	t.Run("wrong input size", func(t *testing.T) {
		engine := newPooledEngine(spec, 1, newFakePool(t, 1, time.Second, &fakeSession{}))
		defer engine.Close()
		_, err := engine.Run(context.Background(), &Tensor{Data: make([]float32, 3)})
		if KindOf(err) != KindInference {
			t.Fatalf("kind = %v, want %v", KindOf(err), KindInference)
		}
	})

	t.Run("session failure", func(t *testing.T) {
		engine := newPooledEngine(spec, 1, newFakePool(t, 1, time.Second, &fakeSession{err: errors.New("bad node")}))
		defer engine.Close()
		_, err := engine.Run(context.Background(), &Tensor{Data: make([]float32, spec.Elements())})
		if KindOf(err) != KindInference {
			t.Fatalf("kind = %v, want %v", KindOf(err), KindInference)
		}
		if err.Error() != "inference failed: bad node" {
			t.Fatalf("message = %q", err.Error())
		}
	})

	t.Run("busy", func(t *testing.T) {
		pool := newFakePool(t, 1, 10*time.Millisecond, &fakeSession{})
		engine := newPooledEngine(spec, 1, pool)
		defer engine.Close()
		held, err := pool.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		defer pool.Release(held)

		_, err = engine.Run(context.Background(), &Tensor{Data: make([]float32, spec.Elements())})
		if KindOf(err) != KindBusy {
			t.Fatalf("kind = %v, want %v", KindOf(err), KindBusy)
		}
	})
}
