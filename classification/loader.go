package classification

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Engine is a loaded model that can run one example at a time per session.
type Engine interface {
	Input() InputSpec
	OutputSize() int
	Run(ctx context.Context, t *Tensor) ([]float32, error)
	Stats() PoolStats
	Close()
}

// OpenFunc deserializes the model at path into an Engine.
type OpenFunc func(path string) (Engine, error)

// Loader owns the process-wide model handle. The handle is created on the
// first successful Ensure and never replaced afterwards; a failed load leaves
// it empty so a later call can try again.
type Loader struct {
	path   string
	open   OpenFunc
	logger *zap.Logger

	mu     sync.Mutex
	engine Engine
}

func NewLoader(path string, open OpenFunc, logger *zap.Logger) *Loader {
	return &Loader{
		path:   path,
		open:   open,
		logger: logger.Named("model_loader"),
	}
}

// Ensure returns the cached engine, loading it on first use.
func (l *Loader) Ensure(ctx context.Context) (Engine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.engine != nil {
		return l.engine, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, newError(KindModelLoad, "loader.ensure", err)
	}

	if _, err := os.Stat(l.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.logger.Error("model file missing", zap.String("path", l.path))
			return nil, modelNotFound(l.path)
		}
		return nil, newError(KindModelLoad, "loader.stat", err)
	}

	start := time.Now()
	engine, err := l.open(l.path)
	if err != nil {
		if KindOf(err) == KindUnknown {
			err = newError(KindModelLoad, "loader.open", err)
		}
		l.logger.Error("failed to load model", zap.String("path", l.path), zap.Error(err))
		return nil, err
	}

	l.engine = engine
	input := engine.Input()
	l.logger.Info("model loaded",
		zap.String("path", l.path),
		zap.Duration("took", time.Since(start)),
		zap.Int("input_width", input.Size.Width),
		zap.Int("input_height", input.Size.Height),
		zap.Stringer("layout", input.Layout),
		zap.Bool("size_from_model", input.FromModel),
		zap.Int("outputs", engine.OutputSize()),
	)
	return engine, nil
}

// Loaded reports whether the model has been loaded, without loading it.
func (l *Loader) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine != nil
}

// Engine returns the loaded engine or nil.
func (l *Loader) Engine() Engine {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine
}

func (l *Loader) Path() string {
	return l.path
}

// Close releases the engine at process exit.
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.engine != nil {
		l.engine.Close()
	}
}
