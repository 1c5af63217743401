package embeddings

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"
)

// Factory constructs an embedding service. Construction may be
// expensive (credentials check, model availability probe), so Lazy
// defers it to first use.
type Factory func() (Service, error)

// Lazy wraps a Service behind deferred, single-flight initialization.
// The wrapped service is built exactly once on first use and cached.
// Permanent construction failures are cached too, so every later call
// fails fast; transient failures are retried on the next call.
type Lazy struct {
	factory Factory

	mu      sync.Mutex
	svc     Service
	loadErr error
}

// NewLazy creates a lazily-initialized embedding service.
func NewLazy(factory Factory) *Lazy {
	return &Lazy{factory: factory}
}

// ensure builds the underlying service if needed.
func (l *Lazy) ensure() (Service, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.svc != nil {
		return l.svc, nil
	}
	if l.loadErr != nil {
		return nil, l.loadErr
	}

	log.Debug("Loading embedding service")
	svc, err := l.factory()
	if err != nil {
		var unavailable *UnavailableError
		if errors.As(err, &unavailable) && !unavailable.Transient {
			// Deployment problem; don't hammer the factory on every call.
			l.loadErr = err
		}
		return nil, err
	}

	l.svc = svc
	log.Debug("Embedding service ready", "provider", svc.Provider(), "model", svc.ModelName())
	return svc, nil
}

// Loaded reports whether the underlying service has been built.
func (l *Lazy) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.svc != nil
}

// Embed implements Service.
func (l *Lazy) Embed(ctx context.Context, text string) ([]float32, error) {
	svc, err := l.ensure()
	if err != nil {
		return nil, err
	}
	return svc.Embed(ctx, text)
}

// EmbedQuery implements Service.
func (l *Lazy) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	svc, err := l.ensure()
	if err != nil {
		return nil, err
	}
	return svc.EmbedQuery(ctx, text)
}

// EmbedBatch implements Service.
func (l *Lazy) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	svc, err := l.ensure()
	if err != nil {
		return nil, err
	}
	return svc.EmbedBatch(ctx, texts)
}

// Dimensions implements Service.
func (l *Lazy) Dimensions() int {
	svc, err := l.ensure()
	if err != nil {
		return 0
	}
	return svc.Dimensions()
}

// Provider implements Service.
func (l *Lazy) Provider() Provider {
	svc, err := l.ensure()
	if err != nil {
		return ""
	}
	return svc.Provider()
}

// ModelName implements Service.
func (l *Lazy) ModelName() string {
	svc, err := l.ensure()
	if err != nil {
		return ""
	}
	return svc.ModelName()
}
