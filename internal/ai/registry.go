package ai

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

var ErrUnknownSource = errors.New("unknown summary source")

type SourceFactory func(ctx context.Context) (Source, error)

// Registry maps backend names to factories; the process picks one at startup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]SourceFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]SourceFactory)}
}

func (r *Registry) Register(name string, f SourceFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(ctx context.Context, name string) (Source, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	return f(ctx)
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
