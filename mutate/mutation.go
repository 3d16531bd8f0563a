package mutate

import (
	"context"
	"sync"
)

// Mutation is the per-operation write surface handed to UI collaborators:
// run it, poll whether it is running, and read its last error to decide
// whether to offer a retry action.
type Mutation[Args, Result any] struct {
	engine *Engine
	build  func(Args) Descriptor

	mu      sync.Mutex
	running bool
	err     error
}

// NewMutation binds an argument-to-descriptor builder to an engine.
func NewMutation[Args, Result any](engine *Engine, build func(Args) Descriptor) *Mutation[Args, Result] {
	return &Mutation[Args, Result]{engine: engine, build: build}
}

// Run executes the mutation with args.
func (m *Mutation[Args, Result]) Run(ctx context.Context, args Args) (Result, error) {
	m.mu.Lock()
	m.running = true
	m.err = nil
	m.mu.Unlock()

	out, err := m.engine.Run(ctx, m.build(args))

	m.mu.Lock()
	m.running = false
	m.err = err
	m.mu.Unlock()

	var result Result
	if err != nil {
		return result, err
	}
	result, _ = out.(Result)
	return result, nil
}

// IsRunning reports whether a run is in flight.
func (m *Mutation[Args, Result]) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Err returns the error of the most recent run, or nil.
func (m *Mutation[Args, Result]) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}
