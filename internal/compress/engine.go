package compress

import (
	"context"
	"sync"
)

// EncodeRequest describes one compression pass.
type EncodeRequest struct {
	InputPath  string
	OutputPath string
	Rung       Rung
	// DurationSeconds drives percentage math; zero disables progress.
	DurationSeconds float64
	// OnProgress receives monotonic percentages in [0,100]. Advisory.
	OnProgress func(percent float64)
}

// Engine performs one encode pass. Production uses ffmpeg; tests
// inject fakes.
type Engine interface {
	Encode(ctx context.Context, req EncodeRequest) error
	// Available reports whether the engine can run at all.
	Available() bool
}

// EngineRef shares one lazily-constructed engine between concurrent
// pipeline items. The constructor runs on first Acquire; Release is
// counted so shutdown hooks know when the engine is idle.
type EngineRef struct {
	construct func() (Engine, error)

	mu     sync.Mutex
	engine Engine
	err    error
	refs   int
}

func NewEngineRef(construct func() (Engine, error)) *EngineRef {
	return &EngineRef{construct: construct}
}

// Acquire returns the shared engine, constructing it on first use.
func (r *EngineRef) Acquire() (Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.engine == nil && r.err == nil {
		r.engine, r.err = r.construct()
	}
	if r.err != nil {
		return nil, r.err
	}
	r.refs++
	return r.engine, nil
}

// Release drops one reference.
func (r *EngineRef) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refs > 0 {
		r.refs--
	}
}

// Idle reports whether no acquired references remain.
func (r *EngineRef) Idle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs == 0
}
