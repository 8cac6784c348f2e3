package pause

import (
	"context"
	"sync"
)

// Pauser is a cooperative gate used to quiesce a service at well-defined
// checkpoints. TestPause is called at those checkpoints and blocks while the
// gate is paused; requests already past their checkpoint continue. After
// Pause returns, no new request body has progressed past its first
// checkpoint.
type Pauser struct {
	mu     sync.Mutex
	gateCh chan struct{}
	paused bool
}

// New creates a pauser in the resumed state
func New() *Pauser {
	gate := make(chan struct{})
	close(gate)
	return &Pauser{gateCh: gate}
}

// Pause closes the gate; subsequent TestPause calls block until Resume
func (p *Pauser) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		return
	}
	p.paused = true
	p.gateCh = make(chan struct{})
}

// Resume reopens the gate, releasing every blocked TestPause call
func (p *Pauser) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		return
	}
	p.paused = false
	close(p.gateCh)
}

// Paused reports whether the gate is currently closed
func (p *Pauser) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// TestPause blocks until the gate is open or the context is done
func (p *Pauser) TestPause(ctx context.Context) error {
	p.mu.Lock()
	gate := p.gateCh
	p.mu.Unlock()

	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
