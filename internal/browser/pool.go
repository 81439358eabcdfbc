package browser

import (
	"log/slog"
	"sync"
)

// Instance is what the pool manages: a page driver that can be shut
// down for good.
type Instance interface {
	Driver
	Close()
}

// Factory creates a fresh browser instance. Creation failures propagate
// to the acquiring caller; the pool never retries internally.
type Factory func() (Instance, error)

// Pool is a bounded pool of reusable browser sessions. The lock guards
// only pool membership: a session handed out is used exclusively by its
// borrower until released or discarded.
//
// With the default capacity of one, concurrent swap sessions serialize
// at acquisition and one session's long multi-page interaction directly
// stalls another's. That is deliberate: the portal rate-limits, and a
// single shared Chrome keeps the resource footprint bounded.
type Pool struct {
	mu      sync.Mutex
	idle    []Instance
	factory Factory

	created int
	leased  int
}

// PoolStats is a point-in-time snapshot for health reporting.
type PoolStats struct {
	Idle    int `json:"idle"`
	Leased  int `json:"leased"`
	Created int `json:"created"`
}

// NewPool returns an empty pool backed by factory.
func NewPool(factory Factory) *Pool {
	return &Pool{factory: factory}
}

// Warm pre-creates n idle sessions. Any creation failure aborts and
// propagates.
func (p *Pool) Warm(n int) error {
	for i := 0; i < n; i++ {
		inst, err := p.factory()
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.idle = append(p.idle, inst)
		p.created++
		p.mu.Unlock()
	}
	return nil
}

// Acquire returns an idle session if one exists, otherwise creates a
// new one synchronously. O(1) except for the cold-create path.
func (p *Pool) Acquire() (Instance, error) {
	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		inst := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.leased++
		p.mu.Unlock()
		return inst, nil
	}
	p.mu.Unlock()

	slog.Info("pool empty, creating browser session")
	inst, err := p.factory()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.created++
	p.leased++
	p.mu.Unlock()
	return inst, nil
}

// Release returns a session to the idle pool unconditionally. Callers
// that detect a fatal driver error must Discard instead.
func (p *Pool) Release(inst Instance) {
	if inst == nil {
		return
	}
	p.mu.Lock()
	p.idle = append(p.idle, inst)
	if p.leased > 0 {
		p.leased--
	}
	p.mu.Unlock()
}

// Discard closes a broken session without returning it to the pool.
func (p *Pool) Discard(inst Instance) {
	if inst == nil {
		return
	}
	p.mu.Lock()
	if p.leased > 0 {
		p.leased--
	}
	p.mu.Unlock()
	inst.Close()
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{Idle: len(p.idle), Leased: p.leased, Created: p.created}
}

// Close shuts down all idle sessions. Leased sessions are closed by
// their borrowers via Discard.
func (p *Pool) Close() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, inst := range idle {
		inst.Close()
	}
}
