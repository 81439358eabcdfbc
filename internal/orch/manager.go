package orch

import (
	"context"
	"sync"

	"github.com/joshlzx/starswap/internal/portal"
)

// Manager tracks running swap sessions so an explicit stop can cancel
// the worker instead of merely being observed by the polling client.
type Manager struct {
	orch *Orchestrator

	mu   sync.Mutex
	runs map[string]context.CancelFunc
}

// NewManager returns a manager dispatching runs onto orch.
func NewManager(orch *Orchestrator) *Manager {
	return &Manager{orch: orch, runs: make(map[string]context.CancelFunc)}
}

// Start launches the run for id on its own goroutine, decoupled from
// the request that created it. Start returns immediately; progress is
// observable only through the ledger.
func (m *Manager) Start(id string, creds Credentials, items []SwapItem) {
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.runs[id] = cancel
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.runs, id)
			m.mu.Unlock()
			cancel()
		}()
		m.orch.Run(ctx, id, creds, items)
	}()
}

// Stop cancels the run for id if one is active and reports whether it
// was.
func (m *Manager) Stop(id string) bool {
	m.mu.Lock()
	cancel, ok := m.runs[id]
	m.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// UpdatePortal forwards a portal configuration change to the
// orchestrator, affecting subsequent logins and attempts.
func (m *Manager) UpdatePortal(p portal.Config) {
	m.orch.UpdatePortal(p)
}

// Active returns the number of in-flight runs.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}
