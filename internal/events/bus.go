// Package events fans status-record updates out to live subscribers.
// The ledger stays the source of truth; the bus only saves websocket
// clients from polling.
package events

import (
	"sync"

	"github.com/joshlzx/starswap/internal/ledger"
)

// Bus is an in-process publish/subscribe hub keyed by swap session id.
// Slow subscribers drop updates rather than block the publisher; a
// dropped snapshot is superseded by the next one anyway.
type Bus struct {
	mu   sync.Mutex
	subs map[string]map[chan ledger.StatusRecord]struct{}
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[chan ledger.StatusRecord]struct{})}
}

// Publish delivers rec to every subscriber of id without blocking.
func (b *Bus) Publish(id string, rec ledger.StatusRecord) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[id] {
		select {
		case ch <- rec:
		default:
		}
	}
}

// Subscribe returns a channel of record snapshots for id and a cancel
// function that must be called when the subscriber goes away.
func (b *Bus) Subscribe(id string) (<-chan ledger.StatusRecord, func()) {
	ch := make(chan ledger.StatusRecord, 8)

	b.mu.Lock()
	if b.subs[id] == nil {
		b.subs[id] = make(map[chan ledger.StatusRecord]struct{})
	}
	b.subs[id][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[id]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(b.subs, id)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Subscribers reports the live subscriber count for id.
func (b *Bus) Subscribers(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[id])
}
