// Package orch owns the lifecycle of one swap session: lease a browser
// session, authenticate, make passes over the pending swaps until all
// succeed, the time budget expires, or the run is stopped, and keep the
// ledger current after every attempt.
package orch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/joshlzx/starswap/internal/browser"
	"github.com/joshlzx/starswap/internal/events"
	"github.com/joshlzx/starswap/internal/ledger"
	"github.com/joshlzx/starswap/internal/portal"
)

// Credentials authenticate one portal login. They live only in process
// memory for the duration of the run and never reach the ledger.
type Credentials struct {
	Username string
	Password string
}

// SwapItem is one requested module swap. Swapped moves false->true once
// and is never reset.
type SwapItem struct {
	OldIndex   string
	NewIndexes []string
	Swapped    bool
}

// Config bounds a run.
type Config struct {
	// TimeBudget is the wall-clock ceiling for a whole run. Default 2h.
	TimeBudget time.Duration

	// PassInterval is the sleep between passes. Vacancies on the portal
	// change slowly, and tight polling would hog the shared browser and
	// invite rate-limiting. Default 5m.
	PassInterval time.Duration

	// RecoveryLimit caps session replacements for a single candidate
	// within one pass before the candidate is counted as failed.
	RecoveryLimit int

	// Portal configures the state machines.
	Portal portal.Config
}

// DefaultConfig returns production run bounds.
func DefaultConfig() Config {
	return Config{
		TimeBudget:    2 * time.Hour,
		PassInterval:  5 * time.Minute,
		RecoveryLimit: 3,
		Portal:        portal.DefaultConfig(),
	}
}

// attemptFunc and loginFunc let tests replace the real state machines.
type attemptFunc func(drv browser.Driver, cfg portal.Config, oldIndex, newIndex string, progress portal.ProgressFunc) portal.Result
type loginFunc func(drv browser.Driver, cfg portal.Config, username, password string) error

// Orchestrator runs swap sessions against a shared browser pool.
type Orchestrator struct {
	pool    *browser.Pool
	ledger  *ledger.Ledger
	bus     *events.Bus
	clock   Clock
	attempt attemptFunc
	login   loginFunc

	mu  sync.RWMutex
	cfg Config
}

// UpdatePortal swaps the portal configuration used by subsequent logins
// and attempts. In-flight state machine steps finish on the old one.
func (o *Orchestrator) UpdatePortal(p portal.Config) {
	o.mu.Lock()
	o.cfg.Portal = p
	o.mu.Unlock()
}

func (o *Orchestrator) portalConfig() portal.Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg.Portal
}

// New returns an orchestrator. bus may be nil when no live stream is
// wanted.
func New(pool *browser.Pool, led *ledger.Ledger, bus *events.Bus, cfg Config) *Orchestrator {
	return &Orchestrator{
		pool:    pool,
		ledger:  led,
		bus:     bus,
		cfg:     cfg,
		clock:   NewClock(),
		attempt: portal.AttemptSwap,
		login:   portal.Login,
	}
}

// Run drives the session identified by id to a terminal status. It is
// intended to run on its own goroutine; every failure is downgraded
// into the ledger, nothing panics out. The held browser session is
// always returned to the pool, and a session known to be broken is
// discarded instead.
func (o *Orchestrator) Run(ctx context.Context, id string, creds Credentials, items []SwapItem) {
	var sess browser.Instance
	defer func() {
		if sess != nil {
			o.pool.Release(sess)
		}
	}()

	sess, err := o.pool.Acquire()
	if err != nil {
		o.fail(id, fmt.Sprintf("An error occurred: %v", err))
		return
	}

	if err := o.login(sess, o.portalConfig(), creds.Username, creds.Password); err != nil {
		if browser.IsSessionDead(err) {
			o.pool.Discard(sess)
			sess = nil
			o.fail(id, "An error occurred: browser session died during login.")
			return
		}
		o.fail(id, err.Error())
		return
	}

	start := o.clock.Now()
	for pass := 1; ; pass++ {
		if ctx.Err() != nil {
			slog.Info("run cancelled", "swap_id", id, "pass", pass)
			return
		}
		if o.clock.Now().Sub(start) >= o.cfg.TimeBudget {
			o.finish(id, ledger.StatusTimedOut, "Time limit reached before completing the swap.")
			return
		}

		for idx := range items {
			item := &items[idx]
			if item.Swapped {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			next, stop := o.runItem(ctx, id, idx, item, creds, sess)
			sess = next
			if stop {
				return
			}
		}

		if allSwapped(items) {
			o.finish(id, ledger.StatusCompleted, "All modules have been successfully swapped.")
			return
		}

		slog.Info("pass complete, sleeping", "swap_id", id, "pass", pass, "interval", o.cfg.PassInterval)
		if err := o.clock.Sleep(ctx, o.cfg.PassInterval); err != nil {
			slog.Info("run cancelled during sleep", "swap_id", id)
			return
		}
	}
}

// runItem iterates one item's candidate indexes in the supplied order,
// first success wins. It returns the (possibly replaced) session and
// whether the whole run must end.
func (o *Orchestrator) runItem(ctx context.Context, id string, idx int, item *SwapItem, creds Credentials, sess browser.Instance) (browser.Instance, bool) {
	progress := func(message string, success bool) {
		o.updateDetail(id, idx, message, success)
	}

	var failed []string
	recoveries := 0

	for ci := 0; ci < len(item.NewIndexes); {
		if ctx.Err() != nil {
			return sess, false
		}
		candidate := item.NewIndexes[ci]
		res := o.attempt(sess, o.portalConfig(), item.OldIndex, candidate, progress)

		switch res.Outcome {
		case portal.OutcomeSuccess:
			item.Swapped = true
			o.updateDetail(id, idx,
				fmt.Sprintf("Successfully swapped index %s to %s.", item.OldIndex, candidate), true)
			return sess, false

		case portal.OutcomeRetry:
			failed = append(failed, candidate)
			ci++

		case portal.OutcomeOldIndexMissing:
			// Permanent for this module: no candidate can work while
			// the enrolled index is not on the listing page. The run
			// keeps going for the other modules.
			o.updateOverall(id, ledger.StatusError, res.Message)
			return sess, false

		case portal.OutcomePortalClosed:
			o.finish(id, ledger.StatusError, res.Message)
			return sess, true

		case portal.OutcomeSessionDead:
			o.updateDetail(id, idx, res.Message, false)
			replacement, err := o.replaceSession(id, sess, creds)
			if err != nil {
				return nil, true
			}
			sess = replacement
			recoveries++
			if recoveries > o.cfg.RecoveryLimit {
				failed = append(failed, candidate)
				ci++
			}
			// Otherwise retry the same candidate on the new session.
		}
	}

	if !item.Swapped && len(failed) > 0 {
		o.updateDetail(id, idx,
			fmt.Sprintf("Index %s have no vacancies.", strings.Join(failed, ", ")), false)
	}
	return sess, false
}

// replaceSession discards a dead session, leases a fresh one and
// re-authenticates. Failure to do either is terminal for the run (the
// ledger is updated and nil is returned).
func (o *Orchestrator) replaceSession(id string, dead browser.Instance, creds Credentials) (browser.Instance, error) {
	slog.Warn("replacing dead browser session", "swap_id", id)
	o.pool.Discard(dead)

	sess, err := o.pool.Acquire()
	if err != nil {
		o.fail(id, fmt.Sprintf("An error occurred: %v", err))
		return nil, err
	}
	if err := o.login(sess, o.portalConfig(), creds.Username, creds.Password); err != nil {
		if browser.IsSessionDead(err) {
			o.pool.Discard(sess)
		} else {
			o.pool.Release(sess)
		}
		o.fail(id, err.Error())
		return nil, err
	}
	return sess, nil
}

func allSwapped(items []SwapItem) bool {
	for i := range items {
		if !items[i].Swapped {
			return false
		}
	}
	return true
}

func (o *Orchestrator) updateDetail(id string, idx int, message string, success bool) {
	if err := o.ledger.UpdateDetail(id, idx, message, success); err != nil {
		slog.Error("detail update failed", "swap_id", id, "idx", idx, "error", err)
	}
	o.bus.Publish(id, o.ledger.Read(id))
}

func (o *Orchestrator) updateOverall(id string, status ledger.Status, message string) {
	if err := o.ledger.UpdateOverall(id, status, message); err != nil {
		slog.Error("overall update failed", "swap_id", id, "error", err)
	}
	o.bus.Publish(id, o.ledger.Read(id))
}

func (o *Orchestrator) finish(id string, status ledger.Status, message string) {
	slog.Info("run finished", "swap_id", id, "status", status, "message", message)
	o.updateOverall(id, status, message)
}

func (o *Orchestrator) fail(id, message string) {
	slog.Error("run failed", "swap_id", id, "message", message)
	o.updateOverall(id, ledger.StatusError, message)
}
