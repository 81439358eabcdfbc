// Package ledger persists the externally visible progress record for a
// swap session. The record is the only thing the polling client ever
// sees; everything below the orchestrator is downgraded into it.
package ledger

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Status is the overall state of a swap session.
type Status string

const (
	// StatusIdle is the default for an absent or deleted record.
	StatusIdle Status = "Idle"

	// StatusProcessing means the orchestrator is still making passes.
	StatusProcessing Status = "Processing"

	// StatusCompleted means every requested swap succeeded.
	StatusCompleted Status = "Completed"

	// StatusTimedOut means the time budget expired with swaps pending.
	StatusTimedOut Status = "Timed Out"

	// StatusStopped means the client explicitly stopped the session.
	StatusStopped Status = "Stopped"

	// StatusError means the session hit a terminal failure.
	StatusError Status = "Error"
)

// Terminal reports whether no further mutation of the record may occur.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusTimedOut, StatusStopped, StatusError:
		return true
	}
	return false
}

// DetailEntry is the per-module progress line. Details[i] corresponds
// positionally to the i-th requested module swap and is never reordered
// or removed individually.
type DetailEntry struct {
	OldIndex   string `json:"old_index"`
	NewIndexes string `json:"new_indexes"`
	Swapped    bool   `json:"swapped"`
	Message    string `json:"message"`
}

// StatusRecord is the full progress record for one swap session.
type StatusRecord struct {
	Status  Status        `json:"status"`
	Details []DetailEntry `json:"details"`
	Message *string       `json:"message"`
}

// DefaultRecord is what a poll on an absent or deleted key returns.
func DefaultRecord() StatusRecord {
	return StatusRecord{Status: StatusIdle, Details: []DetailEntry{}}
}

// errorRecord substitutes for a stored value that failed to decode.
func errorRecord() StatusRecord {
	msg := "Error retrieving status data"
	return StatusRecord{Status: StatusError, Details: []DetailEntry{}, Message: &msg}
}

// Store is the external key-value capability the ledger sits on:
// get/set/delete by string key, atomic last-writer-wins overwrite.
type Store interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// Ledger reads and writes StatusRecords keyed by swap session id.
//
// The read-modify-write helpers are not atomic against a second
// concurrent writer to the same id; one id has one owning worker, so
// the store's native per-key atomicity is enough in practice.
type Ledger struct {
	store Store
}

// New returns a Ledger over the given store.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Read returns the record for id. An absent key yields the Idle default;
// a value that fails to decode yields an Error-shaped record. Neither
// case propagates an error to the caller.
func (l *Ledger) Read(id string) StatusRecord {
	raw, ok, err := l.store.Get(id)
	if err != nil {
		slog.Error("ledger read failed", "swap_id", id, "error", err)
		return errorRecord()
	}
	if !ok {
		return DefaultRecord()
	}

	var rec StatusRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		slog.Error("ledger record corrupt", "swap_id", id, "error", err)
		return errorRecord()
	}
	if rec.Details == nil {
		rec.Details = []DetailEntry{}
	}
	return rec
}

// Write overwrites the record for id unconditionally.
func (l *Ledger) Write(id string, rec StatusRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding status record: %w", err)
	}
	if err := l.store.Set(id, raw); err != nil {
		return fmt.Errorf("writing status record: %w", err)
	}
	return nil
}

// UpdateDetail sets details[idx].Message (and Swapped when success is
// true) and writes the record back. Out-of-bounds indexes are ignored.
func (l *Ledger) UpdateDetail(id string, idx int, message string, success bool) error {
	rec := l.Read(id)
	if idx < 0 || idx >= len(rec.Details) {
		return nil
	}
	rec.Details[idx].Message = message
	if success {
		rec.Details[idx].Swapped = true
	}
	return l.Write(id, rec)
}

// UpdateOverall sets the top-level status and message, preserving
// details, and writes the record back.
func (l *Ledger) UpdateOverall(id string, status Status, message string) error {
	rec := l.Read(id)
	rec.Status = status
	rec.Message = &message
	return l.Write(id, rec)
}

// Delete removes the record for id. Deleting an absent key is not an
// error.
func (l *Ledger) Delete(id string) error {
	if err := l.store.Delete(id); err != nil {
		return fmt.Errorf("deleting status record: %w", err)
	}
	return nil
}
