package queuetrack

import (
	"sync"

	"studio/internal/domain"
)

// Tracker holds the latest queue progress per generation flow key together
// with the set of keys currently in flight. It replaces scattered
// "generating[key]" bookkeeping with one authoritative place the UI layer
// can ask "is this slot generating" and "what is its queue position".
//
// Updates are last-write-wins; polls for a single flow are sequential so no
// stronger ordering is needed. Keys are independent, a single mutex is
// enough.
type Tracker struct {
	mu        sync.RWMutex
	snapshots map[string]domain.QueueSnapshot
	inFlight  map[string]struct{}
}

// New initializes an empty tracker.
func New() *Tracker {
	return &Tracker{
		snapshots: make(map[string]domain.QueueSnapshot),
		inFlight:  make(map[string]struct{}),
	}
}

// Begin claims the key for a new generation flow. It returns false when the
// key is already in flight, leaving the existing claim untouched.
func (t *Tracker) Begin(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.inFlight[key]; ok {
		return false
	}
	t.inFlight[key] = struct{}{}
	return true
}

// End releases the key and drops any snapshot recorded for it.
func (t *Tracker) End(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inFlight, key)
	delete(t.snapshots, key)
}

// InFlight reports whether a flow is currently running for the key. It can
// be true before the first snapshot arrives, which lets the UI render a
// spinner before the first poll lands.
func (t *Tracker) InFlight(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.inFlight[key]
	return ok
}

// Update overwrites the snapshot for the key with the latest observed
// queue progress.
func (t *Tracker) Update(key, jobID string, position, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snapshots[key] = domain.QueueSnapshot{
		Key:      key,
		JobID:    jobID,
		Position: position,
		Total:    total,
	}
}

// Clear removes the snapshot for the key. Called when the job reaches a
// terminal state; the in-flight claim is released separately via End.
func (t *Tracker) Clear(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.snapshots, key)
}

// Snapshot returns the latest progress for the key, if any.
func (t *Tracker) Snapshot(key string) (domain.QueueSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap, ok := t.snapshots[key]
	return snap, ok
}
