// Package xp implements the in-memory experience-point store shared between
// edit-event producers and the flush scheduler.
package xp

import "sync"

// Accumulator tracks XP counters for the current pulse window, keyed by
// canonical language name. Safe for any number of concurrent callers.
type Accumulator struct {
	mu  sync.Mutex
	xps map[string]uint32
}

// NewAccumulator allocates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{xps: make(map[string]uint32)}
}

// Add adds n XP to the counter for language, creating it on first use.
// Empty language names and zero amounts are ignored.
func (a *Accumulator) Add(language string, n uint32) {
	if language == "" || n == 0 {
		return
	}
	a.mu.Lock()
	a.xps[language] += n
	a.mu.Unlock()
}

// Empty reports whether no XP has accumulated since the last clear.
func (a *Accumulator) Empty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.xps) == 0
}

// Total returns the sum of all counters.
func (a *Accumulator) Total() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var total uint32
	for _, n := range a.xps {
		total += n
	}
	return total
}

// Snapshot returns a copy of the current counters without clearing them.
func (a *Accumulator) Snapshot() map[string]uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]uint32, len(a.xps))
	for lang, n := range a.xps {
		out[lang] = n
	}
	return out
}

// SnapshotAndClear atomically copies the current counters and resets the
// store. Every concurrent Add lands wholly in either the returned snapshot
// or the fresh store, never split across both.
func (a *Accumulator) SnapshotAndClear() map[string]uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.xps
	a.xps = make(map[string]uint32)
	return out
}
