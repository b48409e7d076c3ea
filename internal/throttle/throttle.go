// Package throttle implements the throttle/debounce table: duplicate
// (kind, path) events inside a short window collapse into the first, with a
// counter tracking how many were suppressed.
//
// Slots are TTL-bounded, so an expirable LRU is the natural fit instead of
// a hand-rolled map plus per-entry timer.
package throttle

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Kind is one of the three throttle kinds, each with its own default window.
type Kind int

const (
	Change Kind = iota
	WatchAttach
	Readdir
)

// DefaultWindow returns the default window for k.
func (k Kind) DefaultWindow() time.Duration {
	switch k {
	case Change:
		return 50 * time.Millisecond
	case WatchAttach:
		return 5 * time.Millisecond
	case Readdir:
		return 1000 * time.Millisecond
	default:
		return 50 * time.Millisecond
	}
}

type key struct {
	kind Kind
	path string
}

type slot struct {
	mu    sync.Mutex
	count int
}

// Table is a set of independent throttle windows, one expirable cache per
// Kind, each keyed by path.
type Table struct {
	windows [3]time.Duration
	caches  [3]*expirable.LRU[string, *slot]
}

// New creates a Table using the default window for each kind; overrides
// (e.g. a configured `change` window) can be supplied via WithWindow.
func New() *Table {
	t := &Table{}
	for k := Change; k <= Readdir; k++ {
		t.windows[k] = k.DefaultWindow()
	}
	t.rebuild()
	return t
}

// WithWindow overrides the window used for kind k.
func (t *Table) WithWindow(k Kind, window time.Duration) *Table {
	t.windows[k] = window
	t.rebuild()
	return t
}

func (t *Table) rebuild() {
	for k := Change; k <= Readdir; k++ {
		t.caches[k] = expirable.NewLRU[string, *slot](0, nil, t.windows[k])
	}
}

// Result is the outcome of a TryAcquire call.
type Result struct {
	Fresh      bool
	Suppressed int // duplicates suppressed in this window so far, counting this one; 0 when Fresh
}

// TryAcquire reserves a fresh slot for (kind, path) if none exists, or
// increments the existing slot's suppression counter and reports Fresh:
// false. The slot's own TTL (the kind's window) releases it automatically.
func (t *Table) TryAcquire(k Kind, path string) Result {
	cache := t.caches[k]
	if s, ok := cache.Get(path); ok {
		s.mu.Lock()
		s.count++
		n := s.count
		s.mu.Unlock()
		return Result{Fresh: false, Suppressed: n}
	}
	cache.Add(path, &slot{})
	return Result{Fresh: true}
}

// Reset drops every slot across all kinds, used on Close.
func (t *Table) Reset() {
	for k := Change; k <= Readdir; k++ {
		t.caches[k].Purge()
	}
}
