package backend

import (
	"fmt"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/watchkit/watchkit/internal/throttle"
)

// defaultConsolidateThreshold mirrors Options.ConsolidateThreshold's default.
const defaultConsolidateThreshold = 10

// nativeBackend delegates an entire subtree to a single fsnotify
// subscription using its "/..." recursive convention. fsnotify itself
// decides per-platform how to realize that recursion (a true recursive
// kernel feed on some platforms, an internal walk-and-many-watches loop on
// others); from watchkit's perspective it is one subscribe, full subtree.
type nativeBackend struct {
	sink           chan<- Delta
	log            zerolog.Logger
	thr            *throttle.Table
	threshold      int
	ignorePermErrs bool

	mu           sync.Mutex
	fsw          *fsnotify.Watcher
	roots        map[string]bool            // every literal root currently watched
	siblingsOf   map[string]map[string]bool // parent dir -> its watched sibling roots
	consolidated map[string]bool            // parent dirs collapsed to one subscription
	closing      bool

	done chan struct{} // closed when pump exits; Close waits on it so no Delta is sent after Close returns
}

// NewNative constructs the native-event backend. threshold<=0 uses
// defaultConsolidateThreshold. ignorePermErrs mirrors
// Options.IgnorePermissionErrors: when false, an EPERM/EACCES hit during
// the initial scan surfaces as a Fault delta instead of being silently
// absorbed.
func NewNative(sink chan<- Delta, log zerolog.Logger, threshold int, ignorePermErrs bool) (Backend, error) {
	if threshold <= 0 {
		threshold = defaultConsolidateThreshold
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBackendInit, err)
	}
	b := &nativeBackend{
		sink:           sink,
		log:            log,
		thr:            throttle.New(),
		threshold:      threshold,
		ignorePermErrs: ignorePermErrs,
		fsw:            fsw,
		roots:          make(map[string]bool),
		siblingsOf:     make(map[string]map[string]bool),
		consolidated:   make(map[string]bool),
		done:           make(chan struct{}),
	}
	go b.pump()
	return b, nil
}

func (b *nativeBackend) Watch(root string, opts WatchOptions) error {
	parent := path.Dir(root)

	b.mu.Lock()
	b.roots[root] = true
	if b.siblingsOf[parent] == nil {
		b.siblingsOf[parent] = make(map[string]bool)
	}
	b.siblingsOf[parent][root] = true
	siblingCount := len(b.siblingsOf[parent])
	alreadyConsolidated := b.consolidated[parent]
	b.mu.Unlock()

	switch {
	case alreadyConsolidated:
		// The parent subscription already covers root; nothing more to add.
	case siblingCount > b.threshold:
		// Crossing the consolidation threshold: drop every sibling's
		// individual subscription and watch the shared parent once instead,
		// with handle() filtering back down to the roots actually requested.
		b.mu.Lock()
		siblings := make([]string, 0, len(b.siblingsOf[parent]))
		for s := range b.siblingsOf[parent] {
			siblings = append(siblings, s)
		}
		b.consolidated[parent] = true
		b.mu.Unlock()

		for _, s := range siblings {
			_ = b.fsw.Remove(s + "/...")
		}
		if err := b.fsw.Add(parent + "/..."); err != nil {
			if err := walkAndAdd(b.fsw, parent, 0); err != nil {
				return err
			}
		}
	default:
		if err := b.fsw.Add(root + "/..."); err != nil {
			// Some platforms/fsnotify builds don't support recursive Add; fall
			// back to a manual walk-and-add so the backend still functions,
			// just without the kernel doing the subtree bookkeeping for us.
			if err := walkAndAdd(b.fsw, root, opts.MaxDepth); err != nil {
				return err
			}
		}
	}

	return walkInitial(root, opts, b.ignorePermErrs, func(d Delta) { b.sink <- d })
}

func (b *nativeBackend) Unwatch(root string) error {
	parent := path.Dir(root)

	b.mu.Lock()
	delete(b.roots, root)
	if m, ok := b.siblingsOf[parent]; ok {
		delete(m, root)
	}
	consolidated := b.consolidated[parent]
	b.mu.Unlock()

	if consolidated {
		// The parent subscription is shared by other siblings; just stop
		// forwarding events under root (withinAnyRoot), don't tear down the
		// shared fsnotify watch.
		return nil
	}

	err := b.fsw.Remove(root + "/...")
	if err != nil {
		_ = b.fsw.Remove(root)
	}
	return nil
}

func (b *nativeBackend) Close() error {
	b.mu.Lock()
	b.closing = true
	b.mu.Unlock()
	err := b.fsw.Close()
	<-b.done
	return err
}

func (b *nativeBackend) pump() {
	defer close(b.done)
	for {
		select {
		case ev, ok := <-b.fsw.Events:
			if !ok {
				return
			}
			b.handle(ev)
		case err, ok := <-b.fsw.Errors:
			if !ok {
				return
			}
			b.mu.Lock()
			closing := b.closing
			b.mu.Unlock()
			if closing {
				continue
			}
			b.sink <- Delta{Kind: Fault, Err: err, Raw: err}
		}
	}
}

// withinAnyRoot reports whether path falls under one of the literal roots
// this backend was asked to watch. Ordinarily every event already satisfies
// this (each root's own subscription only covers its own subtree), but once
// siblings have been consolidated onto one shared parent subscription, the
// parent's subtree can contain entries nobody asked to watch, and those
// must be dropped here rather than leaking out to the orchestrator.
func (b *nativeBackend) withinAnyRoot(p string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for root := range b.roots {
		if p == root || strings.HasPrefix(p, root+"/") {
			return true
		}
	}
	return false
}

func (b *nativeBackend) handle(ev fsnotify.Event) {
	if !b.withinAnyRoot(ev.Name) {
		return
	}
	b.log.Debug().Str("path", ev.Name).Stringer("op", ev.Op).Msg("native event")

	dir, name := path.Dir(ev.Name), path.Base(ev.Name)

	st, statErr := os.Lstat(ev.Name)
	isDir := statErr == nil && st.IsDir()

	switch {
	case ev.Has(fsnotify.Create):
		// Some platforms deliver layered create events for the same inode
		// (a kernel event plus fsnotify's own recursive-walk attach);
		// collapse the burst before it reaches the orchestrator.
		if res := b.thr.TryAcquire(throttle.WatchAttach, ev.Name); !res.Fresh {
			return
		}
		if statErr == nil && isDir {
			// A newly created directory must itself be watched so its
			// descendants are picked up.
			if err := b.fsw.Add(ev.Name + "/..."); err != nil {
				_ = walkAndAdd(b.fsw, ev.Name, 0)
			}
		}
		b.sink <- Delta{Kind: Discovered, Dir: dir, Name: name, Path: ev.Name, IsDir: isDir, Stat: toStat(st, statErr), Raw: ev}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		b.sink <- Delta{Kind: Lost, Dir: dir, Name: name, Path: ev.Name, Raw: ev}
	case ev.Has(fsnotify.Write), ev.Has(fsnotify.Chmod):
		b.sink <- Delta{Kind: Modified, Dir: dir, Name: name, Path: ev.Name, IsDir: isDir, Stat: toStat(st, statErr), Raw: ev}
	default:
		b.sink <- Delta{Kind: RawOsEvent, Dir: dir, Name: name, Path: ev.Name, Raw: ev}
	}
}
