// Package watchkit implements a cross-platform recursive filesystem-change
// watcher with a semantic event contract (add/change/unlink/addDir/unlinkDir/
// ready/raw/error) on top of one of three pluggable OS backends (package
// backend): a native recursive-subtree feed, a per-directory watch-and-diff
// strategy, and a stat-based poller.
//
// The shape follows github.com/fsnotify/fsnotify's own Watcher: a constructor
// that spins up a single event-reading goroutine, plain exported channels
// callers range over, and a Close that is safe to call more than once.
// watchkit adds the semantic layer fsnotify deliberately leaves to callers:
// glob matching, ignore patterns, throttling, write-settle gating, and
// atomic-save collapsing.
package watchkit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/watchkit/watchkit/backend"
	"github.com/watchkit/watchkit/globutil"
	"github.com/watchkit/watchkit/internal/hostquirks"
	"github.com/watchkit/watchkit/internal/throttle"
	"github.com/watchkit/watchkit/internal/writesettle"
	"github.com/watchkit/watchkit/pathutil"
	"github.com/watchkit/watchkit/registry"
)

// requiresPolling reports whether the current host has no usable fs-event
// primitive and must always fall back to the polling backend.
func requiresPolling() bool { return hostquirks.RequiresPolling() }

// Watcher is the public handle returned by New. Every exported channel is
// readable by any number of goroutines; a slow or absent reader never blocks
// the dispatcher; an event that finds its channel full is dropped and
// logged, which keeps one stuck consumer from wedging the watcher open for
// everybody else.
type Watcher struct {
	opts Options

	All         chan Event
	AddCh       chan Event
	ChangeCh    chan Event
	UnlinkCh    chan Event
	AddDirCh    chan Event
	UnlinkDirCh chan Event
	Ready       chan struct{}
	Raw         chan RawEvent
	Errors      chan error

	be          backend.Backend
	backendKind backend.Kind
	sink        chan backend.Delta

	reg   *registry.Registry
	regMu sync.Mutex // guards reg; GetWatched reads it from outside the dispatcher
	thr   *throttle.Table

	settle     *writesettle.Tracker
	settleDone chan settleMsg

	ignore       *globutil.Matcher
	includeRoots map[string][]*globutil.Pattern // glob root -> its compiled patterns

	symlinks map[string]string // watched symlink root -> resolved real target

	atomicExpiry chan string
	pendingUn    map[string]*pendingUnlink

	mu             sync.Mutex
	closed         bool
	roots          map[string]bool
	readyDone      bool
	readyRemaining int // outstanding ScanComplete deltas before Ready closes

	wg sync.WaitGroup
}

type settleMsg struct {
	path   string
	wasAdd bool
	stat   writesettle.Stat
}

type pendingUnlink struct {
	timer  *time.Timer
	wasDir bool
}

// New constructs a Watcher over the given initial paths (literal directories/
// files or glob patterns; a leading "!" marks a negated/ignore pattern) and
// begins watching immediately. The initial recursive scan of every path
// completes synchronously inside New; Ready is closed once that scan (across
// every initial path) is done. Ready never re-fires, even after later Add
// calls.
func New(paths []string, opts ...Option) (*Watcher, error) {
	o := DefaultOptions()
	for _, fn := range opts {
		fn(&o)
	}

	ignore, err := globutil.NewMatcher(o.Ignored, o.ExpansionLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrExpansionLimit, err)
	}

	w := &Watcher{
		opts: o,

		All:         make(chan Event, 256),
		AddCh:       make(chan Event, 256),
		ChangeCh:    make(chan Event, 256),
		UnlinkCh:    make(chan Event, 256),
		AddDirCh:    make(chan Event, 256),
		UnlinkDirCh: make(chan Event, 256),
		Ready:       make(chan struct{}),
		Raw:         make(chan RawEvent, 256),
		Errors:      make(chan error, 64),

		sink: make(chan backend.Delta, 512),

		reg: registry.New(),
		thr: throttle.New(),

		settleDone: make(chan settleMsg, 64),

		ignore:       ignore,
		includeRoots: make(map[string][]*globutil.Pattern),
		symlinks:     make(map[string]string),

		atomicExpiry: make(chan string, 64),
		pendingUn:    make(map[string]*pendingUnlink),

		roots: make(map[string]bool),
	}

	if o.AwaitWriteFinish.Enabled {
		w.settle = writesettle.New(
			writesettle.Options{StabilityThreshold: o.AwaitWriteFinish.StabilityThreshold, PollInterval: o.AwaitWriteFinish.PollInterval},
			statAdapter,
			func(path string, wasAdd bool, st writesettle.Stat) {
				w.settleDone <- settleMsg{path: path, wasAdd: wasAdd, stat: st}
			},
		)
	}

	be, kind, err := newBackend(o, w.sink)
	if err != nil {
		return nil, err
	}
	w.be = be
	w.backendKind = kind

	w.wg.Add(1)
	go w.dispatch()

	scanned := 0
	for _, p := range paths {
		counted, err := w.addPath(p)
		if err != nil {
			w.Close()
			return nil, err
		}
		if counted {
			scanned++
		}
	}

	// Each counted path's backend.Watch already ran its initial scan
	// synchronously, so every Discovered delta it produced is already queued
	// on w.sink ahead of anything sent below: one outstanding scan per
	// initial path, decremented as dispatch drains its ScanComplete marker.
	// Setting readyRemaining before sending the markers, rather than after,
	// keeps dispatch from ever observing a partial count.
	if scanned == 0 {
		w.fireReady()
	} else {
		w.mu.Lock()
		w.readyRemaining = scanned
		w.mu.Unlock()
		for i := 0; i < scanned; i++ {
			w.sink <- backend.Delta{Kind: backend.ScanComplete}
		}
	}

	return w, nil
}

// fireReady closes Ready exactly once, however many ScanComplete markers or
// concurrent dispatch iterations observe readyRemaining reach zero.
func (w *Watcher) fireReady() {
	w.mu.Lock()
	if w.readyDone {
		w.mu.Unlock()
		return
	}
	w.readyDone = true
	w.mu.Unlock()
	close(w.Ready)
}

func statAdapter(path string) (writesettle.Stat, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return writesettle.Stat{}, err
	}
	return writesettle.Stat{Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

func newBackend(o Options, sink chan backend.Delta) (backend.Backend, backend.Kind, error) {
	log := o.Logger

	if o.UsePolling || requiresPolling() {
		be, err := backend.NewPoll(sink, log, o.Interval, o.BinaryInterval, o.binarySet(), o.IgnorePermissionErrors)
		if err != nil {
			return nil, backend.Poll, fmt.Errorf("%w: %s", ErrBackendInitFailed, err)
		}
		return be, backend.Poll, nil
	}

	if be, err := backend.NewNative(sink, log, o.ConsolidateThreshold, o.IgnorePermissionErrors); err == nil {
		return be, backend.Native, nil
	}

	be, err := backend.NewPerDir(sink, log, o.IgnorePermissionErrors)
	if err != nil {
		return nil, backend.PerDir, fmt.Errorf("%w: %s", ErrBackendInitFailed, err)
	}
	return be, backend.PerDir, nil
}

// Add begins watching an additional path: a literal file/directory, or (when
// DisableGlobbing is false) a glob pattern, or a "!"-prefixed ignore pattern.
func (w *Watcher) Add(path string) error {
	_, err := w.addPath(path)
	return err
}

// addPath is Add's implementation. The returned bool reports whether this
// call performed a fresh backend.Watch subscription (as opposed to an
// ignore-pattern registration or a path already covered by an existing
// root); New uses it to size the readiness counter to the number of initial
// scans actually started.
func (w *Watcher) addPath(path string) (bool, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false, ErrClosed
	}
	w.mu.Unlock()

	if path == "" {
		return false, ErrInvalidArgument
	}
	norm := pathutil.Normalize(path)

	if pathutil.IsNegated(norm) {
		pat, err := globutil.CompileAll(pathutil.StripNegation(norm), w.opts.ExpansionLimit)
		if err != nil {
			err = fmt.Errorf("%w: %s", ErrExpansionLimit, err)
			w.emitError(err)
			return false, err
		}
		w.mu.Lock()
		for _, p := range pat {
			w.ignore.Add(p)
		}
		w.mu.Unlock()
		return false, nil
	}

	root := norm
	var include []*globutil.Pattern
	if !w.opts.DisableGlobbing && pathutil.IsGlob(norm) {
		pats, err := globutil.CompileAll(norm, w.opts.ExpansionLimit)
		if err != nil {
			err = fmt.Errorf("%w: %s", ErrExpansionLimit, err)
			w.emitError(err)
			return false, err
		}
		root = pathutil.GlobParent(norm)
		include = pats
	}

	resolvedRoot := root
	if w.opts.FollowSymlinks {
		if target, err := filepath.EvalSymlinks(root); err == nil {
			target = pathutil.Normalize(target)
			if target != root {
				w.mu.Lock()
				w.symlinks[root] = target
				w.mu.Unlock()
				resolvedRoot = target
			}
		}
	}

	w.mu.Lock()
	if w.roots[resolvedRoot] {
		if len(include) > 0 {
			w.includeRoots[resolvedRoot] = append(w.includeRoots[resolvedRoot], include...)
		}
		w.mu.Unlock()
		return false, nil
	}
	w.roots[resolvedRoot] = true
	if len(include) > 0 {
		w.includeRoots[resolvedRoot] = include
	}
	w.mu.Unlock()

	if w.backendKind != backend.Poll && hostquirks.IsNetworkFS(resolvedRoot) {
		w.opts.Logger.Error().Str("path", resolvedRoot).
			Msg("watchkit: path is on a network filesystem; native notifications may never fire, consider WithPolling")
	}

	err := w.be.Watch(resolvedRoot, backend.WatchOptions{FollowSymlinks: w.opts.FollowSymlinks, MaxDepth: w.opts.Depth})
	if err != nil {
		w.mu.Lock()
		delete(w.roots, resolvedRoot)
		delete(w.includeRoots, resolvedRoot)
		w.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrOSWatchFault, err)
	}
	return true, nil
}

// Unwatch stops watching path (and everything beneath it). The path joins
// the ignore set, so a backend that still holds a shared handle over it
// stops producing events for it immediately.
func (w *Watcher) Unwatch(path string) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.mu.Unlock()

	root := pathutil.Normalize(path)

	pats, err := globutil.CompileAll(root+"/**", 0)
	if err == nil {
		if self, serr := globutil.Compile(root); serr == nil {
			pats = append(pats, self)
		}
	}

	w.mu.Lock()
	delete(w.roots, root)
	delete(w.includeRoots, root)
	for _, p := range pats {
		w.ignore.Add(p)
	}
	w.mu.Unlock()

	return w.be.Unwatch(root)
}

// GetWatched returns, for every directory currently known to the registry,
// the sorted basenames of its known children.
func (w *Watcher) GetWatched() map[string][]string {
	w.regMu.Lock()
	defer w.regMu.Unlock()
	out := make(map[string][]string)
	for _, d := range w.reg.Dirs() {
		out[d] = w.reg.Children(d)
	}
	return out
}

// Close releases all OS resources and stops the dispatcher. Safe to call
// more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	// Backend Close blocks until its pump goroutine has exited, so nothing
	// sends on sink once it is closed below. The dispatcher keeps draining
	// sink until then, so a pump blocked on a full sink still unblocks.
	var err error
	if w.be != nil {
		err = w.be.Close()
	}
	if w.settle != nil {
		w.settle.Close()
	}
	close(w.sink)
	w.wg.Wait()

	// The dispatcher owned these; it has exited, so this is race-free.
	for _, p := range w.pendingUn {
		p.timer.Stop()
	}
	w.thr.Reset()
	return err
}

// dispatch is the single goroutine that owns the registry, the pending-unlink
// table and every timer: every backend Delta, every settled write, and every
// expired atomic-unlink timer is folded in here, one at a time, so none of
// that state needs its own lock.
func (w *Watcher) dispatch() {
	defer w.wg.Done()
	for {
		select {
		case d, ok := <-w.sink:
			if !ok {
				return
			}
			w.handleDelta(d)
		case path := <-w.atomicExpiry:
			w.handleAtomicExpiry(path)
		case sm := <-w.settleDone:
			w.handleSettled(sm)
		}
	}
}

func (w *Watcher) handleDelta(d backend.Delta) {
	if d.Kind == backend.ScanComplete {
		w.handleScanComplete()
		return
	}

	if d.Kind == backend.Fault {
		w.emitError(d.Err)
		return
	}

	w.emitRaw(d)

	if !w.passesFilters(d.Path) {
		return
	}

	switch d.Kind {
	case backend.Discovered:
		w.handleDiscovered(d)
	case backend.Modified:
		w.handleModified(d)
	case backend.Lost:
		w.handleLost(d)
	}
}

// passesFilters applies the ignore matcher and any glob include-set
// associated with the root(s) this path falls under. Ignore patterns are
// tried against the full path and against the path relative to each watched
// root, so "node_modules/**" written from a root's point of view works the
// same as an absolute pattern.
func (w *Watcher) passesFilters(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.ignore.Empty() {
		if w.ignore.Match(path) {
			return false
		}
		for root := range w.roots {
			if !withinDir(root, path) || path == root {
				continue
			}
			if w.ignore.Match(strings.TrimPrefix(path, root+"/")) {
				return false
			}
		}
	}
	if len(w.includeRoots) == 0 {
		return true
	}
	for root, pats := range w.includeRoots {
		if root != path && !withinDir(root, path) {
			continue
		}
		for _, p := range pats {
			if p.Match(path) {
				return !p.Negated()
			}
		}
		return false
	}
	return true
}

// handleScanComplete drains one outstanding initial-scan marker; Ready
// closes once every marker New queued has been drained, guaranteeing every
// preexisting entry's add/addDir already went out.
func (w *Watcher) handleScanComplete() {
	w.mu.Lock()
	w.readyRemaining--
	done := w.readyRemaining <= 0
	w.mu.Unlock()
	if done {
		w.fireReady()
	}
}

func withinDir(root, path string) bool {
	if root == "" {
		return true
	}
	return path == root || (len(path) > len(root) && path[:len(root)] == root && path[len(root)] == '/')
}

func (w *Watcher) handleDiscovered(d backend.Delta) {
	if w.opts.Atomic.Enabled && !d.IsDir && pathutil.IsDotfile(pathutil.Base(d.Path)) {
		return // editor swap file: discarded per atomic mode
	}

	if p, ok := w.pendingUn[d.Path]; ok {
		p.timer.Stop()
		delete(w.pendingUn, d.Path)
		w.regMu.Lock()
		w.reg.AddChild(d.Dir, d.Name, childKind(d.IsDir))
		w.regMu.Unlock()
		w.emitStructured(OpChange, d.Path, fromBackendStat(d.Stat))
		return
	}

	w.regMu.Lock()
	isNew := w.reg.AddChild(d.Dir, d.Name, childKind(d.IsDir))
	w.regMu.Unlock()
	op := OpAdd
	if d.IsDir {
		op = OpAddDir
	}
	if !isNew {
		if d.IsDir {
			return
		}
		op = OpChange
	}
	w.routeEmit(op, d, wasAddOp(op))
}

func (w *Watcher) handleModified(d backend.Delta) {
	if w.opts.Atomic.Enabled && !d.IsDir && pathutil.IsDotfile(pathutil.Base(d.Path)) {
		return
	}
	w.regMu.Lock()
	w.reg.AddChild(d.Dir, d.Name, childKind(d.IsDir))
	w.regMu.Unlock()
	if d.IsDir {
		return // directories don't emit "change"; only their children do
	}
	if res := w.thr.TryAcquire(throttle.Change, d.Path); !res.Fresh {
		return
	}
	w.routeEmit(OpChange, d, false)
}

func (w *Watcher) handleLost(d backend.Delta) {
	wasDir := d.IsDir
	w.regMu.Lock()
	kind, known := w.reg.ChildKind(d.Dir, d.Name)
	if known {
		wasDir = kind == registry.KindDir
	}
	w.reg.RemoveChild(d.Dir, d.Name)
	if wasDir {
		// The registry also holds d.Path's own entry (and any nested
		// entries still lingering under it); RemoveChild above only cleared
		// it out of its parent's listing.
		for _, dir := range w.reg.Dirs() {
			if withinDir(d.Path, dir) {
				w.reg.Drop(dir)
			}
		}
	}
	w.regMu.Unlock()

	if w.settle != nil && w.settle.Pending(d.Path) {
		w.settle.CancelWait(d.Path)
	}

	if w.opts.Atomic.Enabled && !wasDir {
		delay := w.opts.Atomic.Delay
		if delay <= 0 {
			delay = DefaultAtomicDelay
		}
		path := d.Path
		t := time.AfterFunc(delay, func() { w.atomicExpiry <- path })
		w.pendingUn[path] = &pendingUnlink{timer: t, wasDir: wasDir}
		return
	}

	op := OpUnlink
	if wasDir {
		op = OpUnlinkDir
	}
	w.emitStructured(op, d.Path, nil)
}

func (w *Watcher) handleAtomicExpiry(path string) {
	p, ok := w.pendingUn[path]
	if !ok {
		return
	}
	delete(w.pendingUn, path)
	op := OpUnlink
	if p.wasDir {
		op = OpUnlinkDir
	}
	w.emitStructured(op, path, nil)
}

func (w *Watcher) handleSettled(sm settleMsg) {
	op := OpChange
	if sm.wasAdd {
		op = OpAdd
	}
	w.emitStructured(op, sm.path, &Stat{Size: sm.stat.Size, ModTime: sm.stat.ModTime})
}

// routeEmit decides whether d's add/change should go straight out or be
// routed through the write-settle tracker first.
func (w *Watcher) routeEmit(op Op, d backend.Delta, wasAdd bool) {
	if w.settle != nil && !d.IsDir && (op == OpAdd || op == OpChange) {
		st := writesettle.Stat{}
		if d.Stat != nil {
			st = writesettle.Stat{Size: d.Stat.Size, ModTime: d.Stat.ModTime}
		}
		w.settle.Track(context.Background(), d.Path, wasAdd, st)
		return
	}
	w.emitStructured(op, d.Path, fromBackendStat(d.Stat))
}

func wasAddOp(op Op) bool { return op == OpAdd || op == OpAddDir }

func childKind(isDir bool) registry.ChildKind {
	if isDir {
		return registry.KindDir
	}
	return registry.KindFile
}

func fromBackendStat(s *backend.Stat) *Stat {
	if s == nil {
		return nil
	}
	return &Stat{Size: s.Size, ModTime: s.ModTime, Mode: s.Mode, IsDir: s.IsDir, Ino: s.Ino}
}

// emitStructured performs the tail of the emission pipeline: cwd-relative
// rewrite, an always-stat fetch if the stat wasn't already known, and the
// dual emit onto All plus the op-specific channel. It is a no-op (besides
// registry bookkeeping already done by the caller) while IgnoreInitial is
// set and the watcher hasn't reached readiness yet.
func (w *Watcher) emitStructured(op Op, path string, st *Stat) {
	w.mu.Lock()
	ready, closed := w.readyDone, w.closed
	w.mu.Unlock()
	if closed {
		return
	}
	if !ready && w.opts.IgnoreInitial {
		return
	}

	if st == nil && w.opts.AlwaysStat {
		if fi, err := os.Lstat(path); err == nil {
			st = &Stat{Size: fi.Size(), ModTime: fi.ModTime(), Mode: uint32(fi.Mode()), IsDir: fi.IsDir()}
		}
	}

	path = w.symlinkView(path)
	ev := Event{Op: op, Path: pathutil.Rel(w.opts.Cwd, path), Stat: st}
	w.sendEvent(w.All, ev)

	switch op {
	case OpAdd:
		w.sendEvent(w.AddCh, ev)
	case OpChange:
		w.sendEvent(w.ChangeCh, ev)
	case OpUnlink:
		w.sendEvent(w.UnlinkCh, ev)
	case OpAddDir:
		w.sendEvent(w.AddDirCh, ev)
	case OpUnlinkDir:
		w.sendEvent(w.UnlinkDirCh, ev)
	}
}

// symlinkView rewrites a real path back to the symlink path the user
// actually watched, so events carry the view the caller asked for rather
// than the resolved target.
func (w *Watcher) symlinkView(path string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	for link, target := range w.symlinks {
		if path == target {
			return link
		}
		if strings.HasPrefix(path, target+"/") {
			return link + strings.TrimPrefix(path, target)
		}
	}
	return path
}

func (w *Watcher) sendEvent(ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
		w.opts.Logger.Error().Str("path", ev.Path).Msg("watchkit: event channel full, dropping")
	}
}

func (w *Watcher) emitError(err error) {
	if err == nil {
		return
	}
	select {
	case w.Errors <- err:
	default:
		w.opts.Logger.Error().Err(err).Msg("watchkit: error channel full, dropping")
	}
}

func (w *Watcher) emitRaw(d backend.Delta) {
	select {
	case w.Raw <- RawEvent{Backend: w.backendKind.String(), Path: d.Path, Payload: d}:
	default:
	}
}
