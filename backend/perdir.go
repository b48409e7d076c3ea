package backend

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/watchkit/watchkit/internal/permcheck"
	"github.com/watchkit/watchkit/internal/throttle"
)

// perDirBackend subscribes one fsnotify watch per directory and, on any
// signal, re-lists that directory and diffs it against a private snapshot
// rather than trusting fsnotify's own Op bits. Throwing the Op bits away is
// deliberate: PerDir behaves the way a plain "directory changed"
// notification API (like older kqueue NOTE_WRITE-on-dir, or FEN on
// Solaris) would, rather than silently becoming a second copy of Native.
type perDirBackend struct {
	sink           chan<- Delta
	log            zerolog.Logger
	thr            *throttle.Table
	ignorePermErrs bool

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	snapshot map[string]map[string]childStat // dir -> basename -> last seen stat
	closing  bool

	done chan struct{} // closed when pump exits; Close waits on it so no Delta is sent after Close returns
}

// childStat is the sliver of stat info the per-dir backend needs to decide
// whether a still-present entry actually changed.
type childStat struct {
	size    int64
	modTime time.Time
}

// NewPerDir constructs the per-directory-watch backend. ignorePermErrs
// mirrors Options.IgnorePermissionErrors: when false, an EPERM/EACCES hit
// while listing a directory surfaces as a Fault delta instead of being
// silently absorbed.
func NewPerDir(sink chan<- Delta, log zerolog.Logger, ignorePermErrs bool) (Backend, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBackendInit, err)
	}
	b := &perDirBackend{
		sink:           sink,
		log:            log,
		thr:            throttle.New(),
		ignorePermErrs: ignorePermErrs,
		fsw:            fsw,
		snapshot:       make(map[string]map[string]childStat),
		done:           make(chan struct{}),
	}
	go b.pump()
	return b, nil
}

func (b *perDirBackend) Watch(root string, opts WatchOptions) error {
	if err := b.subscribeDir(root); err != nil {
		return err
	}
	return walkInitial(root, opts, b.ignorePermErrs, func(d Delta) {
		if d.IsDir {
			if err := b.subscribeDir(d.Path); err != nil {
				b.sink <- Delta{Kind: Fault, Path: d.Path, Err: err}
				return
			}
		}
		b.noteChildStat(d.Dir, d.Name, statOf(d.Stat))
		b.sink <- d
	})
}

func statOf(st *Stat) childStat {
	if st == nil {
		return childStat{}
	}
	return childStat{size: st.Size, modTime: st.ModTime}
}

func statOfInfo(info os.FileInfo, err error) childStat {
	if err != nil || info == nil {
		return childStat{}
	}
	return childStat{size: info.Size(), modTime: info.ModTime()}
}

func (b *perDirBackend) subscribeDir(dir string) error {
	b.mu.Lock()
	if _, ok := b.snapshot[dir]; ok {
		b.mu.Unlock()
		return nil
	}
	b.snapshot[dir] = make(map[string]childStat)
	b.mu.Unlock()

	if err := b.fsw.Add(dir); err != nil {
		if os.IsPermission(err) {
			// Open-close once to clear a transient permission glitch, then
			// retry; give up and surface the error if that doesn't help.
			if f, oerr := os.Open(dir); oerr == nil {
				f.Close()
				if err2 := b.fsw.Add(dir); err2 == nil {
					return nil
				}
			}
			if b.ignorePermErrs {
				return nil
			}
			if !permcheck.HasReadSearch() {
				return fmt.Errorf("%w: %s", ErrOSWatchFault, err)
			}
		}
		return err
	}
	return nil
}

func (b *perDirBackend) noteChildStat(dir, name string, cs childStat) {
	if name == "" {
		return
	}
	b.mu.Lock()
	if m, ok := b.snapshot[dir]; ok {
		m[name] = cs
	}
	b.mu.Unlock()
}

func (b *perDirBackend) Unwatch(root string) error {
	b.mu.Lock()
	var dirs []string
	for dir := range b.snapshot {
		if dir == root || withinTree(root, dir) {
			dirs = append(dirs, dir)
		}
	}
	for _, d := range dirs {
		delete(b.snapshot, d)
	}
	b.mu.Unlock()

	for _, d := range dirs {
		_ = b.fsw.Remove(d)
	}
	return nil
}

func (b *perDirBackend) Close() error {
	b.mu.Lock()
	b.closing = true
	b.mu.Unlock()
	err := b.fsw.Close()
	<-b.done
	return err
}

func (b *perDirBackend) pump() {
	defer close(b.done)
	for {
		select {
		case ev, ok := <-b.fsw.Events:
			if !ok {
				return
			}
			b.onSignal(ev)
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

// onSignal throttles under the readdir kind, lists the directory, diffs
// against the snapshot, recurses into new subdirectories, and tears down
// lost ones.
func (b *perDirBackend) onSignal(ev fsnotify.Event) {
	dir := ev.Name
	b.mu.Lock()
	_, tracked := b.snapshot[dir]
	b.mu.Unlock()
	if !tracked {
		// The event named a file, not a directory we subscribed on;
		// fsnotify reports these against the parent directory, so fall
		// back to that.
		dir = filepath.Dir(ev.Name)
		b.mu.Lock()
		_, tracked = b.snapshot[dir]
		b.mu.Unlock()
		if !tracked {
			return
		}
	}

	if res := b.thr.TryAcquire(throttle.Readdir, dir); !res.Fresh {
		return
	}
	b.log.Debug().Str("dir", dir).Str("trigger", ev.Name).Msg("readdir diff")

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) || errors.Is(err, syscall.ENOTDIR) {
			b.tearDown(dir)
			return
		}
		if os.IsPermission(err) {
			if !b.ignorePermErrs {
				b.sink <- Delta{Kind: Fault, Path: dir, Err: err}
			}
			return
		}
		b.sink <- Delta{Kind: Fault, Path: dir, Err: err}
		return
	}

	b.mu.Lock()
	prevSnapshot := b.snapshot[dir]
	prev := make(map[string]childStat, len(prevSnapshot))
	for name, cs := range prevSnapshot {
		prev[name] = cs
	}
	b.mu.Unlock()

	seen := make(map[string]bool, len(entries))
	for _, ent := range entries {
		name := ent.Name()
		seen[name] = true
		info, ierr := ent.Info()
		full := filepath.ToSlash(filepath.Join(dir, name))

		old, existed := prev[name]
		if !existed {
			isDir := ent.IsDir()
			b.noteChildStat(dir, name, statOfInfo(info, ierr))
			if isDir {
				if err := b.subscribeDir(full); err != nil {
					b.sink <- Delta{Kind: Fault, Path: full, Err: err}
				}
			}
			b.sink <- Delta{Kind: Discovered, Dir: dir, Name: name, Path: full, IsDir: isDir, Stat: toStat(info, ierr)}
			continue
		}

		if ent.IsDir() || ierr != nil {
			continue // directories don't emit change; diff only tracks files
		}
		cur := childStat{size: info.Size(), modTime: info.ModTime()}
		if cur.size == old.size && cur.modTime.Equal(old.modTime) {
			continue
		}
		b.noteChildStat(dir, name, cur)
		b.sink <- Delta{Kind: Modified, Dir: dir, Name: name, Path: full, IsDir: false, Stat: toStat(info, ierr)}
	}

	var lost []string
	for name := range prev {
		if !seen[name] {
			lost = append(lost, name)
		}
	}

	b.mu.Lock()
	for _, name := range lost {
		delete(b.snapshot[dir], name)
	}
	b.mu.Unlock()

	for _, name := range lost {
		full := filepath.ToSlash(filepath.Join(dir, name))
		b.sink <- Delta{Kind: Lost, Dir: dir, Name: name, Path: full}
	}
}

func (b *perDirBackend) tearDown(dir string) {
	b.mu.Lock()
	children := b.snapshot[dir]
	delete(b.snapshot, dir)
	b.mu.Unlock()

	_ = b.fsw.Remove(dir)
	for name := range children {
		full := filepath.ToSlash(filepath.Join(dir, name))
		b.sink <- Delta{Kind: Lost, Dir: dir, Name: name, Path: full}
	}
	b.sink <- Delta{Kind: Lost, Dir: filepath.ToSlash(filepath.Dir(dir)), Name: filepath.Base(dir), Path: filepath.ToSlash(dir), IsDir: true}
}

func withinTree(root, dir string) bool {
	rel, err := filepath.Rel(root, dir)
	return err == nil && rel != ".." && !filepath.IsAbs(rel) && rel[0] != '.'
}
