package backend

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/watchkit/watchkit/internal/hostquirks"
)

// pollBackend takes periodic stat/readdir snapshots and compares each
// against the prior one, with no reliance on any kernel event facility. A
// single ticker serves every watched root rather than one goroutine per
// root; binary files are re-checked on a longer multiple of that tick.
type pollBackend struct {
	sink           chan<- Delta
	log            zerolog.Logger
	interval       time.Duration
	binaryInterval time.Duration
	binSet         *hostquirks.BinarySet
	ignorePermErrs bool

	mu      sync.Mutex
	roots   map[string]pollOpts
	prev    map[string]os.FileInfo // full path -> last seen stat
	stop    chan struct{}
	done    chan struct{} // closed when loop exits; Close waits on it so no Delta is sent after Close returns
	stopped bool
}

type pollOpts struct {
	maxDepth int
}

// NewPoll constructs the polling backend. ignorePermErrs mirrors
// Options.IgnorePermissionErrors: when false, an EPERM/EACCES hit during
// the initial scan or a later tick surfaces as a Fault delta instead of
// being silently dropped.
func NewPoll(sink chan<- Delta, log zerolog.Logger, interval, binaryInterval time.Duration, binSet *hostquirks.BinarySet, ignorePermErrs bool) (Backend, error) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if binaryInterval <= 0 {
		binaryInterval = interval
	}
	b := &pollBackend{
		sink:           sink,
		log:            log,
		interval:       interval,
		binaryInterval: binaryInterval,
		binSet:         binSet,
		ignorePermErrs: ignorePermErrs,
		roots:          make(map[string]pollOpts),
		prev:           make(map[string]os.FileInfo),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	go b.loop()
	return b, nil
}

func (b *pollBackend) Watch(root string, opts WatchOptions) error {
	b.mu.Lock()
	b.roots[root] = pollOpts{maxDepth: opts.MaxDepth}
	b.mu.Unlock()

	return walkInitial(root, opts, b.ignorePermErrs, func(d Delta) {
		if fi, err := os.Lstat(d.Path); err == nil {
			b.mu.Lock()
			b.prev[d.Path] = fi
			b.mu.Unlock()
		}
		b.sink <- d
	})
}

func (b *pollBackend) Unwatch(root string) error {
	b.mu.Lock()
	delete(b.roots, root)
	for p := range b.prev {
		if p == root || withinTree(root, p) {
			delete(b.prev, p)
		}
	}
	b.mu.Unlock()
	return nil
}

func (b *pollBackend) Close() error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	b.mu.Unlock()
	close(b.stop)
	<-b.done
	return nil
}

// loop runs a single ticker at the text interval; any watched path whose
// extension is in the binary set is only re-checked every N-th tick so it
// effectively uses the binary interval without needing a second goroutine.
func (b *pollBackend) loop() {
	defer close(b.done)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	binaryEvery := 1
	if b.interval > 0 && b.binaryInterval > b.interval {
		binaryEvery = int(b.binaryInterval / b.interval)
		if binaryEvery < 1 {
			binaryEvery = 1
		}
	}

	tick := 0
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			tick++
			b.scan(tick, binaryEvery)
		}
	}
}

func (b *pollBackend) scan(tick, binaryEvery int) {
	b.mu.Lock()
	roots := make([]string, 0, len(b.roots))
	opts := make(map[string]pollOpts, len(b.roots))
	for r, o := range b.roots {
		roots = append(roots, r)
		opts[r] = o
	}
	b.mu.Unlock()

	current := make(map[string]os.FileInfo)
	for _, root := range roots {
		o := opts[root]
		_ = filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) || errors.Is(err, syscall.ENOTDIR) {
					return nil
				}
				if os.IsPermission(err) {
					if !b.ignorePermErrs {
						b.sink <- Delta{Kind: Fault, Path: filepath.ToSlash(p), Err: err}
					}
					return nil
				}
				return err
			}
			if o.maxDepth > 0 {
				rel, _ := filepath.Rel(root, p)
				if rel != "." {
					depth := 1
					for _, c := range rel {
						if c == filepath.Separator {
							depth++
						}
					}
					if depth > o.maxDepth {
						if d.IsDir() {
							return filepath.SkipDir
						}
						return nil
					}
				}
			}

			if !d.IsDir() && b.binSet.IsBinary(p) && tick%binaryEvery != 0 {
				b.mu.Lock()
				if fi, ok := b.prev[filepath.ToSlash(p)]; ok {
					current[filepath.ToSlash(p)] = fi
				}
				b.mu.Unlock()
				return nil
			}

			fi, ferr := d.Info()
			if ferr != nil {
				return nil
			}
			current[filepath.ToSlash(p)] = fi
			return nil
		})
	}

	b.mu.Lock()
	prev := b.prev
	b.prev = current
	b.mu.Unlock()

	b.diff(prev, current)
}

func (b *pollBackend) diff(prev, current map[string]os.FileInfo) {
	for p, fi := range current {
		old, existed := prev[p]
		dir, name := filepath.ToSlash(filepath.Dir(p)), filepath.Base(p)
		if !existed {
			b.log.Debug().Str("path", p).Msg("poll: discovered")
			b.sink <- Delta{Kind: Discovered, Dir: dir, Name: name, Path: p, IsDir: fi.IsDir(), Stat: toStat(fi, nil)}
			continue
		}
		if fi.IsDir() {
			continue // directory mtime changes are implied by child diffs
		}
		changedSize := fi.Size() != old.Size()
		changedTime := fi.ModTime() != old.ModTime() || fi.ModTime().UnixMilli() == 0
		changedIno := inoOf(fi) != 0 && inoOf(old) != 0 && inoOf(fi) != inoOf(old)
		if changedSize || changedTime || changedIno {
			b.log.Debug().Str("path", p).Bool("ino", changedIno).Msg("poll: modified")
			b.sink <- Delta{Kind: Modified, Dir: dir, Name: name, Path: p, IsDir: false, Stat: toStat(fi, nil)}
		}
	}
	for p, fi := range prev {
		if _, ok := current[p]; ok {
			continue
		}
		dir, name := filepath.ToSlash(filepath.Dir(p)), filepath.Base(p)
		b.log.Debug().Str("path", p).Msg("poll: lost")
		b.sink <- Delta{Kind: Lost, Dir: dir, Name: name, Path: p, IsDir: fi.IsDir()}
	}
}
