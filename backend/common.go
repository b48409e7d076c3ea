package backend

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
)

// ErrBackendInit is returned when a backend's underlying OS facility can't
// be initialized at all.
var ErrBackendInit = errors.New("backend: init failed")

// ErrOSWatchFault marks a recoverable backend error: the one-shot
// open-close recovery failed too.
var ErrOSWatchFault = errors.New("backend: OS watch fault")

// toStat converts an os.FileInfo (possibly nil on error) into *Stat.
func toStat(fi os.FileInfo, err error) *Stat {
	if err != nil || fi == nil {
		return nil
	}
	return &Stat{
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
		Mode:    uint32(fi.Mode()),
		IsDir:   fi.IsDir(),
		Ino:     inoOf(fi),
	}
}

// walkInitial performs the recursive initial scan common to the native and
// per-dir backends, invoking emit for every entry found (excluding root
// itself) up to opts.MaxDepth. A fault encountered mid-walk is non-fatal to
// the walk itself: ENOENT/ENOTDIR are always skipped, and EPERM/EACCES is
// reported via emit as a Fault unless ignorePermErrs is set.
func walkInitial(root string, opts WatchOptions, ignorePermErrs bool, emit func(Delta)) error {
	depthOf := func(p string) int {
		rel, err := filepath.Rel(root, p)
		if err != nil || rel == "." {
			return 0
		}
		n := 1
		for _, c := range rel {
			if c == filepath.Separator {
				n++
			}
		}
		return n
	}

	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) || errors.Is(err, syscall.ENOTDIR) {
				return nil
			}
			if os.IsPermission(err) {
				if !ignorePermErrs {
					emit(Delta{Kind: Fault, Path: filepath.ToSlash(p), Err: err})
				}
				return nil
			}
			return err
		}
		if p == root {
			return nil
		}
		if opts.MaxDepth > 0 && depthOf(p) > opts.MaxDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, statErr := d.Info()
		emit(Delta{
			Kind:  Discovered,
			Dir:   filepath.ToSlash(filepath.Dir(p)),
			Name:  d.Name(),
			Path:  filepath.ToSlash(p),
			IsDir: d.IsDir(),
			Stat:  toStat(info, statErr),
		})
		return nil
	})
}

// walkAndAdd is the fallback path for fsnotify builds/platforms where the
// "/..." recursive Add convention isn't supported: walk the subtree and add
// a plain per-directory watch to each one, same as the per-dir backend
// does.
func walkAndAdd(fsw *fsnotify.Watcher, root string, maxDepth int) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) || os.IsPermission(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return fsw.Add(p)
	})
}
