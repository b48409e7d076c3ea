// Package hostquirks detects platform quirks that force the orchestrator
// onto the polling backend (hosts lacking any fs-event primitive), and
// holds the default set of binary file extensions that poll on the slower
// binary interval.
package hostquirks

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// RequiresPolling reports whether the current host lacks a usable
// native/per-dir event source and must always use the polling backend.
// Checked at runtime via GOOS rather than with build tags, since watchkit
// ships one backend package rather than per-OS build variants of the
// orchestrator itself.
func RequiresPolling() bool {
	switch runtime.GOOS {
	case "aix", "js", "plan9":
		return true
	default:
		return false
	}
}

// defaultBinaryExt is the built-in set of extensions treated as binary for
// polling purposes. Callers may extend this via Options.
var defaultBinaryExt = map[string]bool{
	".exe": true, ".dll": true, ".so": true, ".dylib": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".ico": true,
	".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".xz": true, ".7z": true,
	".pdf": true, ".mp3": true, ".mp4": true, ".mov": true, ".avi": true, ".wasm": true,
	".db": true, ".sqlite": true, ".bin": true,
}

// BinarySet is a mutable copy of the default binary-extension set an
// Options value can extend.
type BinarySet struct {
	ext map[string]bool
}

// NewBinarySet returns a BinarySet seeded with the built-in defaults.
func NewBinarySet(extra ...string) *BinarySet {
	bs := &BinarySet{ext: make(map[string]bool, len(defaultBinaryExt)+len(extra))}
	for e := range defaultBinaryExt {
		bs.ext[e] = true
	}
	for _, e := range extra {
		bs.ext[strings.ToLower(e)] = true
	}
	return bs
}

// IsBinary reports whether path's extension is in the set.
func (bs *BinarySet) IsBinary(path string) bool {
	if bs == nil {
		return false
	}
	return bs.ext[strings.ToLower(filepath.Ext(path))]
}

// IsENOENT reports whether err indicates the path is simply gone, which is
// never fatal: the absence is the signal.
func IsENOENT(err error) bool {
	return os.IsNotExist(err)
}
