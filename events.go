package watchkit

import "time"

// Op identifies the kind of semantic event a Watcher can emit.
type Op int

const (
	OpAdd Op = iota
	OpChange
	OpUnlink
	OpAddDir
	OpUnlinkDir
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpChange:
		return "change"
	case OpUnlink:
		return "unlink"
	case OpAddDir:
		return "addDir"
	case OpUnlinkDir:
		return "unlinkDir"
	default:
		return "unknown"
	}
}

// Stat is the platform stat record attached to an Event when available.
type Stat struct {
	Size    int64
	ModTime time.Time
	Mode    uint32
	IsDir   bool
	// Ino is the platform inode number, used by the polling backend to spot
	// an editor's safe-save replacing a file in place.
	Ino uint64
}

// Event is a single semantic filesystem event delivered on a Watcher's
// channels.
type Event struct {
	Op   Op
	Path string
	Stat *Stat // nil unless a stat was available or WithAlwaysStat is set
}

// RawEvent carries an unprocessed backend event for the Raw channel, for
// debugging; its Payload is backend-specific (an fsnotify.Event, a poll
// delta, etc).
type RawEvent struct {
	Backend string
	Path    string
	Payload any
}
