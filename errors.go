package watchkit

import "errors"

// Sentinel errors, checked with errors.Is; wrapped variants carry the
// underlying cause.
var (
	// ErrClosed is returned by Add/Unwatch once Close has been called.
	ErrClosed = errors.New("watchkit: watcher closed")

	// ErrExpansionLimit is surfaced as an `error` event (and returned from
	// Add) when a brace expansion would unroll into more alternatives than
	// configured.
	ErrExpansionLimit = errors.New("watchkit: brace expansion limit exceeded")

	// ErrInvalidArgument is returned by Add for a non-string/empty watch
	// path; watcher state is left unchanged.
	ErrInvalidArgument = errors.New("watchkit: invalid watch path")

	// ErrBackendInitFailed is returned by New when no backend can be
	// constructed at all: the polling backend when polling is in use,
	// otherwise the per-dir backend after the native backend also failed.
	ErrBackendInitFailed = errors.New("watchkit: backend init failed")

	// ErrOSWatchFault marks a recoverable backend error: the one-shot
	// open-close recovery failed, and the affected handle was dropped
	// without bringing down the rest of the watcher.
	ErrOSWatchFault = errors.New("watchkit: OS watch fault")
)
