//go:build !linux

package permcheck

// HasReadSearch always reports false on platforms without Linux capability
// sets, so the per-dir backend wraps every permission error that its
// one-shot open-close retry did not clear as ErrOSWatchFault there.
func HasReadSearch() bool { return false }
