//go:build linux

// Package permcheck classifies a permission fault observed by the per-dir
// backend, using the process capability set on Linux.
package permcheck

import "github.com/syndtr/gocapability/capability"

// HasReadSearch reports whether the current process holds
// CAP_DAC_READ_SEARCH in its effective set, which would let it read a
// directory regardless of its mode bits. The per-dir backend consults it
// only after its one-shot open-close retry has failed: without the
// capability the permission error is wrapped as ErrOSWatchFault, with it the
// original error is returned unwrapped.
func HasReadSearch() bool {
	caps, err := capability.NewPid2(0)
	if err != nil {
		return false
	}
	if err := caps.Load(); err != nil {
		return false
	}
	return caps.Get(capability.EFFECTIVE, capability.CAP_DAC_READ_SEARCH)
}
