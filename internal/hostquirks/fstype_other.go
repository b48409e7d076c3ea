//go:build !linux

package hostquirks

// IsNetworkFS always reports false outside Linux: watchkit has no portable
// statfs-equivalent wired up for darwin/bsd/windows today, so those
// platforms just get the native backend's usual behavior on network mounts.
func IsNetworkFS(path string) bool { return false }
