//go:build linux

package hostquirks

import "golang.org/x/sys/unix"

// Well-known network/pseudo filesystem magic numbers, matching
// golang.org/x/sys/unix's Statfs_t.Type values. Notifications on network
// filesystems (NFS, SMB, FUSE) generally don't work; IsNetworkFS lets the
// orchestrator warn about that instead of silently never firing.
const (
	nfsSuperMagic  = 0x6969
	smbSuperMagic  = 0x517B
	cifsMagicNum   = 0xFF534D42
	fuseSuperMagic = 0x65735546
	nfs4SuperMagic = 0x6E667364
)

// IsNetworkFS reports whether path lives on a network or FUSE-backed
// filesystem, where inotify/native event delivery is known to be unreliable
// or entirely absent.
func IsNetworkFS(path string) bool {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return false
	}
	switch uint32(st.Type) {
	case nfsSuperMagic, smbSuperMagic, cifsMagicNum, fuseSuperMagic, nfs4SuperMagic:
		return true
	default:
		return false
	}
}
