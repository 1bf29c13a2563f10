//go:build !windows

package engine

import (
	"os"
	"syscall"
)

// statOwner extracts the uid/gid from a POSIX FileInfo, where available.
func statOwner(info os.FileInfo) (uid, gid int, ok bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, false
	}
	return int(stat.Uid), int(stat.Gid), true
}
