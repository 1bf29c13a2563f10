//go:build !windows

package command

import "runtime"

// getPlatform returns the POSIX platform profile. Cedar Backup's
// disc-writing paths assume POSIX mount/umount semantics (spec.md §1
// Non-goals), so this is the only platform with a real writer/mount
// implementation; see pkg/engine's checkStoredData for where that split
// actually bites.
func getPlatform() *Platform {
	return &Platform{
		OS:    runtime.GOOS,
		Shell: "bash",
		Arg:   "-c",
	}
}

// SupportsMount reports whether this platform can run the mount/umount/
// eject flows spec.md §4.4/§9 describes as UNIX-specific.
func (p *Platform) SupportsMount() bool { return true }
