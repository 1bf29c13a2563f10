//go:build windows

package command

// getPlatform returns a Windows profile. Per spec.md §1 Non-goals,
// Windows is not a supported backup target: the disc-writing paths
// assume POSIX mount/umount semantics and POSIX external tools. This
// build still compiles on Windows (the subprocess runner itself is
// portable) but pkg/engine's mount/consistency-check step declines to
// run here; see Platform.SupportsMount.
func getPlatform() *Platform {
	return &Platform{
		OS:    "windows",
		Shell: "cmd",
		Arg:   "/c",
	}
}

// SupportsMount always reports false on Windows, matching spec.md §9's
// "the consistency-check step explicitly declines to run on non-POSIX".
func (p *Platform) SupportsMount() bool { return false }
