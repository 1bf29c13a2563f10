// Package peer implements the uniform backup-peer abstraction Cedar
// Backup's stage action drives: LocalPeer copies files on the local
// filesystem, RemotePeer copies them over an rcp/rsh-compatible remote
// shell. Grounded on original_source/CedarBackup3/peer.py.
package peer

import (
	"context"
	"os"

	"github.com/pronovic/cedarbackup/pkg/config"
)

// DefaultCollectIndicator is the indicator file a peer writes once its
// own collect action has finished.
const DefaultCollectIndicator = "cback.collect"

// DefaultStageIndicator is the indicator file the master writes into a
// peer's collect directory once staging from that peer is complete.
const DefaultStageIndicator = "cback.stage"

// Ownership is the (uid, gid) pair applied to staged files when running
// as root, matching the original implementation's getUidGid tuple.
type Ownership struct {
	UID int
	GID int
}

// Peer is the interface shared by LocalPeer and RemotePeer, matching
// spec.md §4.5's "common operations".
type Peer interface {
	Name() string
	IgnoreFailureMode() config.IgnoreFailureMode

	// StagePeer copies every file out of the peer's collect directory
	// into targetDir, optionally applying ownership/permissions, and
	// returns the count of files copied. Fails with an I/O error if
	// nothing was copied.
	StagePeer(ctx context.Context, targetDir string, ownership *Ownership, permissions *os.FileMode) (int, error)

	// CheckCollectIndicator reports whether the peer has finished
	// collecting, using indicatorName if non-empty or
	// DefaultCollectIndicator otherwise.
	CheckCollectIndicator(ctx context.Context, indicatorName string) (bool, error)

	// WriteStageIndicator marks this peer as staged, using indicatorName
	// if non-empty or DefaultStageIndicator otherwise.
	WriteStageIndicator(ctx context.Context, indicatorName string, ownership *Ownership, permissions *os.FileMode) error
}

// ShouldIgnoreFailure decides whether a stage failure for a peer in the
// given mode should be logged and skipped rather than aborting the run,
// per spec.md §4.5: none=never, all=always, daily=non-start-of-week
// days only, weekly=start-of-week or full-backup runs only.
func ShouldIgnoreFailure(mode config.IgnoreFailureMode, fullBackup, todayIsStart bool) bool {
	switch mode {
	case config.IgnoreFailureAll:
		return true
	case config.IgnoreFailureNone, "":
		return false
	default:
		if fullBackup || todayIsStart {
			return mode == config.IgnoreFailureWeekly
		}
		return mode == config.IgnoreFailureDaily
	}
}
