package engine

import (
	"context"
	"os/user"
	"strconv"

	"github.com/pronovic/cedarbackup/pkg/cerrors"
)

// ExecuteValidate implements spec.md §4.6's validate action: a read-only
// walk of every configured collect/stage/store/purge directory,
// confirming each exists, is a directory, and (where a backup
// user/group is configured) is owned by it. Every failure is collected
// into one aggregate error rather than returned on the first miss.
func (e *ActionEngine) ExecuteValidate(ctx context.Context) error {
	var paths []string
	if e.Config.Collect != nil {
		paths = append(paths, e.Config.Collect.TargetDir)
		for _, s := range e.Config.Collect.Sources {
			paths = append(paths, s.AbsolutePath)
		}
	}
	if e.Config.Stage != nil {
		paths = append(paths, e.Config.Stage.TargetDir)
	}
	if e.Config.Store != nil && e.Config.Store.SourceDir != "" {
		paths = append(paths, e.Config.Store.SourceDir)
	}
	if e.Config.Purge != nil {
		for _, d := range e.Config.Purge.Dirs {
			paths = append(paths, d.AbsolutePath)
		}
	}

	wantUID, wantGID, checkOwner := e.resolveBackupOwner()

	var failures []string
	for _, path := range paths {
		info, err := e.FS.Stat(path)
		if err != nil {
			failures = append(failures, path+": does not exist")
			continue
		}
		if !info.IsDir() {
			failures = append(failures, path+": not a directory")
			continue
		}
		if checkOwner {
			if uid, gid, ok := statOwner(info); ok && (uid != wantUID || gid != wantGID) {
				failures = append(failures, path+": not owned by "+e.Config.BackupUser+":"+e.Config.BackupGroup)
			}
		}
	}

	if len(failures) > 0 {
		return cerrors.IO("validation failed for %d path(s): %v", len(failures), failures)
	}
	return nil
}

// resolveBackupOwner resolves the configured backup user/group to a
// uid/gid pair. checkOwner is false when either field is unset or
// cannot be resolved on this system, in which case ownership is not
// checked at all rather than treated as a mismatch.
func (e *ActionEngine) resolveBackupOwner() (uid, gid int, checkOwner bool) {
	if e.Config.BackupUser == "" || e.Config.BackupGroup == "" {
		return 0, 0, false
	}
	u, err := user.Lookup(e.Config.BackupUser)
	if err != nil {
		return 0, 0, false
	}
	g, err := user.LookupGroup(e.Config.BackupGroup)
	if err != nil {
		return 0, 0, false
	}
	uidN, err1 := strconv.Atoi(u.Uid)
	gidN, err2 := strconv.Atoi(g.Gid)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return uidN, gidN, true
}
