package engine

import (
	"context"

	"github.com/pronovic/cedarbackup/pkg/cerrors"
	"github.com/pronovic/cedarbackup/pkg/config"
	"github.com/pronovic/cedarbackup/pkg/filelist"
)

func buildPurgeList(e *ActionEngine, dir config.PurgeDir) (*filelist.PurgeItemList, error) {
	list := filelist.NewPurgeItemList(e.FS, e.Log)
	for _, p := range dir.Exclusions {
		re, err := filelist.CompileExcludePattern(p)
		if err != nil {
			return nil, err
		}
		list.ExcludePatterns = append(list.ExcludePatterns, re)
	}
	if _, err := list.AddDirContents(dir.AbsolutePath, true, false, 0, false); err != nil {
		return nil, err
	}
	return list, nil
}

// ExecutePurge implements spec.md §4.6's purge action: for every
// configured purge directory, remove files younger than daysOld from
// consideration, then delete everything remaining (files, then any
// directories left empty by those deletions).
func (e *ActionEngine) ExecutePurge(ctx context.Context) error {
	if e.Config.Purge == nil {
		return cerrors.Config("purge is not configured")
	}

	var failures []string
	var totalFiles, totalDirs int
	for _, dir := range e.Config.Purge.Dirs {
		if !e.isDir(dir.AbsolutePath) {
			e.logf("purge directory %q does not exist; skipping", dir.AbsolutePath)
			continue
		}
		list, err := buildPurgeList(e, dir)
		if err != nil {
			failures = append(failures, dir.AbsolutePath+": "+err.Error())
			continue
		}
		if _, err := list.RemoveYoungFiles(dir.DaysOld); err != nil {
			failures = append(failures, dir.AbsolutePath+": "+err.Error())
			continue
		}
		files, dirs := list.PurgeItems()
		totalFiles += files
		totalDirs += dirs
		e.logf("purged %d file(s) and %d director(ies) under %q", files, dirs, dir.AbsolutePath)
	}

	if len(failures) > 0 {
		return cerrors.IO("purge failed for %d director(ies): %v", len(failures), failures)
	}
	e.logf("purge complete: %d file(s), %d director(ies) removed", totalFiles, totalDirs)
	return nil
}
