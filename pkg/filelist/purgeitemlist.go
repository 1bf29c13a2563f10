package filelist

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/pronovic/cedarbackup/pkg/cerrors"
	"github.com/pronovic/cedarbackup/pkg/util"
)

// PurgeItemList is a FilesystemList of files and directories to be
// purged. Unlike the base list, adding a directory's contents never adds
// the directory itself, so purging the contents of a collect directory
// never removes the collect directory.
type PurgeItemList struct {
	*FilesystemList
}

// NewPurgeItemList builds an empty PurgeItemList backed by fs.
func NewPurgeItemList(fs afero.Fs, log *logrus.Entry) *PurgeItemList {
	return &PurgeItemList{FilesystemList: New(fs, log)}
}

// AddDirContents adds only path's contents, never path itself,
// regardless of addSelf.
func (p *PurgeItemList) AddDirContents(path string, recursive, _ bool, linkDepth int, dereference bool) (int, error) {
	return p.addDirContentsInternal(p, path, false, recursive, linkDepth, dereference)
}

// RemoveYoungFiles drops regular files from the list whose age (in
// whole days, floor of now - mtime, clamped to 0) is strictly less than
// daysOld. Access time is not considered. Directories and symlinks are
// always kept.
// This removes entries from the list that should NOT be purged because
// they're too young; it does not touch the filesystem.
func (p *PurgeItemList) RemoveYoungFiles(daysOld int) (int, error) {
	if daysOld < 0 {
		return 0, cerrors.Value("days old value must be an integer >= 0")
	}
	removed := 0
	now := time.Now()
	for _, entry := range p.Entries() {
		if !isFile(p.fs, entry) || isSymlink(p.fs, entry) {
			continue
		}
		info, err := p.fs.Stat(entry)
		if err != nil {
			continue
		}
		// os.FileInfo exposes only mtime; atime isn't available through
		// afero's Fs interface, so age is based on mtime alone.
		age := util.CalculateFileAge(info.ModTime(), info.ModTime(), now)
		if age < daysOld {
			p.drop(entry)
			removed++
		}
	}
	return removed, nil
}

// PurgeItems deletes every entry in the list from the filesystem: files
// and symlinks first, then directories (which are only removed if
// empty, via rmdir semantics). Per-entry errors are swallowed. Returns
// the count of (files, dirs) actually removed.
func (p *PurgeItemList) PurgeItems() (files int, dirs int) {
	for _, entry := range p.Entries() {
		if !exists(p.fs, entry) {
			continue
		}
		if isFile(p.fs, entry) || isSymlink(p.fs, entry) {
			if err := p.fs.Remove(entry); err == nil {
				files++
			}
		}
	}
	for _, entry := range p.Entries() {
		if !exists(p.fs, entry) {
			continue
		}
		if isDir(p.fs, entry) && !isSymlink(p.fs, entry) {
			empty, err := afero.IsEmpty(p.fs, entry)
			if err == nil && empty {
				if err := p.fs.Remove(entry); err == nil {
					dirs++
				}
			}
		}
	}
	return files, dirs
}
