// Package filelist implements the exclude-aware filesystem lists Cedar
// Backup builds up during collect and purge: FilesystemList, the file-
// only BackupFileList (with digests and tar export) and the
// self-excluding PurgeItemList. Grounded on
// original_source/CedarBackup3/filesystem.py. All disk access goes
// through an afero.Fs so exclusion policy can be unit tested against an
// in-memory filesystem without touching real symlinks.
package filelist

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/pronovic/cedarbackup/pkg/cerrors"
)

// FilesystemList is a de-duplicated, sorted set of filesystem paths with
// configurable exclusion policy. It is embedded by BackupFileList and
// PurgeItemList, which add their own add/remove semantics.
type FilesystemList struct {
	fs  afero.Fs
	log *logrus.Entry

	entries map[string]struct{}

	ExcludeFiles            bool
	ExcludeDirs             bool
	ExcludeLinks            bool
	ExcludePaths            []string
	ExcludePatterns         []*regexp.Regexp
	ExcludeBasenamePatterns []*regexp.Regexp
	IgnoreFile              string
}

// New builds an empty FilesystemList with no configured exclusions,
// backed by fs. A nil log discards log output.
func New(fs afero.Fs, log *logrus.Entry) *FilesystemList {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &FilesystemList{fs: fs, log: log, entries: map[string]struct{}{}}
}

// Entries returns the list's current contents, sorted.
func (l *FilesystemList) Entries() []string {
	out := make([]string, 0, len(l.entries))
	for e := range l.entries {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// Len reports the number of entries currently in the list.
func (l *FilesystemList) Len() int { return len(l.entries) }

func (l *FilesystemList) add(path string) {
	l.entries[path] = struct{}{}
}

func (l *FilesystemList) drop(path string) {
	delete(l.entries, path)
}

func normalizePath(path string) string {
	return filepath.ToSlash(filepath.Clean(path))
}

func lstat(fs afero.Fs, path string) (os.FileInfo, bool, error) {
	if ls, ok := fs.(afero.Lstater); ok {
		info, wasLstat, err := ls.LstatIfPossible(path)
		return info, wasLstat, err
	}
	info, err := fs.Stat(path)
	return info, false, err
}

func isSymlink(fs afero.Fs, path string) bool {
	info, wasLstat, err := lstat(fs, path)
	if err != nil || !wasLstat || info == nil {
		return false
	}
	return info.Mode()&os.ModeSymlink != 0
}

func exists(fs afero.Fs, path string) bool {
	_, err := fs.Stat(path)
	return err == nil
}

func isFile(fs afero.Fs, path string) bool {
	info, err := fs.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func isDir(fs afero.Fs, path string) bool {
	info, err := fs.Stat(path)
	return err == nil && info.IsDir()
}

// dereferenceLink resolves a one-level symlink to an absolute path,
// returning path unchanged if it isn't a link. Matches
// util.py.dereferenceLink's single-hop, absolute-normalizing behavior.
func dereferenceLink(fs afero.Fs, path string) string {
	linker, ok := fs.(afero.LinkReader)
	if !ok || !isSymlink(fs, path) {
		return path
	}
	target, err := linker.ReadlinkIfPossible(path)
	if err != nil {
		return path
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(path), target)
	}
	return normalizePath(target)
}

// CompileExcludePattern wraps pattern as ^pattern$ and compiles it, per
// the convention that exclude-list patterns (ExcludePatterns,
// ExcludeBasenamePatterns) are bounded at front and back. Callers
// building a FilesystemList from config should route exclude patterns
// through this rather than regexp.Compile directly.
func CompileExcludePattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("^" + pattern + "$")
	if err != nil {
		return nil, cerrors.WrapValue(err, "pattern is not a valid regular expression")
	}
	return re, nil
}

func (l *FilesystemList) excludedByPolicy(path string, checkDirsFlag, checkFilesFlag bool) bool {
	if checkFilesFlag && l.ExcludeFiles {
		return true
	}
	if checkDirsFlag && l.ExcludeDirs {
		return true
	}
	for _, excluded := range l.ExcludePaths {
		if excluded == path {
			return true
		}
	}
	for _, pattern := range l.ExcludePatterns {
		if pattern.MatchString(path) {
			return true
		}
	}
	base := filepath.Base(path)
	for _, pattern := range l.ExcludeBasenamePatterns {
		if pattern.MatchString(base) {
			return true
		}
	}
	return false
}

// AddFile adds path to the list if it exists, is a regular file (or a
// symlink to one), and survives the configured exclusions. Returns 1 if
// added, 0 if filtered out.
func (l *FilesystemList) AddFile(path string) (int, error) {
	path = normalizePath(path)
	if !exists(l.fs, path) || !isFile(l.fs, path) {
		return 0, cerrors.Value("path %q is not a file or does not exist on disk", path)
	}
	if l.ExcludeLinks && isSymlink(l.fs, path) {
		l.log.Debugf("path %q is excluded based on excludeLinks", path)
		return 0, nil
	}
	if l.excludedByPolicy(path, false, true) {
		l.log.Debugf("path %q is excluded by policy", path)
		return 0, nil
	}
	l.add(path)
	return 1, nil
}

// AddDir adds the directory path itself (not its contents) to the list,
// subject to exclusions. ignoreFile does not apply here.
func (l *FilesystemList) AddDir(path string) (int, error) {
	path = normalizePath(path)
	if !exists(l.fs, path) || !isDir(l.fs, path) {
		return 0, cerrors.Value("path %q is not a directory or does not exist on disk", path)
	}
	if l.ExcludeLinks && isSymlink(l.fs, path) {
		l.log.Debugf("path %q is excluded based on excludeLinks", path)
		return 0, nil
	}
	if l.excludedByPolicy(path, true, false) {
		l.log.Debugf("path %q is excluded by policy", path)
		return 0, nil
	}
	l.add(path)
	return 1, nil
}

// dirAdder lets BackupFileList/PurgeItemList override how a directory
// entry gets added while reusing addDirContentsInternal's recursion.
type dirAdder interface {
	AddDir(path string) (int, error)
	AddFile(path string) (int, error)
}

// AddDirContents recursively adds the contents of path (and, if addSelf,
// path itself) to the list. linkDepth controls how many levels of
// symlinked subdirectories are followed; dereference additionally adds
// the resolved target alongside a followed link.
func (l *FilesystemList) AddDirContents(path string, recursive, addSelf bool, linkDepth int, dereference bool) (int, error) {
	return l.addDirContentsInternal(l, path, addSelf, recursive, linkDepth, dereference)
}

func (l *FilesystemList) addDirContentsInternal(self dirAdder, path string, includePath, recursive bool, linkDepth int, dereference bool) (int, error) {
	path = normalizePath(path)
	if !exists(l.fs, path) || !isDir(l.fs, path) {
		return 0, cerrors.Value("path %q is not a directory or does not exist on disk", path)
	}

	added := 0
	for _, excluded := range l.ExcludePaths {
		if excluded == path {
			return added, nil
		}
	}
	for _, pattern := range l.ExcludePatterns {
		if pattern.MatchString(path) {
			return added, nil
		}
	}
	base := filepath.Base(path)
	for _, pattern := range l.ExcludeBasenamePatterns {
		if pattern.MatchString(base) {
			return added, nil
		}
	}
	if l.IgnoreFile != "" && exists(l.fs, filepath.Join(path, l.IgnoreFile)) {
		l.log.Debugf("path %q is excluded based on ignore file", path)
		return added, nil
	}

	if includePath {
		n, err := self.AddDir(path)
		if err != nil {
			return added, err
		}
		added += n
	}

	children, err := afero.ReadDir(l.fs, path)
	if err != nil {
		return added, cerrors.WrapIO(err, "error listing directory "+path)
	}
	for _, child := range children {
		entryPath := normalizePath(filepath.Join(path, child.Name()))
		switch {
		case isFile(l.fs, entryPath):
			if linkDepth > 0 && dereference {
				deref := dereferenceLink(l.fs, entryPath)
				if deref != entryPath {
					n, err := self.AddFile(deref)
					if err != nil {
						return added, err
					}
					added += n
				}
			}
			n, err := self.AddFile(entryPath)
			if err != nil {
				return added, err
			}
			added += n
		case isDir(l.fs, entryPath):
			if isSymlink(l.fs, entryPath) {
				if recursive {
					if linkDepth > 0 {
						newDepth := linkDepth - 1
						if dereference {
							deref := dereferenceLink(l.fs, entryPath)
							if deref != entryPath {
								n, err := l.addDirContentsInternal(self, deref, true, recursive, newDepth, dereference)
								if err != nil {
									return added, err
								}
								added += n
							}
							n, err := self.AddDir(entryPath)
							if err != nil {
								return added, err
							}
							added += n
						} else {
							n, err := l.addDirContentsInternal(self, entryPath, false, recursive, newDepth, dereference)
							if err != nil {
								return added, err
							}
							added += n
						}
					} else {
						n, err := self.AddDir(entryPath)
						if err != nil {
							return added, err
						}
						added += n
					}
				} else {
					n, err := self.AddDir(entryPath)
					if err != nil {
						return added, err
					}
					added += n
				}
			} else {
				if recursive {
					newDepth := linkDepth - 1
					n, err := l.addDirContentsInternal(self, entryPath, true, recursive, newDepth, dereference)
					if err != nil {
						return added, err
					}
					added += n
				} else {
					n, err := self.AddDir(entryPath)
					if err != nil {
						return added, err
					}
					added += n
				}
			}
		}
		// broken symlinks (neither file nor dir) are silently skipped
	}
	return added, nil
}

// RemoveFiles removes file entries, optionally restricted to those whose
// full path matches pattern (unanchored). With no pattern, every file
// entry currently present on disk is removed.
func (l *FilesystemList) RemoveFiles(pattern string) (int, error) {
	return l.removeMatching(pattern, func(p string) bool { return exists(l.fs, p) && isFile(l.fs, p) })
}

// RemoveDirs removes directory entries analogous to RemoveFiles.
func (l *FilesystemList) RemoveDirs(pattern string) (int, error) {
	return l.removeMatching(pattern, func(p string) bool { return exists(l.fs, p) && isDir(l.fs, p) })
}

// RemoveLinks removes symlink entries analogous to RemoveFiles.
func (l *FilesystemList) RemoveLinks(pattern string) (int, error) {
	return l.removeMatching(pattern, func(p string) bool { return exists(l.fs, p) && isSymlink(l.fs, p) })
}

func (l *FilesystemList) removeMatching(pattern string, kind func(string) bool) (int, error) {
	var compiled *regexp.Regexp
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return 0, cerrors.WrapValue(err, "pattern is not a valid regular expression")
		}
		compiled = re
	}
	removed := 0
	for _, entry := range l.Entries() {
		if !kind(entry) {
			continue
		}
		if compiled != nil && !compiled.MatchString(entry) {
			continue
		}
		l.drop(entry)
		removed++
	}
	return removed, nil
}

// RemoveMatch removes every entry (regardless of type) matching pattern,
// unanchored.
func (l *FilesystemList) RemoveMatch(pattern string) (int, error) {
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return 0, cerrors.WrapValue(err, "pattern is not a valid regular expression")
	}
	removed := 0
	for _, entry := range l.Entries() {
		if compiled.MatchString(entry) {
			l.drop(entry)
			removed++
		}
	}
	return removed, nil
}

// RemoveInvalid drops every entry that no longer exists on disk.
func (l *FilesystemList) RemoveInvalid() int {
	removed := 0
	for _, entry := range l.Entries() {
		if !exists(l.fs, entry) {
			l.drop(entry)
			removed++
		}
	}
	return removed
}

// Normalize is a no-op retained for parity with the original API: the
// underlying set representation already guarantees uniqueness and
// Entries() always returns a sorted view.
func (l *FilesystemList) Normalize() {}

// Verify reports whether every entry in the list still exists on disk.
func (l *FilesystemList) Verify() bool {
	for entry := range l.entries {
		if !exists(l.fs, entry) {
			return false
		}
	}
	return true
}
