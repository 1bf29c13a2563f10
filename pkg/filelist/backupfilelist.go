package filelist

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/pronovic/cedarbackup/pkg/cerrors"
	"github.com/pronovic/cedarbackup/pkg/command"
	"github.com/pronovic/cedarbackup/pkg/knapsack"
)

// TarMode selects the compression applied by GenerateTarfile.
type TarMode int

const (
	TarPlain TarMode = iota
	TarGzip
	TarBzip2
)

// BackupFileList is a FilesystemList containing only files (soft links
// count as files). It adds digest/size bookkeeping and tar export on top
// of the base exclusion machinery.
type BackupFileList struct {
	*FilesystemList

	// Runner, if set, is used to shell out to the bzip2 binary for
	// TarBzip2 mode, the same external-tool pattern GenerateTarfile's
	// sibling components (mkisofs, cdrecord, growisofs) already use via
	// pkg/command. Left nil, TarBzip2 mode fails with a clear error
	// rather than silently writing a plain or gzip stream under that
	// label.
	Runner *command.Runner
}

// NewBackupFileList builds an empty BackupFileList backed by fs.
func NewBackupFileList(fs afero.Fs, log *logrus.Entry) *BackupFileList {
	return &BackupFileList{FilesystemList: New(fs, log)}
}

// AddDir only accepts a symlink to a directory: a backup list holds
// files, and a symlink-to-dir is technically a "file" from tar's point
// of view, but a real directory is not.
func (b *BackupFileList) AddDir(path string) (int, error) {
	path = normalizePath(path)
	if isDir(b.fs, path) && !isSymlink(b.fs, path) {
		return 0, nil
	}
	return b.FilesystemList.AddDir(path)
}

// AddDirContents recurses using BackupFileList's own AddDir/AddFile
// overrides rather than the base FilesystemList's.
func (b *BackupFileList) AddDirContents(path string, recursive, addSelf bool, linkDepth int, dereference bool) (int, error) {
	return b.addDirContentsInternal(b, path, addSelf, recursive, linkDepth, dereference)
}

// TotalSize sums the size of every regular file in the list. Symlinks
// and entries missing from disk contribute 0.
func (b *BackupFileList) TotalSize() int64 {
	var total int64
	for _, entry := range b.Entries() {
		if isFile(b.fs, entry) && !isSymlink(b.fs, entry) {
			if info, err := b.fs.Stat(entry); err == nil {
				total += info.Size()
			}
		}
	}
	return total
}

// GenerateSizeMap maps each entry to its size in bytes; symlinks map to
// zero. Entries missing from disk are omitted.
func (b *BackupFileList) GenerateSizeMap() map[string]int64 {
	table := map[string]int64{}
	for _, entry := range b.Entries() {
		switch {
		case isSymlink(b.fs, entry):
			table[entry] = 0
		case isFile(b.fs, entry):
			if info, err := b.fs.Stat(entry); err == nil {
				table[entry] = info.Size()
			}
		}
	}
	return table
}

// GenerateDigestMap maps each regular (non-symlink) file to its hex
// SHA-1 digest. If stripPrefix is non-empty, the first occurrence of it
// is stripped from each key, letting callers compare digest maps rooted
// at different locations.
func (b *BackupFileList) GenerateDigestMap(stripPrefix string) (map[string]string, error) {
	table := map[string]string{}
	for _, entry := range b.Entries() {
		if !isFile(b.fs, entry) || isSymlink(b.fs, entry) {
			continue
		}
		digest, err := generateDigest(b.fs, entry)
		if err != nil {
			return nil, err
		}
		key := entry
		if stripPrefix != "" {
			key = strings.Replace(entry, stripPrefix, "", 1)
		}
		table[key] = digest
	}
	return table, nil
}

func (b *BackupFileList) knapsackTable(capacity int64, enforceCapacity bool) (map[string]int64, error) {
	table := map[string]int64{}
	for _, entry := range b.Entries() {
		switch {
		case isSymlink(b.fs, entry):
			table[entry] = 0
		case isFile(b.fs, entry):
			info, err := b.fs.Stat(entry)
			if err != nil {
				continue
			}
			size := info.Size()
			if enforceCapacity && size > capacity {
				return nil, cerrors.Value("file %q cannot fit in capacity %d", entry, capacity)
			}
			table[entry] = size
		}
	}
	return table, nil
}

// GenerateFitted returns the subset of entries whose sizes sum to no
// more than capacity, chosen via the given knapsack algorithm.
func (b *BackupFileList) GenerateFitted(capacity int64, algo knapsack.Algorithm) ([]string, error) {
	table, err := b.knapsackTable(capacity, false)
	if err != nil {
		return nil, err
	}
	selected, _ := knapsack.Fit(table, capacity, algo, func(a, c string) bool { return a < c })
	return selected, nil
}

// GenerateSpan splits the list into SpanItems that each fit in capacity,
// repeatedly running the knapsack until every entry has been placed.
// Fails if any single entry exceeds capacity, or if an iteration selects
// nothing (which should never happen given the prior validation).
func (b *BackupFileList) GenerateSpan(capacity int64, algo knapsack.Algorithm) ([]SpanItem, error) {
	table, err := b.knapsackTable(capacity, true)
	if err != nil {
		return nil, err
	}
	var spans []SpanItem
	iteration := 0
	for len(table) > 0 {
		iteration++
		selected, size := knapsack.Fit(table, capacity, algo, func(a, c string) bool { return a < c })
		if len(selected) == 0 {
			return nil, cerrors.Value("after iteration %d, unable to add any new items", iteration)
		}
		for _, key := range selected {
			delete(table, key)
		}
		utilization := (float64(size) / float64(capacity)) * 100.0
		spans = append(spans, SpanItem{FileList: selected, Size: size, Capacity: capacity, Utilization: utilization})
	}
	return spans, nil
}

// GenerateTarfile writes every entry, non-recursively, into a GNU-format
// tar archive at path. flat strips each entry down to its basename
// within the archive. Per-entry errors are fatal unless ignore is set,
// in which case they're logged and skipped. On any fatal error, the
// partial archive is removed from disk before the error is returned.
// TarBzip2 mode shells out to the bzip2 binary via b.Runner rather than
// writing directly, since compress/bzip2 in the standard library is
// read-only; ctx governs that subprocess and is otherwise unused.
func (b *BackupFileList) GenerateTarfile(ctx context.Context, path string, mode TarMode, ignore, flat bool) error {
	if b.Len() == 0 {
		return cerrors.Value("empty list cannot be used to generate tarfile")
	}

	if mode == TarBzip2 {
		return b.generateBzip2Tarfile(ctx, path, ignore, flat)
	}

	out, err := b.fs.Create(path)
	if err != nil {
		return cerrors.WrapIO(err, "error creating tarfile "+path)
	}

	var w io.WriteCloser = out
	if mode == TarGzip {
		w = gzip.NewWriter(out)
	}

	tw := tar.NewWriter(w)

	fail := func(cause error) error {
		tw.Close()
		w.Close()
		out.Close()
		_ = b.fs.Remove(path)
		return cause
	}

	if err := b.writeTarEntries(tw, ignore, flat); err != nil {
		return fail(err)
	}

	if err := tw.Close(); err != nil {
		return fail(cerrors.WrapIO(err, "error closing tar writer"))
	}
	if wc, ok := w.(*gzip.Writer); ok {
		if err := wc.Close(); err != nil {
			return fail(cerrors.WrapIO(err, "error closing gzip writer"))
		}
	}
	if err := out.Close(); err != nil {
		_ = b.fs.Remove(path)
		return cerrors.WrapIO(err, "error closing tarfile "+path)
	}
	return nil
}

// writeTarEntries writes every list entry into tw, applying the
// ignore/flat semantics GenerateTarfile documents. Returns the first
// fatal error, or nil if ignore absorbed every per-entry failure.
func (b *BackupFileList) writeTarEntries(tw *tar.Writer, ignore, flat bool) error {
	for _, entry := range b.Entries() {
		info, err := b.fs.Stat(entry)
		if err != nil {
			if ignore {
				b.log.Infof("unable to add file %q; going on anyway", entry)
				continue
			}
			return cerrors.WrapIO(err, "unable to stat "+entry)
		}
		name := entry
		if flat {
			name = filepath.Base(entry)
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			if ignore {
				b.log.Infof("unable to add file %q; going on anyway", entry)
				continue
			}
			return cerrors.WrapIO(err, "unable to build tar header for "+entry)
		}
		hdr.Name = name
		hdr.Format = tar.FormatGNU
		if err := tw.WriteHeader(hdr); err != nil {
			if ignore {
				b.log.Infof("unable to add file %q; going on anyway", entry)
				continue
			}
			return cerrors.WrapIO(err, "unable to add file "+entry)
		}
		if info.Mode().IsRegular() {
			f, err := b.fs.Open(entry)
			if err != nil {
				if ignore {
					b.log.Infof("unable to add file %q; going on anyway", entry)
					continue
				}
				return cerrors.WrapIO(err, "unable to open "+entry)
			}
			_, copyErr := io.Copy(tw, f)
			f.Close()
			if copyErr != nil {
				if ignore {
					b.log.Infof("unable to add file %q; going on anyway", entry)
					continue
				}
				return cerrors.WrapIO(copyErr, "unable to add file "+entry)
			}
		}
	}
	return nil
}

// generateBzip2Tarfile builds the plain tar stream in memory, then pipes
// it through the bzip2 binary's stdin/stdout, the same external-tool
// pattern pkg/writer uses for mkisofs/cdrecord/growisofs. Buffering is
// required here: bzip2 must see the complete plaintext stream before it
// can emit any compressed output, so this can't stream incrementally to
// the destination file the way the plain/gzip modes do.
func (b *BackupFileList) generateBzip2Tarfile(ctx context.Context, path string, ignore, flat bool) error {
	if b.Runner == nil {
		return cerrors.Value("bzip2 tar writing requires a command.Runner (BackupFileList.Runner is nil)")
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := b.writeTarEntries(tw, ignore, flat); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return cerrors.WrapIO(err, "error closing tar writer")
	}

	cmd := b.Runner.NewCmd(ctx, "bzip2", "-c")
	cmd.Stdin = &buf
	res, err := b.Runner.Run(cmd, command.Options{})
	if err != nil {
		return cerrors.WrapIO(err, "error running bzip2")
	}

	if err := afero.WriteFile(b.fs, path, []byte(res.Stdout), 0o644); err != nil {
		_ = b.fs.Remove(path)
		return cerrors.WrapIO(err, "error writing tarfile "+path)
	}
	return nil
}

// RemoveUnchanged drops entries whose current digest matches digestMap's
// recorded value. When captureDigest is true, digests are computed for
// every live regular file in the list (not just the intersection with
// digestMap) and returned alongside the removal count.
func (b *BackupFileList) RemoveUnchanged(digestMap map[string]string, captureDigest bool) (int, map[string]string, error) {
	if captureDigest {
		removed := 0
		kept := map[string]struct{}{}
		captured := map[string]string{}
		for _, entry := range b.Entries() {
			if isFile(b.fs, entry) && !isSymlink(b.fs, entry) {
				digest, err := generateDigest(b.fs, entry)
				if err != nil {
					return 0, nil, err
				}
				captured[entry] = digest
				if stored, ok := digestMap[entry]; ok && stored == digest {
					removed++
					continue
				}
			}
			kept[entry] = struct{}{}
		}
		b.entries = kept
		return removed, captured, nil
	}

	removed := 0
	kept := map[string]struct{}{}
	for _, entry := range b.Entries() {
		stored, ok := digestMap[entry]
		if ok && isFile(b.fs, entry) && !isSymlink(b.fs, entry) {
			digest, err := generateDigest(b.fs, entry)
			if err != nil {
				return 0, nil, err
			}
			if digest == stored {
				removed++
				continue
			}
		}
		kept[entry] = struct{}{}
	}
	b.entries = kept
	return removed, nil, nil
}
