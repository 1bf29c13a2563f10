package peer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/spf13/afero"

	"github.com/pronovic/cedarbackup/pkg/cerrors"
	"github.com/pronovic/cedarbackup/pkg/config"
)

var _ Peer = (*LocalPeer)(nil)

// LocalPeer is a backup peer reachable through the local filesystem:
// staging is a plain directory copy. Grounded on peer.py's LocalPeer.
type LocalPeer struct {
	PeerName   string
	CollectDir string
	Mode       config.IgnoreFailureMode

	fs     afero.Fs
	isRoot func() bool
}

// NewLocalPeer builds a LocalPeer. collectDir does not have to exist yet,
// but must be an absolute path.
func NewLocalPeer(name, collectDir string, mode config.IgnoreFailureMode, fs afero.Fs, isRoot func() bool) (*LocalPeer, error) {
	if name == "" {
		return nil, cerrors.Config("peer name must be a non-empty string")
	}
	if !filepath.IsAbs(collectDir) {
		return nil, cerrors.Config("collect directory must be an absolute path")
	}
	return &LocalPeer{PeerName: name, CollectDir: collectDir, Mode: mode, fs: fs, isRoot: isRoot}, nil
}

func (p *LocalPeer) Name() string                              { return p.PeerName }
func (p *LocalPeer) IgnoreFailureMode() config.IgnoreFailureMode { return p.Mode }

// StagePeer copies every file (non-recursively) out of CollectDir into
// targetDir. Both directories must already exist.
func (p *LocalPeer) StagePeer(ctx context.Context, targetDir string, ownership *Ownership, permissions *os.FileMode) (int, error) {
	if !filepath.IsAbs(targetDir) {
		return 0, cerrors.Config("target directory must be an absolute path")
	}
	if !isDir(p.fs, p.CollectDir) {
		return 0, cerrors.Config("collect directory is not a directory or does not exist on disk")
	}
	if !isDir(p.fs, targetDir) {
		return 0, cerrors.Config("target directory is not a directory or does not exist on disk")
	}
	count, err := p.copyLocalDir(p.CollectDir, targetDir, ownership, permissions)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, cerrors.IO("did not copy any files from local peer")
	}
	return count, nil
}

// CheckCollectIndicator reports whether CollectDir/indicatorName exists,
// naturally reporting false if CollectDir itself doesn't exist.
func (p *LocalPeer) CheckCollectIndicator(ctx context.Context, indicatorName string) (bool, error) {
	if indicatorName == "" {
		indicatorName = DefaultCollectIndicator
	}
	return exists(p.fs, filepath.Join(p.CollectDir, indicatorName)), nil
}

// WriteStageIndicator touches an empty file at CollectDir/indicatorName.
func (p *LocalPeer) WriteStageIndicator(ctx context.Context, indicatorName string, ownership *Ownership, permissions *os.FileMode) error {
	if !isDir(p.fs, p.CollectDir) {
		return cerrors.Config("collect directory is not a directory or does not exist on disk")
	}
	if indicatorName == "" {
		indicatorName = DefaultStageIndicator
	}
	return p.copyLocalFile("", filepath.Join(p.CollectDir, indicatorName), ownership, permissions, true)
}

// copyLocalDir copies every entry of sourceDir into targetDir. It is not
// recursive: an entry that isn't a regular, non-symlink file aborts the
// whole copy, matching peer.py's _copyLocalDir/_copyLocalFile pairing.
func (p *LocalPeer) copyLocalDir(sourceDir, targetDir string, ownership *Ownership, permissions *os.FileMode) (int, error) {
	infos, err := afero.ReadDir(p.fs, sourceDir)
	if err != nil {
		return 0, cerrors.WrapIO(err, "error listing collect directory "+sourceDir)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	sort.Strings(names)

	copied := 0
	for _, name := range names {
		sourceFile := filepath.Join(sourceDir, name)
		targetFile := filepath.Join(targetDir, name)
		if err := p.copyLocalFile(sourceFile, targetFile, ownership, permissions, true); err != nil {
			return copied, err
		}
		copied++
	}
	return copied, nil
}

// copyLocalFile copies sourceFile to targetFile, or creates an empty
// targetFile when sourceFile is "". Matches peer.py's _copyLocalFile.
func (p *LocalPeer) copyLocalFile(sourceFile, targetFile string, ownership *Ownership, permissions *os.FileMode, overwrite bool) error {
	if !overwrite && exists(p.fs, targetFile) {
		return cerrors.IO("target file %q already exists", targetFile)
	}
	if sourceFile == "" {
		if err := afero.WriteFile(p.fs, targetFile, []byte{}, 0o644); err != nil {
			return cerrors.WrapIO(err, "error creating "+targetFile)
		}
	} else {
		if !isFile(p.fs, sourceFile) || isSymlink(p.fs, sourceFile) {
			return cerrors.Value("source %q is not a regular file", sourceFile)
		}
		if err := copyFileContents(p.fs, sourceFile, targetFile); err != nil {
			return cerrors.WrapIO(err, "error copying "+sourceFile)
		}
	}
	if ownership != nil && runtime.GOOS != "windows" && p.isRoot != nil && p.isRoot() {
		if err := p.fs.Chown(targetFile, ownership.UID, ownership.GID); err != nil {
			return cerrors.WrapIO(err, "error changing ownership of "+targetFile)
		}
	}
	if permissions != nil {
		if err := p.fs.Chmod(targetFile, *permissions); err != nil {
			return cerrors.WrapIO(err, "error changing permissions of "+targetFile)
		}
	}
	return nil
}

func copyFileContents(fs afero.Fs, sourceFile, targetFile string) error {
	src, err := fs.Open(sourceFile)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := fs.Create(targetFile)
	if err != nil {
		return err
	}
	defer dst.Close()
	_, err = io.Copy(dst, src)
	return err
}

func lstat(fs afero.Fs, path string) (os.FileInfo, bool, error) {
	if ls, ok := fs.(afero.Lstater); ok {
		return ls.LstatIfPossible(path)
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
