package peer

import (
	"context"
	"os"
	"path/filepath"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/pronovic/cedarbackup/pkg/cerrors"
	"github.com/pronovic/cedarbackup/pkg/command/sshrunner"
	"github.com/pronovic/cedarbackup/pkg/config"
	"github.com/pronovic/cedarbackup/pkg/filelist"
)

const defaultRcpCommand = "scp -B -q -C"
const defaultRshCommand = "ssh"

var _ Peer = (*RemotePeer)(nil)

// RemotePeer is a backup peer reached over an rcp/rsh-compatible remote
// shell. Grounded on peer.py's RemotePeer.
type RemotePeer struct {
	PeerName     string
	CollectDir   string
	WorkingDir   string
	RemoteUser   string
	RcpCommand   string
	RshCommand   string
	CbackCommand string
	Mode         config.IgnoreFailureMode

	ssh *sshrunner.Runner
	fs  afero.Fs
	log *logrus.Entry
}

// NewRemotePeer builds a RemotePeer. rcpCommand/rshCommand/cbackCommand
// fall back to the tool defaults (scp/ssh/cback3) when empty.
func NewRemotePeer(cfg config.PeerConfig, ssh *sshrunner.Runner, fs afero.Fs, log *logrus.Entry) (*RemotePeer, error) {
	if cfg.Name == "" {
		return nil, cerrors.Config("peer name must be a non-empty string")
	}
	if cfg.RemoteUser == "" {
		return nil, cerrors.Config("remote peer must have a non-empty remote user")
	}
	rcp := cfg.RcpCommand
	if rcp == "" {
		rcp = defaultRcpCommand
	}
	rsh := cfg.RshCommand
	if rsh == "" {
		rsh = defaultRshCommand
	}
	return &RemotePeer{
		PeerName:     cfg.Name,
		CollectDir:   cfg.CollectDir,
		WorkingDir:   cfg.WorkingDir,
		RemoteUser:   cfg.RemoteUser,
		RcpCommand:   rcp,
		RshCommand:   rsh,
		CbackCommand: cfg.CbackCommand,
		Mode:         cfg.IgnoreFailureMode,
		ssh:          ssh,
		fs:           fs,
		log:          log,
	}, nil
}

func (p *RemotePeer) Name() string                               { return p.PeerName }
func (p *RemotePeer) IgnoreFailureMode() config.IgnoreFailureMode { return p.Mode }

// dirContents returns the set of non-directory, non-symlink entries
// under path (recursively), matching peer.py's RemotePeer._getDirContents.
func (p *RemotePeer) dirContents(path string) (map[string]struct{}, error) {
	list := filelist.New(p.fs, p.log)
	list.ExcludeDirs = true
	list.ExcludeLinks = true
	if _, err := list.AddDirContents(path, true, true, 0, false); err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for _, entry := range list.Entries() {
		set[entry] = struct{}{}
	}
	return set, nil
}

// StagePeer pulls every file under collectDir/* into targetDir, then
// determines which files were newly added (by set difference, since the
// remote copy tool doesn't report what it transferred) to apply
// ownership/permissions to exactly those.
func (p *RemotePeer) StagePeer(ctx context.Context, targetDir string, ownership *Ownership, permissions *os.FileMode) (int, error) {
	if !filepath.IsAbs(targetDir) {
		return 0, cerrors.Config("target directory must be an absolute path")
	}
	if !isDir(p.fs, targetDir) {
		return 0, cerrors.Config("target directory is not a directory or does not exist on disk")
	}

	before, err := p.dirContents(targetDir)
	if err != nil {
		return 0, err
	}
	if err := p.ssh.PullRemoteGlob(ctx, p.RcpCommand, p.RemoteUser, p.PeerName, p.CollectDir, targetDir); err != nil {
		return 0, err
	}
	after, err := p.dirContents(targetDir)
	if err != nil {
		return 0, err
	}
	if len(after) == 0 {
		return 0, cerrors.IO("did not copy any files from remote peer")
	}

	added := 0
	for file := range after {
		if _, existed := before[file]; existed {
			continue
		}
		added++
		if ownership != nil && runtime.GOOS != "windows" && os.Geteuid() == 0 {
			if err := p.fs.Chown(file, ownership.UID, ownership.GID); err != nil {
				return added, cerrors.WrapIO(err, "error changing ownership of "+file)
			}
		}
		if permissions != nil {
			if err := p.fs.Chmod(file, *permissions); err != nil {
				return added, cerrors.WrapIO(err, "error changing permissions of "+file)
			}
		}
	}
	if added == 0 {
		return 0, cerrors.IO("apparently did not copy any new files from remote peer")
	}
	return added, nil
}

// CheckCollectIndicator attempts to pull the indicator file into
// WorkingDir; any failure (missing file, unreachable host, ...) reads as
// "not ready" rather than an error, since some rcp implementations exit
// zero even when the remote path doesn't exist.
func (p *RemotePeer) CheckCollectIndicator(ctx context.Context, indicatorName string) (bool, error) {
	if indicatorName == "" {
		indicatorName = DefaultCollectIndicator
	}
	sourceFile := filepath.Join(p.CollectDir, indicatorName)
	targetFile := filepath.Join(p.WorkingDir, indicatorName)
	if exists(p.fs, targetFile) {
		if err := p.fs.Remove(targetFile); err != nil {
			return false, cerrors.WrapIO(err, "collect indicator "+targetFile+" already exists and could not be removed")
		}
	}
	defer func() {
		if exists(p.fs, targetFile) {
			_ = p.fs.Remove(targetFile)
		}
	}()
	if err := p.ssh.PullRemoteFile(ctx, p.RcpCommand, p.RemoteUser, p.PeerName, sourceFile, targetFile, false); err != nil {
		if p.log != nil {
			p.log.Infof("failed looking for collect indicator: %v", err)
		}
		return false, nil
	}
	return exists(p.fs, targetFile), nil
}

// WriteStageIndicator touches a local temp file under WorkingDir and
// pushes it to CollectDir/indicatorName on the remote host. ownership and
// permissions are accepted to satisfy the Peer interface but are unused:
// an rcp push has no way to set remote ownership or mode.
func (p *RemotePeer) WriteStageIndicator(ctx context.Context, indicatorName string, ownership *Ownership, permissions *os.FileMode) error {
	if indicatorName == "" {
		indicatorName = DefaultStageIndicator
	}
	sourceFile := filepath.Join(p.WorkingDir, DefaultStageIndicator)
	targetFile := filepath.Join(p.CollectDir, indicatorName)
	if !exists(p.fs, sourceFile) {
		if err := afero.WriteFile(p.fs, sourceFile, []byte{}, 0o644); err != nil {
			return cerrors.WrapIO(err, "error creating "+sourceFile)
		}
	}
	defer func() {
		if exists(p.fs, sourceFile) {
			_ = p.fs.Remove(sourceFile)
		}
	}()
	return p.ssh.PushLocalFile(ctx, p.RcpCommand, p.RemoteUser, p.PeerName, sourceFile, targetFile)
}

// ExecuteRemoteCommand runs command on the peer via the configured
// remote shell.
func (p *RemotePeer) ExecuteRemoteCommand(ctx context.Context, command string) error {
	return p.ssh.ExecuteRemoteCommand(ctx, p.RshCommand, p.RemoteUser, p.PeerName, command)
}

// ExecuteManagedAction builds and runs the cback-equivalent command line
// for action on this peer, passing --full iff fullBackup.
func (p *RemotePeer) ExecuteManagedAction(ctx context.Context, action string, fullBackup bool) error {
	command := sshrunner.BuildCbackCommand(p.CbackCommand, action, fullBackup)
	if err := p.ExecuteRemoteCommand(ctx, command); err != nil {
		if p.log != nil {
			p.log.Info(err)
		}
		return cerrors.IO("failed to execute action %q on managed client %q", action, p.PeerName)
	}
	return nil
}
