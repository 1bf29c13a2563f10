// Package sshrunner builds the remote-shell and remote-copy command
// lines a RemotePeer needs: plain rsh/rcp invocations, or the same
// wrapped in `su - <localUser> -c "..."` when the peer is configured
// with a local user override. Grounded on the teacher's
// pkg/commands/ssh/ssh.go (the SSH tunnel/command-construction pattern)
// and on the original implementation's peer.py
// _pushLocalFile/_executeRemoteCommand/_buildCbackCommand, which specify
// the exact quoting rules this package reproduces.
package sshrunner

import (
	"context"
	"fmt"
	"strings"

	"github.com/pronovic/cedarbackup/pkg/cerrors"
	"github.com/pronovic/cedarbackup/pkg/command"
)

// SuCommand is the external tool used to run a command as another local
// user, matching the original implementation's SU_COMMAND constant.
const SuCommand = "su"

// Runner wraps a *command.Runner with the su-wrapping rule spec.md §4.5
// requires: "If a localUser is set on a RemotePeer, all remote-shell/
// remote-copy invocations are wrapped as `su - <localUser> -c "<cmd>"`
// and require the current process to be root."
type Runner struct {
	cmd       *command.Runner
	isRoot    func() bool
	localUser string
}

// New builds an sshrunner.Runner. localUser is empty for peers with no
// LocalUser override.
func New(cmd *command.Runner, localUser string, isRoot func() bool) *Runner {
	return &Runner{cmd: cmd, isRoot: isRoot, localUser: localUser}
}

// ExecuteRemoteCommand runs remoteCommand on remoteHost as remoteUser via
// rshCommand, matching peer.py's _executeRemoteCommand.
func (r *Runner) ExecuteRemoteCommand(ctx context.Context, rshCommand, remoteUser, remoteHost, remoteCommand string) error {
	actual := fmt.Sprintf("%s %s@%s '%s'", rshCommand, remoteUser, remoteHost, remoteCommand)
	if r.localUser != "" {
		if r.isRoot != nil && !r.isRoot() {
			return cerrors.IO("only root can remote shell as another user")
		}
		_, err := r.cmd.RunArgs(ctx, SuCommand, []string{"-", r.localUser, "-c", actual}, command.Options{})
		if err != nil {
			return cerrors.WrapIO(err, fmt.Sprintf("remote shell failed [su - %s -c %q]", r.localUser, actual))
		}
		return nil
	}
	argv := strings.Fields(rshCommand)
	args := append(append([]string{}, argv[1:]...), fmt.Sprintf("%s@%s", remoteUser, remoteHost), remoteCommand)
	_, err := r.cmd.RunArgs(ctx, argv[0], args, command.Options{})
	if err != nil {
		return cerrors.WrapIO(err, fmt.Sprintf("command failed [%s]", actual))
	}
	return nil
}

// PushLocalFile copies sourceFile to targetFile on remoteHost as
// remoteUser via rcpCommand, matching peer.py's _pushLocalFile. Spaces in
// either path are escaped for the remote shell, as the original does.
func (r *Runner) PushLocalFile(ctx context.Context, rcpCommand, remoteUser, remoteHost, sourceFile, targetFile string) error {
	if r.localUser != "" {
		if r.isRoot != nil && !r.isRoot() {
			return cerrors.IO("only root can remote copy as another user")
		}
		actual := fmt.Sprintf("%s %q %q", rcpCommand, sourceFile, fmt.Sprintf("%s@%s:%s", remoteUser, remoteHost, targetFile))
		_, err := r.cmd.RunArgs(ctx, SuCommand, []string{"-", r.localUser, "-c", actual}, command.Options{})
		if err != nil {
			return cerrors.WrapIO(err, fmt.Sprintf("error copying %s to remote host as local user %s", sourceFile, r.localUser))
		}
		return nil
	}
	target := fmt.Sprintf("%s@%s:%s", remoteUser, remoteHost, strings.ReplaceAll(targetFile, " ", "\\ "))
	argv := strings.Fields(rcpCommand)
	args := append(append([]string{}, argv[1:]...), strings.ReplaceAll(sourceFile, " ", "\\ "), target)
	_, err := r.cmd.RunArgs(ctx, argv[0], args, command.Options{})
	if err != nil {
		return cerrors.WrapIO(err, fmt.Sprintf("error copying %s to remote host", sourceFile))
	}
	return nil
}

// PullRemoteGlob copies every file under remoteUser@remoteHost:remoteDir
// into localDir, used by Peer.stagePeer. Returns an IO error wrapping
// the rcp failure if the copy command fails; callers translate a
// zero-file result into the "no files copied" error spec.md §4.5
// describes.
func (r *Runner) PullRemoteGlob(ctx context.Context, rcpCommand, remoteUser, remoteHost, remoteDir, localDir string) error {
	source := fmt.Sprintf("%s@%s:%s/*", remoteUser, remoteHost, remoteDir)
	if r.localUser != "" {
		if r.isRoot != nil && !r.isRoot() {
			return cerrors.IO("only root can remote copy as another user")
		}
		actual := fmt.Sprintf("%s %s %s", rcpCommand, source, localDir)
		_, err := r.cmd.RunArgs(ctx, SuCommand, []string{"-", r.localUser, "-c", actual}, command.Options{})
		if err != nil {
			return cerrors.WrapIO(err, fmt.Sprintf("error copying remote collect directory contents as local user %s", r.localUser))
		}
		return nil
	}
	argv := strings.Fields(rcpCommand)
	args := append(append([]string{}, argv[1:]...), source, localDir)
	_, err := r.cmd.RunArgs(ctx, argv[0], args, command.Options{})
	if err != nil {
		return cerrors.WrapIO(err, "error copying remote collect directory contents")
	}
	return nil
}

// PullRemoteFile copies a single remoteUser@remoteHost:sourceFile down to
// targetFile, matching peer.py's _copyRemoteFile. overwrite=false fails
// fast if targetFile already exists, used by Peer.checkCollectIndicator
// to detect a stale leftover before probing.
func (r *Runner) PullRemoteFile(ctx context.Context, rcpCommand, remoteUser, remoteHost, sourceFile, targetFile string, overwrite bool) error {
	if !overwrite {
		if exists, _ := r.cmd.FileExists(targetFile); exists {
			return cerrors.IO("target file %q already exists", targetFile)
		}
	}
	source := fmt.Sprintf("%s@%s:%s", remoteUser, remoteHost, strings.ReplaceAll(sourceFile, " ", "\\ "))
	if r.localUser != "" {
		if r.isRoot != nil && !r.isRoot() {
			return cerrors.IO("only root can remote copy as another user")
		}
		actual := fmt.Sprintf("%s %s %s", rcpCommand, source, targetFile)
		_, err := r.cmd.RunArgs(ctx, SuCommand, []string{"-", r.localUser, "-c", actual}, command.Options{})
		if err != nil {
			return cerrors.WrapIO(err, fmt.Sprintf("error copying %s from remote host as local user %s", sourceFile, r.localUser))
		}
		return nil
	}
	argv := strings.Fields(rcpCommand)
	args := append(append([]string{}, argv[1:]...), source, targetFile)
	_, err := r.cmd.RunArgs(ctx, argv[0], args, command.Options{})
	if err != nil {
		return cerrors.WrapIO(err, fmt.Sprintf("error copying %s from remote host", sourceFile))
	}
	return nil
}

// BuildCbackCommand builds the managed-action command line executed on a
// remote peer, matching peer.py's _buildCbackCommand.
func BuildCbackCommand(cbackCommand, action string, fullBackup bool) string {
	if cbackCommand == "" {
		cbackCommand = "cback3"
	}
	if fullBackup {
		return fmt.Sprintf("%s --full %s", cbackCommand, action)
	}
	return fmt.Sprintf("%s %s", cbackCommand, action)
}
