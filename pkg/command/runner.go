// Package command wraps external-process invocation for every tool the
// core engine shells out to: mkisofs/genisoimage, cdrecord/growisofs,
// ssh/scp, mount/umount, eject. Grounded on the teacher's
// pkg/commands/os.go OSCommand: a thin, mockable wrapper around
// os/exec with environment sanitization and stdout/stderr capture, the
// command-building block spec.md §5/§9 calls for.
package command

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/jesseduffield/kill"
	"github.com/mgutz/str"
	"github.com/sirupsen/logrus"

	"github.com/pronovic/cedarbackup/pkg/cerrors"
)

// Platform stores OS-specific knowledge the Runner needs (OS name and
// shell invocation; SupportsMount reports whether mount/umount/eject
// flows are available). See platform_unix.go and platform_windows.go.
type Platform struct {
	OS    string
	Shell string
	Arg   string
}

// Runner executes external commands on behalf of the core engine. Every
// invocation sanitizes its environment (clears LC_*, forces LANG=C) so
// parsed tool output is stable across locales, per spec.md §5.
type Runner struct {
	Log      *logrus.Entry
	Platform *Platform

	command        func(name string, args ...string) *exec.Cmd
	commandContext func(ctx context.Context, name string, args ...string) *exec.Cmd
	getenv         func(string) string
}

// NewRunner builds a Runner bound to the host platform.
func NewRunner(log *logrus.Entry) *Runner {
	return &Runner{
		Log:            log,
		Platform:       getPlatform(),
		command:        exec.Command,
		commandContext: exec.CommandContext,
		getenv:         os.Getenv,
	}
}

// SetCommandFunc overrides the command constructor; for tests only,
// mirroring the teacher's OSCommand.SetCommand. The override applies
// whether or not a caller passes a context, so tests don't need to know
// which entry point a given code path uses.
func (r *Runner) SetCommandFunc(fn func(string, ...string) *exec.Cmd) {
	r.command = fn
	r.commandContext = func(_ context.Context, name string, args ...string) *exec.Cmd {
		return fn(name, args...)
	}
}

// Result carries everything the action engine or a writer probe needs
// from one external-command invocation.
type Result struct {
	Stdout   string
	Stderr   string
	Combined string
	ExitCode int
}

// Options controls how one command invocation behaves.
type Options struct {
	// IgnoreStderr discards stderr from Combined, matching spec.md §5's
	// "only stdout when ignoreStderr=true".
	IgnoreStderr bool
	// Tee, if set, also receives a copy of combined output as it is written.
	Tee io.Writer
	Dir string
}

// sanitizedEnviron clears every LC_* variable and forces LANG=C, per
// spec.md §6's "Environment variables" contract.
func sanitizedEnviron(base []string) []string {
	out := make([]string, 0, len(base)+1)
	for _, kv := range base {
		if strings.HasPrefix(kv, "LC_") {
			continue
		}
		if strings.HasPrefix(kv, "LANG=") {
			continue
		}
		out = append(out, kv)
	}
	out = append(out, "LANG=C")
	return out
}

// NewCmd builds an *exec.Cmd with a sanitized environment, matching the
// teacher's OSCommand.NewCmd.
func (r *Runner) NewCmd(ctx context.Context, name string, args ...string) *exec.Cmd {
	var cmd *exec.Cmd
	if ctx != nil {
		cmd = r.commandContext(ctx, name, args...)
	} else {
		cmd = r.command(name, args...)
	}
	cmd.Env = sanitizedEnviron(os.Environ())
	return cmd
}

// Run executes a fully built *exec.Cmd, copying combined output to an
// optional tee writer as it arrives and logging each output line at
// debug level once the command exits, and classifies a non-zero exit as
// an IOError per spec.md §7.
func (r *Runner) Run(cmd *exec.Cmd, opts Options) (Result, error) {
	var stdoutBuf, stderrBuf, combinedBuf bytes.Buffer

	if opts.IgnoreStderr {
		cmd.Stdout = io.MultiWriter(&stdoutBuf, &combinedBuf, teeOrDiscard(opts.Tee))
	} else {
		cmd.Stdout = io.MultiWriter(&stdoutBuf, &combinedBuf, teeOrDiscard(opts.Tee))
		cmd.Stderr = io.MultiWriter(&stderrBuf, &combinedBuf, teeOrDiscard(opts.Tee))
	}
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}

	before := time.Now()
	err := cmd.Run()
	if r.Log != nil {
		r.Log.Debugf("ran %v in %s", cmd.Args, time.Since(before))
		for _, line := range strings.Split(combinedBuf.String(), "\n") {
			if line != "" {
				r.Log.Debug(line)
			}
		}
	}

	result := Result{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Combined: combinedBuf.String(),
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, cerrors.WrapIO(err, fmt.Sprintf("command %v failed", cmd.Args))
	}
	return result, nil
}

func teeOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

// RunCommandLine splits a shell-style command line with mgutz/str's
// ToArgv and runs it.
func (r *Runner) RunCommandLine(ctx context.Context, commandLine string, opts Options) (Result, error) {
	argv := str.ToArgv(commandLine)
	if len(argv) == 0 {
		return Result{}, cerrors.Config("empty command line")
	}
	cmd := r.NewCmd(ctx, argv[0], argv[1:]...)
	return r.Run(cmd, opts)
}

// RunArgs runs a command given explicit argv, the common case for
// building tool invocations programmatically (mkisofs -V ... -graft-points).
func (r *Runner) RunArgs(ctx context.Context, name string, args []string, opts Options) (Result, error) {
	cmd := r.NewCmd(ctx, name, args...)
	return r.Run(cmd, opts)
}

// Kill terminates cmd, killing its whole process group if it was
// prepared with PrepareForChildren — needed for tools like growisofs
// that spawn helper children. Grounded on the teacher's OSCommand.Kill,
// which in turn delegates to github.com/jesseduffield/kill.
func (r *Runner) Kill(cmd *exec.Cmd) error {
	return kill.Kill(cmd)
}

// PrepareForChildren sets up cmd so Kill can terminate its whole process
// group rather than just the immediate child.
func (r *Runner) PrepareForChildren(cmd *exec.Cmd) {
	kill.PrepareForChildren(cmd)
}

// FileExists checks for a path's existence without treating "not found"
// as an error, matching the teacher's OSCommand.FileExists.
func (r *Runner) FileExists(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, cerrors.WrapIO(err, "stat "+path)
	}
	return true, nil
}
