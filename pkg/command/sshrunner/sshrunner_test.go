package sshrunner

import (
	"context"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pronovic/cedarbackup/pkg/command"
)

func fakeCommand(t *testing.T, capture *[]string) func(string, ...string) *exec.Cmd {
	return func(name string, args ...string) *exec.Cmd {
		*capture = append([]string{name}, args...)
		return exec.Command("true")
	}
}

func TestExecuteRemoteCommandPlain(t *testing.T) {
	runner := command.NewRunner(nil)
	var captured []string
	runner.SetCommandFunc(fakeCommand(t, &captured))

	ssh := New(runner, "", nil)
	err := ssh.ExecuteRemoteCommand(context.Background(), "ssh", "backup", "host1", "cback3 collect")
	require.NoError(t, err)
	assert.Equal(t, "ssh", captured[0])
	assert.Contains(t, captured, "backup@host1")
}

func TestExecuteRemoteCommandRequiresRootForLocalUser(t *testing.T) {
	runner := command.NewRunner(nil)
	var captured []string
	runner.SetCommandFunc(fakeCommand(t, &captured))

	ssh := New(runner, "otheruser", func() bool { return false })
	err := ssh.ExecuteRemoteCommand(context.Background(), "ssh", "backup", "host1", "cback3 collect")
	assert.Error(t, err)
}

func TestExecuteRemoteCommandSuWrapping(t *testing.T) {
	runner := command.NewRunner(nil)
	var captured []string
	runner.SetCommandFunc(fakeCommand(t, &captured))

	ssh := New(runner, "otheruser", func() bool { return true })
	err := ssh.ExecuteRemoteCommand(context.Background(), "ssh", "backup", "host1", "cback3 collect")
	require.NoError(t, err)
	assert.Equal(t, SuCommand, captured[0])
	assert.Contains(t, captured, "otheruser")
}

func TestPullRemoteFileRejectsOverwriteWhenTargetExists(t *testing.T) {
	dir := t.TempDir()
	target := dir + "/indicator"
	require.NoError(t, os.WriteFile(target, []byte{}, 0o644))

	runner := command.NewRunner(nil)
	var captured []string
	runner.SetCommandFunc(fakeCommand(t, &captured))

	ssh := New(runner, "", nil)
	err := ssh.PullRemoteFile(context.Background(), "scp", "backup", "host1", "/remote/indicator", target, false)
	assert.Error(t, err)
	assert.Nil(t, captured)
}

func TestPullRemoteFilePlain(t *testing.T) {
	dir := t.TempDir()
	target := dir + "/indicator"

	runner := command.NewRunner(nil)
	var captured []string
	runner.SetCommandFunc(fakeCommand(t, &captured))

	ssh := New(runner, "", nil)
	err := ssh.PullRemoteFile(context.Background(), "scp", "backup", "host1", "/remote/indicator", target, false)
	require.NoError(t, err)
	assert.Equal(t, "scp", captured[0])
	assert.Contains(t, captured, target)
}

func TestBuildCbackCommand(t *testing.T) {
	assert.Equal(t, "cback3 --full collect", BuildCbackCommand("", "collect", true))
	assert.Equal(t, "mycback stage", BuildCbackCommand("mycback", "stage", false))
}
