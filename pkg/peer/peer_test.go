package peer

import (
	"context"
	"os/exec"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pronovic/cedarbackup/pkg/command"
	"github.com/pronovic/cedarbackup/pkg/command/sshrunner"
	"github.com/pronovic/cedarbackup/pkg/config"
)

func TestShouldIgnoreFailureNone(t *testing.T) {
	assert.False(t, ShouldIgnoreFailure(config.IgnoreFailureNone, false, false))
	assert.False(t, ShouldIgnoreFailure("", true, true))
}

func TestShouldIgnoreFailureAll(t *testing.T) {
	assert.True(t, ShouldIgnoreFailure(config.IgnoreFailureAll, false, false))
}

func TestShouldIgnoreFailureWeeklyOnStartOfWeekOrFull(t *testing.T) {
	assert.True(t, ShouldIgnoreFailure(config.IgnoreFailureWeekly, true, false))
	assert.True(t, ShouldIgnoreFailure(config.IgnoreFailureWeekly, false, true))
	assert.False(t, ShouldIgnoreFailure(config.IgnoreFailureWeekly, false, false))
}

func TestShouldIgnoreFailureDailyOnNonStartDay(t *testing.T) {
	assert.True(t, ShouldIgnoreFailure(config.IgnoreFailureDaily, false, false))
	assert.False(t, ShouldIgnoreFailure(config.IgnoreFailureDaily, true, false))
}

func TestNewLocalPeerRejectsRelativeCollectDir(t *testing.T) {
	_, err := NewLocalPeer("host1", "relative/path", "", afero.NewMemMapFs(), nil)
	assert.Error(t, err)
}

func TestLocalPeerStagePeerCopiesFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/collect", 0o755))
	require.NoError(t, fs.MkdirAll("/target", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/collect/a.tar", []byte("a"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/collect/b.tar", []byte("b"), 0o644))

	p, err := NewLocalPeer("host1", "/collect", "", fs, nil)
	require.NoError(t, err)

	count, err := p.StagePeer(context.Background(), "/target", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	data, err := afero.ReadFile(fs, "/target/a.tar")
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))
}

func TestLocalPeerStagePeerFailsWhenCollectDirEmpty(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/collect", 0o755))
	require.NoError(t, fs.MkdirAll("/target", 0o755))

	p, err := NewLocalPeer("host1", "/collect", "", fs, nil)
	require.NoError(t, err)

	_, err = p.StagePeer(context.Background(), "/target", nil, nil)
	assert.Error(t, err)
}

func TestLocalPeerStagePeerRejectsNonRegularEntry(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/collect/sub", 0o755))
	require.NoError(t, fs.MkdirAll("/target", 0o755))

	p, err := NewLocalPeer("host1", "/collect", "", fs, nil)
	require.NoError(t, err)

	_, err = p.StagePeer(context.Background(), "/target", nil, nil)
	assert.Error(t, err)
}

func TestLocalPeerCheckCollectIndicatorDefaultsName(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/collect", 0o755))
	p, err := NewLocalPeer("host1", "/collect", "", fs, nil)
	require.NoError(t, err)

	ok, err := p.CheckCollectIndicator(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, afero.WriteFile(fs, "/collect/"+DefaultCollectIndicator, []byte{}, 0o644))
	ok, err = p.CheckCollectIndicator(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalPeerWriteStageIndicatorTouchesFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/collect", 0o755))
	p, err := NewLocalPeer("host1", "/collect", "", fs, nil)
	require.NoError(t, err)

	require.NoError(t, p.WriteStageIndicator(context.Background(), "", nil, nil))
	ok, err := p.CheckCollectIndicator(context.Background(), DefaultStageIndicator)
	require.NoError(t, err)
	assert.True(t, ok)
}

func fakeExecCommand(name string, args ...string) *exec.Cmd { return exec.Command("true") }

func newTestRemotePeer(t *testing.T, fs afero.Fs) *RemotePeer {
	runner := command.NewRunner(nil)
	runner.SetCommandFunc(fakeExecCommand)
	ssh := sshrunner.New(runner, "", nil)
	cfg := config.PeerConfig{Name: "host1", CollectDir: "/collect", WorkingDir: "/working", RemoteUser: "backup"}
	p, err := NewRemotePeer(cfg, ssh, fs, nil)
	require.NoError(t, err)
	return p
}

func TestNewRemotePeerRequiresRemoteUser(t *testing.T) {
	_, err := NewRemotePeer(config.PeerConfig{Name: "host1"}, nil, afero.NewMemMapFs(), nil)
	assert.Error(t, err)
}

func TestRemotePeerDirContentsListsStagedFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/target", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/target/preexisting.tar", []byte("x"), 0o644))

	p := newTestRemotePeer(t, fs)

	// dirContents is the snapshot StagePeer takes before and after the
	// copy. StagePeer itself is not called here: the file is written
	// directly and the snapshot must list both it and the preexisting
	// one.
	require.NoError(t, afero.WriteFile(fs, "/target/new.tar", []byte("y"), 0o644))

	before, err := p.dirContents("/target")
	require.NoError(t, err)
	assert.Len(t, before, 2)
}

func TestRemotePeerCheckCollectIndicatorFailureReadsAsNotReady(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/working", 0o755))

	runner := command.NewRunner(nil)
	runner.SetCommandFunc(func(name string, args ...string) *exec.Cmd { return exec.Command("false") })
	ssh := sshrunner.New(runner, "", nil)
	cfg := config.PeerConfig{Name: "host1", CollectDir: "/collect", WorkingDir: "/working", RemoteUser: "backup"}
	p, err := NewRemotePeer(cfg, ssh, fs, nil)
	require.NoError(t, err)

	ok, err := p.CheckCollectIndicator(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemotePeerExecuteManagedActionWrapsFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	runner := command.NewRunner(nil)
	runner.SetCommandFunc(func(name string, args ...string) *exec.Cmd { return exec.Command("false") })
	ssh := sshrunner.New(runner, "", nil)
	cfg := config.PeerConfig{Name: "host1", CollectDir: "/collect", WorkingDir: "/working", RemoteUser: "backup"}
	p, err := NewRemotePeer(cfg, ssh, fs, nil)
	require.NoError(t, err)

	err = p.ExecuteManagedAction(context.Background(), "collect", true)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "collect")
}
