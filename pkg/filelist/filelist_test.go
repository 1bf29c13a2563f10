package filelist

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memFsWith(t *testing.T, files map[string]string, dirs []string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, d := range dirs {
		require.NoError(t, fs.MkdirAll(d, 0o755))
	}
	for path, content := range files {
		require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	return fs
}

func TestAddFileRejectsMissing(t *testing.T) {
	fs := memFsWith(t, nil, nil)
	l := New(fs, nil)
	_, err := l.AddFile("/nope.txt")
	assert.Error(t, err)
}

func TestAddFileAppliesExcludeFiles(t *testing.T) {
	fs := memFsWith(t, map[string]string{"/a.txt": "hi"}, nil)
	l := New(fs, nil)
	l.ExcludeFiles = true
	n, err := l.AddFile("/a.txt")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, l.Len())
}

func TestAddFileAppliesExcludePaths(t *testing.T) {
	fs := memFsWith(t, map[string]string{"/a.txt": "hi"}, nil)
	l := New(fs, nil)
	l.ExcludePaths = []string{"/a.txt"}
	n, err := l.AddFile("/a.txt")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAddFileAppliesExcludePatterns(t *testing.T) {
	fs := memFsWith(t, map[string]string{"/logs/a.log": "hi"}, nil)
	l := New(fs, nil)
	l.ExcludePatterns = []*regexp.Regexp{regexp.MustCompile(`^/logs/.*\.log$`)}
	n, err := l.AddFile("/logs/a.log")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAddFileAppliesBasenamePatterns(t *testing.T) {
	fs := memFsWith(t, map[string]string{"/a/b.tmp": "hi"}, nil)
	l := New(fs, nil)
	l.ExcludeBasenamePatterns = []*regexp.Regexp{regexp.MustCompile(`.*\.tmp$`)}
	n, err := l.AddFile("/a/b.tmp")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAddFileSucceeds(t *testing.T) {
	fs := memFsWith(t, map[string]string{"/a.txt": "hi"}, nil)
	l := New(fs, nil)
	n, err := l.AddFile("/a.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"/a.txt"}, l.Entries())
}

func TestAddDirRejectsNonDir(t *testing.T) {
	fs := memFsWith(t, map[string]string{"/a.txt": "hi"}, nil)
	l := New(fs, nil)
	_, err := l.AddDir("/a.txt")
	assert.Error(t, err)
}

func TestAddDirContentsIgnoreFile(t *testing.T) {
	fs := memFsWith(t, map[string]string{
		"/tree/a.txt":         "x",
		"/tree/.cedar_ignore": "x",
		"/tree/sub/b.txt":     "y",
	}, []string{"/tree", "/tree/sub"})
	l := New(fs, nil)
	l.IgnoreFile = ".cedar_ignore"
	n, err := l.AddDirContents("/tree", true, true, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, l.Len())
}

func TestAddDirContentsRecursive(t *testing.T) {
	fs := memFsWith(t, map[string]string{
		"/tree/a.txt":     "x",
		"/tree/sub/b.txt": "y",
	}, []string{"/tree", "/tree/sub"})
	l := New(fs, nil)
	n, err := l.AddDirContents("/tree", true, true, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 4, n) // /tree, /tree/a.txt, /tree/sub, /tree/sub/b.txt
	assert.ElementsMatch(t, []string{"/tree", "/tree/a.txt", "/tree/sub", "/tree/sub/b.txt"}, l.Entries())
}

func TestAddDirContentsNonRecursive(t *testing.T) {
	fs := memFsWith(t, map[string]string{
		"/tree/a.txt":     "x",
		"/tree/sub/b.txt": "y",
	}, []string{"/tree", "/tree/sub"})
	l := New(fs, nil)
	n, err := l.AddDirContents("/tree", false, true, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.ElementsMatch(t, []string{"/tree", "/tree/a.txt", "/tree/sub"}, l.Entries())
}

func TestAddDirContentsFollowsSymlinksOnRealFs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "real"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "real", "f.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "linked")))

	fs := afero.NewOsFs()
	l := New(fs, nil)
	n, err := l.AddDirContents(root, true, true, 1, false)
	require.NoError(t, err)
	assert.Greater(t, n, 0)
	entries := l.Entries()
	assert.Contains(t, entries, normalizePath(filepath.Join(root, "linked", "f.txt")))
}

func TestRemoveInvalid(t *testing.T) {
	fs := memFsWith(t, map[string]string{"/a.txt": "x", "/b.txt": "y"}, nil)
	l := New(fs, nil)
	_, err := l.AddFile("/a.txt")
	require.NoError(t, err)
	_, err = l.AddFile("/b.txt")
	require.NoError(t, err)

	require.NoError(t, fs.Remove("/a.txt"))
	removed := l.RemoveInvalid()
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"/b.txt"}, l.Entries())
}

func TestRemoveMatch(t *testing.T) {
	fs := memFsWith(t, map[string]string{"/a.txt": "x", "/b.log": "y"}, nil)
	l := New(fs, nil)
	_, _ = l.AddFile("/a.txt")
	_, _ = l.AddFile("/b.log")
	removed, err := l.RemoveMatch(`\.log$`)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"/a.txt"}, l.Entries())
}

func TestCompileExcludePatternAnchors(t *testing.T) {
	re, err := CompileExcludePattern(`/var/log/.*`)
	require.NoError(t, err)
	assert.True(t, re.MatchString("/var/log/a.txt"))
	assert.False(t, re.MatchString("/var/log/a.txt/extra"))
}

func TestVerify(t *testing.T) {
	fs := memFsWith(t, map[string]string{"/a.txt": "x"}, nil)
	l := New(fs, nil)
	_, _ = l.AddFile("/a.txt")
	assert.True(t, l.Verify())
	require.NoError(t, fs.Remove("/a.txt"))
	assert.False(t, l.Verify())
}
