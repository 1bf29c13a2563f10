package filelist

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurgeItemListAddDirContentsNeverAddsSelf(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/collect/a.txt", []byte("x"), 0o644))
	p := NewPurgeItemList(fs, nil)
	n, err := p.AddDirContents("/collect", true, true, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"/collect/a.txt"}, p.Entries())
}

func TestRemoveYoungFilesKeepsRecentAndDirs(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/old.txt", []byte("x"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/new.txt", []byte("x"), 0o644))
	require.NoError(t, fs.MkdirAll("/somedir", 0o755))

	require.NoError(t, fs.Chtimes("/old.txt", time.Now().Add(-10*24*time.Hour), time.Now().Add(-10*24*time.Hour)))

	p := NewPurgeItemList(fs, nil)
	_, err := p.AddFile("/old.txt")
	require.NoError(t, err)
	_, err = p.AddFile("/new.txt")
	require.NoError(t, err)
	_, err = p.AddDir("/somedir")
	require.NoError(t, err)

	removed, err := p.RemoveYoungFiles(5)
	require.NoError(t, err)
	assert.Equal(t, 1, removed) // only /new.txt is too young to purge, so it's removed from the list
	assert.ElementsMatch(t, []string{"/old.txt", "/somedir"}, p.Entries())
}

func TestRemoveYoungFilesRejectsNegative(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := NewPurgeItemList(fs, nil)
	_, err := p.RemoveYoungFiles(-1)
	assert.Error(t, err)
}

func TestPurgeItemsTwoPhase(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/dir/a.txt", []byte("x"), 0o644))
	p := NewPurgeItemList(fs, nil)
	_, err := p.AddDirContents("/dir", true, true, 0, false)
	require.NoError(t, err)
	_, err = p.AddDir("/dir")
	require.NoError(t, err)

	files, dirs := p.PurgeItems()
	assert.Equal(t, 1, files)
	assert.Equal(t, 1, dirs)
}
