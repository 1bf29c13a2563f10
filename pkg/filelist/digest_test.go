package filelist

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareContentsDetectsDivergence(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/first/a.txt", []byte("same"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/first/only-here.txt", []byte("x"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/second/a.txt", []byte("different"), 0o644))

	diff, err := CompareContents(fs, "/first", "/second")
	require.NoError(t, err)
	assert.False(t, diff.Equal())
	assert.Contains(t, diff.Changed, "/a.txt")
	assert.Contains(t, diff.OnlyInFirst, "/only-here.txt")
}

func TestCompareContentsIdentical(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/first/a.txt", []byte("same"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/second/a.txt", []byte("same"), 0o644))

	diff, err := CompareContents(fs, "/first", "/second")
	require.NoError(t, err)
	assert.True(t, diff.Equal())
}
