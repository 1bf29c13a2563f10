package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConvertSize(t *testing.T) {
	assert.Equal(t, 2048.0, ConvertSize(1, UnitSectors, UnitBytes))
	assert.InDelta(t, 650.0*1024*1024, ConvertSize(650, UnitMBytes, UnitBytes), 1)
}

func TestBuildNormalizedPath(t *testing.T) {
	assert.Equal(t, "-", BuildNormalizedPath("/"))
	assert.Equal(t, "home-user-stuff", BuildNormalizedPath("/home/user/stuff"))
	assert.Equal(t, "_-hidden-file", BuildNormalizedPath("./hidden/file"))
	assert.Equal(t, "a_b-c", BuildNormalizedPath("a b/c"))
}

func TestIsStartOfWeek(t *testing.T) {
	// 2005-02-07 is a Monday.
	monday := time.Date(2005, 2, 7, 0, 0, 0, 0, time.UTC)
	ok, err := IsStartOfWeek("monday", monday)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = IsStartOfWeek("tuesday", monday)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestCalculateFileAge(t *testing.T) {
	now := time.Date(2005, 2, 10, 12, 0, 0, 0, time.UTC)
	mtime := now.Add(-36 * time.Hour)
	assert.Equal(t, 1, CalculateFileAge(mtime, mtime, now))

	future := now.Add(time.Hour)
	assert.Equal(t, 0, CalculateFileAge(future, future, now))
}

func TestResolvePlaceholderString(t *testing.T) {
	out := ResolvePlaceholderString("CEDAR_{{date}}", map[string]string{"date": "20050210"})
	assert.Equal(t, "CEDAR_20050210", out)
}
