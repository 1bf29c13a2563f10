package writer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pronovic/cedarbackup/pkg/config"
)

func TestMediaCapacityUtilizationEdges(t *testing.T) {
	assert.Equal(t, 100.0, MediaCapacity{BytesUsed: 10, BytesAvailable: 0}.Utilization())
	assert.Equal(t, 0.0, MediaCapacity{BytesUsed: 0, BytesAvailable: 10}.Utilization())
	c := MediaCapacity{BytesUsed: 25, BytesAvailable: 75}
	assert.InDelta(t, 25.0, c.Utilization(), 0.0001)
}

func TestNewMediaDefinitionRejectsUnknownType(t *testing.T) {
	_, err := NewMediaDefinition(config.MediaType("bogus"))
	assert.Error(t, err)
}

func TestComputeNewDiscRebuildAlwaysTrue(t *testing.T) {
	assert.True(t, ComputeNewDisc(true, false, nil, 0, 0))
}

func TestComputeNewDiscNoBlankBehaviorFollowsStartOfWeek(t *testing.T) {
	assert.True(t, ComputeNewDisc(false, true, nil, 0, 0))
	assert.False(t, ComputeNewDisc(false, false, nil, 0, 0))
}

func TestComputeNewDiscWeeklyWorkedExample(t *testing.T) {
	// spec.md §8 scenario 4: ratio = 1e9/(1+5e8) ~= 2.0, factor 1.5 -> append.
	bb := &BlankBehavior{Mode: "weekly", Factor: 1.5}
	newDisc := ComputeNewDisc(false, true, bb, 1_000_000_000, 500_000_000)
	assert.False(t, newDisc)
}

func TestComputeNewDiscWeeklySkipsOnNonStartDay(t *testing.T) {
	bb := &BlankBehavior{Mode: "weekly", Factor: 100}
	assert.False(t, ComputeNewDisc(false, false, bb, 10, 10))
}

func TestComputeNewDiscDailyAppliesEveryDay(t *testing.T) {
	bb := &BlankBehavior{Mode: "daily", Factor: 5}
	assert.True(t, ComputeNewDisc(false, false, bb, 10, 1))
}

func TestParseBoundariesEmptyMeansUninitialized(t *testing.T) {
	b, err := parseBoundaries("")
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestParseBoundariesFirstLineWins(t *testing.T) {
	b, err := parseBoundaries("0,11702\nsome trailing garbage\n")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, 0, b.Lower)
	assert.Equal(t, 11702, b.Upper)
}

func TestParseBoundariesMalformedIsError(t *testing.T) {
	_, err := parseBoundaries("not a boundary line")
	assert.Error(t, err)
}

func TestParseSectorsUsedExtractsSeek(t *testing.T) {
	output := "Executing 'mkisofs -C 973744,1401056 -M /dev/fd/3 -r -graft-points music4/=music | builtin_dd of=/dev/cdrom obs=32k seek=87566'"
	sectors, err := parseSectorsUsed(output)
	require.NoError(t, err)
	assert.Equal(t, int64(16*87566), sectors)
}

func TestCheckMediaOverburnDetectsSignature(t *testing.T) {
	output := ":-( /dev/cdrom: 894048 blocks are free, 2033746 to be written!"
	err := checkMediaOverburn(output)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1831010304") // 894048*2048
}

func TestCheckMediaOverburnNoSignatureIsNil(t *testing.T) {
	assert.NoError(t, checkMediaOverburn("all good"))
}

func TestCdWriterCalculateCapacityFullDisc(t *testing.T) {
	w := &CdWriter{base: base{media: MediaDefinition{Capacity: 1000, InitialLeadIn: 100}}}
	c := w.calculateCapacity(nil)
	assert.Equal(t, int64(0), c.BytesUsed)
	assert.Equal(t, int64(900), c.BytesAvailable)
}

func TestCdWriterCalculateCapacityWithBoundaries(t *testing.T) {
	w := &CdWriter{base: base{media: MediaDefinition{Capacity: 1000, LeadIn: 50}}}
	c := w.calculateCapacity(&Boundaries{Lower: 1, Upper: 2})
	assert.Equal(t, int64(2*isoSectorBytes), c.BytesUsed)
	assert.Equal(t, int64(1000-2*isoSectorBytes-50), c.BytesAvailable)
}

// A disc whose multisession track starts at sector 0 but has a non-zero
// next-writable sector is still initialized; calculateCapacity must key
// off the upper bound, not the lower one.
func TestCdWriterCalculateCapacityWithZeroLowerBoundary(t *testing.T) {
	w := &CdWriter{base: base{media: MediaDefinition{Capacity: 1000, LeadIn: 50}}}
	c := w.calculateCapacity(&Boundaries{Lower: 0, Upper: 2})
	assert.Equal(t, int64(2*isoSectorBytes), c.BytesUsed)
	assert.Equal(t, int64(1000-2*isoSectorBytes-50), c.BytesAvailable)
}

func TestCdWriterCalculateCapacityZeroUpperBoundaryIsUninitialized(t *testing.T) {
	w := &CdWriter{base: base{media: MediaDefinition{Capacity: 1000, InitialLeadIn: 100}}}
	c := w.calculateCapacity(&Boundaries{Lower: 5, Upper: 0})
	assert.Equal(t, int64(0), c.BytesUsed)
	assert.Equal(t, int64(900), c.BytesAvailable)
}

func TestDvdWriterBuildWriteArgsNewDiscWithEntries(t *testing.T) {
	w := &DvdWriter{base: base{device: Device{Path: "/dev/dvd"}}}
	g := "backup1"
	args := w.buildWriteArgs(true, "", map[string]*string{"/one/two/three": &g}, "mylabel", false)
	assert.Equal(t, []string{
		"-use-the-force-luke=tty", "-Z", "/dev/dvd", "-V", "mylabel",
		"-r", "-graft-points", "backup1/=/one/two/three",
	}, args)
}

func TestDvdWriterBuildWriteArgsAppendWithImagePath(t *testing.T) {
	w := &DvdWriter{base: base{device: Device{Path: "/dev/dvd"}}}
	args := w.buildWriteArgs(false, "/tmp/x.iso", nil, "", false)
	assert.Equal(t, []string{"-use-the-force-luke=tty", "-M", "/dev/dvd=/tmp/x.iso"}, args)
}
