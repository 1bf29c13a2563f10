package writer

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/pronovic/cedarbackup/pkg/cerrors"
	"github.com/pronovic/cedarbackup/pkg/command"
	"github.com/pronovic/cedarbackup/pkg/config"
)

// DvdWriter drives growisofs against a DVD+R/DVD+RW device. Grounded
// on original_source/.../writers/dvdwriter.py.
type DvdWriter struct {
	base
}

// NewDvdWriter builds a DvdWriter for the given device and media type.
func NewDvdWriter(runner *command.Runner, log *logrus.Entry, device Device, mediaType config.MediaType) (*DvdWriter, error) {
	media, err := NewMediaDefinition(mediaType)
	if err != nil {
		return nil, err
	}
	return &DvdWriter{base: newBase(runner, log, device, media)}, nil
}

func (w *DvdWriter) hardwareID() string { return w.device.Path }

var seekPattern = regexp.MustCompile(`seek=(\d+)`)

// parseSectorsUsed extracts the seek=N argument from growisofs's
// dry-run "Executing '...'" line and converts it to sectors used, per
// spec.md §6's "DVD used-sector probe": sectorsUsed = 16*N.
func parseSectorsUsed(output string) (int64, error) {
	m := seekPattern.FindStringSubmatch(output)
	if m == nil {
		return 0, cerrors.IO("unable to parse sectors used out of growisofs output")
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, cerrors.WrapIO(err, "unable to parse sectors used out of growisofs output")
	}
	return 16 * n, nil
}

var overburnPattern = regexp.MustCompile(`:-\(\s*.*:\s*(\d+)\s*blocks are free,\s*(\d+)\s*to be written!`)

// checkMediaOverburn scans growisofs output for its overburn signature
// and converts it into an IOError naming both sizes in bytes, per
// spec.md §4.4/§8 scenario 6.
func checkMediaOverburn(output string) error {
	m := overburnPattern.FindStringSubmatch(output)
	if m == nil {
		return nil
	}
	free, _ := strconv.ParseInt(m[1], 10, 64)
	needed, _ := strconv.ParseInt(m[2], 10, 64)
	return cerrors.IO("media does not contain enough capacity to store image (%d bytes free, %d bytes to be written)", free*isoSectorBytes, needed*isoSectorBytes)
}

// RetrieveCapacity runs growisofs in dry-run mode to estimate the
// sectors already used on the disc; a failed probe is treated as zero
// used, per spec.md §4.4.
func (w *DvdWriter) RetrieveCapacity(ctx context.Context, entireDisc bool, useMulti bool) (MediaCapacity, error) {
	if entireDisc {
		return MediaCapacity{BytesUsed: 0, BytesAvailable: w.media.Capacity}, nil
	}
	args := w.buildWriteArgs(false, "", nil, "", true)
	res, err := w.runner.RunArgs(ctx, "growisofs", args, command.Options{IgnoreStderr: true})
	sectorsUsed := int64(0)
	if err == nil {
		if used, parseErr := parseSectorsUsed(res.Combined); parseErr == nil {
			sectorsUsed = used
		}
	}
	used := sectorsUsed * isoSectorBytes
	return MediaCapacity{BytesUsed: used, BytesAvailable: w.media.Capacity - used}, nil
}

// buildWriteArgs mirrors the original's DvdWriter._buildWriteArgs:
// either an existing imagePath, or the accumulated entries map, is
// written via "-Z" (new disc) or "-M" (append).
func (w *DvdWriter) buildWriteArgs(newDisc bool, imagePath string, entries map[string]*string, mediaLabel string, dryRun bool) []string {
	args := []string{"-use-the-force-luke=tty"}
	if dryRun {
		args = append(args, "-dry-run")
	}
	if w.device.DriveSpeed > 0 {
		args = append(args, fmt.Sprintf("-speed=%d", w.device.DriveSpeed))
	}
	if newDisc {
		args = append(args, "-Z")
	} else {
		args = append(args, "-M")
	}
	if imagePath != "" {
		args = append(args, fmt.Sprintf("%s=%s", w.hardwareID(), imagePath))
		return args
	}
	args = append(args, w.hardwareID())
	if mediaLabel != "" {
		args = append(args, "-V", mediaLabel)
	}
	args = append(args, "-r", "-graft-points")
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if entries[k] == nil || *entries[k] == "" {
			args = append(args, k)
		} else {
			args = append(args, fmt.Sprintf("%s/=%s", *entries[k], k))
		}
	}
	return args
}

func (w *DvdWriter) AddImageEntry(path string, graftPoint *string) error {
	return w.base.AddImageEntry(path, graftPoint)
}

func (w *DvdWriter) SetImageNewDisc(newDisc bool) error { return w.base.SetImageNewDisc(newDisc) }

// GetEstimatedImageSize returns the mkisofs size estimate of the
// accumulated entries, as CdWriter does. The growisofs dry-run seek=N
// value is the space already used on the disc (see parseSectorsUsed),
// not the size of the image to be written.
func (w *DvdWriter) GetEstimatedImageSize(ctx context.Context) (int64, error) {
	return w.base.GetEstimatedImageSize(ctx)
}

func (w *DvdWriter) InitializeImage(newDisc bool, tmpdir string, mediaLabel string) error {
	return w.base.InitializeImage(newDisc, tmpdir, mediaLabel)
}

func (w *DvdWriter) Media() MediaDefinition { return w.base.Media() }

// WriteImage writes either imagePath (if already built) or the
// accumulated entries directly via growisofs; newDisc reinitializes
// the media in the same invocation rather than via a separate blank
// step, per spec.md §4.4.
func (w *DvdWriter) WriteImage(ctx context.Context, imagePath string, newDisc bool, writeMulti bool) error {
	if err := w.requireInitialized(); err != nil {
		return err
	}

	var args []string
	if imagePath != "" {
		args = w.buildWriteArgs(newDisc, imagePath, nil, "", false)
	} else {
		entries := w.image.Entries()
		args = w.buildWriteArgs(newDisc, "", entries, w.mediaLabel, false)
	}

	res, err := w.runner.RunArgs(ctx, "growisofs", args, command.Options{})
	if err != nil {
		if overburnErr := checkMediaOverburn(res.Combined); overburnErr != nil {
			return overburnErr
		}
		return err
	}
	if overburnErr := checkMediaOverburn(res.Combined); overburnErr != nil {
		return overburnErr
	}

	w.finishWrite()
	return w.RefreshMedia(ctx)
}

