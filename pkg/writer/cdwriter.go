package writer

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pronovic/cedarbackup/pkg/cerrors"
	"github.com/pronovic/cedarbackup/pkg/command"
	"github.com/pronovic/cedarbackup/pkg/config"
	"github.com/pronovic/cedarbackup/pkg/isoimage"
)

// CdWriter drives cdrecord/mkisofs against a CD-R/CD-RW device.
// Grounded on original_source/.../writers/cdwriter.py.
type CdWriter struct {
	base

	// Device attributes (constant for the life of the writer, unlike
	// media attributes), probed once via the "-prcap" properties command.
	supportsMulti bool
	hasTray       bool
	canEject      bool
	probed        bool
}

// NewCdWriter builds a CdWriter for the given device and media type.
func NewCdWriter(runner *command.Runner, log *logrus.Entry, device Device, mediaType config.MediaType) (*CdWriter, error) {
	media, err := NewMediaDefinition(mediaType)
	if err != nil {
		return nil, err
	}
	return &CdWriter{base: newBase(runner, log, device, media)}, nil
}

func (w *CdWriter) hardwareID() string {
	if w.device.ScsiID != "" {
		return w.device.ScsiID
	}
	return w.device.Path
}

var (
	multiPattern = regexp.MustCompile(`(?i)Does read multi-session`)
	trayPattern  = regexp.MustCompile(`(?i)Loading mechanism type:\s*tray`)
	ejectPattern = regexp.MustCompile(`(?i)Does support ejection`)
)

// probeProperties runs "cdrecord -prcap" once and records whether the
// device supports multisession discs.
func (w *CdWriter) probeProperties(ctx context.Context) error {
	if w.probed {
		return nil
	}
	res, err := w.runner.RunArgs(ctx, "cdrecord", []string{"-prcap", "dev=" + w.hardwareID()}, command.Options{IgnoreStderr: true})
	if err != nil {
		return cerrors.WrapIO(err, "error executing cdrecord command to get properties")
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		switch {
		case multiPattern.MatchString(line):
			w.supportsMulti = true
		case trayPattern.MatchString(line):
			w.hasTray = true
		case ejectPattern.MatchString(line):
			w.canEject = true
		}
	}
	if w.log != nil {
		w.log.Debugf("device properties: supportsMulti=%v hasTray=%v canEject=%v", w.supportsMulti, w.hasTray, w.canEject)
	}
	w.probed = true
	return nil
}

// CanEject reports whether the device advertised ejection support in
// its properties probe. Callers may use this to skip RefreshMedia
// entirely on hardware that can't eject rather than letting it fail.
func (w *CdWriter) CanEject(ctx context.Context) (bool, error) {
	if err := w.probeProperties(ctx); err != nil {
		return false, err
	}
	return w.canEject, nil
}

var boundaryPattern = regexp.MustCompile(`^\s*([0-9]*)\s*,\s*([0-9]*)\s*$`)

// parseBoundaries parses the single "lower, upper" line a successful
// "cdrecord -msinfo" emits. Per DESIGN.md's documented open-question
// resolution, only the first line is consulted; empty output means the
// disc is uninitialized.
func parseBoundaries(output string) (*Boundaries, error) {
	lines := strings.Split(output, "\n")
	if len(strings.TrimSpace(output)) == 0 || len(lines) == 0 {
		return nil, nil
	}
	m := boundaryPattern.FindStringSubmatch(lines[0])
	if m == nil {
		return nil, cerrors.IO("unable to parse output of boundaries command")
	}
	lower, err1 := strconv.Atoi(m[1])
	upper, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil {
		return nil, cerrors.IO("unable to parse output of boundaries command")
	}
	return &Boundaries{Lower: lower, Upper: upper}, nil
}

// getBoundaries returns the current multisession boundaries, or nil if
// multisession doesn't apply or the disc can't be read.
func (w *CdWriter) getBoundaries(ctx context.Context, entireDisc, useMulti bool) (*Boundaries, error) {
	if err := w.probeProperties(ctx); err != nil {
		return nil, err
	}
	if !w.supportsMulti || !useMulti || entireDisc {
		return nil, nil
	}
	res, err := w.runner.RunArgs(ctx, "cdrecord", []string{"-msinfo", "dev=" + w.hardwareID()}, command.Options{IgnoreStderr: true})
	if err != nil {
		if w.log != nil {
			w.log.Warnf("unable to read disc (might not be initialized); returning boundaries of None: %v", err)
		}
		return nil, nil
	}
	return parseBoundaries(res.Stdout)
}

// RetrieveCapacity returns the MediaCapacity for the current disc.
func (w *CdWriter) RetrieveCapacity(ctx context.Context, entireDisc bool, useMulti bool) (MediaCapacity, error) {
	boundaries, err := w.getBoundaries(ctx, entireDisc, useMulti)
	if err != nil {
		return MediaCapacity{}, err
	}
	return w.calculateCapacity(boundaries), nil
}

// calculateCapacity converts boundaries (in sectors) into a byte-based
// MediaCapacity. A nil boundary, or one whose upper bound is zero,
// means "disc uninitialized, use entire disc minus initial lead-in",
// per original_source/.../writers/cdwriter.py's _calculateCapacity,
// which checks boundaries[1] (the upper bound), not boundaries[0].
func (w *CdWriter) calculateCapacity(boundaries *Boundaries) MediaCapacity {
	if boundaries == nil || boundaries.Upper == 0 {
		return MediaCapacity{
			BytesUsed:      0,
			BytesAvailable: w.media.Capacity - w.media.InitialLeadIn,
			Boundaries:     nil,
		}
	}
	used := int64(boundaries.Upper) * isoSectorBytes
	available := w.media.Capacity - used - w.media.LeadIn
	return MediaCapacity{
		BytesUsed:      used,
		BytesAvailable: available,
		Boundaries:     boundaries,
	}
}

// AddImageEntry delegates to the embedded base. Multisession boundaries
// are not set here; writeFreshImage applies them when it builds the
// image for WriteImage.
func (w *CdWriter) AddImageEntry(path string, graftPoint *string) error {
	return w.base.AddImageEntry(path, graftPoint)
}

func (w *CdWriter) SetImageNewDisc(newDisc bool) error { return w.base.SetImageNewDisc(newDisc) }

func (w *CdWriter) GetEstimatedImageSize(ctx context.Context) (int64, error) {
	return w.base.GetEstimatedImageSize(ctx)
}

func (w *CdWriter) InitializeImage(newDisc bool, tmpdir string, mediaLabel string) error {
	return w.base.InitializeImage(newDisc, tmpdir, mediaLabel)
}

func (w *CdWriter) Media() MediaDefinition { return w.base.Media() }

// WriteImage writes the accumulated image, blanking the media first if
// newDisc is requested and the media is rewritable.
func (w *CdWriter) WriteImage(ctx context.Context, imagePath string, newDisc bool, writeMulti bool) error {
	if err := w.requireInitialized(); err != nil {
		return err
	}
	if newDisc && w.media.Rewritable {
		if err := w.blankMedia(ctx); err != nil {
			return err
		}
	}

	var err error
	if imagePath == "" {
		imagePath, err = w.writeFreshImage(ctx, newDisc, writeMulti)
		if err != nil {
			return err
		}
	} else if err := w.writeExistingImage(ctx, imagePath, writeMulti); err != nil {
		return err
	}

	w.finishWrite()
	return nil
}

// writeFreshImage builds the accumulated IsoImage to a temp file under
// tmpdir, then writes that file to the device.
func (w *CdWriter) writeFreshImage(ctx context.Context, newDisc, writeMulti bool) (string, error) {
	boundaries, err := w.getBoundaries(ctx, false, writeMulti)
	if err != nil {
		return "", err
	}
	if boundaries != nil {
		w.image.Device = w.hardwareID()
		w.image.Boundaries = &isoimage.Boundaries{Lower: boundaries.Lower, Upper: boundaries.Upper}
	}
	imagePath := filepath.Join(w.tmpdir, "cdimage.iso")
	if err := w.image.WriteImage(ctx, imagePath); err != nil {
		return "", err
	}
	return imagePath, w.writeExistingImage(ctx, imagePath, writeMulti)
}

func (w *CdWriter) writeExistingImage(ctx context.Context, imagePath string, writeMulti bool) error {
	args := []string{"-v"}
	if w.device.DriveSpeed > 0 {
		args = append(args, fmt.Sprintf("speed=%d", w.device.DriveSpeed))
	}
	args = append(args, "dev="+w.hardwareID())
	if writeMulti {
		args = append(args, "-multi")
	}
	args = append(args, "-data", imagePath)
	_, err := w.runner.RunArgs(ctx, "cdrecord", args, command.Options{})
	return err
}

func (w *CdWriter) blankMedia(ctx context.Context) error {
	args := []string{"-v", "blank=fast"}
	if w.device.DriveSpeed > 0 {
		args = append(args, fmt.Sprintf("speed=%d", w.device.DriveSpeed))
	}
	args = append(args, "dev="+w.hardwareID())
	if _, err := w.runner.RunArgs(ctx, "cdrecord", args, command.Options{}); err != nil {
		return err
	}
	return w.RefreshMedia(ctx)
}

