package writer

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pronovic/cedarbackup/pkg/cerrors"
	"github.com/pronovic/cedarbackup/pkg/command"
	"github.com/pronovic/cedarbackup/pkg/config"
	"github.com/pronovic/cedarbackup/pkg/isoimage"
)

func errUnsupportedMedia(mediaType config.MediaType) error {
	return cerrors.Config("unsupported media type: %s", mediaType)
}

// state is the per-image usage-order state machine spec.md §4.4 names:
// Idle -> ImageInitialized, and back to Idle after a successful write
// (see finishWrite).
type state int

const (
	stateIdle state = iota
	stateImageInitialized
)

// OpticalWriter is the interface shared by the CD and DVD writers, per
// spec.md §4.4.
type OpticalWriter interface {
	InitializeImage(newDisc bool, tmpdir string, mediaLabel string) error
	AddImageEntry(path string, graftPoint *string) error
	SetImageNewDisc(newDisc bool) error
	GetEstimatedImageSize(ctx context.Context) (int64, error)
	RetrieveCapacity(ctx context.Context, entireDisc bool, useMulti bool) (MediaCapacity, error)
	WriteImage(ctx context.Context, imagePath string, newDisc bool, writeMulti bool) error
	Media() MediaDefinition
}

// Device carries the physical-drive identity and behavior flags common
// to both writer kinds.
type Device struct {
	Path              string
	ScsiID            string
	DriveSpeed        int
	NoEject           bool
	RefreshMediaDelay time.Duration
	EjectDelay        time.Duration
}

// base holds the state machine, runner, and in-progress image shared by
// both concrete writers; CdWriter and DvdWriter embed it.
type base struct {
	runner *command.Runner
	log    *logrus.Entry
	device Device
	media  MediaDefinition

	state      state
	newDisc    bool
	tmpdir     string
	mediaLabel string
	image      *isoimage.IsoImage
}

func newBase(runner *command.Runner, log *logrus.Entry, device Device, media MediaDefinition) base {
	return base{runner: runner, log: log, device: device, media: media}
}

// InitializeImage moves Idle -> ImageInitialized, starting a fresh
// ISO image accumulation.
func (b *base) InitializeImage(newDisc bool, tmpdir string, mediaLabel string) error {
	b.state = stateImageInitialized
	b.newDisc = newDisc
	b.tmpdir = tmpdir
	b.mediaLabel = mediaLabel
	b.image = isoimage.New(b.runner)
	b.image.VolumeID = mediaLabel
	return nil
}

func (b *base) requireInitialized() error {
	if b.state != stateImageInitialized {
		return cerrors.Config("image has not been initialized; call InitializeImage first")
	}
	return nil
}

// AddImageEntry adds path (with an optional graft point) to the image
// under construction; a directory's contents land directly under the
// graft point.
func (b *base) AddImageEntry(path string, graftPoint *string) error {
	if err := b.requireInitialized(); err != nil {
		return err
	}
	return b.image.AddEntry(path, graftPoint, true, true)
}

// SetImageNewDisc overrides the newDisc flag set at InitializeImage
// time.
func (b *base) SetImageNewDisc(newDisc bool) error {
	if err := b.requireInitialized(); err != nil {
		return err
	}
	b.newDisc = newDisc
	return nil
}

// GetEstimatedImageSize delegates to the accumulated IsoImage.
func (b *base) GetEstimatedImageSize(ctx context.Context) (int64, error) {
	if err := b.requireInitialized(); err != nil {
		return 0, err
	}
	return b.image.GetEstimatedSize(ctx)
}

// Media returns the device's fixed media definition.
func (b *base) Media() MediaDefinition { return b.media }

// finishWrite moves ImageInitialized -> Idle after a successful write.
func (b *base) finishWrite() { b.state = stateIdle; b.image = nil }

// RefreshMedia implements the tray/eject handshake from spec.md §4.4:
// open, close, unlock, with configured delays; retries once via
// "eject -i off" if the first open fails. A no-op when NoEject is set.
// Shared by both the CD and DVD writers, which behave identically here.
func (b *base) RefreshMedia(ctx context.Context) error {
	if b.device.NoEject {
		return nil
	}
	if err := b.openTray(ctx); err != nil {
		if _, unlockErr := b.runner.RunArgs(ctx, "eject", []string{"-i", "off", b.device.Path}, command.Options{}); unlockErr != nil {
			return cerrors.WrapIO(err, "failed to open tray, and unlock-and-retry also failed")
		}
		if err := b.openTray(ctx); err != nil {
			return cerrors.WrapIO(err, "failed to open tray after unlock retry")
		}
	}
	if b.device.EjectDelay > 0 {
		time.Sleep(b.device.EjectDelay)
	}
	if _, err := b.runner.RunArgs(ctx, "eject", []string{"-t", b.device.Path}, command.Options{}); err != nil {
		return cerrors.WrapIO(err, "failed to close tray")
	}
	if _, err := b.runner.RunArgs(ctx, "eject", []string{"-i", "off", b.device.Path}, command.Options{}); err != nil {
		return cerrors.WrapIO(err, "failed to unlock tray")
	}
	if b.device.RefreshMediaDelay > 0 {
		time.Sleep(b.device.RefreshMediaDelay)
	}
	return nil
}

func (b *base) openTray(ctx context.Context) error {
	_, err := b.runner.RunArgs(ctx, "eject", []string{b.device.Path}, command.Options{})
	return err
}

// checkOverburn fails with a clear "enough capacity" error when the
// image is larger than the available space, per spec.md §4.4's "Image
// size overburn guard".
func checkOverburn(available, required int64) error {
	if required > available {
		return cerrors.IO("media does not contain enough capacity to store image (required %d bytes, available %d bytes)", required, available)
	}
	return nil
}

// BlankBehavior mirrors config.BlankBehavior but is imported directly so
// this package doesn't need every config field.
type BlankBehavior = config.BlankBehavior

// ComputeNewDisc implements the "writeImageBlankSafe" policy from
// spec.md §4.4: whether this write should target a freshly blanked
// disc rather than appending a session.
func ComputeNewDisc(rebuildMedia, todayIsStart bool, blankBehavior *BlankBehavior, available, required int64) bool {
	if rebuildMedia {
		return true
	}
	if blankBehavior == nil {
		return todayIsStart
	}
	applies := blankBehavior.Mode == "daily" || (blankBehavior.Mode == "weekly" && todayIsStart)
	if !applies {
		return false
	}
	ratio := float64(available) / (1.0 + float64(required))
	return ratio <= blankBehavior.Factor
}

// WriteImageBlankSafe computes newDisc via ComputeNewDisc, validates
// the image fits, blanks rewritable media when appropriate, and writes.
// w must already have an image initialized via InitializeImage and
// populated via AddImageEntry.
func WriteImageBlankSafe(ctx context.Context, w OpticalWriter, rebuildMedia, todayIsStart bool, blankBehavior *BlankBehavior, imagePath string, writeMulti bool) error {
	capacity, err := w.RetrieveCapacity(ctx, false, writeMulti)
	if err != nil {
		return err
	}
	required, err := w.GetEstimatedImageSize(ctx)
	if err != nil {
		return err
	}
	newDisc := ComputeNewDisc(rebuildMedia, todayIsStart, blankBehavior, capacity.BytesAvailable, required)
	if err := w.SetImageNewDisc(newDisc); err != nil {
		return err
	}

	available := capacity.BytesAvailable
	if newDisc {
		available = w.Media().Capacity - w.Media().InitialLeadIn
	}
	if err := checkOverburn(available, required); err != nil {
		return err
	}
	return w.WriteImage(ctx, imagePath, newDisc, writeMulti)
}
