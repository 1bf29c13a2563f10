package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pronovic/cedarbackup/pkg/cerrors"
	"github.com/pronovic/cedarbackup/pkg/command"
	"github.com/pronovic/cedarbackup/pkg/config"
	"github.com/pronovic/cedarbackup/pkg/filelist"
	"github.com/pronovic/cedarbackup/pkg/isoimage"
	"github.com/pronovic/cedarbackup/pkg/util"
	"github.com/pronovic/cedarbackup/pkg/writer"
)

func (e *ActionEngine) buildWriter(mediaType config.MediaType, device writer.Device) (writer.OpticalWriter, error) {
	switch mediaType {
	case config.MediaDVDPlusR, config.MediaDVDPlusRW:
		return writer.NewDvdWriter(e.Runner, e.Log, device, mediaType)
	default:
		return writer.NewCdWriter(e.Runner, e.Log, device, mediaType)
	}
}

func mediaLabel(today time.Time) string {
	return fmt.Sprintf("Cedar Backup %s", today.Format("2006-01-02"))
}

// dateSuffix computes the YYYY/MM/DD path of dir relative to the
// configured staging target dir, for use as the image graft point. Per
// original_source/.../actions/store.py's dateSuffix/_writeImage: "a
// staging directory /opt/stage/2005/02/10 will be placed into the disc
// at /2005/02/10" rather than collapsing to its bare basename. Falls
// back to the directory's basename if it isn't actually under the
// staging target dir (e.g. in a test that passes an ad hoc path).
func (e *ActionEngine) dateSuffix(dir string) string {
	if e.Config.Stage == nil || e.Config.Stage.TargetDir == "" {
		return filepath.Base(dir)
	}
	rel, err := filepath.Rel(e.Config.Stage.TargetDir, dir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.Base(dir)
	}
	return filepath.ToSlash(rel)
}

// ExecuteStore implements spec.md §4.6's store action: find the single
// correct dated staging directory and write it as one disc session.
func (e *ActionEngine) ExecuteStore(ctx context.Context, full bool) error {
	if e.Config.Store == nil || e.Config.Stage == nil {
		return cerrors.Config("store and stage must both be configured")
	}
	today := e.Now()
	dir, err := e.FindCorrectDailyDir(e.Config.Stage.TargetDir, full, e.Config.Stage.WarnMidnite, today)
	if err != nil {
		return err
	}
	return e.storeDirs(ctx, []string{dir}, false, today)
}

// ExecuteRebuild implements spec.md §4.6's rebuild action: widen store
// to every dated staging directory in the current week and always
// treat the disc as new.
func (e *ActionEngine) ExecuteRebuild(ctx context.Context) error {
	if e.Config.Store == nil || e.Config.Stage == nil {
		return cerrors.Config("store and stage must both be configured")
	}
	today := e.Now()
	dirs, err := e.FindRebuildDirs(e.Config.Stage.TargetDir, e.Config.Store.StartingDay, today)
	if err != nil {
		return err
	}
	return e.storeDirs(ctx, dirs, true, today)
}

func (e *ActionEngine) storeDirs(ctx context.Context, dirs []string, rebuildMedia bool, today time.Time) error {
	store := e.Config.Store

	device := writer.Device{
		Path:              store.DevicePath,
		ScsiID:            store.DeviceScsiID,
		DriveSpeed:        store.DriveSpeed,
		NoEject:           store.NoEject,
		RefreshMediaDelay: store.RefreshMediaDelay,
		EjectDelay:        store.EjectDelay,
	}
	w, err := e.buildWriter(store.MediaType, device)
	if err != nil {
		return err
	}

	tmpdir := filepath.Join(e.Config.WorkingDir, isoimage.ScratchName("store"))
	if err := e.FS.MkdirAll(tmpdir, 0o755); err != nil {
		return cerrors.WrapIO(err, "error creating scratch directory "+tmpdir)
	}

	if err := w.InitializeImage(rebuildMedia, tmpdir, mediaLabel(today)); err != nil {
		return err
	}
	for _, dir := range dirs {
		graftPoint := e.dateSuffix(dir)
		if err := w.AddImageEntry(dir, &graftPoint); err != nil {
			return err
		}
	}

	todayIsStart := false
	if store.StartingDay != "" {
		if start, err := util.IsStartOfWeek(store.StartingDay, today); err == nil {
			todayIsStart = start
		}
	}

	if err := writer.WriteImageBlankSafe(ctx, w, rebuildMedia, todayIsStart, store.BlankBehavior, "", true); err != nil {
		return err
	}

	if store.CheckData {
		if err := e.checkStoredData(ctx, store, dirs, tmpdir); err != nil {
			return err
		}
	}

	var failures []string
	for _, dir := range dirs {
		if err := e.writeIndicator(dir, storeIndicator); err != nil {
			failures = append(failures, err.Error())
		}
	}
	if len(failures) > 0 {
		return cerrors.IO("failed to write store indicator for %d dir(s): %v", len(failures), failures)
	}
	return nil
}

// checkStoredData mounts the written device and compares each staged
// directory's digest map against the corresponding path on the mounted
// disc, per spec.md §4.6. Unmount is retried up to 5 times at 1-second
// intervals, matching spec.md §7's locally-recovered I/O errors.
// Declines entirely on a platform that doesn't support mount/umount
// (spec.md §9's "UNIX-specific" carve-out).
func (e *ActionEngine) checkStoredData(ctx context.Context, store *config.StoreConfig, dirs []string, workingDir string) error {
	if e.Runner.Platform == nil || !e.Runner.Platform.SupportsMount() {
		e.logf("skipping post-write consistency check: platform does not support mount/umount")
		return nil
	}

	mountpoint := filepath.Join(workingDir, "mnt")
	if err := e.FS.MkdirAll(mountpoint, 0o755); err != nil {
		return cerrors.WrapIO(err, "error creating mountpoint "+mountpoint)
	}
	if _, err := e.Runner.RunArgs(ctx, "mount", []string{store.DevicePath, mountpoint}, command.Options{}); err != nil {
		return cerrors.WrapIO(err, "error mounting "+store.DevicePath)
	}
	defer e.unmountWithRetry(ctx, mountpoint)

	var diffs []string
	for _, dir := range dirs {
		mountedDir := filepath.Join(mountpoint, filepath.FromSlash(e.dateSuffix(dir)))
		diff, err := filelist.CompareContents(e.FS, dir, mountedDir)
		if err != nil {
			diffs = append(diffs, dir+": "+err.Error())
			continue
		}
		if !diff.Equal() {
			diffs = append(diffs, dir+":\n"+diff.String())
		}
	}
	if len(diffs) > 0 {
		return cerrors.IO("post-write consistency check failed:\n%s", strings.Join(diffs, "\n"))
	}
	return nil
}

func (e *ActionEngine) unmountWithRetry(ctx context.Context, mountpoint string) {
	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		if _, err := e.Runner.RunArgs(ctx, "umount", []string{mountpoint}, command.Options{}); err == nil {
			return
		} else {
			lastErr = err
		}
		time.Sleep(time.Second)
	}
	if lastErr != nil {
		e.logf("failed to unmount %q after 5 attempts: %v", mountpoint, lastErr)
	}
}
