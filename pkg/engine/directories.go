package engine

import (
	"time"

	"github.com/pronovic/cedarbackup/pkg/cerrors"
	"github.com/pronovic/cedarbackup/pkg/util"
)

// FindCorrectDailyDir implements spec.md §4.6's "_findCorrectDailyDir":
// with full set, only today is considered (store indicator ignored);
// otherwise today/yesterday/tomorrow are scanned in that order for the
// first directory that has a stage indicator but no store indicator
// yet. warnMidnite logs a warning when the chosen directory isn't
// today's.
func (e *ActionEngine) FindCorrectDailyDir(targetDir string, full, warnMidnite bool, today time.Time) (string, error) {
	todayDir := datedPath(targetDir, today)

	if full {
		if e.isDir(todayDir) && e.hasIndicator(todayDir, stageIndicator) {
			return todayDir, nil
		}
		return "", cerrors.IO("unable to find staging directory to store (only tried today, since --full was specified)")
	}

	candidates := []struct {
		dir     string
		isToday bool
	}{
		{todayDir, true},
		{datedPath(targetDir, today.AddDate(0, 0, -1)), false},
		{datedPath(targetDir, today.AddDate(0, 0, 1)), false},
	}

	for _, c := range candidates {
		if !e.isDir(c.dir) {
			continue
		}
		if !e.hasIndicator(c.dir, stageIndicator) {
			continue
		}
		if e.hasIndicator(c.dir, storeIndicator) {
			continue
		}
		if !c.isToday && warnMidnite {
			e.logf("staging directory %q is not today's; backup is probably running across midnight", c.dir)
		}
		return c.dir, nil
	}
	return "", cerrors.IO("unable to find staging directory to store")
}

// FindRebuildDirs implements spec.md §4.6's "_findRebuildDirs": collects
// every dated staging directory from today back to the configured
// week-start day (inclusive) that exists and carries a stage indicator.
// Fails if none qualify.
func (e *ActionEngine) FindRebuildDirs(targetDir, startingDay string, today time.Time) ([]string, error) {
	start, err := util.DeriveDayOfWeek(startingDay)
	if err != nil {
		return nil, cerrors.WrapConfig(err, "invalid starting day")
	}
	w := util.WeekdayIndex(today.Weekday())

	var days int
	if w >= start {
		days = w - start + 1
	} else {
		days = 7 - (start - w) + 1
	}

	var dirs []string
	for i := 0; i < days; i++ {
		day := today.AddDate(0, 0, -i)
		dir := datedPath(targetDir, day)
		if e.isDir(dir) && e.hasIndicator(dir, stageIndicator) {
			dirs = append(dirs, dir)
		}
	}
	if len(dirs) == 0 {
		return nil, cerrors.IO("no staging directories found to rebuild for the current week")
	}
	return dirs, nil
}
