package engine

import (
	"context"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/pronovic/cedarbackup/pkg/cerrors"
	"github.com/pronovic/cedarbackup/pkg/command"
	"github.com/pronovic/cedarbackup/pkg/config"
	"github.com/pronovic/cedarbackup/pkg/filelist"
	"github.com/pronovic/cedarbackup/pkg/util"
)

func buildSourceList(fs afero.Fs, log *logrus.Entry, runner *command.Runner, source config.CollectDir) (*filelist.BackupFileList, error) {
	list := filelist.NewBackupFileList(fs, log)
	list.Runner = runner
	list.ExcludeFiles = source.Policy.ExcludeFiles
	list.ExcludeDirs = source.Policy.ExcludeDirs
	list.ExcludeLinks = source.Policy.ExcludeLinks
	list.ExcludePaths = source.Policy.ExcludePaths
	list.IgnoreFile = source.Policy.IgnoreFile
	for _, p := range source.Policy.ExcludePatterns {
		re, err := filelist.CompileExcludePattern(p)
		if err != nil {
			return nil, err
		}
		list.ExcludePatterns = append(list.ExcludePatterns, re)
	}
	for _, p := range source.Policy.ExcludeBasenamePatterns {
		re, err := filelist.CompileExcludePattern(p)
		if err != nil {
			return nil, err
		}
		list.ExcludeBasenamePatterns = append(list.ExcludeBasenamePatterns, re)
	}
	if _, err := list.AddDirContents(source.AbsolutePath, source.Recursive, true, source.LinkDepth, source.Dereference); err != nil {
		return nil, err
	}
	return list, nil
}

func archiveMode(mode string) filelist.TarMode {
	switch mode {
	case "targz":
		return filelist.TarGzip
	case "tarbz2":
		return filelist.TarBzip2
	default:
		return filelist.TarPlain
	}
}

func archiveExtension(mode string) string {
	switch mode {
	case "targz":
		return ".tar.gz"
	case "tarbz2":
		return ".tar.bz2"
	default:
		return ".tar"
	}
}

// ExecuteCollect implements the collect action: for every configured
// source, build an exclude-aware BackupFileList, write it to a tar
// archive named per spec.md §6's normalization rule, then write the
// cback.collect indicator once all sources have been processed.
func (e *ActionEngine) ExecuteCollect(ctx context.Context, full bool) error {
	if e.Config.Collect == nil {
		return cerrors.Config("collect is not configured")
	}
	collect := e.Config.Collect
	if !e.isDir(collect.TargetDir) {
		if err := e.FS.MkdirAll(collect.TargetDir, 0o755); err != nil {
			return cerrors.WrapIO(err, "error creating collect target directory "+collect.TargetDir)
		}
	}

	var failures []string
	for _, source := range collect.Sources {
		list, err := buildSourceList(e.FS, e.Log, e.Runner, source)
		if err != nil {
			failures = append(failures, source.AbsolutePath+": "+err.Error())
			continue
		}
		if list.Len() == 0 {
			e.logf("no files collected from source %q; skipping archive", source.AbsolutePath)
			continue
		}
		name := util.BuildNormalizedPath(source.AbsolutePath) + archiveExtension(source.ArchiveMode)
		archivePath := filepath.Join(collect.TargetDir, name)
		if err := list.GenerateTarfile(ctx, archivePath, archiveMode(source.ArchiveMode), false, false); err != nil {
			failures = append(failures, source.AbsolutePath+": "+err.Error())
			continue
		}
	}
	if len(failures) > 0 {
		return cerrors.IO("collect failed for %d source(s): %v", len(failures), failures)
	}
	return e.writeIndicator(collect.TargetDir, collectIndicator)
}
