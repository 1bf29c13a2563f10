package filelist

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"

	"github.com/pronovic/cedarbackup/pkg/cerrors"
)

// digestBlockSize is the read chunk size used to stream a file's digest.
// 4 KiB was found empirically in the original implementation to be the
// best tradeoff between syscall overhead and read throughput. The chunk
// size only affects how the file is read; the SHA-1 value is the same
// for any chunk size.
const digestBlockSize = 4096

func generateDigest(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", cerrors.WrapIO(err, "error opening "+path+" for digest")
	}
	defer f.Close()

	h := sha1.New()
	buf := make([]byte, digestBlockSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", cerrors.WrapIO(err, "error reading "+path+" for digest")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SpanItem is one bin produced by BackupFileList.GenerateSpan.
type SpanItem struct {
	FileList    []string
	Size        int64
	Capacity    int64
	Utilization float64
}

// DigestDiff describes how two digest maps differ, returned by
// CompareDigestMaps. It isn't part of the original filesystem.py API,
// which only returned a bool; the action engine needs to log what
// differed, not just that it differed.
type DigestDiff struct {
	OnlyInFirst  []string
	OnlyInSecond []string
	Changed      []string
}

// Equal reports whether the two digest maps were identical.
func (d DigestDiff) Equal() bool {
	return len(d.OnlyInFirst) == 0 && len(d.OnlyInSecond) == 0 && len(d.Changed) == 0
}

// CompareDigestMaps diffs two digest maps as produced by
// BackupFileList.GenerateDigestMap, reporting entries unique to either
// side and entries present on both sides with differing digests.
func CompareDigestMaps(first, second map[string]string) DigestDiff {
	var diff DigestDiff
	for path, digest := range first {
		other, ok := second[path]
		if !ok {
			diff.OnlyInFirst = append(diff.OnlyInFirst, path)
			continue
		}
		if other != digest {
			diff.Changed = append(diff.Changed, path)
		}
	}
	for path := range second {
		if _, ok := first[path]; !ok {
			diff.OnlyInSecond = append(diff.OnlyInSecond, path)
		}
	}
	return diff
}

// CompareContents compares two directory trees by generating and diffing
// a digest map for each, stripping the respective root prefix so paths
// line up regardless of where each tree lives on disk. Used by the
// store/rebuild post-write consistency check.
func CompareContents(fs afero.Fs, firstRoot, secondRoot string) (DigestDiff, error) {
	firstList := NewBackupFileList(fs, nil)
	if _, err := firstList.AddDirContents(firstRoot, true, false, 0, false); err != nil {
		return DigestDiff{}, err
	}
	secondList := NewBackupFileList(fs, nil)
	if _, err := secondList.AddDirContents(secondRoot, true, false, 0, false); err != nil {
		return DigestDiff{}, err
	}

	firstMap, err := firstList.GenerateDigestMap(firstRoot)
	if err != nil {
		return DigestDiff{}, err
	}
	secondMap, err := secondList.GenerateDigestMap(secondRoot)
	if err != nil {
		return DigestDiff{}, err
	}
	return CompareDigestMaps(firstMap, secondMap), nil
}

func (d DigestDiff) String() string {
	var b strings.Builder
	if len(d.OnlyInFirst) > 0 {
		fmt.Fprintf(&b, "only in first: %v\n", d.OnlyInFirst)
	}
	if len(d.OnlyInSecond) > 0 {
		fmt.Fprintf(&b, "only in second: %v\n", d.OnlyInSecond)
	}
	if len(d.Changed) > 0 {
		fmt.Fprintf(&b, "changed: %v\n", d.Changed)
	}
	return b.String()
}
