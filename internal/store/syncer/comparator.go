// Package syncer implements the one-way local-to-bucket sync engine: scan
// both sides, plan the difference, execute uploads in parallel. Remote
// objects are never deleted; the bucket only ever gains or refreshes files.
package syncer

import (
	"crypto/md5"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/capitolarchive/crmirror/internal/store/storetypes"
)

// SmartComparator is the default change detector. It compares size first,
// then ETag against a local MD5 when the ETag is a plain hash, and falls
// back to modification time with a tolerance.
type SmartComparator struct {
	// fs reads local files for checksum computation
	fs billy.Filesystem

	// MaxTimeDiff is the tolerance for modification time comparison
	MaxTimeDiff time.Duration
}

// NewSmartComparator creates a smart comparator reading local files through
// the given filesystem.
func NewSmartComparator(fs billy.Filesystem) *SmartComparator {
	return &SmartComparator{
		fs:          fs,
		MaxTimeDiff: 2 * time.Second,
	}
}

// HasChanged implements storetypes.FileComparator.
func (c *SmartComparator) HasChanged(local *storetypes.LocalFile, remote *storetypes.RemoteFile) (bool, error) {
	if local.Size != remote.Size {
		return true, nil
	}

	// A multipart ETag contains a part-count suffix and is not an MD5, so
	// only plain ETags are worth hashing against.
	if remote.ETag != "" && !strings.Contains(remote.ETag, "-") {
		localMD5, err := c.computeMD5(local.Path)
		if err != nil {
			return c.compareByTime(local, remote), nil
		}
		return localMD5 != remote.ETag, nil
	}

	return c.compareByTime(local, remote), nil
}

// computeMD5 hashes a local file's content.
func (c *SmartComparator) computeMD5(path string) (string, error) {
	file, err := c.fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file for MD5 computation: %w", err)
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("failed to compute MD5: %w", err)
	}

	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}

// compareByTime treats files as changed when their timestamps differ by more
// than the tolerance.
func (c *SmartComparator) compareByTime(local *storetypes.LocalFile, remote *storetypes.RemoteFile) bool {
	timeDiff := local.ModTime.Sub(remote.LastModified)
	if timeDiff < 0 {
		timeDiff = -timeDiff
	}
	return timeDiff > c.MaxTimeDiff
}

// SizeOnlyComparator only compares file sizes. Fast, but misses edits that
// preserve length.
type SizeOnlyComparator struct{}

// NewSizeOnlyComparator creates a size-only comparator.
func NewSizeOnlyComparator() *SizeOnlyComparator {
	return &SizeOnlyComparator{}
}

// HasChanged implements storetypes.FileComparator.
func (c *SizeOnlyComparator) HasChanged(local *storetypes.LocalFile, remote *storetypes.RemoteFile) (bool, error) {
	return local.Size != remote.Size, nil
}

// ForceComparator treats every file as changed, re-uploading everything.
type ForceComparator struct{}

// NewForceComparator creates a comparator that always reports a change.
func NewForceComparator() *ForceComparator {
	return &ForceComparator{}
}

// HasChanged implements storetypes.FileComparator.
func (c *ForceComparator) HasChanged(local *storetypes.LocalFile, remote *storetypes.RemoteFile) (bool, error) {
	return true, nil
}

// NullComparator treats every file as unchanged. Useful in tests and for
// runs that should only transfer brand-new files.
type NullComparator struct{}

// NewNullComparator creates a comparator that never reports a change.
func NewNullComparator() *NullComparator {
	return &NullComparator{}
}

// HasChanged implements storetypes.FileComparator.
func (c *NullComparator) HasChanged(local *storetypes.LocalFile, remote *storetypes.RemoteFile) (bool, error) {
	return false, nil
}
