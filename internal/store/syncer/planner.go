package syncer

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/capitolarchive/crmirror/internal/store/storetypes"
)

// OperationType classifies a planned sync operation.
type OperationType string

const (
	// OperationUpload indicates a file needs to be uploaded
	OperationUpload OperationType = "upload"

	// OperationSkip indicates a file is unchanged and should be left alone
	OperationSkip OperationType = "skip"
)

// Operation is one entry in a sync plan.
type Operation struct {
	// Type of operation
	Type OperationType

	// LocalPath is the local file path
	LocalPath string

	// RemoteKey is the destination object key
	RemoteKey string

	// Size is the file size in bytes
	Size int64

	// Reason describes why this operation was planned
	Reason string
}

// Planner turns a pair of scans into an ordered upload plan.
type Planner struct {
	comparator storetypes.FileComparator
}

// NewPlanner creates a planner using the given change detector.
func NewPlanner(comp storetypes.FileComparator) *Planner {
	return &Planner{comparator: comp}
}

// Plan diffs the local tree against the bucket and returns the operations to
// bring the bucket up to date. Files present remotely but not locally are
// ignored; this sync never deletes.
func (p *Planner) Plan(
	localPath, prefix string,
	localFiles []*storetypes.LocalFile,
	remoteObjects []*storetypes.RemoteFile,
) ([]*Operation, error) {
	localMap := buildLocalMap(localPath, localFiles)
	remoteMap := buildRemoteMap(prefix, remoteObjects)

	var operations []*Operation

	for relPath, localFile := range localMap {
		remoteKey := prefix + relPath

		remoteFile, exists := remoteMap[relPath]
		if !exists {
			operations = append(operations, &Operation{
				Type:      OperationUpload,
				LocalPath: localFile.Path,
				RemoteKey: remoteKey,
				Size:      localFile.Size,
				Reason:    "new file",
			})
			continue
		}

		changed, err := p.comparator.HasChanged(localFile, remoteFile)
		if err != nil {
			return nil, fmt.Errorf("failed to compare files %s: %w", relPath, err)
		}
		if changed {
			operations = append(operations, &Operation{
				Type:      OperationUpload,
				LocalPath: localFile.Path,
				RemoteKey: remoteKey,
				Size:      localFile.Size,
				Reason:    "modified",
			})
		} else {
			operations = append(operations, &Operation{
				Type:      OperationSkip,
				LocalPath: localFile.Path,
				RemoteKey: remoteKey,
				Size:      localFile.Size,
				Reason:    "unchanged",
			})
		}
	}

	// Uploads first, smallest first, for quick feedback; deterministic
	// ordering keeps logs and tests stable.
	sort.Slice(operations, func(i, j int) bool {
		if operations[i].Type != operations[j].Type {
			return operations[i].Type == OperationUpload
		}
		if operations[i].Size != operations[j].Size {
			return operations[i].Size < operations[j].Size
		}
		return operations[i].RemoteKey < operations[j].RemoteKey
	})

	return operations, nil
}

// buildLocalMap keys local files by their bucket-relative path.
func buildLocalMap(localPath string, files []*storetypes.LocalFile) map[string]*storetypes.LocalFile {
	localMap := make(map[string]*storetypes.LocalFile, len(files))
	for _, file := range files {
		relPath, err := filepath.Rel(localPath, file.Path)
		if err != nil {
			continue
		}
		localMap[filepath.ToSlash(relPath)] = file
	}
	return localMap
}

// buildRemoteMap keys remote objects by their prefix-relative path.
func buildRemoteMap(prefix string, objects []*storetypes.RemoteFile) map[string]*storetypes.RemoteFile {
	remoteMap := make(map[string]*storetypes.RemoteFile, len(objects))
	for _, obj := range objects {
		if !strings.HasPrefix(obj.Key, prefix) {
			continue
		}
		relPath := strings.TrimPrefix(obj.Key, prefix)
		relPath = strings.TrimPrefix(relPath, "/")
		remoteMap[relPath] = obj
	}
	return remoteMap
}

// Stats summarizes a plan.
type Stats struct {
	// Uploads is the number of files to transfer
	Uploads int

	// Skips is the number of unchanged files
	Skips int

	// BytesToUpload is the total transfer size
	BytesToUpload int64
}

// PlanStats tallies a plan's operations.
func PlanStats(operations []*Operation) Stats {
	stats := Stats{}
	for _, op := range operations {
		switch op.Type {
		case OperationUpload:
			stats.Uploads++
			stats.BytesToUpload += op.Size
		case OperationSkip:
			stats.Skips++
		}
	}
	return stats
}
