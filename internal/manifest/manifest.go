// Package manifest manages the issue manifest: the bucket-resident JSON
// array listing every daily Congressional Record issue the mirror knows
// about. The manifest is the coordination point between fetch runs, so
// writes are conditional on the revision read at the start of the run.
package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/capitolarchive/crmirror/internal/store"
	"github.com/capitolarchive/crmirror/internal/store/errors"
	"github.com/capitolarchive/crmirror/internal/store/storetypes"
)

// DefaultKey is the manifest's object key in the bucket.
const DefaultKey = "all_issues.json"

// Issue is one daily Congressional Record issue as reported by the
// congress.gov API. VolumeNumber and IssueNumber together identify an issue;
// the same pair never appears twice in a manifest.
type Issue struct {
	Congress      int    `json:"congress"`
	IssueDate     string `json:"issueDate"`
	IssueNumber   string `json:"issueNumber"`
	SessionNumber int    `json:"sessionNumber,omitempty"`
	URL           string `json:"url,omitempty"`
	VolumeNumber  int    `json:"volumeNumber"`
}

// Date parses the issue's date. Accepts both RFC 3339 timestamps and bare
// dates, which is what the API has been observed to return over the years.
func (i Issue) Date() (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, i.IssueDate); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", i.IssueDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable issue date %q: %w", i.IssueDate, err)
	}
	return t, nil
}

// DateString returns the issue date truncated to YYYY-MM-DD.
func (i Issue) DateString() string {
	if len(i.IssueDate) >= 10 {
		return i.IssueDate[:10]
	}
	return i.IssueDate
}

// ObjectStore is the slice of the store client the manifest needs.
type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, reader io.Reader,
		opts ...storetypes.UploadOption) (*storetypes.UploadResult, error)
	Stat(ctx context.Context, bucket, key string) (*storetypes.ObjectMetadata, error)
}

// FetchResult is a manifest read together with the revision it came from.
type FetchResult struct {
	// Issues is the manifest content, sorted newest first
	Issues []Issue

	// ETag identifies the revision read; empty when the manifest was absent
	ETag string

	// DefaultApplied reports that no manifest existed and an empty one was
	// substituted
	DefaultApplied bool
}

// Fetch reads the manifest from the bucket. An absent manifest is not an
// error: the mirror treats it as empty and reports that the default was
// applied, so a brand-new bucket bootstraps itself on the first run.
func Fetch(ctx context.Context, s ObjectStore, bucket, key string) (*FetchResult, error) {
	meta, err := s.Stat(ctx, bucket, key)
	if err != nil {
		if errors.IsObjectNotFound(err) {
			return &FetchResult{DefaultApplied: true}, nil
		}
		return nil, fmt.Errorf("failed to stat manifest: %w", err)
	}

	data, err := s.Get(ctx, bucket, key)
	if err != nil {
		if errors.IsObjectNotFound(err) {
			return &FetchResult{DefaultApplied: true}, nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var issues []Issue
	if err := json.Unmarshal(data, &issues); err != nil {
		return nil, fmt.Errorf("manifest is not valid JSON: %w", err)
	}

	SortNewestFirst(issues)

	return &FetchResult{
		Issues: issues,
		ETag:   meta.ETag,
	}, nil
}

// Merge adds the recent issues to the existing set, skipping any
// (volume, issue) pair already present, and returns the merged set sorted
// newest first along with the number of issues actually added.
func Merge(existing, recent []Issue) ([]Issue, int) {
	type issueID struct {
		volume int
		issue  string
	}

	seen := make(map[issueID]struct{}, len(existing))
	for _, issue := range existing {
		seen[issueID{issue.VolumeNumber, issue.IssueNumber}] = struct{}{}
	}

	merged := append([]Issue(nil), existing...)
	added := 0
	for _, issue := range recent {
		id := issueID{issue.VolumeNumber, issue.IssueNumber}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, issue)
		added++
	}

	SortNewestFirst(merged)
	return merged, added
}

// SortNewestFirst orders issues by descending issue date. ISO 8601 dates
// sort correctly as strings, so no parsing is needed here.
func SortNewestFirst(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].IssueDate > issues[j].IssueDate
	})
}

// NewestDate returns the date of the most recent issue, or false when the
// set is empty or no date parses.
func NewestDate(issues []Issue) (time.Time, bool) {
	var newest time.Time
	found := false
	for _, issue := range issues {
		t, err := issue.Date()
		if err != nil {
			continue
		}
		if !found || t.After(newest) {
			newest = t
			found = true
		}
	}
	return newest, found
}

// Publish writes the manifest back to the bucket, conditional on the
// revision it was fetched at. A concurrent writer surfaces as
// ErrPreconditionFailed; callers re-fetch and retry.
//
// When the manifest was absent at fetch time (empty etag), the write
// requires that it still be absent.
func Publish(ctx context.Context, s ObjectStore, bucket, key string, issues []Issue, etag string) error {
	SortNewestFirst(issues)

	data, err := json.MarshalIndent(issues, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	var opts []storetypes.UploadOption
	opts = append(opts, store.WithContentType("application/json"))
	if etag != "" {
		opts = append(opts, store.WithIfMatch(etag))
	} else {
		opts = append(opts, store.WithIfNoneMatch())
	}

	if _, err := s.Put(ctx, bucket, key, bytes.NewReader(data), opts...); err != nil {
		return fmt.Errorf("failed to publish manifest: %w", err)
	}

	return nil
}

// WriteLocal writes the manifest to a local file, sorted newest first. The
// update hook reads and rewrites this file in place of the built-in fetcher.
func WriteLocal(fs billy.Filesystem, path string, issues []Issue) error {
	SortNewestFirst(issues)

	data, err := json.MarshalIndent(issues, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := util.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest %s: %w", path, err)
	}
	return nil
}

// ReadLocal loads a local manifest file, returning its issues newest first.
func ReadLocal(fs billy.Filesystem, path string) ([]Issue, error) {
	data, err := util.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var issues []Issue
	if err := json.Unmarshal(data, &issues); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", path, err)
	}
	SortNewestFirst(issues)
	return issues, nil
}
