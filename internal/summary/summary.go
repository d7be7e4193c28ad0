// Package summary produces the human-readable bucket summary: a small text
// report of what the mirror currently holds, written locally, published to
// the bucket, and committed back to the repository that drives the mirror.
//
// Everything in this package is best effort by design: a failed summary must
// never fail the pipeline that produced the data it describes.
package summary

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/capitolarchive/crmirror/internal/archive"
	"github.com/capitolarchive/crmirror/internal/store"
	"github.com/capitolarchive/crmirror/internal/store/storetypes"
)

// DefaultKey is the summary's object key in the bucket.
const DefaultKey = "update_summary.txt"

// ObjectStore is the slice of the store client the summarizer needs.
type ObjectStore interface {
	ListTree(ctx context.Context, bucket, prefix string) ([]storetypes.Object, error)
	Put(ctx context.Context, bucket, key string, reader io.Reader,
		opts ...storetypes.UploadOption) (*storetypes.UploadResult, error)
}

// Config describes one summary run.
type Config struct {
	// Bucket is the mirror bucket
	Bucket string

	// RecordsPrefix is the key prefix of the mirrored record tree
	RecordsPrefix string

	// SummaryKey is the destination key for the summary text
	SummaryKey string

	// LocalPath is where the summary is written on disk; empty skips the
	// local copy
	LocalPath string

	// RepoPath is the repository to commit the summary into; empty skips
	// the commit
	RepoPath string

	// CommitMessage is the message for the summary commit
	CommitMessage string
}

// Result summarizes a summary run.
type Result struct {
	// TotalObjects is the number of objects seen in the bucket
	TotalObjects int

	// TotalBytes is their combined size
	TotalBytes int64

	// RecordFiles is the number of objects under the records prefix
	RecordFiles int

	// Congresses lists the congress numbers with at least one record file
	Congresses []int

	// DefaultApplied reports that the bucket inventory failed, so the
	// counts were unavailable and nothing was written or published
	DefaultApplied bool

	// Committed reports whether the summary was committed to the repo
	Committed bool

	// Pushed reports whether the commit was pushed to the remote
	Pushed bool
}

// Summarizer builds and distributes the bucket summary.
type Summarizer struct {
	store  ObjectStore
	fs     billy.Filesystem
	logger *slog.Logger
	now    func() time.Time

	commit func(repoPath, filePath, message string, logger *slog.Logger) (committed, pushed bool, err error)
}

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Summarizer) {
		s.logger = logger
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Summarizer) {
		s.now = now
	}
}

// withCommitFunc overrides the repo commit step in tests.
func withCommitFunc(
	fn func(repoPath, filePath, message string, logger *slog.Logger) (bool, bool, error),
) Option {
	return func(s *Summarizer) {
		s.commit = fn
	}
}

// New creates a summarizer writing local files through the given filesystem.
func New(s ObjectStore, fs billy.Filesystem, opts ...Option) *Summarizer {
	sum := &Summarizer{
		store:  s,
		fs:     fs,
		logger: slog.Default(),
		now:    time.Now,
		commit: commitAndPush,
	}
	for _, opt := range opts {
		opt(sum)
	}
	return sum
}

// Run inventories the bucket, renders the summary, and distributes it.
// Everything is best effort: a failed inventory skips the summary entirely
// and reports the default outcome, and the local write, bucket publish, and
// repo commit each log their failures and let the remaining steps run.
func (s *Summarizer) Run(ctx context.Context, cfg Config) (*Result, error) {
	result := &Result{}
	congresses := make(map[int]struct{})

	objects, err := s.store.ListTree(ctx, cfg.Bucket, "")
	if err != nil {
		s.logger.Warn("bucket inventory failed, skipping summary",
			"bucket", cfg.Bucket, "error", err)
		return &Result{DefaultApplied: true}, nil
	}

	for _, obj := range objects {
		result.TotalObjects++
		result.TotalBytes += obj.Size
		if strings.HasPrefix(obj.Key, cfg.RecordsPrefix) {
			result.RecordFiles++
			if n, ok := congressFromKey(obj.Key, cfg.RecordsPrefix); ok {
				congresses[n] = struct{}{}
			}
		}
	}

	for n := range congresses {
		result.Congresses = append(result.Congresses, n)
	}
	sort.Ints(result.Congresses)

	content := s.render(cfg, result)

	if cfg.LocalPath != "" {
		if dir := filepath.Dir(cfg.LocalPath); dir != "" && dir != "." {
			if err := s.fs.MkdirAll(dir, 0o755); err != nil {
				s.logger.Warn("failed to create summary directory", "error", err)
			}
		}
		if err := util.WriteFile(s.fs, cfg.LocalPath, []byte(content), 0o644); err != nil {
			s.logger.Warn("failed to write local summary", "path", cfg.LocalPath, "error", err)
		}
	}

	key := cfg.SummaryKey
	if key == "" {
		key = DefaultKey
	}
	if _, err := s.store.Put(ctx, cfg.Bucket, key, strings.NewReader(content),
		store.WithContentType("text/plain; charset=utf-8")); err != nil {
		s.logger.Warn("failed to publish summary to bucket", "key", key, "error", err)
	}

	if cfg.RepoPath != "" && cfg.LocalPath != "" {
		message := cfg.CommitMessage
		if message == "" {
			message = fmt.Sprintf("Update bucket summary (%s)", s.now().UTC().Format("2006-01-02"))
		}
		committed, pushed, err := s.commit(cfg.RepoPath, cfg.LocalPath, message, s.logger)
		if err != nil {
			s.logger.Warn("failed to commit summary", "repo", cfg.RepoPath, "error", err)
		}
		result.Committed = committed
		result.Pushed = pushed
	}

	return result, nil
}

// render formats the summary text.
func (s *Summarizer) render(cfg Config, r *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Congressional Record mirror summary\n")
	fmt.Fprintf(&b, "===================================\n\n")
	fmt.Fprintf(&b, "Bucket: %s\n", cfg.Bucket)
	fmt.Fprintf(&b, "Last updated: %s\n\n", s.now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Total files in bucket: %d\n", r.TotalObjects)
	fmt.Fprintf(&b, "Total size: %d MB\n", archive.RoundToMB(r.TotalBytes))
	fmt.Fprintf(&b, "Record files: %d (under %s)\n", r.RecordFiles, cfg.RecordsPrefix)

	if len(r.Congresses) > 0 {
		parts := make([]string, len(r.Congresses))
		for i, n := range r.Congresses {
			parts[i] = fmt.Sprintf("%d", n)
		}
		fmt.Fprintf(&b, "Congresses: %s\n", strings.Join(parts, ", "))
	}

	return b.String()
}

// congressFromKey extracts the congress number from a record key of the form
// <prefix>congress_<N>/...
func congressFromKey(key, prefix string) (int, bool) {
	rel := strings.TrimPrefix(key, prefix)
	rel = strings.TrimPrefix(rel, "/")
	if !strings.HasPrefix(rel, "congress_") {
		return 0, false
	}
	rest := strings.TrimPrefix(rel, "congress_")
	end := strings.IndexByte(rest, '/')
	if end <= 0 {
		return 0, false
	}
	var n int
	if _, err := fmt.Sscanf(rest[:end], "%d", &n); err != nil {
		return 0, false
	}
	return n, true
}
