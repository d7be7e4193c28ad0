// Package archive builds the daily distribution artifacts: a single ZIP of
// the mirrored record tree and the stats document describing it.
//
// The build stages the bucket's mirror content into a local directory, zips
// it with deterministic entry ordering, and publishes both the archive and
// its stats back to the bucket.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/capitolarchive/crmirror/internal/store"
	"github.com/capitolarchive/crmirror/internal/store/errors"
	"github.com/capitolarchive/crmirror/internal/store/storetypes"
)

// ObjectStore is the slice of the store client the archiver needs.
type ObjectStore interface {
	ListTree(ctx context.Context, bucket, prefix string) ([]storetypes.Object, error)
	DownloadFile(ctx context.Context, bucket, key, path string) (*storetypes.DownloadResult, error)
	UploadFile(ctx context.Context, bucket, key, path string,
		opts ...storetypes.UploadOption) (*storetypes.UploadResult, error)
	Put(ctx context.Context, bucket, key string, reader io.Reader,
		opts ...storetypes.UploadOption) (*storetypes.UploadResult, error)
}

// Config describes one archive build.
type Config struct {
	// Bucket is the mirror bucket
	Bucket string

	// SourcePrefix is the key prefix of the mirrored record tree
	SourcePrefix string

	// ExtraKeys are additional objects bundled into the archive when they
	// exist; a missing extra key is skipped, not an error
	ExtraKeys []string

	// StagingDir is the local directory the build stages into
	StagingDir string

	// ArchiveKey is the destination key for the ZIP
	ArchiveKey string

	// StatsKey is the destination key for the stats document
	StatsKey string

	// ArchiveURL is the public URL recorded in the stats document
	ArchiveURL string
}

// Result summarizes an archive build.
type Result struct {
	// FilesArchived is the number of entries in the ZIP
	FilesArchived int

	// ArchiveSizeBytes is the size of the built ZIP
	ArchiveSizeBytes int64

	// SkippedExtras lists configured extra keys that were absent
	SkippedExtras []string

	// Stats is the published stats document
	Stats StatsRecord
}

// Archiver builds and publishes the distribution archive.
type Archiver struct {
	store  ObjectStore
	fs     billy.Filesystem
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archiver) {
		a.logger = logger
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) {
		a.now = now
	}
}

// New creates an archiver staging through the given filesystem.
func New(s ObjectStore, fs billy.Filesystem, opts ...Option) *Archiver {
	a := &Archiver{
		store:  s,
		fs:     fs,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run stages the mirror content, builds the ZIP, and publishes the archive
// and its stats document.
func (a *Archiver) Run(ctx context.Context, cfg Config) (*Result, error) {
	staged, skipped, err := a.stage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if staged == 0 {
		return nil, fmt.Errorf("nothing to archive under %s/%s", cfg.Bucket, cfg.SourcePrefix)
	}

	zipPath := path.Join(cfg.StagingDir, "archive.zip")
	entries, err := a.buildZip(ctx, zipPath, path.Join(cfg.StagingDir, "content"))
	if err != nil {
		return nil, err
	}

	info, err := a.fs.Stat(zipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	if _, err := a.store.UploadFile(ctx, cfg.Bucket, cfg.ArchiveKey, zipPath,
		store.WithContentType("application/zip")); err != nil {
		return nil, fmt.Errorf("failed to upload archive: %w", err)
	}

	stats := NewStatsRecord(info.Size(), cfg.ArchiveURL, a.now())
	statsJSON, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode stats: %w", err)
	}
	if _, err := a.store.Put(ctx, cfg.Bucket, cfg.StatsKey, bytes.NewReader(statsJSON),
		store.WithContentType("application/json")); err != nil {
		return nil, fmt.Errorf("failed to publish stats: %w", err)
	}

	a.logger.Info("archive published",
		"bucket", cfg.Bucket,
		"key", cfg.ArchiveKey,
		"entries", entries,
		"size_mb", stats.FileSizeMB,
	)

	return &Result{
		FilesArchived:    entries,
		ArchiveSizeBytes: info.Size(),
		SkippedExtras:    skipped,
		Stats:            stats,
	}, nil
}

// stage downloads the record tree and the optional extras into
// <stagingDir>/content. Returns the number of staged files and the extra
// keys that turned out to be absent.
func (a *Archiver) stage(ctx context.Context, cfg Config) (int, []string, error) {
	contentDir := path.Join(cfg.StagingDir, "content")
	if err := a.fs.MkdirAll(contentDir, 0o755); err != nil {
		return 0, nil, fmt.Errorf("failed to create staging dir: %w", err)
	}

	// The archive must be a complete snapshot, so an aborted listing fails
	// the build rather than producing a silently partial ZIP.
	objects, err := a.store.ListTree(ctx, cfg.Bucket, cfg.SourcePrefix)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to inventory %s/%s: %w", cfg.Bucket, cfg.SourcePrefix, err)
	}

	staged := 0
	for _, obj := range objects {
		rel := strings.TrimPrefix(obj.Key, cfg.SourcePrefix)
		rel = strings.TrimPrefix(rel, "/")
		if rel == "" {
			continue
		}
		if _, err := a.store.DownloadFile(ctx, cfg.Bucket, obj.Key, path.Join(contentDir, rel)); err != nil {
			return 0, nil, fmt.Errorf("failed to stage %s: %w", obj.Key, err)
		}
		staged++
	}

	var skipped []string
	for _, key := range cfg.ExtraKeys {
		_, err := a.store.DownloadFile(ctx, cfg.Bucket, key, path.Join(contentDir, path.Base(key)))
		if err != nil {
			if errors.IsObjectNotFound(err) {
				a.logger.Info("optional file absent, skipping", "key", key)
				skipped = append(skipped, key)
				continue
			}
			return 0, nil, fmt.Errorf("failed to stage %s: %w", key, err)
		}
		staged++
	}

	return staged, skipped, nil
}

// buildZip writes every file under contentDir into a ZIP at zipPath.
// Entries use forward-slash paths relative to contentDir and are sorted, so
// the same tree always produces the same entry order.
func (a *Archiver) buildZip(ctx context.Context, zipPath, contentDir string) (int, error) {
	var files []string
	err := util.Walk(a.fs, contentDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to walk staging dir: %w", err)
	}
	sort.Strings(files)

	out, err := a.fs.Create(zipPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive file: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	for _, file := range files {
		select {
		case <-ctx.Done():
			zw.Close()
			return 0, ctx.Err()
		default:
		}

		rel := strings.TrimPrefix(file, contentDir)
		rel = strings.TrimPrefix(rel, "/")

		w, err := zw.Create(rel)
		if err != nil {
			zw.Close()
			return 0, fmt.Errorf("failed to add %s to archive: %w", rel, err)
		}

		src, err := a.fs.Open(file)
		if err != nil {
			zw.Close()
			return 0, fmt.Errorf("failed to open %s: %w", file, err)
		}
		if _, err := io.Copy(w, src); err != nil {
			src.Close()
			zw.Close()
			return 0, fmt.Errorf("failed to compress %s: %w", file, err)
		}
		src.Close()
	}

	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("failed to finalize archive: %w", err)
	}

	return len(files), nil
}
