package store

import (
	"context"
	"time"

	"github.com/capitolarchive/crmirror/internal/store/errors"
	"github.com/capitolarchive/crmirror/internal/store/storetypes"
	"github.com/capitolarchive/crmirror/internal/store/syncer"
	"github.com/capitolarchive/crmirror/internal/store/validation"
)

// Sync performs a one-way sync from a local directory to the bucket.
// Files that are new or changed locally are uploaded; unchanged files are
// skipped; nothing is ever deleted from the bucket.
//
// The run is idempotent: a second sync over an unchanged tree uploads
// nothing. Change detection defaults to the smart comparator (size, then
// ETag/MD5, then modification time) and can be overridden per run.
//
// Per-file transfer failures do not abort the run; they are collected in the
// returned SyncResult.Errors so one bad file cannot block the rest of a
// mirror update.
//
// Example:
//
//	result, err := client.Sync(ctx, "congressional_records", "congressional-records", "records/",
//	    store.WithSyncParallelism(8),
//	)
//	if err != nil {
//	    return err
//	}
//	log.Printf("uploaded %d, skipped %d", result.FilesUploaded, result.FilesSkipped)
func (c *Client) Sync(
	ctx context.Context,
	localPath, bucket, prefix string,
	opts ...storetypes.SyncOption,
) (*storetypes.SyncResult, error) {
	if localPath == "" {
		return nil, errors.NewError("sync", errors.ErrInvalidInput).
			WithBucket(bucket).
			WithMessage("local path cannot be empty")
	}
	if err := validation.ValidateBucketName(bucket); err != nil {
		return nil, errors.NewError("sync", errors.ErrInvalidInput).
			WithBucket(bucket).
			WithMessage(err.Error())
	}

	fs := c.getFilesystem()
	clientCfg := c.getClientConfig()

	config := &storetypes.SyncOptionConfig{
		Parallelism: clientCfg.Concurrency,
		Comparator:  syncer.NewSmartComparator(fs),
	}
	for _, opt := range opts {
		opt(config)
	}

	info, err := fs.Stat(localPath)
	if err != nil {
		return nil, errors.NewError("sync", err).WithBucket(bucket).
			WithMessage("local path is not accessible")
	}
	if !info.IsDir() {
		return nil, errors.NewError("sync", errors.ErrInvalidInput).
			WithBucket(bucket).
			WithMessage("local path is not a directory")
	}

	startTime := time.Now()

	scanner := syncer.NewScanner(c.api, fs)

	localFiles, err := scanner.ScanLocal(ctx, localPath)
	if err != nil {
		return nil, errors.NewError("sync", err).WithBucket(bucket).
			WithMessage("local scan failed")
	}

	remoteObjects, err := scanner.ScanRemote(ctx, bucket, prefix)
	if err != nil {
		return nil, errors.NewError("sync", err).WithBucket(bucket).
			WithMessage("remote scan failed")
	}

	planner := syncer.NewPlanner(config.Comparator)
	operations, err := planner.Plan(localPath, prefix, localFiles, remoteObjects)
	if err != nil {
		return nil, errors.NewError("sync", err).WithBucket(bucket).
			WithMessage("planning failed")
	}

	stats := syncer.PlanStats(operations)
	c.logger.Info("sync planned",
		"bucket", bucket,
		"prefix", prefix,
		"uploads", stats.Uploads,
		"skips", stats.Skips,
		"bytes", stats.BytesToUpload,
	)

	if config.DryRun {
		return &storetypes.SyncResult{
			FilesSkipped: stats.Skips,
			Duration:     time.Since(startTime),
		}, nil
	}

	executor := syncer.NewExecutor(c.api, fs, config.Parallelism)
	result, err := executor.ExecuteUploads(ctx, bucket, operations)
	if err != nil {
		return nil, errors.NewError("sync", err).WithBucket(bucket)
	}

	result.Duration = time.Since(startTime)

	c.logger.Info("sync complete",
		"bucket", bucket,
		"uploaded", result.FilesUploaded,
		"skipped", result.FilesSkipped,
		"bytes", result.BytesUploaded,
		"failures", len(result.Errors),
	)

	return result, nil
}
