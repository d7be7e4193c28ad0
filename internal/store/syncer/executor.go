package syncer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-git/go-billy/v5"

	"github.com/capitolarchive/crmirror/internal/store/storeapi"
	"github.com/capitolarchive/crmirror/internal/store/storetypes"
)

// Executor runs the upload operations of a plan with bounded concurrency.
// Per-file failures are collected, not fatal; the rest of the plan still
// runs.
type Executor struct {
	api storeapi.API
	fs  billy.Filesystem

	maxConcurrency int
	semaphore      chan struct{}
}

// NewExecutor creates an executor with the given concurrency limit.
func NewExecutor(api storeapi.API, fs billy.Filesystem, maxConcurrency int) *Executor {
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	return &Executor{
		api:            api,
		fs:             fs,
		maxConcurrency: maxConcurrency,
		semaphore:      make(chan struct{}, maxConcurrency),
	}
}

// ExecuteUploads transfers every upload operation in the plan to the bucket.
// The returned result is complete even when some transfers failed; callers
// inspect result.Errors to find out which.
func (e *Executor) ExecuteUploads(
	ctx context.Context,
	bucket string,
	operations []*Operation,
) (*storetypes.SyncResult, error) {
	startTime := time.Now()

	var uploadOps []*Operation
	skipped := 0
	for _, op := range operations {
		switch op.Type {
		case OperationUpload:
			uploadOps = append(uploadOps, op)
		case OperationSkip:
			skipped++
		}
	}

	result := &storetypes.SyncResult{
		FilesSkipped: skipped,
	}

	if len(uploadOps) == 0 {
		result.Duration = time.Since(startTime)
		return result, nil
	}

	var (
		wg            sync.WaitGroup
		mu            sync.Mutex
		filesUploaded int64
		bytesUploaded int64
	)

	for _, op := range uploadOps {
		select {
		case e.semaphore <- struct{}{}:
		case <-ctx.Done():
			result.Duration = time.Since(startTime)
			return result, fmt.Errorf("context cancelled during upload scheduling: %w", ctx.Err())
		}

		wg.Add(1)
		go func(op *Operation) {
			defer func() {
				<-e.semaphore
				wg.Done()
			}()

			select {
			case <-ctx.Done():
				return
			default:
			}

			if err := e.uploadFile(ctx, bucket, op); err != nil {
				mu.Lock()
				result.Errors = append(result.Errors, storetypes.SyncError{
					LocalPath: op.LocalPath,
					RemoteKey: op.RemoteKey,
					Message:   err.Error(),
				})
				mu.Unlock()
				return
			}

			atomic.AddInt64(&filesUploaded, 1)
			atomic.AddInt64(&bytesUploaded, op.Size)
		}(op)
	}

	wg.Wait()

	result.FilesUploaded = int(atomic.LoadInt64(&filesUploaded))
	result.BytesUploaded = atomic.LoadInt64(&bytesUploaded)
	result.Duration = time.Since(startTime)

	return result, nil
}

// uploadFile transfers a single file.
func (e *Executor) uploadFile(ctx context.Context, bucket string, op *Operation) error {
	file, err := e.fs.Open(op.LocalPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(op.RemoteKey),
		Body:          file,
		ContentLength: aws.Int64(op.Size),
	}

	if _, err := e.api.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload: %w", err)
	}

	return nil
}
