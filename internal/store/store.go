package store

import (
	"bytes"
	"context"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"

	"github.com/capitolarchive/crmirror/internal/store/errors"
	"github.com/capitolarchive/crmirror/internal/store/storetypes"
	"github.com/capitolarchive/crmirror/internal/store/validation"
)

const (
	// DefaultContentType is used when content type detection fails
	DefaultContentType = "application/octet-stream"

	// detectionBufferSize is how many leading bytes content sniffing reads
	detectionBufferSize = 3072
)

// Put uploads data from an io.Reader to the bucket.
// The body is buffered in memory, so Put is intended for the small control
// objects the mirror writes (manifests, stats, summaries); bulk record files
// go through UploadFile or Sync.
//
// Conditional writes are supported via WithIfMatch and WithIfNoneMatch; a
// failed condition surfaces as ErrPreconditionFailed.
//
// Errors:
//   - ErrInvalidInput: if bucket is empty, key is invalid, or reader is nil
//   - ErrPreconditionFailed: if a conditional write lost the race
//   - Network errors or AWS SDK errors wrapped in Error type
func (c *Client) Put(
	ctx context.Context,
	bucket, key string,
	reader io.Reader,
	opts ...storetypes.UploadOption,
) (*storetypes.UploadResult, error) {
	if bucket == "" {
		return nil, errors.NewError("put", errors.ErrInvalidInput).
			WithBucket(bucket).
			WithKey(key).
			WithMessage("bucket name cannot be empty")
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return nil, errors.NewError("put", errors.ErrInvalidInput).
			WithBucket(bucket).
			WithKey(key).
			WithMessage(err.Error())
	}
	if reader == nil {
		return nil, errors.NewError("put", errors.ErrInvalidInput).
			WithBucket(bucket).
			WithKey(key).
			WithMessage("reader cannot be nil")
	}

	config := &storetypes.UploadOptionConfig{}
	for _, opt := range opts {
		opt(config)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.NewError("put", err).WithBucket(bucket).WithKey(key)
	}

	contentType := config.ContentType
	if contentType == "" {
		contentType = detectContentTypeFromBytes(key, body)
	}

	startTime := time.Now()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	}
	if len(config.Metadata) > 0 {
		input.Metadata = config.Metadata
	}
	if config.IfMatch != "" {
		input.IfMatch = aws.String(config.IfMatch)
	}
	if config.IfNoneMatch {
		input.IfNoneMatch = aws.String("*")
	}

	result, err := c.api.PutObject(ctx, input)
	if err != nil {
		if isPreconditionFailed(err) {
			return nil, errors.NewError("put", errors.ErrPreconditionFailed).
				WithBucket(bucket).
				WithKey(key)
		}
		return nil, errors.NewError("put", err).WithBucket(bucket).WithKey(key)
	}

	c.logger.Debug("object written",
		"bucket", bucket,
		"key", key,
		"size", len(body),
		"content_type", contentType,
	)

	return &storetypes.UploadResult{
		Key:      key,
		ETag:     strings.Trim(aws.ToString(result.ETag), `"`),
		Size:     int64(len(body)),
		Duration: time.Since(startTime),
	}, nil
}

// UploadFile uploads a file from the local filesystem to the bucket.
// Content type is sniffed from the file's leading bytes, falling back to the
// extension.
func (c *Client) UploadFile(
	ctx context.Context,
	bucket, key, path string,
	opts ...storetypes.UploadOption,
) (*storetypes.UploadResult, error) {
	if bucket == "" {
		return nil, errors.NewError("uploadFile", errors.ErrInvalidInput).
			WithBucket(bucket).
			WithKey(key).
			WithMessage("bucket name cannot be empty")
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return nil, errors.NewError("uploadFile", errors.ErrInvalidInput).
			WithBucket(bucket).
			WithKey(key).
			WithMessage(err.Error())
	}
	if path == "" {
		return nil, errors.NewError("uploadFile", errors.ErrInvalidInput).
			WithBucket(bucket).
			WithKey(key).
			WithMessage("path cannot be empty")
	}

	fs := c.getFilesystem()

	info, err := fs.Stat(path)
	if err != nil {
		return nil, errors.NewError("uploadFile", err).WithBucket(bucket).WithKey(key)
	}
	if info.IsDir() {
		return nil, errors.NewError("uploadFile", errors.ErrInvalidInput).
			WithBucket(bucket).
			WithKey(key).
			WithMessage("path points to a directory, not a file")
	}

	config := &storetypes.UploadOptionConfig{}
	for _, opt := range opts {
		opt(config)
	}

	contentType := config.ContentType
	if contentType == "" {
		contentType = c.detectContentType(path)
	}

	file, err := fs.Open(path)
	if err != nil {
		return nil, errors.NewError("uploadFile", err).WithBucket(bucket).WithKey(key)
	}
	defer file.Close()

	startTime := time.Now()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(info.Size()),
	}
	if len(config.Metadata) > 0 {
		input.Metadata = config.Metadata
	}

	result, err := c.api.PutObject(ctx, input)
	if err != nil {
		return nil, errors.NewError("uploadFile", err).WithBucket(bucket).WithKey(key)
	}

	c.logger.Debug("file uploaded",
		"bucket", bucket,
		"key", key,
		"path", path,
		"size", info.Size(),
	)

	return &storetypes.UploadResult{
		Key:      key,
		ETag:     strings.Trim(aws.ToString(result.ETag), `"`),
		Size:     info.Size(),
		Duration: time.Since(startTime),
	}, nil
}

// Get retrieves an object's full content.
// Returns ErrObjectNotFound if no object exists at the key.
func (c *Client) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if bucket == "" {
		return nil, errors.NewError("get", errors.ErrInvalidInput).
			WithBucket(bucket).
			WithKey(key).
			WithMessage("bucket name cannot be empty")
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return nil, errors.NewError("get", errors.ErrInvalidInput).
			WithBucket(bucket).
			WithKey(key).
			WithMessage(err.Error())
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}

	result, err := c.api.GetObject(ctx, input)
	if err != nil {
		if isObjectNotFound(err) {
			return nil, errors.NewError("get", errors.ErrObjectNotFound).
				WithBucket(bucket).
				WithKey(key)
		}
		return nil, errors.NewError("get", err).WithBucket(bucket).WithKey(key)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, errors.NewError("get", err).WithBucket(bucket).WithKey(key)
	}

	return data, nil
}

// Download streams an object's content to the provided writer.
// Returns ErrObjectNotFound if no object exists at the key.
func (c *Client) Download(
	ctx context.Context,
	bucket, key string,
	w io.Writer,
) (*storetypes.DownloadResult, error) {
	if bucket == "" {
		return nil, errors.NewError("download", errors.ErrInvalidInput).
			WithBucket(bucket).
			WithKey(key).
			WithMessage("bucket name cannot be empty")
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return nil, errors.NewError("download", errors.ErrInvalidInput).
			WithBucket(bucket).
			WithKey(key).
			WithMessage(err.Error())
	}
	if w == nil {
		return nil, errors.NewError("download", errors.ErrInvalidInput).
			WithBucket(bucket).
			WithKey(key).
			WithMessage("writer cannot be nil")
	}

	startTime := time.Now()

	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}

	result, err := c.api.GetObject(ctx, input)
	if err != nil {
		if isObjectNotFound(err) {
			return nil, errors.NewError("download", errors.ErrObjectNotFound).
				WithBucket(bucket).
				WithKey(key)
		}
		return nil, errors.NewError("download", err).WithBucket(bucket).WithKey(key)
	}
	defer result.Body.Close()

	written, err := io.Copy(w, result.Body)
	if err != nil {
		return nil, errors.NewError("download", err).WithBucket(bucket).WithKey(key)
	}

	return &storetypes.DownloadResult{
		Key:      key,
		Size:     written,
		Duration: time.Since(startTime),
	}, nil
}

// DownloadFile downloads an object to a local file, creating parent
// directories as needed. The file is written through the client's filesystem
// abstraction.
func (c *Client) DownloadFile(
	ctx context.Context,
	bucket, key, path string,
) (*storetypes.DownloadResult, error) {
	if path == "" {
		return nil, errors.NewError("downloadFile", errors.ErrInvalidInput).
			WithBucket(bucket).
			WithKey(key).
			WithMessage("path cannot be empty")
	}

	fs := c.getFilesystem()

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.NewError("downloadFile", err).WithBucket(bucket).WithKey(key)
		}
	}

	file, err := fs.Create(path)
	if err != nil {
		return nil, errors.NewError("downloadFile", err).WithBucket(bucket).WithKey(key)
	}
	defer file.Close()

	result, err := c.Download(ctx, bucket, key, file)
	if err != nil {
		return nil, err
	}

	return result, nil
}

// List lists objects in the bucket with pagination support.
// Use opts to set the page size or resume from a continuation token.
func (c *Client) List(
	ctx context.Context,
	bucket, prefix string,
	opts ...storetypes.ListOption,
) (*storetypes.ListResult, error) {
	if bucket == "" {
		return nil, errors.NewError("list", errors.ErrInvalidInput).
			WithBucket(bucket).
			WithMessage("bucket name cannot be empty")
	}

	config := &storetypes.ListOptionConfig{
		Prefix:  prefix,
		MaxKeys: 1000,
	}
	for _, opt := range opts {
		opt(config)
	}

	startTime := time.Now()

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(config.Prefix),
		MaxKeys: aws.Int32(config.MaxKeys),
	}
	if config.ContinuationToken != "" {
		input.ContinuationToken = aws.String(config.ContinuationToken)
	}

	result, err := c.api.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, errors.NewError("list", err).WithBucket(bucket)
	}

	listResult := &storetypes.ListResult{
		Objects:     make([]storetypes.Object, 0, len(result.Contents)),
		IsTruncated: aws.ToBool(result.IsTruncated),
		Duration:    time.Since(startTime),
	}
	if result.NextContinuationToken != nil {
		listResult.NextContinuationToken = aws.ToString(result.NextContinuationToken)
	}

	for _, obj := range result.Contents {
		listResult.Objects = append(listResult.Objects, storetypes.Object{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
			ETag:         strings.Trim(aws.ToString(obj.ETag), `"`),
		})
	}

	return listResult, nil
}

// ListTree collects every object under the prefix, following pagination
// until the listing is complete. Any failed page fails the whole call, so a
// caller can never mistake a truncated inventory for a complete one.
func (c *Client) ListTree(ctx context.Context, bucket, prefix string) ([]storetypes.Object, error) {
	var objects []storetypes.Object
	token := ""

	for {
		var opts []storetypes.ListOption
		if token != "" {
			opts = append(opts, WithListContinuationToken(token))
		}

		page, err := c.List(ctx, bucket, prefix, opts...)
		if err != nil {
			return nil, err
		}
		objects = append(objects, page.Objects...)

		if !page.IsTruncated || page.NextContinuationToken == "" {
			return objects, nil
		}
		token = page.NextContinuationToken
	}
}

// Exists checks whether an object exists using a HEAD request.
// A missing object is not an error; only transport or permission failures are.
func (c *Client) Exists(ctx context.Context, bucket, key string) (bool, error) {
	if bucket == "" {
		return false, errors.NewError("exists", errors.ErrInvalidInput).
			WithBucket(bucket).
			WithKey(key).
			WithMessage("bucket name cannot be empty")
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return false, errors.NewError("exists", errors.ErrInvalidInput).
			WithBucket(bucket).
			WithKey(key).
			WithMessage(err.Error())
	}

	input := &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}

	_, err := c.api.HeadObject(ctx, input)
	if err != nil {
		if isObjectNotFound(err) {
			return false, nil
		}
		return false, errors.NewError("exists", err).WithBucket(bucket).WithKey(key)
	}

	return true, nil
}

// Stat retrieves an object's metadata without downloading the body.
// Returns ErrObjectNotFound if no object exists at the key.
func (c *Client) Stat(ctx context.Context, bucket, key string) (*storetypes.ObjectMetadata, error) {
	if bucket == "" {
		return nil, errors.NewError("stat", errors.ErrInvalidInput).
			WithBucket(bucket).
			WithKey(key).
			WithMessage("bucket name cannot be empty")
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return nil, errors.NewError("stat", errors.ErrInvalidInput).
			WithBucket(bucket).
			WithKey(key).
			WithMessage(err.Error())
	}

	input := &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}

	result, err := c.api.HeadObject(ctx, input)
	if err != nil {
		if isObjectNotFound(err) {
			return nil, errors.NewError("stat", errors.ErrObjectNotFound).
				WithBucket(bucket).
				WithKey(key)
		}
		return nil, errors.NewError("stat", err).WithBucket(bucket).WithKey(key)
	}

	return &storetypes.ObjectMetadata{
		ContentType:   aws.ToString(result.ContentType),
		ContentLength: aws.ToInt64(result.ContentLength),
		LastModified:  aws.ToTime(result.LastModified),
		ETag:          strings.Trim(aws.ToString(result.ETag), `"`),
	}, nil
}

// detectContentType sniffs the file's leading bytes, falling back to the
// extension when sniffing fails or is inconclusive.
func (c *Client) detectContentType(path string) string {
	fs := c.getFilesystem()

	file, err := fs.Open(path)
	if err != nil {
		return detectContentTypeFromExtension(path)
	}
	defer file.Close()

	buf := make([]byte, detectionBufferSize)
	n, _ := file.Read(buf)
	if n > 0 {
		if mt := mimetype.Detect(buf[:n]); mt != nil && mt.String() != DefaultContentType {
			return mt.String()
		}
	}

	return detectContentTypeFromExtension(path)
}

// detectContentTypeFromBytes sniffs in-memory content, preferring the
// extension when sniffing returns the generic fallback.
func detectContentTypeFromBytes(key string, body []byte) string {
	if len(body) > 0 {
		if mt := mimetype.Detect(body); mt != nil && mt.String() != DefaultContentType {
			return mt.String()
		}
	}
	return detectContentTypeFromExtension(key)
}

// detectContentTypeFromExtension maps the file extension to a MIME type.
func detectContentTypeFromExtension(path string) string {
	if ext := filepath.Ext(path); ext != "" {
		if contentType := mime.TypeByExtension(ext); contentType != "" {
			return contentType
		}
	}
	return DefaultContentType
}

// isObjectNotFound checks if an error indicates that an object was not found.
// The SDK surfaces this as NoSuchKey from GetObject and NotFound from
// HeadObject.
func isObjectNotFound(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "NoSuchKey") || strings.Contains(errStr, "NotFound")
}

// isPreconditionFailed checks if an error indicates a lost conditional write.
func isPreconditionFailed(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "PreconditionFailed") || strings.Contains(errStr, "412")
}
