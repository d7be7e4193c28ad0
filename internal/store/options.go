// Package store provides functional options for configuring client behavior.
package store

import (
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/go-git/go-billy/v5"

	"github.com/capitolarchive/crmirror/internal/store/storetypes"
)

// WithRegion sets the region for store operations.
// If not specified, uses the default region from the credential chain.
func WithRegion(region string) storetypes.Option {
	return func(c *storetypes.ClientConfig) {
		c.Region = region
	}
}

// WithEndpoint sets a custom endpoint URL.
// Required for S3-compatible services such as DigitalOcean Spaces or MinIO.
func WithEndpoint(endpoint string) storetypes.Option {
	return func(c *storetypes.ClientConfig) {
		c.Endpoint = endpoint
	}
}

// WithForcePathStyle forces path-style URLs instead of virtual-hosted style.
// Some S3-compatible services do not support virtual hosting.
func WithForcePathStyle(forcePathStyle bool) storetypes.Option {
	return func(c *storetypes.ClientConfig) {
		c.ForcePathStyle = forcePathStyle
	}
}

// WithStaticCredentials sets the access key pair for the store.
// The values are held only in memory for the lifetime of the process.
func WithStaticCredentials(accessKeyID, secretAccessKey string) storetypes.Option {
	return func(c *storetypes.ClientConfig) {
		c.AccessKeyID = accessKeyID
		c.SecretAccessKey = secretAccessKey
	}
}

// WithMaxRetries sets the maximum number of SDK retry attempts.
// Default is 3.
func WithMaxRetries(maxRetries int) storetypes.Option {
	return func(c *storetypes.ClientConfig) {
		c.MaxRetries = maxRetries
	}
}

// WithTimeout sets the timeout for individual store operations.
// Default is no timeout.
func WithTimeout(timeout time.Duration) storetypes.Option {
	return func(c *storetypes.ClientConfig) {
		c.Timeout = timeout
	}
}

// WithConcurrency sets the default number of concurrent transfers for sync.
// Default is 5.
func WithConcurrency(concurrency int) storetypes.Option {
	return func(c *storetypes.ClientConfig) {
		if concurrency > 0 {
			c.Concurrency = concurrency
		}
	}
}

// WithAWSConfig provides a fully custom AWS configuration, overriding the
// default configuration loading behavior.
func WithAWSConfig(config *aws.Config) storetypes.Option {
	return func(c *storetypes.ClientConfig) {
		c.CustomAWSConfig = config
	}
}

// WithFilesystem sets a custom filesystem implementation for file operations.
// Defaults to the OS filesystem; tests use an in-memory filesystem.
func WithFilesystem(filesystem billy.Filesystem) storetypes.Option {
	return func(c *storetypes.ClientConfig) {
		c.Filesystem = filesystem
	}
}

// WithLogger sets the structured logger for store operations.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) storetypes.Option {
	return func(c *storetypes.ClientConfig) {
		c.Logger = logger
	}
}

// WithContentType sets the content type for an upload, bypassing detection.
func WithContentType(contentType string) storetypes.UploadOption {
	return func(c *storetypes.UploadOptionConfig) {
		c.ContentType = contentType
	}
}

// WithMetadata sets user metadata for an upload.
func WithMetadata(metadata map[string]string) storetypes.UploadOption {
	return func(c *storetypes.UploadOptionConfig) {
		if c.Metadata == nil {
			c.Metadata = make(map[string]string)
		}
		for k, v := range metadata {
			c.Metadata[k] = v
		}
	}
}

// WithIfMatch makes the upload conditional on the object's current ETag.
// The write fails with ErrPreconditionFailed if another writer got there
// first.
func WithIfMatch(etag string) storetypes.UploadOption {
	return func(c *storetypes.UploadOptionConfig) {
		c.IfMatch = etag
	}
}

// WithIfNoneMatch makes the upload succeed only when the key does not exist.
func WithIfNoneMatch() storetypes.UploadOption {
	return func(c *storetypes.UploadOptionConfig) {
		c.IfNoneMatch = true
	}
}

// WithListPrefix restricts a list call to keys under the prefix.
func WithListPrefix(prefix string) storetypes.ListOption {
	return func(c *storetypes.ListOptionConfig) {
		c.Prefix = prefix
	}
}

// WithListMaxKeys caps the page size of a list call (1-1000).
func WithListMaxKeys(maxKeys int32) storetypes.ListOption {
	return func(c *storetypes.ListOptionConfig) {
		if maxKeys > 0 {
			c.MaxKeys = maxKeys
		}
	}
}

// WithListContinuationToken resumes a truncated listing.
func WithListContinuationToken(token string) storetypes.ListOption {
	return func(c *storetypes.ListOptionConfig) {
		c.ContinuationToken = token
	}
}

// WithSyncDryRun plans a sync without transferring anything.
func WithSyncDryRun(dryRun bool) storetypes.SyncOption {
	return func(c *storetypes.SyncOptionConfig) {
		c.DryRun = dryRun
	}
}

// WithSyncParallelism sets the number of concurrent transfers for a sync run,
// overriding the client-level concurrency.
func WithSyncParallelism(parallelism int) storetypes.SyncOption {
	return func(c *storetypes.SyncOptionConfig) {
		if parallelism > 0 {
			c.Parallelism = parallelism
		}
	}
}

// WithSyncComparator overrides the change-detection strategy for a sync run.
func WithSyncComparator(comparator storetypes.FileComparator) storetypes.SyncOption {
	return func(c *storetypes.SyncOptionConfig) {
		c.Comparator = comparator
	}
}
