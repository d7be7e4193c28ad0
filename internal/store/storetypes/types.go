// Package storetypes provides shared type definitions for the object store
// client and its sync engine.
package storetypes

import (
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/go-git/go-billy/v5"
)

// Object represents an object in the bucket.
type Object struct {
	// Key is the full object key
	Key string

	// Size is the object size in bytes
	Size int64

	// LastModified is when the object was last written
	LastModified time.Time

	// ETag is the object's entity tag (MD5 for non-multipart uploads)
	ETag string
}

// ObjectMetadata holds the metadata returned by a head request.
type ObjectMetadata struct {
	// ContentType is the MIME type of the object
	ContentType string

	// ContentLength is the object size in bytes
	ContentLength int64

	// LastModified is when the object was last written
	LastModified time.Time

	// ETag is the object's entity tag
	ETag string
}

// LocalFile describes a file discovered on the local filesystem during a scan.
type LocalFile struct {
	// Path is the absolute path within the filesystem abstraction
	Path string

	// Size is the file size in bytes
	Size int64

	// ModTime is the file's modification time
	ModTime time.Time
}

// RemoteFile describes an object discovered in the bucket during a scan.
type RemoteFile struct {
	// Key is the full object key
	Key string

	// Size is the object size in bytes
	Size int64

	// LastModified is when the object was last written
	LastModified time.Time

	// ETag is the object's entity tag with surrounding quotes stripped
	ETag string
}

// UploadResult holds the outcome of a single upload.
type UploadResult struct {
	// Key is the object key that was written
	Key string

	// ETag is the entity tag returned by the store
	ETag string

	// Size is the number of bytes uploaded
	Size int64

	// Duration is how long the upload took
	Duration time.Duration
}

// DownloadResult holds the outcome of a single download.
type DownloadResult struct {
	// Key is the object key that was read
	Key string

	// Size is the number of bytes downloaded
	Size int64

	// Duration is how long the download took
	Duration time.Duration
}

// ListResult holds one page of a bucket listing.
type ListResult struct {
	// Objects are the objects in this page
	Objects []Object

	// IsTruncated reports whether more pages remain
	IsTruncated bool

	// NextContinuationToken continues the listing when IsTruncated is true
	NextContinuationToken string

	// Duration is how long the list call took
	Duration time.Duration
}

// SyncResult summarizes a one-way sync run.
type SyncResult struct {
	// FilesUploaded is the number of files transferred
	FilesUploaded int

	// FilesSkipped is the number of unchanged files left alone
	FilesSkipped int

	// BytesUploaded is the total bytes transferred
	BytesUploaded int64

	// Errors holds per-file transfer failures. A populated slice does not
	// mean the sync aborted; unrelated files are still attempted.
	Errors []SyncError

	// Duration is how long the whole sync took
	Duration time.Duration
}

// SyncError describes a single failed transfer within a sync run.
type SyncError struct {
	// LocalPath is the file that failed to transfer
	LocalPath string

	// RemoteKey is the destination key
	RemoteKey string

	// Message is the failure description
	Message string
}

// ClientConfig holds client-level configuration assembled from options.
type ClientConfig struct {
	Region          string
	Endpoint        string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string
	MaxRetries      int
	Timeout         time.Duration
	Concurrency     int
	CustomAWSConfig *aws.Config
	Filesystem      billy.Filesystem
	Logger          *slog.Logger
}

// UploadOptionConfig holds per-upload configuration assembled from options.
type UploadOptionConfig struct {
	ContentType string
	Metadata    map[string]string

	// IfMatch writes only when the object's current ETag matches.
	IfMatch string

	// IfNoneMatch writes only when no object exists at the key yet.
	IfNoneMatch bool
}

// ListOptionConfig holds per-list configuration assembled from options.
type ListOptionConfig struct {
	Prefix            string
	MaxKeys           int32
	ContinuationToken string
}

// SyncOptionConfig holds per-sync configuration assembled from options.
type SyncOptionConfig struct {
	DryRun      bool
	Parallelism int
	Comparator  FileComparator
}

// FileComparator decides whether a local file differs from its remote copy.
type FileComparator interface {
	// HasChanged determines if the local and remote files are different
	HasChanged(local *LocalFile, remote *RemoteFile) (bool, error)
}

// Functional option types for the client and its operations.
type (
	// Option configures the client
	Option func(*ClientConfig)

	// UploadOption configures a single upload
	UploadOption func(*UploadOptionConfig)

	// ListOption configures a single list call
	ListOption func(*ListOptionConfig)

	// SyncOption configures a sync run
	SyncOption func(*SyncOptionConfig)
)
