package syncer

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/capitolarchive/crmirror/internal/store/storeapi"
	"github.com/capitolarchive/crmirror/internal/store/storetypes"
)

// Scanner discovers files on both sides of a sync: the local tree via the
// filesystem abstraction and the bucket via paginated listing.
type Scanner struct {
	api storeapi.API
	fs  billy.Filesystem
}

// NewScanner creates a scanner over the given store API and filesystem.
func NewScanner(api storeapi.API, fs billy.Filesystem) *Scanner {
	return &Scanner{
		api: api,
		fs:  fs,
	}
}

// ScanLocal walks the local tree rooted at localPath and returns every
// regular file found.
func (s *Scanner) ScanLocal(ctx context.Context, localPath string) ([]*storetypes.LocalFile, error) {
	var files []*storetypes.LocalFile

	err := util.Walk(s.fs, localPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		files = append(files, &storetypes.LocalFile{
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory %s: %w", localPath, err)
	}

	return files, nil
}

// ScanRemote lists every object under the prefix, following pagination.
func (s *Scanner) ScanRemote(ctx context.Context, bucket, prefix string) ([]*storetypes.RemoteFile, error) {
	var objects []*storetypes.RemoteFile
	var continuationToken *string

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during bucket listing: %w", ctx.Err())
		default:
		}

		input := &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
			MaxKeys:           aws.Int32(1000),
		}

		result, err := s.api.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in bucket %s: %w", bucket, err)
		}

		for _, obj := range result.Contents {
			remoteFile := &storetypes.RemoteFile{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			}
			if obj.ETag != nil {
				remoteFile.ETag = strings.Trim(*obj.ETag, `"`)
			}
			objects = append(objects, remoteFile)
		}

		if !aws.ToBool(result.IsTruncated) {
			break
		}
		continuationToken = result.NextContinuationToken
	}

	return objects, nil
}
