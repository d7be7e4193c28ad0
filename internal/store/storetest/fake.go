package storetest

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/capitolarchive/crmirror/internal/store/storeapi"
)

// FakeBucket is an in-memory bucket that behaves like the real store for the
// operations the mirror uses: puts (including conditional puts), gets,
// paginated listing, and head requests. It is safe for concurrent use.
type FakeBucket struct {
	mu      sync.Mutex
	objects map[string]*fakeObject

	// PutCalls counts PutObject invocations, useful for asserting that an
	// idempotent re-run uploaded nothing.
	PutCalls int
}

type fakeObject struct {
	data         []byte
	etag         string
	contentType  string
	lastModified time.Time
}

// NewFakeBucket creates an empty in-memory bucket.
func NewFakeBucket() *FakeBucket {
	return &FakeBucket{
		objects: make(map[string]*fakeObject),
	}
}

// Seed inserts an object directly, bypassing the API surface.
func (f *FakeBucket) Seed(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = &fakeObject{
		data:         append([]byte(nil), data...),
		etag:         fmt.Sprintf("%x", md5.Sum(data)),
		lastModified: time.Now(),
	}
}

// Data returns a copy of an object's content and whether it exists.
func (f *FakeBucket) Data(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

// Keys returns all object keys in sorted order.
func (f *FakeBucket) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PutObject implements storeapi.API.
func (f *FakeBucket) PutObject(
	ctx context.Context,
	params *s3.PutObjectInput,
	optFns ...func(*s3.Options),
) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PutCalls++

	key := aws.ToString(params.Key)
	existing, exists := f.objects[key]

	if params.IfNoneMatch != nil && exists {
		return nil, fmt.Errorf("operation error S3: PutObject, PreconditionFailed: object already exists")
	}
	if params.IfMatch != nil {
		want := strings.Trim(aws.ToString(params.IfMatch), `"`)
		if !exists || existing.etag != want {
			return nil, fmt.Errorf("operation error S3: PutObject, PreconditionFailed: etag mismatch")
		}
	}

	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	etag := fmt.Sprintf("%x", md5.Sum(data))
	f.objects[key] = &fakeObject{
		data:         data,
		etag:         etag,
		contentType:  aws.ToString(params.ContentType),
		lastModified: time.Now(),
	}

	return &s3.PutObjectOutput{
		ETag: aws.String(`"` + etag + `"`),
	}, nil
}

// GetObject implements storeapi.API.
func (f *FakeBucket) GetObject(
	ctx context.Context,
	params *s3.GetObjectInput,
	optFns ...func(*s3.Options),
) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := aws.ToString(params.Key)
	obj, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("operation error S3: GetObject, NoSuchKey: the specified key does not exist")
	}

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.data)),
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
		ETag:          aws.String(`"` + obj.etag + `"`),
		LastModified:  aws.Time(obj.lastModified),
	}, nil
}

// ListObjectsV2 implements storeapi.API with real pagination.
func (f *FakeBucket) ListObjectsV2(
	ctx context.Context,
	params *s3.ListObjectsV2Input,
	optFns ...func(*s3.Options),
) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := aws.ToString(params.Prefix)
	maxKeys := int(aws.ToInt32(params.MaxKeys))
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if params.ContinuationToken != nil {
		token := aws.ToString(params.ContinuationToken)
		for i, k := range keys {
			if k > token {
				start = i
				break
			}
		}
	}

	end := start + maxKeys
	truncated := end < len(keys)
	if end > len(keys) {
		end = len(keys)
	}

	output := &s3.ListObjectsV2Output{
		IsTruncated: aws.Bool(truncated),
	}
	for _, k := range keys[start:end] {
		obj := f.objects[k]
		output.Contents = append(output.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(obj.data))),
			ETag:         aws.String(`"` + obj.etag + `"`),
			LastModified: aws.Time(obj.lastModified),
		})
	}
	if truncated {
		output.NextContinuationToken = aws.String(keys[end-1])
	}

	return output, nil
}

// HeadObject implements storeapi.API.
func (f *FakeBucket) HeadObject(
	ctx context.Context,
	params *s3.HeadObjectInput,
	optFns ...func(*s3.Options),
) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := aws.ToString(params.Key)
	obj, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("operation error S3: HeadObject, NotFound: the specified key does not exist")
	}

	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
		ETag:          aws.String(`"` + obj.etag + `"`),
		LastModified:  aws.Time(obj.lastModified),
	}, nil
}

// Verify the fake satisfies the API interface
var _ storeapi.API = (*FakeBucket)(nil)
