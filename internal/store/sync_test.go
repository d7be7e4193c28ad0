package store

import (
	"context"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitolarchive/crmirror/internal/store/storetest"
	"github.com/capitolarchive/crmirror/internal/store/syncer"
)

func TestSyncUploadsNewFiles(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "/data/records/a.html", []byte("<html>a</html>"), 0o644))
	require.NoError(t, util.WriteFile(fs, "/data/records/b.html", []byte("<html>b</html>"), 0o644))
	require.NoError(t, util.WriteFile(fs, "/data/all_issues.json", []byte(`[]`), 0o644))

	fake := storetest.NewFakeBucket()
	client := NewWithAPI(fake, WithFilesystem(fs))

	result, err := client.Sync(context.Background(), "/data", "congressional-records", "mirror/")
	require.NoError(t, err)

	assert.Equal(t, 3, result.FilesUploaded)
	assert.Equal(t, 0, result.FilesSkipped)
	assert.Empty(t, result.Errors)
	assert.Equal(t, []string{
		"mirror/all_issues.json",
		"mirror/records/a.html",
		"mirror/records/b.html",
	}, fake.Keys())
}

func TestSyncIdempotent(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "/data/records/a.html", []byte("<html>a</html>"), 0o644))
	require.NoError(t, util.WriteFile(fs, "/data/records/b.html", []byte("<html>b</html>"), 0o644))

	fake := storetest.NewFakeBucket()
	client := NewWithAPI(fake, WithFilesystem(fs))

	first, err := client.Sync(context.Background(), "/data", "congressional-records", "mirror/")
	require.NoError(t, err)
	require.Equal(t, 2, first.FilesUploaded)

	putsAfterFirst := fake.PutCalls

	second, err := client.Sync(context.Background(), "/data", "congressional-records", "mirror/")
	require.NoError(t, err)

	assert.Equal(t, 0, second.FilesUploaded)
	assert.Equal(t, 2, second.FilesSkipped)
	assert.Equal(t, putsAfterFirst, fake.PutCalls, "unchanged tree must upload nothing")
}

func TestSyncDetectsModifiedFile(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "/data/records/a.html", []byte("<html>a</html>"), 0o644))

	fake := storetest.NewFakeBucket()
	client := NewWithAPI(fake, WithFilesystem(fs))

	_, err := client.Sync(context.Background(), "/data", "congressional-records", "mirror/")
	require.NoError(t, err)

	// Same length, different content: only the checksum can catch this.
	require.NoError(t, util.WriteFile(fs, "/data/records/a.html", []byte("<html>b</html>"), 0o644))

	result, err := client.Sync(context.Background(), "/data", "congressional-records", "mirror/")
	require.NoError(t, err)

	assert.Equal(t, 1, result.FilesUploaded)

	data, ok := fake.Data("mirror/records/a.html")
	require.True(t, ok)
	assert.Equal(t, "<html>b</html>", string(data))
}

func TestSyncNeverDeletesRemote(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "/data/records/a.html", []byte("<html>a</html>"), 0o644))

	fake := storetest.NewFakeBucket()
	fake.Seed("mirror/records/orphan.html", []byte("<html>old</html>"))

	client := NewWithAPI(fake, WithFilesystem(fs))

	_, err := client.Sync(context.Background(), "/data", "congressional-records", "mirror/")
	require.NoError(t, err)

	_, ok := fake.Data("mirror/records/orphan.html")
	assert.True(t, ok, "remote-only objects must survive a sync")
}

func TestSyncDryRun(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "/data/records/a.html", []byte("<html>a</html>"), 0o644))

	fake := storetest.NewFakeBucket()
	client := NewWithAPI(fake, WithFilesystem(fs))

	result, err := client.Sync(context.Background(), "/data", "congressional-records", "mirror/",
		WithSyncDryRun(true))
	require.NoError(t, err)

	assert.Equal(t, 0, result.FilesUploaded)
	assert.Equal(t, 0, fake.PutCalls)
}

func TestSyncForceComparator(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "/data/records/a.html", []byte("<html>a</html>"), 0o644))

	fake := storetest.NewFakeBucket()
	client := NewWithAPI(fake, WithFilesystem(fs))

	_, err := client.Sync(context.Background(), "/data", "congressional-records", "mirror/")
	require.NoError(t, err)

	result, err := client.Sync(context.Background(), "/data", "congressional-records", "mirror/",
		WithSyncComparator(syncer.NewForceComparator()))
	require.NoError(t, err)

	assert.Equal(t, 1, result.FilesUploaded)
}

func TestSyncValidation(t *testing.T) {
	client := NewWithAPI(storetest.NewFakeBucket(), WithFilesystem(memfs.New()))

	t.Run("empty local path", func(t *testing.T) {
		_, err := client.Sync(context.Background(), "", "congressional-records", "mirror/")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "local path cannot be empty")
	})

	t.Run("invalid bucket name", func(t *testing.T) {
		_, err := client.Sync(context.Background(), "/data", "NO", "mirror/")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "3-63 characters")
	})

	t.Run("missing local directory", func(t *testing.T) {
		_, err := client.Sync(context.Background(), "/nope", "congressional-records", "mirror/")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not accessible")
	})
}
