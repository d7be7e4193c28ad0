package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"CRMIRROR_BUCKET", "CRMIRROR_REGION", "CRMIRROR_ENDPOINT",
		"CRMIRROR_FORCE_PATH_STYLE", "CRMIRROR_ACCESS_KEY_ID",
		"CRMIRROR_SECRET_ACCESS_KEY", "CONGRESS_API_KEYS",
		"CRMIRROR_DATA_DIR", "CRMIRROR_RECORDS_PREFIX",
		"CRMIRROR_FIRST_CONGRESS", "CRMIRROR_PARALLELISM",
		"CRMIRROR_MIN_INTERVAL", "CRMIRROR_UPDATE_HOOK",
		"CRMIRROR_REPO_PATH", "CRMIRROR_ARCHIVE_URL",
		"CRMIRROR_MANIFEST_KEY", "CRMIRROR_ARCHIVE_KEY",
		"CRMIRROR_STATS_KEY", "CRMIRROR_SUMMARY_KEY", "CRMIRROR_SAMPLE_KEY",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "congressional-records", cfg.Bucket)
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, "congressional_records", cfg.DataDir)
	assert.Empty(t, cfg.RecordsPrefix, "records live at the bucket root as congress_<n>/... keys")
	assert.Equal(t, 115, cfg.FirstCongress)
	assert.Equal(t, 5, cfg.Parallelism)
	assert.Equal(t, time.Second, cfg.MinInterval)
	assert.Equal(t, "all_issues.json", cfg.ManifestKey)
	assert.Equal(t, "congressional_records_latest.zip", cfg.ArchiveKey)
	assert.Equal(t, "download_stats.json", cfg.StatsKey)
	assert.Equal(t, "update_summary.txt", cfg.SummaryKey)
	assert.Empty(t, cfg.APIKeys)
	assert.False(t, cfg.HasCredentials())
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("CRMIRROR_BUCKET", "my-mirror")
	t.Setenv("CRMIRROR_ENDPOINT", "https://fsn1.your-objectstorage.com")
	t.Setenv("CRMIRROR_FORCE_PATH_STYLE", "true")
	t.Setenv("CRMIRROR_ACCESS_KEY_ID", "AKIA-test")
	t.Setenv("CRMIRROR_SECRET_ACCESS_KEY", "secret-test")
	t.Setenv("CRMIRROR_FIRST_CONGRESS", "110")
	t.Setenv("CRMIRROR_PARALLELISM", "10")
	t.Setenv("CRMIRROR_MIN_INTERVAL", "500ms")
	t.Setenv("CRMIRROR_RECORDS_PREFIX", "records/")
	t.Setenv("CONGRESS_API_KEYS", "key-a,key-b")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "my-mirror", cfg.Bucket)
	assert.Equal(t, "https://fsn1.your-objectstorage.com", cfg.Endpoint)
	assert.True(t, cfg.ForcePathStyle)
	assert.Equal(t, 110, cfg.FirstCongress)
	assert.Equal(t, 10, cfg.Parallelism)
	assert.Equal(t, 500*time.Millisecond, cfg.MinInterval)
	assert.Equal(t, "records/", cfg.RecordsPrefix)
	assert.Equal(t, []string{"key-a", "key-b"}, cfg.APIKeys)
	assert.True(t, cfg.HasCredentials())
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		wantc string
	}{
		{
			name:  "bucket too short",
			env:   map[string]string{"CRMIRROR_BUCKET": "ab"},
			wantc: "Bucket",
		},
		{
			name:  "bad endpoint",
			env:   map[string]string{"CRMIRROR_ENDPOINT": "not a url"},
			wantc: "Endpoint",
		},
		{
			name:  "parallelism not a number",
			env:   map[string]string{"CRMIRROR_PARALLELISM": "many"},
			wantc: "CRMIRROR_PARALLELISM",
		},
		{
			name:  "parallelism out of range",
			env:   map[string]string{"CRMIRROR_PARALLELISM": "100"},
			wantc: "Parallelism",
		},
		{
			name:  "bad interval",
			env:   map[string]string{"CRMIRROR_MIN_INTERVAL": "soon"},
			wantc: "CRMIRROR_MIN_INTERVAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantc)
		})
	}
}

func TestSplitKeys(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{raw: "", want: nil},
		{raw: "one", want: []string{"one"}},
		{raw: "one,two,three", want: []string{"one", "two", "three"}},
		{raw: "one\ntwo", want: []string{"one", "two"}},
		{raw: " one , two ,", want: []string{"one", "two"}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, splitKeys(tt.raw), "raw=%q", tt.raw)
	}
}

func TestStringRedactsSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("CRMIRROR_ACCESS_KEY_ID", "AKIA-visible-nowhere")
	t.Setenv("CRMIRROR_SECRET_ACCESS_KEY", "super-secret-value")
	t.Setenv("CONGRESS_API_KEYS", "congress-key-1")

	cfg, err := Load()
	require.NoError(t, err)

	s := cfg.String()
	assert.NotContains(t, s, "AKIA-visible-nowhere")
	assert.NotContains(t, s, "super-secret-value")
	assert.NotContains(t, s, "congress-key-1")
	assert.True(t, strings.Contains(s, "apiKeys=1"))
	assert.True(t, strings.Contains(s, "credentials=true"))
}
