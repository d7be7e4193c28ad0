// Package config loads the mirror configuration from the environment.
//
// Every setting has a CRMIRROR_* environment variable; the congress.gov API
// keys come from CONGRESS_API_KEYS and the object-store credentials from
// CRMIRROR_ACCESS_KEY_ID / CRMIRROR_SECRET_ACCESS_KEY. Credentials live only
// in the returned struct for the lifetime of the process and are excluded
// from String formatting.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Defaults for everything the environment leaves unset.
const (
	DefaultBucket        = "congressional-records"
	DefaultDataDir       = "congressional_records"
	DefaultFirstCongress = 115
	DefaultParallelism   = 5
	DefaultMinInterval   = time.Second

	DefaultManifestKey = "all_issues.json"
	DefaultArchiveKey  = "congressional_records_latest.zip"
	DefaultStatsKey    = "download_stats.json"
	DefaultSummaryKey  = "update_summary.txt"
	DefaultSampleKey   = "sample_small.csv"
)

// Config holds everything a mirror run needs.
type Config struct {
	// Bucket is the destination bucket name
	Bucket string `validate:"required,min=3,max=63"`

	// Region is the bucket's region
	Region string `validate:"required"`

	// Endpoint overrides the object-store endpoint, for S3-compatible
	// providers
	Endpoint string `validate:"omitempty,url"`

	// ForcePathStyle switches to path-style addressing, needed by most
	// non-AWS providers
	ForcePathStyle bool

	// AccessKeyID and SecretAccessKey are the object-store credentials.
	// They are read from the environment and never written anywhere.
	AccessKeyID     string
	SecretAccessKey string

	// APIKeys are the congress.gov API keys, rotated across requests
	APIKeys []string

	// DataDir is the local directory holding the mirrored record tree
	DataDir string `validate:"required"`

	// RecordsPrefix is the bucket key prefix for the record tree. Empty by
	// default: records live at the bucket root as congress_<n>/... keys.
	RecordsPrefix string

	// FirstCongress is the oldest congress the mirror covers
	FirstCongress int `validate:"min=1"`

	// Parallelism bounds concurrent uploads during sync
	Parallelism int `validate:"min=1,max=32"`

	// MinInterval is the pause enforced between congress.gov requests
	MinInterval time.Duration `validate:"min=0"`

	// UpdateHook is an external program run instead of the built-in
	// fetcher when set
	UpdateHook string

	// RepoPath is the repository the summary is committed into; empty
	// disables the commit
	RepoPath string

	// ArchiveURL is the public URL recorded in the stats object
	ArchiveURL string `validate:"omitempty,url"`

	// Object keys for the control files
	ManifestKey string `validate:"required"`
	ArchiveKey  string `validate:"required"`
	StatsKey    string `validate:"required"`
	SummaryKey  string `validate:"required"`
	SampleKey   string
}

// Load reads the configuration from the environment, applies defaults, and
// validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Bucket:          envOr("CRMIRROR_BUCKET", DefaultBucket),
		Region:          envOr("CRMIRROR_REGION", "us-east-1"),
		Endpoint:        os.Getenv("CRMIRROR_ENDPOINT"),
		AccessKeyID:     os.Getenv("CRMIRROR_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("CRMIRROR_SECRET_ACCESS_KEY"),
		APIKeys:         splitKeys(os.Getenv("CONGRESS_API_KEYS")),
		DataDir:         envOr("CRMIRROR_DATA_DIR", DefaultDataDir),
		RecordsPrefix:   os.Getenv("CRMIRROR_RECORDS_PREFIX"),
		FirstCongress:   DefaultFirstCongress,
		Parallelism:     DefaultParallelism,
		MinInterval:     DefaultMinInterval,
		UpdateHook:      os.Getenv("CRMIRROR_UPDATE_HOOK"),
		RepoPath:        os.Getenv("CRMIRROR_REPO_PATH"),
		ArchiveURL:      os.Getenv("CRMIRROR_ARCHIVE_URL"),
		ManifestKey:     envOr("CRMIRROR_MANIFEST_KEY", DefaultManifestKey),
		ArchiveKey:      envOr("CRMIRROR_ARCHIVE_KEY", DefaultArchiveKey),
		StatsKey:        envOr("CRMIRROR_STATS_KEY", DefaultStatsKey),
		SummaryKey:      envOr("CRMIRROR_SUMMARY_KEY", DefaultSummaryKey),
		SampleKey:       envOr("CRMIRROR_SAMPLE_KEY", DefaultSampleKey),
	}

	if v := os.Getenv("CRMIRROR_FORCE_PATH_STYLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CRMIRROR_FORCE_PATH_STYLE %q: %w", v, err)
		}
		cfg.ForcePathStyle = b
	}
	if v := os.Getenv("CRMIRROR_FIRST_CONGRESS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CRMIRROR_FIRST_CONGRESS %q: %w", v, err)
		}
		cfg.FirstCongress = n
	}
	if v := os.Getenv("CRMIRROR_PARALLELISM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CRMIRROR_PARALLELISM %q: %w", v, err)
		}
		cfg.Parallelism = n
	}
	if v := os.Getenv("CRMIRROR_MIN_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CRMIRROR_MIN_INTERVAL %q: %w", v, err)
		}
		cfg.MinInterval = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			e := errs[0]
			return fmt.Errorf("invalid configuration: field %s failed %q", e.Field(), e.Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// HasCredentials reports whether explicit object-store credentials were
// supplied. When false the SDK's default chain is used.
func (c *Config) HasCredentials() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// String renders the configuration for logs with credentials and API keys
// redacted to counts.
func (c *Config) String() string {
	return fmt.Sprintf(
		"bucket=%s region=%s dataDir=%s recordsPrefix=%s firstCongress=%d parallelism=%d apiKeys=%d credentials=%t",
		c.Bucket, c.Region, c.DataDir, c.RecordsPrefix,
		c.FirstCongress, c.Parallelism, len(c.APIKeys), c.HasCredentials(),
	)
}

// splitKeys parses CONGRESS_API_KEYS, accepting comma or newline separators.
func splitKeys(raw string) []string {
	if raw == "" {
		return nil
	}
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n'
	})
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		if k := strings.TrimSpace(f); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
