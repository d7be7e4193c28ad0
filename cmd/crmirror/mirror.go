package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/capitolarchive/crmirror/internal/archive"
	"github.com/capitolarchive/crmirror/internal/cmdexec"
	"github.com/capitolarchive/crmirror/internal/config"
	"github.com/capitolarchive/crmirror/internal/congress"
	"github.com/capitolarchive/crmirror/internal/fetcher"
	"github.com/capitolarchive/crmirror/internal/manifest"
	"github.com/capitolarchive/crmirror/internal/pipeline"
	"github.com/capitolarchive/crmirror/internal/store"
	storeerrors "github.com/capitolarchive/crmirror/internal/store/errors"
	"github.com/capitolarchive/crmirror/internal/store/storetypes"
	"github.com/capitolarchive/crmirror/internal/summary"
)

// mirror bundles the configuration and clients one invocation works with,
// plus the manifest state the update step hands to the sync step.
type mirror struct {
	cfg     *config.Config
	store   *store.Client
	fs      billy.Filesystem
	logger  *slog.Logger
	dataDir string

	// issues is the merged manifest after the update step ran
	issues []manifest.Issue

	// manifestETag guards the manifest publish against concurrent writers
	manifestETag string
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newMirror() (*mirror, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := newLogger()
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", cfg.String())

	opts := []storetypes.Option{
		store.WithRegion(cfg.Region),
		store.WithConcurrency(cfg.Parallelism),
		store.WithLogger(logger),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, store.WithEndpoint(cfg.Endpoint))
	}
	if cfg.ForcePathStyle {
		opts = append(opts, store.WithForcePathStyle(true))
	}
	if cfg.HasCredentials() {
		opts = append(opts, store.WithStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey))
	}

	client, err := store.New(opts...)
	if err != nil {
		return nil, err
	}

	dataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data dir: %w", err)
	}

	return &mirror{
		cfg:     cfg,
		store:   client,
		fs:      osfs.New("/"),
		logger:  logger,
		dataDir: dataDir,
	}, nil
}

// runPipeline builds the shared state and executes the given steps under a
// signal-aware context.
func runPipeline(steps func(m *mirror) []pipeline.Step) error {
	m, err := newMirror()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := pipeline.NewRunner(pipeline.WithLogger(m.logger))
	_, err = runner.Execute(ctx, steps(m))
	return err
}

// updateStep refreshes the issue manifest from congress.gov and downloads
// missing article text into the local tree. When an update hook is
// configured it runs in place of the built-in fetcher.
func (m *mirror) updateStep() pipeline.Step {
	return pipeline.Step{
		Name: "update",
		Run: func(ctx context.Context) (pipeline.Outcome, error) {
			res, err := manifest.Fetch(ctx, m.store, m.cfg.Bucket, m.cfg.ManifestKey)
			if err != nil {
				return pipeline.Failed, err
			}
			m.issues = res.Issues
			m.manifestETag = res.ETag

			for _, n := range congress.Range(m.cfg.FirstCongress, time.Now()) {
				dir := filepath.Join(m.dataDir, fmt.Sprintf("congress_%d", n))
				if err := m.fs.MkdirAll(dir, 0o755); err != nil {
					return pipeline.Failed, fmt.Errorf("failed to create %s: %w", dir, err)
				}
			}

			if m.cfg.UpdateHook != "" {
				if err := m.runUpdateHook(ctx); err != nil {
					return pipeline.Failed, err
				}
			} else if err := m.runFetcher(ctx, res); err != nil {
				return pipeline.Failed, err
			}

			if res.DefaultApplied {
				return pipeline.DefaultApplied, nil
			}
			return pipeline.Ok, nil
		},
	}
}

func (m *mirror) runFetcher(ctx context.Context, res *manifest.FetchResult) error {
	client, err := fetcher.NewClient(m.cfg.APIKeys,
		fetcher.WithMinInterval(m.cfg.MinInterval),
		fetcher.WithLogger(m.logger),
	)
	if err != nil {
		return err
	}

	since, ok := manifest.NewestDate(res.Issues)
	if !ok {
		since = congressStart(m.cfg.FirstCongress)
	}

	recent, err := client.RecentIssues(ctx, since)
	if err != nil {
		return err
	}

	merged, added := manifest.Merge(res.Issues, recent)
	m.issues = merged
	m.logger.Info("issue manifest refreshed", "known", len(merged), "new", added)

	updater := fetcher.NewUpdater(client, m.fs, m.dataDir,
		fetcher.WithUpdaterLogger(m.logger))
	result, err := updater.Run(ctx, merged)
	if err != nil {
		return err
	}

	m.logger.Info("update finished",
		"issues_checked", result.IssuesChecked,
		"articles_downloaded", result.ArticlesDownloaded,
		"requests", result.Requests,
		"stopped_early", result.StoppedEarly,
	)
	return nil
}

func (m *mirror) runUpdateHook(ctx context.Context) error {
	fields := strings.Fields(m.cfg.UpdateHook)
	if len(fields) == 0 {
		return fmt.Errorf("update hook is blank")
	}

	// The hook's contract: read the manifest and the local tree, write new
	// record files and the updated manifest. The fetched manifest goes into
	// the data dir before the hook runs, and whatever the hook left there
	// becomes the manifest the sync step publishes.
	manifestPath := filepath.Join(m.dataDir, filepath.Base(m.cfg.ManifestKey))
	if err := manifest.WriteLocal(m.fs, manifestPath, m.issues); err != nil {
		return err
	}

	// The hook gets the data dir and the API keys through its environment;
	// the keys are never logged.
	env := map[string]string{
		"CRMIRROR_DATA_DIR":       m.dataDir,
		"CRMIRROR_MANIFEST":       manifestPath,
		"CRMIRROR_FIRST_CONGRESS": strconv.Itoa(m.cfg.FirstCongress),
	}
	if len(m.cfg.APIKeys) > 0 {
		env["CONGRESS_API_KEYS"] = strings.Join(m.cfg.APIKeys, ",")
	}

	hook := cmdexec.New(fields[0], fields[1:]...)
	result, err := hook.Run(ctx,
		cmdexec.WithWorkingDir(m.dataDir),
		cmdexec.WithEnv(env),
		cmdexec.WithRetry(1, 30*time.Second),
	)
	if result != nil && strings.TrimSpace(result.Stderr) != "" {
		m.logger.Warn("update hook stderr", "output", strings.TrimSpace(result.Stderr))
	}
	if err != nil {
		return err
	}

	updated, err := manifest.ReadLocal(m.fs, manifestPath)
	if err != nil {
		return fmt.Errorf("update hook left no readable manifest: %w", err)
	}
	added := len(updated) - len(m.issues)
	m.issues = updated

	m.logger.Info("update hook finished",
		"duration", result.Duration,
		"exit_code", result.ExitCode,
		"known", len(updated),
		"new", added,
	)
	return nil
}

// syncStep pushes the local tree to the bucket and publishes the merged
// manifest. The manifest write is conditional on the revision the update
// step read; losing that race is left for the next run to resolve.
func (m *mirror) syncStep() pipeline.Step {
	return pipeline.Step{
		Name: "sync",
		Run: func(ctx context.Context) (pipeline.Outcome, error) {
			result, err := m.store.Sync(ctx, m.dataDir, m.cfg.Bucket, m.cfg.RecordsPrefix,
				store.WithSyncParallelism(m.cfg.Parallelism),
				store.WithSyncDryRun(dryRun),
			)
			if err != nil {
				return pipeline.Failed, err
			}
			for _, e := range result.Errors {
				m.logger.Warn("file failed to sync",
					"path", e.LocalPath, "key", e.RemoteKey, "error", e.Message)
			}

			if dryRun || len(m.issues) == 0 {
				return pipeline.Ok, nil
			}
			err = manifest.Publish(ctx, m.store, m.cfg.Bucket, m.cfg.ManifestKey, m.issues, m.manifestETag)
			if err != nil {
				if storeerrors.IsPreconditionFailed(err) {
					m.logger.Warn("manifest changed concurrently, leaving it for the next run")
					return pipeline.Ok, nil
				}
				return pipeline.Failed, err
			}
			return pipeline.Ok, nil
		},
	}
}

// archiveStep builds the daily ZIP of the mirrored tree and publishes it with
// its stats document.
func (m *mirror) archiveStep() pipeline.Step {
	return pipeline.Step{
		Name: "archive",
		Run: func(ctx context.Context) (pipeline.Outcome, error) {
			staging, err := os.MkdirTemp("", "crmirror-archive-")
			if err != nil {
				return pipeline.Failed, fmt.Errorf("failed to create staging dir: %w", err)
			}
			defer os.RemoveAll(staging)

			archiver := archive.New(m.store, m.fs, archive.WithLogger(m.logger))
			result, err := archiver.Run(ctx, archive.Config{
				Bucket:       m.cfg.Bucket,
				SourcePrefix: m.cfg.RecordsPrefix,
				ExtraKeys:    m.extraKeys(),
				StagingDir:   staging,
				ArchiveKey:   m.cfg.ArchiveKey,
				StatsKey:     m.cfg.StatsKey,
				ArchiveURL:   m.archiveURL(),
			})
			if err != nil {
				return pipeline.Failed, err
			}

			m.logger.Info("archive built",
				"files", result.FilesArchived,
				"size_mb", result.Stats.FileSizeMB,
				"skipped_extras", len(result.SkippedExtras),
			)
			return pipeline.Ok, nil
		},
	}
}

// summaryStep rebuilds the bucket summary and commits it back to the repo.
// It is always best effort.
func (m *mirror) summaryStep() pipeline.Step {
	return pipeline.Step{
		Name:       "summary",
		BestEffort: true,
		Run: func(ctx context.Context) (pipeline.Outcome, error) {
			base := m.cfg.RepoPath
			if base == "" {
				base, _ = os.Getwd()
			}
			localPath := filepath.Join(base, filepath.Base(m.cfg.SummaryKey))

			summarizer := summary.New(m.store, m.fs, summary.WithLogger(m.logger))
			result, err := summarizer.Run(ctx, summary.Config{
				Bucket:        m.cfg.Bucket,
				RecordsPrefix: m.cfg.RecordsPrefix,
				SummaryKey:    m.cfg.SummaryKey,
				LocalPath:     localPath,
				RepoPath:      m.cfg.RepoPath,
			})
			if err != nil {
				return pipeline.Failed, err
			}
			if result.DefaultApplied {
				return pipeline.DefaultApplied, nil
			}

			m.logger.Info("summary updated",
				"objects", result.TotalObjects,
				"record_files", result.RecordFiles,
				"committed", result.Committed,
				"pushed", result.Pushed,
			)
			return pipeline.Ok, nil
		},
	}
}

// extraKeys lists the control objects bundled into the archive alongside the
// record tree.
func (m *mirror) extraKeys() []string {
	var keys []string
	for _, k := range []string{m.cfg.ManifestKey, m.cfg.SampleKey} {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// archiveURL is the public URL recorded in the stats document, derived from
// the endpoint when not configured explicitly.
func (m *mirror) archiveURL() string {
	if m.cfg.ArchiveURL != "" {
		return m.cfg.ArchiveURL
	}
	if m.cfg.Endpoint != "" {
		return strings.TrimSuffix(m.cfg.Endpoint, "/") + "/" + m.cfg.Bucket + "/" + m.cfg.ArchiveKey
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", m.cfg.Bucket, m.cfg.Region, m.cfg.ArchiveKey)
}

// congressStart returns January 3 of the first year of a congress, the
// earliest date its record can carry.
func congressStart(n int) time.Time {
	year := 1789 + 2*(n-1)
	return time.Date(year, time.January, 3, 0, 0, 0, 0, time.UTC)
}
