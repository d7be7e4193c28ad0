package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/capitolarchive/crmirror/internal/manifest"
)

const (
	// defaultStopThreshold is how many consecutive fully-downloaded issues
	// end an update run early
	defaultStopThreshold = 3

	// maxFilenameLength caps the article-title part of a filename
	maxFilenameLength = 100

	// filenameSafeChars are the only characters allowed in generated
	// filenames; everything else becomes an underscore
	filenameSafeChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_. "
)

// Updater downloads new article text into the local mirror tree.
// The walk runs newest first and stops once it hits a run of issues that are
// already fully downloaded, so a routine update only touches the recent end
// of the record.
type Updater struct {
	client        *Client
	fs            billy.Filesystem
	outputDir     string
	stopThreshold int
	logger        *slog.Logger
	now           func() time.Time
}

// UpdaterOption configures an Updater.
type UpdaterOption func(*Updater)

// WithStopThreshold overrides how many consecutive complete issues stop a
// run.
func WithStopThreshold(n int) UpdaterOption {
	return func(u *Updater) {
		if n > 0 {
			u.stopThreshold = n
		}
	}
}

// WithUpdaterLogger sets the structured logger.
func WithUpdaterLogger(logger *slog.Logger) UpdaterOption {
	return func(u *Updater) {
		u.logger = logger
	}
}

// withClock overrides the time source in tests.
func withClock(now func() time.Time) UpdaterOption {
	return func(u *Updater) {
		u.now = now
	}
}

// NewUpdater creates an updater writing into outputDir on the given
// filesystem.
func NewUpdater(client *Client, fs billy.Filesystem, outputDir string, opts ...UpdaterOption) *Updater {
	u := &Updater{
		client:        client,
		fs:            fs,
		outputDir:     outputDir,
		stopThreshold: defaultStopThreshold,
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// UpdateResult summarizes an update run.
type UpdateResult struct {
	// IssuesChecked is how many issues the walk examined
	IssuesChecked int

	// ArticlesDownloaded is how many new article files were written
	ArticlesDownloaded int

	// StoppedEarly reports that the consecutive-complete threshold ended
	// the walk before the issue list was exhausted
	StoppedEarly bool

	// Requests is the total number of API requests issued
	Requests int
}

// articleMetadata is the JSON sidecar written next to each downloaded
// article.
type articleMetadata struct {
	Title        string `json:"title"`
	Congress     int    `json:"congress"`
	VolumeNumber int    `json:"volume_number"`
	IssueNumber  string `json:"issue_number"`
	DateIssued   string `json:"date_issued"`
	ArticleName  string `json:"article_name"`
	StartPage    string `json:"start_page,omitempty"`
	EndPage      string `json:"end_page,omitempty"`
	SourceURL    string `json:"source_url"`
	DownloadedAt string `json:"downloaded_at"`
}

// SafeFilename reduces arbitrary text to a filesystem-safe name: characters
// outside a conservative set become underscores and the result is capped and
// trimmed.
func SafeFilename(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if strings.ContainsRune(filenameSafeChars, r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	name := b.String()
	if len(name) > maxFilenameLength {
		name = name[:maxFilenameLength]
	}
	return strings.TrimSpace(name)
}

// articlePath builds the mirror-tree path for one article:
// <outputDir>/congress_<N>/<date>_c<congress>_v<volume>_i<issue>_<title>.html
func (u *Updater) articlePath(issue manifest.Issue, title string) string {
	name := fmt.Sprintf("%s_c%d_v%d_i%s_%s.html",
		issue.DateString(), issue.Congress, issue.VolumeNumber, issue.IssueNumber, SafeFilename(title))
	return path.Join(u.outputDir, fmt.Sprintf("congress_%d", issue.Congress), name)
}

// Run walks the issues newest first, downloading whatever is missing. The
// walk ends when the issue list is exhausted or after finding stopThreshold
// consecutive issues that were already complete.
//
// A failure on one issue is logged and skipped; the rest of the walk
// continues.
func (u *Updater) Run(ctx context.Context, issues []manifest.Issue) (*UpdateResult, error) {
	sorted := append([]manifest.Issue(nil), issues...)
	manifest.SortNewestFirst(sorted)

	result := &UpdateResult{}
	consecutiveComplete := 0

	for _, issue := range sorted {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		downloaded, complete, err := u.processIssue(ctx, issue)
		result.IssuesChecked++
		result.ArticlesDownloaded += downloaded

		if err != nil {
			u.logger.Warn("failed to process issue",
				"volume", issue.VolumeNumber,
				"issue", issue.IssueNumber,
				"error", err,
			)
			consecutiveComplete = 0
			continue
		}

		if complete && downloaded == 0 {
			consecutiveComplete++
			if consecutiveComplete >= u.stopThreshold {
				u.logger.Info("reached consecutive complete issues, stopping walk",
					"threshold", u.stopThreshold)
				result.StoppedEarly = true
				break
			}
		} else {
			consecutiveComplete = 0
		}
	}

	result.Requests = u.client.RequestCount()
	return result, nil
}

// processIssue downloads the missing articles of one issue. It returns the
// number of newly written articles and whether the issue is now complete.
func (u *Updater) processIssue(ctx context.Context, issue manifest.Issue) (int, bool, error) {
	articles, err := u.client.ArticlesForIssue(ctx, issue.VolumeNumber, issue.IssueNumber)
	if err != nil {
		return 0, false, err
	}

	congressDir := path.Join(u.outputDir, fmt.Sprintf("congress_%d", issue.Congress))
	if err := u.fs.MkdirAll(congressDir, 0o755); err != nil {
		return 0, false, fmt.Errorf("failed to create %s: %w", congressDir, err)
	}

	total := 0
	existing := 0
	downloaded := 0

	for _, article := range articles {
		for i, section := range article.SectionArticles {
			textURL := section.FormattedTextURL()
			if textURL == "" {
				continue
			}
			total++

			title := section.Title
			if title == "" {
				title = fmt.Sprintf("Section_%d", i)
			}
			filename := u.articlePath(issue, title)

			if _, err := u.fs.Stat(filename); err == nil {
				existing++
				continue
			} else if !os.IsNotExist(err) {
				return downloaded, false, fmt.Errorf("failed to stat %s: %w", filename, err)
			}

			body, err := u.client.DownloadText(ctx, textURL)
			if err != nil {
				u.logger.Warn("failed to download article",
					"title", title,
					"error", err,
				)
				continue
			}

			if err := util.WriteFile(u.fs, filename, body, 0o644); err != nil {
				return downloaded, false, fmt.Errorf("failed to write %s: %w", filename, err)
			}
			if err := u.writeMetadata(filename, issue, article, section, textURL); err != nil {
				return downloaded, false, err
			}

			downloaded++
			existing++

			u.logger.Debug("downloaded article",
				"volume", issue.VolumeNumber,
				"issue", issue.IssueNumber,
				"title", title,
			)
		}
	}

	complete := total > 0 && existing == total
	return downloaded, complete, nil
}

// writeMetadata writes the JSON sidecar describing a downloaded article.
func (u *Updater) writeMetadata(
	articleFile string,
	issue manifest.Issue,
	article Article,
	section SectionArticle,
	sourceURL string,
) error {
	meta := articleMetadata{
		Title:        section.Title,
		Congress:     issue.Congress,
		VolumeNumber: issue.VolumeNumber,
		IssueNumber:  issue.IssueNumber,
		DateIssued:   issue.DateString(),
		ArticleName:  article.Name,
		StartPage:    section.StartPage,
		EndPage:      section.EndPage,
		SourceURL:    sourceURL,
		DownloadedAt: u.now().Format(time.RFC3339),
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	metaFile := strings.TrimSuffix(articleFile, ".html") + ".json"
	if err := util.WriteFile(u.fs, metaFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", metaFile, err)
	}

	return nil
}
