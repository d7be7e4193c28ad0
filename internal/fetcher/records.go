package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/capitolarchive/crmirror/internal/manifest"
)

// formattedTextType is the text variant the mirror downloads for each
// article.
const formattedTextType = "Formatted Text"

// issuesResponse is one page of the daily record listing.
type issuesResponse struct {
	DailyCongressionalRecord []manifest.Issue `json:"dailyCongressionalRecord"`
	Pagination               struct {
		Next string `json:"next"`
	} `json:"pagination"`
}

// articlesResponse is the article listing for one issue.
type articlesResponse struct {
	Articles []Article `json:"articles"`
}

// Article groups a section's articles within an issue.
type Article struct {
	Name            string           `json:"name"`
	SectionArticles []SectionArticle `json:"sectionArticles"`
}

// SectionArticle is a single article with its available text renditions.
type SectionArticle struct {
	Title     string     `json:"title"`
	StartPage string     `json:"startPage"`
	EndPage   string     `json:"endPage"`
	Text      []TextItem `json:"text"`
}

// TextItem is one downloadable rendition of an article.
type TextItem struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// FormattedTextURL returns the URL of the article's formatted-text
// rendition, or empty when the API offers none.
func (a SectionArticle) FormattedTextURL() string {
	for _, item := range a.Text {
		if item.Type == formattedTextType {
			return item.URL
		}
	}
	return ""
}

// RecentIssues lists daily record issues newest first, paginating until it
// reaches an issue older than since. Issues older than since are excluded.
func (c *Client) RecentIssues(ctx context.Context, since time.Time) ([]manifest.Issue, error) {
	var all []manifest.Issue
	offset := 0

	for {
		query := url.Values{
			"format": {"json"},
			"limit":  {strconv.Itoa(pageLimit)},
			"offset": {strconv.Itoa(offset)},
			"sort":   {"issueDate desc"},
		}

		var page issuesResponse
		if err := c.getJSON(ctx, "/daily-congressional-record", query, &page); err != nil {
			return nil, fmt.Errorf("failed to list issues: %w", err)
		}
		if len(page.DailyCongressionalRecord) == 0 {
			break
		}

		for _, issue := range page.DailyCongressionalRecord {
			date, err := issue.Date()
			if err != nil {
				c.logger.Warn("skipping issue with unparseable date",
					"volume", issue.VolumeNumber,
					"issue", issue.IssueNumber,
					"date", issue.IssueDate,
				)
				continue
			}
			// The listing is newest first, so the first issue at or before
			// the cutoff ends the walk.
			if date.Before(since) {
				return all, nil
			}
			all = append(all, issue)
		}

		if page.Pagination.Next == "" {
			break
		}
		offset += pageLimit

		c.logger.Debug("fetched issue page", "total_so_far", len(all))
	}

	return all, nil
}

// ArticlesForIssue lists the articles of one issue.
func (c *Client) ArticlesForIssue(ctx context.Context, volume int, issue string) ([]Article, error) {
	path := fmt.Sprintf("/daily-congressional-record/%d/%s/articles", volume, issue)
	query := url.Values{
		"format": {"json"},
		"limit":  {strconv.Itoa(pageLimit)},
	}

	var resp articlesResponse
	if err := c.getJSON(ctx, path, query, &resp); err != nil {
		return nil, fmt.Errorf("failed to list articles for volume %d issue %s: %w", volume, issue, err)
	}

	return resp.Articles, nil
}

// DownloadText fetches an article's formatted text.
func (c *Client) DownloadText(ctx context.Context, textURL string) ([]byte, error) {
	body, err := c.getRaw(ctx, textURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download article text: %w", err)
	}
	return body, nil
}
