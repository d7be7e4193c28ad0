package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitolarchive/crmirror/internal/manifest"
)

func testClient(t *testing.T, keys []string, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(keys,
		WithBaseURL(server.URL),
		WithMinInterval(0),
		WithBackoff(time.Millisecond, 5*time.Millisecond),
	)
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresKeys(t *testing.T) {
	_, err := NewClient(nil)
	assert.ErrorIs(t, err, ErrNoAPIKeys)
}

func TestKeyRotation(t *testing.T) {
	var mu sync.Mutex
	var seenKeys []string

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seenKeys = append(seenKeys, r.URL.Query().Get("api_key"))
		mu.Unlock()
		fmt.Fprint(w, `{}`)
	})

	client := testClient(t, []string{"key-a", "key-b"}, handler)

	for i := 0; i < 8; i++ {
		var out map[string]any
		require.NoError(t, client.getJSON(context.Background(), "/ping", nil, &out))
	}

	// The key advances every fourth request.
	assert.Equal(t, []string{
		"key-a", "key-a", "key-a", "key-a",
		"key-b", "key-b", "key-b", "key-b",
	}, seenKeys)
}

func TestRateLimitRotatesKey(t *testing.T) {
	var mu sync.Mutex
	var seenKeys []string

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("api_key")
		mu.Lock()
		seenKeys = append(seenKeys, key)
		mu.Unlock()
		if key == "key-a" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{}`)
	})

	client := testClient(t, []string{"key-a", "key-b"}, handler)

	var out map[string]any
	require.NoError(t, client.getJSON(context.Background(), "/ping", nil, &out))

	assert.Equal(t, []string{"key-a", "key-b"}, seenKeys)
}

func TestRateLimitBacksOffWithSingleKey(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{}`)
	})

	client := testClient(t, []string{"only-key"}, handler)

	var out map[string]any
	require.NoError(t, client.getJSON(context.Background(), "/ping", nil, &out))
	assert.Equal(t, 3, calls)
}

func TestServerErrorIsFatal(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	client := testClient(t, []string{"key"}, handler)

	var out map[string]any
	err := client.getJSON(context.Background(), "/ping", nil, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestRecentIssuesStopsAtCutoff(t *testing.T) {
	issues := []manifest.Issue{
		{Congress: 119, IssueDate: "2025-03-10T05:00:00Z", IssueNumber: "40", VolumeNumber: 171},
		{Congress: 119, IssueDate: "2025-03-07T05:00:00Z", IssueNumber: "39", VolumeNumber: 171},
		{Congress: 119, IssueDate: "2025-03-05T05:00:00Z", IssueNumber: "38", VolumeNumber: 171},
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "issueDate desc", r.URL.Query().Get("sort"))
		json.NewEncoder(w).Encode(issuesResponse{DailyCongressionalRecord: issues})
	})

	client := testClient(t, []string{"key"}, handler)

	since := time.Date(2025, time.March, 6, 0, 0, 0, 0, time.UTC)
	got, err := client.RecentIssues(context.Background(), since)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "40", got[0].IssueNumber)
	assert.Equal(t, "39", got[1].IssueNumber)
}

func TestRecentIssuesPaginates(t *testing.T) {
	var mu sync.Mutex
	pages := 0

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		pages++
		page := pages
		mu.Unlock()

		var resp issuesResponse
		if page == 1 {
			resp.DailyCongressionalRecord = []manifest.Issue{
				{IssueDate: "2025-03-10T05:00:00Z", IssueNumber: "40", VolumeNumber: 171},
			}
			resp.Pagination.Next = "more"
		} else {
			resp.DailyCongressionalRecord = []manifest.Issue{
				{IssueDate: "2025-03-07T05:00:00Z", IssueNumber: "39", VolumeNumber: 171},
			}
		}
		json.NewEncoder(w).Encode(resp)
	})

	client := testClient(t, []string{"key"}, handler)

	got, err := client.RecentIssues(context.Background(), time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 2, pages)
}

func TestSafeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "clean title", in: "Senate Proceedings", want: "Senate Proceedings"},
		{name: "punctuation replaced", in: "H.R. 1234: A Bill!", want: "H.R. 1234_ A Bill_"},
		{name: "unicode replaced", in: "Tribute to señor", want: "Tribute to se_or"},
		{name: "trimmed", in: "  padded  ", want: "padded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeFilename(tt.in))
		})
	}

	t.Run("capped at 100 characters", func(t *testing.T) {
		long := SafeFilename(strings.Repeat("a", 200))
		assert.Len(t, long, 100)
	})
}

// recordAPI serves a minimal congress.gov shape for updater tests.
type recordAPI struct {
	mu        sync.Mutex
	articles  map[string]articlesResponse
	texts     map[string]string
	downloads int
}

func (a *recordAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/daily-congressional-record/", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		resp, ok := a.articles[r.URL.Path]
		a.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/text/", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		body, ok := a.texts[r.URL.Path]
		a.downloads++
		a.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	})
	return mux
}

func TestUpdaterDownloadsMissingArticles(t *testing.T) {
	api := &recordAPI{
		articles: make(map[string]articlesResponse),
		texts:    map[string]string{"/text/1": "<html>proceedings</html>"},
	}

	server := httptest.NewServer(api.handler())
	t.Cleanup(server.Close)

	api.articles["/daily-congressional-record/171/1/articles"] = articlesResponse{
		Articles: []Article{{
			Name: "Senate",
			SectionArticles: []SectionArticle{{
				Title:     "Senate Proceedings",
				StartPage: "S1",
				EndPage:   "S5",
				Text: []TextItem{
					{Type: "PDF", URL: server.URL + "/pdf/1"},
					{Type: "Formatted Text", URL: server.URL + "/text/1"},
				},
			}},
		}},
	}

	client, err := NewClient([]string{"key"},
		WithBaseURL(server.URL),
		WithMinInterval(0),
	)
	require.NoError(t, err)

	fs := memfs.New()
	fixed := time.Date(2025, time.January, 10, 9, 0, 0, 0, time.UTC)
	updater := NewUpdater(client, fs, "/mirror", withClock(func() time.Time { return fixed }))

	issue := manifest.Issue{
		Congress: 119, IssueDate: "2025-01-03T05:00:00Z", IssueNumber: "1", VolumeNumber: 171,
	}

	result, err := updater.Run(context.Background(), []manifest.Issue{issue})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ArticlesDownloaded)
	assert.Equal(t, 1, result.IssuesChecked)

	wantFile := "/mirror/congress_119/2025-01-03_c119_v171_i1_Senate Proceedings.html"
	data, err := util.ReadFile(fs, wantFile)
	require.NoError(t, err)
	assert.Equal(t, "<html>proceedings</html>", string(data))

	metaData, err := util.ReadFile(fs, "/mirror/congress_119/2025-01-03_c119_v171_i1_Senate Proceedings.json")
	require.NoError(t, err)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(metaData, &meta))
	assert.Equal(t, "Senate Proceedings", meta["title"])
	assert.Equal(t, float64(171), meta["volume_number"])
	assert.Equal(t, "2025-01-03", meta["date_issued"])
	assert.Equal(t, "2025-01-10T09:00:00Z", meta["downloaded_at"])
}

func TestUpdaterSkipsExistingArticles(t *testing.T) {
	api := &recordAPI{
		articles: make(map[string]articlesResponse),
		texts:    map[string]string{"/text/1": "<html>proceedings</html>"},
	}

	server := httptest.NewServer(api.handler())
	t.Cleanup(server.Close)

	api.articles["/daily-congressional-record/171/1/articles"] = articlesResponse{
		Articles: []Article{{
			Name: "Senate",
			SectionArticles: []SectionArticle{{
				Title: "Senate Proceedings",
				Text:  []TextItem{{Type: "Formatted Text", URL: server.URL + "/text/1"}},
			}},
		}},
	}

	client, err := NewClient([]string{"key"}, WithBaseURL(server.URL), WithMinInterval(0))
	require.NoError(t, err)

	fs := memfs.New()
	updater := NewUpdater(client, fs, "/mirror")

	issue := manifest.Issue{
		Congress: 119, IssueDate: "2025-01-03T05:00:00Z", IssueNumber: "1", VolumeNumber: 171,
	}

	first, err := updater.Run(context.Background(), []manifest.Issue{issue})
	require.NoError(t, err)
	require.Equal(t, 1, first.ArticlesDownloaded)
	require.Equal(t, 1, api.downloads)

	second, err := updater.Run(context.Background(), []manifest.Issue{issue})
	require.NoError(t, err)
	assert.Equal(t, 0, second.ArticlesDownloaded)
	assert.Equal(t, 1, api.downloads, "complete issues must not be re-downloaded")
}

func TestUpdaterStopsAfterConsecutiveCompleteIssues(t *testing.T) {
	api := &recordAPI{
		articles: make(map[string]articlesResponse),
		texts:    make(map[string]string),
	}

	server := httptest.NewServer(api.handler())
	t.Cleanup(server.Close)

	var issues []manifest.Issue
	for i := 1; i <= 5; i++ {
		num := fmt.Sprintf("%d", i)
		issues = append(issues, manifest.Issue{
			Congress:     119,
			IssueDate:    fmt.Sprintf("2025-01-%02dT05:00:00Z", i+2),
			IssueNumber:  num,
			VolumeNumber: 171,
		})
		api.articles["/daily-congressional-record/171/"+num+"/articles"] = articlesResponse{
			Articles: []Article{{
				Name: "Senate",
				SectionArticles: []SectionArticle{{
					Title: "Proceedings " + num,
					Text:  []TextItem{{Type: "Formatted Text", URL: server.URL + "/text/" + num}},
				}},
			}},
		}
		api.texts["/text/"+num] = "<html>" + num + "</html>"
	}

	client, err := NewClient([]string{"key"}, WithBaseURL(server.URL), WithMinInterval(0))
	require.NoError(t, err)

	fs := memfs.New()
	updater := NewUpdater(client, fs, "/mirror", WithStopThreshold(2))

	// Prime the tree so every issue is already complete.
	_, err = updater.Run(context.Background(), issues)
	require.NoError(t, err)

	client2, err := NewClient([]string{"key"}, WithBaseURL(server.URL), WithMinInterval(0))
	require.NoError(t, err)
	updater2 := NewUpdater(client2, fs, "/mirror", WithStopThreshold(2))

	result, err := updater2.Run(context.Background(), issues)
	require.NoError(t, err)

	assert.True(t, result.StoppedEarly)
	assert.Equal(t, 2, result.IssuesChecked, "walk must stop at the threshold")
}

func TestUpdaterSurvivesBrokenIssue(t *testing.T) {
	api := &recordAPI{
		articles: make(map[string]articlesResponse),
		texts:    map[string]string{"/text/2": "<html>two</html>"},
	}

	server := httptest.NewServer(api.handler())
	t.Cleanup(server.Close)

	// Issue 1 has no article listing (404); issue 2 is fine.
	api.articles["/daily-congressional-record/171/2/articles"] = articlesResponse{
		Articles: []Article{{
			Name: "Senate",
			SectionArticles: []SectionArticle{{
				Title: "Two",
				Text:  []TextItem{{Type: "Formatted Text", URL: server.URL + "/text/2"}},
			}},
		}},
	}

	client, err := NewClient([]string{"key"}, WithBaseURL(server.URL), WithMinInterval(0))
	require.NoError(t, err)

	updater := NewUpdater(client, memfs.New(), "/mirror")

	issues := []manifest.Issue{
		{Congress: 119, IssueDate: "2025-01-06T05:00:00Z", IssueNumber: "1", VolumeNumber: 171},
		{Congress: 119, IssueDate: "2025-01-03T05:00:00Z", IssueNumber: "2", VolumeNumber: 171},
	}

	result, err := updater.Run(context.Background(), issues)
	require.NoError(t, err)

	assert.Equal(t, 2, result.IssuesChecked)
	assert.Equal(t, 1, result.ArticlesDownloaded)
}
