package acquire

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/policypulse/policypulse/internal/domain"
	apperrors "github.com/policypulse/policypulse/internal/errors"
)

const fetcherGDELTPayload = `{"articles":[{"url":"https://example.com/a","title":"Article","domain":"example.com","seendate":"20230401T120000Z"}]}`

func newFailingServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)
	return server
}

func newGDELTServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, fetcherGDELTPayload)
	}))
	t.Cleanup(server.Close)
	return server
}

// newTestFetcher wires a fetcher whose reddit and gdelt clients point at the
// given servers. One attempt, no throttling, so failures are immediate.
func newTestFetcher(redditURL, gdeltURL string) *Fetcher {
	client := NewClient(time.Second, 1, WithRateLimit(domain.SourceReddit, rate.Inf, 0))

	reddit := NewRedditClient(client, "ua", RedditCredentials{})
	reddit.baseURL = redditURL

	gdelt := NewGDELTClient(client)
	gdelt.baseURL = gdeltURL

	return &Fetcher{Reddit: reddit, GDELT: gdelt, RSS: NewRSSClient(client)}
}

func TestFetcherPosts_PrefersPrimary(t *testing.T) {
	var redditCalls atomic.Int32
	redditSrv := newFailingServer(t, &redditCalls)
	gdeltSrv := newGDELTServer(t)

	f := newTestFetcher(redditSrv.URL, gdeltSrv.URL)

	posts, source, err := f.Posts(context.Background(), PostRequest{
		Query: "q", Subreddit: "all", Limit: 5, Primary: domain.SourceGDELT,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceGDELT, source)
	require.Len(t, posts, 1)
	assert.Zero(t, redditCalls.Load(), "primary succeeded, reddit should never be tried")
}

func TestFetcherPosts_SubstitutesOnPrimaryFailure(t *testing.T) {
	redditSrv := newFailingServer(t, nil)
	gdeltSrv := newGDELTServer(t)

	f := newTestFetcher(redditSrv.URL, gdeltSrv.URL)

	posts, source, err := f.Posts(context.Background(), PostRequest{
		Query: "q", Subreddit: "all", Limit: 5, Primary: domain.SourceReddit,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceGDELT, source)
	require.Len(t, posts, 1)
	assert.Equal(t, "Article", posts[0].Title)
}

func TestFetcherPosts_FallsBackToCache(t *testing.T) {
	redditSrv := newFailingServer(t, nil)
	gdeltSrv := newFailingServer(t, nil)

	cache, err := OpenCache(filepath.Join(t.TempDir(), "posts.db"), clockwork.NewFakeClock())
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	require.NoError(t, cache.Put(ctx, domain.SourceReddit, "q", []domain.Post{
		{ID: "cached", CreatedUTC: testDateTime(t, "2023-01-01 10:00:00"), Title: "Cached post"},
	}))

	f := newTestFetcher(redditSrv.URL, gdeltSrv.URL)
	f.Cache = cache

	posts, source, err := f.Posts(ctx, PostRequest{
		Query: "q", Subreddit: "all", Limit: 5, Primary: domain.SourceReddit,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceReddit, source)
	require.Len(t, posts, 1)
	assert.Equal(t, "cached", posts[0].ID)
}

func TestFetcherPosts_StoresSuccessInCache(t *testing.T) {
	gdeltSrv := newGDELTServer(t)

	cache, err := OpenCache(filepath.Join(t.TempDir(), "posts.db"), clockwork.NewFakeClock())
	require.NoError(t, err)
	defer cache.Close()

	f := newTestFetcher("http://127.0.0.1:0", gdeltSrv.URL)
	f.Cache = cache

	ctx := context.Background()
	_, _, err = f.Posts(ctx, PostRequest{Query: "q", Limit: 5, Primary: domain.SourceGDELT})
	require.NoError(t, err)

	cached, err := cache.Get(ctx, domain.SourceGDELT, "q", 5)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "https://example.com/a", cached[0].ID)
}

func TestFetcherPosts_AllSourcesFail(t *testing.T) {
	redditSrv := newFailingServer(t, nil)
	gdeltSrv := newFailingServer(t, nil)

	f := newTestFetcher(redditSrv.URL, gdeltSrv.URL)

	_, _, err := f.Posts(context.Background(), PostRequest{
		Query: "q", Subreddit: "all", Limit: 5, Primary: domain.SourceReddit,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.TypeAcquisition, apperrors.TypeOf(err))
}

func TestFetcherOrder(t *testing.T) {
	f := &Fetcher{}

	tests := []struct {
		name     string
		req      PostRequest
		expected []domain.Source
	}{
		{
			name:     "reddit primary without feeds",
			req:      PostRequest{Primary: domain.SourceReddit},
			expected: []domain.Source{domain.SourceReddit, domain.SourceGDELT},
		},
		{
			name:     "gdelt primary with feeds",
			req:      PostRequest{Primary: domain.SourceGDELT, Feeds: []string{"https://example.com/feed"}},
			expected: []domain.Source{domain.SourceGDELT, domain.SourceReddit, domain.SourceRSS},
		},
		{
			name:     "rss primary",
			req:      PostRequest{Primary: domain.SourceRSS, Feeds: []string{"https://example.com/feed"}},
			expected: []domain.Source{domain.SourceRSS, domain.SourceGDELT, domain.SourceReddit},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, f.order(tt.req))
		})
	}
}
