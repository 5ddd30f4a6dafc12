package acquire

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policypulse/policypulse/internal/domain"
	apperrors "github.com/policypulse/policypulse/internal/errors"
)

func TestGDELTSearch_MapsArticles(t *testing.T) {
	payload := `{"articles":[
		{"url":"https://example.com/a","title":"Housing measure passes","domain":"example.com","seendate":"20230401T120000Z"},
		{"title":"No URL article","domain":"news.org","seendate":"bogus"}
	]}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "(Measure ULA)", q.Get("query"))
		assert.Equal(t, "ArtList", q.Get("mode"))
		assert.Equal(t, "50", q.Get("maxrecords"))
		assert.Equal(t, "DateDesc", q.Get("sort"))
		assert.Equal(t, "json", q.Get("format"))
		_, _ = w.Write([]byte(payload))
	}))
	defer server.Close()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	g := NewGDELTClient(NewClient(time.Second, 1, WithClock(clock)))
	g.baseURL = server.URL

	posts, err := g.Search(context.Background(), "(Measure ULA)", 50)
	require.NoError(t, err)
	require.Len(t, posts, 2)

	assert.Equal(t, "https://example.com/a", posts[0].ID)
	assert.Equal(t, "Housing measure passes", posts[0].Title)
	assert.Equal(t, "example.com", posts[0].Body)
	assert.Equal(t, "2023-04-01 12:00:00", posts[0].CreatedUTC.String())
	assert.Equal(t, "gdelt_news", posts[0].Subreddit)
	assert.Equal(t, domain.SourceGDELT, posts[0].Source)
	assert.Zero(t, posts[0].Score)
	assert.Zero(t, posts[0].NumComments)

	// Missing URL falls back to a positional ID, unparseable seendate to now.
	assert.Equal(t, "gdelt_1", posts[1].ID)
	assert.Equal(t, "2024-01-02 03:04:05", posts[1].CreatedUTC.String())
}

func TestGDELTSearch_MalformedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>rate limited</html>"))
	}))
	defer server.Close()

	g := NewGDELTClient(NewClient(time.Second, 1))
	g.baseURL = server.URL

	_, err := g.Search(context.Background(), "q", 10)
	require.Error(t, err)
	assert.Equal(t, apperrors.TypeAcquisition, apperrors.TypeOf(err))
}

func TestGDELTSearch_EmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"articles":[]}`))
	}))
	defer server.Close()

	g := NewGDELTClient(NewClient(time.Second, 1))
	g.baseURL = server.URL

	posts, err := g.Search(context.Background(), "q", 10)
	require.NoError(t, err)
	assert.Empty(t, posts)
}
