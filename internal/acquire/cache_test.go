package acquire

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policypulse/policypulse/internal/domain"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := OpenCache(filepath.Join(t.TempDir(), "posts.db"), clockwork.NewFakeClock())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func testDateTime(t *testing.T, s string) domain.DateTime {
	t.Helper()
	var v domain.DateTime
	require.NoError(t, v.UnmarshalCSV(s))
	return v
}

func TestCache_PutGetRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	posts := []domain.Post{
		{ID: "old", CreatedUTC: testDateTime(t, "2023-01-01 10:00:00"), Title: "Old post", Score: 1, Subreddit: "all", URL: "https://r/old"},
		{ID: "new", CreatedUTC: testDateTime(t, "2023-02-01 10:00:00"), Title: "New post", Body: "body", Score: 2, NumComments: 3, Subreddit: "all", URL: "https://r/new"},
	}
	require.NoError(t, cache.Put(ctx, domain.SourceReddit, "housing", posts))

	got, err := cache.Get(ctx, domain.SourceReddit, "housing", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Newest first, all fields intact, source stamped back on.
	assert.Equal(t, "new", got[0].ID)
	assert.Equal(t, "New post", got[0].Title)
	assert.Equal(t, "body", got[0].Body)
	assert.Equal(t, 2, got[0].Score)
	assert.Equal(t, 3, got[0].NumComments)
	assert.Equal(t, "2023-02-01 10:00:00", got[0].CreatedUTC.String())
	assert.Equal(t, domain.SourceReddit, got[0].Source)
	assert.Equal(t, "old", got[1].ID)
}

func TestCache_MissesReturnEmpty(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, domain.SourceReddit, "housing", []domain.Post{
		{ID: "a", CreatedUTC: testDateTime(t, "2023-01-01 10:00:00"), Title: "A"},
	}))

	got, err := cache.Get(ctx, domain.SourceGDELT, "housing", 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = cache.Get(ctx, domain.SourceReddit, "other query", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCache_UpsertRefreshesCounts(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	created := testDateTime(t, "2023-01-01 10:00:00")
	require.NoError(t, cache.Put(ctx, domain.SourceReddit, "q", []domain.Post{
		{ID: "a", CreatedUTC: created, Title: "A", Score: 1, NumComments: 0},
	}))
	require.NoError(t, cache.Put(ctx, domain.SourceReddit, "q", []domain.Post{
		{ID: "a", CreatedUTC: created, Title: "A", Score: 5, NumComments: 7},
	}))

	got, err := cache.Get(ctx, domain.SourceReddit, "q", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 5, got[0].Score)
	assert.Equal(t, 7, got[0].NumComments)
}

func TestCache_LimitsResults(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, domain.SourceGDELT, "q", []domain.Post{
		{ID: "a", CreatedUTC: testDateTime(t, "2023-01-01 00:00:00"), Title: "A"},
		{ID: "b", CreatedUTC: testDateTime(t, "2023-01-02 00:00:00"), Title: "B"},
		{ID: "c", CreatedUTC: testDateTime(t, "2023-01-03 00:00:00"), Title: "C"},
	}))

	got, err := cache.Get(ctx, domain.SourceGDELT, "q", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}
