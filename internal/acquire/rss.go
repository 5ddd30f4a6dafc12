package acquire

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/policypulse/policypulse/internal/domain"
	apperrors "github.com/policypulse/policypulse/internal/errors"
)

// RSSClient flattens configured feeds into posts. Feeds are fetched through
// the shared client so they get the same retry and breaker treatment as the
// APIs.
type RSSClient struct {
	client *Client
	parser *gofeed.Parser
}

func NewRSSClient(client *Client) *RSSClient {
	return &RSSClient{client: client, parser: gofeed.NewParser()}
}

// Fetch downloads every feed and returns up to limit items across all of
// them, newest first. A single broken feed is logged and skipped; Fetch only
// fails when every feed fails.
func (r *RSSClient) Fetch(ctx context.Context, feedURLs []string, limit int) ([]domain.Post, error) {
	var posts []domain.Post
	var lastErr error

	for _, feedURL := range feedURLs {
		items, err := r.fetchFeed(ctx, feedURL)
		if err != nil {
			lastErr = err
			slog.Warn("Skipping broken RSS feed", "feed", feedURL, "error", err)
			continue
		}
		posts = append(posts, items...)
	}

	if len(posts) == 0 && lastErr != nil {
		return nil, apperrors.AcquisitionError("all RSS feeds failed", lastErr)
	}

	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreatedUTC.After(posts[j].CreatedUTC.Time)
	})
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (r *RSSClient) fetchFeed(ctx context.Context, feedURL string) ([]domain.Post, error) {
	body, err := r.client.Get(ctx, domain.SourceRSS, feedURL, nil)
	if err != nil {
		return nil, err
	}

	feed, err := r.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	posts := make([]domain.Post, 0, len(feed.Items))
	for _, item := range feed.Items {
		posts = append(posts, domain.Post{
			ID:         feedItemID(feedURL, item),
			CreatedUTC: domain.NewDateTime(r.itemTime(item)),
			Title:      item.Title,
			Body:       item.Description,
			Subreddit:  feed.Title,
			URL:        item.Link,
			Source:     domain.SourceRSS,
		})
	}
	return posts, nil
}

// feedItemID derives a stable ID from the feed URL and the item's GUID,
// falling back to link and title for feeds that omit one.
func feedItemID(feedURL string, item *gofeed.Item) string {
	key := item.GUID
	if key == "" {
		key = item.Link
	}
	if key == "" {
		key = item.Title
	}
	sum := sha256.Sum256([]byte(feedURL + "|" + key))
	return hex.EncodeToString(sum[:8])
}

func (r *RSSClient) itemTime(item *gofeed.Item) time.Time {
	switch {
	case item.PublishedParsed != nil:
		return item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		return item.UpdatedParsed.UTC()
	default:
		return r.client.Clock().Now().UTC()
	}
}
