package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/policypulse/policypulse/internal/domain"
	apperrors "github.com/policypulse/policypulse/internal/errors"
	"github.com/policypulse/policypulse/internal/metrics"
)

// PostRequest describes one sentiment acquisition.
type PostRequest struct {
	Query     string
	Subreddit string
	Limit     int
	Feeds     []string
	Primary   domain.Source
}

// Fetcher routes post acquisition to the right source client. When the
// primary source fails it substitutes the alternates with a warning, and
// when no live source is reachable it serves the last cached posts. A nil
// Cache disables the cache path.
type Fetcher struct {
	Reddit *RedditClient
	GDELT  *GDELTClient
	RSS    *RSSClient
	Cache  *Cache
}

// Posts fetches documents for req. The returned source is the one that
// actually served the posts, which may differ from req.Primary after a
// substitution.
func (f *Fetcher) Posts(ctx context.Context, req PostRequest) ([]domain.Post, domain.Source, error) {
	sources := f.order(req)
	var firstErr error

	for _, source := range sources {
		posts, err := f.fetch(ctx, source, req)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			slog.Warn("Acquisition source failed", "source", source, "query", req.Query, "error", err)
			continue
		}
		if source != req.Primary {
			slog.Warn("Substituted acquisition source", "primary", req.Primary, "served_by", source)
		}
		f.store(ctx, source, req, posts)
		return posts, source, nil
	}

	for _, source := range sources {
		if posts, ok := f.cached(ctx, source, req); ok {
			metrics.AcquisitionCacheFallbacks.WithLabelValues(string(source)).Inc()
			slog.Warn("Serving posts from local cache", "source", source, "query", req.Query, "posts", len(posts))
			return posts, source, nil
		}
	}

	return nil, "", apperrors.AcquisitionError("all acquisition sources failed", firstErr).
		WithField("query", req.Query)
}

// order lists the sources to try: the primary, then its substitutes. RSS
// only joins the list when the case actually configures feeds.
func (f *Fetcher) order(req PostRequest) []domain.Source {
	order := []domain.Source{req.Primary}
	add := func(s domain.Source) {
		if !slices.Contains(order, s) {
			order = append(order, s)
		}
	}

	switch req.Primary {
	case domain.SourceReddit:
		add(domain.SourceGDELT)
	case domain.SourceGDELT:
		add(domain.SourceReddit)
	case domain.SourceRSS:
		add(domain.SourceGDELT)
		add(domain.SourceReddit)
	}
	if len(req.Feeds) > 0 {
		add(domain.SourceRSS)
	}
	return order
}

func (f *Fetcher) fetch(ctx context.Context, source domain.Source, req PostRequest) ([]domain.Post, error) {
	switch source {
	case domain.SourceReddit:
		if f.Reddit == nil {
			return nil, errors.New("reddit client not configured")
		}
		return f.Reddit.Search(ctx, req.Query, req.Subreddit, req.Limit)
	case domain.SourceGDELT:
		if f.GDELT == nil {
			return nil, errors.New("gdelt client not configured")
		}
		return f.GDELT.Search(ctx, req.Query, req.Limit)
	case domain.SourceRSS:
		if f.RSS == nil {
			return nil, errors.New("rss client not configured")
		}
		if len(req.Feeds) == 0 {
			return nil, errors.New("no rss feeds configured")
		}
		return f.RSS.Fetch(ctx, req.Feeds, req.Limit)
	default:
		return nil, fmt.Errorf("unknown source %q", source)
	}
}

func (f *Fetcher) cached(ctx context.Context, source domain.Source, req PostRequest) ([]domain.Post, bool) {
	if f.Cache == nil {
		return nil, false
	}
	posts, err := f.Cache.Get(ctx, source, req.Query, req.Limit)
	if err != nil {
		slog.Warn("Post cache read failed", "source", source, "error", err)
		return nil, false
	}
	return posts, len(posts) > 0
}

func (f *Fetcher) store(ctx context.Context, source domain.Source, req PostRequest, posts []domain.Post) {
	if f.Cache == nil || len(posts) == 0 {
		return
	}
	if err := f.Cache.Put(ctx, source, req.Query, posts); err != nil {
		slog.Warn("Post cache write failed", "source", source, "error", err)
	}
}
