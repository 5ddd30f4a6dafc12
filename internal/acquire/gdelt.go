package acquire

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/policypulse/policypulse/internal/domain"
	apperrors "github.com/policypulse/policypulse/internal/errors"
)

const (
	gdeltBaseURL    = "https://api.gdeltproject.org/api/v2/doc/doc"
	gdeltTimeLayout = "20060102T150405Z"
)

// GDELTClient searches the GDELT DOC 2.0 article list API. GDELT needs no
// credentials, which makes it the substitute of choice when Reddit is
// unavailable.
type GDELTClient struct {
	client  *Client
	baseURL string
}

func NewGDELTClient(client *Client) *GDELTClient {
	return &GDELTClient{client: client, baseURL: gdeltBaseURL}
}

type gdeltResponse struct {
	Articles []gdeltArticle `json:"articles"`
}

type gdeltArticle struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Domain   string `json:"domain"`
	SeenDate string `json:"seendate"`
}

// Search returns up to limit recent articles matching query, newest first.
// GDELT only exposes article metadata, so the post body carries the source
// domain and engagement counts stay zero.
func (g *GDELTClient) Search(ctx context.Context, query string, limit int) ([]domain.Post, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("mode", "ArtList")
	params.Set("maxrecords", strconv.Itoa(limit))
	params.Set("sort", "DateDesc")
	params.Set("format", "json")

	body, err := g.client.Get(ctx, domain.SourceGDELT, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, apperrors.AcquisitionError("failed to query GDELT", err).
			WithField("query", query)
	}

	var resp gdeltResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperrors.AcquisitionError("GDELT returned an unexpected payload", err).
			WithField("query", query)
	}

	posts := make([]domain.Post, 0, len(resp.Articles))
	for i, article := range resp.Articles {
		id := article.URL
		if id == "" {
			id = fmt.Sprintf("gdelt_%d", i)
		}
		posts = append(posts, domain.Post{
			ID:         id,
			CreatedUTC: g.seenDate(article.SeenDate),
			Title:      article.Title,
			Body:       article.Domain,
			Subreddit:  "gdelt_news",
			URL:        article.URL,
			Source:     domain.SourceGDELT,
		})
	}
	return posts, nil
}

// seenDate parses GDELT's compact timestamp, falling back to the current
// time for articles without one.
func (g *GDELTClient) seenDate(raw string) domain.DateTime {
	t, err := time.Parse(gdeltTimeLayout, raw)
	if err != nil {
		return domain.NewDateTime(g.client.Clock().Now().UTC())
	}
	return domain.NewDateTime(t)
}
