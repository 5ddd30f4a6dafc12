package acquire

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/policypulse/policypulse/internal/domain"
	apperrors "github.com/policypulse/policypulse/internal/errors"
)

const (
	redditBaseURL  = "https://www.reddit.com"
	redditOAuthURL = "https://oauth.reddit.com"

	// Reddit caps listing pages at 100 items.
	redditPageSize = 100
)

// RedditCredentials hold an installed-app client ID and secret. Both empty
// means unauthenticated access via the public JSON endpoints.
type RedditCredentials struct {
	ClientID     string
	ClientSecret string
}

// RedditClient searches Reddit submissions. With credentials it uses the
// OAuth API (client_credentials grant); without, the public search.json
// endpoints. Reddit rejects requests without a descriptive User-Agent, so
// one is set on every call.
type RedditClient struct {
	client    *Client
	userAgent string

	baseURL  string
	oauthURL string

	creds RedditCredentials

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewRedditClient(client *Client, userAgent string, creds RedditCredentials) *RedditClient {
	return &RedditClient{
		client:    client,
		userAgent: userAgent,
		baseURL:   redditBaseURL,
		oauthURL:  redditOAuthURL,
		creds:     creds,
	}
}

func (r *RedditClient) authenticated() bool {
	return r.creds.ClientID != "" && r.creds.ClientSecret != ""
}

// Search returns up to limit submissions matching query in the given
// subreddit, newest first, following the listing cursor across pages.
func (r *RedditClient) Search(ctx context.Context, query, subreddit string, limit int) ([]domain.Post, error) {
	posts := make([]domain.Post, 0, limit)
	after := ""

	for len(posts) < limit {
		page, next, err := r.searchPage(ctx, query, subreddit, min(redditPageSize, limit-len(posts)), after)
		if err != nil {
			return nil, err
		}
		posts = append(posts, page...)
		if next == "" || len(page) == 0 {
			break
		}
		after = next
	}
	return posts, nil
}

func (r *RedditClient) searchPage(ctx context.Context, query, subreddit string, limit int, after string) ([]domain.Post, string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("restrict_sr", "1")
	params.Set("sort", "new")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("raw_json", "1")
	if after != "" {
		params.Set("after", after)
	}

	base := r.baseURL
	header := http.Header{}
	header.Set("User-Agent", r.userAgent)

	if r.authenticated() {
		token, err := r.accessToken(ctx)
		if err != nil {
			return nil, "", err
		}
		base = r.oauthURL
		header.Set("Authorization", "Bearer "+token)
	}

	requestURL := fmt.Sprintf("%s/r/%s/search.json?%s", base, url.PathEscape(subreddit), params.Encode())

	body, err := r.client.Get(ctx, domain.SourceReddit, requestURL, header)
	if err != nil {
		return nil, "", apperrors.AcquisitionError("failed to search Reddit", err).
			WithField("subreddit", subreddit).
			WithField("query", query)
	}

	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, "", apperrors.AcquisitionError("Reddit returned an unexpected payload", err).
			WithField("subreddit", subreddit)
	}

	posts := make([]domain.Post, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		posts = append(posts, child.Data.toPost())
	}
	return posts, listing.Data.After, nil
}

// accessToken returns a cached app-only token, requesting a fresh one a
// minute before the old one expires.
func (r *RedditClient) accessToken(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.client.Clock().Now()
	if r.token != "" && now.Before(r.tokenExpiry) {
		return r.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	auth := base64.StdEncoding.EncodeToString([]byte(r.creds.ClientID + ":" + r.creds.ClientSecret))
	header := http.Header{}
	header.Set("User-Agent", r.userAgent)
	header.Set("Authorization", "Basic "+auth)

	body, err := r.client.PostForm(ctx, domain.SourceReddit, r.baseURL+"/api/v1/access_token", form, header)
	if err != nil {
		return "", apperrors.AcquisitionError("failed to authenticate with Reddit", err)
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &token); err != nil {
		return "", apperrors.AcquisitionError("Reddit token response is malformed", err)
	}
	if token.AccessToken == "" {
		return "", apperrors.AcquisitionError("Reddit token response is missing access_token", nil)
	}

	r.token = token.AccessToken
	r.tokenExpiry = now.Add(time.Duration(token.ExpiresIn)*time.Second - time.Minute)
	return r.token, nil
}

type redditListing struct {
	Data struct {
		After    string        `json:"after"`
		Children []redditChild `json:"children"`
	} `json:"data"`
}

type redditChild struct {
	Data redditPost `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	SelfText    string  `json:"selftext"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	Subreddit   string  `json:"subreddit"`
	Permalink   string  `json:"permalink"`
	URL         string  `json:"url"`
}

func (p redditPost) toPost() domain.Post {
	link := p.URL
	if p.Permalink != "" {
		link = redditBaseURL + p.Permalink
	}
	return domain.Post{
		ID:          p.ID,
		CreatedUTC:  domain.NewDateTime(time.Unix(int64(p.CreatedUTC), 0).UTC()),
		Title:       p.Title,
		Body:        p.SelfText,
		Score:       p.Score,
		NumComments: p.NumComments,
		Subreddit:   p.Subreddit,
		URL:         link,
		Source:      domain.SourceReddit,
	}
}
