// Package acquire fetches upstream data: FRED price series, GDELT news
// articles, Reddit posts, and RSS feeds.
//
// All requests go through one shared Client that layers a retry policy, a
// per-source circuit breaker, and a per-source rate limit over the HTTP
// client. Source fetchers translate upstream payloads into domain.Post and
// domain.PricePoint values; the optional SQLite cache keeps the last good
// posts per (source, query) so a run can fall back when an upstream is down.
package acquire
