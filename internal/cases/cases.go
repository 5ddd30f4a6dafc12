// Package cases defines policy case studies: which city, which policy date,
// which price series, and which search query drive a pipeline run.
//
// Two cases ship builtin (la, nyc). Additional cases load from JSON files so
// a new city does not require a code change.
package cases

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/policypulse/policypulse/internal/domain"
	apperrors "github.com/policypulse/policypulse/internal/errors"
)

const (
	DefaultSentimentLimit  = 250
	DefaultSentimentSource = domain.SourceGDELT
	DefaultSubreddit       = "all"
)

// Definition describes one policy case study.
type Definition struct {
	CityID     string      `json:"city_id"`
	CityName   string      `json:"city_name"`
	PolicyName string      `json:"policy_name"`
	PolicyDate domain.Date `json:"policy_date"`

	FredSeriesID string `json:"fred_series_id"`
	// ValueColumn is the price column in the raw CSV. Defaults to FredSeriesID.
	ValueColumn string `json:"value_column,omitempty"`

	SentimentQuery  string        `json:"sentiment_query"`
	SentimentSource domain.Source `json:"sentiment_source,omitempty"`
	SentimentLimit  int           `json:"sentiment_limit,omitempty"`
	Subreddit       string        `json:"subreddit,omitempty"`
	RSSFeeds        []string      `json:"rss_feeds,omitempty"`
}

var builtin = map[string]Definition{
	"la": {
		CityID:          "la",
		CityName:        "Los Angeles",
		PolicyName:      "Measure ULA",
		PolicyDate:      mustDate("2023-04-01"),
		FredSeriesID:    "ATNHPIUS31080Q",
		SentimentQuery:  "(Measure ULA OR Los Angeles housing tax OR LA housing affordability)",
		SentimentSource: DefaultSentimentSource,
		SentimentLimit:  DefaultSentimentLimit,
		Subreddit:       DefaultSubreddit,
	},
	"nyc": {
		CityID:          "nyc",
		CityName:        "New York City",
		PolicyName:      "HSTPA",
		PolicyDate:      mustDate("2019-06-14"),
		FredSeriesID:    "ATNHPIUS35620Q",
		SentimentQuery:  "(HSTPA OR New York rent reform OR NYC rent stabilization)",
		SentimentSource: DefaultSentimentSource,
		SentimentLimit:  DefaultSentimentLimit,
		Subreddit:       DefaultSubreddit,
	},
}

// Builtin returns the named builtin case, or domain.ErrCaseNotFound.
func Builtin(cityID string) (Definition, error) {
	def, ok := builtin[cityID]
	if !ok {
		return Definition{}, fmt.Errorf("builtin case %q: %w", cityID, domain.ErrCaseNotFound)
	}
	return def, nil
}

// BuiltinIDs lists the builtin case IDs in a stable order.
func BuiltinIDs() []string {
	return []string{"la", "nyc"}
}

// Load reads and validates a case definition from a JSON file.
func Load(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, apperrors.ConfigError("failed to read case file").
			WithField("path", path).WithContext("cause", err.Error())
	}

	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return Definition{}, apperrors.ConfigError("failed to parse case file").
			WithField("path", path).WithContext("cause", err.Error())
	}

	def.applyDefaults()
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

var cityIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Validate checks that a definition is complete enough to run.
func (d Definition) Validate() error {
	if d.CityID == "" {
		return apperrors.ConfigError("city_id is required")
	}
	if !cityIDPattern.MatchString(d.CityID) {
		return apperrors.ConfigError("city_id must be lowercase alphanumeric").
			WithField("city_id", d.CityID)
	}
	if d.CityName == "" {
		return apperrors.ConfigError("city_name is required").WithField("city_id", d.CityID)
	}
	if d.PolicyDate.IsZero() {
		return apperrors.ConfigError("policy_date is required").WithField("city_id", d.CityID)
	}
	if d.FredSeriesID == "" {
		return apperrors.ConfigError("fred_series_id is required").WithField("city_id", d.CityID)
	}
	if d.SentimentQuery == "" {
		return apperrors.ConfigError("sentiment_query is required").WithField("city_id", d.CityID)
	}
	switch d.SentimentSource {
	case domain.SourceReddit, domain.SourceGDELT, domain.SourceRSS:
	default:
		return apperrors.ConfigError("invalid sentiment_source").
			WithField("city_id", d.CityID).
			WithField("sentiment_source", string(d.SentimentSource))
	}
	if d.SentimentSource == domain.SourceRSS && len(d.RSSFeeds) == 0 {
		return apperrors.ConfigError("rss_feeds is required when sentiment_source is rss").
			WithField("city_id", d.CityID)
	}
	if d.SentimentLimit < 1 {
		return apperrors.ConfigError("sentiment_limit must be at least 1").
			WithField("city_id", d.CityID).
			WithField("sentiment_limit", d.SentimentLimit)
	}
	return nil
}

// PriceColumn returns the price column name in the raw CSV.
func (d Definition) PriceColumn() string {
	if d.ValueColumn != "" {
		return d.ValueColumn
	}
	return d.FredSeriesID
}

func (d *Definition) applyDefaults() {
	if d.SentimentSource == "" {
		d.SentimentSource = DefaultSentimentSource
	}
	if d.SentimentLimit == 0 {
		d.SentimentLimit = DefaultSentimentLimit
	}
	if d.Subreddit == "" {
		d.Subreddit = DefaultSubreddit
	}
}

func mustDate(s string) domain.Date {
	d, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}
