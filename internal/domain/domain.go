package domain

import "strings"

// --- Sentiment labels ---

// Label is the categorical sentiment class derived from a compound score.
type Label string

const (
	LabelPositive Label = "positive"
	LabelNeutral  Label = "neutral"
	LabelNegative Label = "negative"
)

// --- Acquisition sources ---

// Source identifies where a document was fetched from.
type Source string

const (
	SourceReddit Source = "reddit"
	SourceGDELT  Source = "gdelt"
	SourceRSS    Source = "rss"

	// SourceFRED is a price source, not a sentiment source. It never appears
	// in sentiment records but shares the acquisition client with the rest.
	SourceFRED Source = "fred"
)

// --- Policy periods ---

// Period tags a monthly observation as before or after the policy date.
type Period string

const (
	PeriodPre  Period = "pre_policy"
	PeriodPost Period = "post_policy"
)

// --- Model types ---

// Post is an unscored document returned by an acquisition source.
type Post struct {
	ID          string
	CreatedUTC  DateTime
	Title       string
	Body        string
	Score       int
	NumComments int
	Subreddit   string
	URL         string
	Source      Source
}

// Text returns the text a post is scored on: title and body joined with a
// single space, trimmed.
func (p Post) Text() string {
	return strings.TrimSpace(p.Title + " " + p.Body)
}

// SentimentRecord is one scored document. The csv tags define the column
// contract of the per-city sentiment artifact.
type SentimentRecord struct {
	ID          string   `csv:"id" json:"id"`
	CreatedUTC  DateTime `csv:"created_utc" json:"created_utc"`
	Title       string   `csv:"title" json:"title"`
	Body        string   `csv:"body" json:"body"`
	Score       int      `csv:"score" json:"score"`
	NumComments int      `csv:"num_comments" json:"num_comments"`
	Compound    float64  `csv:"compound" json:"compound"`
	Positive    float64  `csv:"positive" json:"positive"`
	Neutral     float64  `csv:"neutral" json:"neutral"`
	Negative    float64  `csv:"negative" json:"negative"`
	Sentiment   Label    `csv:"sentiment" json:"sentiment"`
	Query       string   `csv:"query" json:"query"`
	Subreddit   string   `csv:"subreddit" json:"subreddit"`
	URL         string   `csv:"url" json:"url"`
	Source      Source   `csv:"source" json:"source"`
	Date        Date     `csv:"date" json:"date"`
}

// Text returns the text the record was scored on.
func (r SentimentRecord) Text() string {
	return strings.TrimSpace(r.Title + " " + r.Body)
}

// DailySentiment is the per-day aggregate of scored records.
type DailySentiment struct {
	Date        Date    `csv:"date" json:"date"`
	AvgCompound float64 `csv:"avg_compound" json:"avg_compound"`
	Posts       int     `csv:"posts" json:"posts"`
}

// PricePoint is one observation of a housing price index series.
type PricePoint struct {
	Date  Date
	Value float64
}

// MonthlyPoint is a month-level average of a price series, tagged with its
// position relative to the policy date.
type MonthlyPoint struct {
	Month  Month   `csv:"month" json:"month"`
	Value  float64 `csv:"monthly_avg_value" json:"monthly_avg_value"`
	Period Period  `csv:"period" json:"period"`
}

// SummaryMetric is one metric,value row of a summary artifact.
type SummaryMetric struct {
	Metric string  `csv:"metric" json:"metric"`
	Value  float64 `csv:"value" json:"value"`
}
