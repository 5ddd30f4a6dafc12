// Package sentiment scores acquired documents with the VADER lexicon model
// and classifies them into positive, neutral, and negative.
package sentiment

import (
	"sort"

	"github.com/jonreiter/govader"

	"github.com/policypulse/policypulse/internal/domain"
)

// Labeling thresholds on the compound score. Scores in (-0.05, 0.05) count
// as neutral.
const (
	positiveThreshold = 0.05
	negativeThreshold = -0.05
)

// Scores holds the four VADER outputs for one text.
type Scores struct {
	Compound float64
	Positive float64
	Neutral  float64
	Negative float64
}

// Analyzer wraps a VADER intensity analyzer. It is cheap to reuse and safe
// for sequential use; build one per pipeline run.
type Analyzer struct {
	vader *govader.SentimentIntensityAnalyzer
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{vader: govader.NewSentimentIntensityAnalyzer()}
}

// Score runs VADER over one text.
func (a *Analyzer) Score(text string) Scores {
	s := a.vader.PolarityScores(text)
	return Scores{
		Compound: s.Compound,
		Positive: s.Positive,
		Neutral:  s.Neutral,
		Negative: s.Negative,
	}
}

// Classify maps a compound score to its sentiment label.
func Classify(compound float64) domain.Label {
	switch {
	case compound >= positiveThreshold:
		return domain.LabelPositive
	case compound <= negativeThreshold:
		return domain.LabelNegative
	default:
		return domain.LabelNeutral
	}
}

// ScorePosts scores every post on its title and body and returns the
// records newest first. The query is stamped on each record so artifacts
// stay self-describing.
func (a *Analyzer) ScorePosts(posts []domain.Post, query string) []domain.SentimentRecord {
	records := make([]domain.SentimentRecord, 0, len(posts))
	for _, post := range posts {
		scores := a.Score(post.Text())
		records = append(records, domain.SentimentRecord{
			ID:          post.ID,
			CreatedUTC:  post.CreatedUTC,
			Title:       post.Title,
			Body:        post.Body,
			Score:       post.Score,
			NumComments: post.NumComments,
			Compound:    scores.Compound,
			Positive:    scores.Positive,
			Neutral:     scores.Neutral,
			Negative:    scores.Negative,
			Sentiment:   Classify(scores.Compound),
			Query:       query,
			Subreddit:   post.Subreddit,
			URL:         post.URL,
			Source:      post.Source,
			Date:        post.CreatedUTC.Date(),
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedUTC.After(records[j].CreatedUTC.Time)
	})
	return records
}
