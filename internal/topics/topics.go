// Package topics clusters the scored corpus into a fixed number of topics
// and tracks how their prevalence moves month to month. Documents are
// TF-IDF vectors clustered by spherical k-means; every stochastic step is
// driven by an explicit seed so identical inputs reproduce identical
// artifacts.
package topics

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/policypulse/policypulse/internal/cases"
	"github.com/policypulse/policypulse/internal/chart"
	"github.com/policypulse/policypulse/internal/domain"
	apperrors "github.com/policypulse/policypulse/internal/errors"
	"github.com/policypulse/policypulse/internal/report"
)

const (
	DefaultTopics   = 5
	DefaultTopTerms = 10
	DefaultSeed     = 42

	maxVocabulary = 2500
	minDocFreq    = 2
	maxIterations = 100
)

// Options tunes the clustering. Zero values fall back to the defaults.
type Options struct {
	Topics   int
	TopTerms int
	Seed     int64
}

func (o Options) withDefaults() Options {
	if o.Topics < 1 {
		o.Topics = DefaultTopics
	}
	if o.TopTerms < 1 {
		o.TopTerms = DefaultTopTerms
	}
	if o.Seed == 0 {
		o.Seed = DefaultSeed
	}
	return o
}

// Topic is one cluster with its highest-weight vocabulary terms.
type Topic struct {
	ID    int
	Terms []string
}

// KeywordRow is one row of the topic keyword artifact.
type KeywordRow struct {
	Topic    int    `csv:"topic" json:"topic"`
	TopTerms string `csv:"top_terms" json:"top_terms"`
}

// Result holds the fitted topics and their monthly prevalence.
type Result struct {
	Topics    []Topic
	Evolution []report.TopicEvolutionRow
}

type vocabulary struct {
	terms []string
	index map[string]int
}

// docVector is a document's l2-normalized TF-IDF weights, sparse over the
// vocabulary. terms is sorted ascending and parallel to weights.
type docVector struct {
	terms   []int
	weights []float64
}

// tokenize lowercases the text and splits it into runs of letters, digits
// and underscores, dropping stop words and single-character tokens.
func tokenize(text string) []string {
	var tokens []string
	var b strings.Builder
	var runes int

	flush := func() {
		if runes >= 2 {
			tok := b.String()
			if _, stop := englishStopWords[tok]; !stop {
				tokens = append(tokens, tok)
			}
		}
		b.Reset()
		runes = 0
	}

	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
			runes++
			continue
		}
		flush()
	}
	flush()
	return tokens
}

// buildVocabulary keeps terms that appear in at least minDocFreq documents,
// capped at maxVocabulary by total corpus count, and indexes them in
// alphabetical order.
func buildVocabulary(docs [][]string) vocabulary {
	docFreq := make(map[string]int)
	termCount := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{}, len(doc))
		for _, tok := range doc {
			termCount[tok]++
			if _, ok := seen[tok]; !ok {
				seen[tok] = struct{}{}
				docFreq[tok]++
			}
		}
	}

	kept := make([]string, 0, len(docFreq))
	for term, df := range docFreq {
		if df >= minDocFreq {
			kept = append(kept, term)
		}
	}
	if len(kept) > maxVocabulary {
		sort.Slice(kept, func(i, j int) bool {
			if termCount[kept[i]] != termCount[kept[j]] {
				return termCount[kept[i]] > termCount[kept[j]]
			}
			return kept[i] < kept[j]
		})
		kept = kept[:maxVocabulary]
	}
	sort.Strings(kept)

	index := make(map[string]int, len(kept))
	for i, term := range kept {
		index[term] = i
	}
	return vocabulary{terms: kept, index: index}
}

// vectorize turns token lists into l2-normalized TF-IDF vectors with the
// smoothed idf ln((1+n)/(1+df))+1.
func vectorize(docs [][]string, vocab vocabulary) []docVector {
	n := len(docs)
	counts := make([]map[int]int, n)
	docFreq := make([]int, len(vocab.terms))
	for i, doc := range docs {
		c := make(map[int]int)
		for _, tok := range doc {
			if idx, ok := vocab.index[tok]; ok {
				c[idx]++
			}
		}
		counts[i] = c
		for idx := range c {
			docFreq[idx]++
		}
	}

	idf := make([]float64, len(vocab.terms))
	for i, df := range docFreq {
		idf[i] = math.Log(float64(1+n)/float64(1+df)) + 1
	}

	vectors := make([]docVector, n)
	for i, c := range counts {
		terms := make([]int, 0, len(c))
		for idx := range c {
			terms = append(terms, idx)
		}
		sort.Ints(terms)

		weights := make([]float64, len(terms))
		var norm float64
		for j, idx := range terms {
			w := float64(c[idx]) * idf[idx]
			weights[j] = w
			norm += w * w
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for j := range weights {
				weights[j] /= norm
			}
		}
		vectors[i] = docVector{terms: terms, weights: weights}
	}
	return vectors
}

func dense(d docVector, size int) []float64 {
	v := make([]float64, size)
	for j, t := range d.terms {
		v[t] = d.weights[j]
	}
	return v
}

func dot(d docVector, centroid []float64) float64 {
	var s float64
	for j, t := range d.terms {
		s += d.weights[j] * centroid[t]
	}
	return s
}

// normalize scales v to unit length in place. It reports false when v is
// the zero vector.
func normalize(v []float64) bool {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return false
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
	return true
}

// cluster runs spherical k-means: cosine assignment against unit-length
// centroids, centroids reseeded from the worst-fitting document when a
// cluster goes empty. Initial centroids are k distinct non-empty documents
// drawn from the seeded generator.
func cluster(docs []docVector, vocabSize, k int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))

	var pool []int
	for i, d := range docs {
		if len(d.terms) > 0 {
			pool = append(pool, i)
		}
	}

	centroids := make([][]float64, k)
	for c, pick := range rng.Perm(len(pool))[:k] {
		centroids[c] = dense(docs[pool[pick]], vocabSize)
	}

	assign := make([]int, len(docs))
	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, d := range docs {
			best, bestSim := 0, math.Inf(-1)
			for c, centroid := range centroids {
				if sim := dot(d, centroid); sim > bestSim {
					best, bestSim = c, sim
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if iter > 0 && !changed {
			break
		}

		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, vocabSize)
		}
		for i, d := range docs {
			s := sums[assign[i]]
			for j, t := range d.terms {
				s[t] += d.weights[j]
			}
		}
		for c := range centroids {
			if !normalize(sums[c]) {
				sums[c] = dense(docs[worstFit(docs, centroids)], vocabSize)
				normalize(sums[c])
			}
			centroids[c] = sums[c]
		}
	}
	return centroids
}

// worstFit returns the non-empty document with the lowest similarity to its
// best centroid.
func worstFit(docs []docVector, centroids [][]float64) int {
	worst, worstSim := 0, math.Inf(1)
	for i, d := range docs {
		if len(d.terms) == 0 {
			continue
		}
		best := math.Inf(-1)
		for _, centroid := range centroids {
			if sim := dot(d, centroid); sim > best {
				best = sim
			}
		}
		if best < worstSim {
			worst, worstSim = i, best
		}
	}
	return worst
}

// topTerms lists the centroid's terms by descending weight, alphabetical on
// ties.
func topTerms(centroid []float64, terms []string, k int) []string {
	idx := make([]int, 0, len(terms))
	for i, w := range centroid {
		if w > 0 {
			idx = append(idx, i)
		}
	}
	sort.Slice(idx, func(a, b int) bool {
		if centroid[idx[a]] != centroid[idx[b]] {
			return centroid[idx[a]] > centroid[idx[b]]
		}
		return terms[idx[a]] < terms[idx[b]]
	})
	if len(idx) > k {
		idx = idx[:k]
	}

	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = terms[j]
	}
	return out
}

// softWeights distributes a document across all topics in proportion to its
// centroid similarities. Documents with no recognized terms spread
// uniformly.
func softWeights(d docVector, centroids [][]float64) []float64 {
	weights := make([]float64, len(centroids))
	var sum float64
	for c, centroid := range centroids {
		weights[c] = dot(d, centroid)
		sum += weights[c]
	}
	if sum == 0 {
		for c := range weights {
			weights[c] = 1 / float64(len(centroids))
		}
		return weights
	}
	for c := range weights {
		weights[c] /= sum
	}
	return weights
}

// evolve averages the per-document topic weights by calendar month.
func evolve(records []domain.SentimentRecord, docs []docVector, centroids [][]float64) []report.TopicEvolutionRow {
	k := len(centroids)
	type bucket struct {
		sums  []float64
		count int
	}
	buckets := make(map[domain.Month]*bucket)
	for i, r := range records {
		month := domain.NewMonth(r.Date.Time)
		b := buckets[month]
		if b == nil {
			b = &bucket{sums: make([]float64, k)}
			buckets[month] = b
		}
		for c, w := range softWeights(docs[i], centroids) {
			b.sums[c] += w
		}
		b.count++
	}

	rows := make([]report.TopicEvolutionRow, 0, len(buckets))
	for month, b := range buckets {
		weights := make([]float64, k)
		for c := range weights {
			weights[c] = b.sums[c] / float64(b.count)
		}
		rows = append(rows, report.TopicEvolutionRow{Month: month, Weights: weights})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Month.Before(rows[j].Month.Time) })
	return rows
}

// Model clusters the records into topics and computes the monthly topic
// prevalence. The same records, options and seed always produce the same
// result.
func Model(records []domain.SentimentRecord, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if len(records) == 0 {
		return nil, apperrors.InsufficientDataError("no documents to cluster").WithComponent("topics")
	}

	tokens := make([][]string, len(records))
	for i, r := range records {
		tokens[i] = tokenize(r.Text())
	}

	vocab := buildVocabulary(tokens)
	if len(vocab.terms) == 0 {
		return nil, apperrors.InsufficientDataError("vocabulary is empty after stop word and frequency filtering").
			WithComponent("topics")
	}

	docs := vectorize(tokens, vocab)
	nonEmpty := 0
	for _, d := range docs {
		if len(d.terms) > 0 {
			nonEmpty++
		}
	}
	if nonEmpty < opts.Topics {
		return nil, apperrors.InsufficientDataError("fewer usable documents than topics").
			WithComponent("topics").
			WithField("documents", nonEmpty).
			WithField("topics", opts.Topics)
	}

	centroids := cluster(docs, len(vocab.terms), opts.Topics, opts.Seed)

	topics := make([]Topic, opts.Topics)
	for c, centroid := range centroids {
		topics[c] = Topic{ID: c, Terms: topTerms(centroid, vocab.terms, opts.TopTerms)}
	}

	return &Result{Topics: topics, Evolution: evolve(records, docs, centroids)}, nil
}

// Run reads the scored corpus for a case, fits the topics, and writes the
// keyword table, the monthly evolution matrix, and the evolution chart.
func Run(paths cases.Paths, cityName string, opts Options) (*Result, error) {
	records, err := report.ReadCSV[domain.SentimentRecord](paths.Sentiment, report.ProducerSentiment)
	if err != nil {
		return nil, err
	}

	res, err := Model(records, opts)
	if err != nil {
		return nil, err
	}

	rows := make([]KeywordRow, len(res.Topics))
	for i, topic := range res.Topics {
		rows[i] = KeywordRow{Topic: topic.ID, TopTerms: strings.Join(topic.Terms, ", ")}
	}
	if err := report.WriteCSV(paths.TopicKeywords, rows); err != nil {
		return nil, err
	}
	if err := report.WriteTopicEvolution(paths.TopicEvolution, len(res.Topics), res.Evolution); err != nil {
		return nil, err
	}
	if err := writeEvolutionChart(paths.TopicEvolutionPlot, cityName, res); err != nil {
		return nil, err
	}
	return res, nil
}

func writeEvolutionChart(path, cityName string, res *Result) error {
	times := make([]time.Time, len(res.Evolution))
	for i, row := range res.Evolution {
		times[i] = row.Month.Time
	}

	series := make([]chart.Series, len(res.Topics))
	for c := range res.Topics {
		values := make([]float64, len(res.Evolution))
		for i, row := range res.Evolution {
			values[i] = row.Weights[c]
		}
		series[c] = chart.Series{Name: fmt.Sprintf("Topic %d", c), Times: times, Values: values}
	}

	opts := chart.Options{
		Title:  fmt.Sprintf("%s: Topic Evolution Over Time", cityName),
		YLabel: "average topic weight",
	}
	return chart.SaveTimeSeries(path, opts, series...)
}
