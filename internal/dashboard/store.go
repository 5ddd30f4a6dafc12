package dashboard

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/policypulse/policypulse/internal/cases"
	"github.com/policypulse/policypulse/internal/causal"
	"github.com/policypulse/policypulse/internal/compare"
	"github.com/policypulse/policypulse/internal/domain"
	"github.com/policypulse/policypulse/internal/metrics"
	"github.com/policypulse/policypulse/internal/predict"
	"github.com/policypulse/policypulse/internal/report"
	"github.com/policypulse/policypulse/internal/topics"
)

// ReportStore reads report artifacts from disk for the dashboard, with a
// TTL cache in front of the parse. The dashboard never writes artifacts;
// the cache only bounds how often a hot endpoint re-reads the same CSV
// while a pipeline run may be rewriting it.
type ReportStore struct {
	dataDir    string
	reportsDir string
	ttl        time.Duration
	clock      clockwork.Clock

	mu      sync.RWMutex
	entries map[string]*storeEntry
	group   singleflight.Group
}

type storeEntry struct {
	value     any
	expiresAt time.Time
}

// NewReportStore creates a store over the given artifact roots. A nil clock
// falls back to the wall clock.
func NewReportStore(dataDir, reportsDir string, ttl time.Duration, clock clockwork.Clock) *ReportStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ReportStore{
		dataDir:    dataDir,
		reportsDir: reportsDir,
		ttl:        ttl,
		clock:      clock,
		entries:    make(map[string]*storeEntry),
	}
}

func (s *ReportStore) paths(cityID string) cases.Paths {
	return cases.NewPaths(s.dataDir, s.reportsDir, cityID)
}

// load returns the cached value under key or builds it once. Concurrent
// loads of the same key are collapsed into a single build.
func (s *ReportStore) load(key string, build func() (any, error)) (any, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if ok && s.clock.Now().Before(entry.expiresAt) {
		metrics.ReportCacheHits.Inc()
		return entry.value, nil
	}
	metrics.ReportCacheMisses.Inc()

	value, err, _ := s.group.Do(key, func() (any, error) {
		value, err := build()
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.entries[key] = &storeEntry{value: value, expiresAt: s.clock.Now().Add(s.ttl)}
		size := len(s.entries)
		s.mu.Unlock()

		metrics.ReportCacheSize.Set(float64(size))
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func loadAs[T any](s *ReportStore, key string, build func() (any, error)) (T, error) {
	value, err := s.load(key, build)
	if err != nil {
		var zero T
		return zero, err
	}
	return value.(T), nil
}

// PolicySummary returns the pre/post policy metrics for a city.
func (s *ReportStore) PolicySummary(cityID string) ([]domain.SummaryMetric, error) {
	return loadAs[[]domain.SummaryMetric](s, cityID+":summary", func() (any, error) {
		return report.ReadCSV[domain.SummaryMetric](s.paths(cityID).PolicySummary, report.ProducerPolicy)
	})
}

// MonthlySeries returns the resampled price series for a city.
func (s *ReportStore) MonthlySeries(cityID string) ([]domain.MonthlyPoint, error) {
	return loadAs[[]domain.MonthlyPoint](s, cityID+":monthly", func() (any, error) {
		return report.ReadCSV[domain.MonthlyPoint](s.paths(cityID).MonthlySeries, report.ProducerPolicy)
	})
}

// DailySentiment returns the per-day sentiment aggregate for a city.
func (s *ReportStore) DailySentiment(cityID string) ([]domain.DailySentiment, error) {
	return loadAs[[]domain.DailySentiment](s, cityID+":sentiment", func() (any, error) {
		return report.ReadCSV[domain.DailySentiment](s.paths(cityID).SentimentDaily, report.ProducerAggregate)
	})
}

// CausalReport bundles the counterfactual summary and its monthly effects.
type CausalReport struct {
	Summary []domain.SummaryMetric `json:"summary"`
	Effects []causal.Row           `json:"effects"`
}

// Causal returns the impact estimate artifacts for a city.
func (s *ReportStore) Causal(cityID string) (CausalReport, error) {
	return loadAs[CausalReport](s, cityID+":causal", func() (any, error) {
		paths := s.paths(cityID)
		summary, err := report.ReadCSV[domain.SummaryMetric](paths.CausalSummary, report.ProducerCausal)
		if err != nil {
			return nil, err
		}
		effects, err := report.ReadCSV[causal.Row](paths.CausalEffects, report.ProducerCausal)
		if err != nil {
			return nil, err
		}
		return CausalReport{Summary: summary, Effects: effects}, nil
	})
}

// LagReport bundles the lag analysis artifacts.
type LagReport struct {
	Summary []domain.SummaryMetric  `json:"summary"`
	Metrics []predict.LagMetric     `json:"metrics"`
	Granger []predict.GrangerResult `json:"granger"`
}

// Lags returns the lagged prediction artifacts for a city.
func (s *ReportStore) Lags(cityID string) (LagReport, error) {
	return loadAs[LagReport](s, cityID+":lags", func() (any, error) {
		paths := s.paths(cityID)
		summary, err := report.ReadCSV[domain.SummaryMetric](paths.LagSummary, report.ProducerPredict)
		if err != nil {
			return nil, err
		}
		lagMetrics, err := report.ReadCSV[predict.LagMetric](paths.LagMetrics, report.ProducerPredict)
		if err != nil {
			return nil, err
		}
		granger, err := report.ReadCSV[predict.GrangerResult](paths.GrangerResults, report.ProducerPredict)
		if err != nil {
			return nil, err
		}
		return LagReport{Summary: summary, Metrics: lagMetrics, Granger: granger}, nil
	})
}

// TopicReport bundles the topic keywords with the monthly evolution matrix.
type TopicReport struct {
	Topics    int                        `json:"topics"`
	Keywords  []topics.KeywordRow        `json:"keywords"`
	Evolution []report.TopicEvolutionRow `json:"evolution"`
}

// Topics returns the topic model artifacts for a city.
func (s *ReportStore) Topics(cityID string) (TopicReport, error) {
	return loadAs[TopicReport](s, cityID+":topics", func() (any, error) {
		paths := s.paths(cityID)
		keywords, err := report.ReadCSV[topics.KeywordRow](paths.TopicKeywords, report.ProducerTopics)
		if err != nil {
			return nil, err
		}
		count, evolution, err := report.ReadTopicEvolution(paths.TopicEvolution, report.ProducerTopics)
		if err != nil {
			return nil, err
		}
		return TopicReport{Topics: count, Keywords: keywords, Evolution: evolution}, nil
	})
}

// Comparison returns the cross-city comparison table.
func (s *ReportStore) Comparison() ([]compare.Row, error) {
	return loadAs[[]compare.Row](s, "comparison", func() (any, error) {
		out := cases.NewComparisonPaths(s.reportsDir)
		return report.ReadCSV[compare.Row](out.Table, report.ProducerCompare)
	})
}

// Manifest returns the latest run manifest for a city.
func (s *ReportStore) Manifest(cityID string) (report.Manifest, error) {
	return loadAs[report.Manifest](s, cityID+":manifest", func() (any, error) {
		return report.ReadManifest(s.paths(cityID).Manifest)
	})
}

// Clear removes all entries from the cache.
func (s *ReportStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*storeEntry)
}

// Size returns the current number of entries, including expired ones.
func (s *ReportStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// EvictExpired removes all expired entries and returns the count evicted.
func (s *ReportStore) EvictExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	evicted := 0
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
			evicted++
		}
	}
	return evicted
}

// StartEvictionTimer starts a background goroutine that periodically evicts
// expired entries. The returned stop function tears the goroutine down.
func (s *ReportStore) StartEvictionTimer(interval time.Duration) func() {
	ticker := s.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.Chan():
				evicted := s.EvictExpired()
				if evicted > 0 {
					slog.Debug("Evicted expired report cache entries",
						"count", evicted,
						"remaining", s.Size(),
					)
					metrics.ReportCacheEvictions.Add(float64(evicted))
				}
				metrics.ReportCacheSize.Set(float64(s.Size()))

			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}
