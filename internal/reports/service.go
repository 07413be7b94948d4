package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mtr002/linkboard/internal/airbridge"
	"github.com/mtr002/linkboard/internal/interfaces"
	"github.com/mtr002/linkboard/internal/logger"
	"github.com/mtr002/linkboard/internal/metrics"
)

const (
	dateLayout      = "2006-01-02"
	defaultRangeDay = 7
	clicksMetric    = "clicks"
)

var (
	ErrInvalidRange  = errors.New("invalid date range")
	ErrReportPending = errors.New("report is still being generated")
	ErrReportFailed  = errors.New("report generation failed")
)

// ReportFetcher runs an actuals report to a terminal state.
type ReportFetcher interface {
	FetchReport(ctx context.Context, q airbridge.ReportQuery) (*airbridge.ReportResponse, error)
}

type Service struct {
	links   interfaces.LinkStore
	cache   interfaces.ReportCacheStore
	fetcher ReportFetcher
	ttl     time.Duration
	now     func() time.Time
}

func NewService(store interfaces.Store, fetcher ReportFetcher, ttl time.Duration) *Service {
	return &Service{
		links:   store,
		cache:   store,
		fetcher: fetcher,
		ttl:     ttl,
		now:     time.Now,
	}
}

type Row struct {
	LinkID     string `json:"link_id"`
	MartCode   string `json:"mart_code"`
	MartName   string `json:"mart_name"`
	AdCreative string `json:"ad_creative"`
	ShortURL   string `json:"short_url"`
	Clicks     int64  `json:"clicks"`
}

type Summary struct {
	From        string    `json:"from"`
	To          string    `json:"to"`
	Rows        []Row     `json:"rows"`
	TotalClicks int64     `json:"total_clicks"`
	Cached      bool      `json:"cached"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// clickCount is the cached form of one report row.
type clickCount struct {
	Campaign   string `json:"campaign"`
	AdCreative string `json:"ad_creative"`
	Clicks     int64  `json:"clicks"`
}

// ResolveRange validates the dates. Empty values default to the last seven
// days ending today.
func (s *Service) ResolveRange(from, to string) (string, string, error) {
	end := s.now()
	if to != "" {
		t, err := time.Parse(dateLayout, to)
		if err != nil {
			return "", "", fmt.Errorf("%w: to: %v", ErrInvalidRange, err)
		}
		end = t
	}
	start := end.AddDate(0, 0, -(defaultRangeDay - 1))
	if from != "" {
		t, err := time.Parse(dateLayout, from)
		if err != nil {
			return "", "", fmt.Errorf("%w: from: %v", ErrInvalidRange, err)
		}
		start = t
	}
	if start.Format(dateLayout) > end.Format(dateLayout) {
		return "", "", fmt.Errorf("%w: from is after to", ErrInvalidRange)
	}
	return start.Format(dateLayout), end.Format(dateLayout), nil
}

func cacheKey(from, to string) string {
	return "clicks:" + from + ":" + to
}

// Summary returns clicks per stored link for the date range.
func (s *Service) Summary(ctx context.Context, from, to string) (*Summary, error) {
	from, to, err := s.ResolveRange(from, to)
	if err != nil {
		return nil, err
	}

	counts, fetchedAt, cached, err := s.clickCounts(ctx, from, to)
	if err != nil {
		return nil, err
	}

	links, err := s.links.ListLinks(ctx, "")
	if err != nil {
		return nil, err
	}

	byPair := make(map[string]int64, len(counts))
	for _, c := range counts {
		byPair[c.Campaign+"\x00"+c.AdCreative] += c.Clicks
	}

	summary := &Summary{
		From:      from,
		To:        to,
		Rows:      make([]Row, 0, len(links)),
		Cached:    cached,
		FetchedAt: fetchedAt,
	}
	for _, l := range links {
		clicks := byPair[l.MartCode+"\x00"+l.AdCreative]
		summary.Rows = append(summary.Rows, Row{
			LinkID:     l.ID,
			MartCode:   l.MartCode,
			MartName:   l.MartName,
			AdCreative: l.AdCreative,
			ShortURL:   l.ShortURL,
			Clicks:     clicks,
		})
		summary.TotalClicks += clicks
	}
	sort.SliceStable(summary.Rows, func(i, j int) bool {
		return summary.Rows[i].Clicks > summary.Rows[j].Clicks
	})
	return summary, nil
}

func (s *Service) clickCounts(ctx context.Context, from, to string) ([]clickCount, time.Time, bool, error) {
	key := cacheKey(from, to)

	entry, err := s.cache.GetReportCache(ctx, key)
	switch {
	case err == nil && !entry.Expired(s.now(), s.ttl):
		var counts []clickCount
		if err := json.Unmarshal(entry.Payload, &counts); err == nil {
			metrics.ReportCacheHitsTotal.Inc()
			return counts, entry.FetchedAt, true, nil
		}
		logger.Logger.Warn().Str("key", key).Msg("Discarding unreadable report cache entry")
	case err != nil && !errors.Is(err, interfaces.ErrNotFound):
		return nil, time.Time{}, false, err
	}
	metrics.ReportCacheMissesTotal.Inc()

	resp, err := s.fetcher.FetchReport(ctx, airbridge.ReportQuery{
		From:     from,
		To:       to,
		Metrics:  []string{clicksMetric},
		GroupBys: []string{"campaign", "ad_creative"},
	})
	if err != nil {
		return nil, time.Time{}, false, err
	}

	switch resp.Task.Status {
	case airbridge.StatusPending:
		return nil, time.Time{}, false, ErrReportPending
	case airbridge.StatusFailure:
		return nil, time.Time{}, false, ErrReportFailed
	}

	counts := make([]clickCount, 0, len(resp.Rows()))
	for _, row := range resp.Rows() {
		if len(row.GroupBys) < 2 {
			continue
		}
		counts = append(counts, clickCount{
			Campaign:   row.GroupBys[0],
			AdCreative: row.GroupBys[1],
			Clicks:     int64(row.Values[clicksMetric]),
		})
	}

	fetchedAt := s.now()
	payload, err := json.Marshal(counts)
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("failed to encode report cache: %w", err)
	}
	if err := s.cache.PutReportCache(ctx, &interfaces.ReportCacheEntry{
		Key:       key,
		Payload:   payload,
		FetchedAt: fetchedAt,
	}); err != nil {
		logger.Logger.Error().Err(err).Str("key", key).Msg("Failed to store report cache")
	}

	logger.Logger.Info().
		Str("from", from).
		Str("to", to).
		Int("rows", len(counts)).
		Msg("Report fetched")
	return counts, fetchedAt, false, nil
}
