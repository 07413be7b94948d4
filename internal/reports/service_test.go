package reports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtr002/linkboard/internal/airbridge"
	"github.com/mtr002/linkboard/internal/interfaces"
	"github.com/mtr002/linkboard/internal/memory"
)

type fakeFetcher struct {
	calls   int
	status  string
	rows    []airbridge.ReportRow
	err     error
	queries []airbridge.ReportQuery
}

func (f *fakeFetcher) FetchReport(_ context.Context, q airbridge.ReportQuery) (*airbridge.ReportResponse, error) {
	f.calls++
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	resp := &airbridge.ReportResponse{}
	resp.Task = airbridge.ReportTask{TaskID: "t-1", Status: f.status}
	resp.Actuals.Data.Rows = f.rows
	return resp, nil
}

func newTestService(t *testing.T, fetcher *fakeFetcher) (*Service, *memory.Store, *time.Time) {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateLink(ctx, &interfaces.Link{ID: "l1", MartCode: "M001", AdCreative: "a", CreatedAt: base}))
	require.NoError(t, store.CreateLink(ctx, &interfaces.Link{ID: "l2", MartCode: "M002", AdCreative: "a", CreatedAt: base}))
	require.NoError(t, store.CreateLink(ctx, &interfaces.Link{ID: "l3", MartCode: "M003", AdCreative: "b", CreatedAt: base}))

	now := base
	svc := NewService(store, fetcher, 10*time.Minute)
	svc.now = func() time.Time { return now }
	return svc, store, &now
}

func successRows() []airbridge.ReportRow {
	return []airbridge.ReportRow{
		{GroupBys: []string{"M001", "a"}, Values: map[string]float64{"clicks": 5}},
		{GroupBys: []string{"M002", "a"}, Values: map[string]float64{"clicks": 40}},
		{GroupBys: []string{"M999", "a"}, Values: map[string]float64{"clicks": 7}},
		{GroupBys: []string{"broken"}, Values: map[string]float64{"clicks": 1}},
	}
}

func TestSummary(t *testing.T) {
	fetcher := &fakeFetcher{status: airbridge.StatusSuccess, rows: successRows()}
	svc, _, _ := newTestService(t, fetcher)

	summary, err := svc.Summary(context.Background(), "2026-10-01", "2026-10-07")
	require.NoError(t, err)

	assert.False(t, summary.Cached)
	assert.Equal(t, int64(45), summary.TotalClicks)
	require.Len(t, summary.Rows, 3)
	assert.Equal(t, "l2", summary.Rows[0].LinkID)
	assert.Equal(t, int64(40), summary.Rows[0].Clicks)
	assert.Equal(t, "l3", summary.Rows[2].LinkID)
	assert.Zero(t, summary.Rows[2].Clicks)

	require.Len(t, fetcher.queries, 1)
	assert.Equal(t, []string{"clicks"}, fetcher.queries[0].Metrics)
	assert.Equal(t, []string{"campaign", "ad_creative"}, fetcher.queries[0].GroupBys)
}

func TestSummary_UsesCacheUntilExpired(t *testing.T) {
	fetcher := &fakeFetcher{status: airbridge.StatusSuccess, rows: successRows()}
	svc, _, now := newTestService(t, fetcher)
	ctx := context.Background()

	_, err := svc.Summary(ctx, "2026-10-01", "2026-10-07")
	require.NoError(t, err)

	*now = now.Add(5 * time.Minute)
	summary, err := svc.Summary(ctx, "2026-10-01", "2026-10-07")
	require.NoError(t, err)
	assert.True(t, summary.Cached)
	assert.Equal(t, int64(45), summary.TotalClicks)
	assert.Equal(t, 1, fetcher.calls)

	*now = now.Add(6 * time.Minute)
	summary, err = svc.Summary(ctx, "2026-10-01", "2026-10-07")
	require.NoError(t, err)
	assert.False(t, summary.Cached)
	assert.Equal(t, 2, fetcher.calls)
}

func TestSummary_CachedCountsJoinNewLinks(t *testing.T) {
	fetcher := &fakeFetcher{status: airbridge.StatusSuccess, rows: []airbridge.ReportRow{
		{GroupBys: []string{"M004", "c"}, Values: map[string]float64{"clicks": 3}},
	}}
	svc, store, _ := newTestService(t, fetcher)
	ctx := context.Background()

	_, err := svc.Summary(ctx, "2026-10-01", "2026-10-07")
	require.NoError(t, err)

	require.NoError(t, store.CreateLink(ctx, &interfaces.Link{ID: "l4", MartCode: "M004", AdCreative: "c"}))

	summary, err := svc.Summary(ctx, "2026-10-01", "2026-10-07")
	require.NoError(t, err)
	assert.True(t, summary.Cached)
	assert.Equal(t, int64(3), summary.TotalClicks)
}

func TestSummary_Pending(t *testing.T) {
	fetcher := &fakeFetcher{status: airbridge.StatusPending}
	svc, store, _ := newTestService(t, fetcher)

	_, err := svc.Summary(context.Background(), "2026-10-01", "2026-10-07")
	assert.ErrorIs(t, err, ErrReportPending)

	_, err = store.GetReportCache(context.Background(), cacheKey("2026-10-01", "2026-10-07"))
	assert.ErrorIs(t, err, interfaces.ErrNotFound, "pending results are not cached")
}

func TestSummary_Failure(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeFetcher{status: airbridge.StatusFailure})
	_, err := svc.Summary(context.Background(), "2026-10-01", "2026-10-07")
	assert.ErrorIs(t, err, ErrReportFailed)
}

func TestSummary_FetchError(t *testing.T) {
	apiErr := &airbridge.APIError{StatusCode: 500, Body: "down"}
	svc, _, _ := newTestService(t, &fakeFetcher{err: apiErr})

	_, err := svc.Summary(context.Background(), "2026-10-01", "2026-10-07")

	var got *airbridge.APIError
	require.True(t, errors.As(err, &got))
	assert.Equal(t, 500, got.StatusCode)
}

func TestResolveRange(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeFetcher{})

	from, to, err := svc.ResolveRange("", "")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-13", from)
	assert.Equal(t, "2026-10-19", to)

	from, to, err = svc.ResolveRange("2026-09-01", "2026-09-01")
	require.NoError(t, err)
	assert.Equal(t, "2026-09-01", from)
	assert.Equal(t, "2026-09-01", to)

	_, _, err = svc.ResolveRange("2026-09-02", "2026-09-01")
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, _, err = svc.ResolveRange("09/01/2026", "")
	assert.ErrorIs(t, err, ErrInvalidRange)
}
