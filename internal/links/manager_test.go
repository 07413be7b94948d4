package links

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtr002/linkboard/internal/airbridge"
	"github.com/mtr002/linkboard/internal/interfaces"
	"github.com/mtr002/linkboard/internal/memory"
)

type fakeCreator struct {
	mu    sync.Mutex
	calls []airbridge.TrackingLinkRequest
	fail  map[string]error
}

func (f *fakeCreator) CreateTrackingLink(_ context.Context, req airbridge.TrackingLinkRequest) (*airbridge.TrackingLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if err, ok := f.fail[req.Campaign+"/"+req.AdCreative]; ok {
		return nil, err
	}
	n := len(f.calls)
	return &airbridge.TrackingLink{
		ID:       fmt.Sprintf("%d", n),
		ShortURL: fmt.Sprintf("https://abr.ge/%s-%s", req.Campaign, req.AdCreative),
	}, nil
}

func (f *fakeCreator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type captureNotifier struct {
	mu     sync.Mutex
	events []string
}

func (c *captureNotifier) Notify(event string, _ any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureNotifier) count(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e == event {
			n++
		}
	}
	return n
}

func newTestManager(t *testing.T, creator *fakeCreator) (*Manager, *memory.Store, *captureNotifier) {
	t.Helper()
	store := memory.NewStore()
	_, err := store.UpsertMarts(context.Background(), []*interfaces.Mart{
		{Code: "M001", Name: "Gangnam"},
		{Code: "M002", Name: "Haeundae"},
		{Code: "M003", Name: "Jamsil"},
	})
	require.NoError(t, err)

	notifier := &captureNotifier{}
	m := NewManager(store, creator, Options{Channel: "mart_poster", MaxBulkTasks: 20})
	m.SetNotifier(notifier)
	return m, store, notifier
}

func TestCreate(t *testing.T) {
	creator := &fakeCreator{}
	m, _, notifier := newTestManager(t, creator)
	ctx := context.Background()

	link, created, err := m.Create(ctx, " M001 ", "spring_sale")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "M001", link.MartCode)
	assert.Equal(t, "Gangnam", link.MartName)
	assert.Equal(t, "mart_poster", link.Channel)
	assert.Equal(t, "https://abr.ge/M001-spring_sale", link.ShortURL)
	assert.NotEmpty(t, link.ID)

	require.Len(t, creator.calls, 1)
	assert.Equal(t, "Gangnam", creator.calls[0].AdGroup)
	assert.Equal(t, 1, notifier.count(EventLinkCreated))

	again, created, err := m.Create(ctx, "M001", "spring_sale")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, link.ID, again.ID)
	assert.Equal(t, 1, creator.callCount(), "existing pair must not hit airbridge")
}

func TestCreate_Validation(t *testing.T) {
	m, _, _ := newTestManager(t, &fakeCreator{})

	_, _, err := m.Create(context.Background(), "", "spring_sale")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, _, err = m.Create(context.Background(), "M999", "spring_sale")
	assert.ErrorIs(t, err, ErrMartNotFound)
}

func TestCreate_AirbridgeFailure(t *testing.T) {
	creator := &fakeCreator{fail: map[string]error{"M001/spring_sale": errors.New("rate limited")}}
	m, store, _ := newTestManager(t, creator)

	_, _, err := m.Create(context.Background(), "M001", "spring_sale")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")

	links, err := store.ListLinks(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestBuildTasks(t *testing.T) {
	tasks := BuildTasks(BulkRequest{
		MartCodes:   []string{"M001", " M002", "", "M001"},
		AdCreatives: []string{"a", "b", "b "},
	})

	assert.Equal(t, []Task{
		{MartCode: "M001", AdCreative: "a"},
		{MartCode: "M001", AdCreative: "b"},
		{MartCode: "M002", AdCreative: "a"},
		{MartCode: "M002", AdCreative: "b"},
	}, tasks)
}

func TestCreateBulk(t *testing.T) {
	creator := &fakeCreator{fail: map[string]error{"M002/b": errors.New("airbridge 500")}}
	m, _, notifier := newTestManager(t, creator)
	ctx := context.Background()

	_, _, err := m.Create(ctx, "M001", "a")
	require.NoError(t, err)

	result, err := m.CreateBulk(ctx, BulkRequest{
		MartCodes:   []string{"M001", "M002", "M404"},
		AdCreatives: []string{"a", "b"},
		Concurrency: 3,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.BatchID)
	assert.Equal(t, 6, result.Total)
	assert.Len(t, result.Existing, 1)
	assert.Len(t, result.Created, 2)
	require.Len(t, result.Errors, 3)
	assert.Equal(t, result.Total, len(result.Created)+len(result.Existing)+len(result.Errors))

	failed := make(map[string]string)
	for _, e := range result.Errors {
		failed[e.MartCode+"/"+e.AdCreative] = e.Error
	}
	assert.Contains(t, failed["M002/b"], "airbridge 500")
	assert.Contains(t, failed["M404/a"], ErrMartNotFound.Error())
	assert.Contains(t, failed["M404/b"], ErrMartNotFound.Error())

	assert.Equal(t, 1, notifier.count(EventBulkCompleted))
}

func TestCreateBulk_KeepsBatchID(t *testing.T) {
	m, _, _ := newTestManager(t, &fakeCreator{})

	result, err := m.CreateBulk(context.Background(), BulkRequest{
		BatchID:     "batch-7",
		MartCodes:   []string{"M003"},
		AdCreatives: []string{"a"},
	})
	require.NoError(t, err)
	assert.Equal(t, "batch-7", result.BatchID)
	assert.Len(t, result.Created, 1)
}

func TestCreateBulk_Validation(t *testing.T) {
	m, _, _ := newTestManager(t, &fakeCreator{})

	_, err := m.CreateBulk(context.Background(), BulkRequest{MartCodes: []string{"M001"}})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	codes := make([]string, 21)
	for i := range codes {
		codes[i] = fmt.Sprintf("M%03d", i)
	}
	_, err = m.CreateBulk(context.Background(), BulkRequest{MartCodes: codes, AdCreatives: []string{"a"}})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestClear(t *testing.T) {
	m, store, notifier := newTestManager(t, &fakeCreator{})
	ctx := context.Background()

	_, _, err := m.Create(ctx, "M001", "a")
	require.NoError(t, err)
	require.NoError(t, store.PutReportCache(ctx, &interfaces.ReportCacheEntry{Key: "k", Payload: []byte("{}")}))

	result, err := m.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.LinksDeleted)
	assert.Equal(t, int64(1), result.ReportsDeleted)
	assert.Equal(t, 1, notifier.count(EventLinksCleared))

	links, err := m.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, links)
}
