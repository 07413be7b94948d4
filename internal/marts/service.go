package marts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mtr002/linkboard/internal/interfaces"
	"github.com/mtr002/linkboard/internal/logger"
	"github.com/mtr002/linkboard/internal/metrics"
	"github.com/mtr002/linkboard/internal/sheets"
)

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100

	EventMartsSynced = "marts_synced"
)

var ErrSyncNotConfigured = errors.New("spreadsheet sync is not configured")

// ValuesReader reads raw rows from a spreadsheet.
type ValuesReader interface {
	ReadValues(ctx context.Context, spreadsheetID, rangeA1 string) ([][]string, error)
}

// Notifier receives sync events.
type Notifier interface {
	Notify(event string, data any)
}

type Service struct {
	store         interfaces.MartStore
	reader        ValuesReader
	spreadsheetID string
	sheetRange    string
	notifier      Notifier
}

func NewService(store interfaces.MartStore, reader ValuesReader, spreadsheetID, sheetRange string) *Service {
	return &Service{
		store:         store,
		reader:        reader,
		spreadsheetID: spreadsheetID,
		sheetRange:    sheetRange,
	}
}

func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

type SyncResult struct {
	Fetched  int `json:"fetched"`
	Upserted int `json:"upserted"`
	Skipped  int `json:"skipped"`
	Total    int `json:"total"`
}

// Sync copies the spreadsheet rows into the mart store.
func (s *Service) Sync(ctx context.Context) (*SyncResult, error) {
	if s.reader == nil || s.spreadsheetID == "" {
		return nil, ErrSyncNotConfigured
	}

	values, err := s.reader.ReadValues(ctx, s.spreadsheetID, s.sheetRange)
	if err != nil {
		return nil, err
	}
	marts, skipped, err := sheets.ParseMarts(values)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{Skipped: skipped}
	if len(values) > 0 {
		result.Fetched = len(values) - 1
	}

	if len(marts) > 0 {
		n, err := s.store.UpsertMarts(ctx, marts)
		if err != nil {
			return nil, fmt.Errorf("failed to save marts: %w", err)
		}
		result.Upserted = n
		metrics.MartsSyncedTotal.Add(float64(n))
	}

	total, err := s.store.CountMarts(ctx)
	if err != nil {
		return nil, err
	}
	result.Total = total

	logger.Logger.Info().
		Int("fetched", result.Fetched).
		Int("upserted", result.Upserted).
		Int("skipped", result.Skipped).
		Int("total", result.Total).
		Msg("Marts synced")
	if s.notifier != nil {
		s.notifier.Notify(EventMartsSynced, result)
	}
	return result, nil
}

// Search matches query against mart code and name.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]*interfaces.Mart, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	limit = min(limit, MaxSearchLimit)

	marts, err := s.store.SearchMarts(ctx, strings.TrimSpace(query), limit)
	if err != nil {
		return nil, err
	}
	if marts == nil {
		marts = []*interfaces.Mart{}
	}
	return marts, nil
}

func (s *Service) Get(ctx context.Context, code string) (*interfaces.Mart, error) {
	return s.store.GetMart(ctx, strings.TrimSpace(code))
}
