// Package memory is an in-process implementation of the link, mart and report
// cache stores, used when no database is configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mtr002/linkboard/internal/interfaces"
)

type Store struct {
	mu      sync.RWMutex
	links   map[string]*interfaces.Link
	marts   map[string]*interfaces.Mart
	reports map[string]*interfaces.ReportCacheEntry
}

var _ interfaces.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		links:   make(map[string]*interfaces.Link),
		marts:   make(map[string]*interfaces.Mart),
		reports: make(map[string]*interfaces.ReportCacheEntry),
	}
}

func (s *Store) CreateLink(_ context.Context, link *interfaces.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.links[link.ID]; ok {
		return fmt.Errorf("link %s: %w", link.ID, interfaces.ErrDuplicate)
	}
	for _, l := range s.links {
		if l.MartCode == link.MartCode && l.AdCreative == link.AdCreative {
			return fmt.Errorf("link %s/%s: %w", link.MartCode, link.AdCreative, interfaces.ErrDuplicate)
		}
	}
	cp := *link
	s.links[link.ID] = &cp
	return nil
}

func (s *Store) GetLink(_ context.Context, id string) (*interfaces.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.links[id]
	if !ok {
		return nil, fmt.Errorf("link %s: %w", id, interfaces.ErrNotFound)
	}
	cp := *l
	return &cp, nil
}

func (s *Store) FindLink(_ context.Context, martCode, adCreative string) (*interfaces.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.links {
		if l.MartCode == martCode && l.AdCreative == adCreative {
			cp := *l
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("link %s/%s: %w", martCode, adCreative, interfaces.ErrNotFound)
}

func (s *Store) ListLinks(_ context.Context, martCode string) ([]*interfaces.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	links := make([]*interfaces.Link, 0, len(s.links))
	for _, l := range s.links {
		if martCode != "" && l.MartCode != martCode {
			continue
		}
		cp := *l
		links = append(links, &cp)
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].CreatedAt.Equal(links[j].CreatedAt) {
			return links[i].ID < links[j].ID
		}
		return links[i].CreatedAt.After(links[j].CreatedAt)
	})
	return links, nil
}

func (s *Store) DeleteAllLinks(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.links))
	s.links = make(map[string]*interfaces.Link)
	return n, nil
}

func (s *Store) UpsertMarts(_ context.Context, marts []*interfaces.Mart) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, m := range marts {
		cp := *m
		cp.UpdatedAt = now
		s.marts[m.Code] = &cp
	}
	return len(marts), nil
}

func (s *Store) GetMart(_ context.Context, code string) (*interfaces.Mart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.marts[code]
	if !ok {
		return nil, fmt.Errorf("mart %s: %w", code, interfaces.ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (s *Store) SearchMarts(_ context.Context, query string, limit int) ([]*interfaces.Mart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	var marts []*interfaces.Mart
	for _, m := range s.marts {
		if q == "" || strings.Contains(strings.ToLower(m.Code), q) || strings.Contains(strings.ToLower(m.Name), q) {
			cp := *m
			marts = append(marts, &cp)
		}
	}
	sort.Slice(marts, func(i, j int) bool { return marts[i].Code < marts[j].Code })
	if limit > 0 && len(marts) > limit {
		marts = marts[:limit]
	}
	return marts, nil
}

func (s *Store) CountMarts(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.marts), nil
}

func (s *Store) GetReportCache(_ context.Context, key string) (*interfaces.ReportCacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.reports[key]
	if !ok {
		return nil, fmt.Errorf("report cache %s: %w", key, interfaces.ErrNotFound)
	}
	cp := *e
	cp.Payload = append([]byte(nil), e.Payload...)
	return &cp, nil
}

func (s *Store) PutReportCache(_ context.Context, entry *interfaces.ReportCacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	cp.Payload = append([]byte(nil), entry.Payload...)
	s.reports[entry.Key] = &cp
	return nil
}

func (s *Store) DeleteAllReportCache(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.reports))
	s.reports = make(map[string]*interfaces.ReportCacheEntry)
	return n, nil
}
