package interfaces

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// Link is a tracking link created for one mart / ad creative pair
type Link struct {
	ID             string    `json:"id"`
	MartCode       string    `json:"mart_code"`
	MartName       string    `json:"mart_name"`
	AdCreative     string    `json:"ad_creative"`
	Channel        string    `json:"channel"`
	ShortURL       string    `json:"short_url"`
	TrackingLinkID string    `json:"tracking_link_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// String returns a string representation of the link
func (l *Link) String() string {
	return fmt.Sprintf("Link{ID: %s, Mart: %s, Creative: %s, URL: %s}",
		l.ID, l.MartCode, l.AdCreative, l.ShortURL)
}

// Mart is a store row synced from the spreadsheet
type Mart struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Region    string    `json:"region,omitempty"`
	Manager   string    `json:"manager,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReportCacheEntry holds a serialized report summary
type ReportCacheEntry struct {
	Key       string    `json:"key"`
	Payload   []byte    `json:"payload"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Expired reports whether the entry is older than ttl at now
func (e *ReportCacheEntry) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return true
	}
	return now.Sub(e.FetchedAt) > ttl
}

// LinkStore defines the persistence operations for links
type LinkStore interface {
	CreateLink(ctx context.Context, link *Link) error
	GetLink(ctx context.Context, id string) (*Link, error)
	FindLink(ctx context.Context, martCode, adCreative string) (*Link, error)
	ListLinks(ctx context.Context, martCode string) ([]*Link, error)
	DeleteAllLinks(ctx context.Context) (int64, error)
}

// MartStore defines the persistence operations for marts
type MartStore interface {
	UpsertMarts(ctx context.Context, marts []*Mart) (int, error)
	GetMart(ctx context.Context, code string) (*Mart, error)
	SearchMarts(ctx context.Context, query string, limit int) ([]*Mart, error)
	CountMarts(ctx context.Context) (int, error)
}

// ReportCacheStore defines the persistence operations for cached reports
type ReportCacheStore interface {
	GetReportCache(ctx context.Context, key string) (*ReportCacheEntry, error)
	PutReportCache(ctx context.Context, entry *ReportCacheEntry) error
	DeleteAllReportCache(ctx context.Context) (int64, error)
}

// Store groups every store the services need
type Store interface {
	LinkStore
	MartStore
	ReportCacheStore
}
