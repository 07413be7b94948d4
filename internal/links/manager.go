package links

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mtr002/linkboard/internal/airbridge"
	"github.com/mtr002/linkboard/internal/interfaces"
	"github.com/mtr002/linkboard/internal/logger"
	"github.com/mtr002/linkboard/internal/metrics"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrMartNotFound   = errors.New("mart not found")
)

// Events pushed to the Notifier.
const (
	EventLinkCreated   = "link_created"
	EventBulkCompleted = "bulk_completed"
	EventLinksCleared  = "links_cleared"
)

// TrackingLinkCreator creates the remote short link.
type TrackingLinkCreator interface {
	CreateTrackingLink(ctx context.Context, req airbridge.TrackingLinkRequest) (*airbridge.TrackingLink, error)
}

// Notifier receives link events, e.g. for the websocket hub.
type Notifier interface {
	Notify(event string, data any)
}

type Options struct {
	Channel         string
	FallbackURL     string
	BulkConcurrency int
	MaxBulkTasks    int
}

// Manager creates, lists and clears tracking links
type Manager struct {
	links    interfaces.LinkStore
	marts    interfaces.MartStore
	reports  interfaces.ReportCacheStore
	creator  TrackingLinkCreator
	notifier Notifier
	opts     Options
}

// NewManager creates a new link manager
func NewManager(store interfaces.Store, creator TrackingLinkCreator, opts Options) *Manager {
	if opts.BulkConcurrency <= 0 {
		opts.BulkConcurrency = 5
	}
	if opts.MaxBulkTasks <= 0 {
		opts.MaxBulkTasks = 500
	}
	return &Manager{
		links:   store,
		marts:   store,
		reports: store,
		creator: creator,
		opts:    opts,
	}
}

// SetNotifier installs the event sink. It must be called before serving.
func (m *Manager) SetNotifier(n Notifier) {
	m.notifier = n
}

func (m *Manager) notify(event string, data any) {
	if m.notifier != nil {
		m.notifier.Notify(event, data)
	}
}

// Create returns the link for the mart / creative pair, creating it on
// Airbridge when it does not exist yet. created is false for an existing link.
func (m *Manager) Create(ctx context.Context, martCode, adCreative string) (link *interfaces.Link, created bool, err error) {
	martCode = strings.TrimSpace(martCode)
	adCreative = strings.TrimSpace(adCreative)
	if martCode == "" || adCreative == "" {
		return nil, false, fmt.Errorf("%w: mart code and ad creative are required", ErrInvalidRequest)
	}

	existing, err := m.links.FindLink(ctx, martCode, adCreative)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, false, err
	}

	mart, err := m.marts.GetMart(ctx, martCode)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, false, fmt.Errorf("%w: %s", ErrMartNotFound, martCode)
		}
		return nil, false, err
	}

	tl, err := m.creator.CreateTrackingLink(ctx, airbridge.TrackingLinkRequest{
		Channel:     m.opts.Channel,
		Campaign:    mart.Code,
		AdGroup:     mart.Name,
		AdCreative:  adCreative,
		FallbackURL: m.opts.FallbackURL,
	})
	if err != nil {
		metrics.LinkCreateFailuresTotal.Inc()
		return nil, false, fmt.Errorf("failed to create tracking link: %w", err)
	}

	link = &interfaces.Link{
		ID:             uuid.New().String(),
		MartCode:       mart.Code,
		MartName:       mart.Name,
		AdCreative:     adCreative,
		Channel:        m.opts.Channel,
		ShortURL:       tl.ShortURL,
		TrackingLinkID: tl.ID,
		CreatedAt:      time.Now().UTC(),
	}

	if err := m.links.CreateLink(ctx, link); err != nil {
		if errors.Is(err, interfaces.ErrDuplicate) {
			// lost a race with a concurrent request for the same pair
			existing, findErr := m.links.FindLink(ctx, martCode, adCreative)
			if findErr == nil {
				return existing, false, nil
			}
		}
		metrics.LinkCreateFailuresTotal.Inc()
		return nil, false, fmt.Errorf("failed to save link: %w", err)
	}

	metrics.LinksCreatedTotal.Inc()
	log := logger.WithLinkID(link.ID)
	log.Info().
		Str("mart_code", link.MartCode).
		Str("ad_creative", link.AdCreative).
		Str("short_url", link.ShortURL).
		Msg("Link created")
	m.notify(EventLinkCreated, link)
	return link, true, nil
}

// Get retrieves a link by ID
func (m *Manager) Get(ctx context.Context, id string) (*interfaces.Link, error) {
	return m.links.GetLink(ctx, id)
}

// List returns all links, or the links of one mart
func (m *Manager) List(ctx context.Context, martCode string) ([]*interfaces.Link, error) {
	return m.links.ListLinks(ctx, strings.TrimSpace(martCode))
}

// ClearResult reports what an admin clear removed.
type ClearResult struct {
	LinksDeleted   int64 `json:"links_deleted"`
	ReportsDeleted int64 `json:"reports_deleted"`
}

// Clear deletes every link and the cached reports that reference them
func (m *Manager) Clear(ctx context.Context) (*ClearResult, error) {
	linksDeleted, err := m.links.DeleteAllLinks(ctx)
	if err != nil {
		return nil, err
	}
	reportsDeleted, err := m.reports.DeleteAllReportCache(ctx)
	if err != nil {
		return nil, err
	}

	result := &ClearResult{LinksDeleted: linksDeleted, ReportsDeleted: reportsDeleted}
	logger.Logger.Warn().
		Int64("links_deleted", linksDeleted).
		Int64("reports_deleted", reportsDeleted).
		Msg("Links cleared")
	m.notify(EventLinksCleared, result)
	return result, nil
}
