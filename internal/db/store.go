package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mtr002/linkboard/internal/interfaces"
)

// Store handles database operations for links, marts and the report cache
type Store struct {
	db *sql.DB
}

var _ interfaces.Store = (*Store)(nil)

// NewStore creates a new database store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const linkColumns = `id, mart_code, mart_name, ad_creative, channel, short_url, tracking_link_id, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanLink(row scanner) (*interfaces.Link, error) {
	link := &interfaces.Link{}
	err := row.Scan(&link.ID, &link.MartCode, &link.MartName, &link.AdCreative,
		&link.Channel, &link.ShortURL, &link.TrackingLinkID, &link.CreatedAt)
	return link, err
}

// CreateLink inserts a new link
func (s *Store) CreateLink(ctx context.Context, link *interfaces.Link) error {
	query := `INSERT INTO links (` + linkColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		link.ID, link.MartCode, link.MartName, link.AdCreative,
		link.Channel, link.ShortURL, link.TrackingLinkID, link.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create link: %w", translateError(err))
	}
	return nil
}

// GetLink retrieves a link by ID
func (s *Store) GetLink(ctx context.Context, id string) (*interfaces.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE id = $1`

	link, err := scanLink(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("link %s: %w", id, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	return link, nil
}

// FindLink retrieves the link for a mart / creative pair
func (s *Store) FindLink(ctx context.Context, martCode, adCreative string) (*interfaces.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE mart_code = $1 AND ad_creative = $2`

	link, err := scanLink(s.db.QueryRowContext(ctx, query, martCode, adCreative))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("link %s/%s: %w", martCode, adCreative, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find link: %w", err)
	}
	return link, nil
}

// ListLinks returns links newest first, optionally for a single mart
func (s *Store) ListLinks(ctx context.Context, martCode string) ([]*interfaces.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links`
	var args []any
	if martCode != "" {
		query += ` WHERE mart_code = $1`
		args = append(args, martCode)
	}
	query += ` ORDER BY created_at DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	var links []*interfaces.Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return links, nil
}

// DeleteAllLinks removes every link
func (s *Store) DeleteAllLinks(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM links`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete links: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// UpsertMarts inserts or updates marts in a single transaction
func (s *Store) UpsertMarts(ctx context.Context, marts []*interfaces.Mart) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO marts (code, name, region, manager, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (code) DO UPDATE
		SET name = EXCLUDED.name, region = EXCLUDED.region,
		    manager = EXCLUDED.manager, updated_at = EXCLUDED.updated_at
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, m := range marts {
		if _, err := stmt.ExecContext(ctx, m.Code, m.Name, m.Region, m.Manager, now); err != nil {
			return 0, fmt.Errorf("failed to upsert mart %s: %w", m.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(marts), nil
}

const martColumns = `code, name, region, manager, updated_at`

func scanMart(row scanner) (*interfaces.Mart, error) {
	m := &interfaces.Mart{}
	err := row.Scan(&m.Code, &m.Name, &m.Region, &m.Manager, &m.UpdatedAt)
	return m, err
}

// GetMart retrieves a mart by code
func (s *Store) GetMart(ctx context.Context, code string) (*interfaces.Mart, error) {
	m, err := scanMart(s.db.QueryRowContext(ctx, `SELECT `+martColumns+` FROM marts WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("mart %s: %w", code, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get mart: %w", err)
	}
	return m, nil
}

// SearchMarts matches the query against code and name, case-insensitively
func (s *Store) SearchMarts(ctx context.Context, query string, limit int) ([]*interfaces.Mart, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+martColumns+` FROM marts
		WHERE LOWER(code) LIKE $1 OR LOWER(name) LIKE $1
		ORDER BY code ASC
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search marts: %w", err)
	}
	defer rows.Close()

	var marts []*interfaces.Mart
	for rows.Next() {
		m, err := scanMart(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mart: %w", err)
		}
		marts = append(marts, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return marts, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// CountMarts returns the number of stored marts
func (s *Store) CountMarts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM marts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count marts: %w", err)
	}
	return n, nil
}

// GetReportCache retrieves a cached report payload
func (s *Store) GetReportCache(ctx context.Context, key string) (*interfaces.ReportCacheEntry, error) {
	e := &interfaces.ReportCacheEntry{}
	err := s.db.QueryRowContext(ctx,
		`SELECT cache_key, payload, fetched_at FROM link_report_cache WHERE cache_key = $1`, key,
	).Scan(&e.Key, &e.Payload, &e.FetchedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("report cache %s: %w", key, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get report cache: %w", err)
	}
	return e, nil
}

// PutReportCache stores or replaces a cached report payload
func (s *Store) PutReportCache(ctx context.Context, entry *interfaces.ReportCacheEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO link_report_cache (cache_key, payload, fetched_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (cache_key) DO UPDATE
		SET payload = EXCLUDED.payload, fetched_at = EXCLUDED.fetched_at
	`, entry.Key, string(entry.Payload), entry.FetchedAt)
	if err != nil {
		return fmt.Errorf("failed to put report cache: %w", err)
	}
	return nil
}

// DeleteAllReportCache clears the report cache
func (s *Store) DeleteAllReportCache(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM link_report_cache`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete report cache: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
