// Package app assembles the stores, API clients and services shared by the
// server, worker and linkctl binaries.
package app

import (
	"database/sql"
	"fmt"

	"github.com/mtr002/linkboard/internal/airbridge"
	"github.com/mtr002/linkboard/internal/config"
	"github.com/mtr002/linkboard/internal/db"
	"github.com/mtr002/linkboard/internal/interfaces"
	"github.com/mtr002/linkboard/internal/links"
	"github.com/mtr002/linkboard/internal/logger"
	"github.com/mtr002/linkboard/internal/marts"
	"github.com/mtr002/linkboard/internal/memory"
	"github.com/mtr002/linkboard/internal/reports"
	"github.com/mtr002/linkboard/internal/sheets"
)

type App struct {
	Config    *config.Config
	DB        *sql.DB
	Store     interfaces.Store
	Airbridge *airbridge.Client
	Links     *links.Manager
	Marts     *marts.Service
	Reports   *reports.Service
}

// New opens the store and builds the services. DB is nil when the
// in-memory store is used.
func New(cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if cfg.Database.URL == "" {
		logger.Logger.Warn().Msg("No database configured, using in-memory store")
		a.Store = memory.NewStore()
	} else {
		database, err := db.Connect(dbConfig(cfg.Database))
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := db.RunMigrations(database); err != nil {
				database.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		a.DB = database
		a.Store = db.NewStore(database)
	}

	a.Airbridge = airbridge.NewClient(airbridge.Options{
		BaseURL:         cfg.Airbridge.BaseURL,
		AppName:         cfg.Airbridge.AppName,
		APIToken:        cfg.Airbridge.APIToken,
		Timeout:         cfg.Airbridge.Timeout,
		PollInterval:    cfg.Airbridge.PollInterval,
		PollMaxAttempts: cfg.Airbridge.PollMaxAttempts,
	})

	a.Links = links.NewManager(a.Store, a.Airbridge, links.Options{
		Channel:         cfg.Airbridge.Channel,
		FallbackURL:     cfg.Airbridge.FallbackURL,
		BulkConcurrency: cfg.Links.BulkConcurrency,
		MaxBulkTasks:    cfg.Links.MaxBulkTasks,
	})

	var reader marts.ValuesReader
	if cfg.Sheets.APIKey != "" {
		reader = sheets.NewClient(cfg.Sheets.BaseURL, cfg.Sheets.APIKey, cfg.Sheets.Timeout)
	}
	a.Marts = marts.NewService(a.Store, reader, cfg.Sheets.SpreadsheetID, cfg.Sheets.Range)

	a.Reports = reports.NewService(a.Store, a.Airbridge, cfg.Reports.CacheTTL)
	return a, nil
}

// dbConfig starts from the pool defaults and applies the configured values.
func dbConfig(c config.DatabaseConfig) db.Config {
	out := db.DefaultConfig(c.URL)
	if c.MaxOpenConns > 0 {
		out.MaxOpenConns = c.MaxOpenConns
	}
	if c.MaxIdleConns > 0 {
		out.MaxIdleConns = c.MaxIdleConns
	}
	if c.ConnMaxLifetime > 0 {
		out.ConnMaxLifetime = c.ConnMaxLifetime
	}
	return out
}

func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
