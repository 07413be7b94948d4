package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mtr002/linkboard/internal/app"
	"github.com/mtr002/linkboard/internal/config"
	"github.com/mtr002/linkboard/internal/links"
	"github.com/mtr002/linkboard/internal/logger"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "linkctl",
		Short:         "Operate the linkboard tracking-link backend",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to the YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(
		newMigrateCmd(opts),
		newSyncMartsCmd(opts),
		newBulkCmd(opts),
		newReportCmd(opts),
	)
	return root
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	logger.Init("linkctl", cfg.Logging.Level)
	return cfg, nil
}

func (o *rootOptions) open() (*app.App, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("database.url (or DATABASE_URL) is required to migrate")
			}
			cfg.Database.AutoMigrate = true

			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newSyncMartsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-marts",
		Short: "Copy marts from the spreadsheet into the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Marts.Sync(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}

func newBulkCmd(opts *rootOptions) *cobra.Command {
	var (
		martCodes   []string
		adCreatives []string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Create a tracking link for every mart and ad creative combination",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Links.CreateBulk(cmd.Context(), links.BulkRequest{
				MartCodes:   martCodes,
				AdCreatives: adCreatives,
				Concurrency: concurrency,
			})
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d of %d links failed", len(result.Errors), result.Total)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&martCodes, "marts", "m", nil, "mart codes (comma separated or repeated)")
	cmd.Flags().StringSliceVarP(&adCreatives, "creatives", "a", nil, "ad creative names (comma separated or repeated)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel Airbridge requests (default links.bulk_concurrency)")
	_ = cmd.MarkFlagRequired("marts")
	_ = cmd.MarkFlagRequired("creatives")
	return cmd
}

func newReportCmd(opts *rootOptions) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print clicks per tracking link for a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.Reports.Summary(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD (default six days before --to)")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD (default today)")
	return cmd
}
