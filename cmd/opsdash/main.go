package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/h0rv/opsdash/internal/backend"
	"github.com/h0rv/opsdash/internal/config"
	"github.com/h0rv/opsdash/internal/domain"
	"github.com/h0rv/opsdash/internal/search"
	"github.com/h0rv/opsdash/internal/tui"
)

var (
	// CLI flags
	configDirFlag string
	backendFlag   string
	endpointFlag  string
	viewFlag      string
	logLevelFlag  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "opsdash",
		Short: "Terminal dashboard for tasks, content, team and memory notes",
		Long: `opsdash is a terminal dashboard over a small set of operational tables.

Kanban boards for tasks, the content pipeline, the team and the calendar, plus a searchable
view of memory notes. Changes made elsewhere appear live.

Backends:
  sqlite   Local database file (default)
  graphql  pg_graphql endpoint; the API key comes from OPSDASH_API_KEY,
           auth.key_command, or the api_key file in the config directory
  memory   Throwaway in-process tables`,
		SilenceUsage: true,
		RunE:         run,
	}

	rootCmd.Flags().StringVar(&configDirFlag, "config-dir", config.DefaultConfigDir(), "Configuration directory.")
	rootCmd.Flags().StringVar(&backendFlag, "backend", "", "Backend to use: graphql, sqlite or memory. Overrides the config file.")
	rootCmd.Flags().StringVar(&endpointFlag, "endpoint", "", "GraphQL endpoint. Implies --backend graphql.")
	rootCmd.Flags().StringVar(&viewFlag, "view", "", "View to open: a board name (tasks, content, team, calendar) or notes. Skips the view picker.")
	rootCmd.Flags().StringVar(&logLevelFlag, "log-level", "", "Log level. Overrides the config file.")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if viewFlag != "" && viewFlag != tui.NotesView {
		if _, err := domain.LookupBoard(viewFlag); err != nil {
			return fmt.Errorf("--view: %w", err)
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, closeLog, err := openLog(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := backend.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.WithError(err).Warn("close backend")
		}
	}()

	session := tui.NewSession(ctx, b, tui.SessionConfig{
		Search: search.Options{PageSize: cfg.Search.PageSize, Debounce: cfg.Search.Debounce},
		Logger: log,
	})
	defer func() {
		// Pending writes finish before the backend closes.
		if err := session.Close(); err != nil {
			log.WithError(err).Warn("close session")
		}
	}()

	app := tui.NewAppModel(session, ctx, viewFlag)

	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("program error: %w", err)
	}
	return nil
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configDirFlag)
	if err != nil {
		return nil, err
	}
	if endpointFlag != "" {
		cfg.GraphQL.Endpoint = endpointFlag
		cfg.Backend = config.BackendGraphQL
	}
	if backendFlag != "" {
		cfg.Backend = backendFlag
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfg.Path(), err)
	}
	if err := cfg.EnsureDir(); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	return cfg, nil
}

// openLog sends logs to a file; the terminal belongs to the UI.
func openLog(cfg config.LogConfig) (*logrus.Logger, func(), error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	log := logrus.New()
	log.SetOutput(f)
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log, func() { _ = f.Close() }, nil
}
