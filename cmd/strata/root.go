package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HerbHall/strata/internal/builtin"
	"github.com/HerbHall/strata/internal/config"
	"github.com/HerbHall/strata/internal/host"
	"github.com/HerbHall/strata/internal/metrics"
	"github.com/HerbHall/strata/internal/version"
	"github.com/HerbHall/strata/pkg/plugin"
)

type rootFlags struct {
	configPath string
	appDir     string
	logLevel   string
	dev        bool
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "strata",
		Short: "Strata plugin host",
		Long: `Strata discovers plugins, loads their server entries, resolves their
configuration, applies app-level extensions and serves the resulting routes.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate(version.Info() + "\n")

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "host configuration file")
	cmd.PersistentFlags().StringVar(&flags.appDir, "app-dir", "", "application directory (overrides app.dir)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (overrides log.level)")
	cmd.PersistentFlags().BoolVar(&flags.dev, "dev", false, "development logging")

	cmd.AddCommand(newServeCommand(flags))
	cmd.AddCommand(newPluginsCommand(flags))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

// session bundles what every command needs to build an App.
type session struct {
	cfg      *config.Config
	settings config.Settings
	logger   *zap.Logger
	metrics  *metrics.Metrics
	catalog  *plugin.Catalog
}

func (f *rootFlags) setup() (*session, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.appDir != "" {
		cfg.Set("app.dir", f.appDir)
	}
	if f.logLevel != "" {
		cfg.Set("log.level", f.logLevel)
	}
	if f.dev {
		cfg.Set("log.development", true)
	}
	settings, err := cfg.Settings()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(settings)
	if err != nil {
		return nil, err
	}
	return &session{
		cfg:      cfg,
		settings: settings,
		logger:   logger,
		metrics:  metrics.New(),
		catalog:  builtin.NewCatalog(),
	}, nil
}

func (s *session) app() *host.App {
	return host.New(host.Options{
		Config:  s.cfg,
		Catalog: s.catalog,
		Metrics: s.metrics,
		Logger:  s.logger,
	})
}

func newLogger(s config.Settings) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if s.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if s.Log.Level != "" {
		level, err := zap.ParseAtomicLevel(s.Log.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		zc.Level = level
	}
	return zc.Build()
}
