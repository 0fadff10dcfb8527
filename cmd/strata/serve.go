package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HerbHall/strata/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(flags *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load plugins and serve their routes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := flags.setup()
			if err != nil {
				return err
			}
			defer func() { _ = s.logger.Sync() }()
			if addr == "" {
				addr = s.settings.Server.Addr
			}
			return runServe(cmd.Context(), s, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func runServe(parent context.Context, s *session, addr string) (err error) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := s.logger
	logger.Info("strata starting", zap.String("app_dir", s.settings.App.Dir), zap.String("env", s.settings.App.Env))

	app := s.app()
	if err := app.Load(ctx); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return errors.Join(err, app.Stop(context.Background()))
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if stopErr := app.Stop(stopCtx); stopErr != nil {
			logger.Error("plugin shutdown error", zap.Error(stopErr))
			err = errors.Join(err, stopErr)
		}
	}()

	srv := server.New(server.Options{
		Addr:     addr,
		Registry: app.Registry(),
		Host:     app,
		Metrics:  s.metrics.Handler(),
		Logger:   logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("strata ready", zap.String("addr", addr), zap.Int("plugins", app.Registry().Len()))
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("strata stopped")
	return nil
}
