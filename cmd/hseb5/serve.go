package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hseb5/internal/app"
	"hseb5/internal/logging"
	"hseb5/internal/server"
)

// serveCmd runs the REST backend over the workspace data set, so the CLI
// and any other client can point api.base_url at it.
func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// The server is the backend; it never calls another one.
			cfg.Demo.Enabled = true
			logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
			if err != nil {
				return err
			}
			a, err := app.Open(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			handler, err := server.New(server.Config{
				Repos:      a.Offline,
				BasePath:   basePath,
				StorageDir: cfg.Server.StorageDir,
				AppName:    cfg.App.Name,
				AppVersion: cfg.App.Version,
				Logger:     logger,
				Metrics:    a.Metrics,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(ctx); err != nil {
					logger.Warn("shutdown", zap.Error(err))
				}
			}()
			logger.Info("listening", zap.String("addr", addr), zap.String("base_path", basePath))
			fmt.Printf("Serving %s API on http://%s%s (OpenAPI at %s/openapi.json)\n", cfg.App.Name, addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8000", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/api", "API base path")
	return cmd
}
