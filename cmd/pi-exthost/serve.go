package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pi-agent/pi-exthost/internal/api"
	"github.com/pi-agent/pi-exthost/internal/config"
	"github.com/pi-agent/pi-exthost/internal/logging"
	"github.com/pi-agent/pi-exthost/internal/manager"
	"github.com/pi-agent/pi-exthost/internal/metrics"
	"github.com/pi-agent/pi-exthost/internal/observability"
	"github.com/pi-agent/pi-exthost/internal/sessionstore"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the extension host's HTTP control surface",
		Long:  "Starts the HTTP control surface extensions and the conformance harness drive the host through: extension loading, event dispatch, and capability introspection.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http") {
				cfg.HTTP.Addr = httpAddr
			}

			logging.InitStructured(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)
			if cfg.Observability.Logging.EventLogPath != "" {
				if err := logging.Default().SetOutput(cfg.Observability.Logging.EventLogPath); err != nil {
					return fmt.Errorf("open event log: %w", err)
				}
			}

			if err := observability.Init(context.Background(), observability.Config{
				Enabled:     cfg.Observability.Tracing.Enabled,
				Exporter:    cfg.Observability.Tracing.Exporter,
				Endpoint:    cfg.Observability.Tracing.Endpoint,
				ServiceName: cfg.Observability.Tracing.ServiceName,
				SampleRate:  cfg.Observability.Tracing.SampleRate,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer observability.Shutdown(context.Background())

			if cfg.Observability.Metrics.Enabled {
				metrics.InitPrometheus(cfg.Observability.Metrics.Namespace, cfg.Observability.Metrics.HistogramBuckets)
			}

			session, err := sessionstore.OpenHandle(cfg.SessionStore.Dir, cfg.SessionStore.MaxSegmentBytes)
			if err != nil {
				return fmt.Errorf("open session store: %w", err)
			}
			defer session.Close()

			mgr := manager.New(session, nil)
			srv := api.StartHTTPServer(cfg.HTTP.Addr, api.ServerConfig{
				Manager: mgr,
				VFS:     cfg.VFS,
				Runtime: cfg.Runtime,
			})
			logging.Op().Info("pi-exthost HTTP control surface started", "addr", cfg.HTTP.Addr)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			logging.Op().Info("shutdown signal received")

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "", "HTTP listen address (overrides config)")
	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)
	return cfg, nil
}
