package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ollama-proxy/internal/config"
	"ollama-proxy/internal/logging"
	"ollama-proxy/internal/provider"
	providerfactory "ollama-proxy/internal/provider/factory"
	"ollama-proxy/internal/router"
	"ollama-proxy/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var overridePort int
	var logLevel string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("port") {
				if overridePort <= 0 || overridePort > 65535 {
					return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
				}
				cfg.Server.Port = overridePort
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}

			logger, err := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			if strings.TrimSpace(cfg.Upstream.APIKey) == "" {
				logger.Warn("no upstream API key configured; chat requests will fail until one is set",
					"env", config.EnvAPIKey)
			}

			registry := provider.NewRegistry()
			if err := providerfactory.RegisterConfiguredProviders(cfg, registry); err != nil {
				return err
			}

			srv, err := server.New(cfg, router.New(registry))
			if err != nil {
				return err
			}

			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().IntVar(&overridePort, "port", 0, "Override server port from configuration")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	return cmd
}
