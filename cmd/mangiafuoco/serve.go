package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/mangiafuoco/pkg/server"
)

func newServeCommand() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the task orchestration API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings()
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			rt, err := buildRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := server.New(cfg, rt.orchestrator, server.NewTaskRegistry(), rt.bus, rt.monitors, rt.limiter,
				server.WithVersion(version),
				server.WithBaseContext(ctx),
			)

			err = srv.ListenAndServe(ctx)
			log.Info().Msg("server stopped")
			return err
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Listen address (overrides SERVER_HOST)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (overrides SERVER_PORT)")
	return cmd
}
