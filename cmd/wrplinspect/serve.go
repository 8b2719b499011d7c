package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"wrpl-inspect/internal/server"
)

func (a *app) serveCmd() *cobra.Command {
	var addr, h3Addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the parse service over HTTP",
		Long: `Serve exposes POST /v1/parse, GET /v1/parse/ws, /metrics and /healthz.
With --http3-addr the same routes are also served over HTTP/3; without a
cert_file in the config a self-signed certificate is generated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("http3-addr") {
				cfg.Server.HTTP3Addr = h3Addr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.New(cfg, a.log, nil).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&h3Addr, "http3-addr", "", "HTTP/3 (QUIC) listen address")
	return cmd
}
