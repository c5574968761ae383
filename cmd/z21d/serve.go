package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/z21lan/internal/admin"
	"github.com/danmuck/z21lan/internal/config"
	"github.com/danmuck/z21lan/internal/layout"
	"github.com/danmuck/z21lan/internal/logging"
	"github.com/danmuck/z21lan/internal/observability"
	"github.com/danmuck/z21lan/internal/station"
	"github.com/danmuck/z21lan/internal/store"
	"github.com/danmuck/z21lan/internal/transport"
)

const maxWatchers = 16

func serveCmd() *cobra.Command {
	var (
		path      string
		listen    string
		adminAddr string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the command station",
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.ConfigureRuntime()
			cfg := config.Default()
			if path != "" {
				loaded, err := config.Load(path)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if cmd.Flags().Changed("listen") {
				cfg.Listen = listen
			}
			if cmd.Flags().Changed("admin") {
				cfg.AdminAddr = adminAddr
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, nil)
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "", "config file (.toml, .yaml or .yml)")
	cmd.Flags().StringVar(&listen, "listen", "", "UDP listen address, overrides the config")
	cmd.Flags().StringVar(&adminAddr, "admin", "", "admin HTTP address, empty disables it")
	return cmd
}

// serve runs every component until ctx ends or one of them fails. ready, if
// set, receives the bound UDP endpoint once the station accepts traffic.
func serve(ctx context.Context, cfg config.Config, ready chan<- *transport.UDP) error {
	observability.RegisterMetrics()

	cs, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer cs.Close()

	tcfg := transport.DefaultConfig()
	tcfg.Listen = cfg.Listen
	udp, err := transport.Listen(ctx, tcfg)
	if err != nil {
		return err
	}
	defer udp.Close()

	hub := admin.NewHub(maxWatchers)
	opts := station.Options{Store: cs, Monitor: hub}
	var lay *layout.Layout
	if cfg.Layout.Enabled {
		lcfg := layout.DefaultConfig()
		lcfg.TelemetryInterval = cfg.Layout.TelemetryInterval
		lay = layout.New(lcfg, layout.HostThermometer{})
		opts.Hooks = lay
	}
	st := station.New(cfg.Station, udp, opts)
	if lay != nil {
		lay.Bind(st)
	}

	log.Info().
		Str("listen", udp.LocalAddr().String()).
		Str("admin", cfg.AdminAddr).
		Str("store", cfg.Store.Driver).
		Bool("layout", lay != nil).
		Str("version", version).
		Msg("z21d_starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return st.Run(gctx) })
	g.Go(func() error { return udp.Serve(gctx, st) })
	if lay != nil {
		g.Go(func() error { return lay.Run(gctx) })
	}
	if strings.TrimSpace(cfg.AdminAddr) != "" {
		srv := admin.New(admin.Config{
			Addr:        cfg.AdminAddr,
			CorsOrigins: cfg.CorsOrigins,
			MaxWatchers: maxWatchers,
			Version:     version,
			Token:       cfg.AdminToken,
		}, st, hub)
		g.Go(func() error {
			if err := srv.Serve(gctx); err != nil {
				return fmt.Errorf("admin: %w", err)
			}
			// a clean admin exit before shutdown must not stop the station
			<-gctx.Done()
			return gctx.Err()
		})
	}
	if ready != nil {
		ready <- udp
	}

	err = g.Wait()
	log.Info().Err(err).Msg("z21d_stopped")
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}
