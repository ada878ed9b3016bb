package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/amqpwire/internal/admin"
	"github.com/danmuck/amqpwire/internal/config"
	"github.com/danmuck/amqpwire/internal/logging"
	"github.com/danmuck/amqpwire/internal/protocol/schema"
	"github.com/danmuck/amqpwire/internal/tap"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

func newTapCmd() *cobra.Command {
	var configPath string
	c := &cobra.Command{
		Use:   "tap",
		Short: "proxy AMQP clients to a broker and decode the traffic",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadTapConfig(configPath)
			if err != nil {
				return err
			}
			log.Info().Str("path", configPath).Msg("loaded tap config")
			if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok {
				zerolog.SetGlobalLevel(lvl)
			}

			spec, err := loadSpec(cmd)
			if err != nil {
				return err
			}
			if cfg.Schema != "" && !cmd.Flags().Changed("schema") {
				if spec, err = schema.Load(cfg.Schema); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runTap(ctx, cfg, spec)
		},
	}
	c.Flags().StringVarP(&configPath, "config", "c", "amqpwire.toml", "tap config path")
	return c
}

func runTap(ctx context.Context, cfg config.TapConfig, spec *schema.Spec) error {
	proxy, err := tap.New(tap.Config{
		Listen:     cfg.Listen,
		Upstream:   cfg.Upstream,
		Session:    cfg.Session(),
		TraceRate:  rate.Limit(cfg.TraceRate),
		TraceBurst: cfg.TraceBurst,
	}, spec)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errc := make(chan error, 2)
	running := 1
	if addr := strings.TrimSpace(cfg.AdminAddr); addr != "" {
		running++
		srv := admin.New(addr, cfg.CorsOrigins, proxy, spec, admin.WithToken(cfg.AdminToken))
		go func() { errc <- srv.ListenAndServe(ctx) }()
	}
	go func() { errc <- proxy.ListenAndServe(ctx) }()

	var first error
	for i := 0; i < running; i++ {
		if err := <-errc; err != nil && first == nil {
			first = err
			cancel()
		}
	}
	return first
}
