// Command chanbusd runs the broker described by SPEC_FULL.md: a TCP
// publish/subscribe server with an optional read-only metrics and
// dashboard HTTP surface.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chanbus/chanbus/internal/config"
	"github.com/chanbus/chanbus/internal/dashboard"
	"github.com/chanbus/chanbus/internal/log"
	"github.com/chanbus/chanbus/internal/metrics"
	"github.com/chanbus/chanbus/internal/p2p"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "chanbusd",
		Short: "chanbusd is a TCP publish/subscribe broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v)
		},
	}
	config.BindFlags(cmd.Flags(), v)
	return cmd
}

func run(ctx context.Context, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	logger := log.NewLogfmt(cfg.LogLevel)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	router := p2p.NewRouter(logger.With("component", "router"), m)
	defer router.Close()

	// Wired before the router is handed to the acceptor below, so every
	// Forward call across the process's lifetime reports its evictions to
	// the dashboard's recent-activity ring, whether or not that ring is
	// actually being served over HTTP.
	dash := dashboard.New(router, logger.With("component", "dashboard"), 64)
	router.SetEvictionNotifier(func(channel p2p.ChannelID, count int) {
		for i := 0; i < count; i++ {
			dash.RecordEviction(string(channel))
		}
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		go serveMetricsAndDashboard(ctx, cfg.MetricsAddr, reg, dash, logger.With("component", "dashboard"))
	}

	acceptor := p2p.NewAcceptor(p2p.AcceptorConfig{
		ListenAddr:     cfg.ListenAddr,
		MaxConnections: cfg.MaxConnections,
		AcceptThrottle: cfg.AcceptThrottle,
		ConnectionConfig: p2p.ConnectionConfig{
			EgressQueueDepth: cfg.EgressQueueDepth,
			MaxFrameSize:     cfg.MaxFrameSize,
		},
	}, router, logger.With("component", "acceptor"), m)

	err = acceptor.Run(ctx)
	if ctx.Err() != nil {
		logger.Info("shutting down")
		return nil
	}
	return err
}

func serveMetricsAndDashboard(ctx context.Context, addr string, reg *prometheus.Registry, dash *dashboard.Dashboard, logger log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	mux.Handle("/", dash.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	logger.Info("serving metrics and dashboard", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && ctx.Err() == nil {
		logger.Error("metrics/dashboard server exited", "error", err)
	}
}
