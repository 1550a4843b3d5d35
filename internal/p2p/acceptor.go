package p2p

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/chanbus/chanbus/internal/log"
	"github.com/chanbus/chanbus/internal/metrics"
)

// fdLimitMargin is reserved out of the probed file descriptor limit for the
// listening socket itself, stdio, the metrics/dashboard listener, and
// headroom for short-lived fds (log files, DNS lookups) — the remainder is
// what MaxConnections is computed from when it is left at 0 (spec.md §4.6).
const fdLimitMargin = 64

// AcceptorConfig controls the listen loop's admission policy (spec.md §4.6).
type AcceptorConfig struct {
	ListenAddr string

	// MaxConnections caps concurrently open connections. 0 means "probe
	// the process fd limit and use limit - fdLimitMargin"; Run resolves
	// this before the accept loop starts.
	MaxConnections int

	// AcceptThrottle is how long the accept loop sleeps, while at
	// MaxConnections, before checking again (spec.md §4.6).
	AcceptThrottle time.Duration

	ConnectionConfig
}

// Acceptor owns the listening socket and spawns one connection task per
// accepted client.
type Acceptor struct {
	cfg     AcceptorConfig
	router  *Router
	logger  log.Logger
	metrics *metrics.Metrics

	open atomic.Int64
}

// NewAcceptor constructs an Acceptor. It does not start listening until Run
// is called.
func NewAcceptor(cfg AcceptorConfig, router *Router, logger log.Logger, m *metrics.Metrics) *Acceptor {
	return &Acceptor{cfg: cfg, router: router, logger: logger, metrics: m}
}

// Run raises the process's file descriptor limit, opens the listening
// socket and accepts connections until ctx is cancelled or the listener
// fails permanently. Each accepted connection is handled in its own
// goroutine via Handle.
func (a *Acceptor) Run(ctx context.Context) error {
	limit, err := raiseFileLimit()
	if err != nil {
		// Fall back to a conservative limit rather than running uncapped.
		limit = 512
		a.logger.Error("failed to raise file descriptor limit, assuming a conservative limit", "error", err, "limit", limit)
	} else {
		a.logger.Info("file descriptor limit", "limit", limit)
	}

	if a.cfg.MaxConnections == 0 && limit > fdLimitMargin {
		a.cfg.MaxConnections = int(limit - fdLimitMargin)
		a.logger.Info("max_connections derived from fd limit", "max_connections", a.cfg.MaxConnections)
	}
	if a.cfg.AcceptThrottle <= 0 {
		a.cfg.AcceptThrottle = 100 * time.Millisecond
	}

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", a.cfg.ListenAddr)
	if err != nil {
		return err
	}
	a.logger.Info("listening", "addr", a.cfg.ListenAddr)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = 5 * time.Millisecond
	boff.MaxInterval = 1 * time.Second

	for {
		// Throttle before calling Accept at all: while at the connection
		// cap, leave pending clients sitting in the OS backlog instead of
		// accepting and immediately rejecting them (spec.md §4.6).
		if a.cfg.MaxConnections > 0 && a.open.Load() >= int64(a.cfg.MaxConnections) {
			a.logger.Info("connection limit reached, throttling accept loop", "max_connections", a.cfg.MaxConnections)
			select {
			case <-time.After(a.cfg.AcceptThrottle):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() { //nolint:staticcheck // matches spec.md §4.6's transient/fatal accept split
				wait := boff.NextBackOff()
				a.logger.Error("transient accept error, backing off", "error", err, "wait", wait)
				select {
				case <-time.After(wait):
					continue
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return err
		}
		boff.Reset()

		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}

		a.open.Add(1)
		go func() {
			defer a.open.Add(-1)
			Handle(ctx, conn, a.router, a.cfg.ConnectionConfig, a.logger, a.metrics)
		}()
	}
}
