package p2p

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/chanbus/chanbus/internal/log"
	"github.com/chanbus/chanbus/internal/metrics"
	"github.com/chanbus/chanbus/internal/wire"
)

// ConnectionConfig bounds a single connection's resource usage.
type ConnectionConfig struct {
	EgressQueueDepth int
	MaxFrameSize     int
}

// Handle runs one accepted connection to completion: registers it with the
// router, runs the reader and writer sub-tasks (§4.5) until either exits,
// then cleans up. Handle blocks until the connection is fully torn down.
func Handle(ctx context.Context, conn net.Conn, router *Router, cfg ConnectionConfig, logger log.Logger, m *metrics.Metrics) {
	peerID := PeerID(conn.RemoteAddr().String())
	// trace id is a log-only correlator for one connection's lifetime; it
	// is never part of PeerID or the wire protocol (spec.md §3).
	logger = logger.With("peer", string(peerID), "trace", uuid.NewString())
	handle := NewPeerHandle(peerID, cfg.EgressQueueDepth)

	router.PeerAdd(peerID, handle)
	if m != nil {
		m.ConnectionsAccepted.Inc()
		m.ConnectionsOpen.Inc()
	}
	logger.Info("connection established")

	defer func() {
		router.PeerRemove(peerID)
		if m != nil {
			m.ConnectionsOpen.Dec()
		}
		_ = conn.Close()
		logger.Info("connection closed")
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return readLoop(gctx, conn, peerID, handle, router, cfg, logger) })
	g.Go(func() error { return writeLoop(gctx, conn, handle, logger) })

	// Either sub-task returning unblocks the other: a read/write error or
	// EOF cancels gctx, which writeLoop selects on and readLoop checks
	// between frames; closing conn also unblocks whichever of them is
	// parked in a blocking syscall, matching spec.md §4.5's linked
	// cancellation.
	go func() {
		<-gctx.Done()
		_ = conn.Close()
	}()

	if err := g.Wait(); err != nil && !isBenignCloseError(err) {
		logger.Debug("connection terminated", "error", err)
	}
}

func isBenignCloseError(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled)
}

// readLoop decodes frames and dispatches them (spec.md §4.5 "Reader").
func readLoop(ctx context.Context, conn net.Conn, self PeerID, handle *PeerHandle, router *Router, cfg ConnectionConfig, logger log.Logger) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		frame, err := wire.ReadFrame(conn, cfg.MaxFrameSize)
		if err != nil {
			if errors.Is(err, wire.ErrFrameTooLarge) {
				logger.Error("frame exceeds size cap, terminating connection", "error", err)
				return err
			}
			// Wrapped (not replaced) so isBenignCloseError's errors.Is checks
			// still see through to io.EOF/net.ErrClosed/context.Canceled.
			return pkgerrors.Wrap(err, "p2p: read frame")
		}

		switch frame.Kind {
		case wire.KindChannelMsg:
			router.Forward(frame.Raw, ChannelID(frame.Channel), self)
		case wire.KindChannelJoin:
			router.Attach(ChannelID(frame.Channel), self, handle)
		case wire.KindChannelLeave:
			router.Detach(ChannelID(frame.Channel), self)
		default:
			// The codec only ever hands dispatch a Kind it itself produced
			// (KindChannelMsg/Join/Leave); anything else is a programmer
			// error in the codec, not a malformed wire frame. Preserved
			// from original_source's router.rs unreachable!() assumption
			// (spec.md §9).
			panic(fmt.Sprintf("p2p: unreachable frame kind in dispatch: %v", frame.Kind))
		}
	}
}

// writeLoop pops frames off the peer's egress queue and writes them,
// coalescing the flush while more frames are already queued (spec.md §4.5
// "Writer").
func writeLoop(ctx context.Context, conn net.Conn, handle *PeerHandle, logger log.Logger) error {
	w := bufio.NewWriter(conn)
	out := handle.Out()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-out:
			if !ok {
				return io.EOF
			}
			if _, err := w.Write(frame); err != nil {
				return pkgerrors.Wrap(err, "p2p: write frame")
			}
			if len(out) == 0 {
				if err := w.Flush(); err != nil {
					return pkgerrors.Wrap(err, "p2p: flush")
				}
			}
		}
	}
}
