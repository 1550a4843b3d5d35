// Package client is a small helper for talking to a chanbusd broker: it
// owns one TCP connection, offers a channel of outbound frames and a
// channel of inbound messages, and locally synthesises connection-status
// events the way original_source's client helper did (there is no such
// status frame on the wire).
package client

import (
	"bufio"
	"context"
	"net"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/chanbus/chanbus/internal/wire"
)

// Config controls one Client's behaviour.
type Config struct {
	Addr string

	// SendQueueDepth and RecvQueueDepth bound the client's internal
	// channels, mirroring the bounded flume channels in original_source's
	// client helper.
	SendQueueDepth int
	RecvQueueDepth int

	// AutoReconnect, when true, makes the client retry a dropped connection with
	// exponential backoff instead of returning. Grounded in the
	// rsq_bench_* binaries, which all wrap their own ad hoc reconnect loop
	// around a single Rsq::new call; this folds that loop into the helper
	// itself.
	AutoReconnect bool
}

func (c Config) withDefaults() Config {
	if c.SendQueueDepth <= 0 {
		c.SendQueueDepth = 1000
	}
	if c.RecvQueueDepth <= 0 {
		c.RecvQueueDepth = 1000
	}
	return c
}

// Client is the application-facing handle: send outbound frames on Out,
// read decoded messages and status events from In.
type Client struct {
	cfg Config
	Out chan<- []byte
	In  <-chan wire.Message
}

// New starts a Client and returns immediately; the connection (and, if
// AutoReconnect is set, every reconnect attempt) runs in a background
// goroutine until ctx is cancelled.
func New(ctx context.Context, cfg Config) *Client {
	cfg = cfg.withDefaults()
	out := make(chan []byte, cfg.SendQueueDepth)
	in := make(chan wire.Message, cfg.RecvQueueDepth)

	go run(ctx, cfg, out, in)

	return &Client{cfg: cfg, Out: out, In: in}
}

func run(ctx context.Context, cfg Config, out <-chan []byte, in chan<- wire.Message) {
	defer close(in)

	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = 100 * time.Millisecond
	boff.MaxInterval = 10 * time.Second
	boff.MaxElapsedTime = 0 // retry forever; caller cancels ctx to stop

	first := true
	for {
		// A reconnect after the very first attempt reports Reconnecting
		// instead of Connecting, so a consuming UI can tell "first dial"
		// apart from "recovering from a drop".
		status := wire.StatusConnecting
		if !first {
			status = wire.StatusReconnecting
		}
		select {
		case in <- wire.Message{Status: &wire.StatusMsg{Kind: status}}:
		case <-ctx.Done():
			return
		}
		first = false

		connectOnce(ctx, cfg, out, in)
		if ctx.Err() != nil {
			return
		}
		if !cfg.AutoReconnect {
			return
		}

		select {
		case <-time.After(boff.NextBackOff()):
		case <-ctx.Done():
			return
		}
	}
}

// connectOnce dials addr once and pumps frames until the connection drops
// or ctx is cancelled, mirroring original_source's connect/select! loop
// with a Go reader/writer goroutine pair instead.
func connectOnce(ctx context.Context, cfg Config, out <-chan []byte, in chan<- wire.Message) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	// Closing conn on cancellation unblocks the reader and writer below.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	select {
	case in <- wire.Message{Status: &wire.StatusMsg{Kind: wire.StatusConnected}}:
	case <-ctx.Done():
		return ctx.Err()
	}

	errCh := make(chan error, 2)
	done := make(chan struct{})

	go func() {
		errCh <- writeLoop(conn, out, done)
	}()
	go func() {
		errCh <- readLoop(conn, in, done)
	}()

	err = <-errCh
	close(done)
	<-errCh

	select {
	case in <- wire.Message{Status: &wire.StatusMsg{Kind: wire.StatusDisconnected}}:
	case <-ctx.Done():
	}
	return err
}

func writeLoop(conn net.Conn, out <-chan []byte, done <-chan struct{}) error {
	w := bufio.NewWriter(conn)
	for {
		select {
		case <-done:
			return nil
		case frame, ok := <-out:
			if !ok {
				return nil
			}
			if _, err := w.Write(frame); err != nil {
				return err
			}
			if len(out) == 0 {
				if err := w.Flush(); err != nil {
					return err
				}
			}
		}
	}
}

func readLoop(conn net.Conn, in chan<- wire.Message, done <-chan struct{}) error {
	for {
		frame, err := wire.ReadFrame(conn, wire.DefaultMaxFrameSize)
		if err != nil {
			return err
		}
		msg, err := wire.Decode(frame)
		if err != nil {
			continue
		}
		select {
		case in <- msg:
		case <-done:
			return nil
		}
	}
}

// Join sends a ChannelJoin control frame for channel.
func (c *Client) Join(channel string) error {
	frame, err := wire.EncodeControlMsg(wire.KindChannelJoin, channel)
	if err != nil {
		return err
	}
	c.Out <- frame
	return nil
}

// Leave sends a ChannelLeave control frame for channel.
func (c *Client) Leave(channel string) error {
	frame, err := wire.EncodeControlMsg(wire.KindChannelLeave, channel)
	if err != nil {
		return err
	}
	c.Out <- frame
	return nil
}

// Publish sends content to channel, attributed to sender.
func (c *Client) Publish(sender, channel string, content []byte) error {
	frame, err := wire.EncodeChannelMsg(sender, channel, content)
	if err != nil {
		return err
	}
	c.Out <- frame
	return nil
}
