package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/chanbus/chanbus/internal/wire"
)

// echoServer accepts one connection, decodes every frame it reads and
// writes it straight back, so the test client can observe its own
// round-tripped messages.
func echoServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			frame, err := wire.ReadFrame(conn, wire.DefaultMaxFrameSize)
			if err != nil {
				return
			}
			if _, err := conn.Write(frame.Raw); err != nil {
				return
			}
		}
	}()

	return ln.Addr().String()
}

func TestClientStatusSequenceOnConnect(t *testing.T) {
	addr := echoServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := New(ctx, Config{Addr: addr})

	want := []wire.StatusKind{wire.StatusConnecting, wire.StatusConnected}
	for _, w := range want {
		select {
		case msg := <-c.In:
			if msg.Status == nil || msg.Status.Kind != w {
				t.Fatalf("got %+v, want status %v", msg, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for status %v", w)
		}
	}
}

func TestClientPublishRoundTrips(t *testing.T) {
	addr := echoServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := New(ctx, Config{Addr: addr})

	// drain Connecting/Connected
	for i := 0; i < 2; i++ {
		<-c.In
	}

	if err := c.Publish("me", "room", []byte("hello")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-c.In:
		if msg.Channel == nil || string(msg.Channel.Content) != "hello" {
			t.Fatalf("got %+v, want echoed ChannelMsg with content %q", msg, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed message")
	}
}

func TestClientDisconnectWithoutAutoReconnectClosesIn(t *testing.T) {
	addr := echoServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := New(ctx, Config{Addr: addr, AutoReconnect: false})

	for i := 0; i < 2; i++ {
		<-c.In
	}

	cancel()

	select {
	case _, ok := <-c.In:
		if ok {
			// a Disconnected event may still arrive before the channel closes
			<-c.In
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for In to close after ctx cancellation")
	}
}
