package p2p

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"

	"github.com/chanbus/chanbus/internal/log"
	"github.com/chanbus/chanbus/internal/wire"
)

// dialTestConn opens a loopback TCP connection whose server side is handed
// to Handle, running under ctx. It returns the client-side net.Conn.
func dialTestConn(t *testing.T, ctx context.Context, router *Router) net.Conn {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	server := <-accepted
	cfg := ConnectionConfig{EgressQueueDepth: 8, MaxFrameSize: wire.DefaultMaxFrameSize}
	go Handle(ctx, server, router, cfg, log.Nop(), nil)

	return client
}

func readOneFrame(t *testing.T, conn net.Conn) *wire.Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	frame, err := wire.ReadFrame(conn, wire.DefaultMaxFrameSize)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	return frame
}

func TestConnectionEndToEndFanOut(t *testing.T) {
	defer leaktest.CheckTimeout(t, 2*time.Second)()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router := NewRouter(log.Nop(), nil)
	defer func() {
		// Handle's cleanup calls PeerRemove and no router call may follow
		// Close, so stop the connections and wait for them to deregister.
		cancel()
		deadline := time.Now().Add(2 * time.Second)
		for router.Snapshot().Peers != 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		router.Close()
	}()

	producer := dialTestConn(t, ctx, router)
	sub1 := dialTestConn(t, ctx, router)
	sub2 := dialTestConn(t, ctx, router)

	join, err := wire.EncodeControlMsg(wire.KindChannelJoin, "room")
	if err != nil {
		t.Fatalf("encode join: %v", err)
	}
	if _, err := sub1.Write(join); err != nil {
		t.Fatalf("sub1 join: %v", err)
	}
	if _, err := sub2.Write(join); err != nil {
		t.Fatalf("sub2 join: %v", err)
	}
	time.Sleep(100 * time.Millisecond) // let both joins reach the router actor

	msg, err := wire.EncodeChannelMsg("producer", "room", []byte("payload"))
	if err != nil {
		t.Fatalf("encode msg: %v", err)
	}
	if _, err := producer.Write(msg); err != nil {
		t.Fatalf("producer write: %v", err)
	}

	for _, sub := range []net.Conn{sub1, sub2} {
		frame := readOneFrame(t, sub)
		if frame.Kind != wire.KindChannelMsg || frame.Channel != "room" || frame.Sender != "producer" {
			t.Fatalf("unexpected frame: %+v", frame)
		}
		if string(frame.Content()) != "payload" {
			t.Fatalf("content = %q, want %q", frame.Content(), "payload")
		}
	}
}

func TestConnectionCleanDisconnectRemovesPeer(t *testing.T) {
	defer leaktest.CheckTimeout(t, 2*time.Second)()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router := NewRouter(log.Nop(), nil)
	defer router.Close()

	a := dialTestConn(t, ctx, router)
	_ = a.Close()

	// Give the reader goroutine time to observe EOF and call PeerRemove.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if router.Snapshot().Peers == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("peer was not removed from router after clean disconnect")
}
