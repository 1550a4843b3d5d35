// Package p2p implements the broker's routing core: peers, channels, the
// router actor, the per-connection task, and the acceptor loop.
package p2p

// PeerID identifies a connected client. In this broker it is always the
// stringified remote socket address (spec.md §3); equality and map-key
// behaviour come for free from the underlying string.
type PeerID string

// ChannelID identifies a logical topic, chosen by the client. spec.md §3
// allows either a caller-supplied string or a server-assigned dense key;
// this implementation takes the simpler string form and uses it directly
// as the map key in both Router and Channel.
type ChannelID string

// defaultEgressQueueDepth is used when a PeerHandle is constructed without
// an explicit depth (e.g. by tests).
const defaultEgressQueueDepth = 256

// PeerHandle is the producer endpoint of one peer's egress queue: a
// bounded, multi-producer/single-consumer channel of raw framed blobs. Its
// zero value is not usable; construct with NewPeerHandle.
type PeerHandle struct {
	id  PeerID
	out chan []byte
}

// NewPeerHandle creates a PeerHandle with the given egress queue depth.
// depth <= 0 falls back to defaultEgressQueueDepth.
func NewPeerHandle(id PeerID, depth int) *PeerHandle {
	if depth <= 0 {
		depth = defaultEgressQueueDepth
	}
	return &PeerHandle{id: id, out: make(chan []byte, depth)}
}

// ID returns the peer identity this handle was constructed with.
func (h *PeerHandle) ID() PeerID { return h.id }

// Send enqueues a raw framed blob for delivery to this peer's writer. It
// never blocks: a full queue is reported exactly like a closed one,
// because spec.md requires both to be equivalent for eviction purposes.
// frame is shared read-only with every other recipient of the same
// fan-out — Send never copies it.
func (h *PeerHandle) Send(frame []byte) bool {
	select {
	case h.out <- frame:
		return true
	default:
		return false
	}
}

// Out returns the consumer side of the egress queue. Only the connection
// task's writer goroutine may read from it.
func (h *PeerHandle) Out() <-chan []byte {
	return h.out
}
