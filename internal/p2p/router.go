package p2p

import (
	"github.com/chanbus/chanbus/internal/log"
	"github.com/chanbus/chanbus/internal/metrics"
)

// Router is the process-wide registry of peers and channels. Its state
// (the peers and channels maps) is owned exclusively by one goroutine —
// the actor loop started by NewRouter — which is the Go rendering of
// spec.md §5's "single-threaded cooperative, no locks" model: every public
// method round-trips through a command channel instead of taking a mutex.
// From the caller's point of view every method below is a plain
// synchronous call (spec.md §4.4 "all router calls are synchronous from
// the caller's perspective").
type Router struct {
	ops  chan func()
	done chan struct{}

	logger  log.Logger
	metrics *metrics.Metrics

	// onEviction, if set, is called with the channel id and count every
	// time Forward reaps one or more slow/closed subscribers. It must be
	// set once, before the router is handed to the acceptor/connection
	// goroutines that call Forward (see SetEvictionNotifier) — the actor
	// only ever reads it, never writes it.
	onEviction func(channel ChannelID, count int)

	// actor-owned state; touched only inside run().
	peers    map[PeerID]*PeerHandle
	channels map[ChannelID]*Channel
}

// NewRouter constructs a Router and starts its actor goroutine.
func NewRouter(logger log.Logger, m *metrics.Metrics) *Router {
	r := &Router{
		ops:      make(chan func(), 64),
		done:     make(chan struct{}),
		logger:   logger,
		metrics:  m,
		peers:    make(map[PeerID]*PeerHandle),
		channels: make(map[ChannelID]*Channel),
	}
	go r.run()
	return r
}

func (r *Router) run() {
	defer close(r.done)
	for op := range r.ops {
		op()
	}
}

// SetEvictionNotifier installs fn as the router's eviction callback (see
// Dashboard.RecordEviction). Call it before the router is shared with any
// other goroutine; it is not safe to call concurrently with Forward.
func (r *Router) SetEvictionNotifier(fn func(channel ChannelID, count int)) {
	r.onEviction = fn
}

// Close stops the actor goroutine. No further calls may be made after
// Close returns.
func (r *Router) Close() {
	close(r.ops)
	<-r.done
}

// do runs fn on the actor goroutine and blocks until it has completed.
func (r *Router) do(fn func()) {
	reply := make(chan struct{})
	r.ops <- func() {
		fn()
		close(reply)
	}
	<-reply
}

// PeerAdd registers a newly-connected peer (spec.md §4.4).
func (r *Router) PeerAdd(id PeerID, handle *PeerHandle) {
	r.do(func() {
		r.peers[id] = handle
		if r.metrics != nil {
			r.metrics.PeersActive.Set(float64(len(r.peers)))
		}
	})
}

// PeerRemove deregisters a disconnected peer. Its Channel subscriptions
// are not touched here — they are reaped lazily by Channel.Forward on its
// next attempt, per spec.md §4.4's Router invariant (ii).
func (r *Router) PeerRemove(id PeerID) {
	r.do(func() {
		delete(r.peers, id)
		if r.metrics != nil {
			r.metrics.PeersActive.Set(float64(len(r.peers)))
		}
	})
}

// Attach subscribes peer to channel, creating the channel if this is its
// first subscriber.
func (r *Router) Attach(channel ChannelID, peer PeerID, handle *PeerHandle) {
	r.do(func() {
		ch, ok := r.channels[channel]
		if !ok {
			ch = NewChannel(channel)
			r.channels[channel] = ch
			r.logger.Debug("channel created", "channel", string(channel))
		}
		ch.Subscribe(peer, handle)
		if r.metrics != nil {
			r.metrics.ChannelsActive.Set(float64(len(r.channels)))
		}
	})
}

// Detach unsubscribes peer from channel and destroys the channel if that
// was its last subscriber.
func (r *Router) Detach(channel ChannelID, peer PeerID) {
	r.do(func() {
		ch, ok := r.channels[channel]
		if !ok {
			return
		}
		_, empty := ch.Unsubscribe(peer)
		if empty {
			delete(r.channels, channel)
			r.logger.Debug("channel dropped", "channel", string(channel))
		}
		if r.metrics != nil {
			r.metrics.ChannelsActive.Set(float64(len(r.channels)))
		}
	})
}

// Forward fans a raw inbound frame out to every other subscriber of
// channel, creating the channel on demand if no one has joined it yet
// (spec.md §4.4's "lazy channel creation on forward" — a producer is never
// penalised for starting before any consumer). frame is the shared,
// read-only framed blob (prefix included); it is never copied per
// recipient.
func (r *Router) Forward(frame []byte, channel ChannelID, sender PeerID) (delivered int) {
	var evicted int
	r.do(func() {
		ch, ok := r.channels[channel]
		if !ok {
			ch = NewChannel(channel)
			r.channels[channel] = ch
			if r.metrics != nil {
				r.metrics.ChannelsActive.Set(float64(len(r.channels)))
			}
		}
		before := ch.Len()
		delivered = ch.Forward(frame, sender)
		evicted = before - ch.Len()

		if r.metrics != nil {
			if delivered > 0 {
				r.metrics.FramesForwarded.Add(float64(delivered))
				r.metrics.BytesForwarded.Add(float64(delivered * len(frame)))
			}
			if evicted > 0 {
				r.metrics.PeersEvicted.Add(float64(evicted))
			}
		}
	})
	// Run off the actor goroutine so a slow notifier (e.g. the dashboard's
	// mutex-guarded LRU) never delays the next routed message.
	if evicted > 0 && r.onEviction != nil {
		r.onEviction(channel, evicted)
	}
	return delivered
}

// Snapshot is a point-in-time, non-live copy of router state, used by the
// dashboard. Because it is produced inside the actor goroutine, it never
// races with PeerAdd/Attach/Forward/etc.
type Snapshot struct {
	Peers    int
	Channels map[ChannelID]int // channel -> subscriber count
}

// Snapshot returns a copy of the router's current peer/channel state.
func (r *Router) Snapshot() Snapshot {
	var snap Snapshot
	r.do(func() {
		snap.Peers = len(r.peers)
		snap.Channels = make(map[ChannelID]int, len(r.channels))
		for id, ch := range r.channels {
			snap.Channels[id] = ch.Len()
		}
	})
	return snap
}
