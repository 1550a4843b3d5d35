package p2p

// Channel is a live topic: a set of subscribed peer handles. It is never
// accessed from more than one goroutine at a time — every method is only
// ever called from inside the router actor's goroutine (see router.go) —
// so it needs no internal locking.
type Channel struct {
	id            ChannelID
	subscriptions map[PeerID]*PeerHandle
}

// NewChannel constructs an empty Channel. Channels are normally created
// lazily by the router on first join or first forward (spec.md §4.4).
func NewChannel(id ChannelID) *Channel {
	return &Channel{id: id, subscriptions: make(map[PeerID]*PeerHandle)}
}

// ID returns the channel's id.
func (c *Channel) ID() ChannelID { return c.id }

// Subscribe adds or replaces the subscription for peer. A second
// subscribe by the same peer id replaces the previous handle (spec.md
// §4.4 "latest handle wins").
func (c *Channel) Subscribe(peer PeerID, handle *PeerHandle) {
	c.subscriptions[peer] = handle
}

// Unsubscribe removes peer's subscription, if present, and reports whether
// the channel is now empty (the router uses this to decide whether to
// garbage-collect the channel).
func (c *Channel) Unsubscribe(peer PeerID) (removed, empty bool) {
	if _, ok := c.subscriptions[peer]; ok {
		delete(c.subscriptions, peer)
		removed = true
	}
	return removed, len(c.subscriptions) == 0
}

// Len reports the current subscriber count.
func (c *Channel) Len() int { return len(c.subscriptions) }

// Forward delivers frame to every subscriber except sender, reaping any
// subscriber whose queue rejects the send (full or closed — spec.md §4.3
// treats them identically) in the same pass. It returns the number of
// successful deliveries.
func (c *Channel) Forward(frame []byte, sender PeerID) (delivered int) {
	for id, handle := range c.subscriptions {
		if id == sender {
			continue
		}
		if handle.Send(frame) {
			delivered++
		} else {
			delete(c.subscriptions, id)
		}
	}
	return delivered
}
