// Package wire implements the broker's framed wire protocol: a length-
// prefixed codec for a small tagged-variant message type.
package wire

import "fmt"

// Kind identifies which variant a Message holds.
type Kind uint8

const (
	// KindChannelMsg carries an opaque payload published to a channel.
	KindChannelMsg Kind = iota
	// KindChannelJoin subscribes the sending connection to a channel.
	KindChannelJoin
	// KindChannelLeave unsubscribes the sending connection from a channel.
	KindChannelLeave
)

func (k Kind) String() string {
	switch k {
	case KindChannelMsg:
		return "ChannelMsg"
	case KindChannelJoin:
		return "ChannelJoin"
	case KindChannelLeave:
		return "ChannelLeave"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ChannelMsg is a published payload. Sender and Channel are part of the
// frame header (decoded without touching Content); Content is the
// remainder of the frame.
type ChannelMsg struct {
	Sender  string
	Channel string
	Content []byte
}

// ControlMsg is either a join or a leave; Kind distinguishes the two.
type ControlMsg struct {
	Kind    Kind // KindChannelJoin or KindChannelLeave
	Channel string
}

// StatusKind enumerates locally-synthesised client states. StatusMsg never
// travels over the wire; it is produced by the client helper only.
type StatusKind uint8

const (
	StatusConnecting StatusKind = iota
	StatusConnected
	StatusReconnecting
	StatusDisconnected
)

func (s StatusKind) String() string {
	switch s {
	case StatusConnecting:
		return "Connecting"
	case StatusConnected:
		return "Connected"
	case StatusReconnecting:
		return "Reconnecting"
	case StatusDisconnected:
		return "Disconnected"
	default:
		return fmt.Sprintf("StatusKind(%d)", uint8(s))
	}
}

// StatusMsg is emitted locally by the client-side helper; it is never
// decoded off the wire.
type StatusMsg struct {
	Kind StatusKind
}

// Message is a decoded frame payload, fully materialised (the slow path).
// ChannelMsg frames are normally handled via the header-only Frame view
// (codec.go) instead; Message exists for control frames and for client-side
// consumers that need the full ChannelMsg content.
type Message struct {
	Channel *ChannelMsg
	Control *ControlMsg
	Status  *StatusMsg
}
