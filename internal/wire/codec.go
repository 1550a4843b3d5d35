package wire

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const (
	// LengthPrefixSize is the size in bytes of the big-endian frame length
	// prefix. It does not count itself.
	LengthPrefixSize = 4

	// DefaultMaxFrameSize bounds payload size absent configuration.
	DefaultMaxFrameSize = 16 << 20 // 16 MiB
)

// ErrFrameTooLarge is returned when a frame's declared length exceeds the
// configured cap. It is fatal to the connection (spec: malformed length
// prefix).
var ErrFrameTooLarge = errors.New("wire: frame exceeds configured size cap")

// ErrMalformedPayload is returned when a frame's payload cannot be parsed.
// The frame's bytes have already been fully consumed from the stream, so
// the caller may log and continue reading the next frame without any risk
// of desynchronising on the wire.
var ErrMalformedPayload = errors.New("wire: malformed frame payload")

// Frame is one decoded inbound frame. Raw holds the complete on-the-wire
// bytes (length prefix included) and is never mutated after construction,
// so it may be shared read-only across every fan-out recipient's egress
// queue without copying.
type Frame struct {
	Raw     []byte
	Kind    Kind
	Sender  string // populated for ChannelMsg and, as the empty string, ignored otherwise
	Channel string // populated for ChannelMsg and ControlMsg
}

// ReadFrame reads one length-prefixed frame from r and performs a
// header-only decode: for a ChannelMsg, Sender and Channel are parsed but
// Content is left untouched inside Raw (the REQUIRED fast path — the
// router never needs to look at Content to forward a frame). Control
// frames are fully parsed since there is no hot path for them.
//
// ReadFrame blocks on r the way any blocking io.Reader does; that block is
// this implementation's suspension point, standing in for the
// poll-and-resume Need(n) contract of a non-blocking decoder.
func ReadFrame(r io.Reader, maxFrameSize int) (*Frame, error) {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}

	var lenBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, errors.Wrap(err, "wire: read length prefix")
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if int(length) > maxFrameSize {
		return nil, ErrFrameTooLarge
	}

	raw := make([]byte, LengthPrefixSize+int(length))
	copy(raw, lenBuf[:])
	if length > 0 {
		if _, err := io.ReadFull(r, raw[LengthPrefixSize:]); err != nil {
			return nil, errors.Wrap(err, "wire: read frame body")
		}
	}

	return decodeHeader(raw)
}

// decodeHeader parses tag/sender/channel out of raw without touching
// content bytes.
func decodeHeader(raw []byte) (*Frame, error) {
	body := raw[LengthPrefixSize:]
	if len(body) < 1 {
		return nil, ErrMalformedPayload
	}
	kind := Kind(body[0])
	body = body[1:]

	switch kind {
	case KindChannelMsg:
		sender, rest, err := readLenPrefixed(body)
		if err != nil {
			return nil, err
		}
		channel, _, err := readLenPrefixed(rest)
		if err != nil {
			return nil, err
		}
		return &Frame{Raw: raw, Kind: kind, Sender: string(sender), Channel: string(channel)}, nil
	case KindChannelJoin, KindChannelLeave:
		channel, _, err := readLenPrefixed(body)
		if err != nil {
			return nil, err
		}
		return &Frame{Raw: raw, Kind: kind, Channel: string(channel)}, nil
	default:
		return nil, errors.Wrapf(ErrMalformedPayload, "unknown tag %d", kind)
	}
}

func readLenPrefixed(b []byte) (value, rest []byte, err error) {
	if len(b) < 2 {
		return nil, nil, ErrMalformedPayload
	}
	n := int(binary.BigEndian.Uint16(b))
	b = b[2:]
	if len(b) < n {
		return nil, nil, ErrMalformedPayload
	}
	return b[:n], b[n:], nil
}

// Content returns the ChannelMsg payload bytes of a frame produced by
// ReadFrame. It panics if f is not a ChannelMsg frame — callers are
// expected to check Kind first, mirroring the router's own unreachable-
// branch assumption (spec.md §9).
func (f *Frame) Content() []byte {
	if f.Kind != KindChannelMsg {
		panic("wire: Content called on non-ChannelMsg frame")
	}
	body := f.Raw[LengthPrefixSize+1:]
	_, rest, err := readLenPrefixed(body)
	if err != nil {
		return nil
	}
	content, rest, err := readLenPrefixed(rest)
	_ = content
	if err != nil {
		return nil
	}
	return rest
}

// EncodeChannelMsg builds a complete framed ChannelMsg blob.
func EncodeChannelMsg(sender, channel string, content []byte) ([]byte, error) {
	if len(sender) > 0xFFFF || len(channel) > 0xFFFF {
		return nil, errors.New("wire: sender/channel id too long")
	}
	bodyLen := 1 + 2 + len(sender) + 2 + len(channel) + len(content)
	buf := make([]byte, LengthPrefixSize+bodyLen)
	binary.BigEndian.PutUint32(buf[:4], uint32(bodyLen))
	off := LengthPrefixSize
	buf[off] = byte(KindChannelMsg)
	off++
	off += putLenPrefixed(buf[off:], sender)
	off += putLenPrefixed(buf[off:], channel)
	copy(buf[off:], content)
	return buf, nil
}

// EncodeControlMsg builds a complete framed join/leave control blob.
func EncodeControlMsg(kind Kind, channel string) ([]byte, error) {
	if kind != KindChannelJoin && kind != KindChannelLeave {
		return nil, errors.Errorf("wire: not a control kind: %v", kind)
	}
	if len(channel) > 0xFFFF {
		return nil, errors.New("wire: channel id too long")
	}
	bodyLen := 1 + 2 + len(channel)
	buf := make([]byte, LengthPrefixSize+bodyLen)
	binary.BigEndian.PutUint32(buf[:4], uint32(bodyLen))
	off := LengthPrefixSize
	buf[off] = byte(kind)
	off++
	putLenPrefixed(buf[off:], channel)
	return buf, nil
}

func putLenPrefixed(dst []byte, s string) int {
	binary.BigEndian.PutUint16(dst, uint16(len(s)))
	copy(dst[2:], s)
	return 2 + len(s)
}

// Decode fully materialises a Frame into a Message. Used on the slow path
// (control frames) and by client-side consumers that need ChannelMsg
// content.
func Decode(f *Frame) (Message, error) {
	switch f.Kind {
	case KindChannelMsg:
		return Message{Channel: &ChannelMsg{Sender: f.Sender, Channel: f.Channel, Content: f.Content()}}, nil
	case KindChannelJoin, KindChannelLeave:
		return Message{Control: &ControlMsg{Kind: f.Kind, Channel: f.Channel}}, nil
	default:
		return Message{}, errors.Wrapf(ErrMalformedPayload, "unknown tag %d", f.Kind)
	}
}
