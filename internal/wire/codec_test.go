package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripChannelMsg(t *testing.T) {
	raw, err := EncodeChannelMsg("peer-a", "room1", []byte("hello world"))
	require.NoError(t, err)

	f, err := ReadFrame(bytes.NewReader(raw), 0)
	require.NoError(t, err)
	require.Equal(t, KindChannelMsg, f.Kind)
	require.Equal(t, "peer-a", f.Sender)
	require.Equal(t, "room1", f.Channel)
	require.Equal(t, []byte("hello world"), f.Content())

	msg, err := Decode(f)
	require.NoError(t, err)
	require.NotNil(t, msg.Channel)
	require.Equal(t, "peer-a", msg.Channel.Sender)
	require.Equal(t, "room1", msg.Channel.Channel)
	require.Equal(t, []byte("hello world"), msg.Channel.Content)
}

func TestRoundTripControlMsg(t *testing.T) {
	for _, kind := range []Kind{KindChannelJoin, KindChannelLeave} {
		raw, err := EncodeControlMsg(kind, "topic")
		require.NoError(t, err)

		f, err := ReadFrame(bytes.NewReader(raw), 0)
		require.NoError(t, err)
		require.Equal(t, kind, f.Kind)
		require.Equal(t, "topic", f.Channel)

		msg, err := Decode(f)
		require.NoError(t, err)
		require.NotNil(t, msg.Control)
		require.Equal(t, kind, msg.Control.Kind)
		require.Equal(t, "topic", msg.Control.Channel)
	}
}

func TestReadFrameEmptyContent(t *testing.T) {
	raw, err := EncodeChannelMsg("p", "c", nil)
	require.NoError(t, err)
	f, err := ReadFrame(bytes.NewReader(raw), 0)
	require.NoError(t, err)
	require.Empty(t, f.Content())
}

// TestReadFrameSplitAcrossReads feeds the decoder a stream where a valid
// frame arrives across three separate Read boundaries, exercising the
// io.ReadFull-based resumability described in spec.md §4.1 / §8 scenario 6.
func TestReadFrameSplitAcrossReads(t *testing.T) {
	raw, err := EncodeChannelMsg("sender", "chan", []byte("payload-bytes"))
	require.NoError(t, err)

	r1 := raw[:2]
	r2 := raw[2:10]
	r3 := raw[10:]

	pr, pw := io.Pipe()
	go func() {
		_, _ = pw.Write(r1)
		_, _ = pw.Write(r2)
		_, _ = pw.Write(r3)
		_ = pw.Close()
	}()

	f, err := ReadFrame(pr, 0)
	require.NoError(t, err)
	require.Equal(t, "sender", f.Sender)
	require.Equal(t, "chan", f.Channel)
	require.Equal(t, []byte("payload-bytes"), f.Content())
}

func TestReadFrameTooLarge(t *testing.T) {
	raw, err := EncodeChannelMsg("p", "c", make([]byte, 100))
	require.NoError(t, err)

	_, err = ReadFrame(bytes.NewReader(raw), 10)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadFrameMalformedPayloadDoesNotDesync(t *testing.T) {
	good, err := EncodeChannelMsg("p", "c", []byte("next-frame-survives"))
	require.NoError(t, err)

	// A frame whose declared body is a single unknown tag byte, followed by
	// a perfectly valid frame. Decoding the first must fail without
	// consuming any bytes belonging to the second.
	bad := []byte{0x00, 0x00, 0x00, 0x01, 0xFF}
	stream := append(append([]byte{}, bad...), good...)

	r := bytes.NewReader(stream)
	_, err = ReadFrame(r, 0)
	require.ErrorIs(t, err, ErrMalformedPayload)

	f, err := ReadFrame(r, 0)
	require.NoError(t, err)
	require.Equal(t, "p", f.Sender)
	require.Equal(t, "c", f.Channel)
	require.Equal(t, []byte("next-frame-survives"), f.Content())
}

func TestReadFrameEOF(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil), 0)
	require.ErrorIs(t, err, io.EOF)
}
