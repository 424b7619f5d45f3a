package wire

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamestream/pkg/streamerr"
)

func TestMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := Message{Type: MsgVideo, Timestamp: 123456789, Payload: []byte{0x17, 0x01, 0x00, 0x00}}
	require.NoError(t, WriteMessage(&buf, in))

	out, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, in.Type, out.Type)
	assert.Equal(t, in.Timestamp, out.Timestamp)
	assert.Equal(t, in.Payload, out.Payload)
}

func TestMessageRoundTrip_EmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, Message{Type: MsgDisconnect}))

	out, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgDisconnect, out.Type)
	assert.Empty(t, out.Payload)
}

func TestReadMessage_EOFIsConnectionClosed(t *testing.T) {
	_, err := ReadMessage(bytes.NewReader(nil))
	assert.Equal(t, streamerr.KindConnectionClosed, streamerr.KindOf(err))
}

func TestReadMessage_OversizedFrameRejected(t *testing.T) {
	var buf bytes.Buffer
	// Hand-build a header that lies about its payload size.
	hdr := make([]byte, headerSize)
	hdr[0] = byte(MsgVideo)
	hdr[9] = 0xFF
	hdr[10] = 0xFF
	hdr[11] = 0xFF
	hdr[12] = 0xFF
	buf.Write(hdr)

	_, err := ReadMessage(&buf)
	assert.Equal(t, streamerr.KindSerialization, streamerr.KindOf(err))
}

func TestHandshake(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- ServerHandshake(server) }()

	require.NoError(t, ClientHandshake(client))
	require.NoError(t, <-errCh)

	// The channel stays usable for framed messages afterwards.
	go func() { errCh <- WriteMessage(client, Message{Type: MsgConnect, Payload: []byte("live")}) }()
	msg, err := ReadMessage(server)
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	assert.Equal(t, MsgConnect, msg.Type)
	assert.Equal(t, "live", string(msg.Payload))
}

func TestHandshake_BadMagic(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		client.Write([]byte("NOPE"))
	}()

	err := ServerHandshake(server)
	assert.Equal(t, streamerr.KindIngest, streamerr.KindOf(err))
}
