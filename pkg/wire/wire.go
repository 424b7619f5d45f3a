// Package wire implements the message-level framing spoken between the
// transport pusher and the ingest server: a fixed magic handshake followed
// by typed, length-prefixed messages. It deliberately stays above byte-level
// protocol details like RTMP chunking; a protocol-specific framer can wrap
// these messages without the state machine on either side changing.
package wire

import (
	"encoding/binary"
	"errors"
	"io"

	"gamestream/pkg/streamerr"
)

// MsgType identifies one framed message.
type MsgType uint8

const (
	MsgConnect MsgType = iota + 1
	MsgPublish
	MsgVideo
	MsgAudio
	MsgMetadata
	MsgDisconnect
	MsgAck
)

func (t MsgType) String() string {
	switch t {
	case MsgConnect:
		return "connect"
	case MsgPublish:
		return "publish"
	case MsgVideo:
		return "video"
	case MsgAudio:
		return "audio"
	case MsgMetadata:
		return "metadata"
	case MsgDisconnect:
		return "disconnect"
	case MsgAck:
		return "ack"
	default:
		return "unknown"
	}
}

// Message is one framed unit. Connect carries the app name as payload,
// Publish the stream key, media types their encoded payload.
type Message struct {
	Type      MsgType
	Timestamp uint64
	Payload   []byte
}

// Frame layout: 1 byte type, 8 byte timestamp, 4 byte payload length,
// then the payload.
const headerSize = 1 + 8 + 4

// MaxPayload bounds a single frame; anything larger is a framing error,
// not a legitimate packet.
const MaxPayload = 16 << 20

var handshakeMagic = [4]byte{'G', 'S', 'P', '1'}

// WriteMessage frames m onto w.
func WriteMessage(w io.Writer, m Message) error {
	if len(m.Payload) > MaxPayload {
		return streamerr.New(streamerr.KindSerialization, "payload of %d bytes exceeds frame limit", len(m.Payload))
	}
	var hdr [headerSize]byte
	hdr[0] = byte(m.Type)
	binary.BigEndian.PutUint64(hdr[1:9], m.Timestamp)
	binary.BigEndian.PutUint32(hdr[9:13], uint32(len(m.Payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return wrapIO(err)
	}
	if len(m.Payload) > 0 {
		if _, err := w.Write(m.Payload); err != nil {
			return wrapIO(err)
		}
	}
	return nil
}

// ReadMessage reads one framed message from r. A clean EOF at a frame
// boundary is reported as streamerr.ErrConnectionClosed.
func ReadMessage(r io.Reader) (Message, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Message{}, streamerr.ErrConnectionClosed
		}
		return Message{}, wrapIO(err)
	}
	m := Message{
		Type:      MsgType(hdr[0]),
		Timestamp: binary.BigEndian.Uint64(hdr[1:9]),
	}
	size := binary.BigEndian.Uint32(hdr[9:13])
	if size > MaxPayload {
		return Message{}, streamerr.New(streamerr.KindSerialization, "frame advertises %d bytes, limit is %d", size, MaxPayload)
	}
	if size > 0 {
		m.Payload = make([]byte, size)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return Message{}, wrapIO(err)
		}
	}
	return m, nil
}

// ClientHandshake sends the magic and waits for the server echo.
func ClientHandshake(rw io.ReadWriter) error {
	if _, err := rw.Write(handshakeMagic[:]); err != nil {
		return wrapIO(err)
	}
	return expectMagic(rw)
}

// ServerHandshake waits for the client magic and echoes it back.
func ServerHandshake(rw io.ReadWriter) error {
	if err := expectMagic(rw); err != nil {
		return err
	}
	if _, err := rw.Write(handshakeMagic[:]); err != nil {
		return wrapIO(err)
	}
	return nil
}

func expectMagic(r io.Reader) error {
	var got [4]byte
	if _, err := io.ReadFull(r, got[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return streamerr.ErrConnectionClosed
		}
		return wrapIO(err)
	}
	if got != handshakeMagic {
		return streamerr.New(streamerr.KindIngest, "bad handshake magic %q", got[:])
	}
	return nil
}

func wrapIO(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
		return streamerr.Wrap(streamerr.KindConnectionClosed, err, "connection")
	}
	return streamerr.Wrap(streamerr.KindIO, err, "wire")
}
