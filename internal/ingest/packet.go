package ingest

import (
	"gamestream/pkg/media"
	"gamestream/pkg/streamerr"
	"gamestream/pkg/wire"
)

// Packet classification is deterministic from the payload alone, so the
// wire format needs no side-band flags: FLV-style tag bytes carry the
// frame type and codec-config markers.

// videoKeyframe reports whether an FLV-tagged video payload is a keyframe
// (frame-type nibble 1).
func videoKeyframe(payload []byte) bool {
	return len(payload) > 0 && payload[0]>>4 == 1
}

// audioConfig reports whether an FLV-tagged audio payload is an AAC
// sequence header.
func audioConfig(payload []byte) bool {
	return len(payload) >= 2 && payload[0] == 0xAF && payload[1] == 0x00
}

// packetFromMessage classifies a media wire message into a packet.
func packetFromMessage(m wire.Message) (media.Packet, error) {
	switch m.Type {
	case wire.MsgVideo:
		return media.Packet{
			Kind:      media.KindVideo,
			Data:      m.Payload,
			Timestamp: m.Timestamp,
			Keyframe:  videoKeyframe(m.Payload),
		}, nil
	case wire.MsgAudio:
		return media.Packet{
			Kind:      media.KindAudio,
			Data:      m.Payload,
			Timestamp: m.Timestamp,
			Config:    audioConfig(m.Payload),
		}, nil
	case wire.MsgMetadata:
		return media.Packet{
			Kind:      media.KindMetadata,
			Data:      m.Payload,
			Timestamp: m.Timestamp,
		}, nil
	default:
		return media.Packet{}, streamerr.New(streamerr.KindIngest, "message type %s is not media", m.Type)
	}
}
