// Package media holds the frame and packet types that flow through the
// capture → encode → push pipeline on the client and through the registry
// fan-out on the server.
package media

// Kind distinguishes the payload carried by a frame or packet.
type Kind uint8

const (
	KindVideo Kind = iota
	KindAudio
	KindMetadata
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

// RawFrame is one captured, unencoded frame. Video frames carry their
// dimensions; audio frames leave them zero. Timestamps are unix
// milliseconds and monotonic per kind.
type RawFrame struct {
	Kind      Kind
	Data      []byte
	Timestamp uint64
	Width     int
	Height    int
}

// Packet is one encoded unit ready for transport. Keyframe is only
// meaningful for video packets; Config marks codec configuration payloads
// (AAC audio specific config and friends) that late joiners need before
// regular packets make sense.
type Packet struct {
	Kind      Kind
	Data      []byte
	Timestamp uint64
	Keyframe  bool
	Config    bool
}
