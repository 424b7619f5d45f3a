// Package encoder turns raw captured frames into transport-ready media
// packets. Packets carry FLV-style tag headers so the receiving side can
// classify keyframes and codec configuration without decoding anything.
package encoder

import (
	"encoding/json"

	"gamestream/pkg/config"
	"gamestream/pkg/media"
	"gamestream/pkg/protocol"
	"gamestream/pkg/streamerr"
)

// VideoEncoder consumes raw video frames and emits encoded packets.
type VideoEncoder interface {
	Encode(frame media.RawFrame) ([]media.Packet, error)
	Flush() ([]media.Packet, error)
	Config() config.VideoEncodingConfig
}

// AudioEncoder consumes raw audio blocks and emits encoded packets. The
// first call also emits the codec configuration packet late joiners need.
type AudioEncoder interface {
	Encode(frame media.RawFrame) ([]media.Packet, error)
	Flush() ([]media.Packet, error)
	Config() config.AudioEncodingConfig
}

// NewVideoEncoder selects the encoder for the configured codec. Only H.264
// is supported; anything else fails at construction.
func NewVideoEncoder(cfg config.VideoEncodingConfig) (VideoEncoder, error) {
	switch cfg.Codec {
	case "h264":
		return newH264Encoder(cfg), nil
	default:
		return nil, streamerr.New(streamerr.KindCodec, "unsupported video codec %q", cfg.Codec)
	}
}

// NewAudioEncoder selects the encoder for the configured codec. Only AAC
// is supported; anything else fails at construction.
func NewAudioEncoder(cfg config.AudioEncodingConfig) (AudioEncoder, error) {
	switch cfg.Codec {
	case "aac":
		return newAACEncoder(cfg), nil
	default:
		return nil, streamerr.New(streamerr.KindCodec, "unsupported audio codec %q", cfg.Codec)
	}
}

// streamMetadata is the JSON payload of the session metadata packet.
type streamMetadata struct {
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
	Video       protocol.VideoParams `json:"video"`
	Audio       protocol.AudioParams `json:"audio"`
}

// MetadataPacket serializes the session's static parameters into the
// metadata packet sent once at session start.
func MetadataPacket(stream config.StreamPolicy, enc config.EncodingConfig, ts uint64) (media.Packet, error) {
	payload, err := json.Marshal(streamMetadata{
		Title:       stream.Title,
		Description: stream.Description,
		Video: protocol.VideoParams{
			Width:       enc.Video.Width,
			Height:      enc.Video.Height,
			FPS:         enc.Video.FPS,
			BitrateKbps: enc.Video.BitrateKbps,
			Codec:       enc.Video.Codec,
		},
		Audio: protocol.AudioParams{
			SampleRate:  enc.Audio.SampleRate,
			Channels:    enc.Audio.Channels,
			BitrateKbps: enc.Audio.BitrateKbps,
			Codec:       enc.Audio.Codec,
		},
	})
	if err != nil {
		return media.Packet{}, streamerr.Wrap(streamerr.KindSerialization, err, "encoding stream metadata")
	}
	return media.Packet{Kind: media.KindMetadata, Data: payload, Timestamp: ts}, nil
}

// ParseMetadata decodes a metadata packet payload back into the advertised
// stream parameters.
func ParseMetadata(data []byte) (title, description string, video protocol.VideoParams, audio protocol.AudioParams, err error) {
	var md streamMetadata
	if err = json.Unmarshal(data, &md); err != nil {
		err = streamerr.Wrap(streamerr.KindSerialization, err, "decoding stream metadata")
		return
	}
	return md.Title, md.Description, md.Video, md.Audio, nil
}
