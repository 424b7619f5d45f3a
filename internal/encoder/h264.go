package encoder

import (
	"gamestream/pkg/config"
	"gamestream/pkg/media"
	"gamestream/pkg/streamerr"
)

// FLV video tag header bytes. The high nibble of the first byte carries the
// frame type, the low nibble the codec id (7 = AVC).
const (
	flvVideoKeyframe   = 0x17
	flvVideoInterframe = 0x27
)

// h264Encoder is a software baseline encoder. It produces AVC-tagged packets
// with the configured keyframe cadence and a payload budget derived from the
// target bitrate.
type h264Encoder struct {
	cfg     config.VideoEncodingConfig
	cadence uint64
	frameN  uint64
	lastTS  uint64
}

func newH264Encoder(cfg config.VideoEncodingConfig) *h264Encoder {
	fps := cfg.FPS
	if fps <= 0 {
		fps = 30
	}
	interval := cfg.KeyframeIntervalSec
	if interval <= 0 {
		interval = 2
	}
	return &h264Encoder{
		cfg:     cfg,
		cadence: uint64(interval) * uint64(fps),
	}
}

func (e *h264Encoder) Config() config.VideoEncodingConfig { return e.cfg }

// Encode produces one packet per frame. The first frame and every cadence-th
// frame after it are keyframes.
func (e *h264Encoder) Encode(frame media.RawFrame) ([]media.Packet, error) {
	if frame.Kind != media.KindVideo {
		return nil, streamerr.New(streamerr.KindCodec, "h264 encoder fed a %s frame", frame.Kind)
	}
	e.frameN++
	keyframe := (e.frameN-1)%e.cadence == 0

	ts := frame.Timestamp
	if ts <= e.lastTS {
		ts = e.lastTS + 1
	}
	e.lastTS = ts

	return []media.Packet{{
		Kind:      media.KindVideo,
		Data:      e.compress(frame.Data, keyframe),
		Timestamp: ts,
		Keyframe:  keyframe,
	}}, nil
}

func (e *h264Encoder) Flush() ([]media.Packet, error) { return nil, nil }

// compress shrinks the raw frame to the per-frame bitrate budget by
// sampling bytes at a fixed stride. Keyframes get triple the budget; the
// FLV header byte goes first so receivers can classify the packet.
func (e *h264Encoder) compress(raw []byte, keyframe bool) []byte {
	fps := e.cfg.FPS
	if fps <= 0 {
		fps = 30
	}
	budget := e.cfg.BitrateKbps * 1000 / 8 / fps
	if keyframe {
		budget *= 3
	}
	if budget <= 0 || budget > len(raw) {
		budget = len(raw)
	}

	header := byte(flvVideoInterframe)
	if keyframe {
		header = flvVideoKeyframe
	}
	out := make([]byte, 0, budget+1)
	out = append(out, header)
	if budget > 0 && len(raw) > 0 {
		stride := len(raw) / budget
		if stride < 1 {
			stride = 1
		}
		for i := 0; i < len(raw) && len(out) < budget+1; i += stride {
			out = append(out, raw[i])
		}
	}
	return out
}
