package encoder

import (
	"gamestream/pkg/config"
	"gamestream/pkg/media"
	"gamestream/pkg/streamerr"
)

// FLV audio tag header bytes: 0xAF marks AAC at full rate; the second byte
// distinguishes a sequence header (codec config) from raw frames.
const (
	flvAudioAAC       = 0xAF
	aacSequenceHeader = 0x00
	aacRawFrame       = 0x01
)

// aacEncoder wraps audio blocks in AAC-tagged packets. Its first Encode
// also emits the AudioSpecificConfig packet that late joiners need before
// raw frames make sense.
type aacEncoder struct {
	cfg        config.AudioEncodingConfig
	sentConfig bool
	lastTS     uint64
}

func newAACEncoder(cfg config.AudioEncodingConfig) *aacEncoder {
	return &aacEncoder{cfg: cfg}
}

func (e *aacEncoder) Config() config.AudioEncodingConfig { return e.cfg }

func (e *aacEncoder) Encode(frame media.RawFrame) ([]media.Packet, error) {
	if frame.Kind != media.KindAudio {
		return nil, streamerr.New(streamerr.KindCodec, "aac encoder fed a %s frame", frame.Kind)
	}

	ts := frame.Timestamp
	if ts <= e.lastTS {
		ts = e.lastTS + 1
	}
	e.lastTS = ts

	var packets []media.Packet
	if !e.sentConfig {
		e.sentConfig = true
		packets = append(packets, media.Packet{
			Kind:      media.KindAudio,
			Data:      append([]byte{flvAudioAAC, aacSequenceHeader}, audioSpecificConfig(e.cfg)...),
			Timestamp: ts,
			Config:    true,
		})
		ts++
		e.lastTS = ts
	}

	data := make([]byte, 0, len(frame.Data)+2)
	data = append(data, flvAudioAAC, aacRawFrame)
	data = append(data, frame.Data...)
	packets = append(packets, media.Packet{
		Kind:      media.KindAudio,
		Data:      data,
		Timestamp: ts,
	})
	return packets, nil
}

func (e *aacEncoder) Flush() ([]media.Packet, error) { return nil, nil }

// sampleRateIndices is the MPEG-4 sampling frequency index table.
var sampleRateIndices = map[int]byte{
	96000: 0, 88200: 1, 64000: 2, 48000: 3, 44100: 4, 32000: 5,
	24000: 6, 22050: 7, 16000: 8, 12000: 9, 11025: 10, 8000: 11,
}

// audioSpecificConfig builds the two-byte MPEG-4 AudioSpecificConfig for
// AAC-LC: 5 bits object type, 4 bits frequency index, 4 bits channels.
func audioSpecificConfig(cfg config.AudioEncodingConfig) []byte {
	const objectTypeAACLC = 2
	idx, ok := sampleRateIndices[cfg.SampleRate]
	if !ok {
		idx = 4 // 44100
	}
	channels := byte(cfg.Channels)
	if channels == 0 {
		channels = 2
	}
	return []byte{
		objectTypeAACLC<<3 | idx>>1,
		idx<<7 | channels<<3,
	}
}
