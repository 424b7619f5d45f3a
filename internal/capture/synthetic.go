package capture

import (
	"math"
	"time"

	"gamestream/pkg/config"
	"gamestream/pkg/media"
	"gamestream/pkg/streamerr"
)

// SyntheticSource generates RGBA video frames and S16LE audio blocks sized
// from the configuration. It stands in for the OS capture backends, which
// plug in behind the same Source interface.
type SyntheticSource struct {
	width      int
	height     int
	sampleRate int
	channels   int
	frameN     uint64
	audioN     uint64
}

// NewSource validates the capture configuration and returns the synthetic
// source for it. Region sources take their dimensions from the region;
// screen and window sources fall back to the encoding dimensions.
func NewSource(capt config.CaptureConfig, enc config.EncodingConfig) (Source, error) {
	width, height := enc.Video.Width, enc.Video.Height
	switch capt.Video.Type {
	case config.VideoSourceScreen, config.VideoSourceWindow:
	case config.VideoSourceRegion:
		if capt.Video.Width <= 0 || capt.Video.Height <= 0 {
			return nil, streamerr.New(streamerr.KindCapture, "region source needs positive dimensions, got %dx%d",
				capt.Video.Width, capt.Video.Height)
		}
		width, height = capt.Video.Width, capt.Video.Height
	default:
		return nil, streamerr.New(streamerr.KindCapture, "unknown video source type %q", capt.Video.Type)
	}

	switch capt.Audio.Type {
	case config.AudioSourceDefault, config.AudioSourceDevice, config.AudioSourceDisabled:
	default:
		return nil, streamerr.New(streamerr.KindCapture, "unknown audio source type %q", capt.Audio.Type)
	}

	return &SyntheticSource{
		width:      width,
		height:     height,
		sampleRate: enc.Audio.SampleRate,
		channels:   enc.Audio.Channels,
	}, nil
}

// CaptureVideo produces one RGBA frame with a moving gradient so successive
// frames differ.
func (s *SyntheticSource) CaptureVideo() (media.RawFrame, error) {
	data := make([]byte, s.width*s.height*4)
	shift := byte(s.frameN)
	for y := 0; y < s.height; y++ {
		row := y * s.width * 4
		for x := 0; x < s.width; x++ {
			i := row + x*4
			data[i] = byte(x) + shift
			data[i+1] = byte(y) + shift
			data[i+2] = shift
			data[i+3] = 0xff
		}
	}
	s.frameN++
	return media.RawFrame{
		Kind:      media.KindVideo,
		Data:      data,
		Timestamp: uint64(time.Now().UnixMilli()),
		Width:     s.width,
		Height:    s.height,
	}, nil
}

// CaptureAudio produces one block of interleaved S16LE sine-wave samples.
func (s *SyntheticSource) CaptureAudio() (media.RawFrame, error) {
	channels := s.channels
	if channels <= 0 {
		channels = 2
	}
	rate := s.sampleRate
	if rate <= 0 {
		rate = 44100
	}
	data := make([]byte, audioBlockSamples*channels*2)
	base := s.audioN * audioBlockSamples
	for i := 0; i < audioBlockSamples; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(base+uint64(i))/float64(rate)))
		for c := 0; c < channels; c++ {
			j := (i*channels + c) * 2
			data[j] = byte(v)
			data[j+1] = byte(v >> 8)
		}
	}
	s.audioN++
	return media.RawFrame{
		Kind:      media.KindAudio,
		Data:      data,
		Timestamp: uint64(time.Now().UnixMilli()),
	}, nil
}

func (s *SyntheticSource) Close() error { return nil }
