package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamestream/pkg/config"
	"gamestream/pkg/logging"
	"gamestream/pkg/media"
	"gamestream/pkg/streamerr"
)

func testEncoding() config.EncodingConfig {
	enc := config.DefaultClientConfig().Encoding
	enc.Video.Width = 32
	enc.Video.Height = 16
	enc.Video.FPS = 100
	return enc
}

func TestNewSourceRejectsUnknownTypes(t *testing.T) {
	capt := config.DefaultClientConfig().Capture
	capt.Video.Type = "hologram"
	_, err := NewSource(capt, testEncoding())
	require.Error(t, err)
	assert.True(t, streamerr.Is(err, streamerr.KindCapture))

	capt = config.DefaultClientConfig().Capture
	capt.Audio.Type = "telepathy"
	_, err = NewSource(capt, testEncoding())
	require.Error(t, err)
	assert.True(t, streamerr.Is(err, streamerr.KindCapture))
}

func TestNewSourceRegionDimensions(t *testing.T) {
	capt := config.DefaultClientConfig().Capture
	capt.Video = config.VideoSourceConfig{Type: config.VideoSourceRegion, X: 10, Y: 10, Width: 64, Height: 48}
	src, err := NewSource(capt, testEncoding())
	require.NoError(t, err)

	frame, err := src.CaptureVideo()
	require.NoError(t, err)
	assert.Equal(t, 64, frame.Width)
	assert.Equal(t, 48, frame.Height)
	assert.Len(t, frame.Data, 64*48*4)
}

func TestNewSourceRegionRejectsZeroSize(t *testing.T) {
	capt := config.DefaultClientConfig().Capture
	capt.Video = config.VideoSourceConfig{Type: config.VideoSourceRegion}
	_, err := NewSource(capt, testEncoding())
	require.Error(t, err)
}

func TestSyntheticAudioBlockSize(t *testing.T) {
	src, err := NewSource(config.DefaultClientConfig().Capture, testEncoding())
	require.NoError(t, err)

	frame, err := src.CaptureAudio()
	require.NoError(t, err)
	assert.Equal(t, media.KindAudio, frame.Kind)
	assert.Len(t, frame.Data, audioBlockSamples*2*2)
}

type flakySource struct {
	calls int
}

func (f *flakySource) CaptureVideo() (media.RawFrame, error) {
	f.calls++
	if f.calls == 1 {
		return media.RawFrame{}, errors.New("transient")
	}
	return media.RawFrame{Kind: media.KindVideo, Timestamp: uint64(f.calls)}, nil
}

func (f *flakySource) CaptureAudio() (media.RawFrame, error) {
	return media.RawFrame{Kind: media.KindAudio}, nil
}

func (f *flakySource) Close() error { return nil }

func TestRunVideoSurvivesCaptureFailure(t *testing.T) {
	src := &flakySource{}
	p := New(src, testEncoding(), config.AudioSourceConfig{Type: config.AudioSourceDefault}, logging.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan media.RawFrame, 4)
	done := make(chan error, 1)
	go func() { done <- p.RunVideo(ctx, out) }()

	// The first capture fails; the loop must still deliver later frames.
	select {
	case frame := <-out:
		assert.Equal(t, media.KindVideo, frame.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered after capture failure")
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.GreaterOrEqual(t, src.calls, 2)
}

func TestRunAudioDisabledReturnsImmediately(t *testing.T) {
	src := &flakySource{}
	p := New(src, testEncoding(), config.AudioSourceConfig{Type: config.AudioSourceDisabled}, logging.NewLogger())

	err := p.RunAudio(context.Background(), nil)
	assert.NoError(t, err)
}

func TestRunVideoStopsOnCancel(t *testing.T) {
	src := &flakySource{calls: 1} // skip the failing first call
	p := New(src, testEncoding(), config.AudioSourceConfig{Type: config.AudioSourceDefault}, logging.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.RunVideo(ctx, make(chan media.RawFrame))
	require.ErrorIs(t, err, context.Canceled)
}
