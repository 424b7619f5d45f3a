// Package capture runs the client-side capture pipeline: paced loops that
// pull raw frames from a Source and hand them to the encoding stage.
package capture

import (
	"context"
	"time"

	"gamestream/pkg/config"
	"gamestream/pkg/logging"
	"gamestream/pkg/media"
)

// Source produces raw frames on demand. The OS capture backends implement
// this; the built-in synthetic source serves tests and headless runs.
type Source interface {
	CaptureVideo() (media.RawFrame, error)
	CaptureAudio() (media.RawFrame, error)
	Close() error
}

// audio is pulled in fixed blocks of this many samples per channel.
const audioBlockSamples = 1024

// captureBackoff is how long the loops wait after a failed capture before
// trying again.
const captureBackoff = 100 * time.Millisecond

// Pipeline paces a Source into a frame channel.
type Pipeline struct {
	src          Source
	frameGap     time.Duration
	audioGap     time.Duration
	audioEnabled bool
	logger       logging.Logger
}

// New builds a pipeline around src. Pacing comes from the encoding
// parameters: the video gap is 1s/fps, the audio gap is one block of
// samples at the configured rate.
func New(src Source, enc config.EncodingConfig, audio config.AudioSourceConfig, logger logging.Logger) *Pipeline {
	fps := enc.Video.FPS
	if fps <= 0 {
		fps = 30
	}
	rate := enc.Audio.SampleRate
	if rate <= 0 {
		rate = 44100
	}
	return &Pipeline{
		src:          src,
		frameGap:     time.Second / time.Duration(fps),
		audioGap:     time.Duration(audioBlockSamples) * time.Second / time.Duration(rate),
		audioEnabled: audio.Type != config.AudioSourceDisabled,
		logger:       logger,
	}
}

// RunVideo captures video frames at the configured rate until ctx is
// cancelled. Capture failures are logged and retried after a short backoff;
// they never end the loop.
func (p *Pipeline) RunVideo(ctx context.Context, out chan<- media.RawFrame) error {
	last := time.Now().Add(-p.frameGap)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		elapsed := time.Since(last)
		if elapsed < p.frameGap {
			if !sleep(ctx, p.frameGap-elapsed) {
				return ctx.Err()
			}
			continue
		}
		last = time.Now()

		frame, err := p.src.CaptureVideo()
		if err != nil {
			p.logger.WithError(err).Warn("Video capture failed")
			if !sleep(ctx, captureBackoff) {
				return ctx.Err()
			}
			continue
		}
		select {
		case out <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunAudio captures fixed-size audio blocks until ctx is cancelled.
// Returns immediately when the audio source is disabled.
func (p *Pipeline) RunAudio(ctx context.Context, out chan<- media.RawFrame) error {
	if !p.audioEnabled {
		return nil
	}
	last := time.Now().Add(-p.audioGap)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		elapsed := time.Since(last)
		if elapsed < p.audioGap {
			if !sleep(ctx, p.audioGap-elapsed) {
				return ctx.Err()
			}
			continue
		}
		last = time.Now()

		frame, err := p.src.CaptureAudio()
		if err != nil {
			p.logger.WithError(err).Warn("Audio capture failed")
			if !sleep(ctx, captureBackoff) {
				return ctx.Err()
			}
			continue
		}
		select {
		case out <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// sleep waits for d or until ctx is done, reporting whether the full wait
// completed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
