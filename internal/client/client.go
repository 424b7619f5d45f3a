// Package client supervises the capture → encode → push pipeline: it wires
// the stages together for one streaming attempt and retries whole attempts
// under the configured reconnect policy.
package client

import (
	"context"
	"errors"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/sync/errgroup"

	"gamestream/internal/capture"
	"gamestream/internal/encoder"
	"gamestream/internal/pusher"
	"gamestream/pkg/config"
	"gamestream/pkg/logging"
	"gamestream/pkg/media"
)

// queueCap bounds the inter-stage channels. The configured buffer size is
// in bytes; dividing by a nominal packet size keeps the queues proportional
// without holding thousands of frames.
func queueCap(cfg config.NetworkConfig) int {
	depth := cfg.BufferSize / 4096
	if depth < 16 {
		depth = 16
	}
	if depth > 256 {
		depth = 256
	}
	return depth
}

// Session is one configured streaming client. Every attempt constructs
// fresh capture, encoder and pusher instances; nothing carries over between
// attempts except the configuration.
type Session struct {
	cfg    config.ClientConfig
	logger logging.Logger

	// Factories, swappable in tests.
	newSource func(config.CaptureConfig, config.EncodingConfig) (capture.Source, error)
	newPusher func(config.ClientConfig, logging.Logger) (pusher.Pusher, error)
}

// New builds a session around cfg.
func New(cfg config.ClientConfig, logger logging.Logger) *Session {
	return &Session{
		cfg:       cfg,
		logger:    logger,
		newSource: capture.NewSource,
		newPusher: pusher.New,
	}
}

// Run streams until ctx is cancelled or the reconnect policy is exhausted.
// With auto_reconnect on, a failed attempt is retried up to
// max_reconnect_attempts times with reconnect_interval between attempts;
// the last error is returned when the policy gives up.
func (s *Session) Run(ctx context.Context) error {
	builder := retrypolicy.NewBuilder[any]().
		AbortOnErrors(context.Canceled)
	if s.cfg.Stream.AutoReconnect {
		builder = builder.WithMaxRetries(s.cfg.Stream.MaxReconnectAttempts)
		if s.cfg.Stream.ReconnectIntervalSec > 0 {
			builder = builder.WithDelay(time.Duration(s.cfg.Stream.ReconnectIntervalSec) * time.Second)
		}
		builder = builder.OnRetryScheduled(func(e failsafe.ExecutionScheduledEvent[any]) {
			s.logger.WithFields(logging.Fields{
				"attempt": e.Attempts(),
				"error":   e.LastError(),
			}).Warn("Stream attempt failed, reconnecting")
		})
	} else {
		builder = builder.WithMaxRetries(0)
	}

	err := failsafe.With(builder.Build()).WithContext(ctx).Run(func() error {
		return s.attempt(ctx)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// attempt runs one full pipeline until something fails or ctx ends.
func (s *Session) attempt(ctx context.Context) error {
	src, err := s.newSource(s.cfg.Capture, s.cfg.Encoding)
	if err != nil {
		return err
	}
	defer src.Close()

	videoEnc, err := encoder.NewVideoEncoder(s.cfg.Encoding.Video)
	if err != nil {
		return err
	}
	audioEnc, err := encoder.NewAudioEncoder(s.cfg.Encoding.Audio)
	if err != nil {
		return err
	}

	push, err := s.newPusher(s.cfg, s.logger)
	if err != nil {
		return err
	}
	if err := push.Connect(ctx); err != nil {
		return err
	}
	defer push.Disconnect()

	pipeline := capture.New(src, s.cfg.Encoding, s.cfg.Capture.Audio, s.logger)

	depth := queueCap(s.cfg.Network)
	frames := make(chan media.RawFrame, depth)
	packets := make(chan media.Packet, depth)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pipeline.RunVideo(ctx, frames) })
	g.Go(func() error { return pipeline.RunAudio(ctx, frames) })
	g.Go(func() error { return s.encodeStage(ctx, videoEnc, audioEnc, frames, packets) })
	g.Go(func() error { return s.pushStage(ctx, push, packets) })

	return g.Wait()
}

// encodeStage dispatches raw frames to the encoder for their kind. The
// session metadata packet goes out first so the server caches it before any
// media arrives.
func (s *Session) encodeStage(ctx context.Context, videoEnc encoder.VideoEncoder, audioEnc encoder.AudioEncoder, frames <-chan media.RawFrame, packets chan<- media.Packet) error {
	meta, err := encoder.MetadataPacket(s.cfg.Stream, s.cfg.Encoding, uint64(time.Now().UnixMilli()))
	if err != nil {
		return err
	}
	select {
	case packets <- meta:
	case <-ctx.Done():
		return ctx.Err()
	}

	for {
		var frame media.RawFrame
		select {
		case frame = <-frames:
		case <-ctx.Done():
			return ctx.Err()
		}

		var out []media.Packet
		switch frame.Kind {
		case media.KindVideo:
			out, err = videoEnc.Encode(frame)
		case media.KindAudio:
			out, err = audioEnc.Encode(frame)
		default:
			continue
		}
		if err != nil {
			// A bad frame is dropped; the stream keeps going.
			s.logger.WithError(err).WithField("kind", frame.Kind).Warn("Encode failed, skipping frame")
			continue
		}
		for _, pkt := range out {
			select {
			case packets <- pkt:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// pushStage delivers packets to the server. A failed push gets exactly one
// in-place reconnect; if the reconnect fails the original push error ends
// the attempt.
func (s *Session) pushStage(ctx context.Context, push pusher.Pusher, packets <-chan media.Packet) error {
	for {
		var pkt media.Packet
		select {
		case pkt = <-packets:
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := s.pushPacket(ctx, push, pkt); err != nil {
			return err
		}
	}
}

func (s *Session) pushPacket(ctx context.Context, push pusher.Pusher, pkt media.Packet) error {
	err := push.Push(pkt)
	if err == nil {
		return nil
	}

	s.logger.WithError(err).Warn("Push failed, reconnecting transport")
	if rerr := push.Reconnect(ctx); rerr != nil {
		s.logger.WithError(rerr).Error("Transport reconnect failed")
		return err
	}
	return push.Push(pkt)
}
