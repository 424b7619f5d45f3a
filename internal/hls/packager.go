// Package hls packages live streams into HLS segments and playlists. A
// periodic sweep over the registry cuts a segment per stream whenever the
// target duration has elapsed, keeps a bounded playlist window, and mirrors
// segment payloads to disk.
package hls

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gamestream/internal/registry"
	"gamestream/pkg/config"
	"gamestream/pkg/logging"
	"gamestream/pkg/media"
	"gamestream/pkg/streamerr"
	"gamestream/pkg/wire"
)

// DefaultPollInterval is the sweep cadence.
const DefaultPollInterval = time.Second

// Packager cuts segments from the registry's live streams.
type Packager struct {
	reg    *registry.Registry
	cfg    config.HLSStorageConfig
	logger logging.Logger

	mu     sync.Mutex
	states map[string]*streamState

	now func() time.Time
}

// streamState is the per-stream packaging cursor. A new publisher on the
// same key (different stream id) resets it.
type streamState struct {
	streamID     string
	nextSeq      uint64
	lastBoundary time.Time
	segments     []Segment
}

// New builds a packager over reg.
func New(reg *registry.Registry, cfg config.HLSStorageConfig, logger logging.Logger) *Packager {
	return &Packager{
		reg:    reg,
		cfg:    cfg,
		logger: logger,
		states: make(map[string]*streamState),
		now:    time.Now,
	}
}

// Run sweeps until ctx is cancelled.
func (p *Packager) Run(ctx context.Context, poll time.Duration) error {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.Sweep()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Sweep visits every registered stream once. Failures on one stream are
// logged and do not stop the sweep.
func (p *Packager) Sweep() {
	now := p.now()
	seen := make(map[string]string)
	for _, stream := range p.reg.List() {
		seen[stream.Key] = stream.ID
		if !stream.IsLive() {
			continue
		}
		if err := p.packageStream(stream, now); err != nil {
			p.logger.WithError(err).WithField("stream_key", stream.Key).Warn("Segment packaging failed")
		}
	}
	p.cleanup(seen)
}

func (p *Packager) packageStream(stream *registry.LiveStream, now time.Time) error {
	target := p.targetDuration()

	p.mu.Lock()
	state, ok := p.states[stream.Key]
	if !ok || state.streamID != stream.ID {
		state = &streamState{streamID: stream.ID, lastBoundary: now.Add(-time.Duration(target) * time.Second)}
		p.states[stream.Key] = state
	}
	boundaryDue := len(state.segments) == 0 || now.Sub(state.lastBoundary) >= time.Duration(target)*time.Second
	since := state.lastBoundary
	p.mu.Unlock()

	if !boundaryDue {
		return nil
	}

	packets := stream.CollectSince(since)
	if len(packets) == 0 {
		// Nothing arrived this period; move the boundary and wait.
		p.mu.Lock()
		state.lastBoundary = now
		p.mu.Unlock()
		return nil
	}

	data, err := segmentBytes(packets)
	if err != nil {
		return err
	}

	p.mu.Lock()
	seg := Segment{
		Sequence:    state.nextSeq,
		Name:        fmt.Sprintf("segment_%d.ts", state.nextSeq),
		DurationSec: target,
		Data:        data,
		CreatedAt:   now,
	}
	state.nextSeq++
	state.lastBoundary = now
	state.segments = append(state.segments, seg)

	var evicted []Segment
	if max := p.playlistLength(); len(state.segments) > max {
		n := len(state.segments) - max
		evicted = append(evicted, state.segments[:n]...)
		state.segments = append(state.segments[:0], state.segments[n:]...)
	}
	p.mu.Unlock()

	p.persist(stream.Key, seg, evicted)
	return nil
}

// persist mirrors a new segment to disk and removes evicted ones.
func (p *Packager) persist(key string, seg Segment, evicted []Segment) {
	if p.cfg.SegmentDir == "" {
		return
	}
	dir := filepath.Join(p.cfg.SegmentDir, key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		p.logger.WithError(err).Warn("Creating segment directory failed")
		return
	}
	if err := os.WriteFile(filepath.Join(dir, seg.Name), seg.Data, 0o644); err != nil {
		p.logger.WithError(err).Warn("Writing segment failed")
	}
	for _, old := range evicted {
		os.Remove(filepath.Join(dir, old.Name))
	}
}

// cleanup drops packaging state and on-disk segments for streams that have
// left the registry. seen maps stream key to current stream id.
func (p *Packager) cleanup(seen map[string]string) {
	p.mu.Lock()
	var gone []string
	for key, state := range p.states {
		if id, ok := seen[key]; !ok || id != state.streamID {
			delete(p.states, key)
			gone = append(gone, key)
		}
	}
	p.mu.Unlock()

	if p.cfg.SegmentDir != "" {
		for _, key := range gone {
			os.RemoveAll(filepath.Join(p.cfg.SegmentDir, key))
		}
	}
}

// Playlist renders the current playlist for a stream key.
func (p *Packager) Playlist(key string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.states[key]
	if !ok {
		return "", streamerr.New(streamerr.KindStreamNotFound, "no playlist for key %q", key)
	}
	pl := Playlist{TargetDurationSec: p.targetDuration(), Segments: state.segments}
	return pl.Render(), nil
}

// Segment returns a stored segment's payload by name.
func (p *Packager) Segment(key, name string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.states[key]
	if !ok {
		return nil, streamerr.New(streamerr.KindStreamNotFound, "no segments for key %q", key)
	}
	for _, seg := range state.segments {
		if seg.Name == name {
			return seg.Data, nil
		}
	}
	return nil, streamerr.New(streamerr.KindStreamNotFound, "segment %q not found", name)
}

func (p *Packager) targetDuration() int {
	if p.cfg.SegmentDurationSec <= 0 {
		return 6
	}
	return p.cfg.SegmentDurationSec
}

func (p *Packager) playlistLength() int {
	if p.cfg.PlaylistLength <= 0 {
		return 10
	}
	return p.cfg.PlaylistLength
}

// segmentBytes serializes packets into the segment payload using the wire
// framing, keeping segments self-describing.
func segmentBytes(packets []media.Packet) ([]byte, error) {
	var buf bytes.Buffer
	for _, pkt := range packets {
		msgType := wire.MsgVideo
		if pkt.Kind == media.KindAudio {
			msgType = wire.MsgAudio
		}
		if err := wire.WriteMessage(&buf, wire.Message{Type: msgType, Timestamp: pkt.Timestamp, Payload: pkt.Data}); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
