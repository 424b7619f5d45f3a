package hls

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamestream/internal/registry"
	"gamestream/pkg/config"
	"gamestream/pkg/logging"
	"gamestream/pkg/media"
	"gamestream/pkg/streamerr"
)

func testStorage(t *testing.T) config.HLSStorageConfig {
	return config.HLSStorageConfig{
		SegmentDir:         t.TempDir(),
		SegmentDurationSec: 2,
		PlaylistLength:     3,
	}
}

func TestPlaylistRenderEmpty(t *testing.T) {
	pl := Playlist{TargetDurationSec: 6}
	assert.Equal(t, "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:6\n", pl.Render())
}

func TestPlaylistRenderSegments(t *testing.T) {
	pl := Playlist{
		TargetDurationSec: 2,
		Segments: []Segment{
			{Sequence: 4, Name: "segment_4.ts", DurationSec: 2},
			{Sequence: 5, Name: "segment_5.ts", DurationSec: 2},
		},
	}
	want := "#EXTM3U\n" +
		"#EXT-X-VERSION:3\n" +
		"#EXT-X-TARGETDURATION:2\n" +
		"#EXT-X-MEDIA-SEQUENCE:4\n" +
		"#EXTINF:2.0,\nsegment_4.ts\n" +
		"#EXTINF:2.0,\nsegment_5.ts\n"
	assert.Equal(t, want, pl.Render())
}

func liveStreamWithMedia(reg *registry.Registry, key string) *registry.LiveStream {
	s := reg.Create(key)
	s.SetStatus(registry.StatusLive)
	s.Broadcast(media.Packet{Kind: media.KindVideo, Keyframe: true, Data: []byte{0x17, 1}, Timestamp: 1})
	s.Broadcast(media.Packet{Kind: media.KindAudio, Data: []byte{0xAF, 0x01, 2}, Timestamp: 2})
	return s
}

func TestSweepCutsSegments(t *testing.T) {
	reg := registry.New(logging.NewLogger())
	liveStreamWithMedia(reg, "run")
	p := New(reg, testStorage(t), logging.NewLogger())

	p.Sweep()

	playlist, err := p.Playlist("run")
	require.NoError(t, err)
	assert.Contains(t, playlist, "segment_0.ts")

	data, err := p.Segment("run", "segment_0.ts")
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestSweepSkipsNonLiveStreams(t *testing.T) {
	reg := registry.New(logging.NewLogger())
	s := reg.Create("idle")
	s.Broadcast(media.Packet{Kind: media.KindVideo, Keyframe: true, Data: []byte{0x17}})

	p := New(reg, testStorage(t), logging.NewLogger())
	p.Sweep()

	_, err := p.Playlist("idle")
	require.Error(t, err)
	assert.True(t, streamerr.Is(err, streamerr.KindStreamNotFound))
}

func TestSequenceIncreasesAndEvictsFIFO(t *testing.T) {
	reg := registry.New(logging.NewLogger())
	s := liveStreamWithMedia(reg, "run")
	p := New(reg, testStorage(t), logging.NewLogger())

	for i := 0; i < 5; i++ {
		s.Broadcast(media.Packet{Kind: media.KindVideo, Data: []byte{0x27, byte(i)}, Timestamp: uint64(10 + i)})
		p.Sweep()
		// Age the boundary so the next sweep is due again.
		p.mu.Lock()
		p.states["run"].lastBoundary = time.Now().Add(-3 * time.Second)
		p.mu.Unlock()
	}

	playlist, err := p.Playlist("run")
	require.NoError(t, err)
	// Playlist keeps the newest 3 of 5 segments.
	assert.Contains(t, playlist, "#EXT-X-MEDIA-SEQUENCE:2\n")
	assert.Contains(t, playlist, "segment_2.ts")
	assert.Contains(t, playlist, "segment_4.ts")
	assert.NotContains(t, playlist, "segment_0.ts")

	_, err = p.Segment("run", "segment_0.ts")
	assert.Error(t, err)
}

func TestNoBoundaryBeforeTargetDuration(t *testing.T) {
	reg := registry.New(logging.NewLogger())
	s := liveStreamWithMedia(reg, "run")
	p := New(reg, testStorage(t), logging.NewLogger())

	p.Sweep() // first segment
	s.Broadcast(media.Packet{Kind: media.KindVideo, Data: []byte{0x27}, Timestamp: 20})
	p.Sweep() // within target duration: no new segment

	playlist, err := p.Playlist("run")
	require.NoError(t, err)
	assert.NotContains(t, playlist, "segment_1.ts")
}

func TestCleanupWhenStreamGone(t *testing.T) {
	reg := registry.New(logging.NewLogger())
	s := liveStreamWithMedia(reg, "run")
	p := New(reg, testStorage(t), logging.NewLogger())
	p.Sweep()

	_, err := p.Playlist("run")
	require.NoError(t, err)

	reg.RemoveStream(s)
	p.Sweep()

	_, err = p.Playlist("run")
	require.Error(t, err)
}

func TestNewPublisherResetsSequence(t *testing.T) {
	reg := registry.New(logging.NewLogger())
	liveStreamWithMedia(reg, "run")
	p := New(reg, testStorage(t), logging.NewLogger())

	p.Sweep()

	// Same key, new publisher: packaging restarts from sequence zero.
	liveStreamWithMedia(reg, "run")
	p.Sweep()

	playlist, err := p.Playlist("run")
	require.NoError(t, err)
	assert.Contains(t, playlist, "#EXT-X-MEDIA-SEQUENCE:0\n")
}
