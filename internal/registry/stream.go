package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"gamestream/pkg/media"
	"gamestream/pkg/protocol"
)

// viewerQueueCap bounds each viewer's delivery channel. A viewer that
// cannot keep up loses the newest packets rather than stalling the
// publisher or other viewers.
const viewerQueueCap = 64

// Viewer is one fan-out subscriber of a live stream.
type Viewer struct {
	ID      string
	packets chan media.Packet

	mu      sync.Mutex
	closed  bool
	dropped uint64
}

// Packets is the viewer's delivery channel. It is closed when the viewer
// is removed from the stream.
func (v *Viewer) Packets() <-chan media.Packet { return v.packets }

// Dropped reports how many packets overflowed this viewer's queue.
func (v *Viewer) Dropped() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dropped
}

// deliver and close serialize on mu so a broadcast that raced viewer
// removal is dropped instead of sending on a closed channel.
func (v *Viewer) deliver(pkt media.Packet) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	select {
	case v.packets <- pkt:
	default:
		v.dropped++
	}
}

func (v *Viewer) close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	close(v.packets)
}

// LiveStream is one registered stream: its descriptor, lifecycle status,
// viewer set and media cache. Each concern has its own lock so status
// flips, viewer churn and packet fan-out do not contend.
type LiveStream struct {
	ID        string
	Key       string
	CreatedAt time.Time

	statusMu  sync.Mutex
	status    Status
	errReason string

	infoMu      sync.Mutex
	title       string
	description string
	video       protocol.VideoParams
	audio       protocol.AudioParams

	viewerMu sync.Mutex
	viewers  map[string]*Viewer

	cacheMu sync.Mutex
	cache   mediaCache

	now func() time.Time
}

func newLiveStream(key string) *LiveStream {
	return &LiveStream{
		ID:        uuid.New().String(),
		Key:       key,
		CreatedAt: time.Now(),
		status:    StatusStarting,
		viewers:   make(map[string]*Viewer),
		now:       time.Now,
	}
}

// Status returns the current lifecycle state and, for errored streams, the
// failure reason.
func (s *LiveStream) Status() (Status, string) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status, s.errReason
}

// SetStatus moves the stream to st. The error state is absorbing: once a
// stream has failed, later transitions are ignored.
func (s *LiveStream) SetStatus(st Status) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if s.status == StatusError {
		return
	}
	s.status = st
}

// Fail moves the stream to the error state with a reason. Further status
// changes are ignored.
func (s *LiveStream) Fail(reason string) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if s.status == StatusError {
		return
	}
	s.status = StatusError
	s.errReason = reason
}

// IsLive reports whether the stream is on-air.
func (s *LiveStream) IsLive() bool {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status.live()
}

// SetMetadata records the advertised stream parameters.
func (s *LiveStream) SetMetadata(title, description string, video protocol.VideoParams, audio protocol.AudioParams) {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()
	s.title = title
	s.description = description
	s.video = video
	s.audio = audio
}

// Info snapshots the public descriptor.
func (s *LiveStream) Info() protocol.StreamInfo {
	s.infoMu.Lock()
	title, description := s.title, s.description
	video, audio := s.video, s.audio
	s.infoMu.Unlock()

	return protocol.StreamInfo{
		StreamID:    s.ID,
		StreamKey:   s.Key,
		Title:       title,
		Description: description,
		CreatedAt:   s.CreatedAt,
		IsLive:      s.IsLive(),
		ViewerCount: s.ViewerCount(),
		Video:       video,
		Audio:       audio,
	}
}

// Stats snapshots the viewer count, status and uptime.
func (s *LiveStream) Stats() protocol.StreamStats {
	status, _ := s.Status()
	return protocol.StreamStats{
		ViewerCount:   s.ViewerCount(),
		Status:        status.String(),
		UptimeSeconds: int64(time.Since(s.CreatedAt).Seconds()),
	}
}

// AddViewer registers a new fan-out subscriber. Its channel is primed with
// the init sequence (metadata, audio config, latest keyframe, in that
// order) so playback can start without waiting for the next keyframe.
func (s *LiveStream) AddViewer() *Viewer {
	v := &Viewer{
		ID:      uuid.New().String(),
		packets: make(chan media.Packet, viewerQueueCap),
	}

	s.cacheMu.Lock()
	init := s.cache.initSequence()
	s.cacheMu.Unlock()
	for _, pkt := range init {
		v.deliver(pkt)
	}

	s.viewerMu.Lock()
	s.viewers[v.ID] = v
	s.viewerMu.Unlock()
	return v
}

// RemoveViewer unregisters a subscriber and closes its channel. Removing
// an unknown id is a no-op.
func (s *LiveStream) RemoveViewer(id string) {
	s.viewerMu.Lock()
	v, ok := s.viewers[id]
	if ok {
		delete(s.viewers, id)
	}
	s.viewerMu.Unlock()
	if ok {
		v.close()
	}
}

// ViewerCount reports the current number of subscribers.
func (s *LiveStream) ViewerCount() int {
	s.viewerMu.Lock()
	defer s.viewerMu.Unlock()
	return len(s.viewers)
}

// Broadcast feeds pkt into the media cache and delivers it to every
// viewer. Slow viewers drop the packet instead of blocking the publisher.
func (s *LiveStream) Broadcast(pkt media.Packet) {
	s.cacheMu.Lock()
	s.cache.store(pkt, s.now())
	s.cacheMu.Unlock()

	s.viewerMu.Lock()
	targets := make([]*Viewer, 0, len(s.viewers))
	for _, v := range s.viewers {
		targets = append(targets, v)
	}
	s.viewerMu.Unlock()

	for _, v := range targets {
		v.deliver(pkt)
	}
}

// CollectSince returns the media packets received after t, oldest first.
// The segment packager uses this to materialize segment payloads.
func (s *LiveStream) CollectSince(t time.Time) []media.Packet {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.cache.collectSince(t)
}
