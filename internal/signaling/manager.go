// Package signaling manages WebRTC viewer sessions: offer/answer
// negotiation against the registry, ICE candidate routing, and a reaper
// that expires idle sessions.
package signaling

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"gamestream/internal/registry"
	"gamestream/pkg/logging"
	"gamestream/pkg/monitoring"
	"gamestream/pkg/protocol"
	"gamestream/pkg/streamerr"
)

const (
	// DefaultIdleTimeout is how long a session may go without activity
	// before the reaper removes it.
	DefaultIdleTimeout = 5 * time.Minute
	// DefaultReapInterval is the reaper cadence.
	DefaultReapInterval = 30 * time.Second
)

// Session is one viewer's signaling state: its peer connection and its
// registration on the stream it watches.
type Session struct {
	ID        string
	StreamKey string
	CreatedAt time.Time

	stream *registry.LiveStream
	viewer *registry.Viewer
	peer   PeerHandle

	mu           sync.Mutex
	lastActivity time.Time
}

// Touch refreshes the session's activity clock.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

// Viewer exposes the session's fan-out registration.
func (s *Session) Viewer() *registry.Viewer { return s.viewer }

// Manager owns all signaling sessions.
type Manager struct {
	reg    *registry.Registry
	engine Engine
	logger logging.Logger

	idleTimeout  time.Duration
	reapInterval time.Duration

	mu       sync.Mutex
	sessions map[string]*Session

	metrics *monitoring.StreamMetrics

	now func() time.Time
}

// NewManager wires the manager to the registry and a peer engine. metrics
// may be nil.
func NewManager(reg *registry.Registry, engine Engine, logger logging.Logger, metrics *monitoring.StreamMetrics) *Manager {
	return &Manager{
		reg:          reg,
		engine:       engine,
		logger:       logger,
		idleTimeout:  DefaultIdleTimeout,
		reapInterval: DefaultReapInterval,
		sessions:     make(map[string]*Session),
		metrics:      metrics,
		now:          time.Now,
	}
}

// HandleOffer resolves the stream, negotiates an answer and registers the
// viewer. The returned message carries the session id for follow-up
// candidates.
func (m *Manager) HandleOffer(streamKey, offerSDP string) (protocol.SignalMessage, error) {
	stream, err := m.reg.Get(streamKey)
	if err != nil {
		return protocol.SignalMessage{}, err
	}

	answer, peer, err := m.engine.Negotiate(offerSDP)
	if err != nil {
		return protocol.SignalMessage{}, err
	}

	now := m.now()
	session := &Session{
		ID:           uuid.New().String(),
		StreamKey:    streamKey,
		CreatedAt:    now,
		stream:       stream,
		viewer:       stream.AddViewer(),
		peer:         peer,
		lastActivity: now,
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.Viewers.WithLabelValues("webrtc").Inc()
	}

	m.logger.WithFields(logging.Fields{
		"session_id": session.ID,
		"stream_key": streamKey,
	}).Info("Viewer session negotiated")

	return protocol.SignalMessage{
		Type:      protocol.SignalAnswer,
		SessionID: session.ID,
		SDP:       answer,
	}, nil
}

// HandleCandidate routes an ICE candidate to its session and refreshes the
// session's activity.
func (m *Manager) HandleCandidate(sessionID string, msg protocol.SignalMessage) error {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return streamerr.New(streamerr.KindWebRTC, "unknown session %q", sessionID)
	}
	session.Touch(m.now())
	return session.peer.AddICECandidate(msg.Candidate, msg.SDPMid, msg.SDPMLineIndex)
}

// Get looks a session up by id.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// Remove tears a session down: peer closed, viewer released, entry gone.
// Removing an unknown id is a no-op.
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	session.peer.Close()
	session.stream.RemoveViewer(session.viewer.ID)
	if m.metrics != nil {
		m.metrics.Viewers.WithLabelValues("webrtc").Dec()
	}
	m.logger.WithField("session_id", sessionID).Info("Viewer session removed")
}

// Count reports the number of active sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// RunReaper expires idle sessions on a fixed cadence until ctx ends.
func (m *Manager) RunReaper(ctx context.Context) error {
	ticker := time.NewTicker(m.reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := m.reapExpired(); n > 0 {
				m.logger.WithField("count", n).Info("Reaped idle viewer sessions")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// reapExpired removes every session idle longer than the timeout and
// reports how many went.
func (m *Manager) reapExpired() int {
	now := m.now()

	m.mu.Lock()
	var expired []string
	for id, session := range m.sessions {
		if session.idleSince(now) > m.idleTimeout {
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.Remove(id)
	}
	return len(expired)
}
