package signaling

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamestream/internal/registry"
	"gamestream/pkg/logging"
	"gamestream/pkg/monitoring"
	"gamestream/pkg/protocol"
	"gamestream/pkg/streamerr"
)

type stubPeer struct {
	candidates []string
	closed     bool
}

func (p *stubPeer) AddICECandidate(candidate string, _ *string, _ *uint16) error {
	p.candidates = append(p.candidates, candidate)
	return nil
}

func (p *stubPeer) Close() error {
	p.closed = true
	return nil
}

type stubEngine struct {
	err   error
	peers []*stubPeer
}

func (e *stubEngine) Negotiate(offerSDP string) (string, PeerHandle, error) {
	if e.err != nil {
		return "", nil, e.err
	}
	peer := &stubPeer{}
	e.peers = append(e.peers, peer)
	return "v=0 answer", peer, nil
}

func newTestManager(t *testing.T) (*Manager, *registry.Registry, *stubEngine) {
	t.Helper()
	reg := registry.New(logging.NewLogger())
	engine := &stubEngine{}
	return NewManager(reg, engine, logging.NewLogger(), nil), reg, engine
}

func liveStream(reg *registry.Registry, key string) *registry.LiveStream {
	s := reg.Create(key)
	s.SetStatus(registry.StatusLive)
	return s
}

func TestViewerGaugeTracksSessions(t *testing.T) {
	mc := monitoring.NewMetricsCollector("signaling-test", "test", "none")
	sm := mc.CreateStreamMetrics()
	reg := registry.New(logging.NewLogger())
	m := NewManager(reg, &stubEngine{}, logging.NewLogger(), sm)
	liveStream(reg, "show")

	answer, err := m.HandleOffer("show", "v=0 offer")
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(sm.Viewers.WithLabelValues("webrtc")))

	m.Remove(answer.SessionID)
	m.Remove(answer.SessionID)
	assert.Equal(t, 0.0, testutil.ToFloat64(sm.Viewers.WithLabelValues("webrtc")))
}

func TestOfferUnknownStream(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.HandleOffer("ghost", "v=0")
	require.Error(t, err)
	assert.True(t, streamerr.Is(err, streamerr.KindStreamNotFound))
	assert.Equal(t, 0, m.Count())
}

func TestOfferNegotiatesAndRegistersViewer(t *testing.T) {
	m, reg, _ := newTestManager(t)
	stream := liveStream(reg, "show")

	answer, err := m.HandleOffer("show", "v=0 offer")
	require.NoError(t, err)
	assert.Equal(t, protocol.SignalAnswer, answer.Type)
	assert.Equal(t, "v=0 answer", answer.SDP)
	assert.NotEmpty(t, answer.SessionID)
	assert.Equal(t, 1, stream.ViewerCount())
	assert.Equal(t, 1, m.Count())
}

func TestOfferEngineFailureLeavesNoSession(t *testing.T) {
	m, reg, engine := newTestManager(t)
	stream := liveStream(reg, "show")
	engine.err = errors.New("sdp parse failed")

	_, err := m.HandleOffer("show", "garbage")
	require.Error(t, err)
	assert.Equal(t, 0, m.Count())
	assert.Equal(t, 0, stream.ViewerCount())
}

func TestCandidateRouting(t *testing.T) {
	m, reg, engine := newTestManager(t)
	liveStream(reg, "show")
	answer, err := m.HandleOffer("show", "v=0")
	require.NoError(t, err)

	err = m.HandleCandidate(answer.SessionID, protocol.SignalMessage{
		Type:      protocol.SignalIceCandidate,
		Candidate: "candidate:1 1 udp 2122260223 192.0.2.1 54321 typ host",
	})
	require.NoError(t, err)
	assert.Len(t, engine.peers[0].candidates, 1)

	err = m.HandleCandidate("no-such-session", protocol.SignalMessage{Candidate: "x"})
	require.Error(t, err)
	assert.True(t, streamerr.Is(err, streamerr.KindWebRTC))
}

func TestRemoveReleasesViewerAndPeer(t *testing.T) {
	m, reg, engine := newTestManager(t)
	stream := liveStream(reg, "show")
	answer, err := m.HandleOffer("show", "v=0")
	require.NoError(t, err)

	m.Remove(answer.SessionID)
	assert.Equal(t, 0, m.Count())
	assert.Equal(t, 0, stream.ViewerCount())
	assert.True(t, engine.peers[0].closed)

	// Removing again is harmless.
	m.Remove(answer.SessionID)
}

func TestReaperBoundaries(t *testing.T) {
	m, reg, _ := newTestManager(t)
	stream := liveStream(reg, "show")

	base := time.Now()
	clock := base
	m.now = func() time.Time { return clock }

	stale, err := m.HandleOffer("show", "v=0")
	require.NoError(t, err)
	clock = base.Add(2 * time.Minute)
	fresh, err := m.HandleOffer("show", "v=0")
	require.NoError(t, err)

	// At +6min the first session is 6min idle (gone), the second 4min (kept).
	clock = base.Add(6 * time.Minute)
	n := m.reapExpired()
	assert.Equal(t, 1, n)

	_, ok := m.Get(stale.SessionID)
	assert.False(t, ok)
	_, ok = m.Get(fresh.SessionID)
	assert.True(t, ok)
	assert.Equal(t, 1, stream.ViewerCount())
}

func TestCandidateRefreshesActivity(t *testing.T) {
	m, reg, _ := newTestManager(t)
	liveStream(reg, "show")

	base := time.Now()
	clock := base
	m.now = func() time.Time { return clock }

	answer, err := m.HandleOffer("show", "v=0")
	require.NoError(t, err)

	clock = base.Add(4 * time.Minute)
	require.NoError(t, m.HandleCandidate(answer.SessionID, protocol.SignalMessage{Candidate: "c"}))

	// Idle measured from the candidate, not the offer.
	clock = base.Add(8 * time.Minute)
	assert.Equal(t, 0, m.reapExpired())

	clock = base.Add(10 * time.Minute)
	assert.Equal(t, 1, m.reapExpired())
}
