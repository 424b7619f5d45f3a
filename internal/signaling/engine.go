package signaling

import (
	"github.com/pion/webrtc/v4"

	"gamestream/pkg/config"
	"gamestream/pkg/streamerr"
)

// Engine negotiates one WebRTC peer from a viewer's offer. It is an
// interface so the manager and its tests do not depend on a real ICE
// stack.
type Engine interface {
	Negotiate(offerSDP string) (answerSDP string, peer PeerHandle, err error)
}

// PeerHandle is one negotiated peer connection.
type PeerHandle interface {
	AddICECandidate(candidate string, sdpMid *string, sdpMLineIndex *uint16) error
	Close() error
}

// pionEngine negotiates peers with pion/webrtc.
type pionEngine struct {
	cfg webrtc.Configuration
}

// NewPionEngine builds the production engine from the configured ICE
// servers.
func NewPionEngine(servers []config.ICEServerConfig) Engine {
	cfg := webrtc.Configuration{}
	for _, s := range servers {
		ice := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			ice.Username = s.Username
			ice.Credential = s.Credential
		}
		cfg.ICEServers = append(cfg.ICEServers, ice)
	}
	return &pionEngine{cfg: cfg}
}

func (e *pionEngine) Negotiate(offerSDP string) (string, PeerHandle, error) {
	pc, err := webrtc.NewPeerConnection(e.cfg)
	if err != nil {
		return "", nil, streamerr.Wrap(streamerr.KindWebRTC, err, "creating peer connection")
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		return "", nil, streamerr.Wrap(streamerr.KindWebRTC, err, "applying offer")
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return "", nil, streamerr.Wrap(streamerr.KindWebRTC, err, "creating answer")
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return "", nil, streamerr.Wrap(streamerr.KindWebRTC, err, "applying answer")
	}
	<-gathered

	return pc.LocalDescription().SDP, &pionPeer{pc: pc}, nil
}

type pionPeer struct {
	pc *webrtc.PeerConnection
}

func (p *pionPeer) AddICECandidate(candidate string, sdpMid *string, sdpMLineIndex *uint16) error {
	err := p.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     candidate,
		SDPMid:        sdpMid,
		SDPMLineIndex: sdpMLineIndex,
	})
	return streamerr.Wrap(streamerr.KindWebRTC, err, "adding ice candidate")
}

func (p *pionPeer) Close() error {
	return p.pc.Close()
}
