// Package protocol defines the JSON payloads exchanged over the HTTP API
// and the WebRTC signaling channel.
package protocol

import "time"

// StreamInfo is the public descriptor of a live stream.
type StreamInfo struct {
	StreamID    string      `json:"stream_id"`
	StreamKey   string      `json:"stream_key"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	IsLive      bool        `json:"is_live"`
	ViewerCount int         `json:"viewer_count"`
	Video       VideoParams `json:"video_config"`
	Audio       AudioParams `json:"audio_config"`
}

// VideoParams are the advertised video format parameters.
type VideoParams struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	FPS         int    `json:"fps"`
	BitrateKbps int    `json:"bitrate"`
	Codec       string `json:"codec"`
}

// AudioParams are the advertised audio format parameters.
type AudioParams struct {
	SampleRate  int    `json:"sample_rate"`
	Channels    int    `json:"channels"`
	BitrateKbps int    `json:"bitrate"`
	Codec       string `json:"codec"`
}

// StreamStats is the /api/streams/:key/stats response.
type StreamStats struct {
	ViewerCount   int    `json:"viewer_count"`
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// ErrorResponse is the JSON error body returned by the HTTP layer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SignalType tags a signaling message.
type SignalType string

const (
	SignalOffer        SignalType = "offer"
	SignalAnswer       SignalType = "answer"
	SignalIceCandidate SignalType = "ice_candidate"
	SignalError        SignalType = "error"
)

// SignalMessage is the single wire shape for all signaling variants; the
// Type field selects which of the remaining fields are meaningful.
// SessionID is filled by the server on the answer so the viewer can address
// follow-up ICE candidates to its session.
type SignalMessage struct {
	Type          SignalType `json:"type"`
	SessionID     string     `json:"session_id,omitempty"`
	StreamKey     string     `json:"stream_key,omitempty"`
	SDP           string     `json:"sdp,omitempty"`
	Candidate     string     `json:"candidate,omitempty"`
	SDPMid        *string    `json:"sdp_mid,omitempty"`
	SDPMLineIndex *uint16    `json:"sdp_mline_index,omitempty"`
	Message       string     `json:"message,omitempty"`
}
