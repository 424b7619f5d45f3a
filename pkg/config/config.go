package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"

	"gamestream/pkg/streamerr"
)

// Protocol names accepted in [server].protocol.
const (
	ProtocolRTMP   = "rtmp"
	ProtocolSRT    = "srt"
	ProtocolCustom = "custom"
)

// Video source types accepted in [capture.video].type.
const (
	VideoSourceScreen = "screen"
	VideoSourceWindow = "window"
	VideoSourceRegion = "region"
)

// Audio source types accepted in [capture.audio].type.
const (
	AudioSourceDefault  = "default"
	AudioSourceDevice   = "device"
	AudioSourceDisabled = "disabled"
)

// ClientConfig is the full client.toml document.
type ClientConfig struct {
	Server   ServerEndpoint `toml:"server"`
	Stream   StreamPolicy   `toml:"stream"`
	Capture  CaptureConfig  `toml:"capture"`
	Encoding EncodingConfig `toml:"encoding"`
	Network  NetworkConfig  `toml:"network"`
}

// ServerEndpoint describes where the client pushes to.
type ServerEndpoint struct {
	Protocol  string `toml:"protocol"`
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	StreamKey string `toml:"stream_key"`
	AppName   string `toml:"app_name"`
}

// StreamPolicy holds the top-level reconnect policy.
type StreamPolicy struct {
	Title                string `toml:"title"`
	Description          string `toml:"description"`
	AutoReconnect        bool   `toml:"auto_reconnect"`
	ReconnectIntervalSec int    `toml:"reconnect_interval"`
	MaxReconnectAttempts int    `toml:"max_reconnect_attempts"`
}

// CaptureConfig selects the video and audio sources.
type CaptureConfig struct {
	Video         VideoSourceConfig `toml:"video"`
	Audio         AudioSourceConfig `toml:"audio"`
	CaptureCursor bool              `toml:"capture_cursor"`
}

// VideoSourceConfig is a tagged variant: screen, window, or region.
type VideoSourceConfig struct {
	Type         string `toml:"type"`
	DisplayIndex int    `toml:"display_index"`
	WindowTitle  string `toml:"window_title"`
	X            int    `toml:"x"`
	Y            int    `toml:"y"`
	Width        int    `toml:"width"`
	Height       int    `toml:"height"`
}

// AudioSourceConfig is a tagged variant: default, device, or disabled.
type AudioSourceConfig struct {
	Type       string `toml:"type"`
	DeviceName string `toml:"device_name"`
}

// EncodingConfig holds the encoder parameters for both media kinds.
type EncodingConfig struct {
	Video VideoEncodingConfig `toml:"video"`
	Audio AudioEncodingConfig `toml:"audio"`
}

// VideoEncodingConfig mirrors the video encoder construction parameters.
type VideoEncodingConfig struct {
	Codec               string `toml:"codec"`
	Width               int    `toml:"width"`
	Height              int    `toml:"height"`
	FPS                 int    `toml:"fps"`
	BitrateKbps         int    `toml:"bitrate"`
	KeyframeIntervalSec int    `toml:"keyframe_interval"`
	Preset              string `toml:"preset"`
}

// AudioEncodingConfig mirrors the audio encoder construction parameters.
type AudioEncodingConfig struct {
	Codec       string `toml:"codec"`
	SampleRate  int    `toml:"sample_rate"`
	Channels    int    `toml:"channels"`
	BitrateKbps int    `toml:"bitrate"`
}

// NetworkConfig holds transport timeouts and the pipeline queue capacity.
type NetworkConfig struct {
	ConnectionTimeoutSec int `toml:"connection_timeout"`
	ReadTimeoutSec       int `toml:"read_timeout"`
	WriteTimeoutSec      int `toml:"write_timeout"`
	BufferSize           int `toml:"buffer_size"`
}

// ServerConfig is the full server.toml document.
type ServerConfig struct {
	Ingest  IngestConfig     `toml:"rtmp"`
	WebRTC  WebRTCConfig     `toml:"webrtc"`
	HTTP    HTTPConfig       `toml:"http"`
	Auth    AuthConfig       `toml:"auth"`
	Storage HLSStorageConfig `toml:"storage"`
}

// IngestConfig configures the publisher-facing TCP listener.
type IngestConfig struct {
	BindAddr       string `toml:"bind_addr"`
	Port           int    `toml:"port"`
	ChunkSize      int    `toml:"chunk_size"`
	MaxConnections int    `toml:"max_connections"`
}

// WebRTCConfig configures the signaling peer engine.
type WebRTCConfig struct {
	ICEServers   []ICEServerConfig `toml:"ice_servers"`
	DTLSCertPath string            `toml:"dtls_cert_path"`
	DTLSKeyPath  string            `toml:"dtls_key_path"`
}

// ICEServerConfig is one STUN/TURN server entry.
type ICEServerConfig struct {
	URLs       []string `toml:"urls"`
	Username   string   `toml:"username"`
	Credential string   `toml:"credential"`
}

// HTTPConfig configures the API and delivery server.
type HTTPConfig struct {
	BindAddr    string `toml:"bind_addr"`
	Port        int    `toml:"port"`
	StaticDir   string `toml:"static_dir"`
	CORSEnabled bool   `toml:"cors_enabled"`
}

// AuthConfig configures the stream-key gate.
type AuthConfig struct {
	Enabled         bool     `toml:"enabled"`
	ValidStreamKeys []string `toml:"valid_stream_keys"`
	JWTSecret       string   `toml:"jwt_secret"`
}

// HLSStorageConfig configures the segment packager.
type HLSStorageConfig struct {
	SegmentDir         string `toml:"hls_segment_dir"`
	SegmentDurationSec int    `toml:"hls_segment_duration"`
	PlaylistLength     int    `toml:"hls_playlist_length"`
}

// DefaultClientConfig mirrors the documented client.toml defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Server: ServerEndpoint{
			Protocol:  ProtocolRTMP,
			Host:      "localhost",
			Port:      1935,
			StreamKey: "test_stream",
			AppName:   "live",
		},
		Stream: StreamPolicy{
			AutoReconnect:        true,
			ReconnectIntervalSec: 5,
			MaxReconnectAttempts: 10,
		},
		Capture: CaptureConfig{
			Video:         VideoSourceConfig{Type: VideoSourceScreen, DisplayIndex: 0},
			Audio:         AudioSourceConfig{Type: AudioSourceDefault},
			CaptureCursor: true,
		},
		Encoding: EncodingConfig{
			Video: VideoEncodingConfig{
				Codec:               "h264",
				Width:               1920,
				Height:              1080,
				FPS:                 30,
				BitrateKbps:         2500,
				KeyframeIntervalSec: 2,
				Preset:              "fast",
			},
			Audio: AudioEncodingConfig{
				Codec:       "aac",
				SampleRate:  44100,
				Channels:    2,
				BitrateKbps: 128,
			},
		},
		Network: NetworkConfig{
			ConnectionTimeoutSec: 10,
			ReadTimeoutSec:       30,
			WriteTimeoutSec:      30,
			BufferSize:           65536,
		},
	}
}

// DefaultServerConfig mirrors the documented server.toml defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Ingest: IngestConfig{
			BindAddr:       "0.0.0.0",
			Port:           1935,
			ChunkSize:      4096,
			MaxConnections: 100,
		},
		WebRTC: WebRTCConfig{
			ICEServers: []ICEServerConfig{
				{URLs: []string{"stun:stun.l.google.com:19302"}},
			},
		},
		HTTP: HTTPConfig{
			BindAddr:    "0.0.0.0",
			Port:        8080,
			StaticDir:   "./web",
			CORSEnabled: true,
		},
		Auth: AuthConfig{
			Enabled:         false,
			ValidStreamKeys: []string{"test_stream"},
		},
		Storage: HLSStorageConfig{
			SegmentDir:         "./hls",
			SegmentDurationSec: 6,
			PlaylistLength:     10,
		},
	}
}

// LoadClientConfig reads a client.toml. A missing file is not an error: the
// defaults are returned and found reports false so the caller can log it.
func LoadClientConfig(path string) (cfg ClientConfig, found bool, err error) {
	cfg = DefaultClientConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, false, nil
	}
	if err != nil {
		return cfg, false, streamerr.Wrap(streamerr.KindConfig, err, "reading client config")
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, true, streamerr.Wrap(streamerr.KindConfig, err, "parsing client config")
	}
	return cfg, true, nil
}

// LoadServerConfig reads a server.toml with the same missing-file semantics
// as LoadClientConfig.
func LoadServerConfig(path string) (cfg ServerConfig, found bool, err error) {
	cfg = DefaultServerConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, false, nil
	}
	if err != nil {
		return cfg, false, streamerr.Wrap(streamerr.KindConfig, err, "reading server config")
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, true, streamerr.Wrap(streamerr.KindConfig, err, "parsing server config")
	}
	return cfg, true, nil
}

// ClientOverrides are the CLI flags that take precedence over the file.
type ClientOverrides struct {
	StreamKey string
	Host      string
	Port      int
}

// Apply writes the non-zero overrides onto cfg.
func (o ClientOverrides) Apply(cfg *ClientConfig) {
	if o.StreamKey != "" {
		cfg.Server.StreamKey = o.StreamKey
	}
	if o.Host != "" {
		cfg.Server.Host = o.Host
	}
	if o.Port != 0 {
		cfg.Server.Port = o.Port
	}
}

// ServerOverrides are the CLI flags that take precedence over the file.
type ServerOverrides struct {
	IngestPort int
	HTTPPort   int
}

// Apply writes the non-zero overrides onto cfg.
func (o ServerOverrides) Apply(cfg *ServerConfig) {
	if o.IngestPort != 0 {
		cfg.Ingest.Port = o.IngestPort
	}
	if o.HTTPPort != 0 {
		cfg.HTTP.Port = o.HTTPPort
	}
}
