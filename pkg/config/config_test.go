package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadClientConfig_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, found, err := LoadClientConfig(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, ProtocolRTMP, cfg.Server.Protocol)
	assert.Equal(t, 1935, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Stream.MaxReconnectAttempts)
	assert.Equal(t, 65536, cfg.Network.BufferSize)
}

func TestLoadClientConfig_FileAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.toml")
	doc := `
[server]
protocol = "srt"
host = "stream.example.com"
port = 9000
stream_key = "from-file"

[stream]
auto_reconnect = false
reconnect_interval = 1
max_reconnect_attempts = 3

[encoding.video]
codec = "h264"
fps = 60
keyframe_interval = 2
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, found, err := LoadClientConfig(path)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, ProtocolSRT, cfg.Server.Protocol)
	assert.Equal(t, "from-file", cfg.Server.StreamKey)
	assert.Equal(t, 60, cfg.Encoding.Video.FPS)
	// Sections absent from the file keep their defaults.
	assert.Equal(t, 44100, cfg.Encoding.Audio.SampleRate)

	// Flags apply after file load.
	ClientOverrides{StreamKey: "from-flag", Port: 9100}.Apply(&cfg)
	assert.Equal(t, "from-flag", cfg.Server.StreamKey)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "stream.example.com", cfg.Server.Host)
}

func TestLoadClientConfig_BadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nnope"), 0o644))

	_, found, err := LoadClientConfig(path)
	assert.True(t, found)
	assert.Error(t, err)
}

func TestLoadServerConfig_DefaultsAndOverrides(t *testing.T) {
	cfg, found, err := LoadServerConfig(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 1935, cfg.Ingest.Port)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 6, cfg.Storage.SegmentDurationSec)
	assert.Equal(t, 10, cfg.Storage.PlaylistLength)
	assert.False(t, cfg.Auth.Enabled)

	ServerOverrides{IngestPort: 2935, HTTPPort: 8888}.Apply(&cfg)
	assert.Equal(t, 2935, cfg.Ingest.Port)
	assert.Equal(t, 8888, cfg.HTTP.Port)
}

func TestLoadServerConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.toml")
	doc := `
[rtmp]
port = 2935
max_connections = 5

[auth]
enabled = true
valid_stream_keys = ["abc", "def"]

[[webrtc.ice_servers]]
urls = ["stun:stun.example.com:3478"]
username = "u"
credential = "c"
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, found, err := LoadServerConfig(path)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2935, cfg.Ingest.Port)
	assert.Equal(t, 5, cfg.Ingest.MaxConnections)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, []string{"abc", "def"}, cfg.Auth.ValidStreamKeys)
	require.Len(t, cfg.WebRTC.ICEServers, 1)
	assert.Equal(t, "u", cfg.WebRTC.ICEServers[0].Username)
}
