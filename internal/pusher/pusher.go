// Package pusher delivers encoded packets to the ingest server. The
// transport variant is chosen once at construction from the configured
// protocol and never changes for the life of the pusher.
package pusher

import (
	"context"
	"time"

	"gamestream/pkg/config"
	"gamestream/pkg/logging"
	"gamestream/pkg/media"
	"gamestream/pkg/streamerr"
	"gamestream/pkg/wire"
)

// Pusher is one outbound transport session.
type Pusher interface {
	// Connect dials the server and announces the app and stream key.
	Connect(ctx context.Context) error
	// Push sends one packet. Pushing while disconnected is a Network error
	// and changes no other state.
	Push(pkt media.Packet) error
	// Reconnect tears the session down, waits out a settle delay, and
	// connects again.
	Reconnect(ctx context.Context) error
	// Disconnect closes the session. Safe to call when not connected.
	Disconnect() error
}

// reconnectSettle is the pause between tearing a session down and dialing
// again during Reconnect.
const reconnectSettle = time.Second

// New selects the transport variant for the configured protocol.
func New(cfg config.ClientConfig, logger logging.Logger) (Pusher, error) {
	switch cfg.Server.Protocol {
	case config.ProtocolRTMP:
		return newTCPPusher(cfg, logger), nil
	case config.ProtocolSRT:
		return newUDPPusher(cfg, logger), nil
	default:
		return nil, streamerr.New(streamerr.KindNetwork, "unsupported protocol %q", cfg.Server.Protocol)
	}
}

// msgTypeFor maps a packet kind to its wire message type.
func msgTypeFor(kind media.Kind) (wire.MsgType, error) {
	switch kind {
	case media.KindVideo:
		return wire.MsgVideo, nil
	case media.KindAudio:
		return wire.MsgAudio, nil
	case media.KindMetadata:
		return wire.MsgMetadata, nil
	default:
		return 0, streamerr.New(streamerr.KindSerialization, "unmapped packet kind %d", kind)
	}
}

// settle waits out the reconnect delay unless ctx ends first.
func settle(ctx context.Context) error {
	t := time.NewTimer(reconnectSettle)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
