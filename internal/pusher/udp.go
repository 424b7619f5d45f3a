package pusher

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"sync"

	"gamestream/pkg/config"
	"gamestream/pkg/logging"
	"gamestream/pkg/media"
	"gamestream/pkg/streamerr"
	"gamestream/pkg/wire"
)

// udpPusher sends each wire message as one datagram. There is no handshake
// round trip; the connect and publish announcements are datagrams like any
// other, and delivery is fire-and-forget.
type udpPusher struct {
	cfg    config.ClientConfig
	logger logging.Logger

	mu   sync.Mutex
	conn net.Conn
}

func newUDPPusher(cfg config.ClientConfig, logger logging.Logger) *udpPusher {
	return &udpPusher{cfg: cfg, logger: logger}
}

func (p *udpPusher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return nil
	}

	addr := net.JoinHostPort(p.cfg.Server.Host, strconv.Itoa(p.cfg.Server.Port))
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", addr)
	if err != nil {
		return streamerr.Wrap(streamerr.KindNetwork, err, "dialing ingest server")
	}

	if err := p.sendLocked(conn, wire.Message{Type: wire.MsgConnect, Payload: []byte(p.cfg.Server.AppName)}); err != nil {
		conn.Close()
		return err
	}
	if err := p.sendLocked(conn, wire.Message{Type: wire.MsgPublish, Payload: []byte(p.cfg.Server.StreamKey)}); err != nil {
		conn.Close()
		return err
	}

	p.conn = conn
	p.logger.WithFields(logging.Fields{
		"addr":       addr,
		"stream_key": p.cfg.Server.StreamKey,
	}).Info("Streaming datagrams to ingest server")
	return nil
}

func (p *udpPusher) sendLocked(conn net.Conn, m wire.Message) error {
	var buf bytes.Buffer
	if err := wire.WriteMessage(&buf, m); err != nil {
		return err
	}
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return streamerr.Wrap(streamerr.KindIO, err, "sending datagram")
	}
	return nil
}

func (p *udpPusher) Push(pkt media.Packet) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return streamerr.New(streamerr.KindNetwork, "push while disconnected")
	}
	msgType, err := msgTypeFor(pkt.Kind)
	if err != nil {
		return err
	}
	return p.sendLocked(p.conn, wire.Message{Type: msgType, Timestamp: pkt.Timestamp, Payload: pkt.Data})
}

func (p *udpPusher) Reconnect(ctx context.Context) error {
	if err := p.Disconnect(); err != nil {
		p.logger.WithError(err).Debug("Disconnect before reconnect failed")
	}
	if err := settle(ctx); err != nil {
		return err
	}
	return p.Connect(ctx)
}

func (p *udpPusher) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	p.sendLocked(p.conn, wire.Message{Type: wire.MsgDisconnect})
	err := p.conn.Close()
	p.conn = nil
	return streamerr.Wrap(streamerr.KindIO, err, "closing ingest socket")
}
