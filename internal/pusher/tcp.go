package pusher

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"gamestream/pkg/config"
	"gamestream/pkg/logging"
	"gamestream/pkg/media"
	"gamestream/pkg/streamerr"
	"gamestream/pkg/wire"
)

// tcpPusher speaks the wire framing over a single TCP connection: magic
// handshake, connect and publish announcements, then a stream of media
// messages.
type tcpPusher struct {
	cfg    config.ClientConfig
	logger logging.Logger

	mu   sync.Mutex
	conn net.Conn
}

func newTCPPusher(cfg config.ClientConfig, logger logging.Logger) *tcpPusher {
	return &tcpPusher{cfg: cfg, logger: logger}
}

func (p *tcpPusher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return nil
	}

	addr := net.JoinHostPort(p.cfg.Server.Host, strconv.Itoa(p.cfg.Server.Port))
	dialer := net.Dialer{Timeout: time.Duration(p.cfg.Network.ConnectionTimeoutSec) * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return streamerr.Wrap(streamerr.KindNetwork, err, "dialing ingest server")
	}

	if err := p.openSession(conn); err != nil {
		conn.Close()
		return err
	}

	p.conn = conn
	p.logger.WithFields(logging.Fields{
		"addr":       addr,
		"stream_key": p.cfg.Server.StreamKey,
	}).Info("Connected to ingest server")
	return nil
}

// openSession runs the handshake and announces the app and stream key,
// then waits for the server's verdict.
func (p *tcpPusher) openSession(conn net.Conn) error {
	deadline := time.Now().Add(time.Duration(p.cfg.Network.ConnectionTimeoutSec) * time.Second)
	conn.SetDeadline(deadline)
	defer conn.SetDeadline(time.Time{})

	if err := wire.ClientHandshake(conn); err != nil {
		return err
	}
	if err := wire.WriteMessage(conn, wire.Message{Type: wire.MsgConnect, Payload: []byte(p.cfg.Server.AppName)}); err != nil {
		return err
	}
	if err := wire.WriteMessage(conn, wire.Message{Type: wire.MsgPublish, Payload: []byte(p.cfg.Server.StreamKey)}); err != nil {
		return err
	}

	if t := p.cfg.Network.ReadTimeoutSec; t > 0 {
		conn.SetReadDeadline(time.Now().Add(time.Duration(t) * time.Second))
	}
	reply, err := wire.ReadMessage(conn)
	if err != nil {
		return err
	}
	switch reply.Type {
	case wire.MsgAck:
		return nil
	case wire.MsgDisconnect:
		return streamerr.New(streamerr.KindAuth, "publish rejected: %s", reply.Payload)
	default:
		return streamerr.New(streamerr.KindIngest, "unexpected %s reply to publish", reply.Type)
	}
}

func (p *tcpPusher) Push(pkt media.Packet) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return streamerr.New(streamerr.KindNetwork, "push while disconnected")
	}

	msgType, err := msgTypeFor(pkt.Kind)
	if err != nil {
		return err
	}
	if t := p.cfg.Network.WriteTimeoutSec; t > 0 {
		conn.SetWriteDeadline(time.Now().Add(time.Duration(t) * time.Second))
	}
	return wire.WriteMessage(conn, wire.Message{Type: msgType, Timestamp: pkt.Timestamp, Payload: pkt.Data})
}

func (p *tcpPusher) Reconnect(ctx context.Context) error {
	if err := p.Disconnect(); err != nil {
		p.logger.WithError(err).Debug("Disconnect before reconnect failed")
	}
	if err := settle(ctx); err != nil {
		return err
	}
	return p.Connect(ctx)
}

func (p *tcpPusher) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	// Best effort: the server treats a bare close the same way.
	wire.WriteMessage(p.conn, wire.Message{Type: wire.MsgDisconnect})
	err := p.conn.Close()
	p.conn = nil
	return streamerr.Wrap(streamerr.KindIO, err, "closing ingest connection")
}
