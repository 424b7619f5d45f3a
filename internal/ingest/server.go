// Package ingest accepts publisher connections over TCP and relays their
// media into the stream registry. Each connection walks a strict state
// machine: handshake, connect, publish, then media until it closes.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"gamestream/internal/auth"
	"gamestream/internal/encoder"
	"gamestream/internal/registry"
	"gamestream/pkg/config"
	"gamestream/pkg/logging"
	"gamestream/pkg/media"
	"gamestream/pkg/monitoring"
	"gamestream/pkg/streamerr"
	"gamestream/pkg/wire"
)

// readTimeout bounds how long a publisher may go silent before the
// connection is considered dead.
const readTimeout = 60 * time.Second

// Server is the publisher-facing TCP listener.
type Server struct {
	cfg    config.IngestConfig
	gate   *auth.Gate
	reg    *registry.Registry
	logger logging.Logger

	conns    *prometheus.CounterVec
	sessions *prometheus.HistogramVec
	streams  *monitoring.StreamMetrics

	slots chan struct{}

	mu sync.Mutex
	ln net.Listener
}

// Addr reports the bound listener address, or nil before Run has bound it.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// NewServer wires the listener to the auth gate and registry. metrics and
// streamMetrics may be nil.
func NewServer(cfg config.IngestConfig, gate *auth.Gate, reg *registry.Registry, logger logging.Logger, metrics *monitoring.MetricsCollector, streamMetrics *monitoring.StreamMetrics) *Server {
	s := &Server{
		cfg:     cfg,
		gate:    gate,
		reg:     reg,
		logger:  logger,
		streams: streamMetrics,
		slots:   make(chan struct{}, maxConns(cfg)),
	}
	if metrics != nil {
		s.conns, s.sessions = metrics.CreateIngestMetrics()
	}
	return s
}

func maxConns(cfg config.IngestConfig) int {
	if cfg.MaxConnections <= 0 {
		return 100
	}
	return cfg.MaxConnections
}

// Run listens until ctx is cancelled. Each accepted connection gets its
// own goroutine; connections past max_connections are refused at accept.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddr, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return streamerr.Wrap(streamerr.KindIngest, err, "binding ingest listener")
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.logger.WithField("addr", addr).Info("Ingest server listening")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return streamerr.Wrap(streamerr.KindIngest, err, "accepting connection")
		}

		select {
		case s.slots <- struct{}{}:
		default:
			s.logger.WithField("remote", conn.RemoteAddr().String()).Warn("Connection limit reached, refusing publisher")
			s.count("refused")
			conn.Close()
			continue
		}

		go func() {
			defer func() { <-s.slots }()
			s.handle(ctx, conn)
		}()
	}
}

func (s *Server) count(status string) {
	if s.conns != nil {
		s.conns.WithLabelValues(status).Inc()
	}
}

func (s *Server) countPacket(kind media.Kind) {
	if s.streams != nil {
		s.streams.Packets.WithLabelValues(kind.String(), "in").Inc()
	}
}

// connState tracks where a publisher connection is in its lifecycle.
type connState int

const (
	stateHandshake connState = iota
	stateConnected
	statePublishing
	stateClosed
)

// handle walks one connection through the state machine. Whatever way the
// connection ends, a stream it published is finalized exactly once:
// status to stopped (or error) and removal from the registry.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log := s.logger.WithField("remote", conn.RemoteAddr().String())

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	if err := wire.ServerHandshake(conn); err != nil {
		log.WithError(err).Warn("Handshake failed")
		s.count("failed")
		return
	}

	state := stateHandshake
	app := ""
	var stream *registry.LiveStream
	started := time.Now()

	var failure error
	defer func() {
		if stream != nil {
			s.finalize(stream, failure, log)
			if s.sessions != nil {
				s.sessions.WithLabelValues("tcp").Observe(time.Since(started).Seconds())
			}
		}
	}()

	for state != stateClosed {
		if ctx.Err() != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		msg, err := wire.ReadMessage(conn)
		if err != nil {
			if !streamerr.Is(err, streamerr.KindConnectionClosed) {
				failure = err
				log.WithError(err).Warn("Publisher connection errored")
			}
			return
		}

		switch state {
		case stateHandshake:
			if msg.Type != wire.MsgConnect {
				failure = streamerr.New(streamerr.KindIngest, "expected connect, got %s", msg.Type)
				log.WithField("type", msg.Type.String()).Warn("Protocol violation before connect")
				s.count("failed")
				return
			}
			app = string(msg.Payload)
			state = stateConnected
			log = log.WithField("app", app)

		case stateConnected:
			if msg.Type != wire.MsgPublish {
				failure = streamerr.New(streamerr.KindIngest, "expected publish, got %s", msg.Type)
				log.WithField("type", msg.Type.String()).Warn("Protocol violation before publish")
				s.count("failed")
				return
			}
			key := string(msg.Payload)

			// The gate is consulted before the registry is touched; a
			// rejected key leaves no trace behind.
			if err := s.gate.Validate(key); err != nil {
				log.WithField("stream_key", key).Warn("Publish rejected by auth gate")
				s.count("rejected")
				wire.WriteMessage(conn, wire.Message{Type: wire.MsgDisconnect, Payload: []byte("invalid stream key")})
				return
			}

			stream = s.reg.Create(key)
			stream.SetStatus(registry.StatusLive)
			state = statePublishing
			started = time.Now()
			log = log.WithFields(logging.Fields{"stream_key": key, "stream_id": stream.ID})
			log.Info("Publisher went live")
			s.count("accepted")
			if s.streams != nil {
				s.streams.ActiveStreams.WithLabelValues("live").Inc()
			}

			if err := wire.WriteMessage(conn, wire.Message{Type: wire.MsgAck}); err != nil {
				failure = err
				return
			}

		case statePublishing:
			switch msg.Type {
			case wire.MsgVideo, wire.MsgAudio:
				pkt, err := packetFromMessage(msg)
				if err != nil {
					failure = err
					return
				}
				s.countPacket(pkt.Kind)
				stream.Broadcast(pkt)
			case wire.MsgMetadata:
				s.countPacket(media.KindMetadata)
				s.applyMetadata(stream, msg, log)
			case wire.MsgDisconnect:
				log.Info("Publisher disconnected cleanly")
				state = stateClosed
			default:
				log.WithField("type", msg.Type.String()).Debug("Ignoring unexpected message while publishing")
			}
		}
	}
}

// applyMetadata updates the stream descriptor from a metadata packet and
// forwards the packet so viewers and the cache see it too.
func (s *Server) applyMetadata(stream *registry.LiveStream, msg wire.Message, log *logrus.Entry) {
	pkt, err := packetFromMessage(msg)
	if err != nil {
		return
	}
	title, description, video, audio, err := encoder.ParseMetadata(pkt.Data)
	if err != nil {
		log.WithError(err).Warn("Ignoring malformed metadata packet")
		return
	}
	stream.SetMetadata(title, description, video, audio)
	stream.Broadcast(pkt)
}

// finalize runs the single teardown path shared by every way a publishing
// connection can end.
func (s *Server) finalize(stream *registry.LiveStream, failure error, log *logrus.Entry) {
	if failure != nil && !errors.Is(failure, context.Canceled) {
		stream.Fail(failure.Error())
	} else {
		stream.SetStatus(registry.StatusStopping)
		stream.SetStatus(registry.StatusStopped)
	}
	s.reg.RemoveStream(stream)
	if s.streams != nil {
		s.streams.ActiveStreams.WithLabelValues("live").Dec()
	}
	log.Info("Stream finalized")
}
