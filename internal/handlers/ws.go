package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"gamestream/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// signalSocket runs the duplex signaling channel. Each socket remembers
// the last session it negotiated so candidates without a session id still
// find their peer. Unknown message types are ignored.
func (h *Handlers) signalSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	lastSession := ""
	for {
		var msg protocol.SignalMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.WithError(err).Debug("Signaling socket closed")
			}
			return
		}

		switch msg.Type {
		case protocol.SignalOffer:
			answer, err := h.signals.HandleOffer(msg.StreamKey, msg.SDP)
			if err != nil {
				h.writeSignalError(conn, err)
				continue
			}
			lastSession = answer.SessionID
			if err := conn.WriteJSON(answer); err != nil {
				return
			}
		case protocol.SignalIceCandidate:
			sessionID := msg.SessionID
			if sessionID == "" {
				sessionID = lastSession
			}
			if err := h.signals.HandleCandidate(sessionID, msg); err != nil {
				h.writeSignalError(conn, err)
			}
		default:
			// Answers and errors originate server-side; anything else is
			// not ours to interpret.
		}
	}
}

func (h *Handlers) writeSignalError(conn *websocket.Conn, err error) {
	conn.WriteJSON(protocol.SignalMessage{
		Type:    protocol.SignalError,
		Message: err.Error(),
	})
}
