// Package handlers exposes the server's HTTP surface: the stream API, HLS
// delivery, WebRTC signaling over POST and WebSocket, and the optional
// admin key-provisioning endpoints.
package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"gamestream/internal/auth"
	"gamestream/internal/hls"
	"gamestream/internal/registry"
	"gamestream/internal/signaling"
	"gamestream/pkg/logging"
	"gamestream/pkg/protocol"
	"gamestream/pkg/streamerr"
)

// Handlers bundles the server-side components the HTTP layer fronts.
type Handlers struct {
	reg      *registry.Registry
	gate     *auth.Gate
	signals  *signaling.Manager
	packager *hls.Packager
	logger   logging.Logger

	staticDir string
}

// New wires the handler set.
func New(reg *registry.Registry, gate *auth.Gate, signals *signaling.Manager, packager *hls.Packager, staticDir string, logger logging.Logger) *Handlers {
	return &Handlers{
		reg:       reg,
		gate:      gate,
		signals:   signals,
		packager:  packager,
		logger:    logger,
		staticDir: staticDir,
	}
}

// Register mounts all routes on the router.
func (h *Handlers) Register(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.GET("/streams", h.listStreams)
		api.GET("/streams/:key", h.getStream)
		api.GET("/streams/:key/stats", h.getStreamStats)
		api.POST("/webrtc/signal", h.postSignal)
		api.GET("/webrtc/ws", h.signalSocket)

		if h.gate.AdminEnabled() {
			admin := api.Group("/auth", h.requireAdmin())
			admin.POST("/keys", h.addStreamKey)
			admin.DELETE("/keys/:key", h.removeStreamKey)
		}
	}

	router.GET("/hls/:key/:file", h.serveHLS)

	if h.staticDir != "" {
		router.NoRoute(h.serveStatic)
	}
}

func (h *Handlers) abortWith(c *gin.Context, err error) {
	c.JSON(streamerr.HTTPStatus(err), protocol.ErrorResponse{Error: err.Error()})
}

func (h *Handlers) listStreams(c *gin.Context) {
	streams := h.reg.List()
	infos := make([]protocol.StreamInfo, 0, len(streams))
	for _, s := range streams {
		infos = append(infos, s.Info())
	}
	c.JSON(http.StatusOK, infos)
}

func (h *Handlers) getStream(c *gin.Context) {
	stream, err := h.reg.Get(c.Param("key"))
	if err != nil {
		h.abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, stream.Info())
}

func (h *Handlers) getStreamStats(c *gin.Context) {
	stream, err := h.reg.Get(c.Param("key"))
	if err != nil {
		h.abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, stream.Stats())
}

// postSignal answers a single signaling message. Offers return the
// negotiated answer; candidates are acknowledged with no body; other
// message types are no-ops.
func (h *Handlers) postSignal(c *gin.Context) {
	var msg protocol.SignalMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		h.abortWith(c, streamerr.Wrap(streamerr.KindSerialization, err, "parsing signal"))
		return
	}

	switch msg.Type {
	case protocol.SignalOffer:
		answer, err := h.signals.HandleOffer(msg.StreamKey, msg.SDP)
		if err != nil {
			h.abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, answer)
	case protocol.SignalIceCandidate:
		if err := h.signals.HandleCandidate(msg.SessionID, msg); err != nil {
			h.abortWith(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	default:
		c.Status(http.StatusNoContent)
	}
}

// serveHLS dispatches on the file name inside a single route so playlist
// and segment requests share the same path shape.
func (h *Handlers) serveHLS(c *gin.Context) {
	key := c.Param("key")
	file := c.Param("file")

	if file == "playlist.m3u8" {
		playlist, err := h.packager.Playlist(key)
		if err != nil {
			h.abortWith(c, err)
			return
		}
		c.Data(http.StatusOK, "application/vnd.apple.mpegurl", []byte(playlist))
		return
	}

	data, err := h.packager.Segment(key, file)
	if err != nil {
		h.abortWith(c, err)
		return
	}
	c.Data(http.StatusOK, "video/mp2t", data)
}

// serveStatic serves files from the configured static directory for any
// unmatched route, with a JSON 404 otherwise.
func (h *Handlers) serveStatic(c *gin.Context) {
	if c.Request.Method != http.MethodGet {
		c.JSON(http.StatusNotFound, protocol.ErrorResponse{Error: "not found"})
		return
	}
	rel := strings.TrimPrefix(c.Request.URL.Path, "/")
	if rel == "" {
		rel = "index.html"
	}
	path := filepath.Join(h.staticDir, filepath.Clean("/"+rel))
	if !strings.HasPrefix(path, filepath.Clean(h.staticDir)) {
		c.JSON(http.StatusNotFound, protocol.ErrorResponse{Error: "not found"})
		return
	}
	c.File(path)
}

// requireAdmin guards the provisioning endpoints with a bearer token.
func (h *Handlers) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, protocol.ErrorResponse{Error: "missing bearer token"})
			return
		}
		if _, err := h.gate.ValidateAdminToken(token); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, protocol.ErrorResponse{Error: err.Error()})
			return
		}
		c.Next()
	}
}

type streamKeyRequest struct {
	StreamKey string `json:"stream_key" binding:"required"`
}

func (h *Handlers) addStreamKey(c *gin.Context) {
	var req streamKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abortWith(c, streamerr.Wrap(streamerr.KindSerialization, err, "parsing request"))
		return
	}
	h.gate.AddStreamKey(req.StreamKey)
	h.logger.WithField("stream_key", req.StreamKey).Info("Stream key provisioned")
	c.JSON(http.StatusCreated, gin.H{"stream_key": req.StreamKey})
}

func (h *Handlers) removeStreamKey(c *gin.Context) {
	key := c.Param("key")
	h.gate.RemoveStreamKey(key)
	h.logger.WithField("stream_key", key).Info("Stream key revoked")
	c.Status(http.StatusNoContent)
}
