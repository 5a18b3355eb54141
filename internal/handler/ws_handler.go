package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hummingbirdtestai/mocktest-engine/internal/engine"
	"github.com/hummingbirdtestai/mocktest-engine/internal/middleware"
	ws "github.com/hummingbirdtestai/mocktest-engine/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams live session events (clock ticks, section transitions,
// palette refreshes) to the rendering layer.
type WSHandler struct {
	registry *engine.Registry
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(registry *engine.Registry, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		registry: registry,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/session/stream
// Upgrades to WebSocket and forwards every engine event for the student's
// session until either side disconnects.
func (h *WSHandler) SessionStream(c *gin.Context) {
	studentID := middleware.GetStudentID(c)
	if studentID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sess, err := h.registry.GetOrCreate(c.Request.Context(), studentID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "session unavailable"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("student_id", studentID).Logger()
	wsLog.Info().Msg("Student connected")

	events, cancel := sess.Subscribe()
	defer cancel()

	// Reader goroutine: the protocol is push-only apart from ping, so the
	// reader exists to answer pings and to notice the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg ws.RequestEnvelope
			if err := ws.ReadJSON(conn, &msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					wsLog.Warn().Err(err).Msg("Unexpected close")
				} else {
					wsLog.Debug().Msg("Connection closed")
				}
				return
			}
			if msg.Action == ws.ActionPing {
				if err := ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong}); err != nil {
					return
				}
			}
		}
	}()

	for {
		select {
		case <-done:
			wsLog.Info().Msg("Student disconnected")
			return
		case ev, open := <-events:
			if !open {
				// Session was closed server-side (eviction or shutdown).
				ws.WriteError(conn, "session closed")
				return
			}
			if err := ws.WriteTyped(conn, ws.SessionEvent{Event: ws.Event(ev.Type), Payload: ev}); err != nil {
				wsLog.Debug().Err(err).Msg("Write failed, dropping connection")
				return
			}
		}
	}
}
