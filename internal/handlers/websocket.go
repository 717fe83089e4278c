package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/logging"

	"github.com/mossy-p/webrtc-gateway/internal/gateway"
	"github.com/mossy-p/webrtc-gateway/internal/middleware"
	"github.com/mossy-p/webrtc-gateway/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// Sessions is what the handlers need from the session manager.
type Sessions interface {
	Serve(ctx context.Context, conn gateway.Conn, userID string) error
	Get(ctx context.Context, id string) (*models.SessionRecord, error)
	List() []*models.SessionRecord
	Stop(id string) error
}

var _ Sessions = (*gateway.Manager)(nil)

// HandleSignaling upgrades the request to a WebSocket and runs one
// signaling session on it until the session ends.
func HandleSignaling(sessions Sessions, loggerFactory logging.LoggerFactory) gin.HandlerFunc {
	log := loggerFactory.NewLogger("handlers")

	return func(c *gin.Context) {
		// Upgrade HTTP connection to WebSocket
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warnf("Failed to upgrade connection: %v", err)
			return
		}

		userID := c.GetString(middleware.UserIDKey)
		if err := sessions.Serve(c.Request.Context(), conn, userID); err != nil && !errors.Is(err, context.Canceled) {
			log.Debugf("Session from %s ended: %v", conn.RemoteAddr(), err)
		}
	}
}
