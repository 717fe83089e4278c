package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pion/logging"

	"github.com/mossy-p/webrtc-gateway/internal/gateway"
	"github.com/mossy-p/webrtc-gateway/internal/middleware"
	"github.com/mossy-p/webrtc-gateway/internal/models"
)

// ListSessions lists the live sessions of this node (requires authentication)
func ListSessions(sessions Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		records := sessions.List()
		c.JSON(http.StatusOK, models.SessionListResponse{
			Sessions: records,
			Count:    len(records),
		})
	}
}

// GetSession gets one session record by ID, from any node
func GetSession(sessions Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := sessions.Get(c.Request.Context(), c.Param("sessionId"))
		if errors.Is(err, gateway.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
			return
		}

		c.JSON(http.StatusOK, rec)
	}
}

// DeleteSession stops a live session (requires authentication). Only the
// session owner or an admin may stop it; sessions opened without a token
// have no owner and can only be stopped by an admin.
func DeleteSession(sessions Sessions, admins []string, loggerFactory logging.LoggerFactory) gin.HandlerFunc {
	log := loggerFactory.NewLogger("handlers")

	isAdmin := make(map[string]bool, len(admins))
	for _, admin := range admins {
		isAdmin[admin] = true
	}

	return func(c *gin.Context) {
		userID, exists := c.Get(middleware.UserIDKey)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}

		sessionID := c.Param("sessionId")

		rec, err := sessions.Get(c.Request.Context(), sessionID)
		if errors.Is(err, gateway.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
			return
		}

		// Verify user owns the session
		user := userID.(string)
		if !isAdmin[user] && (rec.UserID == "" || rec.UserID != user) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Only the session owner can stop the session"})
			return
		}

		if err := sessions.Stop(sessionID); err != nil {
			// Known to the registry but running on another node.
			c.JSON(http.StatusConflict, gin.H{"error": "Session is not running on this node"})
			return
		}

		log.Infof("Session stopped: %s by user %s", sessionID, userID)

		c.JSON(http.StatusOK, gin.H{"message": "Session stopped"})
	}
}
