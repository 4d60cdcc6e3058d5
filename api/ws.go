package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tradesync/logger"
	"tradesync/syncer"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Token auth already ran in the middleware; the API is CORS-open
	CheckOrigin: func(r *http.Request) bool { return true },
}

type progressMessage struct {
	Active   bool            `json:"active"`
	Progress syncer.Progress `json:"progress"`
}

// handleProgressWS pushes progress snapshots to the client until the sync
// finishes or the client disconnects. The tracker stays the source of truth;
// this is just one delivery transport next to polling.
func (s *Server) handleProgressWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	owner := currentUserID(c)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	// Drain client frames so close messages are noticed
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			progress, active := s.coordinator.Progress(owner)
			msg := progressMessage{Active: active, Progress: progress}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
			if active && (progress.Status == syncer.StatusSuccess || progress.Status == syncer.StatusError) {
				return
			}
		}
	}
}
