package handler

import (
	"net/http"
	"pipi/backend/internal/hub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Native clients send no Origin header.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket оновлює HTTP-з'єднання до WebSocket. Користувача вже
// визначив AuthMiddleware.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	userID := currentUser(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.Logger.Warn("Failed to upgrade connection", zap.String("user_id", userID), zap.Error(err))
		return
	}

	client := hub.NewWebSocketClient(userID, conn, h.Hub)

	// Реєстрація клієнта в Hub
	select {
	case h.Hub.RegisterCh <- client:
	case <-h.Hub.Done():
		conn.Close()
		return
	}

	client.Run()
}
