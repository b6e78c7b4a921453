package hub

import (
	"encoding/json"
	"pipi/backend/internal/config"
	"pipi/backend/internal/models"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// WebSocketClient реалізує інтерфейс hub.Client
type WebSocketClient struct {
	UserID string
	Conn   *websocket.Conn
	Hub    *ManagerService
	Send   chan models.RealtimeMessage
	Logger *zap.Logger
}

func NewWebSocketClient(userID string, conn *websocket.Conn, h *ManagerService) *WebSocketClient {
	return &WebSocketClient{
		UserID: userID,
		Conn:   conn,
		Hub:    h,
		Send:   make(chan models.RealtimeMessage, config.ClientSendBuffer),
		Logger: h.Logger.With(zap.String("user_id", userID)),
	}
}

func (c *WebSocketClient) GetUserID() string                             { return c.UserID }
func (c *WebSocketClient) GetSendChannel() chan<- models.RealtimeMessage { return c.Send }

// Run запускає 'pumps' для WebSocket
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close закриває Send канал (що зупинить writePump). Викликається лише хабом.
func (c *WebSocketClient) Close() {
	close(c.Send)
}

func (c *WebSocketClient) readPump() {
	defer func() {
		select {
		case c.Hub.UnregisterCh <- c:
		case <-c.Hub.Done():
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Logger.Warn("Error reading message", zap.Error(err))
			}
			break
		}

		var msg models.RealtimeMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.Logger.Debug("Error decoding JSON from client", zap.Error(err))
			continue // Пропускаємо невірне повідомлення
		}

		// Відправник завжди той, хто автентифікований на з'єднанні
		msg.SenderID = c.UserID

		select {
		case c.Hub.IncomingCh <- msg:
		case <-c.Hub.Done():
			return
		}
	}
}

// writePump читає повідомлення з каналу Send і записує їх у WebSocket.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Канал закрито хабом, закриваємо з'єднання WS
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteJSON(message); err != nil {
				c.Logger.Debug("Error writing message", zap.Error(err))
				return
			}

		case <-ticker.C:
			// Надсилаємо Ping для підтримки з'єднання активним
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
