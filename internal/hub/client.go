package hub

import "pipi/backend/internal/models"

// Client is the interface for any realtime connection the hub talks to.
type Client interface {
	// GetUserID returns the authenticated user behind the connection.
	GetUserID() string

	// GetSendChannel returns the channel to which the hub sends messages intended
	// for this specific client. It is a send-only channel.
	GetSendChannel() chan<- models.RealtimeMessage

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts down the client's connection and associated channels.
	Close()
}
