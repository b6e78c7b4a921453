package hub_test

import (
	"pipi/backend/internal/models"
	"sync"
	"testing"
	"time"
)

type MockClient struct {
	userID      string
	RecvChannel chan models.RealtimeMessage

	mu     sync.Mutex
	closed bool
}

func newMockClient(userID string) *MockClient {
	return &MockClient{
		userID:      userID,
		RecvChannel: make(chan models.RealtimeMessage, 64),
	}
}

func (c *MockClient) GetUserID() string {
	return c.userID
}

func (c *MockClient) GetSendChannel() chan<- models.RealtimeMessage {
	return c.RecvChannel
}

func (c *MockClient) Run() {
	// Not needed for testing
}

func (c *MockClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *MockClient) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// expect waits for the next message of type msgType, skipping others.
func (c *MockClient) expect(t *testing.T, msgType string) models.RealtimeMessage {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-c.RecvChannel:
			if msg.Type == msgType {
				return msg
			}
		case <-deadline:
			t.Fatalf("client %s did not receive %q", c.userID, msgType)
			return models.RealtimeMessage{}
		}
	}
}

// expectNone fails if a message of type msgType arrives within d.
func (c *MockClient) expectNone(t *testing.T, msgType string, d time.Duration) {
	t.Helper()
	deadline := time.After(d)
	for {
		select {
		case msg := <-c.RecvChannel:
			if msg.Type == msgType {
				t.Fatalf("client %s unexpectedly received %q", c.userID, msgType)
			}
		case <-deadline:
			return
		}
	}
}
