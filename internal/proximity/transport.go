package proximity

import (
	"context"
	"sync"
)

// Sink receives peer events from a Transport.
type Sink interface {
	OnSample(Sample)
	OnPeerRemoved(token string)
}

// Transport advertises presence under a scope and scans for peers with the same
// scope, reporting their ranging samples to the sink until stopped.
type Transport interface {
	Start(ctx context.Context, scope string, sink Sink) error
	Stop()
}

// RelayTransport takes ranging samples that a device measured itself and relays
// over the realtime connection. It only forwards while started.
type RelayTransport struct {
	mu    sync.Mutex
	scope string
	sink  Sink
}

func NewRelayTransport() *RelayTransport {
	return &RelayTransport{}
}

func (r *RelayTransport) Start(_ context.Context, scope string, sink Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scope = scope
	r.sink = sink
	return nil
}

func (r *RelayTransport) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = nil
}

// Deliver forwards a relayed sample. An empty scope is filled with the relay's.
func (r *RelayTransport) Deliver(sample Sample) {
	r.mu.Lock()
	sink := r.sink
	if sample.Scope == "" {
		sample.Scope = r.scope
	}
	r.mu.Unlock()

	if sink != nil {
		sink.OnSample(sample)
	}
}

// Lost forwards a relayed peer removal.
func (r *RelayTransport) Lost(token string) {
	r.mu.Lock()
	sink := r.sink
	r.mu.Unlock()

	if sink != nil {
		sink.OnPeerRemoved(token)
	}
}

// MockTransport is a scriptable Transport for tests.
type MockTransport struct {
	mu       sync.Mutex
	StartErr error

	sink   Sink
	scope  string
	starts int
	stops  int
}

func (m *MockTransport) Start(_ context.Context, scope string, sink Sink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	if m.StartErr != nil {
		return m.StartErr
	}
	m.scope = scope
	m.sink = sink
	return nil
}

func (m *MockTransport) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	m.sink = nil
}

// Emit sends a sample in the transport's scope.
func (m *MockTransport) Emit(token string, distance float64) {
	m.mu.Lock()
	sink, scope := m.sink, m.scope
	m.mu.Unlock()
	if sink != nil {
		sink.OnSample(Sample{Scope: scope, Token: token, Distance: distance})
	}
}

// Lose reports that a peer disappeared.
func (m *MockTransport) Lose(token string) {
	m.mu.Lock()
	sink := m.sink
	m.mu.Unlock()
	if sink != nil {
		sink.OnPeerRemoved(token)
	}
}

func (m *MockTransport) Scope() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scope
}

func (m *MockTransport) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

func (m *MockTransport) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}
