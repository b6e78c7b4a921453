// Package proximity tracks ranging samples from nearby devices taking part in the
// same activity and decides when two of them are close enough to count as met.
package proximity

import (
	"context"
	"errors"
	"fmt"
	"pipi/backend/internal/config"
	"pipi/backend/internal/models"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrAlreadyStarted = errors.New("proximity session already started")
	ErrEmptyScope     = errors.New("proximity session needs an activity id")
)

// Policy picks which discovered peer decides confirmation.
type Policy string

const (
	// MostRecentlyUpdated lets the peer with the latest sample govern.
	MostRecentlyUpdated Policy = "most_recently_updated"
	// Nearest lets the closest peer govern.
	Nearest Policy = "nearest"
	// LastDiscovered lets the last peer in discovery order govern, whatever its
	// update time.
	LastDiscovered Policy = "last_discovered"
)

// ParsePolicy maps a config value to a Policy. Empty selects MostRecentlyUpdated.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", MostRecentlyUpdated:
		return MostRecentlyUpdated, nil
	case Nearest, LastDiscovered:
		return Policy(s), nil
	}
	return "", fmt.Errorf("unknown confirmation policy %q", s)
}

// State of a Session.
type State int

const (
	StateIdle State = iota
	StateDiscovering
	StateConfirmed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscovering:
		return "discovering"
	case StateConfirmed:
		return "confirmed"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Sample is one ranging update for a peer.
type Sample struct {
	Scope     string
	Token     string
	Distance  float64
	Direction *models.Vector
}

// Peer is the last known ranging state of a discovered device.
type Peer struct {
	Token     string
	Distance  float64
	Direction *models.Vector
	UpdatedAt time.Time

	seq uint64
}

// Options configure a Session. Zero values fall back to defaults.
type Options struct {
	// Threshold in meters; a governing distance at or below it confirms.
	Threshold float64
	Policy    Policy
	// SearchTimeout ends an unconfirmed search. Zero waits indefinitely.
	SearchTimeout time.Duration

	OnConfirmed func(Peer)
	OnTimeout   func()

	Logger *zap.Logger
	Now    func() time.Time
}

// Session is the per-user proximity state for one verification attempt.
// It is safe for concurrent use; callbacks run without the lock held.
type Session struct {
	mu sync.Mutex

	opts      Options
	scope     string
	serviceID string
	transport Transport
	state     State
	peers     []Peer
	seq       uint64
	confirmed bool
	timer     *time.Timer
}

// NewSession creates an idle session.
func NewSession(opts Options) *Session {
	if opts.Threshold <= 0 {
		opts.Threshold = config.ProximityThresholdMeters
	}
	if opts.Policy == "" {
		opts.Policy = MostRecentlyUpdated
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{opts: opts}
}

// ServiceID derives the advertising identifier for an activity. Devices in
// different activities never share one.
func ServiceID(activityID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("pipi://activity/"+activityID)).String()
}

// Start scopes the session to activityID and starts the transport.
func (s *Session) Start(ctx context.Context, activityID string, t Transport) error {
	if activityID == "" {
		return ErrEmptyScope
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.scope = activityID
	s.serviceID = ServiceID(activityID)
	s.transport = t
	s.state = StateDiscovering
	if s.opts.SearchTimeout > 0 {
		s.timer = time.AfterFunc(s.opts.SearchTimeout, s.expire)
	}
	s.mu.Unlock()

	if t == nil {
		return nil
	}
	if err := t.Start(ctx, activityID, s); err != nil {
		s.Stop()
		return fmt.Errorf("start transport: %w", err)
	}
	s.opts.Logger.Debug("proximity discovery started",
		zap.String("scope", activityID),
		zap.String("service_id", s.ServiceID()))
	return nil
}

// Upsert records a sample, replacing the peer's previous one. Samples for another
// scope or arriving outside discovery are dropped, and so are negative distances. It reports whether this sample
// made the session confirm.
func (s *Session) Upsert(sample Sample) bool {
	s.mu.Lock()
	if !s.activeLocked() || sample.Scope != s.scope || sample.Token == "" || sample.Distance < 0 {
		s.mu.Unlock()
		return false
	}

	s.seq++
	peer := Peer{
		Token:     sample.Token,
		Distance:  sample.Distance,
		Direction: sample.Direction,
		UpdatedAt: s.opts.Now(),
		seq:       s.seq,
	}
	replaced := false
	for i := range s.peers {
		if s.peers[i].Token == sample.Token {
			s.peers[i] = peer
			replaced = true
			break
		}
	}
	if !replaced {
		s.peers = append(s.peers, peer)
	}

	governing, fire := s.evaluateLocked()
	s.mu.Unlock()

	if fire {
		s.confirm(governing)
	}
	return fire
}

// Remove forgets a peer that went out of range. Once the session has confirmed
// the peer set is kept as is, so a confirmed session never loses its last peer.
func (s *Session) Remove(token string) {
	s.mu.Lock()
	if s.state != StateDiscovering {
		s.mu.Unlock()
		return
	}
	for i := range s.peers {
		if s.peers[i].Token == token {
			s.peers = append(s.peers[:i], s.peers[i+1:]...)
			break
		}
	}
	governing, fire := s.evaluateLocked()
	s.mu.Unlock()

	if fire {
		s.confirm(governing)
	}
}

// OnSample implements Sink.
func (s *Session) OnSample(sample Sample) { s.Upsert(sample) }

// OnPeerRemoved implements Sink.
func (s *Session) OnPeerRemoved(token string) { s.Remove(token) }

// Confirmed reports the latched confirmation. It is false while no peer is known.
func (s *Session) Confirmed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmed && len(s.peers) > 0
}

// Governing returns the peer that currently decides confirmation.
func (s *Session) Governing() (Peer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.governingLocked()
}

// Peers returns a copy of the discovered peers in discovery order.
func (s *Session) Peers() []Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Peer, len(s.peers))
	copy(out, s.peers)
	return out
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Scope() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scope
}

func (s *Session) ServiceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serviceID
}

// Stop releases the transport and clears all peers. Calling it again is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == StateStopped || s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	t := s.teardownLocked()
	s.mu.Unlock()

	if t != nil {
		t.Stop()
	}
	s.opts.Logger.Debug("proximity discovery stopped", zap.String("scope", s.Scope()))
}

// Reset stops the session and returns it to idle so it can be started again.
func (s *Session) Reset() {
	s.Stop()
	s.mu.Lock()
	s.state = StateIdle
	s.scope = ""
	s.serviceID = ""
	s.seq = 0
	s.mu.Unlock()
}

func (s *Session) activeLocked() bool {
	return s.state == StateDiscovering || s.state == StateConfirmed
}

func (s *Session) teardownLocked() Transport {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	t := s.transport
	s.transport = nil
	s.peers = nil
	s.confirmed = false
	s.state = StateStopped
	return t
}

func (s *Session) governingLocked() (Peer, bool) {
	if len(s.peers) == 0 {
		return Peer{}, false
	}
	best := s.peers[len(s.peers)-1]
	switch s.opts.Policy {
	case Nearest:
		for _, p := range s.peers {
			if p.Distance < best.Distance {
				best = p
			}
		}
	case MostRecentlyUpdated:
		for _, p := range s.peers {
			if p.seq > best.seq {
				best = p
			}
		}
	}
	return best, true
}

// evaluateLocked latches confirmation and reports whether it just happened.
func (s *Session) evaluateLocked() (Peer, bool) {
	if s.confirmed {
		return Peer{}, false
	}
	p, ok := s.governingLocked()
	if !ok || p.Distance > s.opts.Threshold {
		return Peer{}, false
	}
	s.confirmed = true
	s.state = StateConfirmed
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return p, true
}

func (s *Session) confirm(p Peer) {
	s.opts.Logger.Info("proximity confirmed",
		zap.String("scope", s.Scope()),
		zap.String("peer", p.Token),
		zap.Float64("distance", p.Distance))
	if s.opts.OnConfirmed != nil {
		s.opts.OnConfirmed(p)
	}
}

func (s *Session) expire() {
	s.mu.Lock()
	if s.state != StateDiscovering {
		s.mu.Unlock()
		return
	}
	t := s.teardownLocked()
	s.mu.Unlock()

	if t != nil {
		t.Stop()
	}
	s.opts.Logger.Info("proximity search timed out")
	if s.opts.OnTimeout != nil {
		s.opts.OnTimeout()
	}
}
