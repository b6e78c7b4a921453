// Package hub is the realtime side of the service. One goroutine owns the
// connected clients, activity observers and proximity sessions; websocket pumps,
// timers and store completions talk to it over channels.
package hub

import (
	"context"
	"pipi/backend/internal/lifecycle"
	"pipi/backend/internal/models"
	"pipi/backend/internal/proximity"
	"pipi/backend/internal/storage"
	"pipi/backend/internal/verifier"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// Options tune the verification flow.
type Options struct {
	Threshold     float64
	Policy        proximity.Policy
	SearchTimeout time.Duration
	DismissDelay  time.Duration
}

// Stats is a point-in-time view of the hub state.
type Stats struct {
	Clients   int
	Observers map[string]int
	Sessions  int
}

// ManagerService is the hub.
type ManagerService struct {
	Clients map[string]Client

	// Channels
	IncomingCh   chan models.RealtimeMessage
	RegisterCh   chan Client
	UnregisterCh chan Client

	Store    storage.Storage
	Verifier *verifier.Verifier
	Logger   *zap.Logger
	Options  Options

	actions   chan func()
	done      chan struct{}
	observers map[string]map[string]struct{}
	sessions  map[string]*verification

	// ctx is set by Run and used for background store work.
	ctx  context.Context
	work conc.WaitGroup
}

func NewManagerService(store storage.Storage, v *verifier.Verifier, opts Options, logger *zap.Logger) *ManagerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManagerService{
		Clients:      make(map[string]Client),
		IncomingCh:   make(chan models.RealtimeMessage),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		Store:        store,
		Verifier:     v,
		Logger:       logger,
		Options:      opts,
		actions:      make(chan func()),
		done:         make(chan struct{}),
		observers:    make(map[string]map[string]struct{}),
		sessions:     make(map[string]*verification),
		ctx:          context.Background(),
	}
}

// Done is closed when Run returns.
func (m *ManagerService) Done() <-chan struct{} {
	return m.done
}

// Run processes hub traffic until ctx is cancelled. Activity change events from
// the store are fanned out to observers.
func (m *ManagerService) Run(ctx context.Context) error {
	m.ctx = ctx
	events, err := m.Store.SubscribeActivityEvents(ctx)
	if err != nil {
		close(m.done)
		return err
	}

	defer func() {
		for _, v := range m.sessions {
			v.session.Stop()
			v.cancelDismiss()
		}
		close(m.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case client := <-m.RegisterCh:
			m.register(client)

		case client := <-m.UnregisterCh:
			m.unregister(client)

		case msg := <-m.IncomingCh:
			m.handleIncomingMessage(msg)

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			m.handleActivityEvent(ev)

		case f := <-m.actions:
			f()
		}
	}
}

// Wait blocks until background store writes started by the hub finish.
func (m *ManagerService) Wait() {
	m.work.Wait()
}

// Stats asks the hub goroutine for its current state.
func (m *ManagerService) Stats(ctx context.Context) (Stats, error) {
	out := make(chan Stats, 1)
	m.post(func() {
		s := Stats{
			Clients:   len(m.Clients),
			Observers: make(map[string]int, len(m.observers)),
			Sessions:  len(m.sessions),
		}
		for id, set := range m.observers {
			s.Observers[id] = len(set)
		}
		out <- s
	})
	select {
	case s := <-out:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	case <-m.done:
		return Stats{}, context.Canceled
	}
}

// post runs f on the hub goroutine. It must not be called from that goroutine.
func (m *ManagerService) post(f func()) {
	select {
	case m.actions <- f:
	case <-m.done:
	}
}

// async runs f in the background and keeps track of it for Wait.
func (m *ManagerService) async(f func(ctx context.Context)) {
	ctx := m.ctx
	m.work.Go(func() { f(ctx) })
}

func (m *ManagerService) register(client Client) {
	userID := client.GetUserID()
	if old, ok := m.Clients[userID]; ok && old != client {
		m.Logger.Info("Replacing existing connection", zap.String("user_id", userID))
		m.cleanup(old)
	}
	m.Clients[userID] = client
	m.Logger.Debug("Client registered", zap.String("user_id", userID))
}

func (m *ManagerService) unregister(client Client) {
	if current, ok := m.Clients[client.GetUserID()]; !ok || current != client {
		return
	}
	m.cleanup(client)
	m.Logger.Debug("Client unregistered", zap.String("user_id", client.GetUserID()))
}

// cleanup drops every trace of client: its verification session, its observe
// subscriptions and the connection itself.
func (m *ManagerService) cleanup(client Client) {
	userID := client.GetUserID()
	m.endVerification(userID)
	for activityID, set := range m.observers {
		delete(set, userID)
		if len(set) == 0 {
			delete(m.observers, activityID)
		}
	}
	delete(m.Clients, userID)
	client.Close()
}

func (m *ManagerService) handleIncomingMessage(msg models.RealtimeMessage) {
	if _, ok := m.Clients[msg.SenderID]; !ok {
		m.Logger.Warn("Message from unregistered client", zap.String("user_id", msg.SenderID))
		return
	}

	switch msg.Type {
	case models.MsgObserve:
		m.observe(msg.SenderID, msg.ActivityID)
	case models.MsgUnobserve:
		m.unobserve(msg.SenderID, msg.ActivityID)
	case models.MsgVerifyStart:
		m.startVerification(msg.SenderID, msg.ActivityID)
	case models.MsgVerifyStop:
		m.endVerification(msg.SenderID)
	case models.MsgRangingSample:
		m.handleSample(msg)
	case models.MsgPeerRemoved:
		m.handlePeerRemoved(msg)
	default:
		m.sendTo(msg.SenderID, models.RealtimeMessage{Type: models.MsgError, Content: "unknown_type"})
	}
}

func (m *ManagerService) observe(userID, activityID string) {
	if activityID == "" {
		return
	}
	set, ok := m.observers[activityID]
	if !ok {
		set = make(map[string]struct{})
		m.observers[activityID] = set
	}
	set[userID] = struct{}{}

	// Send the current state so the observer does not wait for the next change.
	m.async(func(ctx context.Context) {
		a, err := m.Store.GetActivity(ctx, activityID)
		if err != nil {
			m.Logger.Debug("Observed activity not loaded", zap.String("activity_id", activityID), zap.Error(err))
			return
		}
		m.post(func() {
			if _, still := m.observers[activityID][userID]; still {
				m.sendActivity(userID, *a)
			}
		})
	})
}

func (m *ManagerService) unobserve(userID, activityID string) {
	set, ok := m.observers[activityID]
	if !ok {
		return
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(m.observers, activityID)
	}
}

func (m *ManagerService) handleActivityEvent(ev models.ActivityEvent) {
	switch ev.Kind {
	case models.EventActivityDeleted:
		for userID, v := range m.sessions {
			if v.activity.ID == ev.ActivityID {
				m.endVerification(userID)
			}
		}
		for userID := range m.observers[ev.ActivityID] {
			m.sendTo(userID, models.RealtimeMessage{Type: models.MsgActivityDeleted, ActivityID: ev.ActivityID})
		}
		delete(m.observers, ev.ActivityID)

	default:
		if ev.Activity == nil {
			return
		}
		for _, v := range m.sessions {
			if v.activity.ID == ev.ActivityID {
				v.activity = ev.Activity.Clone()
			}
		}
		for userID := range m.observers[ev.ActivityID] {
			m.sendActivity(userID, *ev.Activity)
		}
	}
}

// sendActivity pushes the activity to one observer; the host also gets the tally.
func (m *ManagerService) sendActivity(userID string, a models.Activity) {
	m.sendTo(userID, models.RealtimeMessage{
		Type:       models.MsgActivityUpdated,
		ActivityID: a.ID,
		Activity:   &a,
		Status:     lifecycle.Status(a),
	})
	if a.HostID == userID {
		t := lifecycle.TallyOf(a)
		m.sendTo(userID, models.RealtimeMessage{
			Type:       models.MsgTally,
			ActivityID: a.ID,
			Tally:      &models.Tally{Verified: t.Verified, Total: t.Total},
		})
	}
}

// sendTo delivers msg without blocking the hub. A client that cannot keep up is
// disconnected.
func (m *ManagerService) sendTo(userID string, msg models.RealtimeMessage) {
	client, ok := m.Clients[userID]
	if !ok {
		return
	}
	select {
	case client.GetSendChannel() <- msg:
	default:
		m.Logger.Warn("Client send buffer full, disconnecting", zap.String("user_id", userID))
		m.cleanup(client)
	}
}
