package hub

import (
	"context"
	"errors"
	"pipi/backend/internal/models"
	"pipi/backend/internal/proximity"
	"pipi/backend/internal/storage"
	"pipi/backend/internal/verifier"
	"time"

	"go.uber.org/zap"
)

// verification is one user's running attendance check.
type verification struct {
	userID   string
	activity models.Activity
	session  *proximity.Session
	relay    *proximity.RelayTransport
	dismiss  *time.Timer
}

func (v *verification) cancelDismiss() {
	if v.dismiss != nil {
		v.dismiss.Stop()
	}
}

// startVerification loads the activity off the hub goroutine and then starts a
// proximity session for userID scoped to it.
func (m *ManagerService) startVerification(userID, activityID string) {
	if activityID == "" {
		m.reject(userID, activityID, "activity_not_found")
		return
	}
	m.endVerification(userID)

	m.async(func(ctx context.Context) {
		a, err := m.Store.GetActivity(ctx, activityID)
		m.post(func() {
			if _, online := m.Clients[userID]; !online {
				return
			}
			if err != nil {
				if !errors.Is(err, storage.ErrNotFound) {
					m.Logger.Error("Failed to load activity for verification",
						zap.String("activity_id", activityID), zap.Error(err))
				}
				m.reject(userID, activityID, "activity_not_found")
				return
			}
			m.beginSession(userID, *a)
		})
	})
}

func (m *ManagerService) beginSession(userID string, a models.Activity) {
	if err := m.Verifier.Eligible(a, userID); err != nil {
		key := "not_member"
		if errors.Is(err, verifier.ErrHostSelfVerify) {
			key = "host_self_verify"
		}
		m.reject(userID, a.ID, key)
		return
	}
	// A second verify_start may have raced the load.
	m.endVerification(userID)

	v := &verification{
		userID:   userID,
		activity: a,
		relay:    proximity.NewRelayTransport(),
	}
	v.session = proximity.NewSession(proximity.Options{
		Threshold:     m.Options.Threshold,
		Policy:        m.Options.Policy,
		SearchTimeout: m.Options.SearchTimeout,
		Logger:        m.Logger,
		// Samples are delivered from the hub goroutine, so confirmation fires there.
		OnConfirmed: func(p proximity.Peer) { m.confirmed(v, p) },
		OnTimeout:   func() { m.post(func() { m.timedOut(v) }) },
	})
	if err := v.session.Start(m.ctx, a.ID, v.relay); err != nil {
		m.Logger.Error("Failed to start proximity session", zap.String("user_id", userID), zap.Error(err))
		m.reject(userID, a.ID, "internal_error")
		return
	}

	m.sessions[userID] = v
	m.Logger.Info("Verification started",
		zap.String("user_id", userID),
		zap.String("activity_id", a.ID))
	m.sendTo(userID, models.RealtimeMessage{
		Type:       models.MsgVerificationStarted,
		ActivityID: a.ID,
		ServiceID:  v.session.ServiceID(),
	})
}

func (m *ManagerService) handleSample(msg models.RealtimeMessage) {
	v, ok := m.sessions[msg.SenderID]
	if !ok {
		return
	}
	if msg.Distance == nil || msg.PeerToken == "" {
		m.Logger.Debug("Ranging sample without distance skipped", zap.String("user_id", msg.SenderID))
		return
	}
	if *msg.Distance < 0 {
		m.Logger.Warn("Ranging sample with negative distance skipped",
			zap.String("user_id", msg.SenderID),
			zap.Float64("distance", *msg.Distance))
		return
	}

	v.relay.Deliver(proximity.Sample{
		Scope:     msg.Scope,
		Token:     msg.PeerToken,
		Distance:  *msg.Distance,
		Direction: msg.Direction,
	})

	if v.session.State() != proximity.StateDiscovering {
		return
	}
	if p, ok := v.session.Governing(); ok {
		d := p.Distance
		m.sendTo(msg.SenderID, models.RealtimeMessage{
			Type:       models.MsgVerificationProgress,
			ActivityID: v.activity.ID,
			PeerToken:  p.Token,
			Distance:   &d,
			Direction:  p.Direction,
		})
	}
}

func (m *ManagerService) handlePeerRemoved(msg models.RealtimeMessage) {
	if v, ok := m.sessions[msg.SenderID]; ok {
		v.relay.Lost(msg.PeerToken)
	}
}

// confirmed runs on the hub goroutine. The attendance write happens in the
// background; the user sees the confirmation right away and the dismiss signal
// after DismissDelay.
func (m *ManagerService) confirmed(v *verification, p proximity.Peer) {
	if m.sessions[v.userID] != v {
		return
	}
	m.Logger.Info("Proximity confirmed",
		zap.String("user_id", v.userID),
		zap.String("activity_id", v.activity.ID),
		zap.Float64("distance", p.Distance))

	d := p.Distance
	m.sendTo(v.userID, models.RealtimeMessage{
		Type:       models.MsgVerificationConfirmed,
		ActivityID: v.activity.ID,
		PeerToken:  p.Token,
		Distance:   &d,
	})

	a := v.activity.Clone()
	m.async(func(ctx context.Context) {
		if _, err := m.Verifier.OnProximityConfirmed(ctx, a, v.userID); err != nil {
			m.Logger.Warn("Attendance not recorded",
				zap.String("user_id", v.userID),
				zap.String("activity_id", a.ID),
				zap.Error(err))
		}
	})

	v.dismiss = time.AfterFunc(m.Options.DismissDelay, func() {
		m.post(func() { m.dismissed(v) })
	})
}

func (m *ManagerService) dismissed(v *verification) {
	if m.sessions[v.userID] != v {
		return
	}
	m.sendTo(v.userID, models.RealtimeMessage{Type: models.MsgVerificationDismiss, ActivityID: v.activity.ID})
	m.endVerification(v.userID)
}

func (m *ManagerService) timedOut(v *verification) {
	if m.sessions[v.userID] != v {
		return
	}
	m.Logger.Info("Verification timed out",
		zap.String("user_id", v.userID),
		zap.String("activity_id", v.activity.ID))
	m.sendTo(v.userID, models.RealtimeMessage{Type: models.MsgVerificationTimeout, ActivityID: v.activity.ID})
	m.endVerification(v.userID)
}

// endVerification stops and forgets the user's session, if any.
func (m *ManagerService) endVerification(userID string) {
	v, ok := m.sessions[userID]
	if !ok {
		return
	}
	delete(m.sessions, userID)
	v.cancelDismiss()
	v.session.Stop()
}

func (m *ManagerService) reject(userID, activityID, key string) {
	m.sendTo(userID, models.RealtimeMessage{
		Type:       models.MsgVerificationRejected,
		ActivityID: activityID,
		Content:    key,
	})
}
