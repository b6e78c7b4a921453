package models

// Realtime message types exchanged over the websocket connection.
const (
	// client -> server
	MsgObserve       = "observe"
	MsgUnobserve     = "unobserve"
	MsgVerifyStart   = "verify_start"
	MsgVerifyStop    = "verify_stop"
	MsgRangingSample = "ranging_sample"
	MsgPeerRemoved   = "peer_removed"

	// server -> client
	MsgActivityUpdated       = "activity_updated"
	MsgActivityDeleted       = "activity_deleted"
	MsgVerificationStarted   = "verification_started"
	MsgVerificationProgress  = "verification_progress"
	MsgVerificationConfirmed = "verification_confirmed"
	MsgVerificationDismiss   = "verification_dismiss"
	MsgVerificationTimeout   = "verification_timeout"
	MsgVerificationRejected  = "verification_rejected"
	MsgTally                 = "tally"
	MsgError                 = "error"
)

// Vector is an optional direction towards a ranged peer.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// RealtimeMessage is the single envelope used on the websocket in both directions.
type RealtimeMessage struct {
	Type       string `json:"type"`
	SenderID   string `json:"sender_id,omitempty"`
	ActivityID string `json:"activity_id,omitempty"`

	// Ranging fields.
	Scope     string   `json:"scope,omitempty"`
	PeerToken string   `json:"peer_token,omitempty"`
	Distance  *float64 `json:"distance,omitempty"`
	Direction *Vector  `json:"direction,omitempty"`

	ServiceID string    `json:"service_id,omitempty"`
	Activity  *Activity `json:"activity,omitempty"`
	Status    Status    `json:"status,omitempty"`
	Tally     *Tally    `json:"tally,omitempty"`
	Content   string    `json:"content,omitempty"`
}

// Tally counts verified participants. Both counters are always encoded, zero
// included.
type Tally struct {
	Verified int `json:"verified"`
	Total    int `json:"total"`
}

// Activity event kinds published on the change bus.
const (
	EventActivityCreated = "created"
	EventActivityUpdated = "updated"
	EventActivityDeleted = "deleted"
)

// ActivityEvent is a change notification for one activity record.
type ActivityEvent struct {
	Kind       string    `json:"kind"`
	ActivityID string    `json:"activity_id"`
	Activity   *Activity `json:"activity,omitempty"`
}
