package config

import "time"

const (
	// Proximity
	ProximityThresholdMeters = 0.2
	DismissDelay             = 1 * time.Second

	// Auth
	TokenTTL          = 72 * time.Hour
	TokenIssuer       = "pipi-service"
	MinPasswordLength = 8

	// Join retries on a lost compare-and-set
	JoinRetryInitialInterval = 20 * time.Millisecond
	JoinRetryMaxInterval     = 200 * time.Millisecond
	JoinRetryMaxRetries      = 5

	// Realtime
	ActivityEventsChannel = "activities:events"
	ClientSendBuffer      = 256
)

// Join modes.
const (
	JoinModeLiteral     = "literal"
	JoinModeConditional = "conditional"
)

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)
