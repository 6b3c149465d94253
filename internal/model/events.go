package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types emitted by the ledger and the access-control guard.
// The stats engine folds over these; the WebSocket hub broadcasts them.
const (
	EventPredictionCreated  = "prediction_created"
	EventPredictionResolved = "prediction_resolved"
	EventUserStatsUpdated   = "user_stats_updated"
	EventThresholdChanged   = "threshold_changed"
	EventPausedChanged      = "paused_changed"
	EventOracleGranted      = "oracle_granted"
	EventOracleRevoked      = "oracle_revoked"
)

// Event is an immutable domain event. The full aggregate state is
// recomputable by replaying these in order.
type Event struct {
	EventID    string    `json:"event_id"` // uuid
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`

	// Set for prediction events.
	Prediction *Prediction `json:"prediction,omitempty"`

	// Set for user_stats_updated events.
	Stats *UserStats `json:"stats,omitempty"`

	// Set for config-change events.
	OldThreshold int64  `json:"old_threshold,omitempty"`
	NewThreshold int64  `json:"new_threshold,omitempty"`
	Paused       bool   `json:"paused,omitempty"`
	Oracle       string `json:"oracle,omitempty"`
}

// ResolutionResult is the success payload of a resolve call.
type ResolutionResult struct {
	ID            int64           `json:"id"`
	ActualPrice   decimal.Decimal `json:"actual_price"`
	WasAccurate   bool            `json:"was_accurate"`
	AccuracyScore int64           `json:"accuracy_score"`
}
