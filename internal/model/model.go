// Package model defines the core domain types shared across the prediction
// engine. All prices use shopspring/decimal — never float64 for money.
// Accuracy scores are int64 basis points (10000 = 100%).
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScaleBasisPoints is the fixed scale for accuracy scores and thresholds.
const ScaleBasisPoints int64 = 10000

// DefaultAccuracyThreshold is the default tolerance in basis points (5%).
// A resolved prediction is accurate when score >= 10000 - threshold.
const DefaultAccuracyThreshold int64 = 500

// Prediction is a record in the append-only prediction ledger.
// Immutable after creation except for the resolution fields, which are
// written exactly once.
type Prediction struct {
	ID             int64           `json:"id" db:"id"`
	Predictor      string          `json:"predictor" db:"predictor"`
	Asset          string          `json:"asset" db:"asset"`
	CurrentPrice   decimal.Decimal `json:"current_price" db:"current_price"`
	PredictedPrice decimal.Decimal `json:"predicted_price" db:"predicted_price"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	TargetTime     time.Time       `json:"target_time" db:"target_time"`
	ModelType      string          `json:"model_type" db:"model_type"`
	Metadata       string          `json:"metadata" db:"metadata"` // opaque caller-supplied blob, never parsed
	Resolved       bool            `json:"resolved" db:"resolved"`
	ActualPrice    decimal.Decimal `json:"actual_price" db:"actual_price"`
	WasAccurate    bool            `json:"was_accurate" db:"was_accurate"`
	AccuracyScore  int64           `json:"accuracy_score" db:"accuracy_score"` // basis points [0, 10000]
}

// UserStats aggregates a single predictor's ledger activity.
// Maintained incrementally by the stats engine; derived ratios are
// computed on read (see AccuracyRate / AverageAccuracyScore).
type UserStats struct {
	Predictor           string           `json:"predictor"`
	TotalPredictions    int64            `json:"total_predictions"`
	AccuratePredictions int64            `json:"accurate_predictions"`
	TotalAccuracyScore  int64            `json:"total_accuracy_score"`
	PerModelCount       map[string]int64 `json:"per_model_count"`
	PerAssetCount       map[string]int64 `json:"per_asset_count"`
}

// AccuracyRate returns accurate/total in basis points. The denominator is
// ALL predictions, resolved or not — pending predictions drag the rate
// down. This matches the upstream behavior and is preserved deliberately.
func (s UserStats) AccuracyRate() int64 {
	if s.TotalPredictions == 0 {
		return 0
	}
	return s.AccuratePredictions * ScaleBasisPoints / s.TotalPredictions
}

// AverageAccuracyScore returns the mean score across all predictions in
// basis points. Unresolved predictions contribute zero to the numerator.
func (s UserStats) AverageAccuracyScore() int64 {
	if s.TotalPredictions == 0 {
		return 0
	}
	return s.TotalAccuracyScore / s.TotalPredictions
}

// ModelPerformance aggregates accuracy across all predictors sharing one
// model label. Labels are opaque grouping keys — no registry, no validation.
type ModelPerformance struct {
	ModelType           string `json:"model_type"`
	TotalPredictions    int64  `json:"total_predictions"`
	AccuratePredictions int64  `json:"accurate_predictions"`
	TotalAccuracyScore  int64  `json:"total_accuracy_score"`
}

// AccuracyRate returns accurate/total in basis points.
func (m ModelPerformance) AccuracyRate() int64 {
	if m.TotalPredictions == 0 {
		return 0
	}
	return m.AccuratePredictions * ScaleBasisPoints / m.TotalPredictions
}

// AverageAccuracyScore returns the mean score in basis points.
func (m ModelPerformance) AverageAccuracyScore() int64 {
	if m.TotalPredictions == 0 {
		return 0
	}
	return m.TotalAccuracyScore / m.TotalPredictions
}

// Config is the singleton engine configuration, mutated only through the
// access-control guard.
type Config struct {
	AccuracyThreshold int64           `json:"accuracy_threshold"` // basis points [0, 10000]
	Paused            bool            `json:"paused"`
	Oracles           map[string]bool `json:"oracles"` // addresses allowed to resolve any prediction
}

// DefaultConfig returns the initial configuration.
func DefaultConfig() Config {
	return Config{
		AccuracyThreshold: DefaultAccuracyThreshold,
		Oracles:           make(map[string]bool),
	}
}

// IsOracle reports whether addr holds the oracle capability.
func (c Config) IsOracle(addr string) bool {
	return c.Oracles[addr]
}

// Clone returns a deep copy so callers cannot mutate the oracle set.
func (c Config) Clone() Config {
	out := c
	out.Oracles = make(map[string]bool, len(c.Oracles))
	for k, v := range c.Oracles {
		out.Oracles[k] = v
	}
	return out
}
