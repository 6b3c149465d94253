// Package store defines the persistence interface for the prediction
// engine. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/predyx/prediction-engine/internal/model"
)

var (
	// ErrNotFound is returned when a prediction id does not exist.
	ErrNotFound = errors.New("store: prediction not found")

	// ErrAlreadyResolved is returned when MarkResolved hits a prediction
	// whose resolution fields were already written. Resolution is
	// write-once; the store is the last line of defense.
	ErrAlreadyResolved = errors.New("store: prediction already resolved")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Append-only prediction ledger ---

	// CreatePrediction persists a new unresolved prediction and assigns
	// the next sequential id (1-based, gap-free). Sets p.ID.
	CreatePrediction(ctx context.Context, p *model.Prediction) (int64, error)

	// GetPrediction retrieves a prediction by id.
	GetPrediction(ctx context.Context, id int64) (*model.Prediction, error)

	// ListAll returns every prediction in creation order.
	ListAll(ctx context.Context) ([]model.Prediction, error)

	// ListByPredictor returns a predictor's predictions in creation order.
	ListByPredictor(ctx context.Context, predictor string) ([]model.Prediction, error)

	// ListByAsset returns an asset's predictions in creation order.
	ListByAsset(ctx context.Context, asset string) ([]model.Prediction, error)

	// ListByModel returns a model label's predictions in creation order.
	ListByModel(ctx context.Context, modelType string) ([]model.Prediction, error)

	// MarkResolved writes the resolution fields exactly once. Returns
	// ErrNotFound for an unknown id, ErrAlreadyResolved on a second call.
	MarkResolved(ctx context.Context, id int64, actual decimal.Decimal, wasAccurate bool, accuracyScore int64) error

	// --- Singleton configuration ---

	// GetConfig returns the engine configuration, or the default when
	// none has been saved yet.
	GetConfig(ctx context.Context) (model.Config, error)

	// SaveConfig replaces the engine configuration.
	SaveConfig(ctx context.Context, cfg model.Config) error
}
