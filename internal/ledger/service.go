// Package ledger implements the append-only prediction ledger: recording
// predictions, resolving them against observed prices, and keeping the
// aggregate statistics in lockstep with every commit.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/predyx/prediction-engine/internal/metrics"
	"github.com/predyx/prediction-engine/internal/model"
	"github.com/predyx/prediction-engine/internal/score"
	"github.com/predyx/prediction-engine/internal/stats"
	"github.com/predyx/prediction-engine/internal/store"
)

// Service owns all mutations of the prediction ledger. A mutex serializes
// them (single-instance discipline): id allocation stays gap-free, the
// write-once resolution invariant holds, and the stats engine is advanced
// inside the same critical section so no reader ever observes a resolved
// prediction with stale aggregates. For horizontal scaling, replace with
// database-level optimistic concurrency.
type Service struct {
	store store.Store
	stats *stats.Engine
	mu    sync.Mutex
	hub   *WSHub // optional WebSocket hub for real-time broadcasts

	now func() time.Time
}

// NewService creates a new ledger service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, eng *stats.Engine, hub *WSHub) *Service {
	return &Service{
		store: st,
		stats: eng,
		hub:   hub,
		now:   time.Now,
	}
}

// SetNowFunc overrides the service clock. Test hook.
func (s *Service) SetNowFunc(fn func() time.Time) {
	s.now = fn
}

// Stats exposes the aggregate statistics engine for read-side consumers.
func (s *Service) Stats() *stats.Engine {
	return s.stats
}

// SubmitRequest carries the caller-supplied fields of a new prediction.
type SubmitRequest struct {
	Predictor      string          `json:"predictor"`
	Asset          string          `json:"asset"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	PredictedPrice decimal.Decimal `json:"predicted_price"`
	TargetTime     time.Time       `json:"target_time"`
	ModelType      string          `json:"model_type"`
	Metadata       string          `json:"metadata"` // stored verbatim, never parsed
}

// Submit validates and records a new prediction, assigns the next
// sequential id, and advances the aggregate counters. The whole commit is
// atomic: either every counter and list reflects the new prediction, or
// none does.
//
// Validation order (first failure wins): asset, currentPrice,
// predictedPrice, targetTime, modelType — then the pause gate.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*model.Prediction, error) {
	now := s.now().UTC()

	if req.Asset == "" {
		return nil, reject("asset", fmt.Errorf("%w: asset must not be empty", ErrValidation))
	}
	if req.CurrentPrice.LessThanOrEqual(decimal.Zero) {
		return nil, reject("current_price", fmt.Errorf("%w: current price must be positive", ErrValidation))
	}
	if req.PredictedPrice.LessThanOrEqual(decimal.Zero) {
		return nil, reject("predicted_price", fmt.Errorf("%w: predicted price must be positive", ErrValidation))
	}
	if !req.TargetTime.After(now) {
		return nil, reject("target_time", fmt.Errorf("%w: target time must be in the future", ErrValidation))
	}
	if req.ModelType == "" {
		return nil, reject("model_type", fmt.Errorf("%w: model type must not be empty", ErrValidation))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.store.GetConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Paused {
		return nil, reject("paused", ErrPaused)
	}

	p := &model.Prediction{
		Predictor:      req.Predictor,
		Asset:          req.Asset,
		CurrentPrice:   req.CurrentPrice,
		PredictedPrice: req.PredictedPrice,
		CreatedAt:      now,
		TargetTime:     req.TargetTime.UTC(),
		ModelType:      req.ModelType,
		Metadata:       req.Metadata,
	}

	if _, err := s.store.CreatePrediction(ctx, p); err != nil {
		return nil, fmt.Errorf("persist prediction: %w", err)
	}

	s.emit(model.Event{
		EventID:    uuid.NewString(),
		Type:       model.EventPredictionCreated,
		OccurredAt: now,
		Prediction: p,
	})

	metrics.PredictionsCreated.WithLabelValues(p.Asset).Inc()

	slog.Info("prediction submitted",
		"id", p.ID,
		"predictor", p.Predictor,
		"asset", p.Asset,
		"model", p.ModelType,
		"predicted", p.PredictedPrice.String(),
		"target_time", p.TargetTime,
	)

	return p, nil
}

// Resolve scores a prediction against the observed price and writes the
// resolution fields exactly once. Failure checks run in a fixed order:
// existence, already-resolved, authorization, price validity, timing.
//
// Authorization: the original predictor may always resolve their own
// prediction; oracle addresses may resolve any.
func (s *Service) Resolve(ctx context.Context, id int64, actual decimal.Decimal, caller string) (*model.ResolutionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.store.GetPrediction(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if p.Resolved {
		return nil, ErrAlreadyResolved
	}

	cfg, err := s.store.GetConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if caller != p.Predictor && !cfg.IsOracle(caller) {
		return nil, fmt.Errorf("%w: %s may not resolve prediction %d", ErrUnauthorized, caller, id)
	}
	if err := score.Valid(actual); err != nil {
		return nil, fmt.Errorf("%w: actual price must be positive", ErrValidation)
	}

	now := s.now().UTC()
	if now.Before(p.TargetTime) {
		return nil, fmt.Errorf("%w: prediction %d resolves at %s", ErrTooEarly, id, p.TargetTime.Format(time.RFC3339))
	}

	accuracyScore := score.Score(p.PredictedPrice, actual)
	wasAccurate := score.Accurate(accuracyScore, cfg.AccuracyThreshold)

	// The store enforces write-once independently; under the service
	// mutex this can only trip if the store is shared out-of-process.
	if err := s.store.MarkResolved(ctx, id, actual, wasAccurate, accuracyScore); err != nil {
		return nil, mapStoreErr(err)
	}

	p.Resolved = true
	p.ActualPrice = actual
	p.WasAccurate = wasAccurate
	p.AccuracyScore = accuracyScore

	s.emit(model.Event{
		EventID:    uuid.NewString(),
		Type:       model.EventPredictionResolved,
		OccurredAt: now,
		Prediction: p,
	})

	updated := s.stats.UserStats(p.Predictor)
	s.broadcast(model.Event{
		EventID:    uuid.NewString(),
		Type:       model.EventUserStatsUpdated,
		OccurredAt: now,
		Stats:      &updated,
	})

	metrics.PredictionsResolved.WithLabelValues(strconv.FormatBool(wasAccurate)).Inc()
	metrics.AccuracyScore.Observe(float64(accuracyScore))

	slog.Info("prediction resolved",
		"id", id,
		"caller", caller,
		"actual", actual.String(),
		"score_bp", accuracyScore,
		"accurate", wasAccurate,
	)

	return &model.ResolutionResult{
		ID:            id,
		ActualPrice:   actual,
		WasAccurate:   wasAccurate,
		AccuracyScore: accuracyScore,
	}, nil
}

// --- Read operations ---

// Get returns a prediction by id.
func (s *Service) Get(ctx context.Context, id int64) (*model.Prediction, error) {
	p, err := s.store.GetPrediction(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return p, nil
}

// All returns every prediction in creation order.
func (s *Service) All(ctx context.Context) ([]model.Prediction, error) {
	return s.store.ListAll(ctx)
}

// ByPredictor returns a predictor's predictions in creation order.
func (s *Service) ByPredictor(ctx context.Context, predictor string) ([]model.Prediction, error) {
	return s.store.ListByPredictor(ctx, predictor)
}

// ByAsset returns an asset's predictions in creation order.
func (s *Service) ByAsset(ctx context.Context, asset string) ([]model.Prediction, error) {
	return s.store.ListByAsset(ctx, asset)
}

// ByModel returns a model label's predictions in creation order.
func (s *Service) ByModel(ctx context.Context, modelType string) ([]model.Prediction, error) {
	return s.store.ListByModel(ctx, modelType)
}

// --- Internals ---

// emit advances the stats projection and broadcasts the event. Called
// with the mutation lock held.
func (s *Service) emit(ev model.Event) {
	s.stats.Apply(ev)
	s.broadcast(ev)
}

func (s *Service) broadcast(ev model.Event) {
	if s.hub != nil {
		s.hub.Broadcast(ev)
	}
}

func reject(reason string, err error) error {
	metrics.SubmitRejections.WithLabelValues(reason).Inc()
	return err
}

// mapStoreErr translates store sentinels into the ledger taxonomy.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrAlreadyResolved):
		return ErrAlreadyResolved
	default:
		return err
	}
}
