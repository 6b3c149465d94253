package store

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/predyx/prediction-engine/internal/model"
)

// MemoryStore implements Store with in-memory slices and maps. Used for
// testing and development. Not suitable for production (no persistence).
//
// Predictions are kept in an append-only slice where index i holds id i+1,
// which makes the gap-free sequential id invariant structural.
type MemoryStore struct {
	mu          sync.RWMutex
	predictions []model.Prediction
	byPredictor map[string][]int64
	byAsset     map[string][]int64
	byModel     map[string][]int64
	config      model.Config
}

// NewMemoryStore creates a new in-memory store with default config.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byPredictor: make(map[string][]int64),
		byAsset:     make(map[string][]int64),
		byModel:     make(map[string][]int64),
		config:      model.DefaultConfig(),
	}
}

func (s *MemoryStore) CreatePrediction(_ context.Context, p *model.Prediction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = int64(len(s.predictions)) + 1
	s.predictions = append(s.predictions, *p)
	s.byPredictor[p.Predictor] = append(s.byPredictor[p.Predictor], p.ID)
	s.byAsset[p.Asset] = append(s.byAsset[p.Asset], p.ID)
	s.byModel[p.ModelType] = append(s.byModel[p.ModelType], p.ID)
	return p.ID, nil
}

func (s *MemoryStore) GetPrediction(_ context.Context, id int64) (*model.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id < 1 || id > int64(len(s.predictions)) {
		return nil, ErrNotFound
	}
	// Copy to avoid external mutation.
	p := s.predictions[id-1]
	return &p, nil
}

func (s *MemoryStore) ListAll(_ context.Context) ([]model.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Prediction, len(s.predictions))
	copy(out, s.predictions)
	return out, nil
}

func (s *MemoryStore) ListByPredictor(ctx context.Context, predictor string) ([]model.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydrate(s.byPredictor[predictor]), nil
}

func (s *MemoryStore) ListByAsset(ctx context.Context, asset string) ([]model.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydrate(s.byAsset[asset]), nil
}

func (s *MemoryStore) ListByModel(ctx context.Context, modelType string) ([]model.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydrate(s.byModel[modelType]), nil
}

// hydrate resolves an id list to copies of the records. Caller holds the
// read lock. Id lists preserve creation order by construction.
func (s *MemoryStore) hydrate(ids []int64) []model.Prediction {
	out := make([]model.Prediction, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.predictions[id-1])
	}
	return out
}

func (s *MemoryStore) MarkResolved(_ context.Context, id int64, actual decimal.Decimal, wasAccurate bool, accuracyScore int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id < 1 || id > int64(len(s.predictions)) {
		return ErrNotFound
	}
	p := &s.predictions[id-1]
	if p.Resolved {
		return ErrAlreadyResolved
	}
	p.Resolved = true
	p.ActualPrice = actual
	p.WasAccurate = wasAccurate
	p.AccuracyScore = accuracyScore
	return nil
}

func (s *MemoryStore) GetConfig(_ context.Context) (model.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Clone(), nil
}

func (s *MemoryStore) SaveConfig(_ context.Context, cfg model.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg.Clone()
	return nil
}
