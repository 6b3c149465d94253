package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/predyx/prediction-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
//
// Only point reads are cached: GetPrediction and GetConfig. List queries
// pass through — they feed analytics, not the hot resolve path.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreatePrediction(ctx context.Context, p *model.Prediction) (int64, error) {
	id, err := s.primary.CreatePrediction(ctx, p)
	if err != nil {
		return 0, err
	}
	s.cachePrediction(ctx, p)
	return id, nil
}

func (s *CachedStore) MarkResolved(ctx context.Context, id int64, actual decimal.Decimal, wasAccurate bool, accuracyScore int64) error {
	if err := s.primary.MarkResolved(ctx, id, actual, wasAccurate, accuracyScore); err != nil {
		return err
	}
	// Invalidate; next read re-populates with the resolved record.
	s.rdb.Del(ctx, predictionKey(id))
	return nil
}

func (s *CachedStore) SaveConfig(ctx context.Context, cfg model.Config) error {
	if err := s.primary.SaveConfig(ctx, cfg); err != nil {
		return err
	}
	s.rdb.Del(ctx, configKey())
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetPrediction(ctx context.Context, id int64) (*model.Prediction, error) {
	data, err := s.rdb.Get(ctx, predictionKey(id)).Bytes()
	if err == nil {
		var p model.Prediction
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	// Cache miss: read from primary.
	p, err := s.primary.GetPrediction(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cachePrediction(ctx, p)
	return p, nil
}

func (s *CachedStore) GetConfig(ctx context.Context) (model.Config, error) {
	data, err := s.rdb.Get(ctx, configKey()).Bytes()
	if err == nil {
		var cfg model.Config
		if json.Unmarshal(data, &cfg) == nil {
			if cfg.Oracles == nil {
				cfg.Oracles = make(map[string]bool)
			}
			return cfg, nil
		}
	}

	cfg, err := s.primary.GetConfig(ctx)
	if err != nil {
		return model.Config{}, err
	}

	if data, err := json.Marshal(cfg); err == nil {
		s.rdb.Set(ctx, configKey(), data, s.ttl)
	}
	return cfg, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListAll(ctx context.Context) ([]model.Prediction, error) {
	return s.primary.ListAll(ctx)
}

func (s *CachedStore) ListByPredictor(ctx context.Context, predictor string) ([]model.Prediction, error) {
	return s.primary.ListByPredictor(ctx, predictor)
}

func (s *CachedStore) ListByAsset(ctx context.Context, asset string) ([]model.Prediction, error) {
	return s.primary.ListByAsset(ctx, asset)
}

func (s *CachedStore) ListByModel(ctx context.Context, modelType string) ([]model.Prediction, error) {
	return s.primary.ListByModel(ctx, modelType)
}

// --- Cache helpers ---

func (s *CachedStore) cachePrediction(ctx context.Context, p *model.Prediction) {
	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, predictionKey(p.ID), data, s.ttl)
	}
}

func predictionKey(id int64) string { return fmt.Sprintf("prediction:%d", id) }
func configKey() string             { return "engine:config" }
