// Package stats maintains the aggregate accuracy statistics as a fold
// over the ledger's domain events.
//
// The engine is an in-memory projection: Apply advances it one event at a
// time as the ledger commits, and Rebuild recomputes it from scratch from
// a prediction snapshot (used at startup against a persistent store, and
// for audit — the incremental and replayed states must always agree).
package stats

import (
	"sync"

	"github.com/predyx/prediction-engine/internal/model"
)

// Engine holds the per-user and per-model aggregates. Safe for concurrent
// use; the ledger applies events inside its own critical section so
// readers never observe a resolved prediction with stale aggregates.
type Engine struct {
	mu     sync.RWMutex
	users  map[string]*model.UserStats
	models map[string]*model.ModelPerformance
}

// NewEngine creates an empty statistics engine.
func NewEngine() *Engine {
	return &Engine{
		users:  make(map[string]*model.UserStats),
		models: make(map[string]*model.ModelPerformance),
	}
}

// Apply folds one domain event into the aggregates. Events other than
// prediction creation/resolution are ignored — config changes do not
// alter historical statistics.
func (e *Engine) Apply(ev model.Event) {
	switch ev.Type {
	case model.EventPredictionCreated:
		e.applyCreated(ev.Prediction)
	case model.EventPredictionResolved:
		e.applyResolved(ev.Prediction)
	}
}

func (e *Engine) applyCreated(p *model.Prediction) {
	if p == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	u := e.user(p.Predictor)
	u.TotalPredictions++
	u.PerModelCount[p.ModelType]++
	u.PerAssetCount[p.Asset]++

	m := e.model(p.ModelType)
	m.TotalPredictions++
}

func (e *Engine) applyResolved(p *model.Prediction) {
	if p == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	u := e.user(p.Predictor)
	u.TotalAccuracyScore += p.AccuracyScore
	if p.WasAccurate {
		u.AccuratePredictions++
	}

	m := e.model(p.ModelType)
	m.TotalAccuracyScore += p.AccuracyScore
	if p.WasAccurate {
		m.AccuratePredictions++
	}
}

// Rebuild discards the current aggregates and recomputes them from a
// prediction snapshot, equivalent to replaying every created/resolved
// event in ledger order.
func (e *Engine) Rebuild(predictions []model.Prediction) {
	fresh := NewEngine()
	for i := range predictions {
		p := &predictions[i]
		fresh.applyCreated(p)
		if p.Resolved {
			fresh.applyResolved(p)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.users = fresh.users
	e.models = fresh.models
}

// user returns the stats record for a predictor, creating it lazily.
// Caller holds the write lock.
func (e *Engine) user(predictor string) *model.UserStats {
	u, ok := e.users[predictor]
	if !ok {
		u = &model.UserStats{
			Predictor:     predictor,
			PerModelCount: make(map[string]int64),
			PerAssetCount: make(map[string]int64),
		}
		e.users[predictor] = u
	}
	return u
}

// model returns the performance record for a label, creating it lazily.
// Caller holds the write lock.
func (e *Engine) model(modelType string) *model.ModelPerformance {
	m, ok := e.models[modelType]
	if !ok {
		m = &model.ModelPerformance{ModelType: modelType}
		e.models[modelType] = m
	}
	return m
}

// --- Read API ---

// UserStats returns a copy of a predictor's aggregates. A predictor with
// no predictions yields a zeroed record, not an error.
func (e *Engine) UserStats(predictor string) model.UserStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	u, ok := e.users[predictor]
	if !ok {
		return model.UserStats{
			Predictor:     predictor,
			PerModelCount: map[string]int64{},
			PerAssetCount: map[string]int64{},
		}
	}

	out := *u
	out.PerModelCount = make(map[string]int64, len(u.PerModelCount))
	for k, v := range u.PerModelCount {
		out.PerModelCount[k] = v
	}
	out.PerAssetCount = make(map[string]int64, len(u.PerAssetCount))
	for k, v := range u.PerAssetCount {
		out.PerAssetCount[k] = v
	}
	return out
}

// ModelPerformance returns a copy of a model label's aggregates, zeroed
// for never-used labels.
func (e *Engine) ModelPerformance(modelType string) model.ModelPerformance {
	e.mu.RLock()
	defer e.mu.RUnlock()

	m, ok := e.models[modelType]
	if !ok {
		return model.ModelPerformance{ModelType: modelType}
	}
	return *m
}

// UserAccuracyRate returns accurate/total in basis points, 0 when the
// predictor has no predictions. The denominator includes unresolved
// predictions — preserved reference behavior.
func (e *Engine) UserAccuracyRate(predictor string) int64 {
	return e.UserStats(predictor).AccuracyRate()
}

// UserAverageAccuracy returns the mean accuracy score in basis points.
func (e *Engine) UserAverageAccuracy(predictor string) int64 {
	return e.UserStats(predictor).AverageAccuracyScore()
}

// ModelAccuracyRate returns a label's accurate/total in basis points.
func (e *Engine) ModelAccuracyRate(modelType string) int64 {
	return e.ModelPerformance(modelType).AccuracyRate()
}

// ModelAverageAccuracy returns a label's mean score in basis points.
func (e *Engine) ModelAverageAccuracy(modelType string) int64 {
	return e.ModelPerformance(modelType).AverageAccuracyScore()
}

// UserModelCount returns how many predictions a predictor has made with a
// given model label, 0 if absent.
func (e *Engine) UserModelCount(predictor, modelType string) int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if u, ok := e.users[predictor]; ok {
		return u.PerModelCount[modelType]
	}
	return 0
}

// UserAssetCount returns how many predictions a predictor has made on a
// given asset, 0 if absent.
func (e *Engine) UserAssetCount(predictor, asset string) int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if u, ok := e.users[predictor]; ok {
		return u.PerAssetCount[asset]
	}
	return 0
}
