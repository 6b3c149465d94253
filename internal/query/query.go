// Package query computes read-side projections over hydrated prediction
// slices: filters, per-key breakdowns, sentiment, rankings, trending
// assets, and model comparisons. Everything here is pure — no state is
// mutated and the ledger is never written.
package query

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/predyx/prediction-engine/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Criteria is a conjunctive filter: every set field must match.
type Criteria struct {
	Resolved  *bool
	Asset     string
	ModelType string
	Predictor string
}

// Filter returns the predictions matching every set criterion, in the
// input (creation) order.
func Filter(preds []model.Prediction, c Criteria) []model.Prediction {
	out := make([]model.Prediction, 0, len(preds))
	for _, p := range preds {
		if c.Resolved != nil && p.Resolved != *c.Resolved {
			continue
		}
		if c.Asset != "" && p.Asset != c.Asset {
			continue
		}
		if c.ModelType != "" && p.ModelType != c.ModelType {
			continue
		}
		if c.Predictor != "" && p.Predictor != c.Predictor {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Windows accepted by ParseWindow.
const (
	Window1d  = "1d"
	Window7d  = "7d"
	Window30d = "30d"
	Window90d = "90d"
)

// ParseWindow maps a timeframe label to a duration. Unknown labels fall
// back to the given default.
func ParseWindow(label string, fallback time.Duration) time.Duration {
	switch label {
	case Window1d:
		return 24 * time.Hour
	case Window7d:
		return 7 * 24 * time.Hour
	case Window30d:
		return 30 * 24 * time.Hour
	case Window90d:
		return 90 * 24 * time.Hour
	default:
		return fallback
	}
}

// InWindow retains predictions whose CreatedAt falls within
// [now - window, now].
func InWindow(preds []model.Prediction, window time.Duration, now time.Time) []model.Prediction {
	cutoff := now.Add(-window)
	out := make([]model.Prediction, 0, len(preds))
	for _, p := range preds {
		if p.CreatedAt.Before(cutoff) || p.CreatedAt.After(now) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Breakdown is one partition of resolved predictions keyed by a
// secondary dimension (asset or model label).
type Breakdown struct {
	Key             string          `json:"key"`
	Total           int64           `json:"total"`
	Accurate        int64           `json:"accurate"`
	AccuracyRate    decimal.Decimal `json:"accuracy_rate"`    // percent: accurate/total*100
	AverageAccuracy decimal.Decimal `json:"average_accuracy"` // percent: (Σscore/total)/100
}

// BreakdownByAsset partitions resolved predictions by asset.
func BreakdownByAsset(preds []model.Prediction) []Breakdown {
	return breakdown(preds, func(p model.Prediction) string { return p.Asset })
}

// BreakdownByModel partitions resolved predictions by model label.
func BreakdownByModel(preds []model.Prediction) []Breakdown {
	return breakdown(preds, func(p model.Prediction) string { return p.ModelType })
}

func breakdown(preds []model.Prediction, key func(model.Prediction) string) []Breakdown {
	type agg struct {
		total, accurate, scoreSum int64
	}
	groups := make(map[string]*agg)

	for _, p := range preds {
		if !p.Resolved {
			continue
		}
		k := key(p)
		g, ok := groups[k]
		if !ok {
			g = &agg{}
			groups[k] = g
		}
		g.total++
		g.scoreSum += p.AccuracyScore
		if p.WasAccurate {
			g.accurate++
		}
	}

	out := make([]Breakdown, 0, len(groups))
	for k, g := range groups {
		total := decimal.NewFromInt(g.total)
		rate := decimal.NewFromInt(g.accurate).Div(total).Mul(hundred).Round(2)
		avg := decimal.NewFromInt(g.scoreSum).Div(total).Div(hundred).Round(2)
		out = append(out, Breakdown{
			Key:             k,
			Total:           g.total,
			Accurate:        g.accurate,
			AccuracyRate:    rate,
			AverageAccuracy: avg,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// SentimentSummary buckets predictions by direction. Bullish means the
// predicted price strictly exceeds the price at submission; bearish means
// strictly below. Exact equality is the residual neutral bucket —
// preserved literal behavior, see design notes.
type SentimentSummary struct {
	Bullish int64 `json:"bullish"`
	Bearish int64 `json:"bearish"`
	Neutral int64 `json:"neutral"`
}

// Sentiment classifies each prediction by direction.
func Sentiment(preds []model.Prediction) SentimentSummary {
	var s SentimentSummary
	for _, p := range preds {
		switch {
		case p.PredictedPrice.GreaterThan(p.CurrentPrice):
			s.Bullish++
		case p.PredictedPrice.LessThan(p.CurrentPrice):
			s.Bearish++
		default:
			s.Neutral++
		}
	}
	return s
}

// MostAccurate returns up to n resolved predictions sorted by accuracy
// score descending. Ties break by id ascending for a stable ordering.
func MostAccurate(preds []model.Prediction, n int) []model.Prediction {
	return rank(preds, n, func(a, b model.Prediction) bool {
		if a.AccuracyScore != b.AccuracyScore {
			return a.AccuracyScore > b.AccuracyScore
		}
		return a.ID < b.ID
	})
}

// LeastAccurate returns up to n resolved predictions sorted by accuracy
// score ascending (lowest-accuracy first).
func LeastAccurate(preds []model.Prediction, n int) []model.Prediction {
	return rank(preds, n, func(a, b model.Prediction) bool {
		if a.AccuracyScore != b.AccuracyScore {
			return a.AccuracyScore < b.AccuracyScore
		}
		return a.ID < b.ID
	})
}

func rank(preds []model.Prediction, n int, less func(a, b model.Prediction) bool) []model.Prediction {
	resolved := make([]model.Prediction, 0, len(preds))
	for _, p := range preds {
		if p.Resolved {
			resolved = append(resolved, p)
		}
	}
	sort.Slice(resolved, func(i, j int) bool { return less(resolved[i], resolved[j]) })
	if n >= 0 && len(resolved) > n {
		resolved = resolved[:n]
	}
	return resolved
}

// TrendingAsset scores an asset by recent submission activity:
// trendScore = 2*countInLast24h + totalCount.
type TrendingAsset struct {
	Asset        string `json:"asset"`
	CountLast24h int64  `json:"count_last_24h"`
	TotalCount   int64  `json:"total_count"`
	TrendScore   int64  `json:"trend_score"`
}

// Trending ranks assets by trend score descending, truncated to limit.
// Ties break by asset name ascending.
func Trending(preds []model.Prediction, now time.Time, limit int) []TrendingAsset {
	cutoff := now.Add(-24 * time.Hour)
	byAsset := make(map[string]*TrendingAsset)

	for _, p := range preds {
		ta, ok := byAsset[p.Asset]
		if !ok {
			ta = &TrendingAsset{Asset: p.Asset}
			byAsset[p.Asset] = ta
		}
		ta.TotalCount++
		if !p.CreatedAt.Before(cutoff) && !p.CreatedAt.After(now) {
			ta.CountLast24h++
		}
	}

	out := make([]TrendingAsset, 0, len(byAsset))
	for _, ta := range byAsset {
		ta.TrendScore = 2*ta.CountLast24h + ta.TotalCount
		out = append(out, *ta)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].TrendScore != out[j].TrendScore {
			return out[i].TrendScore > out[j].TrendScore
		}
		return out[i].Asset < out[j].Asset
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ModelComparison is one summary row per requested model label.
type ModelComparison struct {
	ModelType       string          `json:"model_type"`
	AccuracyRate    decimal.Decimal `json:"accuracy_rate"`    // percent
	AverageAccuracy decimal.Decimal `json:"average_accuracy"` // percent
	Total           int64           `json:"total"`
	Resolved        int64           `json:"resolved"`
}

// CompareModels builds one row per requested label, sorted by accuracy
// rate descending. Never-used labels yield zeroed rows rather than
// errors. Rates divide by the total prediction count, resolved or not,
// matching the aggregate-stats semantics.
func CompareModels(preds []model.Prediction, labels []string) []ModelComparison {
	type agg struct {
		total, resolved, accurate, scoreSum int64
	}
	groups := make(map[string]*agg, len(labels))
	for _, l := range labels {
		groups[l] = &agg{}
	}

	for _, p := range preds {
		g, ok := groups[p.ModelType]
		if !ok {
			continue // label not requested
		}
		g.total++
		if p.Resolved {
			g.resolved++
			g.scoreSum += p.AccuracyScore
			if p.WasAccurate {
				g.accurate++
			}
		}
	}

	out := make([]ModelComparison, 0, len(labels))
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		if seen[l] {
			continue
		}
		seen[l] = true

		g := groups[l]
		row := ModelComparison{
			ModelType:       l,
			AccuracyRate:    decimal.Zero,
			AverageAccuracy: decimal.Zero,
			Total:           g.total,
			Resolved:        g.resolved,
		}
		if g.total > 0 {
			total := decimal.NewFromInt(g.total)
			row.AccuracyRate = decimal.NewFromInt(g.accurate).Div(total).Mul(hundred).Round(2)
			row.AverageAccuracy = decimal.NewFromInt(g.scoreSum).Div(total).Div(hundred).Round(2)
		}
		out = append(out, row)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AccuracyRate.GreaterThan(out[j].AccuracyRate)
	})
	return out
}
