package query

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/predyx/prediction-engine/internal/model"
)

// Source is the read surface of the ledger the analytics handlers
// hydrate from.
type Source interface {
	All(ctx context.Context) ([]model.Prediction, error)
	ByAsset(ctx context.Context, asset string) ([]model.Prediction, error)
}

// Handler serves the analytics endpoints. Stateless; every response is
// computed on demand from a fresh ledger snapshot.
type Handler struct {
	src Source
	now func() time.Time
}

// NewHandler creates an analytics handler over a ledger read surface.
func NewHandler(src Source) *Handler {
	return &Handler{src: src, now: time.Now}
}

// SetNowFunc overrides the handler clock. Test hook.
func (h *Handler) SetNowFunc(fn func() time.Time) {
	h.now = fn
}

// assetAnalysisResponse is the per-asset analytics view.
type assetAnalysisResponse struct {
	Asset        string             `json:"asset"`
	Window       string             `json:"window"`
	Total        int                `json:"total"`
	Sentiment    SentimentSummary   `json:"sentiment"`
	ByModel      []Breakdown        `json:"by_model"`
	MostAccurate []model.Prediction `json:"most_accurate"`
}

// HandleAssetAnalysis handles GET /api/v1/analytics/assets/{asset}.
// Optional ?window=1d|7d|30d|90d, default 7d.
func (h *Handler) HandleAssetAnalysis(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	now := h.now().UTC()

	preds, err := h.src.ByAsset(r.Context(), asset)
	if err != nil {
		writeError(w, "failed to load predictions", http.StatusInternalServerError)
		return
	}

	label := r.URL.Query().Get("window")
	if label == "" {
		label = Window7d
	}
	windowed := InWindow(preds, ParseWindow(label, 7*24*time.Hour), now)

	resp := assetAnalysisResponse{
		Asset:        asset,
		Window:       label,
		Total:        len(windowed),
		Sentiment:    Sentiment(windowed),
		ByModel:      BreakdownByModel(windowed),
		MostAccurate: MostAccurate(windowed, 5),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// HandleTrending handles GET /api/v1/analytics/trending?limit=N.
func (h *Handler) HandleTrending(w http.ResponseWriter, r *http.Request) {
	preds, err := h.src.All(r.Context())
	if err != nil {
		writeError(w, "failed to load predictions", http.StatusInternalServerError)
		return
	}

	limit := intParam(r, "limit", 10)
	trending := Trending(preds, h.now().UTC(), limit)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(trending)
}

// HandleCompareModels handles
// GET /api/v1/analytics/models/compare?models=LSTM,ARIMA.
func (h *Handler) HandleCompareModels(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("models")
	if raw == "" {
		writeError(w, "models query parameter is required", http.StatusBadRequest)
		return
	}

	var labels []string
	for _, l := range strings.Split(raw, ",") {
		if l = strings.TrimSpace(l); l != "" {
			labels = append(labels, l)
		}
	}

	preds, err := h.src.All(r.Context())
	if err != nil {
		writeError(w, "failed to load predictions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CompareModels(preds, labels))
}

// HandleRanking handles GET /api/v1/analytics/ranking?order=most|least&limit=N.
// Returns resolved predictions ranked by accuracy score.
func (h *Handler) HandleRanking(w http.ResponseWriter, r *http.Request) {
	preds, err := h.src.All(r.Context())
	if err != nil {
		writeError(w, "failed to load predictions", http.StatusInternalServerError)
		return
	}

	limit := intParam(r, "limit", 10)
	var ranked []model.Prediction
	if r.URL.Query().Get("order") == "least" {
		ranked = LeastAccurate(preds, limit)
	} else {
		ranked = MostAccurate(preds, limit)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ranked)
}

// HandleBreakdown handles GET /api/v1/analytics/breakdown?by=asset|model.
func (h *Handler) HandleBreakdown(w http.ResponseWriter, r *http.Request) {
	preds, err := h.src.All(r.Context())
	if err != nil {
		writeError(w, "failed to load predictions", http.StatusInternalServerError)
		return
	}

	var rows []Breakdown
	if r.URL.Query().Get("by") == "model" {
		rows = BreakdownByModel(preds)
	} else {
		rows = BreakdownByAsset(preds)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rows)
}

func intParam(r *http.Request, name string, fallback int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
