package ledger

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/predyx/prediction-engine/internal/model"
	"github.com/predyx/prediction-engine/internal/query"
)

// resolveRequest is the JSON body for POST /predictions/{id}/resolve.
type resolveRequest struct {
	Caller      string          `json:"caller"`
	ActualPrice decimal.Decimal `json:"actual_price"`
}

// HandleSubmit handles POST /api/v1/predictions.
func (s *Service) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMsg(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p, err := s.Submit(r.Context(), req)
	if err != nil {
		WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(p)
}

// HandleResolve handles POST /api/v1/predictions/{predictionID}/resolve.
func (s *Service) HandleResolve(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "predictionID"), 10, 64)
	if err != nil {
		writeErrorMsg(w, "invalid prediction id", http.StatusBadRequest)
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMsg(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.Resolve(r.Context(), id, req.ActualPrice, req.Caller)
	if err != nil {
		WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// HandleGet handles GET /api/v1/predictions/{predictionID}.
func (s *Service) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "predictionID"), 10, 64)
	if err != nil {
		writeErrorMsg(w, "invalid prediction id", http.StatusBadRequest)
		return
	}

	p, err := s.Get(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p)
}

// HandleList handles GET /api/v1/predictions with optional conjunctive
// filters: ?predictor=&asset=&model=&resolved=true|false.
func (s *Service) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// Narrow with the most selective indexed list first, then apply the
	// remaining criteria in memory.
	var (
		preds []model.Prediction
		err   error
	)
	ctx := r.Context()
	switch {
	case q.Get("predictor") != "":
		preds, err = s.ByPredictor(ctx, q.Get("predictor"))
	case q.Get("asset") != "":
		preds, err = s.ByAsset(ctx, q.Get("asset"))
	case q.Get("model") != "":
		preds, err = s.ByModel(ctx, q.Get("model"))
	default:
		preds, err = s.All(ctx)
	}
	if err != nil {
		writeErrorMsg(w, "failed to list predictions", http.StatusInternalServerError)
		return
	}

	crit := query.Criteria{
		Predictor: q.Get("predictor"),
		Asset:     q.Get("asset"),
		ModelType: q.Get("model"),
	}
	if v := q.Get("resolved"); v != "" {
		resolved := v == "true"
		crit.Resolved = &resolved
	}
	preds = query.Filter(preds, crit)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(preds)
}

// userStatsResponse augments the stored aggregates with derived ratios.
type userStatsResponse struct {
	model.UserStats
	AccuracyRateBP    int64 `json:"accuracy_rate_bp"`
	AverageAccuracyBP int64 `json:"average_accuracy_bp"`
}

// HandleUserStats handles GET /api/v1/users/{address}/stats.
func (s *Service) HandleUserStats(w http.ResponseWriter, r *http.Request) {
	u := s.stats.UserStats(chi.URLParam(r, "address"))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(userStatsResponse{
		UserStats:         u,
		AccuracyRateBP:    u.AccuracyRate(),
		AverageAccuracyBP: u.AverageAccuracyScore(),
	})
}

// modelPerformanceResponse augments the aggregates with derived ratios.
type modelPerformanceResponse struct {
	model.ModelPerformance
	AccuracyRateBP    int64 `json:"accuracy_rate_bp"`
	AverageAccuracyBP int64 `json:"average_accuracy_bp"`
}

// HandleModelPerformance handles GET /api/v1/models/{modelType}/performance.
func (s *Service) HandleModelPerformance(w http.ResponseWriter, r *http.Request) {
	m := s.stats.ModelPerformance(chi.URLParam(r, "modelType"))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(modelPerformanceResponse{
		ModelPerformance:  m,
		AccuracyRateBP:    m.AccuracyRate(),
		AverageAccuracyBP: m.AverageAccuracyScore(),
	})
}

// WriteError maps the ledger error taxonomy onto HTTP statuses and
// writes a JSON error body. Shared with the guard handlers.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, ErrPaused), errors.Is(err, ErrAlreadyResolved), errors.Is(err, ErrTooEarly):
		status = http.StatusConflict
	}
	writeErrorMsg(w, err.Error(), status)
}

// writeErrorMsg writes a JSON error response.
func writeErrorMsg(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
