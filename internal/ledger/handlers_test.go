package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/predyx/prediction-engine/internal/model"
)

func newTestRouter(t *testing.T, base time.Time) (*chi.Mux, *Service, *time.Time) {
	t.Helper()
	svc, _, now := newTestService(t, base)

	r := chi.NewRouter()
	r.Post("/api/v1/predictions", svc.HandleSubmit)
	r.Get("/api/v1/predictions", svc.HandleList)
	r.Get("/api/v1/predictions/{predictionID}", svc.HandleGet)
	r.Post("/api/v1/predictions/{predictionID}/resolve", svc.HandleResolve)
	r.Get("/api/v1/users/{address}/stats", svc.HandleUserStats)
	r.Get("/api/v1/models/{modelType}/performance", svc.HandleModelPerformance)
	return r, svc, now
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleSubmit(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r, _, _ := newTestRouter(t, base)

	w := doJSON(t, r, "POST", "/api/v1/predictions", map[string]any{
		"predictor":       "alice",
		"asset":           "BTC",
		"current_price":   "50000",
		"predicted_price": "55000",
		"target_time":     base.Add(time.Hour).Format(time.RFC3339),
		"model_type":      "LSTM",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var p model.Prediction
	if err := json.NewDecoder(w.Body).Decode(&p); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if p.ID != 1 || p.Asset != "BTC" || p.Resolved {
		t.Errorf("unexpected prediction: %+v", p)
	}
}

func TestHandleSubmitRejections(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r, _, _ := newTestRouter(t, base)

	w := doJSON(t, r, "POST", "/api/v1/predictions", map[string]any{
		"predictor":       "alice",
		"asset":           "",
		"current_price":   "50000",
		"predicted_price": "55000",
		"target_time":     base.Add(time.Hour).Format(time.RFC3339),
		"model_type":      "LSTM",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty asset: expected 400, got %d", w.Code)
	}

	req := httptest.NewRequest("POST", "/api/v1/predictions", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", rec.Code)
	}
}

func TestHandleResolveFlow(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r, _, now := newTestRouter(t, base)

	w := doJSON(t, r, "POST", "/api/v1/predictions", map[string]any{
		"predictor":       "alice",
		"asset":           "BTC",
		"current_price":   "50000",
		"predicted_price": "55000",
		"target_time":     base.Add(time.Hour).Format(time.RFC3339),
		"model_type":      "LSTM",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("submit failed: %d", w.Code)
	}

	// Too early.
	w = doJSON(t, r, "POST", "/api/v1/predictions/1/resolve", map[string]any{
		"caller":       "alice",
		"actual_price": "54000",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("too early: expected 409, got %d", w.Code)
	}

	*now = base.Add(2 * time.Hour)

	// Wrong caller.
	w = doJSON(t, r, "POST", "/api/v1/predictions/1/resolve", map[string]any{
		"caller":       "mallory",
		"actual_price": "54000",
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("stranger: expected 403, got %d", w.Code)
	}

	// Happy path.
	w = doJSON(t, r, "POST", "/api/v1/predictions/1/resolve", map[string]any{
		"caller":       "alice",
		"actual_price": "54000",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("resolve: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res model.ResolutionResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.AccuracyScore != 9815 || !res.WasAccurate {
		t.Errorf("unexpected result: %+v", res)
	}

	// Second attempt conflicts.
	w = doJSON(t, r, "POST", "/api/v1/predictions/1/resolve", map[string]any{
		"caller":       "alice",
		"actual_price": "60000",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("double resolve: expected 409, got %d", w.Code)
	}

	// Missing id maps to 404.
	w = doJSON(t, r, "POST", "/api/v1/predictions/99/resolve", map[string]any{
		"caller":       "alice",
		"actual_price": "54000",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("missing id: expected 404, got %d", w.Code)
	}
}

func TestHandleListFilters(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r, svc, now := newTestRouter(t, base)

	submit := func(predictor, asset, modelType string) {
		t.Helper()
		req := submitReq(predictor, base.Add(time.Hour))
		req.Asset = asset
		req.ModelType = modelType
		if _, err := svc.Submit(context.Background(), req); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}
	submit("alice", "BTC", "LSTM")
	submit("alice", "ETH", "ARIMA")
	submit("bob", "BTC", "LSTM")

	*now = base.Add(2 * time.Hour)
	if _, err := svc.Resolve(context.Background(), 1, d(54000), "alice"); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	list := func(path string) []model.Prediction {
		t.Helper()
		w := doJSON(t, r, "GET", path, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
		var out []model.Prediction
		if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
			t.Fatalf("decode list: %v", err)
		}
		return out
	}

	if got := list("/api/v1/predictions"); len(got) != 3 {
		t.Errorf("all: expected 3, got %d", len(got))
	}
	if got := list("/api/v1/predictions?predictor=alice"); len(got) != 2 {
		t.Errorf("by predictor: expected 2, got %d", len(got))
	}
	if got := list("/api/v1/predictions?asset=BTC"); len(got) != 2 {
		t.Errorf("by asset: expected 2, got %d", len(got))
	}
	if got := list("/api/v1/predictions?model=LSTM&resolved=true"); len(got) != 1 || got[0].ID != 1 {
		t.Errorf("combined filter: got %+v", got)
	}
	if got := list("/api/v1/predictions?predictor=alice&resolved=false"); len(got) != 1 || got[0].ID != 2 {
		t.Errorf("unresolved filter: got %+v", got)
	}
}

func TestHandleUserStats(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r, svc, now := newTestRouter(t, base)

	for i := 0; i < 4; i++ {
		if _, err := svc.Submit(context.Background(), submitReq("alice", base.Add(time.Hour))); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}
	*now = base.Add(2 * time.Hour)
	if _, err := svc.Resolve(context.Background(), 1, d(54000), "alice"); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	w := doJSON(t, r, "GET", "/api/v1/users/alice/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		model.UserStats
		AccuracyRateBP    int64 `json:"accuracy_rate_bp"`
		AverageAccuracyBP int64 `json:"average_accuracy_bp"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if resp.TotalPredictions != 4 || resp.AccuratePredictions != 1 {
		t.Errorf("unexpected counters: %+v", resp.UserStats)
	}
	// 1 accurate of 4 total (pending included): 2500 bp.
	if resp.AccuracyRateBP != 2500 {
		t.Errorf("expected rate 2500, got %d", resp.AccuracyRateBP)
	}

	// Unknown users yield zeroed stats, not 404.
	w = doJSON(t, r, "GET", "/api/v1/users/nobody/stats", nil)
	if w.Code != http.StatusOK {
		t.Errorf("unknown user: expected 200, got %d", w.Code)
	}
}

func TestHandleModelPerformance(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r, svc, now := newTestRouter(t, base)

	if _, err := svc.Submit(context.Background(), submitReq("alice", base.Add(time.Hour))); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	*now = base.Add(2 * time.Hour)
	if _, err := svc.Resolve(context.Background(), 1, d(54000), "alice"); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	w := doJSON(t, r, "GET", "/api/v1/models/LSTM/performance", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		model.ModelPerformance
		AverageAccuracyBP int64 `json:"average_accuracy_bp"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode performance: %v", err)
	}
	if resp.TotalPredictions != 1 || resp.AverageAccuracyBP != 9815 {
		t.Errorf("unexpected performance: %+v avg=%d", resp.ModelPerformance, resp.AverageAccuracyBP)
	}
}
