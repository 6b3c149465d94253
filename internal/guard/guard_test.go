package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/predyx/prediction-engine/internal/ledger"
	"github.com/predyx/prediction-engine/internal/stats"
	"github.com/predyx/prediction-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newTestGuard wires a guard over a fresh memory store and ledger. The
// admin address is also granted oracle so bulk resolution can touch any
// prediction.
func newTestGuard(t *testing.T, base time.Time) (*Guard, *ledger.Service, *store.MemoryStore, *time.Time) {
	t.Helper()
	st := store.NewMemoryStore()
	svc := ledger.NewService(st, stats.NewEngine(), nil)

	now := base
	svc.SetNowFunc(func() time.Time { return now })

	g := New(st, svc, nil, []string{"admin"})
	g.SetNowFunc(func() time.Time { return now })

	if err := g.GrantOracle(context.Background(), "admin", "admin"); err != nil {
		t.Fatalf("grant oracle: %v", err)
	}
	return g, svc, st, &now
}

func TestUnauthorizedBeforeAnyStateChange(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g, _, st, _ := newTestGuard(t, base)
	ctx := context.Background()

	ops := []struct {
		name string
		call func() error
	}{
		{"threshold", func() error { return g.SetAccuracyThreshold(ctx, "mallory", 100) }},
		{"pause", func() error { return g.Pause(ctx, "mallory") }},
		{"unpause", func() error { return g.Unpause(ctx, "mallory") }},
		{"grant", func() error { return g.GrantOracle(ctx, "mallory", "x") }},
		{"revoke", func() error { return g.RevokeOracle(ctx, "mallory", "x") }},
		{"bulk", func() error {
			_, err := g.BulkResolve(ctx, "mallory", []BulkItem{{ID: 1, ActualPrice: d(1)}})
			return err
		}},
	}
	for _, op := range ops {
		if err := op.call(); !errors.Is(err, ledger.ErrUnauthorized) {
			t.Errorf("%s: expected ErrUnauthorized, got %v", op.name, err)
		}
	}

	cfg, _ := st.GetConfig(ctx)
	if cfg.Paused || cfg.AccuracyThreshold != 500 || cfg.Oracles["x"] {
		t.Errorf("rejected calls mutated config: %+v", cfg)
	}
}

func TestSetAccuracyThreshold(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g, _, st, _ := newTestGuard(t, base)
	ctx := context.Background()

	if err := g.SetAccuracyThreshold(ctx, "admin", 1000); err != nil {
		t.Fatalf("set threshold failed: %v", err)
	}
	cfg, _ := st.GetConfig(ctx)
	if cfg.AccuracyThreshold != 1000 {
		t.Errorf("expected threshold 1000, got %d", cfg.AccuracyThreshold)
	}

	if err := g.SetAccuracyThreshold(ctx, "admin", 10001); !errors.Is(err, ledger.ErrValidation) {
		t.Errorf("expected ErrValidation for 10001, got %v", err)
	}
	if err := g.SetAccuracyThreshold(ctx, "admin", -1); !errors.Is(err, ledger.ErrValidation) {
		t.Errorf("expected ErrValidation for -1, got %v", err)
	}

	// Boundary value 10000 is allowed (every resolution counts as accurate).
	if err := g.SetAccuracyThreshold(ctx, "admin", 10000); err != nil {
		t.Errorf("threshold 10000 rejected: %v", err)
	}
}

func TestThresholdAffectsFutureResolutionsOnly(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g, svc, _, now := newTestGuard(t, base)
	ctx := context.Background()

	submit := func() int64 {
		t.Helper()
		p, err := svc.Submit(ctx, ledger.SubmitRequest{
			Predictor:      "alice",
			Asset:          "BTC",
			CurrentPrice:   d(50000),
			PredictedPrice: d(55000),
			TargetTime:     base.Add(time.Hour),
			ModelType:      "LSTM",
		})
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
		return p.ID
	}
	id1 := submit()
	id2 := submit()
	*now = base.Add(2 * time.Hour)

	// Score for actual=54000 is 9815; accurate at threshold 500.
	res1, err := svc.Resolve(ctx, id1, d(54000), "alice")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !res1.WasAccurate {
		t.Error("expected accurate at threshold 500")
	}

	// Tighten to 100 bp: same score now counts inaccurate.
	if err := g.SetAccuracyThreshold(ctx, "admin", 100); err != nil {
		t.Fatalf("set threshold failed: %v", err)
	}
	res2, err := svc.Resolve(ctx, id2, d(54000), "alice")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if res2.WasAccurate {
		t.Error("expected inaccurate at threshold 100")
	}

	// The earlier verdict is untouched.
	p1, _ := svc.Get(ctx, id1)
	if !p1.WasAccurate {
		t.Error("threshold change rewrote a past verdict")
	}
}

func TestPauseUnpause(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g, svc, _, _ := newTestGuard(t, base)
	ctx := context.Background()

	req := ledger.SubmitRequest{
		Predictor:      "alice",
		Asset:          "BTC",
		CurrentPrice:   d(50000),
		PredictedPrice: d(55000),
		TargetTime:     base.Add(time.Hour),
		ModelType:      "LSTM",
	}

	if err := g.Pause(ctx, "admin"); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if _, err := svc.Submit(ctx, req); !errors.Is(err, ledger.ErrPaused) {
		t.Fatalf("expected ErrPaused while paused, got %v", err)
	}

	if err := g.Unpause(ctx, "admin"); err != nil {
		t.Fatalf("unpause failed: %v", err)
	}
	if _, err := svc.Submit(ctx, req); err != nil {
		t.Fatalf("submit after unpause failed: %v", err)
	}
}

func TestOracleGrantRevokeIdempotent(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g, _, st, _ := newTestGuard(t, base)
	ctx := context.Background()

	if err := g.GrantOracle(ctx, "admin", "oracle-1"); err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	if err := g.GrantOracle(ctx, "admin", "oracle-1"); err != nil {
		t.Errorf("double grant should be a no-op, got %v", err)
	}
	cfg, _ := st.GetConfig(ctx)
	if !cfg.Oracles["oracle-1"] {
		t.Error("oracle not present after grant")
	}

	if err := g.RevokeOracle(ctx, "admin", "oracle-1"); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if err := g.RevokeOracle(ctx, "admin", "oracle-1"); err != nil {
		t.Errorf("revoking an absent member should be a no-op, got %v", err)
	}
	cfg, _ = st.GetConfig(ctx)
	if cfg.Oracles["oracle-1"] {
		t.Error("oracle still present after revoke")
	}

	if err := g.GrantOracle(ctx, "admin", ""); !errors.Is(err, ledger.ErrValidation) {
		t.Errorf("empty oracle address: expected ErrValidation, got %v", err)
	}
}

func TestBulkResolvePartialSuccess(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g, svc, _, now := newTestGuard(t, base)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Submit(ctx, ledger.SubmitRequest{
			Predictor:      "alice",
			Asset:          "BTC",
			CurrentPrice:   d(50000),
			PredictedPrice: d(55000),
			TargetTime:     base.Add(time.Hour),
			ModelType:      "LSTM",
		}); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}
	*now = base.Add(2 * time.Hour)

	report, err := g.BulkResolve(ctx, "admin", []BulkItem{
		{ID: 1, ActualPrice: d(54000)},
		{ID: 2, ActualPrice: d(54000)},
		{ID: 99, ActualPrice: d(54000)}, // nonexistent
		{ID: 3, ActualPrice: d(54000)},
	})
	if err != nil {
		t.Fatalf("bulk resolve failed: %v", err)
	}
	if report.Resolved != 3 || report.Failed != 1 {
		t.Fatalf("expected 3 resolved / 1 failed, got %d/%d", report.Resolved, report.Failed)
	}
	if len(report.Items) != 4 {
		t.Fatalf("expected 4 item results, got %d", len(report.Items))
	}
	if report.Items[2].OK || report.Items[2].Error == "" {
		t.Errorf("item 99 should carry its failure: %+v", report.Items[2])
	}

	// The failing entry must not have aborted the rest: items after it
	// are durably resolved.
	for _, id := range []int64{1, 2, 3} {
		p, err := svc.Get(ctx, id)
		if err != nil {
			t.Fatalf("get %d: %v", id, err)
		}
		if !p.Resolved {
			t.Errorf("prediction %d not resolved after bulk", id)
		}
	}
}

func TestBulkResolveEmptyBatch(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g, _, _, _ := newTestGuard(t, base)

	report, err := g.BulkResolve(context.Background(), "admin", nil)
	if err != nil {
		t.Fatalf("empty bulk failed: %v", err)
	}
	if report.Resolved != 0 || report.Failed != 0 || len(report.Items) != 0 {
		t.Errorf("expected empty report, got %+v", report)
	}
}
