// Package guard centralizes privileged operations: engine configuration
// (accuracy threshold, pause switch, oracle roster) and bulk resolution.
// Every operation checks the caller's capability before touching any
// state, so a rejected call leaves the engine exactly as it was.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/predyx/prediction-engine/internal/ledger"
	"github.com/predyx/prediction-engine/internal/metrics"
	"github.com/predyx/prediction-engine/internal/model"
	"github.com/predyx/prediction-engine/internal/store"
)

// Resolver is the slice of the ledger the guard needs for bulk
// resolution.
type Resolver interface {
	Resolve(ctx context.Context, id int64, actual decimal.Decimal, caller string) (*model.ResolutionResult, error)
}

// Broadcaster pushes config-change events to connected clients.
type Broadcaster interface {
	Broadcast(ev model.Event)
}

// Guard performs capability-checked administrative operations against
// the engine configuration and the ledger.
type Guard struct {
	store    store.Store
	resolver Resolver
	hub      Broadcaster // optional
	admins   map[string]bool

	mu  sync.Mutex // serializes config read-modify-write cycles
	now func() time.Time
}

// New creates a guard. admins is the set of addresses allowed to perform
// privileged operations; hub may be nil.
func New(st store.Store, resolver Resolver, hub Broadcaster, admins []string) *Guard {
	set := make(map[string]bool, len(admins))
	for _, a := range admins {
		set[a] = true
	}
	return &Guard{
		store:    st,
		resolver: resolver,
		hub:      hub,
		admins:   set,
		now:      time.Now,
	}
}

// SetNowFunc overrides the guard clock. Test hook.
func (g *Guard) SetNowFunc(fn func() time.Time) {
	g.now = fn
}

// IsAdmin reports whether the address holds the admin capability.
func (g *Guard) IsAdmin(addr string) bool {
	return g.admins[addr]
}

func (g *Guard) authorize(caller string) error {
	if !g.admins[caller] {
		return fmt.Errorf("%w: %s lacks admin capability", ledger.ErrUnauthorized, caller)
	}
	return nil
}

// SetAccuracyThreshold updates the basis-point tolerance used to judge
// whether a resolved prediction counts as accurate. Only affects future
// resolutions; already-resolved predictions keep their verdicts.
func (g *Guard) SetAccuracyThreshold(ctx context.Context, caller string, thresholdBP int64) error {
	if err := g.authorize(caller); err != nil {
		return err
	}
	if thresholdBP < 0 || thresholdBP > model.ScaleBasisPoints {
		return fmt.Errorf("%w: threshold must be between 0 and %d basis points", ledger.ErrValidation, model.ScaleBasisPoints)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	cfg, err := g.store.GetConfig(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	old := cfg.AccuracyThreshold
	cfg.AccuracyThreshold = thresholdBP
	if err := g.store.SaveConfig(ctx, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	g.broadcast(model.Event{
		EventID:      uuid.NewString(),
		Type:         model.EventThresholdChanged,
		OccurredAt:   g.now().UTC(),
		OldThreshold: old,
		NewThreshold: thresholdBP,
	})
	slog.Info("accuracy threshold changed", "caller", caller, "old_bp", old, "new_bp", thresholdBP)
	return nil
}

// Pause stops new submissions. Resolution of existing predictions is
// unaffected.
func (g *Guard) Pause(ctx context.Context, caller string) error {
	return g.setPaused(ctx, caller, true)
}

// Unpause re-enables submissions.
func (g *Guard) Unpause(ctx context.Context, caller string) error {
	return g.setPaused(ctx, caller, false)
}

func (g *Guard) setPaused(ctx context.Context, caller string, paused bool) error {
	if err := g.authorize(caller); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	cfg, err := g.store.GetConfig(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Paused = paused
	if err := g.store.SaveConfig(ctx, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	g.broadcast(model.Event{
		EventID:    uuid.NewString(),
		Type:       model.EventPausedChanged,
		OccurredAt: g.now().UTC(),
		Paused:     paused,
	})
	slog.Info("pause state changed", "caller", caller, "paused", paused)
	return nil
}

// GrantOracle adds an address to the oracle roster. Granting an existing
// oracle is a no-op, not an error.
func (g *Guard) GrantOracle(ctx context.Context, caller, addr string) error {
	if err := g.authorize(caller); err != nil {
		return err
	}
	if addr == "" {
		return fmt.Errorf("%w: oracle address must not be empty", ledger.ErrValidation)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	cfg, err := g.store.GetConfig(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Oracles[addr] {
		return nil
	}
	if cfg.Oracles == nil {
		cfg.Oracles = make(map[string]bool)
	}
	cfg.Oracles[addr] = true
	if err := g.store.SaveConfig(ctx, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	g.broadcast(model.Event{
		EventID:    uuid.NewString(),
		Type:       model.EventOracleGranted,
		OccurredAt: g.now().UTC(),
		Oracle:     addr,
	})
	slog.Info("oracle granted", "caller", caller, "oracle", addr)
	return nil
}

// RevokeOracle removes an address from the oracle roster. Revoking an
// address that is not an oracle is a no-op.
func (g *Guard) RevokeOracle(ctx context.Context, caller, addr string) error {
	if err := g.authorize(caller); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	cfg, err := g.store.GetConfig(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Oracles[addr] {
		return nil
	}
	delete(cfg.Oracles, addr)
	if err := g.store.SaveConfig(ctx, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	g.broadcast(model.Event{
		EventID:    uuid.NewString(),
		Type:       model.EventOracleRevoked,
		OccurredAt: g.now().UTC(),
		Oracle:     addr,
	})
	slog.Info("oracle revoked", "caller", caller, "oracle", addr)
	return nil
}

// BulkItem is one resolution request in a bulk batch.
type BulkItem struct {
	ID          int64           `json:"id"`
	ActualPrice decimal.Decimal `json:"actual_price"`
}

// BulkItemResult records the outcome of one item in a bulk batch.
type BulkItemResult struct {
	ID    int64  `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// BulkReport summarizes a bulk resolution batch.
type BulkReport struct {
	Resolved int              `json:"resolved"`
	Failed   int              `json:"failed"`
	Items    []BulkItemResult `json:"items"`
}

// BulkResolve resolves a batch of predictions, isolating failures per
// item: one bad id or price never aborts the rest of the batch. The
// caller must hold the admin capability; each item is then resolved on
// the caller's behalf under the ledger's own authorization rules.
func (g *Guard) BulkResolve(ctx context.Context, caller string, items []BulkItem) (*BulkReport, error) {
	if err := g.authorize(caller); err != nil {
		return nil, err
	}

	report := &BulkReport{Items: make([]BulkItemResult, 0, len(items))}
	for _, item := range items {
		res := BulkItemResult{ID: item.ID}
		if _, err := g.resolver.Resolve(ctx, item.ID, item.ActualPrice, caller); err != nil {
			res.Error = err.Error()
			report.Failed++
			metrics.BulkResolveItems.WithLabelValues("failed").Inc()
		} else {
			res.OK = true
			report.Resolved++
			metrics.BulkResolveItems.WithLabelValues("resolved").Inc()
		}
		report.Items = append(report.Items, res)
	}

	slog.Info("bulk resolve finished",
		"caller", caller,
		"total", len(items),
		"resolved", report.Resolved,
		"failed", report.Failed,
	)
	return report, nil
}

func (g *Guard) broadcast(ev model.Event) {
	if g.hub != nil {
		g.hub.Broadcast(ev)
	}
}
