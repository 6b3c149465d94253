package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/predyx/prediction-engine/internal/guard"
	"github.com/predyx/prediction-engine/internal/ledger"
	"github.com/predyx/prediction-engine/internal/metrics"
	"github.com/predyx/prediction-engine/internal/query"
	"github.com/predyx/prediction-engine/internal/stats"
	"github.com/predyx/prediction-engine/internal/store"
)

func main() {
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// Optional threshold override, applied once at startup.
	if raw := os.Getenv("ACCURACY_THRESHOLD_BP"); raw != "" {
		bp, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || bp < 0 || bp > 10000 {
			slog.Error("invalid ACCURACY_THRESHOLD_BP", "value", raw)
			os.Exit(1)
		}
		cfg, err := st.GetConfig(context.Background())
		if err != nil {
			slog.Error("config load failed", "err", err)
			os.Exit(1)
		}
		cfg.AccuracyThreshold = bp
		if err := st.SaveConfig(context.Background(), cfg); err != nil {
			slog.Error("config save failed", "err", err)
			os.Exit(1)
		}
		slog.Info("accuracy threshold set from environment", "threshold_bp", bp)
	}

	// --- Statistics engine, rebuilt from the ledger on boot ---
	statsEng := stats.NewEngine()
	preds, err := st.ListAll(context.Background())
	if err != nil {
		slog.Error("ledger replay failed", "err", err)
		os.Exit(1)
	}
	statsEng.Rebuild(preds)
	slog.Info("statistics rebuilt", "predictions", len(preds))

	// --- WebSocket hub ---
	wsHub := ledger.NewWSHub()
	go wsHub.Run()

	// --- Services ---
	ledgerSvc := ledger.NewService(st, statsEng, wsHub)
	querySvc := query.NewHandler(ledgerSvc)

	var admins []string
	for _, a := range strings.Split(os.Getenv("ADMIN_ADDRESSES"), ",") {
		if a = strings.TrimSpace(a); a != "" {
			admins = append(admins, a)
		}
	}
	if len(admins) == 0 {
		slog.Warn("ADMIN_ADDRESSES not set, admin endpoints will reject all callers")
	}
	guardSvc := guard.New(st, ledgerSvc, wsHub, admins)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"prediction-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time ledger events.
		r.Get("/ws", wsHub.HandleWS)

		// Prediction ledger.
		r.Post("/predictions", ledgerSvc.HandleSubmit)
		r.Get("/predictions", ledgerSvc.HandleList)
		r.Get("/predictions/{predictionID}", ledgerSvc.HandleGet)
		r.Post("/predictions/{predictionID}/resolve", ledgerSvc.HandleResolve)

		// Aggregate statistics.
		r.Get("/users/{address}/stats", ledgerSvc.HandleUserStats)
		r.Get("/models/{modelType}/performance", ledgerSvc.HandleModelPerformance)

		// Analytics projections.
		r.Get("/analytics/assets/{asset}", querySvc.HandleAssetAnalysis)
		r.Get("/analytics/trending", querySvc.HandleTrending)
		r.Get("/analytics/models/compare", querySvc.HandleCompareModels)
		r.Get("/analytics/ranking", querySvc.HandleRanking)
		r.Get("/analytics/breakdown", querySvc.HandleBreakdown)

		// Privileged operations.
		r.Post("/admin/threshold", guardSvc.HandleSetThreshold)
		r.Post("/admin/pause", guardSvc.HandlePause)
		r.Post("/admin/unpause", guardSvc.HandleUnpause)
		r.Post("/admin/oracles", guardSvc.HandleGrantOracle)
		r.Delete("/admin/oracles/{address}", guardSvc.HandleRevokeOracle)
		r.Post("/admin/resolve/bulk", guardSvc.HandleBulkResolve)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("prediction-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down prediction-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("prediction-engine stopped")
}
