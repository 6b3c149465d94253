package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/predyx/prediction-engine/internal/model"
)

// Schema creates the tables used by PostgresStore. Applied by deployment
// tooling and by the integration tests.
const Schema = `
CREATE TABLE IF NOT EXISTS predictions (
	id              BIGSERIAL PRIMARY KEY,
	predictor       TEXT        NOT NULL,
	asset           TEXT        NOT NULL,
	current_price   NUMERIC     NOT NULL,
	predicted_price NUMERIC     NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	target_time     TIMESTAMPTZ NOT NULL,
	model_type      TEXT        NOT NULL,
	metadata        TEXT        NOT NULL DEFAULT '',
	resolved        BOOLEAN     NOT NULL DEFAULT FALSE,
	actual_price    NUMERIC     NOT NULL DEFAULT 0,
	was_accurate    BOOLEAN     NOT NULL DEFAULT FALSE,
	accuracy_score  BIGINT      NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_predictions_predictor ON predictions (predictor, id);
CREATE INDEX IF NOT EXISTS idx_predictions_asset     ON predictions (asset, id);
CREATE INDEX IF NOT EXISTS idx_predictions_model     ON predictions (model_type, id);

CREATE TABLE IF NOT EXISTS engine_config (
	id                 INT PRIMARY KEY CHECK (id = 1),
	accuracy_threshold BIGINT  NOT NULL,
	paused             BOOLEAN NOT NULL,
	oracles            TEXT[]  NOT NULL DEFAULT '{}'
);
`

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All prices are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const predictionColumns = `id, predictor, asset,
       current_price::TEXT, predicted_price::TEXT,
       created_at, target_time, model_type, metadata,
       resolved, actual_price::TEXT, was_accurate, accuracy_score`

func (s *PostgresStore) CreatePrediction(ctx context.Context, p *model.Prediction) (int64, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO predictions
		   (predictor, asset, current_price, predicted_price,
		    created_at, target_time, model_type, metadata)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5, $6, $7, $8)
		 RETURNING id`,
		p.Predictor, p.Asset,
		p.CurrentPrice.String(), p.PredictedPrice.String(),
		p.CreatedAt, p.TargetTime, p.ModelType, p.Metadata,
	).Scan(&p.ID)
	if err != nil {
		return 0, fmt.Errorf("create prediction: %w", err)
	}
	return p.ID, nil
}

func (s *PostgresStore) GetPrediction(ctx context.Context, id int64) (*model.Prediction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE id = $1`, id)

	p, err := scanPrediction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get prediction %d: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]model.Prediction, error) {
	return s.list(ctx, `SELECT `+predictionColumns+` FROM predictions ORDER BY id`)
}

func (s *PostgresStore) ListByPredictor(ctx context.Context, predictor string) ([]model.Prediction, error) {
	return s.list(ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE predictor = $1 ORDER BY id`,
		predictor)
}

func (s *PostgresStore) ListByAsset(ctx context.Context, asset string) ([]model.Prediction, error) {
	return s.list(ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE asset = $1 ORDER BY id`,
		asset)
}

func (s *PostgresStore) ListByModel(ctx context.Context, modelType string) ([]model.Prediction, error) {
	return s.list(ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE model_type = $1 ORDER BY id`,
		modelType)
}

func (s *PostgresStore) list(ctx context.Context, sql string, args ...any) ([]model.Prediction, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// MarkResolved flips the resolution fields with a conditional update so
// that exactly one caller can ever succeed per prediction.
func (s *PostgresStore) MarkResolved(ctx context.Context, id int64, actual decimal.Decimal, wasAccurate bool, accuracyScore int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE predictions
		 SET resolved = TRUE, actual_price = $2::NUMERIC,
		     was_accurate = $3, accuracy_score = $4
		 WHERE id = $1 AND resolved = FALSE`,
		id, actual.String(), wasAccurate, accuracyScore,
	)
	if err != nil {
		return fmt.Errorf("mark resolved %d: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Distinguish "no such row" from "already resolved".
	var resolved bool
	err = s.pool.QueryRow(ctx,
		`SELECT resolved FROM predictions WHERE id = $1`, id).Scan(&resolved)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("mark resolved %d: %w", id, err)
	}
	return ErrAlreadyResolved
}

func (s *PostgresStore) GetConfig(ctx context.Context) (model.Config, error) {
	var cfg model.Config
	var oracles []string

	err := s.pool.QueryRow(ctx,
		`SELECT accuracy_threshold, paused, oracles FROM engine_config WHERE id = 1`).
		Scan(&cfg.AccuracyThreshold, &cfg.Paused, &oracles)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DefaultConfig(), nil
	}
	if err != nil {
		return model.Config{}, fmt.Errorf("get config: %w", err)
	}

	cfg.Oracles = make(map[string]bool, len(oracles))
	for _, o := range oracles {
		cfg.Oracles[o] = true
	}
	return cfg, nil
}

func (s *PostgresStore) SaveConfig(ctx context.Context, cfg model.Config) error {
	oracles := make([]string, 0, len(cfg.Oracles))
	for o := range cfg.Oracles {
		oracles = append(oracles, o)
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO engine_config (id, accuracy_threshold, paused, oracles)
		 VALUES (1, $1, $2, $3)
		 ON CONFLICT (id) DO UPDATE
		 SET accuracy_threshold = $1, paused = $2, oracles = $3`,
		cfg.AccuracyThreshold, cfg.Paused, oracles,
	)
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// scanPrediction reads one prediction row, converting NUMERIC text into
// decimals.
func scanPrediction(row pgx.Row) (*model.Prediction, error) {
	var p model.Prediction
	var current, predicted, actual string

	if err := row.Scan(&p.ID, &p.Predictor, &p.Asset,
		&current, &predicted,
		&p.CreatedAt, &p.TargetTime, &p.ModelType, &p.Metadata,
		&p.Resolved, &actual, &p.WasAccurate, &p.AccuracyScore); err != nil {
		return nil, err
	}

	p.CurrentPrice, _ = decimal.NewFromString(current)
	p.PredictedPrice, _ = decimal.NewFromString(predicted)
	p.ActualPrice, _ = decimal.NewFromString(actual)

	return &p, nil
}
