package predlog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Skufu/cardioscore/internal/features"
	"github.com/Skufu/cardioscore/internal/report"
	"github.com/Skufu/cardioscore/internal/risk"
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS prediction_logs (
	id              TEXT PRIMARY KEY,
	created_at      TIMESTAMPTZ NOT NULL,
	label           SMALLINT NOT NULL,
	probability     DOUBLE PRECISION NOT NULL,
	confidence      DOUBLE PRECISION,
	risk_tier       TEXT NOT NULL,
	health_score    DOUBLE PRECISION NOT NULL,
	features        JSONB NOT NULL,
	recommendations JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS prediction_logs_created_at_idx ON prediction_logs (created_at);`

const insertSQL = `
INSERT INTO prediction_logs (id, created_at, label, probability, confidence, risk_tier, health_score, features, recommendations)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING`

const statsSQL = `
SELECT
	count(*),
	count(*) FILTER (WHERE label = 1),
	coalesce(avg(probability), 0),
	min(created_at),
	max(created_at),
	count(*) FILTER (WHERE risk_tier = 'LOW'),
	count(*) FILTER (WHERE risk_tier = 'MODERATE'),
	count(*) FILTER (WHERE risk_tier = 'HIGH'),
	count(*) FILTER (WHERE risk_tier = 'CRITICAL')
FROM prediction_logs`

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the prediction_logs table when it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate prediction_logs: %w", err)
	}
	return nil
}

func (s *PostgresStore) LogPrediction(ctx context.Context, _ *features.PatientFeatures, o report.Outcome) error {
	feats := o.Features
	if feats == nil {
		feats = map[string]float64{}
	}
	recs := o.Recommendations
	if recs == nil {
		recs = []string{}
	}

	_, err := s.db.Exec(ctx, insertSQL,
		o.ID, o.CreatedAt, o.Label, o.ProbabilityDisease, o.Confidence,
		string(o.RiskTier), o.HealthScore, feats, recs,
	)
	if err != nil {
		return fmt.Errorf("insert prediction %s: %w", o.ID, err)
	}
	return nil
}

func (s *PostgresStore) Statistics(ctx context.Context) (Statistics, error) {
	var (
		stats       Statistics
		first, last *time.Time
		low, mod    int64
		high, crit  int64
	)
	err := s.db.QueryRow(ctx, statsSQL).Scan(
		&stats.Total, &stats.Positive, &stats.AverageProbability,
		&first, &last, &low, &mod, &high, &crit,
	)
	if err != nil {
		return Statistics{}, fmt.Errorf("query prediction statistics: %w", err)
	}

	stats.Negative = stats.Total - stats.Positive
	stats.First = first
	stats.Last = last
	stats.Tiers = map[risk.Tier]int64{
		risk.TierLow:      low,
		risk.TierModerate: mod,
		risk.TierHigh:     high,
		risk.TierCritical: crit,
	}
	return stats, nil
}
