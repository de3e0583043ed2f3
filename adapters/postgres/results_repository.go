package postgres

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"

	"sleepband/domain/core"
	"sleepband/internal/aggregate"
	"sleepband/internal/errors"
	"sleepband/ports"
)

// ResultsRepository persists pipeline runs and their output tables in
// PostgreSQL so analyses can be queried and compared across runs.
type ResultsRepository struct {
	db *sqlx.DB
}

// NewResultsRepository creates a new PostgreSQL results repository
func NewResultsRepository(db *sqlx.DB) ports.RunRepository {
	return &ResultsRepository{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS band_power (
	run_id TEXT NOT NULL REFERENCES runs(id),
	session_id TEXT NOT NULL,
	epoch_index INT NOT NULL,
	channel_id TEXT NOT NULL,
	band_name TEXT NOT NULL,
	power_linear DOUBLE PRECISION NOT NULL,
	power_db DOUBLE PRECISION,
	coverage TEXT NOT NULL,
	PRIMARY KEY (run_id, session_id, epoch_index, channel_id, band_name)
);

CREATE TABLE IF NOT EXISTS stat_results (
	run_id TEXT NOT NULL REFERENCES runs(id),
	band_name TEXT NOT NULL,
	state_a TEXT NOT NULL,
	state_b TEXT NOT NULL,
	test_name TEXT NOT NULL,
	n_a INT NOT NULL,
	n_b INT NOT NULL,
	statistic DOUBLE PRECISION,
	p_value DOUBLE PRECISION,
	effect_size DOUBLE PRECISION,
	block_structure TEXT NOT NULL,
	skipped_reason TEXT,
	PRIMARY KEY (run_id, band_name, state_a, state_b, test_name)
);

CREATE TABLE IF NOT EXISTS permutation_audits (
	run_id TEXT NOT NULL REFERENCES runs(id),
	test_name TEXT NOT NULL,
	band_name TEXT NOT NULL,
	state_a TEXT NOT NULL,
	state_b TEXT NOT NULL,
	random_seed BIGINT NOT NULL,
	derived_seed BIGINT NOT NULL,
	n_permutations INT NOT NULL,
	block_assignment JSONB NOT NULL,
	PRIMARY KEY (run_id, band_name, state_a, state_b, test_name)
);`

// EnsureSchema creates the backing tables if they do not exist.
func (r *ResultsRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to ensure schema"))
}

// WriteTables stores one run's tables inside a single transaction.
func (r *ResultsRepository) WriteTables(ctx context.Context, runID core.RunID, tables *aggregate.Tables) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to begin transaction"))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, runID.String()); err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to insert run"))
	}

	for _, row := range tables.BandPower {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO band_power (
				run_id, session_id, epoch_index, channel_id, band_name,
				power_linear, power_db, coverage
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (run_id, session_id, epoch_index, channel_id, band_name) DO UPDATE SET
				power_linear = EXCLUDED.power_linear,
				power_db = EXCLUDED.power_db,
				coverage = EXCLUDED.coverage`,
			runID.String(), row.SessionID, row.EpochIndex, row.ChannelID, row.BandName,
			row.PowerLinear, nullableFloat(row.PowerDB), string(row.Coverage)); err != nil {
			return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to insert band power row"))
		}
	}

	for _, row := range tables.Stats {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stat_results (
				run_id, band_name, state_a, state_b, test_name,
				n_a, n_b, statistic, p_value, effect_size, block_structure, skipped_reason
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (run_id, band_name, state_a, state_b, test_name) DO UPDATE SET
				n_a = EXCLUDED.n_a,
				n_b = EXCLUDED.n_b,
				statistic = EXCLUDED.statistic,
				p_value = EXCLUDED.p_value,
				effect_size = EXCLUDED.effect_size,
				block_structure = EXCLUDED.block_structure,
				skipped_reason = EXCLUDED.skipped_reason`,
			runID.String(), row.BandName, row.StateA, row.StateB, string(row.Test),
			row.NA, row.NB, nullableFloat(row.Statistic), nullableFloat(row.PValue),
			nullableFloat(row.EffectSize), string(row.Blocks), string(row.Skipped)); err != nil {
			return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to insert stat result"))
		}
	}

	for _, audit := range tables.Audits {
		assignmentJSON, err := json.Marshal(audit.BlockAssignment)
		if err != nil {
			return errors.Wrap(err, "failed to marshal block assignment")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO permutation_audits (
				run_id, test_name, band_name, state_a, state_b,
				random_seed, derived_seed, n_permutations, block_assignment
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (run_id, band_name, state_a, state_b, test_name) DO UPDATE SET
				random_seed = EXCLUDED.random_seed,
				derived_seed = EXCLUDED.derived_seed,
				n_permutations = EXCLUDED.n_permutations,
				block_assignment = EXCLUDED.block_assignment`,
			runID.String(), string(audit.Test), audit.BandName,
			string(audit.Pair.StateA), string(audit.Pair.StateB),
			audit.BaseSeed, audit.DerivedSeed, audit.NPermutations, assignmentJSON); err != nil {
			return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to insert permutation audit"))
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to commit results"))
	}
	return nil
}

// nullableFloat maps NaN/Inf to SQL NULL; DOUBLE PRECISION cannot hold them.
func nullableFloat(v float64) interface{} {
	if v != v || v > 1.7e308 || v < -1.7e308 {
		return nil
	}
	return v
}
