package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rawblock/allocation-engine/pkg/models"
)

// schemaSQL is compiled into the binary at build time so schema init works
// inside runtime images that do not ship the .sql file.
//
//go:embed schema.sql
var schemaSQL string

// Store persists finished solve runs to PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(connStr string) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %w", err)
	}

	log.Println("[DB] Connected to PostgreSQL for run persistence")
	return &Store{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *Store) InitSchema() error {
	if _, err := s.pool.Exec(context.Background(), schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}
	log.Println("[DB] Allocation run schema initialized")
	return nil
}

// SaveRun persists a run and all its assignments in one transaction.
func (s *Store) SaveRun(ctx context.Context, run models.SolveRun) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insertRunSQL := `
		INSERT INTO solve_runs
		(id, created_at, cost_count, target_count, sum_costs, sum_targets,
		 mean_precision, groups_created, costs_unused)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	_, err = tx.Exec(ctx, insertRunSQL,
		run.ID, run.CreatedAt, run.CostCount, run.TargetCount,
		run.SumCosts, run.SumTargets,
		run.Metrics.MeanPrecision, run.Metrics.GroupsCreated, run.Metrics.CostsUnused)
	if err != nil {
		return fmt.Errorf("failed to insert solve_runs: %w", err)
	}

	insertAssignmentSQL := `
		INSERT INTO run_assignments
		(run_id, position, target, target_value, costs, achieved_sum,
		 difference, precision_pct, is_group, grouped_targets)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`
	for i, a := range run.Assignments {
		var grouped []byte
		if a.IsGroup {
			grouped, err = json.Marshal(a.GroupedTargets)
			if err != nil {
				return fmt.Errorf("failed to encode grouped targets: %w", err)
			}
		}
		_, err = tx.Exec(ctx, insertAssignmentSQL,
			run.ID, i, a.Target, a.TargetValue, a.Costs, a.Sum,
			a.Difference, a.Precision, a.IsGroup, grouped)
		if err != nil {
			return fmt.Errorf("failed to insert run_assignments: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ListRuns returns run summaries newest-first, without their assignments.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.SolveRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, created_at, cost_count, target_count, sum_costs, sum_targets,
		       mean_precision, groups_created, costs_unused
		FROM solve_runs
		ORDER BY created_at DESC
		LIMIT $1;
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query solve_runs: %w", err)
	}
	defer rows.Close()

	runs := make([]models.SolveRun, 0, limit)
	for rows.Next() {
		var r models.SolveRun
		err := rows.Scan(&r.ID, &r.CreatedAt, &r.CostCount, &r.TargetCount,
			&r.SumCosts, &r.SumTargets,
			&r.Metrics.MeanPrecision, &r.Metrics.GroupsCreated, &r.Metrics.CostsUnused)
		if err != nil {
			return nil, fmt.Errorf("failed to scan solve_runs row: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun loads one run together with its assignments in stored order.
func (s *Store) GetRun(ctx context.Context, id string) (*models.SolveRun, error) {
	var r models.SolveRun
	err := s.pool.QueryRow(ctx, `
		SELECT id, created_at, cost_count, target_count, sum_costs, sum_targets,
		       mean_precision, groups_created, costs_unused
		FROM solve_runs
		WHERE id = $1;
	`, id).Scan(&r.ID, &r.CreatedAt, &r.CostCount, &r.TargetCount,
		&r.SumCosts, &r.SumTargets,
		&r.Metrics.MeanPrecision, &r.Metrics.GroupsCreated, &r.Metrics.CostsUnused)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT target, target_value, costs, achieved_sum, difference,
		       precision_pct, is_group, grouped_targets
		FROM run_assignments
		WHERE run_id = $1
		ORDER BY position;
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query run_assignments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a models.Assignment
		var grouped []byte
		err := rows.Scan(&a.Target, &a.TargetValue, &a.Costs, &a.Sum,
			&a.Difference, &a.Precision, &a.IsGroup, &grouped)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run_assignments row: %w", err)
		}
		if len(grouped) > 0 {
			if err := json.Unmarshal(grouped, &a.GroupedTargets); err != nil {
				return nil, fmt.Errorf("failed to decode grouped targets: %w", err)
			}
		}
		r.Assignments = append(r.Assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	r.Metrics.TotalAssignments = len(r.Assignments)
	return &r, nil
}
