package db

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS track_sessions (
		id UUID PRIMARY KEY,
		device_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		mode TEXT NOT NULL DEFAULT 'ski',
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		status TEXT NOT NULL DEFAULT 'active',
		run_count INTEGER NOT NULL DEFAULT 0,
		total_distance_m DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_descent_m DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id UUID PRIMARY KEY,
		session_id UUID NOT NULL REFERENCES track_sessions(id) ON DELETE CASCADE,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ NOT NULL,
		distance_m DOUBLE PRECISION NOT NULL,
		top_speed_mps DOUBLE PRECISION NOT NULL,
		top_speed_lat DOUBLE PRECISION NOT NULL,
		top_speed_lng DOUBLE PRECISION NOT NULL,
		top_speed_at TIMESTAMPTZ NOT NULL,
		avg_speed_mps DOUBLE PRECISION NOT NULL,
		start_elevation_m DOUBLE PRECISION NOT NULL,
		end_elevation_m DOUBLE PRECISION NOT NULL,
		descent_m DOUBLE PRECISION NOT NULL,
		avg_slope_deg DOUBLE PRECISION NOT NULL,
		max_slope_deg DOUBLE PRECISION NOT NULL,
		point_count INTEGER NOT NULL,
		route JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_session ON runs (session_id, started_at)`,
}

// Migrate creates the tables used by the tracking service when missing.
func Migrate(ctx context.Context, q Querier) error {
	for i, stmt := range schema {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
