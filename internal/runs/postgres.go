package runs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"backend-slopetrack/internal/db"

	"github.com/jackc/pgx/v5"
)

// PostgresStore persists finalized runs in the runs table.
type PostgresStore struct {
	db db.Querier
}

func NewPostgresStore(q db.Querier) *PostgresStore {
	return &PostgresStore{db: q}
}

const runColumns = `id, session_id, started_at, ended_at, distance_m, top_speed_mps, top_speed_lat, top_speed_lng,
		top_speed_at, avg_speed_mps, start_elevation_m, end_elevation_m, descent_m, avg_slope_deg, max_slope_deg,
		point_count, route`

func (s *PostgresStore) Save(ctx context.Context, r Run) error {
	route, err := json.Marshal(r.Route)
	if err != nil {
		return fmt.Errorf("encode route: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, r.ID, r.SessionID, r.StartTime, r.EndTime, r.Distance, r.TopSpeed, r.TopSpeedPoint.Latitude,
		r.TopSpeedPoint.Longitude, r.TopSpeedPoint.Timestamp, r.AverageSpeed, r.StartElevation, r.EndElevation,
		r.VerticalDescent, r.AverageSlope, r.MaxSlope, r.PointCount, route)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id=$1`, id)
	r, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

func (s *PostgresStore) ListBySession(ctx context.Context, sessionID string) ([]Run, error) {
	rows, err := s.db.Query(ctx, `SELECT `+runColumns+` FROM runs WHERE session_id=$1 ORDER BY started_at`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		r     Run
		route []byte
	)
	err := row.Scan(&r.ID, &r.SessionID, &r.StartTime, &r.EndTime, &r.Distance, &r.TopSpeed,
		&r.TopSpeedPoint.Latitude, &r.TopSpeedPoint.Longitude, &r.TopSpeedPoint.Timestamp, &r.AverageSpeed,
		&r.StartElevation, &r.EndElevation, &r.VerticalDescent, &r.AverageSlope, &r.MaxSlope, &r.PointCount, &route)
	if err != nil {
		return Run{}, err
	}
	if err := decodeRoute(route, &r); err != nil {
		return Run{}, err
	}
	return r, nil
}

func decodeRoute(raw []byte, r *Run) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &r.Route); err != nil {
		return fmt.Errorf("decode route: %w", err)
	}
	for _, p := range r.Route {
		if p.Timestamp.Equal(r.TopSpeedPoint.Timestamp) {
			r.TopSpeedPoint = p
			break
		}
	}
	return nil
}
