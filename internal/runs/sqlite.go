package runs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	ended_at INTEGER NOT NULL,
	distance_m REAL NOT NULL,
	top_speed_mps REAL NOT NULL,
	top_speed_lat REAL NOT NULL,
	top_speed_lng REAL NOT NULL,
	top_speed_at INTEGER NOT NULL,
	avg_speed_mps REAL NOT NULL,
	start_elevation_m REAL NOT NULL,
	end_elevation_m REAL NOT NULL,
	descent_m REAL NOT NULL,
	avg_slope_deg REAL NOT NULL,
	max_slope_deg REAL NOT NULL,
	point_count INTEGER NOT NULL,
	route TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id, started_at);
`

// SQLiteStore keeps finalized runs in a local SQLite file. Times are stored
// as unix nanoseconds.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, r Run) error {
	route, err := json.Marshal(r.Route)
	if err != nil {
		return fmt.Errorf("encode route: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`, r.ID, r.SessionID, r.StartTime.UnixNano(), r.EndTime.UnixNano(), r.Distance, r.TopSpeed,
		r.TopSpeedPoint.Latitude, r.TopSpeedPoint.Longitude, r.TopSpeedPoint.Timestamp.UnixNano(), r.AverageSpeed,
		r.StartElevation, r.EndElevation, r.VerticalDescent, r.AverageSlope, r.MaxSlope, r.PointCount, string(route))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id=?`, id)
	r, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

func (s *SQLiteStore) ListBySession(ctx context.Context, sessionID string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs WHERE session_id=? ORDER BY started_at`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanSQLiteRun(row scanner) (Run, error) {
	var (
		r                     Run
		started, ended, topAt int64
		route                 string
	)
	err := row.Scan(&r.ID, &r.SessionID, &started, &ended, &r.Distance, &r.TopSpeed,
		&r.TopSpeedPoint.Latitude, &r.TopSpeedPoint.Longitude, &topAt, &r.AverageSpeed,
		&r.StartElevation, &r.EndElevation, &r.VerticalDescent, &r.AverageSlope, &r.MaxSlope, &r.PointCount, &route)
	if err != nil {
		return Run{}, err
	}
	r.StartTime = time.Unix(0, started).UTC()
	r.EndTime = time.Unix(0, ended).UTC()
	r.TopSpeedPoint.Timestamp = time.Unix(0, topAt).UTC()
	if err := decodeRoute([]byte(route), &r); err != nil {
		return Run{}, err
	}
	return r, nil
}
