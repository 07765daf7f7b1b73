package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"backend-slopetrack/internal/db"
	"backend-slopetrack/internal/location"
	"backend-slopetrack/internal/logging"
	"backend-slopetrack/internal/pipeline"
	"backend-slopetrack/internal/runs"
	"backend-slopetrack/internal/stream"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
)

// RunSaver persists finalized runs.
type RunSaver interface {
	Save(ctx context.Context, r runs.Run) error
}

type liveSession struct {
	info    Session
	tracker *pipeline.Tracker
	// unsaved holds finalized runs whose save failed; they are retried on
	// the next batch or stop.
	unsaved []runs.Run
}

// Service owns one pipeline tracker per active session. A nil querier keeps
// sessions in memory only, a nil saver skips run persistence.
type Service struct {
	db        db.Querier
	store     RunSaver
	hub       *stream.Hub
	snapshots *stream.SnapshotCache
	cfg       pipeline.Config
	log       logrus.FieldLogger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*liveSession
}

func NewService(q db.Querier, store RunSaver, hub *stream.Hub, snapshots *stream.SnapshotCache, cfg pipeline.Config, log logrus.FieldLogger) *Service {
	return &Service{
		db:        q,
		store:     store,
		hub:       hub,
		snapshots: snapshots,
		cfg:       cfg,
		log:       logging.OrNop(log),
		now:       time.Now,
		sessions:  map[string]*liveSession{},
	}
}

func (s *Service) configFor(mode string) pipeline.Config {
	cfg := s.cfg
	if mode == ModeVehicle {
		vehicle := pipeline.VehicleTestingConfig()
		cfg.Detection = vehicle.Detection
		if cfg.Filtering.MaxDistanceJump < vehicle.Filtering.MaxDistanceJump {
			cfg.Filtering.MaxDistanceJump = vehicle.Filtering.MaxDistanceJump
		}
	}
	return cfg
}

func (s *Service) StartSession(ctx context.Context, deviceID string, req StartRequest) (Session, error) {
	if req.Mode == "" {
		req.Mode = ModeSki
	}
	if req.Mode != ModeSki && req.Mode != ModeVehicle {
		return Session{}, ErrInvalidMode
	}

	session := Session{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		Name:      req.Name,
		Mode:      req.Mode,
		StartedAt: s.now(),
		Status:    StatusActive,
	}

	if s.db != nil {
		_, err := s.db.Exec(ctx, `
			INSERT INTO track_sessions (id, device_id, name, mode, started_at, status)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, session.ID, session.DeviceID, session.Name, session.Mode, session.StartedAt, session.Status)
		if err != nil {
			return Session{}, fmt.Errorf("insert session: %w", err)
		}
	}

	tracker := pipeline.NewTracker(session.ID, s.configFor(session.Mode), nil, s.log)
	s.mu.Lock()
	s.sessions[session.ID] = &liveSession{info: session, tracker: tracker}
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"session_id": session.ID, "device_id": deviceID, "mode": session.Mode}).Info("session started")
	return session, nil
}

func (s *Service) lookup(sessionID, deviceID string) (*liveSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if deviceID != "" && ls.info.DeviceID != deviceID {
		return nil, ErrNotOwner
	}
	return ls, nil
}

// AddReadings feeds a batch through the session tracker, persists any runs
// it finalized and publishes the resulting live view.
func (s *Service) AddReadings(ctx context.Context, sessionID, deviceID string, batch ReadingBatch) (BatchResult, error) {
	ls, err := s.lookup(sessionID, deviceID)
	if err != nil {
		return BatchResult{}, err
	}
	if batch.Battery != nil {
		ls.tracker.SetBattery(batch.Battery.Level, batch.Battery.Charging)
	}

	result := BatchResult{
		Rejections: map[location.Reason]int{},
		Finalized:  []runs.Run{},
	}
	clock := batchClock(batch.Readings, s.now())
	for _, raw := range batch.Readings {
		up := ls.tracker.Process(raw, clock(raw))
		if up.Accepted {
			result.Accepted++
		} else {
			result.Rejected++
			if up.Rejection != nil {
				result.Rejections[up.Rejection.Reason]++
			}
		}
		if up.Finalized != nil {
			result.Finalized = append(result.Finalized, *up.Finalized)
		}
		if up.Discarded != nil {
			result.Discarded++
			s.log.WithField("session_id", sessionID).WithError(up.Discarded).Info("run discarded")
		}
		result.Accuracy = up.Accuracy
		if up.AccuracyChanged {
			result.AccuracyChanged = true
		}
	}

	err = s.persistRuns(ctx, ls, result.Finalized)

	result.Live = ls.tracker.Live()
	s.publishLive(ctx, sessionID, result.Live)
	return result, err
}

// batchClock places every reading of a batch on the server clock. The newest
// reading is judged against now and the others keep their spacing from it,
// so a buffered batch is stale only when its newest reading is.
func batchClock(readings []location.RawReading, now time.Time) func(location.RawReading) time.Time {
	var newest time.Time
	for _, r := range readings {
		if r.Timestamp.After(newest) {
			newest = r.Timestamp
		}
	}
	return func(r location.RawReading) time.Time {
		return now.Add(r.Timestamp.Sub(newest))
	}
}

// SetBattery updates the battery used for accuracy selection.
func (s *Service) SetBattery(sessionID, deviceID string, status BatteryStatus) error {
	ls, err := s.lookup(sessionID, deviceID)
	if err != nil {
		return err
	}
	ls.tracker.SetBattery(status.Level, status.Charging)
	return nil
}

// StopSession ends tracking. An active run is validated and kept when it
// passes, otherwise the reason is reported. The session stays open while any
// of its runs is unsaved, so a failed stop can be retried.
func (s *Service) StopSession(ctx context.Context, sessionID, deviceID string) (StopResult, error) {
	ls, err := s.lookup(sessionID, deviceID)
	if err != nil {
		return StopResult{}, err
	}
	var result StopResult
	run, err := ls.tracker.Stop(s.now())
	var verr *runs.ValidationError
	switch {
	case errors.As(err, &verr):
		result.DiscardReason = verr.Error()
	case err != nil:
		return StopResult{}, err
	}
	var finalized []runs.Run
	if run != nil {
		finalized = append(finalized, *run)
		result.Run = run
	}
	if err := s.persistRuns(ctx, ls, finalized); err != nil {
		return result, err
	}

	ended := s.now()
	s.mu.Lock()
	ls.info.EndedAt = &ended
	ls.info.Status = StatusEnded
	result.Session = ls.info
	s.mu.Unlock()

	if s.db != nil {
		_, err := s.db.Exec(ctx, `UPDATE track_sessions SET ended_at=$2, status=$3 WHERE id=$1`, sessionID, ended, StatusEnded)
		if err != nil {
			return result, fmt.Errorf("close session: %w", err)
		}
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if err := s.snapshots.Delete(ctx, sessionID); err != nil {
		s.log.WithError(err).Warn("drop live snapshot")
	}
	s.broadcast(Event{Type: EventSessionEnded, SessionID: sessionID})

	s.log.WithFields(logrus.Fields{"session_id": sessionID, "runs": result.Session.RunCount}).Info("session stopped")
	return result, nil
}

// persistRuns saves runs left over from an earlier failure and then the
// newly finalized ones. Every run is attempted.
func (s *Service) persistRuns(ctx context.Context, ls *liveSession, finalized []runs.Run) error {
	s.mu.Lock()
	pending := append(ls.unsaved, finalized...)
	ls.unsaved = nil
	s.mu.Unlock()

	var errs []error
	for _, run := range pending {
		if err := s.persistRun(ctx, ls, run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) persistRun(ctx context.Context, ls *liveSession, run runs.Run) error {
	if s.store != nil {
		if err := s.store.Save(ctx, run); err != nil {
			s.mu.Lock()
			ls.unsaved = append(ls.unsaved, run)
			s.mu.Unlock()
			s.log.WithFields(logrus.Fields{"session_id": run.SessionID, "run_id": run.ID}).WithError(err).Warn("run kept for retry")
			return fmt.Errorf("save run: %w", err)
		}
	}

	s.mu.Lock()
	ls.info.RunCount++
	ls.info.TotalDistanceM += run.Distance
	ls.info.TotalDescentM += run.VerticalDescent
	s.mu.Unlock()

	if s.db != nil {
		_, err := s.db.Exec(ctx, `
			UPDATE track_sessions
			SET run_count = run_count + 1,
			    total_distance_m = total_distance_m + $2,
			    total_descent_m = total_descent_m + $3
			WHERE id=$1
		`, run.SessionID, run.Distance, run.VerticalDescent)
		if err != nil {
			return fmt.Errorf("update session totals: %w", err)
		}
	}

	s.broadcast(Event{Type: EventRunFinalized, SessionID: run.SessionID, Run: &run})
	return nil
}

func (s *Service) publishLive(ctx context.Context, sessionID string, live pipeline.Live) {
	payload := s.broadcast(Event{Type: EventLive, SessionID: sessionID, Live: &live})
	if payload == nil {
		return
	}
	if err := s.snapshots.Save(ctx, sessionID, payload); err != nil {
		s.log.WithError(err).Warn("store live snapshot")
	}
}

func (s *Service) broadcast(ev Event) []byte {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.log.WithError(err).Error("encode live event")
		return nil
	}
	if s.hub != nil {
		s.hub.Broadcast(ev.SessionID, payload)
	}
	return payload
}

// LiveJSON returns the live event for a session, from this instance when it
// owns the tracker and from the shared snapshot otherwise.
func (s *Service) LiveJSON(ctx context.Context, sessionID string) ([]byte, error) {
	if ls, err := s.lookup(sessionID, ""); err == nil {
		live := ls.tracker.Live()
		return json.Marshal(Event{Type: EventLive, SessionID: sessionID, Live: &live})
	}
	payload, err := s.snapshots.Load(ctx, sessionID)
	if errors.Is(err, stream.ErrNoSnapshot) {
		return nil, ErrSessionNotFound
	}
	return payload, err
}

// Session returns the active session from memory or the stored row.
func (s *Service) Session(ctx context.Context, sessionID string) (Session, error) {
	if ls, err := s.lookup(sessionID, ""); err == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return ls.info, nil
	}
	if s.db == nil {
		return Session{}, ErrSessionNotFound
	}

	var session Session
	row := s.db.QueryRow(ctx, `
		SELECT id, device_id, name, mode, started_at, ended_at, status, run_count, total_distance_m, total_descent_m
		FROM track_sessions WHERE id=$1
	`, sessionID)
	err := row.Scan(&session.ID, &session.DeviceID, &session.Name, &session.Mode, &session.StartedAt,
		&session.EndedAt, &session.Status, &session.RunCount, &session.TotalDistanceM, &session.TotalDescentM)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, err
	}
	return session, nil
}

// Active lists the sessions tracked by this instance.
func (s *Service) Active() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Session, 0, len(s.sessions))
	for _, ls := range s.sessions {
		out = append(out, ls.info)
	}
	return out
}
