package playlist

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"karaoke-service/internal/logging"
	"karaoke-service/internal/metrics"
	"karaoke-service/internal/store"
)

const DefaultSweepInterval = time.Minute

// Terminator ends a session and notifies its group. *Coordinator is the
// production implementation.
type Terminator interface {
	Terminate(ctx context.Context, sessionID uuid.UUID, reason string) error
}

// Sweeper periodically terminates expired sessions.
type Sweeper struct {
	store    store.Store
	term     Terminator
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(st store.Store, term Terminator, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{store: st, term: term, interval: interval, now: time.Now}
}

type SweepResult struct {
	Expired    int
	Terminated int
	// Renewed counts sessions that a heartbeat extended after the listing.
	Renewed int
	Failed  int
}

// RunWithContext sweeps every interval until ctx is cancelled.
func (s *Sweeper) RunWithContext(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logging.Info().Dur("interval", s.interval).Msg("session sweeper started")
	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("session sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Serve makes the sweeper a suture.Service.
func (s *Sweeper) Serve(ctx context.Context) error {
	return s.RunWithContext(ctx)
}

func (s *Sweeper) String() string {
	return "session-sweeper"
}

// Sweep runs one pass. A failure on one session is logged and counted; the
// pass carries on with the rest.
func (s *Sweeper) Sweep(ctx context.Context) SweepResult {
	var res SweepResult

	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("sweeper: list sessions")
		return res
	}

	now := s.now()
	for i := range sessions {
		if ctx.Err() != nil {
			break
		}
		sess := &sessions[i]
		if !sess.Expired(now) {
			continue
		}
		res.Expired++

		err := s.terminate(ctx, sess.ID)
		var berr *BroadcastError
		switch {
		case err == nil:
			res.Terminated++
		case errors.Is(err, ErrSessionNotFound):
			// ended concurrently by its host
		case errors.Is(err, ErrSessionRenewed):
			res.Renewed++
		case errors.As(err, &berr):
			res.Terminated++
			res.Failed++
			logging.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("sweeper: sessionEnded not delivered")
		default:
			res.Failed++
			logging.Error().Err(err).Str("session_id", sess.ID.String()).Msg("sweeper: terminate session")
		}
	}

	metrics.RecordSweep(res.Terminated, res.Failed)
	if res.Expired > 0 {
		logging.Info().
			Int("expired", res.Expired).
			Int("terminated", res.Terminated).
			Int("renewed", res.Renewed).
			Int("failed", res.Failed).
			Msg("sweep pass finished")
	}
	return res
}

// terminate converts a panic in one session's teardown into an error so the
// pass continues.
func (s *Sweeper) terminate(ctx context.Context, id uuid.UUID) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("panic during terminate")
			logging.Error().Interface("panic", r).Str("session_id", id.String()).Msg("sweeper: recovered")
		}
	}()
	return s.term.Terminate(ctx, id, ReasonExpired)
}
