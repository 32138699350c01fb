package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type SessionPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

type InviteSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Scheduler runs the periodic cleanup work: expired session rows and invite
// index entries whose codes have TTL-expired.
type Scheduler struct {
	cron     *cron.Cron
	sessions SessionPurger
	invites  InviteSweeper
	log      zerolog.Logger
}

func NewScheduler(sessions SessionPurger, invites InviteSweeper, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		sessions: sessions,
		invites:  invites,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("0 0 4 * * *", s.purgeSessions); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 0 * * * *", s.sweepInvites); err != nil { // hourly
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits briefly for any in-flight job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
	}
}

func (s *Scheduler) purgeSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	purged, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("session purge failed")
		return
	}
	if purged > 0 {
		s.log.Info().Int64("purged", purged).Msg("expired sessions purged")
	}
}

func (s *Scheduler) sweepInvites() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := s.invites.SweepExpired(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("invite sweep failed")
		return
	}
	if removed > 0 {
		s.log.Info().Int("removed", removed).Msg("dangling invite codes swept")
	}
}
