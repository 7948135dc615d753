package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper removes expired entries from the session registry.
type Sweeper interface {
	SweepExpiredSessions(ctx context.Context) int
}

// SessionSweeper periodically purges refresh tokens that expired without
// being used or logged out, so the registry does not grow without bound.
type SessionSweeper struct {
	sweeper  Sweeper
	logger   *zap.Logger
	interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSessionSweeper creates a sweeper. Non-positive intervals default to 10 minutes.
func NewSessionSweeper(sweeper Sweeper, logger *zap.Logger, interval time.Duration) *SessionSweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &SessionSweeper{
		sweeper:  sweeper,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background loop.
func (s *SessionSweeper) Start() {
	go s.run()
	s.logger.Info("session sweeper started", zap.Duration("interval", s.interval))
}

// Stop shuts the loop down and waits for an in-progress sweep to finish.
func (s *SessionSweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.logger.Info("session sweeper stopped")
}

func (s *SessionSweeper) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *SessionSweeper) sweep() {
	removed := s.sweeper.SweepExpiredSessions(context.Background())
	if removed > 0 {
		s.logger.Info("expired sessions purged", zap.Int("removed", removed))
	}
}
