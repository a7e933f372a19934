package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically removes expired sessions and stale in-flight
// uploads. Expiry is still checked lazily on every access; the sweep only
// reclaims resources.
type Sweeper struct {
	sessions *SessionService
	uploads  *UploadService
	interval time.Duration
	cron     *cron.Cron
}

func NewSweeper(sessions *SessionService, uploads *UploadService, interval time.Duration) *Sweeper {
	return &Sweeper{
		sessions: sessions,
		uploads:  uploads,
		interval: interval,
		cron:     cron.New(),
	}
}

func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), s.run)
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	s.cron.Start()
	slog.Info("sweeper started", "interval", s.interval)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("sweeper stopped")
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	swept, err := s.sessions.SweepExpired(ctx)
	if err != nil {
		slog.Error("expired session sweep failed", "error", err)
	} else if swept > 0 {
		slog.Info("sweep finished", "sessions_removed", swept)
	}

	dropped := s.uploads.SweepInactive(time.Now())
	if dropped > 0 {
		slog.Info("inactive uploads dropped", "count", dropped)
	}
}
