package syncengine

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Online reports connectivity.
type Online interface {
	IsOnline() bool
}

// Scheduler drains the outbox on a fixed interval while online.
type Scheduler struct {
	engine   *Engine
	online   Online
	interval time.Duration
	log      *zap.Logger

	cron *cron.Cron
}

// NewScheduler returns a stopped scheduler.
func NewScheduler(engine *Engine, online Online, interval time.Duration, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{engine: engine, online: online, interval: interval, log: log}
}

// Start schedules the drain. Runs that would overlap a previous one are
// skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("invalid drain interval %s", s.interval)
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	spec := "@every " + s.interval.String()
	if _, err := c.AddFunc(spec, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	s.cron = c
	c.Start()
	s.log.Debug("outbox scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop cancels future runs and waits for a running drain to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil || !s.online.IsOnline() {
		return
	}
	if _, err := s.engine.DrainOutbox(ctx); err != nil {
		s.log.Warn("scheduled outbox drain", zap.Error(err))
	}
}
