// Package reminder schedules one-shot payment reminders.
package reminder

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/m3rciful/funnelbot/core/logger"
)

// FireFunc delivers the reminder. It must re-check whether the user still needs it.
type FireFunc func(ctx context.Context, userID int64) error

// Scheduler keeps at most one pending reminder per user.
type Scheduler struct {
	after time.Duration
	fire  FireFunc
	cron  gocron.Scheduler

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a stopped scheduler. after must be positive.
func New(after time.Duration, fire FireFunc) (*Scheduler, error) {
	if after <= 0 {
		return nil, errors.New("reminder: delay must be positive")
	}
	if fire == nil {
		return nil, errors.New("reminder: nil fire func")
	}
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{after: after, fire: fire, cron: cron, ctx: ctx, cancel: cancel}, nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info(s.ctx, logger.CompReminder, "reminder.started", slog.Duration("delay", s.after))
}

// Shutdown drops pending reminders and waits for running ones.
func (s *Scheduler) Shutdown() error {
	s.cancel()
	return s.cron.Shutdown()
}

// Schedule replaces any pending reminder for userID.
func (s *Scheduler) Schedule(userID int64) error {
	tag := tag(userID)
	s.cron.RemoveByTags(tag)
	at := time.Now().Add(s.after)
	_, err := s.cron.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(at)),
		gocron.NewTask(s.run, userID),
		gocron.WithTags(tag),
		gocron.WithName(tag),
	)
	ctx := logger.WithUser(s.ctx, userID)
	if err != nil {
		logger.Warn(ctx, logger.CompReminder, "reminder.schedule", slog.String("status", "fail"), logger.Err(err))
		return err
	}
	logger.Debug(ctx, logger.CompReminder, "reminder.scheduled", slog.Time("at", at))
	return nil
}

// Pending reports how many reminders are waiting.
func (s *Scheduler) Pending() int {
	return len(s.cron.Jobs())
}

func (s *Scheduler) run(userID int64) {
	ctx := logger.WithUser(s.ctx, userID)
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	err := s.fire(ctx, userID)
	logger.Info(ctx, logger.CompReminder, "reminder.fired",
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.Took(start)),
		logger.Err(err),
	)
}

func tag(userID int64) string {
	return "reminder:" + strconv.FormatInt(userID, 10)
}
