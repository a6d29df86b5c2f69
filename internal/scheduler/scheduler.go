// Package scheduler periodically returns expired queue leases so that
// messages held by crashed workers become visible again.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"summaryd/internal/queue"
)

const requeueExpiredTimeout = time.Minute

type Scheduler struct {
	ctx      context.Context
	cron     *cron.Cron
	queue    queue.Queue
	interval time.Duration
	log      *slog.Logger
}

func New(ctx context.Context, q queue.Queue, interval time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{
		ctx:      ctx,
		cron:     cron.New(),
		queue:    q,
		interval: interval,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.requeueExpired); err != nil {
		return err
	}

	s.cron.Start()

	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) requeueExpired() {
	ctx, cancel := context.WithTimeout(s.ctx, requeueExpiredTimeout)
	defer cancel()

	requeued, err := s.queue.RequeueExpired(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to requeue expired messages",
			"error", err,
			"requeued", requeued)
		return
	}

	if requeued > 0 {
		s.log.InfoContext(ctx, "Requeued expired messages",
			"requeued", requeued)
	}
}
