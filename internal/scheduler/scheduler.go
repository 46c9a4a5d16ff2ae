package scheduler

import (
	"context"
	"log/slog"
	"time"

	"feedshelf/internal/reader"

	"github.com/robfig/cron/v3"
)

const (
	Timezone              = "UTC"
	TimezoneOffsetSeconds = 0
	refreshTimeout        = 5 * time.Minute
)

type Refresher interface {
	Refresh(ctx context.Context) (reader.RefreshResult, error)
}

// Scheduler refreshes all feeds on a cron schedule.
type Scheduler struct {
	ctx       context.Context
	cron      *cron.Cron
	spec      string
	refresher Refresher
	log       *slog.Logger
}

func New(ctx context.Context, refresher Refresher, spec string, log *slog.Logger) *Scheduler {
	c := cron.New(cron.WithLocation(time.FixedZone(Timezone, TimezoneOffsetSeconds)))

	return &Scheduler{
		ctx:       ctx,
		cron:      c,
		spec:      spec,
		refresher: refresher,
		log:       log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.refresh); err != nil {
		return err
	}

	s.cron.Start()

	return nil
}

// Stop stops the schedule and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) refresh() {
	ctx, cancel := context.WithTimeout(s.ctx, refreshTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		s.log.InfoContext(ctx, "Scheduler context is done",
			"error", ctx.Err())
		return
	default:
	}

	start := time.Now()

	result, err := s.refresher.Refresh(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to refresh feeds",
			"error", err,
			"failed", len(result.Failed))
		return
	}

	s.log.InfoContext(ctx, "Scheduled refresh is done",
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed),
		"articles", result.Articles,
		"tookSeconds", time.Since(start).Seconds())
}
