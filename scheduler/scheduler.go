package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"mkt_tracker/config"
	"mkt_tracker/scraper"
)

// Runner performs one crawl.
type Runner interface {
	Run(ctx context.Context, params config.RunParams) (*scraper.RunResult, error)
}

// AfterRun is invoked with the outcome of every scheduled run.
type AfterRun func(ctx context.Context, res *scraper.RunResult, err error)

type Scheduler struct {
	cfg      config.SchedulerConfig
	params   config.RunParams
	runner   Runner
	logger   *zap.Logger
	afterRun AfterRun

	cron    *cron.Cron
	ticker  *time.Ticker
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

func New(cfg config.SchedulerConfig, params config.RunParams, runner Runner, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		params: params,
		runner: runner,
		logger: logger,
		cron:   cron.New(),
		stopCh: make(chan struct{}),
	}
}

// OnRun registers a hook called after each run.
func (s *Scheduler) OnRun(fn AfterRun) {
	s.afterRun = fn
}

// Start schedules runs by cron expression, or else by fixed interval.
func (s *Scheduler) Start(ctx context.Context) error {
	switch {
	case s.cfg.Cron != "":
		s.logger.Info("Starting scheduler", zap.String("cron", s.cfg.Cron))
		_, err := s.cron.AddFunc(s.cfg.Cron, func() { s.TriggerNow(ctx) })
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	case s.cfg.Interval > 0:
		s.logger.Info("Starting scheduler", zap.Duration("interval", s.cfg.Interval))
		s.ticker = time.NewTicker(s.cfg.Interval)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.TriggerNow(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	default:
		return errors.New("no schedule configured: set SCRAPE_CRON or SCRAPE_INTERVAL")
	}
	return nil
}

// TriggerNow runs a crawl unless one is already in progress. It reports
// whether a run happened.
func (s *Scheduler) TriggerNow(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("Previous run still in progress, skipping")
		return false
	}
	defer s.running.Store(false)

	res, err := s.runner.Run(ctx, s.params)
	if err != nil {
		s.logger.Error("Scheduled run error", zap.Error(err))
	}
	if s.afterRun != nil {
		s.afterRun(ctx, res, err)
	}
	return true
}

// Stop halts scheduling and waits for an in-flight run to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
	s.wg.Wait()
}
