// Package scheduler triggers one full crawl per day at a fixed wall-clock time.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

// RunFunc performs one crawl run.
type RunFunc func(ctx context.Context, runID string) crawler.RunStats

// Config sets the daily trigger.
type Config struct {
	// DailyAt is the trigger time as HH:MM.
	DailyAt  string
	Location *time.Location
	// Heartbeat is how often Run logs the next trigger time while idle.
	Heartbeat time.Duration
}

// Scheduler owns the cron trigger and the reentrancy guard. A trigger that
// fires while a run is active is skipped, never queued.
type Scheduler struct {
	cfg    Config
	run    RunFunc
	ids    crawler.IDGenerator
	clock  crawler.Clock
	logger *zap.Logger

	cron    *cron.Cron
	entryID cron.EntryID

	mu      sync.Mutex
	running bool
	runCtx  context.Context
	last    *crawler.RunStats
	async   sync.WaitGroup
}

// New builds a Scheduler; it does not start it.
func New(cfg Config, run RunFunc, ids crawler.IDGenerator, clock crawler.Clock, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	spec, err := CronSpec(cfg.DailyAt)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		cfg:    cfg,
		run:    run,
		ids:    ids,
		clock:  clock,
		logger: logger.Named("scheduler"),
		runCtx: context.Background(),
	}
	cronLog := cronLogger{s.logger.Sugar()}
	s.cron = cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog)),
	)
	id, err := s.cron.AddFunc(spec, s.trigger)
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	s.entryID = id
	return s, nil
}

// CronSpec converts HH:MM into a five-field cron expression.
func CronSpec(dailyAt string) (string, error) {
	hh, mm, ok := strings.Cut(dailyAt, ":")
	if !ok {
		return "", fmt.Errorf("daily time %q must be HH:MM", dailyAt)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 || len(hh) != 2 {
		return "", fmt.Errorf("daily time %q has an invalid hour", dailyAt)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 || len(mm) != 2 {
		return "", fmt.Errorf("daily time %q has an invalid minute", dailyAt)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// RunOnce performs a crawl immediately under a fresh run ID. If another run
// is active it returns at once with status skipped.
func (s *Scheduler) RunOnce(ctx context.Context) crawler.RunStats {
	if !s.tryStart() {
		s.logger.Warn("crawl still running, skipping trigger")
		metrics.ObserveRun(string(crawler.RunStatusSkipped))
		return crawler.RunStats{Status: crawler.RunStatusSkipped}
	}
	defer s.finish()
	return s.execute(ctx)
}

// Trigger starts a crawl in the background under the context passed to Run.
// It reports false, and starts nothing, when a run is already active.
func (s *Scheduler) Trigger() bool {
	if !s.tryStart() {
		metrics.ObserveRun(string(crawler.RunStatusSkipped))
		return false
	}
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()

	s.async.Add(1)
	go func() {
		defer s.async.Done()
		defer s.finish()
		s.execute(ctx)
	}()
	return true
}

func (s *Scheduler) execute(ctx context.Context) crawler.RunStats {
	runID, err := s.ids.NewID()
	if err != nil {
		runID = fmt.Sprintf("run-%d", s.clock.Now().UnixNano())
		s.logger.Warn("run id generation failed, using fallback", zap.String("run_id", runID), zap.Error(err))
	}
	s.logger.Info("crawl triggered", zap.String("run_id", runID))
	stats := s.run(ctx, runID)

	s.mu.Lock()
	s.last = &stats
	s.mu.Unlock()
	return stats
}

func (s *Scheduler) trigger() {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	s.RunOnce(ctx)
}

func (s *Scheduler) tryStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *Scheduler) finish() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// Running reports whether a crawl is in progress.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Wait blocks until runs started through Trigger have returned.
func (s *Scheduler) Wait() {
	s.async.Wait()
}

// LastRun returns the stats of the most recent finished run, if any.
func (s *Scheduler) LastRun() (crawler.RunStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return crawler.RunStats{}, false
	}
	return *s.last, true
}

// Next returns the next trigger time. It is zero until the scheduler runs.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// Bind sets the context inherited by runs started through Trigger before
// Run is called.
func (s *Scheduler) Bind(ctx context.Context) {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()
}

// Run starts the trigger and blocks until ctx is done. Runs started by the
// trigger or by Trigger inherit ctx, and Run waits for them before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Bind(ctx)

	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("daily_at", s.cfg.DailyAt),
		zap.String("location", s.cfg.Location.String()),
		zap.Time("next_run", s.Next()))

	var heartbeat <-chan time.Time
	if s.cfg.Heartbeat > 0 {
		ticker := time.NewTicker(s.cfg.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping, waiting for active run")
			<-s.cron.Stop().Done()
			s.async.Wait()
			return nil
		case <-heartbeat:
			s.logger.Debug("scheduler idle",
				zap.Bool("running", s.Running()),
				zap.Time("next_run", s.Next()))
		}
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
