// Package scheduler runs periodic syncs and store maintenance on cron
// schedules while the server is up.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rubiojr/cmsmirror/pkg/core"
	"github.com/rubiojr/cmsmirror/pkg/log"
	"github.com/rubiojr/cmsmirror/pkg/storage"
)

// Runner performs one sync unless one is already in progress.
// *syncer.Syncer implements it.
type Runner interface {
	TrySync(ctx context.Context) (*core.SyncReport, bool, error)
}

type Config struct {
	// Schedule is a cron spec or descriptor ("@every 1h"). Empty disables
	// scheduled syncs.
	Schedule string
	// OnStart triggers a sync as soon as the scheduler starts.
	OnStart bool
	// MaintenanceSchedule runs store optimization and a WAL checkpoint.
	// Empty disables it; it is also skipped for stores without maintenance.
	MaintenanceSchedule string
}

func (c Config) validate() error {
	for _, spec := range []string{c.Schedule, c.MaintenanceSchedule} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return &core.ConfigError{Setting: "sync.schedule", Msg: fmt.Sprintf("invalid cron spec %q: %v", spec, err)}
		}
	}
	return nil
}

type Scheduler struct {
	mu         sync.Mutex
	config     Config
	runner     Runner
	maintainer storage.Maintainer
	cron       *cron.Cron
	syncEntry  cron.EntryID
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	running    bool
	logger     *log.Logger
}

// New creates a stopped scheduler. maintainer may be nil.
func New(runner Runner, maintainer storage.Maintainer, config Config) *Scheduler {
	return &Scheduler{
		config:     config,
		runner:     runner,
		maintainer: maintainer,
		logger:     log.ForService("scheduler"),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	if err := s.config.validate(); err != nil {
		return err
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	if err := s.startCronLocked(); err != nil {
		s.cancel()
		return err
	}
	s.running = true

	if s.config.OnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.logger.Infof("Running initial sync")
			s.runSync()
		}()
	}
	return nil
}

func (s *Scheduler) startCronLocked() error {
	c := cron.New()
	s.syncEntry = 0

	if s.config.Schedule != "" {
		id, err := c.AddFunc(s.config.Schedule, s.runSync)
		if err != nil {
			return fmt.Errorf("scheduling sync: %w", err)
		}
		s.syncEntry = id
		s.logger.Infof("Sync scheduled with %q", s.config.Schedule)
	} else {
		s.logger.Infof("Scheduled sync disabled")
	}

	if s.config.MaintenanceSchedule != "" && s.maintainer != nil {
		if _, err := c.AddFunc(s.config.MaintenanceSchedule, s.runMaintenance); err != nil {
			return fmt.Errorf("scheduling maintenance: %w", err)
		}
		s.logger.Infof("Store maintenance scheduled with %q", s.config.MaintenanceSchedule)
	}

	c.Start()
	s.cron = c
	return nil
}

// Stop halts the schedules and waits for running and queued jobs to
// finish before canceling the scheduler context. Cancel the context passed
// to Start to abort in-flight syncs instead.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	c, cancel := s.cron, s.cancel
	s.mu.Unlock()

	<-c.Stop().Done()
	s.wg.Wait()
	cancel()
	s.logger.Infof("Scheduler stopped")
}

// Reload swaps the runner and schedules. Jobs already running finish with
// the previous runner. The on-start sync is not repeated.
func (s *Scheduler) Reload(runner Runner, config Config) error {
	if err := config.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.runner = runner
	s.config = config
	if !s.running {
		return nil
	}

	old := s.cron
	if err := s.startCronLocked(); err != nil {
		return err
	}
	old.Stop()
	s.logger.Infof("Scheduler reloaded")
	return nil
}

// NextSync is the time of the next scheduled sync, zero when none is
// scheduled.
func (s *Scheduler) NextSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.syncEntry == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.syncEntry).Next
}

// Trigger starts a sync in the background right away. It reports false
// when the scheduler is stopped.
func (s *Scheduler) Trigger() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runSync()
	}()
	return true
}

func (s *Scheduler) runSync() {
	s.mu.Lock()
	runner, ctx := s.runner, s.ctx
	s.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	report, ran, err := runner.TrySync(ctx)
	switch {
	case !ran:
		s.logger.Infof("Skipping scheduled sync, another sync is in progress")
	case err != nil:
		s.logger.Errorf("Scheduled sync failed: %v", err)
	default:
		s.logger.Infof("Scheduled sync %s stored %d items", report.RunID, report.ItemsCount)
	}
}

func (s *Scheduler) runMaintenance() {
	s.mu.Lock()
	m, ctx := s.maintainer, s.ctx
	s.mu.Unlock()

	if m == nil || ctx.Err() != nil {
		return
	}
	if err := m.Optimize(ctx); err != nil {
		s.logger.Errorf("Store optimization failed: %v", err)
	}
	if err := m.WALCheckpoint(ctx); err != nil {
		s.logger.Errorf("WAL checkpoint failed: %v", err)
	}
	s.logger.Debugf("Store maintenance done")
}
