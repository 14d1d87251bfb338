package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ordersvc/pkg/database"

	"github.com/go-co-op/gocron/v2"
)

const poolMonitorJob = "db-pool-monitor"

// JobScheduler runs the service's background jobs.
type JobScheduler struct {
	scheduler gocron.Scheduler
	poolStats func() database.Stats
	interval  time.Duration
	log       *slog.Logger
	jobs      map[string]gocron.Job
	mu        sync.RWMutex

	// saturated is true while every pool connection is checked out, so the
	// warning is logged on the transition and not on every tick.
	saturated bool
}

// NewJobScheduler creates the scheduler and registers its jobs. It does not
// start them.
func NewJobScheduler(poolStats func() database.Stats, interval time.Duration, logger *slog.Logger) (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	js := &JobScheduler{
		scheduler: scheduler,
		poolStats: poolStats,
		interval:  interval,
		log:       logger,
		jobs:      make(map[string]gocron.Job),
	}
	if err := js.registerJobs(); err != nil {
		_ = scheduler.Shutdown()
		return nil, err
	}
	return js, nil
}

func (js *JobScheduler) registerJobs() error {
	job, err := js.scheduler.NewJob(
		gocron.DurationJob(js.interval),
		gocron.NewTask(js.CheckPool, context.Background()),
		gocron.WithName(poolMonitorJob),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("create %s job: %w", poolMonitorJob, err)
	}

	js.mu.Lock()
	js.jobs[poolMonitorJob] = job
	js.mu.Unlock()

	js.log.Info("registered background jobs", "count", len(js.jobs))
	return nil
}

func (js *JobScheduler) Start() {
	js.log.Info("starting background job scheduler")
	js.scheduler.Start()
}

func (js *JobScheduler) Stop() error {
	js.log.Info("stopping background job scheduler")
	return js.scheduler.Shutdown()
}

// Jobs returns the names of the registered jobs.
func (js *JobScheduler) Jobs() []string {
	js.mu.RLock()
	defer js.mu.RUnlock()
	names := make([]string, 0, len(js.jobs))
	for name := range js.jobs {
		names = append(names, name)
	}
	return names
}

// CheckPool logs connection pool usage and warns when order writes would
// have to wait for a connection.
func (js *JobScheduler) CheckPool(ctx context.Context) {
	s := js.poolStats()

	js.log.LogAttrs(ctx, slog.LevelDebug, "database pool stats",
		slog.Int("acquired", int(s.AcquiredConns)),
		slog.Int("idle", int(s.IdleConns)),
		slog.Int("total", int(s.TotalConns)),
		slog.Int("max", int(s.MaxConns)),
		slog.Int64("empty_acquires", s.EmptyAcquireCount),
		slog.Duration("acquire_duration", s.AcquireDuration),
	)

	js.mu.Lock()
	defer js.mu.Unlock()

	full := s.MaxConns > 0 && s.AcquiredConns >= s.MaxConns
	switch {
	case full && !js.saturated:
		js.log.Warn("database pool saturated, order writes are waiting for connections",
			"acquired", s.AcquiredConns, "max", s.MaxConns, "empty_acquires", s.EmptyAcquireCount)
	case !full && js.saturated:
		js.log.Info("database pool recovered", "acquired", s.AcquiredConns, "max", s.MaxConns)
	}
	js.saturated = full
}

// Saturated reports the pool state seen by the last check.
func (js *JobScheduler) Saturated() bool {
	js.mu.RLock()
	defer js.mu.RUnlock()
	return js.saturated
}
