package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-org-registry/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type Manager struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	metrics         types.MetricsManager
	cron            *cron.Cron
	jobs            map[string]*types.JobEntry
	running         map[string]bool
	state           atomic.Value
	mu              sync.Mutex
	shutdownTimeout time.Duration
	jobTimeout      time.Duration
}

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) *Manager {
	timezone := time.UTC
	if cronConfig := config.GetConfig().Cron; cronConfig != nil && cronConfig.Timezone != "" {
		if loc, err := time.LoadLocation(cronConfig.Timezone); err == nil {
			timezone = loc
		} else {
			logger.Warn("Unknown cron timezone, falling back to UTC",
				zap.String("timezone", cronConfig.Timezone), zap.Error(err))
		}
	}

	cronL := cronLogger{logger: logger}

	managerCtx, cancel := context.WithCancel(ctx)
	manager := &Manager{
		ctx:     managerCtx,
		cancel:  cancel,
		logger:  logger,
		metrics: metrics,
		cron: cron.New(
			cron.WithLocation(timezone),
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cronL), cron.SkipIfStillRunning(cronL)),
		),
		jobs:            make(map[string]*types.JobEntry),
		running:         make(map[string]bool),
		shutdownTimeout: 10 * time.Second,
		jobTimeout:      time.Minute,
	}
	manager.state.Store(StateStopped)

	return manager
}

// Add schedules job under a unique name. spec accepts six-field expressions
// and descriptors such as "@every 30s".
func (m *Manager) Add(jobName, spec string, job func()) error {
	if jobName == "" {
		return types.ErrCronJobNameIsEmpty
	}
	if spec == "" {
		return types.ErrCronExpressionInvalid
	}
	if job == nil {
		return types.ErrCronJobIsNil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getState() == StateStopping {
		return types.ErrCronSchedulerStopped
	}
	if _, exists := m.jobs[jobName]; exists {
		return types.Errorf(types.ErrCronJobExists, "job: %s", jobName)
	}

	entryID, err := m.cron.AddFunc(spec, m.wrapJob(jobName, job))
	if err != nil {
		return types.Errorf(types.ErrCronExpressionInvalid, "%s: %v", spec, err)
	}

	entry := &types.JobEntry{
		ID:      entryID,
		Name:    jobName,
		Spec:    spec,
		Job:     job,
		AddedAt: time.Now(),
	}
	if cronEntry := m.cron.Entry(entryID); cronEntry.ID != 0 {
		entry.NextRun = cronEntry.Next
	}
	m.jobs[jobName] = entry

	m.logger.Info("Cron job added", zap.String("job_name", jobName), zap.String("spec", spec))
	return nil
}

// Run executes a registered job immediately on the caller's goroutine.
func (m *Manager) Run(jobName string) error {
	m.mu.Lock()
	entry, exists := m.jobs[jobName]
	m.mu.Unlock()

	if !exists {
		return types.Errorf(types.ErrCronJobNotFound, "job: %s", jobName)
	}

	m.wrapJob(jobName, entry.Job)()
	return nil
}

func (m *Manager) Jobs() []types.JobEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobs := make([]types.JobEntry, 0, len(m.jobs))
	for _, entry := range m.jobs {
		jobs = append(jobs, *entry)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs
}

func (m *Manager) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		return types.ErrCronIsRunning
	}

	m.cron.Start()
	m.setState(StateRunning)
	m.metrics.Gauge("cron_scheduler_running", nil).Set(1)

	m.logger.Info("Cron manager started", zap.Int("jobs", len(m.Jobs())))
	return nil
}

func (m *Manager) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		m.setState(StateStopped)
		m.cancel()
	}()

	stopCtx := m.cron.Stop()
	m.metrics.Gauge("cron_scheduler_running", nil).Set(0)

	select {
	case <-stopCtx.Done():
		m.logger.Info("Cron scheduler stopped gracefully")
		return nil
	case <-time.After(m.shutdownTimeout):
		m.logger.Warn("Cron manager stop timeout, running jobs were abandoned")
		return types.Errorf(types.ErrComponentStopFailed, "cron stop timeout after %v", m.shutdownTimeout)
	}
}

func (m *Manager) IsRunning() bool {
	return m.getState() == StateRunning
}

func (m *Manager) getState() State {
	return m.state.Load().(State)
}

func (m *Manager) setState(newState State) bool {
	currentState := m.getState()
	return m.state.CompareAndSwap(currentState, newState)
}

func (m *Manager) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}

func (m *Manager) wrapJob(jobName string, job func()) func() {
	return func() {
		if m.ctx.Err() != nil {
			return
		}

		startTime := time.Now()
		m.markStart(jobName, startTime)

		activeJobs := m.metrics.Gauge("cron_active_jobs", nil)
		activeJobs.Inc()
		defer activeJobs.Dec()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- types.Errorf(types.ErrCronJobFailed, "job panic: %v", r)
				}
			}()
			job()
			done <- nil
		}()

		var err error
		select {
		case err = <-done:
		case <-time.After(m.jobTimeout):
			err = types.Errorf(types.ErrCronJobFailed, "timeout after %v", m.jobTimeout)
		case <-m.ctx.Done():
			err = types.WrapError(m.ctx.Err(), "job canceled")
		}

		duration := time.Since(startTime)
		result := "success"
		if err != nil {
			result = "error"
			m.metrics.Counter("cron_job_errors_total", map[string]string{"job_name": jobName}).Inc()
		}

		m.metrics.Counter("cron_job_executions_total", map[string]string{
			"job_name": jobName,
			"result":   result,
		}).Inc()
		m.metrics.Histogram("cron_job_duration_seconds",
			[]float64{0.001, 0.01, 0.1, 1.0, 10.0, 60.0},
			map[string]string{"job_name": jobName},
		).Observe(duration.Seconds())
		m.markFinish(jobName, duration, err)

		if err != nil {
			m.logger.Error("Cron job failed",
				zap.String("job_name", jobName),
				zap.Duration("duration", duration),
				zap.Error(err))
			return
		}

		m.logger.Debug("Cron job completed",
			zap.String("job_name", jobName),
			zap.Duration("duration", duration))
	}
}

func (m *Manager) markStart(jobName string, startTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, exists := m.jobs[jobName]; exists {
		entry.LastRun = startTime
		entry.Error = nil
	}
}

func (m *Manager) markFinish(jobName string, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.jobs[jobName]
	if !exists {
		return
	}

	entry.LastDuration = duration
	entry.TotalDuration += duration
	entry.RunCount++
	entry.Error = err

	if cronEntry := m.cron.Entry(entry.ID); cronEntry.ID != 0 {
		entry.NextRun = cronEntry.Next
	}
}

// cronLogger adapts types.Logger to cron.Logger.
type cronLogger struct {
	logger types.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, toFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(toFields(keysAndValues), zap.Error(err))...)
}

func toFields(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, zap.Any(fmt.Sprintf("%v", keysAndValues[i]), keysAndValues[i+1]))
	}
	return fields
}
