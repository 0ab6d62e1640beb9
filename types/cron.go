package types

import (
	"time"

	"github.com/robfig/cron/v3"
)

type CronManager interface {
	LifecycleManager
	Add(jobName, spec string, job func()) error
	Jobs() []JobEntry
}

type JobEntry struct {
	ID            cron.EntryID  `json:"-"`
	Name          string        `json:"name"`
	Spec          string        `json:"spec"`
	Job           func()        `json:"-"`
	AddedAt       time.Time     `json:"added_at"`
	LastRun       time.Time     `json:"last_run"`
	NextRun       time.Time     `json:"next_run"`
	LastDuration  time.Duration `json:"last_duration"`
	TotalDuration time.Duration `json:"total_duration"`
	RunCount      int64         `json:"run_count"`
	Error         error         `json:"-"`
}
