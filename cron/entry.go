package cron

import "time"

// Entry is a snapshot of the janitor's schedule and its last outcome.
type Entry struct {
	Schedule    string     `json:"schedule"`
	MaxAge      string     `json:"max_age"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	NextRunAt   *time.Time `json:"next_run_at,omitempty"`
	Runs        int        `json:"runs"`
	LastRemoved int        `json:"last_removed"`
	LastError   string     `json:"last_error,omitempty"`
}
