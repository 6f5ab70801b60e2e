package models

import "time"

// JobStatus is the terminal-or-not state of a discovery job.
type JobStatus string

const (
	JobCreated   JobStatus = "created"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobCounters tracks the per-outcome tallies that must balance against
// UrlsFound by the time a job reaches a terminal state.
type JobCounters struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Total returns the sum of all counters, which must equal UrlsFound at
// job completion.
func (c JobCounters) Total() int {
	return c.Succeeded + c.Failed + c.Skipped
}

// Job is one end-to-end discovery run over a region. Jobs are process-local
// and never persisted.
type Job struct {
	JobID      string
	Query      string
	Center     Point
	Radius     int
	Variants   []string
	Status     JobStatus
	UrlsFound  int
	Counters   JobCounters
	CreatedAt  time.Time
	FinishedAt time.Time
}

// Snapshot returns a value copy of the job safe to hand to callers without
// exposing the registry's internal pointer.
func (j *Job) Snapshot() Job {
	return *j
}
