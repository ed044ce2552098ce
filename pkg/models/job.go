package models

import (
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a parse job.
type JobStatus string

// A plain "failed" status never persists: Fail routes a job straight back
// to queued while attempts remain and to deadletter once they run out.
const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusRunning    JobStatus = "running"
	JobStatusDone       JobStatus = "done"
	JobStatusDeadletter JobStatus = "deadletter"
)

// Valid reports whether s is a status a job row can actually hold.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusDone, JobStatusDeadletter:
		return true
	}
	return false
}

// ParseJob is a unit of parse work over a raw artifact. The idempotency key
// is unique, so enqueueing the same artifact at the same parser version is a
// no-op once a live job exists.
type ParseJob struct {
	ID             string     `json:"id" db:"id"`
	ArtifactID     string     `json:"artifact_id" db:"artifact_id"`
	ParserVersion  string     `json:"parser_version" db:"parser_version"`
	IdempotencyKey string     `json:"idempotency_key" db:"idempotency_key"`
	Status         JobStatus  `json:"status" db:"status"`
	AttemptCount   int        `json:"attempt_count" db:"attempt_count"`
	MaxAttempts    int        `json:"max_attempts" db:"max_attempts"`
	LockedBy       *string    `json:"locked_by,omitempty" db:"locked_by"`
	LockedAt       *time.Time `json:"locked_at,omitempty" db:"locked_at"`
	LastError      *string    `json:"last_error,omitempty" db:"last_error"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// ParseJobKey builds the idempotency key for a parse job.
func ParseJobKey(artifactID, parserVersion string) string {
	return fmt.Sprintf("parse:%s:%s", artifactID, parserVersion)
}

// IsTerminal reports whether the job has reached a state no worker should touch.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusDeadletter
}

// ParseJobListResponse is the response for listing parse jobs
type ParseJobListResponse struct {
	Items      []ParseJob `json:"items"`
	TotalCount int        `json:"total_count"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
}
