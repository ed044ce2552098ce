package models

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
)

// RefreshJobStatus is the lifecycle state of a daily universe refresh.
type RefreshJobStatus string

const (
	RefreshJobStatusPending   RefreshJobStatus = "pending"
	RefreshJobStatusRunning   RefreshJobStatus = "running"
	RefreshJobStatusCompleted RefreshJobStatus = "completed"
	RefreshJobStatusFailed    RefreshJobStatus = "failed"
)

// RefreshItemStatus is the per-ticker state within a refresh job.
type RefreshItemStatus string

const (
	RefreshItemStatusPending   RefreshItemStatus = "pending"
	RefreshItemStatusRunning   RefreshItemStatus = "running"
	RefreshItemStatusCompleted RefreshItemStatus = "completed"
	RefreshItemStatusFailed    RefreshItemStatus = "failed"
	RefreshItemStatusSkipped   RefreshItemStatus = "skipped"
)

// RefreshJob is the daily watchlist-universe refresh. One row per as-of
// date; reruns on the same date attach to the existing job.
type RefreshJob struct {
	ID         string                         `json:"id" db:"id"`
	AsOfDate   string                         `json:"as_of_date" db:"as_of_date"` // YYYY-MM-DD
	Status     RefreshJobStatus               `json:"status" db:"status"`
	StartedAt  *time.Time                     `json:"started_at,omitempty" db:"started_at"`
	FinishedAt *time.Time                     `json:"finished_at,omitempty" db:"finished_at"`
	Stats      database.JSONB[map[string]int] `json:"stats" db:"stats"`
	CreatedAt  time.Time                      `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time                      `json:"updated_at" db:"updated_at"`
}

// RefreshJobItem is one ticker's slot in a refresh job, unique per (job, ticker).
type RefreshJobItem struct {
	ID        string            `json:"id" db:"id"`
	JobID     string            `json:"job_id" db:"job_id"`
	Ticker    string            `json:"ticker" db:"ticker"`
	Status    RefreshItemStatus `json:"status" db:"status"`
	LastError *string           `json:"last_error,omitempty" db:"last_error"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt time.Time         `json:"updated_at" db:"updated_at"`
}

// RefreshJobSummary aggregates item counts for a refresh job.
type RefreshJobSummary struct {
	Job       RefreshJob     `json:"job"`
	Counts    map[string]int `json:"counts"`
	ItemCount int            `json:"item_count"`
}
