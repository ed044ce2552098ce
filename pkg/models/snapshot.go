package models

import (
	"encoding/json"
	"time"
)

// SnapshotKind identifies the upstream payload a snapshot holds.
type SnapshotKind string

const (
	SnapshotKindSubmissions  SnapshotKind = "submissions"
	SnapshotKindCompanyFacts SnapshotKind = "company_facts"
)

// DataSnapshot is a point-in-time copy of an upstream JSON payload for a
// ticker. At most one row exists per (ticker, kind, snapshot_date); readers
// take the newest row per (ticker, kind).
type DataSnapshot struct {
	ID           string          `json:"id" db:"id"`
	Ticker       string          `json:"ticker" db:"ticker"`
	Kind         SnapshotKind    `json:"kind" db:"kind"`
	Payload      json.RawMessage `json:"payload" db:"payload"`
	SnapshotDate string          `json:"snapshot_date" db:"snapshot_date"`
	FetchedAt    time.Time       `json:"fetched_at" db:"fetched_at"`
}
