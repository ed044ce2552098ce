package models

import "time"

// Instrument is a tracked security, keyed by ticker. The CIK is filled in
// the first time EDGAR resolves it and treated as immutable afterwards.
type Instrument struct {
	ID        string    `json:"id" db:"id"`
	Ticker    string    `json:"ticker" db:"ticker"`
	CIK       *string   `json:"cik,omitempty" db:"cik"`
	Name      *string   `json:"name,omitempty" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
