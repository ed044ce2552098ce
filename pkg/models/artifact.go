package models

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
)

// ArtifactKind identifies what an artifact's bytes contain.
type ArtifactKind string

const (
	ArtifactKindRawFiling  ArtifactKind = "RAW_FILING"
	ArtifactKindParsedText ArtifactKind = "PARSED_TEXT"
)

// Artifact is a registered, content-addressed file on local storage.
// The (cik, accession_number, kind, parser_version) tuple is the natural
// key: one row per logical artifact regardless of how many times ingestion
// sees the filing. Raw filings carry an empty parser_version; parsed text
// registered by a newer parser creates a new row rather than replacing the
// old one.
type Artifact struct {
	ID               string                   `json:"id" db:"id"`
	CIK              string                   `json:"cik" db:"cik"`
	AccessionNumber  string                   `json:"accession_number" db:"accession_number"`
	Kind             ArtifactKind             `json:"kind" db:"kind"`
	FormType         string                   `json:"form_type" db:"form_type"`
	FilingDate       *string                  `json:"filing_date,omitempty" db:"filing_date"`
	StoragePath      string                   `json:"storage_path" db:"storage_path"`
	SHA256           string                   `json:"sha256" db:"sha256"`
	SizeBytes        int64                    `json:"size_bytes" db:"size_bytes"`
	SourceURL        *string                  `json:"source_url,omitempty" db:"source_url"`
	ParentArtifactID *string                  `json:"parent_artifact_id,omitempty" db:"parent_artifact_id"`
	ParserVersion    string                   `json:"parser_version,omitempty" db:"parser_version"`
	Warnings         database.JSONB[[]string] `json:"warnings" db:"warnings"`
	CreatedAt        time.Time                `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at" db:"updated_at"`
}

// ArtifactWithJob is an artifact joined to the most recent parse job that
// targets it, if any.
type ArtifactWithJob struct {
	Artifact
	LatestJobID     *string    `json:"latest_job_id,omitempty" db:"latest_job_id"`
	LatestJobStatus *JobStatus `json:"latest_job_status,omitempty" db:"latest_job_status"`
}

// ArtifactListResponse is the response for listing artifacts
type ArtifactListResponse struct {
	Items      []ArtifactWithJob `json:"items"`
	TotalCount int               `json:"total_count"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
}
