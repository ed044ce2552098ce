package models

// IngestRequest is the request for triggering filing ingestion for a ticker.
type IngestRequest struct {
	Ticker string `json:"ticker" validate:"required"`
	Force  bool   `json:"force,omitempty"`
}

// IngestFailure records one filing that could not be ingested. Failures are
// collected rather than aborting the batch.
type IngestFailure struct {
	AccessionNumber string `json:"accession_number"`
	FormType        string `json:"form_type,omitempty"`
	Error           string `json:"error"`
}

// IngestResult summarizes one ingestion run for a ticker.
type IngestResult struct {
	Ticker          string          `json:"ticker"`
	CIK             string          `json:"cik"`
	SelectedCount   int             `json:"selected_count"`
	NewRawArtifacts int             `json:"new_raw_artifacts"`
	NewParseJobs    int             `json:"new_parse_jobs"`
	Skipped         bool            `json:"skipped"`
	Failures        []IngestFailure `json:"failures,omitempty"`
}
