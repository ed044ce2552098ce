package models

// Eligible filing families. Amendments share the base form's lookback window.
const (
	FormType10K  = "10-K"
	FormType10KA = "10-K/A"
	FormType10Q  = "10-Q"
	FormType10QA = "10-Q/A"
)

// FilingRef is one filing row out of the EDGAR submissions index.
type FilingRef struct {
	CIK                   string `json:"cik"`
	AccessionNumber       string `json:"accession_number"`
	FormType              string `json:"form_type"`
	FilingDate            string `json:"filing_date"` // YYYY-MM-DD
	ReportDate            string `json:"report_date,omitempty"`
	PrimaryDocument       string `json:"primary_document"`
	PrimaryDocDescription string `json:"primary_doc_description,omitempty"`
}

// SelectionRules bound how far back each filing family is fetched.
type SelectionRules struct {
	Lookback10K       int  `json:"lookback_10k"`
	Lookback10Q       int  `json:"lookback_10q"`
	IncludeAmendments bool `json:"include_amendments"`
}

// CompanySubmissions mirrors the columnar shape of the EDGAR
// submissions API (data.sec.gov/submissions/CIK##########.json).
type CompanySubmissions struct {
	CIK     string   `json:"cik"`
	Name    string   `json:"name"`
	Tickers []string `json:"tickers"`
	Filings struct {
		Recent RecentFilings `json:"recent"`
	} `json:"filings"`
}

// RecentFilings holds parallel arrays; index i across all slices describes
// one filing.
type RecentFilings struct {
	AccessionNumber       []string `json:"accessionNumber"`
	FilingDate            []string `json:"filingDate"`
	ReportDate            []string `json:"reportDate"`
	Form                  []string `json:"form"`
	PrimaryDocument       []string `json:"primaryDocument"`
	PrimaryDocDescription []string `json:"primaryDocDescription"`
}

// CompanyTicker is one entry of the SEC company_tickers.json mapping file.
type CompanyTicker struct {
	CIK    int64  `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}
