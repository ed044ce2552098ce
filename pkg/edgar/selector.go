package edgar

import (
	"sort"

	"github.com/Ramsey-B/fern/pkg/models"
)

// FilingsFromSubmissions flattens the columnar submissions index into filing
// rows. Rows with a missing accession number are dropped.
func FilingsFromSubmissions(cik string, recent models.RecentFilings) []models.FilingRef {
	n := len(recent.AccessionNumber)
	filings := make([]models.FilingRef, 0, n)

	at := func(values []string, i int) string {
		if i < len(values) {
			return values[i]
		}
		return ""
	}

	for i := 0; i < n; i++ {
		accession := recent.AccessionNumber[i]
		if accession == "" {
			continue
		}
		filings = append(filings, models.FilingRef{
			CIK:                   cik,
			AccessionNumber:       accession,
			FormType:              at(recent.Form, i),
			FilingDate:            at(recent.FilingDate, i),
			ReportDate:            at(recent.ReportDate, i),
			PrimaryDocument:       at(recent.PrimaryDocument, i),
			PrimaryDocDescription: at(recent.PrimaryDocDescription, i),
		})
	}

	return filings
}

// formFamily returns the lookback family a form belongs to, or "" when the
// form is out of scope. Amendments count against the base form's window.
func formFamily(formType string, includeAmendments bool) string {
	switch formType {
	case models.FormType10K:
		return models.FormType10K
	case models.FormType10Q:
		return models.FormType10Q
	case models.FormType10KA:
		if includeAmendments {
			return models.FormType10K
		}
	case models.FormType10QA:
		if includeAmendments {
			return models.FormType10Q
		}
	}
	return ""
}

// SelectFilings picks the filings to ingest: the most recent N annual and M
// quarterly filings per the rules. The result is deterministic for a given
// index: ordering is newest first by filing date with the accession number
// breaking ties.
func SelectFilings(filings []models.FilingRef, rules models.SelectionRules) []models.FilingRef {
	byFamily := map[string][]models.FilingRef{}
	for _, filing := range filings {
		family := formFamily(filing.FormType, rules.IncludeAmendments)
		if family == "" {
			continue
		}
		byFamily[family] = append(byFamily[family], filing)
	}

	newestFirst := func(refs []models.FilingRef) {
		sort.SliceStable(refs, func(i, j int) bool {
			if refs[i].FilingDate != refs[j].FilingDate {
				return refs[i].FilingDate > refs[j].FilingDate
			}
			return refs[i].AccessionNumber > refs[j].AccessionNumber
		})
	}

	take := func(family string, n int) []models.FilingRef {
		refs := byFamily[family]
		newestFirst(refs)
		if n < 0 {
			n = 0
		}
		if len(refs) > n {
			refs = refs[:n]
		}
		return refs
	}

	selected := append(take(models.FormType10K, rules.Lookback10K), take(models.FormType10Q, rules.Lookback10Q)...)

	// Dedupe by accession in case the index lists a filing twice.
	seen := map[string]bool{}
	unique := selected[:0]
	for _, filing := range selected {
		if seen[filing.AccessionNumber] {
			continue
		}
		seen[filing.AccessionNumber] = true
		unique = append(unique, filing)
	}

	newestFirst(unique)
	return unique
}
