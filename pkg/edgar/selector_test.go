package edgar

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func filing(accession, form, filingDate string) models.FilingRef {
	return models.FilingRef{
		CIK:             "0000320193",
		AccessionNumber: accession,
		FormType:        form,
		FilingDate:      filingDate,
	}
}

func TestFilingsFromSubmissions(t *testing.T) {
	recent := models.RecentFilings{
		AccessionNumber: []string{"0001-24-000001", "", "0001-24-000003"},
		Form:            []string{"10-K", "10-Q", "8-K"},
		FilingDate:      []string{"2024-02-01", "2024-01-15", "2024-01-10"},
		PrimaryDocument: []string{"aapl-10k.htm", "aapl-10q.htm"},
	}

	filings := FilingsFromSubmissions("0000320193", recent)

	// row with empty accession number is dropped
	require.Len(t, filings, 2)
	assert.Equal(t, "0001-24-000001", filings[0].AccessionNumber)
	assert.Equal(t, "10-K", filings[0].FormType)
	assert.Equal(t, "aapl-10k.htm", filings[0].PrimaryDocument)

	// short parallel arrays leave fields empty instead of panicking
	assert.Equal(t, "0001-24-000003", filings[1].AccessionNumber)
	assert.Equal(t, "8-K", filings[1].FormType)
	assert.Equal(t, "", filings[1].PrimaryDocument)
}

func TestSelectFilings_LookbackWindows(t *testing.T) {
	filings := []models.FilingRef{
		filing("acc-k3", "10-K", "2022-02-01"),
		filing("acc-k1", "10-K", "2024-02-01"),
		filing("acc-k2", "10-K", "2023-02-01"),
		filing("acc-q1", "10-Q", "2024-05-01"),
		filing("acc-q2", "10-Q", "2024-01-20"),
		filing("acc-q3", "10-Q", "2023-10-20"),
		filing("acc-8k", "8-K", "2024-06-01"),
	}

	selected := SelectFilings(filings, models.SelectionRules{
		Lookback10K: 2,
		Lookback10Q: 2,
	})

	require.Len(t, selected, 4)
	accessions := make([]string, 0, len(selected))
	for _, f := range selected {
		accessions = append(accessions, f.AccessionNumber)
	}
	// newest first, 8-K excluded, third 10-K and 10-Q outside the window
	assert.Equal(t, []string{"acc-q1", "acc-k1", "acc-q2", "acc-k2"}, accessions)
}

func TestSelectFilings_WindowsAreIndependentPerForm(t *testing.T) {
	var filings []models.FilingRef
	for year := 2020; year <= 2024; year++ {
		filings = append(filings, filing(fmt.Sprintf("acc-k-%d", year), "10-K", fmt.Sprintf("%d-02-01", year)))
	}
	for i := 0; i < 20; i++ {
		year := 2020 + i/4
		month := 3*(i%4) + 1
		filings = append(filings, filing(fmt.Sprintf("acc-q-%02d", i), "10-Q", fmt.Sprintf("%d-%02d-15", year, month)))
	}

	selected := SelectFilings(filings, models.SelectionRules{
		Lookback10K: 2,
		Lookback10Q: 8,
	})

	// 5 annual and 20 quarterly candidates yield exactly 2 + 8
	require.Len(t, selected, 10)
	kAccessions := make([]string, 0, 2)
	qCount := 0
	for _, f := range selected {
		switch f.FormType {
		case "10-K":
			kAccessions = append(kAccessions, f.AccessionNumber)
		case "10-Q":
			qCount++
		}
	}
	assert.Equal(t, []string{"acc-k-2024", "acc-k-2023"}, kAccessions)
	assert.Equal(t, 8, qCount)
}

func TestSelectFilings_Deterministic(t *testing.T) {
	filings := []models.FilingRef{
		filing("acc-b", "10-Q", "2024-01-20"),
		filing("acc-a", "10-Q", "2024-01-20"),
		filing("acc-c", "10-Q", "2024-01-20"),
	}

	rules := models.SelectionRules{Lookback10Q: 2}

	first := SelectFilings(filings, rules)

	// same-date ties break on accession number, descending
	require.Len(t, first, 2)
	assert.Equal(t, "acc-c", first[0].AccessionNumber)
	assert.Equal(t, "acc-b", first[1].AccessionNumber)

	// shuffled input produces the same selection
	shuffled := []models.FilingRef{filings[2], filings[0], filings[1]}
	second := SelectFilings(shuffled, rules)
	assert.Equal(t, first, second)
}

func TestSelectFilings_AmendmentsShareTheWindow(t *testing.T) {
	filings := []models.FilingRef{
		filing("acc-ka", "10-K/A", "2024-03-01"),
		filing("acc-k1", "10-K", "2024-02-01"),
		filing("acc-k2", "10-K", "2023-02-01"),
	}

	withAmendments := SelectFilings(filings, models.SelectionRules{
		Lookback10K:       2,
		IncludeAmendments: true,
	})
	require.Len(t, withAmendments, 2)
	// the amendment displaces the oldest 10-K instead of widening the window
	assert.Equal(t, "acc-ka", withAmendments[0].AccessionNumber)
	assert.Equal(t, "acc-k1", withAmendments[1].AccessionNumber)

	withoutAmendments := SelectFilings(filings, models.SelectionRules{
		Lookback10K: 2,
	})
	require.Len(t, withoutAmendments, 2)
	assert.Equal(t, "acc-k1", withoutAmendments[0].AccessionNumber)
	assert.Equal(t, "acc-k2", withoutAmendments[1].AccessionNumber)
}

func TestSelectFilings_DedupesRepeatedIndexRows(t *testing.T) {
	filings := []models.FilingRef{
		filing("acc-k1", "10-K", "2024-02-01"),
		filing("acc-k1", "10-K", "2024-02-01"),
	}

	selected := SelectFilings(filings, models.SelectionRules{Lookback10K: 5})
	assert.Len(t, selected, 1)
}

func TestSelectFilings_ZeroLookbacks(t *testing.T) {
	filings := []models.FilingRef{
		filing("acc-k1", "10-K", "2024-02-01"),
		filing("acc-q1", "10-Q", "2024-05-01"),
	}

	selected := SelectFilings(filings, models.SelectionRules{})
	assert.Empty(t, selected)
}
