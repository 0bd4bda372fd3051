package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/cuongbtq/recruitq/internal/importer"
	"github.com/cuongbtq/recruitq/internal/jobs"
)

func importJob(t *testing.T) *jobs.Job {
	t.Helper()
	resp := importer.Response{
		ProjectID: "proj-1",
		Counts:    importer.Counts{Imported: 1, Updated: 1},
		Jobs: []importer.ListingResult{{
			PositionID: "pos-1",
			Locator:    "job-1",
			Counts:     importer.Counts{Imported: 1, Updated: 1},
			Candidates: []importer.CandidateResult{
				{CandidateID: "alice", Name: "Alice Nguyen", Outcome: importer.OutcomeUpdated},
				{CandidateID: "bob", Name: "Bob Tran", Outcome: importer.OutcomeImported},
			},
		}},
		Aggregates: importer.Aggregates{HiresCount: map[string]int{"proj-1": 0}},
		Notes:      "weekly sync",
	}
	payload, err := jobs.NewPayload(resp)
	require.NoError(t, err)

	return &jobs.Job{
		ID:        "job-42",
		Type:      importer.JobType,
		Status:    jobs.StatusCompleted,
		Response:  payload,
		UpdatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestWriteImportXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteImportXLSX(&buf, importJob(t)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{summarySheet, candidatesSheet}, f.GetSheetList())

	imported, err := f.GetCellValue(summarySheet, "B4")
	require.NoError(t, err)
	assert.Equal(t, "1", imported)

	rows, err := f.GetRows(candidatesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Position", "Listing", "Candidate ID", "Name", "Outcome"}, rows[0])
	assert.Equal(t, []string{"pos-1", "job-1", "bob", "Bob Tran", "imported"}, rows[2])
}

func TestWriteImportXLSX_RejectsOtherJobs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*jobs.Job)
	}{
		{"pending", func(j *jobs.Job) { j.Status = jobs.StatusPending }},
		{"other type", func(j *jobs.Job) { j.Type = "market_research.refresh" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := importJob(t)
			tt.mutate(job)
			err := WriteImportXLSX(&bytes.Buffer{}, job)
			assert.ErrorIs(t, err, ErrNotImport)
		})
	}
}
