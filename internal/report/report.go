// Package report renders completed import jobs as spreadsheets.
package report

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/cuongbtq/recruitq/internal/importer"
	"github.com/cuongbtq/recruitq/internal/jobs"
)

const (
	summarySheet    = "Summary"
	candidatesSheet = "Candidates"
)

// ErrNotImport is returned for jobs that are not completed imports
var ErrNotImport = errors.New("job is not a completed import")

// WriteImportXLSX writes a Summary sheet with the run totals and a
// Candidates sheet with one row per scraped record.
func WriteImportXLSX(w io.Writer, job *jobs.Job) error {
	if job.Type != importer.JobType || job.Status != jobs.StatusCompleted {
		return fmt.Errorf("%w: %s is %s %s", ErrNotImport, job.ID, job.Status, job.Type)
	}
	resp, err := importer.Decode(job)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(candidatesSheet); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	summary := [][]any{
		{"Job ID", job.ID},
		{"Project", resp.ProjectID},
		{"Completed", job.UpdatedAt.UTC().Format(time.RFC3339)},
		{"Imported", resp.Imported},
		{"Updated", resp.Updated},
		{"Unchanged", resp.Unchanged},
		{"Skipped", resp.Skipped},
		{"Hires", resp.Aggregates.HiresCount[resp.ProjectID]},
		{"Notes", resp.Notes},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return err
		}
	}
	_ = f.SetCellStyle(summarySheet, "A1", fmt.Sprintf("A%d", len(summary)), bold)
	_ = f.SetColWidth(summarySheet, "A", "A", 14)
	_ = f.SetColWidth(summarySheet, "B", "B", 40)

	headers := []any{"Position", "Listing", "Candidate ID", "Name", "Outcome"}
	if err := f.SetSheetRow(candidatesSheet, "A1", &headers); err != nil {
		return err
	}
	_ = f.SetCellStyle(candidatesSheet, "A1", "E1", bold)

	row := 2
	for _, listing := range resp.Jobs {
		for _, c := range listing.Candidates {
			cell, _ := excelize.CoordinatesToCellName(1, row)
			values := []any{listing.PositionID, listing.Locator, c.CandidateID, c.Name, string(c.Outcome)}
			if err := f.SetSheetRow(candidatesSheet, cell, &values); err != nil {
				return err
			}
			row++
		}
	}
	_ = f.SetColWidth(candidatesSheet, "A", "A", 14)
	_ = f.SetColWidth(candidatesSheet, "B", "B", 48)
	_ = f.SetColWidth(candidatesSheet, "C", "C", 38)
	_ = f.SetColWidth(candidatesSheet, "D", "D", 28)
	_ = f.SetColWidth(candidatesSheet, "E", "E", 12)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}
