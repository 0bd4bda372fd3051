package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cuongbtq/recruitq/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report <job-id>",
	Short: "Export a finished import as an XLSX workbook",
	Long: `Export a completed candidate import as a workbook with a Summary sheet and
one row per scraped candidate.

Examples:
  jobctl report 3f0c9a0e-8f4e-4a57-9c55-0d7f1c0b7e21
  jobctl report 3f0c9a0e-8f4e-4a57-9c55-0d7f1c0b7e21 -o march-import.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

var researchCmd = &cobra.Command{
	Use:   "research <position-id>",
	Short: "Refresh market research for a position",
	Long: `Queue a market research refresh for a position. While a refresh for the
position is still pending or running, that job is returned instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runResearch,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(researchCmd)

	reportCmd.Flags().StringP("output", "o", "", "Output file (default import-<job-id>.xlsx)")
	researchCmd.Flags().Bool("wait", false, "Wait for the refresh to finish")
}

func runReport(cmd *cobra.Command, args []string) error {
	job, err := newClient().GetJob(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	path, _ := cmd.Flags().GetString("output")
	if path == "" {
		path = fmt.Sprintf("import-%s.xlsx", job.ID)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteImportXLSX(f, job); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func runResearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client := newClient()

	job, created, err := client.RefreshResearch(ctx, args[0], viper.GetString("user_id"))
	if err != nil {
		return err
	}
	if wait, _ := cmd.Flags().GetBool("wait"); wait {
		if job, err = client.Wait(ctx, job.ID, pollInterval()); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if jsonOutput() {
		return printJSON(out, job)
	}

	state := "queued"
	if !created {
		state = "already in progress"
	}
	fmt.Fprintf(out, "Research %s for %s: job %s (%s)\n", state, args[0], job.ID, job.Status)
	if len(job.Response) > 0 {
		return printJSON(out, job.Response)
	}
	return nil
}
