package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cuongbtq/recruitq/internal/api/dto"
	"github.com/cuongbtq/recruitq/internal/importer"
	"github.com/cuongbtq/recruitq/internal/jobs"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Queue a candidate import",
	Long: `Queue a candidate import for a project.

Each --listing is POSITION=LISTING where LISTING is either a job id on the
source or a full listing URL. Filters given on the command line apply to
every listing. A complete request can be read from a JSON file instead.

Examples:
  jobctl import --project proj-1 --listing pos-1=48213
  jobctl import --project proj-1 --listing pos-2=https://source.example/jobs/77 --status 'hire*' --wait
  jobctl import --file request.json --json`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().String("project", "", "Project the candidates are imported into")
	importCmd.Flags().StringArray("listing", nil, "POSITION=JOB_ID or POSITION=URL (repeatable)")
	importCmd.Flags().String("file", "", "Read the import request from a JSON file")
	importCmd.Flags().String("notes", "", "Free-form notes echoed in the result")
	importCmd.Flags().Bool("debug", false, "Include match details in the result")
	importCmd.Flags().StringSlice("status", nil, "Only import records whose status matches one of these globs")
	importCmd.Flags().StringSlice("location", nil, "Only import records whose location matches one of these globs")
	importCmd.Flags().StringSlice("tag", nil, "Only import records with a tag matching one of these globs")
	importCmd.Flags().Int("limit", 0, "Import at most this many records per listing")
	importCmd.Flags().Bool("wait", false, "Wait for the import to finish")
}

func runImport(cmd *cobra.Command, _ []string) error {
	req, err := buildImportRequest(cmd)
	if err != nil {
		return err
	}
	if err := req.Request.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	client := newClient()

	job, err := client.SubmitImport(ctx, req)
	if err != nil {
		return fmt.Errorf("submit import: %w", err)
	}

	if wait, _ := cmd.Flags().GetBool("wait"); wait {
		if job, err = client.Wait(ctx, job.ID, pollInterval()); err != nil {
			return err
		}
	}
	return printImport(cmd, job)
}

func buildImportRequest(cmd *cobra.Command) (*dto.CreateImportRequest, error) {
	req := &dto.CreateImportRequest{UserID: viper.GetString("user_id")}

	if path, _ := cmd.Flags().GetString("file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &req.Request); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	flags := cmd.Flags()
	if project, _ := flags.GetString("project"); project != "" {
		req.ProjectID = project
	}
	if notes, _ := flags.GetString("notes"); notes != "" {
		req.Notes = notes
	}
	if debug, _ := flags.GetBool("debug"); debug {
		req.Debug = true
	}

	listings, _ := flags.GetStringArray("listing")
	for _, input := range listings {
		l, err := parseListing(input)
		if err != nil {
			return nil, err
		}
		req.Jobs = append(req.Jobs, l)
	}

	filter := &importer.Filter{}
	filter.Status, _ = flags.GetStringSlice("status")
	filter.Location, _ = flags.GetStringSlice("location")
	filter.Tags, _ = flags.GetStringSlice("tag")
	filter.Limit, _ = flags.GetInt("limit")
	if len(filter.Status)+len(filter.Location)+len(filter.Tags) > 0 || filter.Limit > 0 {
		for i := range req.Jobs {
			req.Jobs[i].Filters = filter
		}
	}
	return req, nil
}

func parseListing(input string) (importer.Listing, error) {
	position, target, ok := strings.Cut(input, "=")
	if !ok || position == "" || target == "" {
		return importer.Listing{}, fmt.Errorf("invalid --listing %q, want POSITION=JOB_ID or POSITION=URL", input)
	}
	l := importer.Listing{PositionID: position}
	if strings.Contains(target, "://") {
		l.JobURL = target
	} else {
		l.JobID = target
	}
	return l, nil
}

func printImport(cmd *cobra.Command, job *jobs.Job) error {
	out := cmd.OutOrStdout()
	if jsonOutput() {
		return printJSON(out, job)
	}

	fmt.Fprintf(out, "Job %s: %s\n", job.ID, job.Status)
	switch job.Status {
	case jobs.StatusFailed:
		fmt.Fprintf(out, "Error: %s\n", job.Error)
	case jobs.StatusCompleted:
		resp, err := importer.Decode(job)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Imported: %d  Updated: %d  Unchanged: %d  Skipped: %d\n",
			resp.Imported, resp.Updated, resp.Unchanged, resp.Skipped)
		for _, l := range resp.Jobs {
			fmt.Fprintf(out, "  %s (%s): %d imported, %d updated\n", l.PositionID, l.Locator, l.Imported, l.Updated)
		}
	}
	return nil
}
