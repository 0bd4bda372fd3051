package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cuongbtq/recruitq/internal/api/dto"
	"github.com/cuongbtq/recruitq/internal/jobs"
)

var jobCmd = &cobra.Command{
	Use:   "job <job-id>",
	Short: "Show one job",
	Long: `Show the status, references and result of one job.

Examples:
  jobctl job 3f0c9a0e-8f4e-4a57-9c55-0d7f1c0b7e21
  jobctl job 3f0c9a0e-8f4e-4a57-9c55-0d7f1c0b7e21 --wait --json`,
	Args: cobra.ExactArgs(1),
	RunE: runJob,
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List jobs, newest first",
	Long: `List jobs newest first. Without --user-id every user's jobs are listed.

Examples:
  jobctl jobs --status failed
  jobctl jobs --type candidate_import --project proj-1 --all`,
	Args: cobra.NoArgs,
	RunE: runJobs,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(jobCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(statsCmd)

	jobCmd.Flags().Bool("wait", false, "Wait until the job finishes")

	jobsCmd.Flags().String("type", "", "Filter by job type")
	jobsCmd.Flags().String("status", "", "Filter by status (pending, running, completed, failed)")
	jobsCmd.Flags().String("project", "", "Filter by project id")
	jobsCmd.Flags().String("position", "", "Filter by position id")
	jobsCmd.Flags().Int("page-size", 20, "Jobs per page")
	jobsCmd.Flags().String("cursor", "", "Resume listing from a previous next cursor")
	jobsCmd.Flags().Bool("all", false, "Follow cursors until every page is listed")
}

func runJob(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client := newClient()

	var (
		job *jobs.Job
		err error
	)
	if wait, _ := cmd.Flags().GetBool("wait"); wait {
		job, err = client.Wait(ctx, args[0], pollInterval())
	} else {
		job, err = client.GetJob(ctx, args[0])
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput() {
		return printJSON(out, job)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", job.ID)
	fmt.Fprintf(w, "Type:\t%s\n", job.Type)
	fmt.Fprintf(w, "Status:\t%s\n", job.Status)
	for _, ref := range [][2]string{
		{"User", job.UserID},
		{"Project", job.ProjectID},
		{"Position", job.PositionID},
		{"Candidate", job.CandidateID},
	} {
		if ref[1] != "" {
			fmt.Fprintf(w, "%s:\t%s\n", ref[0], ref[1])
		}
	}
	fmt.Fprintf(w, "Created:\t%s\n", job.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Updated:\t%s\n", job.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	if job.Error != "" {
		fmt.Fprintf(w, "Error:\t%s\n", job.Error)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(job.Response) > 0 {
		fmt.Fprintln(out, "\nResult:")
		return printJSON(out, job.Response)
	}
	return nil
}

func runJobs(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	req := dto.ListJobsRequest{UserID: viper.GetString("user_id")}
	req.JobType, _ = flags.GetString("type")
	req.Status, _ = flags.GetString("status")
	req.ProjectID, _ = flags.GetString("project")
	req.PositionID, _ = flags.GetString("position")
	req.PageSize, _ = flags.GetInt("page-size")
	req.Cursor, _ = flags.GetString("cursor")
	all, _ := flags.GetBool("all")

	ctx := cmd.Context()
	client := newClient()

	var (
		listed []*jobs.Job
		next   string
	)
	for {
		page, err := client.ListJobs(ctx, req)
		if err != nil {
			return err
		}
		listed = append(listed, page.Jobs...)
		next = page.NextCursor
		if !all || next == "" {
			break
		}
		req.Cursor = next
	}

	out := cmd.OutOrStdout()
	if jsonOutput() {
		return printJSON(out, ListResult{Jobs: listed, NextCursor: next})
	}

	if len(listed) == 0 {
		fmt.Fprintln(out, "No jobs found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tPROJECT\tPOSITION\tCREATED")
	for _, job := range listed {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			job.ID, job.Type, job.Status, dash(job.ProjectID), dash(job.PositionID),
			job.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if next != "" {
		fmt.Fprintf(out, "\nMore jobs available: --cursor %s\n", next)
	}
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	stats, err := newClient().QueueStats(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput() {
		return printJSON(out, stats)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Backend:\t%s\n", stats.Backend)
	fmt.Fprintf(w, "Running:\t%t\n", stats.IsRunning)
	fmt.Fprintf(w, "Consumers:\t%d\n", stats.Consumers)
	fmt.Fprintf(w, "Queued:\t%d\n", stats.Queued)
	fmt.Fprintf(w, "Processed:\t%d\n", stats.Processed)
	fmt.Fprintf(w, "Failed:\t%d\n", stats.Failed)
	fmt.Fprintf(w, "Handlers:\t%v\n", stats.Handlers)
	if stats.LastJob != "" {
		fmt.Fprintf(w, "Last job:\t%s at %s\n", stats.LastJob, stats.LastUpdated.Local().Format("2006-01-02 15:04:05"))
	}
	if stats.LastError != "" {
		fmt.Fprintf(w, "Last error:\t%s\n", stats.LastError)
	}
	return w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
