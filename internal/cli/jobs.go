package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/sitechat/internal/models"
)

var jobsLimit int

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect ingestion jobs",
	Long: `List recent ingestion jobs or inspect a specific job by ID.

Jobs outlive the process only with STORE_BACKEND=sqlite.

Examples:
  sitechat jobs           # List recent jobs
  sitechat jobs abc123    # Show details for job abc123`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

var purgeCmd = &cobra.Command{
	Use:   "purge <job-id>",
	Short: "Remove a finished job and every document it stored",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := application.Ingest.Purge(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Purged job %s and its %d documents\n", job.ID, job.Progress.Stored)
		return nil
	},
}

func init() {
	jobsCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 20, "max jobs to list")
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	jobs := application.Ingest.Jobs()

	if len(args) == 1 {
		job, err := jobs.GetJob(ctx, args[0])
		if err != nil {
			return err
		}
		printJob(out, job)
		return nil
	}

	list, err := jobs.ListJobs(ctx, jobsLimit)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return nil
	}

	fmt.Fprintf(out, "%-36s %-7s %-10s %-6s %-7s %-7s %s\n", "ID", "TYPE", "STATUS", "PAGES", "CHUNKS", "STORED", "CREATED")
	fmt.Fprintln(out, "--------------------------------------------------------------------------------------------")
	for _, job := range list {
		fmt.Fprintf(out, "%-36s %-7s %-10s %-6d %-7d %-7d %s\n",
			job.ID, job.Type, job.Status, job.Progress.Pages, job.Progress.Chunks, job.Progress.Stored,
			job.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func printJob(out io.Writer, job *models.IngestionJob) {
	fmt.Fprintf(out, "Job: %s\n", job.ID)
	fmt.Fprintf(out, "  Type: %s\n", job.Type)
	fmt.Fprintf(out, "  Status: %s\n", job.Status)
	if job.URL != "" {
		fmt.Fprintf(out, "  URL: %s (max %d pages, depth %d)\n", job.URL, job.MaxPages, job.MaxDepth)
	}
	if len(job.Files) > 0 {
		fmt.Fprintf(out, "  Files: %d\n", len(job.Files))
	}
	if job.ClientID != "" {
		fmt.Fprintf(out, "  Client: %s\n", job.ClientID)
	}
	fmt.Fprintf(out, "  Created: %s\n", job.CreatedAt.Format(time.RFC3339))
	if job.StartedAt != nil && job.CompletedAt != nil {
		fmt.Fprintf(out, "  Duration: %s\n", job.CompletedAt.Sub(*job.StartedAt).Round(time.Millisecond))
	}
	if job.Error != "" {
		fmt.Fprintf(out, "  Error: %s\n", job.Error)
	}

	p := job.Progress
	fmt.Fprintln(out, "\nProgress:")
	if p.Stage != "" {
		fmt.Fprintf(out, "  Stage: %s\n", p.Stage)
	}
	fmt.Fprintf(out, "  Pages:    %d\n", p.Pages)
	fmt.Fprintf(out, "  Chunks:   %d\n", p.Chunks)
	fmt.Fprintf(out, "  Embedded: %d\n", p.Embedded)
	if p.Failed > 0 {
		fmt.Fprintf(out, "  Failed:   %d\n", p.Failed)
	}
	fmt.Fprintf(out, "  Stored:   %d\n", p.Stored)
}
