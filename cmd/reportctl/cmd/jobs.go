package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/finreports/reportd/pkg/client"
	"github.com/finreports/reportd/pkg/models"
	"github.com/finreports/reportd/pkg/poller"
)

var (
	// Job submit flags
	jobName     string
	reportID    string
	jobArgs     []string
	jobPriority int

	// Job status flags
	followStatus bool
)

// jobsCmd represents the jobs command
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage report jobs",
	Long:  `Commands for submitting, listing, following, and cancelling report jobs.`,
}

var jobsSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a new report job",
	Long:  `Submit a new report job to the server. Arguments are passed as repeated --arg key=value flags.`,
	RunE:  runJobsSubmit,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Get job status",
	Long:  `Retrieve the status of a specific job. If no ID is provided, lists all jobs. With --follow, polls with adaptive backoff until the job reaches a terminal state.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJobsStatus,
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a job",
	Long:  `Cancel a queued or running job.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsCancel,
}

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List registered reports",
	RunE:  runReportsList,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(reportsCmd)
	jobsCmd.AddCommand(jobsSubmitCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsCancelCmd)

	jobsSubmitCmd.Flags().StringVar(&jobName, "name", "", "display name for the job (required)")
	jobsSubmitCmd.Flags().StringVar(&reportID, "report", "", "report id to render (required)")
	jobsSubmitCmd.Flags().StringSliceVar(&jobArgs, "arg", nil, "report argument as key=value (repeatable)")
	jobsSubmitCmd.Flags().IntVar(&jobPriority, "priority", 0, "priority 1-10 (informational)")
	jobsSubmitCmd.MarkFlagRequired("name")
	jobsSubmitCmd.MarkFlagRequired("report")

	jobsStatusCmd.Flags().BoolVar(&followStatus, "follow", false, "poll job status with adaptive backoff until completion")
}

func runJobsSubmit(cmd *cobra.Command, args []string) error {
	arguments := make(map[string]interface{}, len(jobArgs))
	for _, kv := range jobArgs {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid --arg %q, expected key=value", kv)
		}
		arguments[parts[0]] = parts[1]
	}

	c := client.NewClient(GetServerURL())
	resp, err := c.Submit(context.Background(), &models.JobRequest{
		Name:      jobName,
		ReportID:  reportID,
		Arguments: arguments,
		Priority:  jobPriority,
	})
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		output, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	table.Append("Job ID", resp.ID)
	table.Append("Status", string(resp.Status))
	table.Append("Polling URL", resp.PollingURL)
	table.Render()
	fmt.Println("\nJob submitted successfully!")
	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	c := client.NewClient(GetServerURL())

	if len(args) == 0 {
		return listAllJobs(c)
	}
	jobID := args[0]

	if followStatus {
		return followJob(c, jobID)
	}

	job, err := c.GetJob(context.Background(), jobID)
	if err != nil {
		return err
	}
	return displayJob(job)
}

// followJob drives the adaptive polling protocol until the job is
// terminal or the user interrupts
func followJob(c *client.Client, jobID string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	fmt.Printf("Following job %s (press Ctrl+C to stop)...\n", jobID)

	p := poller.New(c, poller.DefaultConfig())
	result, err := p.Poll(ctx, jobID, func(s *poller.Status) {
		fmt.Printf("  %s  status=%s progress=%d%%\n",
			time.Now().Format("15:04:05"), s.Status, s.Progress)
	})
	if err != nil {
		if ctx.Err() != nil {
			fmt.Println("Polling cancelled")
			return nil
		}
		return err
	}

	fmt.Printf("\nJob reached terminal state: %s\n", result.Status.Status)
	if result.Status.Error != "" {
		fmt.Printf("Error [%s]: %s\n", result.Status.ErrorCode, result.Status.Error)
	}
	if len(result.Files) > 0 {
		fmt.Println("\nOutput files:")
		for _, f := range result.Files {
			fmt.Printf("  %s (%d bytes)\n", f.Filename, f.Size)
		}
	}
	return nil
}

func listAllJobs(c *client.Client) error {
	jobs, err := c.ListJobs(context.Background())
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		output, err := json.MarshalIndent(jobs, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Name", "Report", "Status", "Progress", "Created")
	for _, job := range jobs {
		table.Append(job.ID, job.Name, job.ReportID, string(job.Status),
			fmt.Sprintf("%d%%", job.Progress), job.CreatedAt.Format(time.RFC3339))
	}
	table.Render()
	fmt.Printf("\nTotal: %d jobs\n", len(jobs))
	return nil
}

func displayJob(job *models.Job) error {
	if IsJSONOutput() {
		output, err := json.MarshalIndent(job, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	table.Append("ID", job.ID)
	table.Append("Name", job.Name)
	table.Append("Report", job.ReportID)
	table.Append("Status", string(job.Status))
	table.Append("Progress", fmt.Sprintf("%d%%", job.Progress))
	table.Append("Priority", fmt.Sprintf("%d", job.Priority))
	table.Append("Created At", job.CreatedAt.Format(time.RFC3339))
	if job.StartedAt != nil {
		table.Append("Started At", job.StartedAt.Format(time.RFC3339))
	}
	if job.CompletedAt != nil {
		table.Append("Completed At", job.CompletedAt.Format(time.RFC3339))
	}
	if job.Error != "" {
		table.Append("Error", job.Error)
	}
	if job.ErrorCode != "" {
		table.Append("Error Code", job.ErrorCode)
	}
	table.Render()
	return nil
}

func runJobsCancel(cmd *cobra.Command, args []string) error {
	c := client.NewClient(GetServerURL())
	if err := c.Cancel(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Job %s cancelled\n", args[0])
	return nil
}

func runReportsList(cmd *cobra.Command, args []string) error {
	c := client.NewClient(GetServerURL())
	reports, err := c.ListReports(context.Background())
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		output, err := json.MarshalIndent(reports, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Report ID")
	for _, r := range reports {
		table.Append(r)
	}
	table.Render()
	return nil
}
