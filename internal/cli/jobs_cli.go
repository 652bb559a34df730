package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/emonklabs/emonk/internal/cli/ui"
	"github.com/emonklabs/emonk/internal/scheduler"
	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage the job queue of a running server",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE:  runJobsList,
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsGet,
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a pending job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsCancel,
}

var jobsRetryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Reset a failed job to pending",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsRetry,
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job counts by status",
	RunE:  runJobsStats,
}

var jobsTickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Trigger one scheduler tick manually",
	RunE:  runJobsTick,
}

func init() {
	for _, c := range []*cobra.Command{jobsListCmd, jobsGetCmd, jobsCancelCmd, jobsRetryCmd, jobsStatsCmd, jobsTickCmd} {
		addServerFlags(c.Flags())
		jobsCmd.AddCommand(c)
	}
	jobsListCmd.Flags().String("status", "", "Filter by status (pending, running, completed, failed, cancelled)")
	jobsListCmd.Flags().String("kind", "", "Filter by kind")
	jobsListCmd.Flags().Int("limit", 50, "Maximum jobs to return")
}

func runJobsList(cmd *cobra.Command, args []string) error {
	status, _ := cmd.Flags().GetString("status")
	kind, _ := cmd.Flags().GetString("kind")
	limit, _ := cmd.Flags().GetInt("limit")

	path := fmt.Sprintf("/api/jobs/?limit=%d", limit)
	if status != "" {
		path += "&status=" + status
	}
	if kind != "" {
		path += "&kind=" + kind
	}

	resp, body, err := serverRequest(cmd, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return serverError(resp, body)
	}

	var out struct {
		Items []scheduler.Job `json:"items"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	if jsonOut(cmd) {
		printJSON(out.Items)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tSTATUS\tNEXT RUN\tATTEMPTS")
	for _, j := range out.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\n",
			j.ID, j.Kind, j.Status, j.NextRunAt.Format("2006-01-02 15:04:05"), j.Attempts, j.MaxAttempts)
	}
	return w.Flush()
}

func runJobsGet(cmd *cobra.Command, args []string) error {
	resp, body, err := serverRequest(cmd, http.MethodGet, "/api/jobs/"+args[0], nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return serverError(resp, body)
	}
	var job scheduler.Job
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	printJSON(job)
	return nil
}

func runJobsCancel(cmd *cobra.Command, args []string) error {
	resp, body, err := serverRequest(cmd, http.MethodPost, "/api/jobs/"+args[0]+"/cancel", nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return serverError(resp, body)
	}
	fmt.Printf("%s job %s cancelled\n", ui.StyleSuccess.Render(ui.SymbolCheck), args[0])
	return nil
}

func runJobsRetry(cmd *cobra.Command, args []string) error {
	resp, body, err := serverRequest(cmd, http.MethodPost, "/api/jobs/"+args[0]+"/retry", nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return serverError(resp, body)
	}
	fmt.Printf("%s job %s reset to pending\n", ui.StyleSuccess.Render(ui.SymbolCheck), args[0])
	return nil
}

func runJobsStats(cmd *cobra.Command, args []string) error {
	resp, body, err := serverRequest(cmd, http.MethodGet, "/api/jobs/stats", nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return serverError(resp, body)
	}
	var stats map[string]int
	if err := json.Unmarshal(body, &stats); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	if jsonOut(cmd) {
		printJSON(stats)
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, status := range []string{"pending", "running", "completed", "failed", "cancelled"} {
		fmt.Fprintf(w, "%s\t%d\n", status, stats[status])
	}
	return w.Flush()
}

func runJobsTick(cmd *cobra.Command, args []string) error {
	resp, body, err := serverRequest(cmd, http.MethodPost, "/cron/tick", nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return serverError(resp, body)
	}
	var report scheduler.TickReport
	if err := json.Unmarshal(body, &report); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	printJSON(report)
	return nil
}

// serverError turns a non-200 API response into a readable error.
func serverError(resp *http.Response, body []byte) error {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Message)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}
