// Package cli implements the emonk command line interface.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// cliHTTPClient is the shared HTTP client for commands that talk to a
// running server. 30-second timeout so a hung server doesn't hang the CLI.
var cliHTTPClient = &http.Client{Timeout: 30 * time.Second}

var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

// SetVersion is called from main to inject build-time version info.
func SetVersion(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date
}

var rootCmd = &cobra.Command{
	Use:   "emonk",
	Short: "Emonk — personal assistant with a pulse-driven scheduler",
	Long: `Emonk is a single-tenant assistant service: a chat webhook, a memory
store, and a cron scheduler that only runs when an external pulse hits
POST /cron/tick.

Start the server:
  emonk serve

Inspect the job queue of a running server:
  emonk jobs list --url http://localhost:8080 --secret $CRON_SECRET`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// addServerFlags registers the flags shared by commands that call a running
// server.
func addServerFlags(fs *pflag.FlagSet) {
	fs.String("url", "http://localhost:8080", "Base URL of the Emonk server")
	fs.String("secret", "", "Cron secret for API auth (default: CRON_SECRET env)")
}

// serverRequest makes an authenticated request to the Emonk server. The
// secret comes from --secret or the CRON_SECRET environment variable.
func serverRequest(cmd *cobra.Command, method, path string, body io.Reader) (*http.Response, []byte, error) {
	baseURL, _ := cmd.Flags().GetString("url")
	secret, _ := cmd.Flags().GetString("secret")
	if secret == "" {
		secret = os.Getenv("CRON_SECRET")
	}

	req, err := http.NewRequest(method, baseURL+path, body)
	if err != nil {
		return nil, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}

	resp, err := cliHTTPClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to server: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp, respBody, nil
}

// jsonOut reports whether --json was passed.
func jsonOut(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
