package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/gridharvest/pkg/jobregistry"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List tracked submissions",
	Long: `List the submissions recorded in the local registry, newest first.

Example:
  gridharvest jobs
  gridharvest jobs --json`,
	RunE: runJobs,
}

var jobsJSON bool

func init() {
	rootCmd.AddCommand(jobsCmd)

	jobsCmd.Flags().BoolVar(&jobsJSON, "json", false, "Emit JSON instead of a table")
}

func runJobs(cmd *cobra.Command, args []string) error {
	records, err := registryStore().List()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to read registry", err)
	}

	if jobsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if records == nil {
			records = []jobregistry.SubmissionRecord{}
		}
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Println("No submissions recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TEST ID\tJOB ID\tNAME\tSTATE\tOUTCOME\tSUBMITTED")
	for _, r := range records {
		submitted := ""
		if r.SubmittedAt != nil {
			submitted = r.SubmittedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.TestID, r.JobID, r.Name, r.State, r.Outcome, submitted)
	}
	return w.Flush()
}
