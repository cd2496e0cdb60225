package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(metricsCmd)
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show aggregate access metrics",
	Long: `Show aggregate counters from the gateway's database.

These are the true counts for operator use. The gateway's /api/v1/metrics
endpoint serves the noised, privacy-budgeted view.

Examples:
  trustctl metrics
  trustctl metrics -o yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		m, err := db.Metrics()
		if err != nil {
			return err
		}

		if outputFormat != "table" {
			return formatOutput(m)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Attempts\t%d\n", m.Attempts)
		fmt.Fprintf(w, "Granted\t%d\n", m.Granted)
		fmt.Fprintf(w, "Denied\t%d\n", m.Denied)
		fmt.Fprintf(w, "Unique principals\t%d\n", m.UniquePrincipals)
		fmt.Fprintf(w, "Auth successes\t%d\n", m.AuthSuccesses)
		fmt.Fprintf(w, "Auth failures\t%d\n", m.AuthFailures)
		w.Flush()
		return nil
	},
}
