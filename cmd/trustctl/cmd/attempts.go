package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/audit"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/store"
)

func init() {
	rootCmd.AddCommand(attemptsCmd)
	attemptsCmd.AddCommand(attemptsListCmd)

	attemptsListCmd.Flags().String("principal", "", "Filter by principal ID")
	attemptsListCmd.Flags().String("result", "", "Filter by result: granted, denied")
	attemptsListCmd.Flags().Duration("since", 0, "Only attempts newer than this (e.g. 24h)")
	attemptsListCmd.Flags().Int("limit", 50, "Maximum number of attempts to show")
}

var attemptsCmd = &cobra.Command{
	Use:   "attempts",
	Short: "Inspect recorded access attempts",
	Long:  `Commands to query the durable access-attempt history.`,
}

var attemptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List access attempts, newest first",
	Long: `List recorded access attempts from the gateway's database.

Reads the database directly, so it works while the gateway is stopped.

Examples:
  trustctl attempts list
  trustctl attempts list --principal usr_doc1 --since 24h
  trustctl attempts list --result denied -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		principal, _ := cmd.Flags().GetString("principal")
		result, _ := cmd.Flags().GetString("result")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.AttemptFilter{
			PrincipalID: principal,
			Limit:       limit,
		}
		switch strings.ToLower(result) {
		case "":
		case "granted":
			filter.Result = audit.ResultGranted
		case "denied":
			filter.Result = audit.ResultDenied
		default:
			return fmt.Errorf("unknown result %q: want granted or denied", result)
		}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		attempts, err := db.QueryAttempts(filter)
		if err != nil {
			return err
		}

		if outputFormat != "table" {
			if len(attempts) == 0 {
				fmt.Println("[]")
				return nil
			}
			return formatOutput(attempts)
		}

		if len(attempts) == 0 {
			fmt.Println("No attempts recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tPRINCIPAL\tIP\tENDPOINT\tRESULT\tREASON")
		for _, a := range attempts {
			res := string(a.Result)
			if a.Result == audit.ResultDenied {
				res = color.RedString(res)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				a.At.Format(time.RFC3339), a.PrincipalID, a.IP, a.Endpoint, res, a.Reason)
		}
		w.Flush()
		return nil
	},
}
