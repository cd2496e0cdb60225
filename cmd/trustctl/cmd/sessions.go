package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsRevokeCmd)

	sessionsRevokeCmd.Flags().String("principal", "", "Revoke every session for this principal")
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage gateway sessions",
	Long:  `Commands to revoke sessions on a running gateway.`,
}

var sessionsRevokeCmd = &cobra.Command{
	Use:   "revoke [session-id]",
	Short: "Revoke a session, or all sessions for a principal",
	Long: `Revoke a single session by ID, or every session a principal holds.

Revocation takes effect on the next request: a revoked session fails the
pipeline's session check and the caller must authenticate again.

Examples:
  trustctl sessions revoke sess_ab12cd34
  trustctl sessions revoke --principal usr_doc1`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		principal, _ := cmd.Flags().GetString("principal")
		if (len(args) == 0) == (principal == "") {
			return fmt.Errorf("specify exactly one of a session ID or --principal")
		}

		client := NewGatewayClient(serverURL)

		if principal != "" {
			n, err := client.RevokeAllSessions(cmd.Context(), principal)
			if err != nil {
				return err
			}
			if outputFormat != "table" {
				return formatOutput(map[string]int{"revoked": n})
			}
			fmt.Printf("%s revoked %d session(s) for %s\n",
				color.GreenString("OK"), n, principal)
			return nil
		}

		if err := client.RevokeSession(cmd.Context(), args[0]); err != nil {
			return err
		}
		if outputFormat != "table" {
			return formatOutput(map[string]string{"revoked": args[0]})
		}
		fmt.Printf("%s revoked session %s\n", color.GreenString("OK"), args[0])
		return nil
	},
}
