package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(budgetCmd)
	budgetCmd.AddCommand(budgetShowCmd)
	budgetCmd.AddCommand(budgetResetCmd)
}

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Manage the gateway's privacy budget",
	Long: `Commands to inspect and reset the differential-privacy budget.

Once the cumulative epsilon crosses the ceiling the gateway stops serving
noised metrics until an operator resets the budget.`,
}

var budgetShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current budget spend",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewGatewayClient(serverURL)
		state, err := client.Budget(cmd.Context())
		if err != nil {
			return err
		}

		if outputFormat != "table" {
			return formatOutput(state)
		}

		status := color.GreenString("OK")
		if state.Exceeded {
			status = color.RedString("EXCEEDED")
		}
		fmt.Printf("Privacy budget: %.2f / %.2f epsilon used [%s]\n",
			state.Used, state.Ceiling, status)
		return nil
	},
}

var budgetResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the budget spend to zero",
	Long: `Reset the gateway's cumulative epsilon spend.

Resetting weakens the privacy guarantee for previously released metrics, so
this is an explicit operator action and is never automatic.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewGatewayClient(serverURL)
		used, err := client.ResetBudget(cmd.Context())
		if err != nil {
			return err
		}

		if outputFormat != "table" {
			return formatOutput(map[string]float64{"used_before": used})
		}
		fmt.Printf("%s budget reset (%.2f epsilon had been spent)\n",
			color.GreenString("OK"), used)
		return nil
	},
}
