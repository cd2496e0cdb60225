package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RaihaanIhsan/ZeroTrustHealthCare/internal/version"
)

func init() {
	rootCmd.AddCommand(newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show trustctl version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "trustctl version %s\n", version.Version)
			return nil
		},
	}
}
