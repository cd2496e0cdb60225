// Package cmd implements the trustctl CLI commands.
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/store"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	// Global flags
	outputFormat string
	dbPath       string
	serverURL    string
)

var rootCmd = &cobra.Command{
	Use:   "trustctl",
	Short: "Operator CLI for the trust evaluation gateway",
	Long: `trustctl inspects and administers the trust evaluation gateway.

History commands (attempts, metrics) read the gateway's sqlite database
directly and work offline. Session and privacy-budget commands talk to a
running gateway over HTTP.`,
	SilenceUsage: true,
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for trustctl.

To load completions:

Bash:
  # Add to ~/.bashrc:
  source <(trustctl completion bash)

Zsh:
  # Add to ~/.zshrc:
  source <(trustctl completion zsh)

Fish:
  # Add to ~/.config/fish/completions/:
  trustctl completion fish > ~/.config/fish/completions/trustctl.fish

PowerShell:
  # Add to your PowerShell profile:
  trustctl completion powershell | Out-String | Invoke-Expression`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(os.Stdout)
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
		default:
			return fmt.Errorf("unknown shell: %s", args[0])
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: ~/.local/share/zthc/zthc.db)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:8080", "Gateway URL for online commands")
	rootCmd.AddCommand(completionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// openStore opens the durable history database for the offline commands.
// The caller closes it.
func openStore() (*store.Store, error) {
	path := dbPath
	if path == "" {
		path = store.DefaultPath()
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// formatOutput handles output formatting based on the --output flag.
func formatOutput(data interface{}) error {
	switch outputFormat {
	case "json":
		return outputJSON(data)
	case "yaml":
		return outputYAML(data)
	default:
		// Table format is handled by each command
		return nil
	}
}

func outputJSON(data interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func outputYAML(data interface{}) error {
	out, err := yaml.Marshal(data)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}
