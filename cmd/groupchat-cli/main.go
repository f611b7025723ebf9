package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "1.0.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "groupchat-cli",
	Short: "Groupchat CLI - operator tooling for the groupchat API",
	Long: `groupchat-cli runs maintenance tasks against the groupchat database
and mints development tokens.

Examples:
  # Apply pending schema migrations
  groupchat-cli migrate

  # Trim audit_log down to its retention limit
  groupchat-cli audit prune --max-rows 3000

  # Mint a token for a local employee
  groupchat-cli token --id 7 --role employee --org 1`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if path, _ := cmd.Flags().GetString("env-file"); path != "" {
			if err := godotenv.Overload(path); err != nil && !os.IsNotExist(err) {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(tokenCmd)

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().String("env-file", ".env", "Environment file to load")
}
