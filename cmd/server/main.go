package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const DefaultVersion = "1.0.0"

var rootCmd = &cobra.Command{
	Use:           "pr-sentinel",
	Short:         "Pull request change detection and AI review service",
	Long:          "pr-sentinel watches GitHub repositories through polling and webhooks and reviews changed pull requests with Claude.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pr-sentinel version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pr-sentinel version %s\n", DefaultVersion)
	},
}

func main() {
	rootCmd.AddCommand(serveCmd, migrateCmd, reviewCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
