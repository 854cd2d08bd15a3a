package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "fern",
	Short:         "Entity registry: sync, match, link and point-in-time retrieval",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	workerCmd.AddCommand(workerSyncCmd, workerMatchCmd)
	rootCmd.AddCommand(serveCmd, workerCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
