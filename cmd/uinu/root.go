package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	configPath string

	rootCmd = &cobra.Command{
		Use:   "uinu",
		Short: "Game server instance lifecycle controller",
		Long: `Uinu - Game Server Instance Lifecycle Controller

Uinu keeps cloud bills honest for self-hosted game servers. The monitor
runs on the instance, watches for player activity and stops the instance
once it has been idle long enough. The sweep runs on a schedule and
terminates instances that have stayed stopped beyond the retention
window. The two halves meet only through the StopTime tag on the
instance itself.`,
		Version: version,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`Uinu {{.Version}} - Game Server Instance Lifecycle Controller
`)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/uinu/config.yaml", "Path to config file")
}
