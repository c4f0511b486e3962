package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/uinuhq/uinu/internal/config"
	"github.com/uinuhq/uinu/internal/telemetry"
	awsprovider "github.com/uinuhq/uinu/providers/aws"
	"github.com/uinuhq/uinu/sweeper"
)

var (
	sweepRegion string
	sweepDryRun bool
)

// sweepCmd represents the sweep command
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Terminate instances stopped beyond the retention window",
	Long: `Sweep stopped instances that the monitor put to sleep.

Only instances in the stopped state AND carrying a StopTime tag are
considered; instances stopped by hand are never touched. An instance
whose stopped age, in whole days, reaches the retention threshold is
terminated. Per-instance failures are reported in the summary and do
not abort the sweep.

The JSON summary on stdout is the invocation's result:
  {"checked_instances": 2, "terminated_instances": ["i-..."], "failed_terminations": []}`,
	Example: `  uinu sweep                       # Sweep the configured region
  uinu sweep --region us-west-2    # Sweep a specific region
  uinu sweep --dry-run             # Report without terminating`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().StringVarP(&sweepRegion, "region", "r", "", "AWS region (overrides config)")
	sweepCmd.Flags().BoolVar(&sweepDryRun, "dry-run", false, "Report eligible instances without terminating")
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if sweepRegion != "" {
		cfg.Region = sweepRegion
	}
	if err := cfg.ValidateSweep(); err != nil {
		return err
	}

	logger := telemetry.NewLogger("uinu-sweep", cfg.Log.Level)
	ctx := context.Background()

	provider, err := awsprovider.New(ctx, cfg.Region, cfg.Metrics.Namespace)
	if err != nil {
		return err
	}

	sw := sweeper.New(sweeper.Config{
		RetentionDays: cfg.Sweep.RetentionDays,
		DryRun:        sweepDryRun,
	}, provider, logger)

	summary, err := sw.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(summary)
}
