package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/genc-murat/memwarden/internal/app"
	"github.com/genc-murat/memwarden/internal/coordinator"
	"github.com/genc-murat/memwarden/internal/format"
)

var flagSimulate bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the frame loop until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("simulate") {
			cfg.Runtime.Simulate = flagSimulate
		}

		fxApp := fx.New(
			app.FxLogger(),
			app.Module(cfg),
			app.Lifecycle(),
		)
		if err := fxApp.Err(); err != nil {
			return err
		}
		fxApp.Run()
		return nil
	},
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the configuration and print the effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ceiling, _ := cfg.Monitor.Ceiling()
		ceilingLabel := "auto"
		if ceiling > 0 {
			ceilingLabel = format.Bytes(ceiling)
		}
		force, _ := cfg.Strategy.ForceThresholdBytes()
		rate, _ := cfg.Strategy.AllocationRateBytes()

		fmt.Fprint(cmd.OutOrStdout(), format.FormatInfo(map[string]string{
			"environment":       cfg.Environment,
			"strategy":          cfg.Strategy.Active,
			"memory_ceiling":    ceilingLabel,
			"force_threshold":   format.Bytes(force),
			"allocation_limit":  format.Bytes(int64(rate)) + "/s",
			"history_size":      strconv.Itoa(cfg.Monitor.HistorySize),
			"snapshot_interval": cfg.Monitor.SnapshotInterval.String(),
			"alert_cooldown":    cfg.Alerts.Cooldown.String(),
			"tick_rate":         cfg.Runtime.TickRate.String(),
			"metrics":           strconv.FormatBool(cfg.Metrics.Enabled),
			"log_output":        cfg.Logging.Output,
		}))
		fmt.Fprintln(cmd.OutOrStdout(), "configuration OK")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Take one memory sample and print the coordinator view",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		var (
			coord *coordinator.Coordinator
			lock  *app.InstanceLock
		)
		fxApp := fx.New(fx.NopLogger, app.Module(cfg), fx.Populate(&coord, &lock))
		if err := fxApp.Err(); err != nil {
			return err
		}

		coord.Monitor().CaptureSnapshot()
		coord.ForceAlertCheck()

		info := coord.Info()
		held, err := lock.Held()
		if err != nil {
			info["instance_running"] = "unknown: " + err.Error()
		} else {
			info["instance_running"] = strconv.FormatBool(held)
		}
		fmt.Fprint(cmd.OutOrStdout(), format.FormatInfo(info))
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&flagSimulate, "simulate", false, "drive a synthetic allocation workload")
}
