package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fitness-link",
		Short: "Connect to BLE fitness wearables",
		Long: `Discover a BLE fitness wearable, connect to it and follow its heart rate,
workout time and calories.

- Scan for a band, strap or machine advertising a known name
- Stream decoded measurements to the terminal or a dashboard
- Mirror the latest snapshot to disk or Redis, MQTT and Prometheus
- Run against a simulated device with an HTTP control API`,
		Version: fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),
		// main() prints clean errors
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default ~/.fitness-link/config.yaml)")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-file", "", "Write logs to this rotating file instead of stderr")
	flags.String("store", "", "Snapshot store backend (file, memory, redis)")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9100")
	flags.String("mqtt-broker", "", "Publish snapshots to this MQTT broker, e.g. tcp://localhost:1883")
	flags.Bool("simulate", false, "Use simulated devices instead of the Bluetooth adapter")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newConnectCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newDecodeCmd())
	rootCmd.AddCommand(newSimulateCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
