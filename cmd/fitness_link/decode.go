package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/lowaak/fitness-link/internal/codec"

	"github.com/spf13/cobra"
)

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode {hr|workout} <hex>",
		Short: "Decode a raw characteristic payload",
		Long: `Decode a payload captured from a device, given as hex bytes.

  fitness-link decode hr 0048
  fitness-link decode workout "3c 00 00 00 10 27 00 00"

The workout layout comes from session.workout in the config.`,
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"hr", "workout"},
		RunE:      runDecode,
	}
}

func runDecode(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	buf, err := parseHex(args[1])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	switch args[0] {
	case "hr", "heart_rate":
		bpm, err := codec.DecodeHeartRate(buf)
		if err != nil {
			return err
		}
		fmt.Fprint(out, "Heart rate: ")
		valueColor.Fprintf(out, "%d bpm\n", bpm)
	case "workout":
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		s, err := cfg.Session.Workout.Decode(buf)
		if err != nil {
			return err
		}
		fmt.Fprint(out, "Time: ")
		valueColor.Fprint(out, codec.FormatClock(int64(s.ElapsedSeconds)))
		fmt.Fprint(out, "  Calories: ")
		valueColor.Fprintf(out, "%.1f kcal\n", s.CaloriesKcal)
	default:
		return fmt.Errorf("unknown payload kind %q (must be hr or workout)", args[0])
	}
	return nil
}

// parseHex accepts plain hex with optional spaces, colons or a 0x prefix.
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	s = strings.NewReplacer(" ", "", ":", "", "-", "").Replace(s)
	buf, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %w", err)
	}
	return buf, nil
}
