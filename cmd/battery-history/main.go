package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cptspacemanspiff/battery-history/internal/batterystats"
	"github.com/cptspacemanspiff/battery-history/internal/dump"
	"github.com/cptspacemanspiff/battery-history/internal/history"
	"github.com/cptspacemanspiff/battery-history/internal/logging"
)

type options struct {
	verbose bool
	strict  bool
	now     string
	compact bool
}

func main() {
	if err := initCommands().Execute(); err != nil {
		os.Exit(1)
	}
}

func initCommands() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:          "battery-history",
		Short:        "Inspect Android battery history dumps",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log dump loading details to stderr")
	rootCmd.PersistentFlags().BoolVar(&opts.strict, "strict", false, "fail on malformed dump lines instead of skipping them")

	samplesCmd := &cobra.Command{
		Use:   "samples <dump>",
		Short: "List history samples aligned to wall-clock time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return samplesCmdRun(cmd, opts, args[0])
		},
	}
	samplesCmd.Flags().StringVar(&opts.now, "now", "", "RFC 3339 time to align the newest sample to (default: dump capture time, else file modification time)")
	samplesCmd.Flags().BoolVar(&opts.compact, "compact", false, "list only plugged, screen, GPS and call states in one column")

	wakelocksCmd := &cobra.Command{
		Use:   "wakelocks <dump>",
		Short: "List wakelock holders by total held time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return wakelocksCmdRun(cmd, opts, args[0])
		},
	}

	decodeCmd := &cobra.Command{
		Use:   "decode <states>",
		Short: "Decode a packed history state word (decimal or 0x hex)",
		Args:  cobra.ExactArgs(1),
		RunE:  decodeCmdRun,
	}

	rootCmd.AddCommand(samplesCmd, wakelocksCmd, decodeCmd)
	return rootCmd
}

func loadDump(cmd *cobra.Command, opts *options, path string) (*dump.Snapshot, error) {
	topics := ""
	if opts.verbose {
		topics = "all"
	}
	logger := logging.New(cmd.ErrOrStderr(), false, topics).With(logging.TopicKey, "dump")
	return dump.Load(logger, path, dump.Options{Strict: opts.strict})
}

func samplesCmdRun(cmd *cobra.Command, opts *options, path string) error {
	snap, err := loadDump(cmd, opts, path)
	if err != nil {
		return err
	}

	alignAt := snap.AlignTime(time.Now())
	if opts.now != "" {
		alignAt, err = time.Parse(time.RFC3339, opts.now)
		if err != nil {
			return fmt.Errorf("parse --now: %w", err)
		}
	}
	built := history.Build(snap.History, snap.Wakelocks, alignAt)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	if opts.compact {
		fmt.Fprintln(w, "TIME\tLEVEL\tSTATES")
		for _, s := range built.Samples {
			fmt.Fprintf(w, "%s\t%d\t%s\n", s.NormalizedTimeString(), s.BatteryLevel, flagList(s.States.Interesting()))
		}
		return w.Flush()
	}
	fmt.Fprintln(w, "TIME\tRAW\tCMD\tLEVEL\tTEMP\tVOLT\tCHG\tSCR\tWAKE\tWIFI\tGPS\tCALL\tSCAN\tBT")
	for _, s := range built.Samples {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.NormalizedTimeString(), s.TimeString(), s.Cmd, s.BatteryLevel,
			s.BatteryTemperature, s.BatteryVoltage,
			boolDigit(s.Charging()), boolDigit(s.ScreenOn()), boolDigit(s.WakeLock()),
			boolDigit(s.WifiRunning()), boolDigit(s.GPSOn()), boolDigit(s.PhoneInCall()),
			boolDigit(s.PhoneScanning()), boolDigit(s.BluetoothOn()))
	}
	return w.Flush()
}

func wakelocksCmdRun(cmd *cobra.Command, opts *options, path string) error {
	snap, err := loadDump(cmd, opts, path)
	if err != nil {
		return err
	}
	records := batterystats.AggregateWakelocks(snap.Wakelocks)
	batterystats.SortWakelocksByDuration(records)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tNAME\tDURATION")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Type, r.Name, time.Duration(r.DurationMs)*time.Millisecond)
	}
	return w.Flush()
}

func decodeCmdRun(cmd *cobra.Command, args []string) error {
	v, err := strconv.ParseUint(strings.TrimSpace(args[0]), 0, 32)
	if err != nil {
		return fmt.Errorf("parse states: %w", err)
	}
	b := batterystats.StateBits(v)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-19s0x%08x\n", "raw:", uint32(b))
	fmt.Fprintf(out, "%-19s%d\n", "brightness:", b.Brightness())
	fmt.Fprintf(out, "%-19s%d\n", "signal_strength:", b.SignalStrength())
	fmt.Fprintf(out, "%-19s%d\n", "phone_state:", b.PhoneState())
	fmt.Fprintf(out, "%-19s%d\n", "data_connection:", b.DataConnection())
	for _, f := range batterystats.AllFlags() {
		fmt.Fprintf(out, "%-19s%s\n", f.String()+":", boolDigit(b.Has(f)))
	}
	return nil
}

func flagList(flags []batterystats.StateFlag) string {
	if len(flags) == 0 {
		return "-"
	}
	names := make([]string, len(flags))
	for i, f := range flags {
		names[i] = f.String()
	}
	return strings.Join(names, ",")
}

// boolDigit renders a flag the way the history tables show it.
func boolDigit(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
