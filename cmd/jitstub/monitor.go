package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stikjit/jitstub/internal/discovery"
	"github.com/stikjit/jitstub/internal/jit"
	"github.com/stikjit/jitstub/internal/server"
	"github.com/stikjit/jitstub/internal/ui"
)

// Monitor command flags
var (
	monitorInstance string
	scanTimeout     time.Duration
	statusJSON      bool
	watchPlain      bool
)

func init() {
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(discoverCmd)

	for _, c := range []*cobra.Command{watchCmd, statusCmd} {
		c.Flags().StringVar(&monitorInstance, "instance", "", "Find the monitor by mDNS instance name instead of address")
		c.Flags().DurationVar(&scanTimeout, "timeout", discovery.DefaultScanTimeout, "How long to search for --instance")
	}
	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "Print one line per update instead of the live view")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the snapshot as JSON")
	discoverCmd.Flags().DurationVar(&scanTimeout, "timeout", discovery.DefaultScanTimeout, "How long to listen for announcements")
}

var watchCmd = &cobra.Command{
	Use:   "watch [host:port]",
	Short: "Follow a running session through its monitor",
	Long: `Connect to the monitor of a running "jitstub run --monitor" session and
show its counters and mapped regions as they change.

On a terminal this is a live view (q to quit). Otherwise, or with --plain,
one line is printed per update.`,
	Example: `  jitstub watch 127.0.0.1:8765
  jitstub watch --instance jitstub-812`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

var statusCmd = &cobra.Command{
	Use:   "status [host:port]",
	Short: "Print the current state of a running session",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find session monitors advertised on the local network",
	Args:  cobra.NoArgs,
	RunE:  runDiscover,
}

// monitorAddr resolves the positional address or --instance.
func monitorAddr(ctx context.Context, args []string) (string, error) {
	switch {
	case len(args) == 1 && monitorInstance != "":
		return "", fmt.Errorf("pass either an address or --instance, not both")
	case len(args) == 1:
		return args[0], nil
	case monitorInstance != "":
		scanner := discovery.NewScanner()
		scanner.Timeout = scanTimeout
		m, err := scanner.Find(ctx, monitorInstance)
		if err != nil {
			return "", err
		}
		return m.Addr(), nil
	default:
		return "", fmt.Errorf("a monitor address or --instance is required")
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr, err := monitorAddr(ctx, args)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	if !watchPlain && ui.IsTerminal() {
		return ui.RunWatch(ctx, addr, server.Watch)
	}

	out := cmd.OutOrStdout()
	lastState := jit.State(-1)
	return server.Watch(ctx, addr, func(s jit.Snapshot) {
		if s.State != lastState {
			fmt.Fprintf(out, "%s state %s\n", s.UpdatedAt.Format(time.TimeOnly), s.State)
			lastState = s.State
		}
		fmt.Fprintf(out, "%s %s\n", s.UpdatedAt.Format(time.TimeOnly), ui.CountersLine(s.Counters))
	})
}

func runStatus(cmd *cobra.Command, args []string) error {
	addr, err := monitorAddr(cmd.Context(), args)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	snap, err := server.FetchSnapshot(cmd.Context(), addr)
	if err != nil {
		return err
	}
	if statusJSON {
		return printJSON(cmd.OutOrStdout(), snap)
	}

	r := ui.SessionSummary(snap, nil)
	r.Title = "Session " + snap.State.String()
	if n := len(snap.Regions); n > 0 {
		last := snap.Regions[n-1]
		r.AddDetail("Last region", fmt.Sprintf("0x%x (%s)", last.Address, jit.FormatSize(last.Size)))
	}
	ui.NewPrinter(cmd.OutOrStdout()).PrintResult(r)
	return nil
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	printer := ui.NewPrinter(cmd.OutOrStdout())

	scanner := discovery.NewScanner()
	scanner.Timeout = scanTimeout

	printer.Println(ui.MutedStyle.Render(fmt.Sprintf("Listening for %s announcements for %s...", discovery.ServiceType, scanTimeout)))
	monitors, err := scanner.Scan(cmd.Context())
	if err != nil {
		return err
	}

	if len(monitors) == 0 {
		r := ui.NewWarningResult("No monitors found")
		r.AddDetail("Hint", "start a session with --monitor <addr> --advertise")
		printer.PrintResult(r)
		return nil
	}

	r := ui.NewSuccessResult(fmt.Sprintf("Found %d monitor(s)", len(monitors)))
	for _, m := range monitors {
		desc := m.Addr()
		if m.PID > 0 {
			desc += "  pid " + strconv.Itoa(m.PID)
		}
		if v := m.GetMetadata("version"); v != "" {
			desc += "  " + v
		}
		r.AddDetail(m.Instance, desc)
	}
	printer.PrintResult(r)
	return nil
}
