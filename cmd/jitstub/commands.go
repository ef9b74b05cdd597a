package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stikjit/jitstub/internal/config"
	"github.com/stikjit/jitstub/internal/discovery"
	"github.com/stikjit/jitstub/internal/jit"
	"github.com/stikjit/jitstub/internal/logging"
	"github.com/stikjit/jitstub/internal/rsp"
	"github.com/stikjit/jitstub/internal/server"
	"github.com/stikjit/jitstub/internal/ui"
)

// Run command flags
var (
	runPID        int
	runProfile    string
	runRegionSize uint64
	runPageSize   uint64
	runMonitor    string
	runAdvertise  bool
	runQuiet      bool
	runNoDetach   bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVar(&runPID, "pid", 0, "Process id to attach to")
	runCmd.Flags().StringVar(&runProfile, "profile", "", "Named profile from the config file")
	runCmd.Flags().Uint64Var(&runRegionSize, "region-size", 0, "Region size used when x1 is zero (default from config)")
	runCmd.Flags().Uint64Var(&runPageSize, "page-size", 0, "Page size for region preparation (default from config)")
	runCmd.Flags().StringVar(&runMonitor, "monitor", "", "Serve the session monitor on host:port")
	runCmd.Flags().BoolVar(&runAdvertise, "advertise", false, "Advertise the monitor over mDNS")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Do not echo the session log")
	runCmd.Flags().BoolVar(&runNoDetach, "no-detach", false, "Leave the process stopped instead of detaching on exit")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Attach to a process and service its JIT requests",
	Long: `Attach to a process through the debug stub and run the JIT negotiation
loop until interrupted.

Every stop is classified:
  - brk #0x69: x0/x1 give the region; it is prepared and the thread resumed
  - other brk immediates: stepped over
  - anything else: the process is continued untouched

Ctrl-C interrupts the target, detaches and prints a session summary.`,
	Example: `  # Attach by pid
  jitstub run --pid 812

  # Attach using a profile, serving the monitor
  jitstub run --profile emu --monitor 127.0.0.1:8765

  # Custom default region and page size
  jitstub run --pid 812 --region-size 0x40000 --page-size 0x1000`,
	RunE: runRun,
}

// runTarget is the resolved pid and settings for one run.
type runTarget struct {
	pid        int
	address    string
	regionSize uint64
	pageSize   uint64
	listen     string
	advertise  bool
}

func resolveRunTarget(cmd *cobra.Command, cfg *config.Config) (runTarget, error) {
	t := runTarget{
		pid:        runPID,
		address:    cfg.Stub.Address,
		regionSize: cfg.Loop.DefaultRegionSize,
		pageSize:   cfg.Loop.PageSize,
		listen:     cfg.Monitor.Listen,
		advertise:  cfg.Monitor.Advertise,
	}

	if runProfile != "" {
		p, err := cfg.GetProfile(runProfile)
		if err != nil {
			return t, err
		}
		if t.pid == 0 {
			t.pid = p.PID
		}
		if !cmd.Flags().Changed("stub") {
			t.address = cfg.StubAddress(p)
		}
	}
	if t.pid <= 0 {
		return t, fmt.Errorf("a positive --pid or a --profile is required")
	}

	if runRegionSize != 0 {
		t.regionSize = runRegionSize
	}
	if runPageSize != 0 {
		if runPageSize&(runPageSize-1) != 0 {
			return t, fmt.Errorf("--page-size 0x%x is not a power of two", runPageSize)
		}
		t.pageSize = runPageSize
	}
	if runMonitor != "" {
		t.listen = runMonitor
	}
	if cmd.Flags().Changed("advertise") {
		t.advertise = runAdvertise
	}
	if t.advertise && t.listen == "" {
		return t, fmt.Errorf("--advertise requires --monitor (or monitor.listen in the config)")
	}
	return t, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	// Past argument parsing; don't print usage for runtime failures
	cmd.SilenceUsage = true

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	target, err := resolveRunTarget(cmd, cfg)
	if err != nil {
		return err
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())
	params := map[string]string{
		"Stub":        target.address,
		"PID":         strconv.Itoa(target.pid),
		"Region size": fmt.Sprintf("0x%x", target.regionSize),
		"Page size":   fmt.Sprintf("0x%x", target.pageSize),
	}
	if target.listen != "" {
		params["Monitor"] = target.listen
	}
	printer.PrintHeader("JIT session", cmd.CommandPath()+" --pid "+strconv.Itoa(target.pid), params)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := rsp.Dial(ctx, rsp.DialConfig{
		Address:     target.address,
		Timeout:     cfg.Stub.DialTimeout,
		NoAck:       !cfg.Stub.AckMode,
		MaxAttempts: cfg.Stub.MaxAttempts,
	}, logging.Named("rsp"))
	if err != nil {
		printer.PrintError("Could not reach the debug stub", err, []string{
			"Check that debugserver (or its proxy) listens on " + target.address,
			"Pass --ack if the stub rejects QStartNoAckMode",
		})
		return err
	}
	defer func() { _ = conn.Close() }()

	conn.SetConsole(func(text string) {
		fmt.Fprint(cmd.ErrOrStderr(), text)
	})

	hostOpts := []jit.HostOption{
		jit.WithPreparer(jit.PageTouchPreparer{PageSize: target.pageSize}),
		jit.WithHostLogger(logging.Named("host")),
	}
	if !runQuiet {
		hostOpts = append(hostOpts, jit.WithLogSink(printer.Println))
	}
	host := jit.NewStubHost(conn, target.pid, hostOpts...)

	session := jit.NewSession()
	loop := jit.New(host,
		jit.WithLogger(logging.Named("jit")),
		jit.WithDefaultRegionSize(target.regionSize),
		jit.WithSession(session),
	)

	shutdownMonitor, err := startMonitor(target, cfg, session)
	if err != nil {
		return err
	}
	defer shutdownMonitor()

	// On Ctrl-C stop issuing commands and knock the target out of "c" so
	// the pending reply arrives.
	go func() {
		<-ctx.Done()
		host.Interrupt()
		if err := conn.Interrupt(); err != nil {
			logging.Debug("interrupt not delivered", zap.Error(err))
		}
	}()

	logging.LogSession("started", zap.Int("pid", target.pid), zap.String("stub", target.address))
	runErr := loop.Run(ctx)
	if stoppedByUser(ctx, runErr) {
		runErr = nil
	}

	if !runNoDetach && loop.Attached() {
		detach(conn, printer)
	}

	snap := session.Snapshot()
	logging.LogSession("ended",
		zap.Int("pid", snap.PID),
		zap.Uint("jit_requests", snap.Counters.ValidJitRequests),
		zap.Uint64("bytes_mapped", snap.Counters.TotalBytesMapped),
		zap.Error(runErr),
	)
	printer.PrintResult(ui.SessionSummary(snap, runErr))
	return runErr
}

// stoppedByUser reports whether err is the expected result of Ctrl-C.
func stoppedByUser(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, jit.ErrInterrupted)
}

// detach sends D straight through the connection, since the host refuses
// commands after an interrupt.
func detach(conn *rsp.Conn, printer *ui.Printer) {
	reply, err := conn.Send(rsp.Detach())
	if err == nil {
		err = rsp.CheckReply(rsp.Detach(), reply)
	}
	if err != nil {
		logging.Warn("detach failed", zap.Error(err))
		printer.Println(ui.MutedStyle.Render("detach failed: " + err.Error()))
		return
	}
	printer.Println(ui.MutedStyle.Render("Detached."))
}

// startMonitor serves the session and optionally advertises it. The
// returned func undoes both.
func startMonitor(target runTarget, cfg *config.Config, session *jit.Session) (func(), error) {
	if target.listen == "" {
		return func() {}, nil
	}

	mon, err := server.New(server.Config{
		Listen:       target.listen,
		PushInterval: cfg.Monitor.PushInterval,
	}, session)
	if err != nil {
		return nil, err
	}
	if err := mon.Start(); err != nil {
		return nil, err
	}

	var ad *discovery.Advertisement
	if target.advertise {
		ad, err = discovery.Advertise(cfg.Monitor.ServiceName, mon.Port(), target.pid)
		if err != nil {
			// The monitor is still reachable by address
			logging.Warn("mDNS advertisement failed", zap.Error(err))
		}
	}

	return func() {
		ad.Shutdown()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mon.Shutdown(ctx)
	}, nil
}
