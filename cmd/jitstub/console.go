package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/stikjit/jitstub/internal/config"
	"github.com/stikjit/jitstub/internal/logging"
	"github.com/stikjit/jitstub/internal/rsp"
	"github.com/stikjit/jitstub/internal/trap"
)

var consoleAllowWrites bool

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.Flags().BoolVar(&consoleAllowWrites, "allow-writes", false, "Permit memory and register writes (M, X, P, G)")
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive raw packet shell against the debug stub",
	Long: `Open a readline shell on the debug stub. Each line is sent as one packet
payload and the reply is printed. Stop replies are decoded automatically.

Ctrl-C while a command is waiting (typically "c") sends ^C to the stub, so
the target stops and the pending command returns its stop reply.

Local commands start with a dot:
  .classify <addr>   read the instruction at addr and classify it
  .help              list local commands
  .quit              leave the shell

Writes to memory or registers are refused unless --allow-writes is set.`,
	Example: `  jitstub console --stub 127.0.0.1:1234
  (rsp) vAttach;32c
  (rsp) .classify 0x100004000`,
	RunE: runConsole,
}

func runConsole(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	conn, err := rsp.Dial(cmd.Context(), rsp.DialConfig{
		Address:     cfg.Stub.Address,
		Timeout:     cfg.Stub.DialTimeout,
		NoAck:       !cfg.Stub.AckMode,
		MaxAttempts: cfg.Stub.MaxAttempts,
	}, logging.Named("rsp"))
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	rlCfg := &readline.Config{
		Prompt:          "(rsp) ",
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem(".classify"),
			readline.PcItem(".help"),
			readline.PcItem(".quit"),
			readline.PcItem("vAttach;"),
			readline.PcItem("qProcessInfo"),
			readline.PcItem("qHostInfo"),
			readline.PcItem("?"),
			readline.PcItem("c"),
			readline.PcItem("D"),
		),
	}
	if dir, err := config.GetConfigDir(); err == nil {
		rlCfg.HistoryFile = filepath.Join(dir, "console_history")
	}

	rl, err := readline.NewEx(rlCfg)
	if err != nil {
		return fmt.Errorf("failed to start console: %w", err)
	}
	defer func() { _ = rl.Close() }()

	conn.SetConsole(func(text string) {
		fmt.Fprint(rl.Stderr(), text)
	})

	sh := &consoleShell{
		addr:        conn.Addr(),
		ch:          conn,
		interrupt:   conn.Interrupt,
		out:         rl.Stdout(),
		allowWrites: consoleAllowWrites,
	}
	fmt.Fprintf(sh.out, "Connected to %s. Type .help for local commands.\n", conn.Addr())

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		// readline has left raw mode, so Ctrl-C now arrives as SIGINT
		cmdCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		quit, err := sh.handle(cmdCtx, line)
		stop()
		if err != nil {
			fmt.Fprintf(sh.out, "error: %v\n", err)
			var ce *rsp.ConnError
			if errors.As(err, &ce) {
				return err
			}
		}
		if quit {
			return nil
		}
	}
}

// interruptWait bounds how long the shell waits for the stop reply after
// sending ^C.
const interruptWait = 5 * time.Second

// consoleShell executes console lines against a channel.
type consoleShell struct {
	addr        string
	ch          rsp.Channel
	interrupt   func() error
	out         io.Writer
	allowWrites bool

	// interruptWait overrides the package default when non-zero
	interruptWait time.Duration
}

// handle runs one line. It reports whether the shell should exit.
// Cancelling ctx while a packet is outstanding interrupts the target.
func (s *consoleShell) handle(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}

	if strings.HasPrefix(line, ".") {
		return s.local(line)
	}

	if isWriteCommand(line) && !s.allowWrites {
		return false, fmt.Errorf("%q writes to the target; rerun with --allow-writes", line)
	}

	logging.LogPacket("send", line)
	reply, err := s.send(ctx, line)
	if err != nil {
		return false, err
	}
	logging.LogPacket("recv", reply)

	fmt.Fprintf(s.out, "%s\n", displayReply(reply))
	if isStopReply(reply) {
		printStopReply(s.out, rsp.ParseStopReply(reply))
	}
	return false, nil
}

// send issues one packet. If ctx ends first, ^C is sent to the stub and
// the pending reply is awaited, since the stub answers the original packet
// once the target stops.
func (s *consoleShell) send(ctx context.Context, payload string) (string, error) {
	type result struct {
		reply string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := s.ch.Send(payload)
		done <- result{reply, err}
	}()

	select {
	case r := <-done:
		return r.reply, r.err
	case <-ctx.Done():
	}

	if s.interrupt == nil {
		r := <-done
		return r.reply, r.err
	}
	fmt.Fprintln(s.out, "^C: interrupting target...")
	if err := s.interrupt(); err != nil {
		return "", err
	}

	wait := s.interruptWait
	if wait == 0 {
		wait = interruptWait
	}
	select {
	case r := <-done:
		return r.reply, r.err
	case <-time.After(wait):
		// The reply may still arrive later and would be read as the answer
		// to the next packet, so the session cannot continue.
		return "", &rsp.ConnError{
			Addr: s.addr,
			Op:   "interrupt",
			Err:  fmt.Errorf("no stop reply within %s of ^C", wait),
		}
	}
}

func (s *consoleShell) local(line string) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case ".quit", ".exit":
		return true, nil

	case ".help":
		fmt.Fprintln(s.out, ".classify <addr>   read and classify the instruction at addr")
		fmt.Fprintln(s.out, ".quit              leave the shell")
		fmt.Fprintln(s.out, "Ctrl-C while a packet is pending interrupts the target")
		return false, nil

	case ".classify":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: .classify <addr>")
		}
		addr, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(fields[1]), "0x"), 16, 64)
		if err != nil {
			return false, fmt.Errorf("invalid address %q", fields[1])
		}
		reply, err := s.ch.Send(rsp.ReadMemory(addr, 4))
		if err != nil {
			return false, err
		}
		word, err := rsp.DecodeBigEndianWord(reply)
		if err != nil {
			return false, fmt.Errorf("read at 0x%x returned %q: %w", addr, reply, err)
		}
		cl := trap.Classify(word)
		fmt.Fprintf(s.out, "0x%x: 0x%08x  %s  %s\n", addr, word, trap.Disassemble(word), trap.Describe(cl))
		return false, nil

	default:
		return false, fmt.Errorf("unknown local command %s (try .help)", fields[0])
	}
}

// isWriteCommand reports whether the packet modifies target memory or
// registers.
func isWriteCommand(payload string) bool {
	switch payload[0] {
	case 'M', 'X', 'P', 'G':
		return true
	}
	return false
}

func isStopReply(reply string) bool {
	return len(reply) >= 3 && (reply[0] == 'T' || reply[0] == 'S')
}

func displayReply(reply string) string {
	if reply == "" {
		return "(empty reply: unsupported)"
	}
	return reply
}
