package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stikjit/jitstub/internal/rsp"
)

func TestRegisterName(t *testing.T) {
	tests := []struct {
		idx  uint8
		want string
	}{
		{0, "x0"},
		{1, "x1"},
		{28, "x28"},
		{29, "fp"},
		{30, "lr"},
		{31, "sp"},
		{0x20, "pc"},
		{33, "cpsr"},
		{0x41, "r41"},
	}
	for _, tt := range tests {
		if got := registerName(tt.idx); got != tt.want {
			t.Errorf("registerName(%d) = %q, want %q", tt.idx, got, tt.want)
		}
	}
}

func TestParseWord(t *testing.T) {
	tests := []struct {
		name    string
		arg     string
		memory  bool
		want    uint32
		wantErr bool
	}{
		{name: "prefixed", arg: "0xd4200d20", want: 0xd4200d20},
		{name: "bare upper", arg: "D4200D20", want: 0xd4200d20},
		{name: "memory order", arg: "200d20d4", memory: true, want: 0xd4200d20},
		{name: "too wide", arg: "0x1d4200d20", wantErr: true},
		{name: "not hex", arg: "brk", wantErr: true},
		{name: "memory short", arg: "200d", memory: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseWord(tt.arg, tt.memory)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseWord() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseWord() = 0x%08x, want 0x%08x", got, tt.want)
			}
		})
	}
}

func TestArgOrStdin(t *testing.T) {
	got, err := argOrStdin("-", strings.NewReader("T05metype:6;\n"))
	if err != nil || got != "T05metype:6;" {
		t.Errorf("argOrStdin(-) = %q, %v", got, err)
	}
	got, err = argOrStdin("S05", strings.NewReader("ignored"))
	if err != nil || got != "S05" {
		t.Errorf("argOrStdin(S05) = %q, %v", got, err)
	}
}

var testCtx = context.Background()

// recordingChannel answers from a table and records what was sent.
type recordingChannel struct {
	replies map[string]string
	sent    []string
	err     error
}

func (c *recordingChannel) Send(command string) (string, error) {
	c.sent = append(c.sent, command)
	if c.err != nil {
		return "", c.err
	}
	return c.replies[command], nil
}

func TestConsoleShell_RawCommand(t *testing.T) {
	ch := &recordingChannel{replies: map[string]string{
		"?": "T05thread:1a03;00:0000001000000000;20:0040001000000000;metype:6;",
	}}
	var out bytes.Buffer
	sh := &consoleShell{ch: ch, out: &out}

	quit, err := sh.handle(testCtx, "  ?  ")
	if err != nil || quit {
		t.Fatalf("handle() = %v, %v", quit, err)
	}
	if len(ch.sent) != 1 || ch.sent[0] != "?" {
		t.Errorf("sent = %v", ch.sent)
	}
	got := out.String()
	for _, want := range []string{"T05thread", "EXC_BREAKPOINT", "1a03", "pc"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestConsoleShell_EmptyReply(t *testing.T) {
	ch := &recordingChannel{replies: map[string]string{}}
	var out bytes.Buffer
	sh := &consoleShell{ch: ch, out: &out}

	if _, err := sh.handle(testCtx, "qFooBar"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "unsupported") {
		t.Errorf("output = %q", out.String())
	}
}

func TestConsoleShell_WritesNeedPermission(t *testing.T) {
	for _, line := range []string{"M1000,4:00000000", "P20=0000000000000000", "G00", "X1000,0:"} {
		ch := &recordingChannel{replies: map[string]string{line: "OK"}}
		sh := &consoleShell{ch: ch, out: &bytes.Buffer{}}

		if _, err := sh.handle(testCtx, line); err == nil {
			t.Errorf("%q: expected refusal", line)
		}
		if len(ch.sent) != 0 {
			t.Errorf("%q: refused write was sent", line)
		}

		sh.allowWrites = true
		if _, err := sh.handle(testCtx, line); err != nil {
			t.Errorf("%q with writes allowed: %v", line, err)
		}
		if len(ch.sent) != 1 {
			t.Errorf("%q: sent = %v", line, ch.sent)
		}
	}
}

func TestConsoleShell_LocalCommands(t *testing.T) {
	ch := &recordingChannel{replies: map[string]string{
		rsp.ReadMemory(0x100004000, 4): "200d20d4",
	}}
	var out bytes.Buffer
	sh := &consoleShell{ch: ch, out: &out}

	if _, err := sh.handle(testCtx, ".classify 0x100004000"); err != nil {
		t.Fatalf(".classify error = %v", err)
	}
	if !strings.Contains(out.String(), "0xd4200d20") {
		t.Errorf(".classify output = %q", out.String())
	}

	if _, err := sh.handle(testCtx, ".interrupt"); err == nil {
		t.Error(".interrupt is not a local command")
	}

	if _, err := sh.handle(testCtx, ".classify"); err == nil {
		t.Error(".classify without address should fail")
	}
	if _, err := sh.handle(testCtx, ".classify zz"); err == nil {
		t.Error(".classify with bad address should fail")
	}
	if _, err := sh.handle(testCtx, ".bogus"); err == nil {
		t.Error("unknown local command should fail")
	}

	quit, err := sh.handle(testCtx, ".quit")
	if err != nil || !quit {
		t.Errorf(".quit = %v, %v", quit, err)
	}
}

func TestConsoleShell_ClassifyErrorReply(t *testing.T) {
	ch := &recordingChannel{replies: map[string]string{
		rsp.ReadMemory(0x10, 4): "E08",
	}}
	sh := &consoleShell{ch: ch, out: &bytes.Buffer{}}
	if _, err := sh.handle(testCtx, ".classify 10"); err == nil {
		t.Error("expected error for E08 reply")
	}
}

func TestConsoleShell_TransportError(t *testing.T) {
	boom := errors.New("connection reset")
	sh := &consoleShell{ch: &recordingChannel{err: boom}, out: &bytes.Buffer{}}
	if _, err := sh.handle(testCtx, "c"); !errors.Is(err, boom) {
		t.Errorf("handle() error = %v, want %v", err, boom)
	}
}

// haltingChannel blocks "c" until the target is interrupted, like a stub
// whose target runs until it receives ^C.
type haltingChannel struct {
	started     chan struct{}
	interrupted chan struct{}
	reply       string
	replyAfter  bool
	hold        chan struct{}
}

func newHaltingChannel(reply string) *haltingChannel {
	return &haltingChannel{
		started:     make(chan struct{}),
		interrupted: make(chan struct{}),
		reply:       reply,
		replyAfter:  true,
	}
}

func (c *haltingChannel) Send(command string) (string, error) {
	close(c.started)
	<-c.interrupted
	if !c.replyAfter {
		<-c.hold
	}
	return c.reply, nil
}

func (c *haltingChannel) Interrupt() error {
	close(c.interrupted)
	return nil
}

func TestConsoleShell_CancelInterruptsPendingContinue(t *testing.T) {
	ch := newHaltingChannel("T02thread:1a03;metype:5;")
	var out bytes.Buffer
	sh := &consoleShell{ch: ch, interrupt: ch.Interrupt, out: &out}

	cmdCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-ch.started
		cancel()
	}()

	type result struct {
		quit bool
		err  error
	}
	done := make(chan result, 1)
	go func() {
		quit, err := sh.handle(cmdCtx, "c")
		done <- result{quit, err}
	}()

	select {
	case r := <-done:
		if r.err != nil || r.quit {
			t.Fatalf("handle() = %v, %v", r.quit, r.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending continue was not interrupted")
	}

	select {
	case <-ch.interrupted:
	default:
		t.Error("interrupt did not reach the stub")
	}
	got := out.String()
	if !strings.Contains(got, "interrupting") || !strings.Contains(got, "T02thread:1a03") {
		t.Errorf("output = %q", got)
	}
}

func TestConsoleShell_InterruptWithoutStopReply(t *testing.T) {
	ch := newHaltingChannel("")
	ch.replyAfter = false
	ch.hold = make(chan struct{})
	defer close(ch.hold)
	sh := &consoleShell{
		addr:          "127.0.0.1:1234",
		ch:            ch,
		interrupt:     ch.Interrupt,
		out:           &bytes.Buffer{},
		interruptWait: 20 * time.Millisecond,
	}

	cmdCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-ch.started
		cancel()
	}()

	_, err := sh.handle(cmdCtx, "c")
	var ce *rsp.ConnError
	if !errors.As(err, &ce) || ce.Op != "interrupt" {
		t.Fatalf("handle() error = %v, want interrupt *rsp.ConnError", err)
	}
}

func TestConsoleShell_CompletedSendIsNotInterrupted(t *testing.T) {
	ch := &recordingChannel{replies: map[string]string{"c": "T05thread:1;"}}
	called := false
	sh := &consoleShell{
		ch:        ch,
		interrupt: func() error { called = true; return nil },
		out:       &bytes.Buffer{},
	}
	if _, err := sh.handle(testCtx, "c"); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Error("interrupt sent for a packet that already completed")
	}
}
