package jit

import (
	"sync/atomic"

	"github.com/stikjit/jitstub/internal/rsp"
	"go.uber.org/zap"
)

// Host is the capability surface the loop runs against. An embedding
// application provides these four functions; the loop never reaches past
// them.
type Host interface {
	// Log records a human-readable progress line.
	Log(message string)

	// GetPID returns the process to attach to. Queried once.
	GetPID() int

	// SendCommand sends one command and blocks for its reply.
	SendCommand(command string) (string, error)

	// PrepareMemoryRegion asks for [address, address+size) to be made
	// executable. The status is free-form.
	PrepareMemoryRegion(address, size uint64) (string, error)
}

// StubHost implements Host on top of an rsp.Channel.
type StubHost struct {
	channel  rsp.Channel
	pid      int
	preparer MemoryPreparer
	logger   *zap.Logger
	sink     func(line string)

	interrupted atomic.Bool
}

// HostOption configures a StubHost.
type HostOption func(*StubHost)

// WithPreparer replaces the default PageTouchPreparer.
func WithPreparer(p MemoryPreparer) HostOption {
	return func(h *StubHost) {
		h.preparer = p
	}
}

// WithHostLogger sets the logger Log lines and commands are written to.
func WithHostLogger(logger *zap.Logger) HostOption {
	return func(h *StubHost) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithLogSink also delivers every Log line to fn, e.g. a terminal printer.
func WithLogSink(fn func(line string)) HostOption {
	return func(h *StubHost) {
		h.sink = fn
	}
}

// NewStubHost creates a host that sends commands on ch and attaches to pid.
func NewStubHost(ch rsp.Channel, pid int, opts ...HostOption) *StubHost {
	h := &StubHost{
		channel:  ch,
		pid:      pid,
		preparer: PageTouchPreparer{PageSize: DefaultPageSize},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Log implements Host.
func (h *StubHost) Log(message string) {
	h.logger.Info(message)
	if h.sink != nil {
		h.sink(message)
	}
}

// GetPID implements Host.
func (h *StubHost) GetPID() int {
	return h.pid
}

// SendCommand implements Host. It refuses empty commands and, once
// Interrupt has been called, every command.
func (h *StubHost) SendCommand(command string) (string, error) {
	if h.interrupted.Load() {
		return "", ErrInterrupted
	}
	if command == "" {
		return "", ErrEmptyCommand
	}

	reply, err := h.channel.Send(command)
	if err != nil {
		h.logger.Debug("send_command failed",
			zap.String("command", command),
			zap.Error(err),
		)
		return "", err
	}

	h.logger.Debug("send_command",
		zap.String("command", command),
		zap.String("reply", reply),
	)
	return reply, nil
}

// Send lets the preparer issue its commands through SendCommand, so they
// are subject to the same interrupt check.
func (h *StubHost) Send(command string) (string, error) {
	return h.SendCommand(command)
}

// PrepareMemoryRegion implements Host.
func (h *StubHost) PrepareMemoryRegion(address, size uint64) (string, error) {
	status, err := h.preparer.Prepare(h, address, size)
	h.logger.Debug("prepare_memory_region",
		zap.Uint64("address", address),
		zap.Uint64("size", size),
		zap.String("status", status),
		zap.Error(err),
	)
	return status, err
}

// Interrupt makes every later SendCommand fail with ErrInterrupted. A
// command already in flight is not affected.
func (h *StubHost) Interrupt() {
	h.interrupted.Store(true)
}

// Interrupted reports whether Interrupt has been called.
func (h *StubHost) Interrupted() bool {
	return h.interrupted.Load()
}
