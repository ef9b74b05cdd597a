package jit

import (
	"context"
	"fmt"

	"github.com/stikjit/jitstub/internal/rsp"
	"github.com/stikjit/jitstub/internal/trap"
	"go.uber.org/zap"
)

const (
	// ExceptionBreakpoint is the Mach EXC_BREAKPOINT exception type
	// reported in "metype:".
	ExceptionBreakpoint = 6

	// DefaultRegionSize is used when a JIT request leaves x1 at zero.
	DefaultRegionSize = 0x10000

	// instructionSize is how far the PC is advanced past a BRK.
	instructionSize = 4

	logRule = "----------------------------------------"
	banner  = "========================================"
)

// Outcome is what a single Step did.
type Outcome int

const (
	// OutcomeSignal means the stop was some other exception; it was left
	// for the target to handle.
	OutcomeSignal Outcome = iota
	// OutcomeMalformed means the reply lacked a thread id, PC or x0.
	OutcomeMalformed
	// OutcomeFetchFailed means the instruction at PC could not be read.
	OutcomeFetchFailed
	// OutcomeNotBreakpoint means the word at PC was not a BRK.
	OutcomeNotBreakpoint
	// OutcomeMapped means a JIT region was prepared and the PC advanced.
	OutcomeMapped
	// OutcomeSteppedOver means a debug or unknown BRK was stepped over.
	OutcomeSteppedOver
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSignal:
		return "signal"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeFetchFailed:
		return "fetch-failed"
	case OutcomeNotBreakpoint:
		return "not-a-breakpoint"
	case OutcomeMapped:
		return "mapped"
	case OutcomeSteppedOver:
		return "stepped-over"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Loop continues the target, inspects each stop and answers JIT mapping
// requests. It has no designed end; Run returns only on cancellation or a
// transport failure.
type Loop struct {
	host        Host
	logger      *zap.Logger
	defaultSize uint64
	session     *Session
	attached    bool
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the structured logger. Progress lines still go through
// Host.Log.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithDefaultRegionSize overrides DefaultRegionSize.
func WithDefaultRegionSize(size uint64) Option {
	return func(l *Loop) {
		if size != 0 {
			l.defaultSize = size
		}
	}
}

// WithSession records into s instead of a fresh session, so a monitor can
// hold the session before the loop starts.
func WithSession(s *Session) Option {
	return func(l *Loop) {
		if s != nil {
			l.session = s
		}
	}
}

// New creates a loop driving host.
func New(host Host, opts ...Option) *Loop {
	l := &Loop{
		host:        host,
		logger:      zap.NewNop(),
		defaultSize: DefaultRegionSize,
		session:     NewSession(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Session returns the loop's session.
func (l *Loop) Session() *Session {
	return l.session
}

// Attached reports whether vAttach has been sent successfully.
func (l *Loop) Attached() bool {
	return l.attached
}

// ResolveRegion turns the x0/x1 arguments of a JIT request into the region
// to prepare. A zero size means def.
func ResolveRegion(x0, x1, def uint64) Region {
	size := x1
	if size == 0 {
		size = def
	}
	return Region{Address: x0, Size: size}
}

// Attach starts a new session and sends vAttach for the host's pid. The
// attach reply is logged, not interpreted.
func (l *Loop) Attach() error {
	pid := l.host.GetPID()
	l.session.begin(pid)

	l.host.Log(banner)
	l.host.Log("JIT negotiation loop")
	l.host.Log(banner)
	l.host.Log(fmt.Sprintf("pid = %d", pid))

	cmd := rsp.Attach(pid)
	reply, err := l.host.SendCommand(cmd)
	if err != nil {
		return &TransportError{Command: cmd, Err: err}
	}
	l.host.Log(fmt.Sprintf("attach_response = %s", reply))

	if rsp.IsErrorReply(reply) {
		l.logger.Warn("attach returned an error reply",
			zap.Int("pid", pid),
			zap.String("reply", reply),
		)
	}

	l.attached = true
	l.session.setState(StateRunning)
	l.host.Log("Waiting for JIT memory requests (brk #0x69)...")
	return nil
}

// Run attaches if needed, then steps until ctx is done or the transport
// fails. ctx is checked between iterations; a command already waiting on
// the stub is not interrupted by it.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			l.session.setState(StateStopped)
			l.logger.Info("jit loop stopped", zap.Error(err))
			return err
		}

		if !l.attached {
			if err := l.Attach(); err != nil {
				l.session.setState(StateStopped)
				return err
			}
			continue
		}

		outcome, err := l.Step()
		if err != nil {
			l.session.setState(StateStopped)
			l.logger.Error("jit loop transport failure", zap.Error(err))
			return err
		}
		l.logger.Debug("jit loop iteration", zap.Stringer("outcome", outcome))
	}
}

// Step runs one iteration: continue, parse the stop, and act on it.
// Only a transport failure is returned as an error.
func (l *Loop) Step() (Outcome, error) {
	it := &iteration{}
	defer l.session.commit(it)

	l.session.setState(StateContinuing)
	reply, err := l.send(rsp.Continue())
	if err != nil {
		return 0, err
	}
	it.continued = true

	l.session.setState(StateClassifying)
	stop := rsp.ParseStopReply(reply)
	it.stop = stop.String()

	if stop.HasException && stop.Exception != ExceptionBreakpoint {
		l.host.Log(fmt.Sprintf("Non-breakpoint exception (metype=%d), continuing...", stop.Exception))
		return l.skip(it, OutcomeSignal), nil
	}

	if !stop.Usable() {
		l.host.Log("Failed to extract registers, continuing...")
		l.logger.Debug("unusable stop reply", zap.String("raw", stop.Raw))
		return l.skip(it, OutcomeMalformed), nil
	}

	pc, _ := stop.Registers.PC()
	x0, _ := stop.Registers.X(0)
	x1, _ := stop.Registers.X(1)
	tid := stop.ThreadID

	fetch, err := l.send(rsp.ReadMemory(pc, instructionSize))
	if err != nil {
		return 0, err
	}
	word, err := rsp.DecodeBigEndianWord(fetch)
	if err != nil {
		l.host.Log(fmt.Sprintf("Could not read instruction at PC=0x%x (%s), skipping...", pc, fetch))
		return l.skip(it, OutcomeFetchFailed), nil
	}

	cl := trap.Classify(word)
	l.logger.Debug("classified stop",
		zap.String("thread", tid),
		zap.Uint64("pc", pc),
		zap.String("word", fmt.Sprintf("0x%08x", word)),
		zap.Stringer("classification", cl),
		zap.String("disasm", trap.Disassemble(word)),
	)

	switch cl.Kind {
	case trap.NotABreakpoint:
		l.host.Log(fmt.Sprintf("Not a BRK instruction at PC=0x%x, skipping...", pc))
		return l.skip(it, OutcomeNotBreakpoint), nil

	case trap.JitMapRequest:
		if err := l.mapRegion(it, ResolveRegion(x0, x1, l.defaultSize)); err != nil {
			return 0, err
		}
		if err := l.resume(pc, tid); err != nil {
			return 0, err
		}
		l.host.Log(fmt.Sprintf("  Resumed execution at PC=0x%x", pc+instructionSize))
		l.host.Log(logRule)
		return OutcomeMapped, nil

	case trap.DebugBreakpoint:
		l.host.Log(fmt.Sprintf("Debug breakpoint brk #0x%x at PC=0x%x, skipping...", cl.Immediate, pc))

	default:
		l.host.Log(fmt.Sprintf("Unknown brk #0x%x at PC=0x%x, skipping...", cl.Immediate, pc))
	}

	if err := l.resume(pc, tid); err != nil {
		return 0, err
	}
	it.stepped = true
	return OutcomeSteppedOver, nil
}

func (l *Loop) mapRegion(it *iteration, region Region) error {
	l.session.setState(StateMapping)

	l.host.Log(logRule)
	l.host.Log(fmt.Sprintf("JIT Request #%d", l.session.nextSequence()))
	l.host.Log(fmt.Sprintf("  Address: 0x%x", region.Address))
	l.host.Log(fmt.Sprintf("  Size: 0x%x (%s)", region.Size, FormatSize(region.Size)))

	status, err := l.host.PrepareMemoryRegion(region.Address, region.Size)
	if err != nil {
		return &TransportError{Command: "prepare_memory_region", Err: err}
	}
	l.host.Log(fmt.Sprintf("  prepare_memory_region result: %s", status))

	region.Status = status
	it.region = &region

	total := l.session.Counters().TotalBytesMapped + region.Size
	l.host.Log(fmt.Sprintf("  Total JIT memory mapped: %s", FormatSize(total)))
	return nil
}

// resume writes pc+4 for tid. The following continue resumes from there.
func (l *Loop) resume(pc uint64, tid string) error {
	l.session.setState(StateResuming)

	reply, err := l.send(rsp.WritePC(pc+instructionSize, tid))
	if err != nil {
		return err
	}
	if rsp.IsErrorReply(reply) {
		l.logger.Warn("pc write rejected",
			zap.String("thread", tid),
			zap.Uint64("pc", pc+instructionSize),
			zap.String("reply", reply),
		)
	}
	return nil
}

func (l *Loop) skip(it *iteration, o Outcome) Outcome {
	l.session.setState(StateSkipping)
	it.skipped = true
	return o
}

func (l *Loop) send(cmd string) (string, error) {
	reply, err := l.host.SendCommand(cmd)
	if err != nil {
		return "", &TransportError{Command: cmd, Err: err}
	}
	return reply, nil
}
