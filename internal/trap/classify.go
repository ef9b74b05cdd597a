package trap

import "fmt"

// Kind is the category of a trapping instruction.
type Kind int

const (
	// NotABreakpoint means the word is not a BRK instruction.
	NotABreakpoint Kind = iota
	// DebugBreakpoint is a BRK planted by a debugger (#0x70, #0x71).
	DebugBreakpoint
	// JitMapRequest is the BRK #0x69 a JIT runtime executes to ask the
	// debugger to make a region executable. x0 holds the address and x1 the
	// size.
	JitMapRequest
	// UnknownBreakpoint is a BRK with any other immediate.
	UnknownBreakpoint
)

const (
	brkMask   = 0xD420
	brkOpcode = 0xD4200000

	// ImmediateJitMap is the BRK immediate of a JIT mapping request.
	ImmediateJitMap uint16 = 0x69
	// ImmediateDebug and ImmediateDebugAlt are planted by debuggers.
	ImmediateDebug    uint16 = 0x70
	ImmediateDebugAlt uint16 = 0x71
)

// String returns the kind name used in logs and CLI output.
func (k Kind) String() string {
	switch k {
	case NotABreakpoint:
		return "not-a-breakpoint"
	case DebugBreakpoint:
		return "debug-breakpoint"
	case JitMapRequest:
		return "jit-map-request"
	case UnknownBreakpoint:
		return "unknown-breakpoint"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Classification is the result of decoding one instruction word.
// Immediate is meaningful only when Kind is not NotABreakpoint.
type Classification struct {
	Kind      Kind
	Immediate uint16
}

// IsBreakpoint reports whether the word was any BRK.
func (c Classification) IsBreakpoint() bool {
	return c.Kind != NotABreakpoint
}

func (c Classification) String() string {
	if !c.IsBreakpoint() {
		return c.Kind.String()
	}
	return fmt.Sprintf("%s (brk #0x%x)", c.Kind, c.Immediate)
}

// Classify decodes word. It is total: every 32-bit value maps to exactly
// one Kind.
func Classify(word uint32) Classification {
	if word>>16 != brkMask {
		return Classification{Kind: NotABreakpoint}
	}

	imm := uint16((word >> 5) & 0xFFFF)
	switch imm {
	case ImmediateJitMap:
		return Classification{Kind: JitMapRequest, Immediate: imm}
	case ImmediateDebug, ImmediateDebugAlt:
		return Classification{Kind: DebugBreakpoint, Immediate: imm}
	default:
		return Classification{Kind: UnknownBreakpoint, Immediate: imm}
	}
}

// EncodeBRK builds the BRK #imm instruction word. Only immediates below
// 0x800 survive a Classify round trip, since bits 16 and up of the word must
// keep the BRK pattern.
func EncodeBRK(imm uint16) uint32 {
	return brkOpcode | uint32(imm)<<5
}
