package trap

import (
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		word     uint32
		wantKind Kind
		wantImm  uint16
	}{
		{"jit map request", 0xD4200D20, JitMapRequest, 0x69},
		{"debug breakpoint 0x70", 0xD4200E00, DebugBreakpoint, 0x70},
		{"debug breakpoint 0x71", 0xD4200E20, DebugBreakpoint, 0x71},
		{"brk #0", 0xD4200000, UnknownBreakpoint, 0},
		{"brk #0xf000 encoding", 0xD43E0000, NotABreakpoint, 0},
		{"brk #0x7ff", 0xD420FFE0, UnknownBreakpoint, 0x7ff},
		{"nop", 0xD503201F, NotABreakpoint, 0},
		{"ret", 0xD65F03C0, NotABreakpoint, 0},
		{"hlt #0", 0xD4400000, NotABreakpoint, 0},
		{"zero", 0, NotABreakpoint, 0},
		{"all ones", 0xFFFFFFFF, NotABreakpoint, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.word)
			if got.Kind != tt.wantKind {
				t.Errorf("Classify(0x%08x).Kind = %s, want %s", tt.word, got.Kind, tt.wantKind)
			}
			if got.Kind != NotABreakpoint && got.Immediate != tt.wantImm {
				t.Errorf("Classify(0x%08x).Immediate = 0x%x, want 0x%x", tt.word, got.Immediate, tt.wantImm)
			}
		})
	}
}

func TestClassify_Totality(t *testing.T) {
	// Every word in the BRK prefix is a breakpoint of some kind, and the
	// immediate always matches bits 5..20.
	for low := uint32(0); low <= 0xFFFF; low++ {
		word := brkOpcode | low
		got := Classify(word)
		if got.Kind == NotABreakpoint {
			t.Fatalf("Classify(0x%08x) = NotABreakpoint", word)
		}
		if want := uint16((word >> 5) & 0xFFFF); got.Immediate != want {
			t.Fatalf("Classify(0x%08x).Immediate = 0x%x, want 0x%x", word, got.Immediate, want)
		}
	}

	// A sample of other prefixes never is.
	for hi := uint32(0); hi <= 0xFFFF; hi += 0x0101 {
		if hi == brkMask {
			continue
		}
		word := hi<<16 | 0x0D20
		if got := Classify(word); got.Kind != NotABreakpoint {
			t.Fatalf("Classify(0x%08x) = %s, want NotABreakpoint", word, got)
		}
	}
}

func TestEncodeBRK(t *testing.T) {
	if got := EncodeBRK(ImmediateJitMap); got != 0xD4200D20 {
		t.Errorf("EncodeBRK(0x69) = 0x%08x, want 0xD4200D20", got)
	}

	for imm := uint16(0); imm < 0x800; imm++ {
		got := Classify(EncodeBRK(imm))
		if got.Immediate != imm || !got.IsBreakpoint() {
			t.Fatalf("Classify(EncodeBRK(0x%x)) = %s", imm, got)
		}
	}
}

func TestKindString(t *testing.T) {
	kinds := map[Kind]string{
		NotABreakpoint:    "not-a-breakpoint",
		DebugBreakpoint:   "debug-breakpoint",
		JitMapRequest:     "jit-map-request",
		UnknownBreakpoint: "unknown-breakpoint",
		Kind(42):          "kind(42)",
	}
	for k, want := range kinds {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(k), got, want)
		}
	}
}

func TestDisassemble(t *testing.T) {
	tests := []struct {
		word uint32
		want string
	}{
		{0xD4200D20, "BRK"},
		{0xD503201F, "NOP"},
		{0xD65F03C0, "RET"},
	}

	for _, tt := range tests {
		got := Disassemble(tt.word)
		if got == "" {
			t.Errorf("Disassemble(0x%08x) returned empty text", tt.word)
		}
		if !strings.HasPrefix(got, tt.want) {
			t.Errorf("Disassemble(0x%08x) = %q, want prefix %q", tt.word, got, tt.want)
		}
	}
}
