package trap

import (
	"strings"
	"testing"
)

func TestLoadCatalog(t *testing.T) {
	c, err := LoadCatalog()
	if err != nil {
		t.Fatalf("LoadCatalog() error: %v", err)
	}
	if c.Count() == 0 {
		t.Fatal("catalog is empty")
	}

	again, _ := LoadCatalog()
	if again != c {
		t.Error("LoadCatalog should return the same catalog on every call")
	}
}

// The catalog is descriptive only, but it must agree with Classify.
func TestCatalog_AgreesWithClassify(t *testing.T) {
	c, err := LoadCatalog()
	if err != nil {
		t.Fatalf("LoadCatalog() error: %v", err)
	}

	for _, e := range c.Entries {
		got := Classify(EncodeBRK(e.Immediate))
		if got.Kind.String() != e.Kind {
			t.Errorf("catalog says brk #0x%x is %s, Classify says %s", e.Immediate, e.Kind, got.Kind)
		}
		if e.Name == "" || e.Description == "" {
			t.Errorf("brk #0x%x is missing a name or description", e.Immediate)
		}
	}

	for _, imm := range []uint16{ImmediateJitMap, ImmediateDebug, ImmediateDebugAlt} {
		if _, ok := c.Get(imm); !ok {
			t.Errorf("catalog has no entry for brk #0x%x", imm)
		}
	}
}

func TestParseCatalog_Duplicate(t *testing.T) {
	data := []byte(`
breakpoints:
  - immediate: 0x69
    kind: jit-map-request
    name: a
  - immediate: 0x69
    kind: jit-map-request
    name: b
`)
	if _, err := parseCatalog(data); err == nil {
		t.Error("expected error for duplicate immediate")
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		word uint32
		want string
	}{
		{0xD4200D20, "JIT map request"},
		{0xD4200E00, "Debugger breakpoint"},
		{EncodeBRK(0x1), "unrecognised immediate"},
		{0xD503201F, "not a breakpoint"},
	}

	for _, tt := range tests {
		got := Describe(Classify(tt.word))
		if !strings.Contains(got, tt.want) {
			t.Errorf("Describe(0x%08x) = %q, want it to contain %q", tt.word, got, tt.want)
		}
	}
}
