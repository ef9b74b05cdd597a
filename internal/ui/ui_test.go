package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stikjit/jitstub/internal/jit"
)

func TestHeader_RenderOrdersParams(t *testing.T) {
	h := NewHeader("jit session", "jitstub run --pid 812", map[string]string{
		"Stub": "127.0.0.1:1234",
		"PID":  "812",
	}).SetWidth(80)

	out := h.Render()
	if !strings.Contains(out, "JIT SESSION") {
		t.Errorf("title should be upper-cased:\n%s", out)
	}
	if strings.Index(out, "PID:") > strings.Index(out, "Stub:") {
		t.Errorf("params should be sorted by key:\n%s", out)
	}
	if out != h.String() {
		t.Error("String() should match Render()")
	}
}

func TestResult_Render(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		want   []string
	}{
		{
			name:   "success",
			result: NewSuccessResult("Session ended").AddDetail("JIT requests", "3"),
			want:   []string{"SUCCESS", "Session ended", "JIT requests:", "3"},
		},
		{
			name:   "failure",
			result: NewFailureResult("Session failed", errors.New("connection refused"), []string{"is debugserver up?"}),
			want:   []string{"FAILED", "connection refused", "Troubleshooting:", "is debugserver up?"},
		},
		{
			name:   "warning",
			result: NewWarningResult("Detach failed"),
			want:   []string{"WARNING", "Detach failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.result.SetWidth(80).Render()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("Render() missing %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestResult_DetailOrder(t *testing.T) {
	r := NewSuccessResult("x").AddDetail("Zeta", "1").AddDetail("Alpha", "2").SetWidth(80)
	out := r.Render()
	if strings.Index(out, "Zeta") > strings.Index(out, "Alpha") {
		t.Error("details should keep insertion order")
	}
}

func TestSessionSummary(t *testing.T) {
	snap := jit.Snapshot{
		PID: 812,
		Counters: jit.Counters{
			TotalContinues:   10,
			ValidJitRequests: 2,
			TotalBytesMapped: 0x20000,
			SkippedStops:     1,
		},
		StartedAt: time.Unix(100, 0),
		UpdatedAt: time.Unix(102, 0),
	}

	tests := []struct {
		name     string
		snap     jit.Snapshot
		err      error
		wantType ResultType
	}{
		{"clean", snap, nil, ResultSuccess},
		{"error after mapping", snap, errors.New("eof"), ResultWarning},
		{"error before mapping", jit.Snapshot{PID: 812}, errors.New("refused"), ResultFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := SessionSummary(tt.snap, tt.err)
			if r.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", r.Type, tt.wantType)
			}
		})
	}

	r := SessionSummary(snap, nil)
	got := map[string]string{}
	for _, d := range r.Details {
		got[d.Key] = d.Value
	}
	if got["Total mapped"] != "128.00 KB" {
		t.Errorf("Total mapped = %q", got["Total mapped"])
	}
	if got["Skipped stops"] != "1" {
		t.Errorf("Skipped stops = %q", got["Skipped stops"])
	}
	if _, ok := got["Stepped over"]; ok {
		t.Error("zero counters should be omitted")
	}
	if got["Duration"] != "2s" {
		t.Errorf("Duration = %q", got["Duration"])
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"overwrite\n", true},
		{"  overwrite  \n", true},
		{"yes\n", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			got := ConfirmOverwrite(strings.NewReader(tt.input), &out, "/tmp/config.yaml")
			if got != tt.want {
				t.Errorf("ConfirmOverwrite(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if !strings.Contains(out.String(), "/tmp/config.yaml") {
				t.Error("prompt should name the file")
			}
		})
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf).SetWidth(70)
	p.Printf("%s-%d\n", "a", 1)
	p.PrintError("boom", errors.New("bad"), nil)

	out := buf.String()
	if !strings.HasPrefix(out, "a-1\n") || !strings.Contains(out, "bad") {
		t.Errorf("output = %q", out)
	}
	if p.Width() != 70 {
		t.Errorf("Width() = %d", p.Width())
	}
}

func TestRegionRows_NewestFirst(t *testing.T) {
	rows := RegionRows([]jit.Region{
		{Address: 0x1000, Size: 0x4000, Sequence: 1, Status: "OK"},
		{Address: 0x9000, Size: 0x10000, Sequence: 2, Status: "OK"},
	})
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0][0] != "2" || rows[0][1] != "0x9000" || rows[0][2] != "64.00 KB" {
		t.Errorf("first row = %v", rows[0])
	}
}

func TestWatchModel_Update(t *testing.T) {
	m := NewWatchModel("127.0.0.1:8765")
	if !strings.Contains(m.View(), "Waiting for the first snapshot") {
		t.Error("view before data should show the waiting line")
	}

	next, _ := m.Update(SnapshotMsg(jit.Snapshot{
		PID:      812,
		State:    jit.StateContinuing,
		Counters: jit.Counters{ValidJitRequests: 1, TotalBytesMapped: 0x4000},
		Regions:  []jit.Region{{Address: 0xabc000, Size: 0x4000, Sequence: 1, Status: "OK"}},
		LastStop: "T05thread:1;",
	}))
	m = next.(WatchModel)
	if !m.Received {
		t.Fatal("snapshot should be recorded")
	}
	view := m.View()
	for _, want := range []string{"pid 812", "jit requests 1", "0xabc000", "last stop"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}

	next, cmd := m.Update(WatchEndedMsg{Err: errors.New("gone")})
	m = next.(WatchModel)
	if !m.Ended || m.Err == nil || cmd == nil {
		t.Error("stream end should record the error and quit")
	}

	_, cmd = NewWatchModel("x").Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Error("q should quit")
	}
}

func TestCountersLine(t *testing.T) {
	line := CountersLine(jit.Counters{TotalContinues: 7, ValidJitRequests: 2, TotalBytesMapped: 512})
	if !strings.Contains(line, "continues 7") || !strings.Contains(line, "512 bytes") {
		t.Errorf("CountersLine() = %q", line)
	}
}
