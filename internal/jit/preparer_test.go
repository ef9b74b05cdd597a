package jit

import (
	"strings"
	"testing"

	"github.com/stikjit/jitstub/internal/rsp"
)

// memoryStub answers single-byte reads and writes, optionally failing
// reads at one address.
type memoryStub struct {
	sent    []string
	badRead string
	noWrite bool
}

func (m *memoryStub) Send(cmd string) (string, error) {
	m.sent = append(m.sent, cmd)
	switch {
	case strings.HasPrefix(cmd, "m"):
		if m.badRead != "" && strings.HasPrefix(cmd, m.badRead) {
			return "E08", nil
		}
		return "00", nil
	case strings.HasPrefix(cmd, "M"):
		if m.noWrite {
			return "", nil
		}
		return "OK", nil
	}
	return "", nil
}

func (m *memoryStub) reads() []string {
	var out []string
	for _, c := range m.sent {
		if strings.HasPrefix(c, "m") {
			out = append(out, c)
		}
	}
	return out
}

func TestPageTouchPreparer(t *testing.T) {
	tests := []struct {
		name      string
		page      uint64
		address   uint64
		size      uint64
		wantReads []string
	}{
		{
			name:      "aligned two pages",
			page:      0x4000,
			address:   0x4000,
			size:      0x8000,
			wantReads: []string{"m4000,1", "m8000,1"},
		},
		{
			name:      "unaligned start spills into next page",
			page:      0x4000,
			address:   0x4100,
			size:      0x4000,
			wantReads: []string{"m4000,1", "m8000,1"},
		},
		{
			name:      "small region",
			page:      0x4000,
			address:   0x10000,
			size:      0x10,
			wantReads: []string{"m10000,1"},
		},
		{
			name:      "zero page size uses default",
			page:      0,
			address:   0,
			size:      0x4001,
			wantReads: []string{"m0,1", "m4000,1"},
		},
		{
			name:      "region ending at top of address space",
			page:      0x4000,
			address:   0xffffffffffffc000,
			size:      0x8000,
			wantReads: []string{"mffffffffffffc000,1"},
		},
		{
			name:      "empty region",
			page:      0x4000,
			address:   0x4000,
			size:      0,
			wantReads: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &memoryStub{}
			status, err := PageTouchPreparer{PageSize: tt.page}.Prepare(stub, tt.address, tt.size)
			if err != nil {
				t.Fatalf("Prepare() error: %v", err)
			}
			if status != "OK" {
				t.Errorf("status = %q, want OK", status)
			}
			if strings.Join(stub.reads(), " ") != strings.Join(tt.wantReads, " ") {
				t.Errorf("reads = %v, want %v", stub.reads(), tt.wantReads)
			}
		})
	}
}

func TestPageTouchPreparer_WritesBackWhatItRead(t *testing.T) {
	ch := rsp.ChannelFunc(func(cmd string) (string, error) {
		if strings.HasPrefix(cmd, "m") {
			return "d4", nil
		}
		if cmd != "M4000,1:d4" {
			t.Errorf("unexpected write %q", cmd)
		}
		return "OK", nil
	})
	if status, err := (PageTouchPreparer{}).Prepare(ch, 0x4000, 1); err != nil || status != "OK" {
		t.Errorf("Prepare() = %q, %v", status, err)
	}
}

func TestPageTouchPreparer_ErrorStatus(t *testing.T) {
	stub := &memoryStub{badRead: "m8000"}
	status, err := PageTouchPreparer{PageSize: 0x4000}.Prepare(stub, 0x4000, 0xc000)
	if err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	if status != "E08" {
		t.Errorf("status = %q, want E08", status)
	}
	if got := stub.reads(); len(got) != 2 {
		t.Errorf("preparation should stop at the failing page, reads = %v", got)
	}

	stub = &memoryStub{noWrite: true}
	status, err = PageTouchPreparer{}.Prepare(stub, 0x4000, 1)
	if err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	if !strings.HasPrefix(status, "E") {
		t.Errorf("status = %q, want an E status for unsupported writes", status)
	}
}

func TestPageTouchPreparer_TransportError(t *testing.T) {
	ch := rsp.ChannelFunc(func(string) (string, error) { return "", errLinkDown })
	if _, err := (PageTouchPreparer{}).Prepare(ch, 0, 1); err != errLinkDown {
		t.Errorf("Prepare() error = %v, want errLinkDown", err)
	}
}
