package rsp

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	metypePattern = regexp.MustCompile(`metype:(\d+)`)                        // Matches: metype:6
	threadPattern = regexp.MustCompile(`T[0-9a-fA-F]+thread:([0-9a-fA-F]+);`) // Matches: T05thread:1a2b;
	regKeyPattern = regexp.MustCompile(`^[0-9a-fA-F]{1,2}$`)                  // Matches: 00, 1, 20
)

// registerValueLen is the width of one expedited register value (8 bytes).
const registerValueLen = 16

// RegisterBank maps stub register numbers to decoded values. It is
// immutable once built.
type RegisterBank struct {
	regs map[uint8]uint64
}

// NewRegisterBank copies values into a new bank.
func NewRegisterBank(values map[uint8]uint64) RegisterBank {
	regs := make(map[uint8]uint64, len(values))
	for k, v := range values {
		regs[k] = v
	}
	return RegisterBank{regs: regs}
}

// Get returns the value of register idx.
func (b RegisterBank) Get(idx uint8) (uint64, bool) {
	v, ok := b.regs[idx]
	return v, ok
}

// PC returns the program counter (register 0x20).
func (b RegisterBank) PC() (uint64, bool) {
	return b.Get(RegPC)
}

// X returns general purpose register xN.
func (b RegisterBank) X(n uint8) (uint64, bool) {
	if n > 30 {
		return 0, false
	}
	return b.Get(n)
}

// Len returns the number of registers present.
func (b RegisterBank) Len() int {
	return len(b.regs)
}

// Indices returns the register numbers present, ascending.
func (b RegisterBank) Indices() []uint8 {
	out := make([]uint8, 0, len(b.regs))
	for k := range b.regs {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// StopReply is the structured form of one stop telegram. Every field is
// optional; the stub omits them situationally.
type StopReply struct {
	// Exception is the Mach exception type from "metype:"; valid only when
	// HasException is set.
	Exception    uint
	HasException bool

	// ThreadID is the hex thread id from the leading "T<sig>thread:" marker,
	// empty when absent.
	ThreadID string

	Registers RegisterBank

	// Raw is the telegram as received
	Raw string
}

// HasThread reports whether the reply named a thread.
func (r StopReply) HasThread() bool {
	return r.ThreadID != ""
}

// Usable reports whether the reply carries enough state to act on a trap:
// a thread id, the program counter and x0.
func (r StopReply) Usable() bool {
	if !r.HasThread() {
		return false
	}
	if _, ok := r.Registers.PC(); !ok {
		return false
	}
	_, ok := r.Registers.X(0)
	return ok
}

// String returns a compact debug representation.
func (r StopReply) String() string {
	exc := "-"
	if r.HasException {
		exc = strconv.FormatUint(uint64(r.Exception), 10)
	}
	tid := "-"
	if r.HasThread() {
		tid = r.ThreadID
	}
	return fmt.Sprintf("StopReply{metype=%s, thread=%s, registers=%d}", exc, tid, r.Registers.Len())
}

// ParseStopReply parses a stop telegram such as
//
//	T05thread:1a03;00:0020000000000000;01:0010000000000000;20:0010000000000000;metype:6;
//
// It never fails. Fields that are missing, or whose values are malformed,
// are simply absent from the result.
func ParseStopReply(raw string) StopReply {
	reply := StopReply{Raw: raw}

	if m := metypePattern.FindStringSubmatch(raw); m != nil {
		if v, err := strconv.ParseUint(m[1], 10, 32); err == nil {
			reply.Exception = uint(v)
			reply.HasException = true
		}
	}

	if m := threadPattern.FindStringSubmatch(raw); m != nil {
		reply.ThreadID = strings.ToLower(m[1])
	}

	reply.Registers = NewRegisterBank(parseRegisters(raw))
	return reply
}

// parseRegisters collects "<idx>:<16 hex>;" entries. Only ';'-terminated
// segments count, so a truncated trailing entry is ignored.
func parseRegisters(raw string) map[uint8]uint64 {
	regs := make(map[uint8]uint64)

	segments := strings.Split(raw, ";")
	for _, seg := range segments[:len(segments)-1] {
		key, value, ok := strings.Cut(seg, ":")
		if !ok || !regKeyPattern.MatchString(key) {
			continue
		}
		if len(value) != registerValueLen || !isHexString(value) {
			continue
		}

		idx, err := strconv.ParseUint(key, 16, 8)
		if err != nil {
			continue
		}
		v, err := DecodeLittleEndianHexChecked(value)
		if err != nil {
			continue
		}
		regs[uint8(idx)] = v
	}

	return regs
}
