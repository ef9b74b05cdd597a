package rsp

import (
	"fmt"

	"github.com/stikjit/jitstub/internal/urls"
)

// HexError reports a hex field that is structurally invalid (odd length or
// non-hex digits). The parser treats it as a skip of that single field.
type HexError struct {
	// Field names the value being decoded (e.g. "register 20", "memory")
	Field string
	// Input is the offending text
	Input string
	// Underlying error if any
	Err error
}

func (e *HexError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed hex in %s %q: %v", e.fieldName(), e.Input, e.Err)
	}
	return fmt.Sprintf("malformed hex in %s %q", e.fieldName(), e.Input)
}

func (e *HexError) Unwrap() error {
	return e.Err
}

func (e *HexError) fieldName() string {
	if e.Field == "" {
		return "value"
	}
	return e.Field
}

// ConnError represents a failure on the underlying stub connection: dial,
// read or write. The connection is unusable afterwards.
type ConnError struct {
	// Addr is the debug stub address
	Addr string
	// Op is the operation that failed ("dial", "read", "write")
	Op string
	// Underlying error
	Err error
}

func (e *ConnError) Error() string {
	if e.Op == "dial" {
		return fmt.Sprintf("failed to connect to debug stub at %s: %v\n"+
			"Hint: Ensure the debugserver proxy is listening and reachable.\n"+
			"Protocol reference: %s",
			e.Addr, e.Err, urls.RemoteProtocol)
	}
	return fmt.Sprintf("debug stub %s failed on %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnError) Unwrap() error {
	return e.Err
}

// ChecksumError is returned when the stub keeps sending packets with a bad
// checksum (or keeps NAKing ours) past the retransmit limit.
type ChecksumError struct {
	// Attempts is how many transmissions were made
	Attempts int
	// Packet is the last packet seen, for context
	Packet string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("too many transmit attempts (%d), last packet %q", e.Attempts, e.Packet)
}

// ProtocolError is an error reply (Exx) or an empty "unsupported" reply
// from the debug stub.
type ProtocolError struct {
	// Command is the command that was sent
	Command string
	// Code is the raw reply ("E08", or "" for unsupported)
	Code string
}

func (e *ProtocolError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("debug stub does not support command %q", e.Command)
	}
	return fmt.Sprintf("debug stub replied %s to command %q", e.Code, e.Command)
}

// CheckReply returns a *ProtocolError when reply is an error or an empty
// reply, nil otherwise. Channels hand error replies back as plain strings;
// callers that need a hard failure use this.
func CheckReply(command, reply string) error {
	if reply == "" || IsErrorReply(reply) {
		return &ProtocolError{Command: command, Code: reply}
	}
	return nil
}

// IsErrorReply reports whether reply has the Exx error form.
func IsErrorReply(reply string) bool {
	if len(reply) != 3 || reply[0] != 'E' {
		return false
	}
	return isHexDigit(reply[1]) && isHexDigit(reply[2])
}
