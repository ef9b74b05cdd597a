package rsp

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressWindow is the number of leading bytes DecodeLittleEndianHex reads
// from a register value. The stub reports 64-bit registers, but only the low
// 40 bits carry address information on the targets this tool drives.
const AddressWindow = 5

// DecodeLittleEndianHex decodes a register value sent in transmission order
// (least significant byte first). At most AddressWindow bytes are consumed.
// Input is expected to be well formed; malformed input decodes to 0. Use
// DecodeLittleEndianHexChecked when the input is untrusted.
func DecodeLittleEndianHex(s string) uint64 {
	v, _ := DecodeLittleEndianHexChecked(s)
	return v
}

// DecodeLittleEndianHexChecked is DecodeLittleEndianHex with validation.
// An odd-length string or a non-hex digit inside the address window
// returns a *HexError.
func DecodeLittleEndianHexChecked(s string) (uint64, error) {
	if len(s)%2 != 0 {
		return 0, &HexError{Input: s, Err: fmt.Errorf("odd length %d", len(s))}
	}

	n := min(len(s)/2, AddressWindow)
	b, err := hex.DecodeString(s[:n*2])
	if err != nil {
		return 0, &HexError{Input: s, Err: err}
	}

	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}

// EncodeLittleEndianHex renders v as the 8-byte little-endian hex string
// (16 lowercase characters) the stub expects in a register write.
func EncodeLittleEndianHex(v uint64) string {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return hex.EncodeToString(buf[:])
}

// DecodeBigEndianWord turns the reply to a 4-byte memory read into the
// instruction word stored there. The stub sends memory in address order, so
// the bytes are reversed relative to the numeric value; this is the
// opposite byte handling from register values and is intentional.
func DecodeBigEndianWord(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if len(s) != 8 {
		return 0, &HexError{Field: "instruction", Input: s, Err: fmt.Errorf("want 8 hex digits, got %d", len(s))}
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return 0, &HexError{Field: "instruction", Input: s, Err: err}
	}
	return binary.LittleEndian.Uint32(b), nil
}

// EncodeBigEndianWord is the inverse of DecodeBigEndianWord: it renders w the
// way a stub returns it for an "m<addr>,4" read.
func EncodeBigEndianWord(w uint32) string {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], w)
	return hex.EncodeToString(buf[:])
}

// DecodeMemory decodes a memory read reply into raw bytes.
func DecodeMemory(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, &HexError{Field: "memory", Input: s, Err: err}
	}
	return b, nil
}

func isHexDigit(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func isHexString(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isHexDigit(s[i]) {
			return false
		}
	}
	return true
}
