package rsp

import (
	"encoding/hex"
	"fmt"
)

// RegPC is the stub's register number for the ARM64 program counter.
const RegPC = 0x20

// Attach builds "vAttach;<pid-hex>".
func Attach(pid int) string {
	return fmt.Sprintf("vAttach;%x", pid)
}

// Continue builds "c".
func Continue() string {
	return "c"
}

// ReadMemory builds "m<addr-hex>,<len-hex>".
func ReadMemory(addr uint64, length int) string {
	return fmt.Sprintf("m%x,%x", addr, length)
}

// WriteMemory builds "M<addr-hex>,<len-hex>:<data-hex>".
func WriteMemory(addr uint64, data []byte) string {
	return fmt.Sprintf("M%x,%x:%s", addr, len(data), hex.EncodeToString(data))
}

// WriteRegister builds "P<reg-hex>=<value-LE-hex>;thread:<tid>;". The write
// applies to that thread only; the next continue resumes from it.
func WriteRegister(reg uint8, value uint64, threadID string) string {
	return fmt.Sprintf("P%x=%s;thread:%s;", reg, EncodeLittleEndianHex(value), threadID)
}

// WritePC builds "P20=<pc-LE-hex>;thread:<tid>;".
func WritePC(pc uint64, threadID string) string {
	return WriteRegister(RegPC, pc, threadID)
}

// Detach builds "D".
func Detach() string {
	return "D"
}

// StartNoAckMode builds "QStartNoAckMode".
func StartNoAckMode() string {
	return "QStartNoAckMode"
}
