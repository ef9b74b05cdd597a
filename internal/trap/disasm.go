package trap

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/arch/arm64/arm64asm"
)

// Disassemble renders word as ARM64 assembly for log lines and CLI output.
// Words that do not decode are shown as ".word 0x...".
func Disassemble(word uint32) string {
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], word)

	inst, err := arm64asm.Decode(raw[:])
	if err != nil {
		return fmt.Sprintf(".word 0x%08x", word)
	}
	return inst.String()
}
