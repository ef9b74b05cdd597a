// Package trap classifies ARM64 instruction words found at a stop PC.
//
// A word is a BRK instruction when its upper 16 bits are 0xD420. The 16-bit
// immediate sits in bits 5 through 20:
//
//	trap.Classify(0xD4200D20) // JitMapRequest, brk #0x69
//	trap.Classify(0xD4200E00) // DebugBreakpoint, brk #0x70
//	trap.Classify(0xD503201F) // NotABreakpoint (nop)
//
// The embedded catalog.yaml carries human-readable descriptions for the known
// immediates. Disassemble renders any word through arm64asm.
package trap
