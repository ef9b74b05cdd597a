package urls

// Reference documentation for the debug-stub protocol and the platform
// behaviour jitstub depends on.

// RemoteProtocol is the GDB remote serial protocol reference: packet
// framing, acknowledgements, and the command set.
const RemoteProtocol = "https://sourceware.org/gdb/onlinedocs/gdb/Remote-Protocol.html"

// StopReplyPackets documents the T/S stop reply format, including the
// expedited register entries the JIT loop decodes.
const StopReplyPackets = "https://sourceware.org/gdb/onlinedocs/gdb/Stop-Reply-Packets.html"

// LLDBProtocolExtensions covers the debugserver extensions to the protocol,
// among them QStartNoAckMode and the metype/medata stop reply keys.
const LLDBProtocolExtensions = "https://github.com/llvm/llvm-project/blob/main/lldb/docs/resources/lldbgdbremote.md"

// BRKInstruction is the ARM A64 reference for BRK #imm16.
const BRKInstruction = "https://developer.arm.com/documentation/ddi0602/latest/Base-Instructions/BRK--Breakpoint-instruction-"
