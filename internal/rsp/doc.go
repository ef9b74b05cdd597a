// Package rsp implements the client side of the GDB remote serial protocol
// as spoken by Apple's debugserver.
//
// # Wire Format
//
// Every command and reply travels as a framed packet:
//
//	$<payload>#<two hex digit checksum>
//
// Until QStartNoAckMode is negotiated each packet is acknowledged with '+'
// (or '-' to request a retransmit). Replies may use '}' escaping and '*'
// run-length encoding; Conn undoes both before handing the payload back.
//
// # Values
//
// Registers are transmitted least significant byte first and are decoded
// with DecodeLittleEndianHex. Memory reads come back in address order, so a
// 4-byte instruction read is decoded with DecodeBigEndianWord. The two
// helpers are deliberately not interchangeable.
//
// # Stop Replies
//
// ParseStopReply turns a stop telegram into a StopReply:
//
//	T05thread:1a03;00:0020000000000000;20:0010000000000000;metype:6;
//
// Parsing never fails. Missing or malformed fields are absent, and callers
// decide whether the reply is usable.
//
// # Channels
//
// Channel is the single-method abstraction the JIT loop runs against. Conn
// implements it over TCP; tests use ChannelFunc with a scripted reply table.
package rsp
