// Package jit runs the JIT negotiation loop against a debug stub.
//
// A JIT runtime running under a debugger requests executable memory by
// executing BRK #0x69 with the region address in x0 and its size in x1.
// Loop continues the target, inspects every stop, prepares requested regions
// through the Host and steps the PC past the trap:
//
//	host := jit.NewStubHost(conn, pid, jit.WithHostLogger(logger))
//	loop := jit.New(host, jit.WithLogger(logger))
//	err := loop.Run(ctx)
//
// Debugger breakpoints (#0x70, #0x71) and unknown BRK immediates are stepped
// over without mapping. Other exceptions, partial replies and failed fetches
// are logged and skipped. Only a transport failure ends Run with an error,
// always a *TransportError.
//
// Session keeps the counters and region log. It may be read with Snapshot
// from other goroutines while the loop runs.
package jit
