// Package logging provides structured logging for jitstub.
//
// This package wraps a global zap logger with convenience functions, plus a
// few domain helpers for debug-stub traffic and JIT session events.
//
// # Log Levels
//
//   - Debug: Wire traffic (every RSP packet), classification details
//   - Info: Session events (attach, mapped regions, monitor clients)
//   - Warn: Rejected commands, error replies from the stub
//   - Error: Transport failures
//
// # Configuration
//
// Logging is silent unless JITSTUB_LOG_LEVEL is set or a level is passed
// explicitly (the CLI's --log-level flag):
//
//	if err := logging.InitializeFromEnv(); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// Components take a *zap.Logger in their constructors; pass
// logging.Named("rsp") and similar so output is tagged by component.
//
// # Specialized Logging
//
//	logging.LogPacket("send", "m1000,4")
//	logging.LogSession("region_mapped", zap.Uint64("address", 0x2000))
//	logging.LogConnection(remoteAddr, "websocket_upgraded")
//
// Logs go to stderr so they never mix with command output on stdout.
package logging
