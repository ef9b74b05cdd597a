// Package server implements the read-only session monitor.
//
// The monitor exposes the state of a running JIT negotiation loop to other
// processes. It never sends commands to the stub.
//
// # Routes
//
//	GET /snapshot   current jit.Snapshot as JSON
//	GET /version    build information
//	GET /healthz    {"status":"ok"}
//	GET /ws         websocket stream of Message values
//
// A websocket client receives a snapshot as soon as it connects and then
// again whenever the session's UpdatedAt changes, checked every
// Config.PushInterval. The server pings idle clients and closes them with
// CloseGoingAway on Shutdown.
//
// # Usage Example
//
//	mon, err := server.New(server.Config{Listen: "127.0.0.1:8765"}, session)
//	if err != nil {
//	    return err
//	}
//	if err := mon.Start(); err != nil {
//	    return err
//	}
//	defer mon.Shutdown(context.Background())
//
// FetchSnapshot and Watch are the matching clients used by "jitstub status"
// and "jitstub watch".
package server
