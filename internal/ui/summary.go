package ui

import (
	"fmt"
	"time"

	"github.com/stikjit/jitstub/internal/jit"
)

// SessionSummary builds the result box printed when a run ends. A nil err
// is a clean detach.
func SessionSummary(snap jit.Snapshot, err error) *Result {
	var r *Result
	switch {
	case err == nil:
		r = NewSuccessResult("Session ended")
	case snap.Counters.ValidJitRequests > 0:
		r = NewWarningResult("Session ended: " + err.Error())
	default:
		r = NewFailureResult("Session failed", err, sessionTips)
	}

	r.AddDetail("PID", fmt.Sprintf("%d", snap.PID))
	r.AddDetail("Continues", fmt.Sprintf("%d", snap.Counters.TotalContinues))
	r.AddDetail("JIT requests", fmt.Sprintf("%d", snap.Counters.ValidJitRequests))
	r.AddDetail("Total mapped", jit.FormatSize(snap.Counters.TotalBytesMapped))
	if snap.Counters.SkippedStops > 0 {
		r.AddDetail("Skipped stops", fmt.Sprintf("%d", snap.Counters.SkippedStops))
	}
	if snap.Counters.SteppedOver > 0 {
		r.AddDetail("Stepped over", fmt.Sprintf("%d", snap.Counters.SteppedOver))
	}
	if !snap.StartedAt.IsZero() && !snap.UpdatedAt.IsZero() {
		r.AddDetail("Duration", snap.UpdatedAt.Sub(snap.StartedAt).Round(time.Millisecond).String())
	}
	return r
}

var sessionTips = []string{
	"Check that debugserver is listening on the stub address",
	"Confirm the pid is running and not already traced",
	"Run with JITSTUB_LOG_LEVEL=debug to see every packet",
}
