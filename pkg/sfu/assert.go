package sfu

import "github.com/livekit/protocol/logger"

// assertUnreachable marks a branch that SPEC_FULL.md §7 classifies as a
// protocol fault: a state that cannot occur if the invariants in §3 hold.
// It logs with the injected logger and panics, matching the reference
// source's MS_ABORT for the same category of failure.
func assertUnreachable(log logger.Logger, msg string, keysAndValues ...interface{}) {
	log.Errorw("unreachable state: "+msg, nil, keysAndValues...)
	panic("sfu: " + msg)
}
