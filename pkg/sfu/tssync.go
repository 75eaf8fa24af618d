package sfu

import (
	orderedmap "github.com/elliotchance/orderedmap/v2"
	"github.com/livekit/protocol/logger"
)

// Thresholds from original_source/worker/src/RTC/SimulcastConsumer.cpp:
// tsExtraOffsets is cleared once more than 200 extra offsets have been
// applied since the last clear. The counter only advances when an extra
// offset is applied, so the 200 bound always clears the map first and the
// 500 bound never triggers on its own. SPEC_FULL.md §9 keeps these as named constants
// per an explicit open-question note rather than re-deriving them.
const (
	tsExtraOffsetClearAfterApplied = 200
	tsExtraOffsetClearAfterTotal   = 500
)

// TSSync computes the per-switch RTP-timestamp offset described in
// SPEC_FULL.md §4.B, anchored on NTP-bearing RTCP sender reports, with a
// regression-guard fallback for the case where the analytic offset would
// otherwise produce a non-monotonic timestamp.
type TSSync struct {
	logger logger.Logger

	tsOffset                 uint32
	tsExtraOffsets           *orderedmap.OrderedMap[uint32, uint32]
	tsExtraOffsetPacketCount uint32
}

func NewTSSync(log logger.Logger) *TSSync {
	return &TSSync{
		logger:         log,
		tsExtraOffsets: orderedmap.NewOrderedMap[uint32, uint32](),
	}
}

// senderReport is the minimal (ntpMs, rtpTs) pair this module needs out of
// a full RTCP sender report; both sides of a switch must supply one.
type senderReport struct {
	ntpMs uint64
	ts    uint32
}

// OnSwitchKeyframe runs the switch protocol of SPEC_FULL.md §4.B for the
// keyframe packet (timestamp tIn) that completes a spatial-layer switch.
// isReference is true when the new current layer is the tsReferenceSpatialLayer
// itself (tsOffset becomes 0); otherwise refSR/curSR must both be valid.
func (t *TSSync) OnSwitchKeyframe(tIn uint32, isReference bool, refSR, curSR senderReport, clockRate uint32, maxPacketTs uint32) {
	if isReference {
		t.tsOffset = 0
	} else {
		diffMs := int64(curSR.ntpMs) - int64(refSR.ntpMs)
		diffTs := int32(diffMs * int64(clockRate) / 1000)
		t.tsOffset = uint32(int64(curSR.ts) - int64(diffTs) - int64(refSR.ts))
	}

	t.tsExtraOffsets = orderedmap.NewOrderedMap[uint32, uint32]()
	t.tsExtraOffsetPacketCount = 0

	if int32(tIn-t.tsOffset-maxPacketTs) <= 0 {
		extra := maxPacketTs - tIn + t.tsOffset + 1
		t.tsExtraOffsets.Set(tIn, extra)
	}
}

// Translate computes the outbound timestamp for an inbound timestamp tIn,
// applying and bookkeeping any extra regression-guard offset as described
// in SPEC_FULL.md §4.B.
func (t *TSSync) Translate(tIn uint32, maxPacketTs uint32) uint32 {
	tOut := tIn - t.tsOffset

	extra, hit := t.tsExtraOffsets.Get(tIn)
	appliedExtra := false
	if hit {
		tOut += extra
		appliedExtra = true
	} else if int32(tOut-maxPacketTs) < 0 {
		extra = maxPacketTs - tOut + 1
		t.tsExtraOffsets.Set(tIn, extra)
		tOut += extra
		appliedExtra = true
	}

	if appliedExtra {
		t.tsExtraOffsetPacketCount++
	}
	if (appliedExtra && t.tsExtraOffsetPacketCount > tsExtraOffsetClearAfterApplied) ||
		t.tsExtraOffsetPacketCount > tsExtraOffsetClearAfterTotal {
		t.tsExtraOffsets = orderedmap.NewOrderedMap[uint32, uint32]()
		t.tsExtraOffsetPacketCount = 0
	}

	return tOut
}

// Offset returns the current tsOffset, exposed for dump/stats and tests.
func (t *TSSync) Offset() uint32 {
	return t.tsOffset
}
