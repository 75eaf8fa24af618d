package sfu

import (
	"testing"

	"github.com/livekit/protocol/logger"
	"github.com/stretchr/testify/require"
)

func newTSSync() *TSSync {
	return NewTSSync(logger.GetLogger())
}

func TestTSSyncReferenceSwitchIsZeroOffset(t *testing.T) {
	s := newTSSync()
	s.OnSwitchKeyframe(90000, true, senderReport{}, senderReport{}, 90000, 0)
	require.Equal(t, uint32(0), s.Offset())
	require.Equal(t, uint32(90000), s.Translate(90000, 0))
}

func TestTSSyncNonReferenceSwitchAnchorsOnSenderReports(t *testing.T) {
	s := newTSSync()
	// Reference layer's last sender report: NTP 1000ms, RTP ts 90000.
	// Candidate layer's last sender report: NTP 1000ms (same instant), RTP ts 45000.
	// At 90kHz, the two clocks are expected to differ by exactly 45000 after
	// alignment, so a candidate keyframe with ts 46000 should map to 91000.
	ref := senderReport{ntpMs: 1000, ts: 90000}
	cur := senderReport{ntpMs: 1000, ts: 45000}
	s.OnSwitchKeyframe(46000, false, ref, cur, 90000, 0)
	require.Equal(t, uint32(91000), s.Translate(46000, 0))
}

func TestTSSyncRegressionGuardAppliesExtraOffset(t *testing.T) {
	s := newTSSync()
	s.OnSwitchKeyframe(1000, true, senderReport{}, senderReport{}, 90000, 5000)
	// maxPacketTs (5000) is above the switch keyframe's translated ts (1000),
	// so the regression guard must push this and subsequent packets above it.
	out := s.Translate(1000, 5000)
	require.Greater(t, out, uint32(5000))
}

func TestTSSyncRegressionGuardIsStableForSameInputTimestamp(t *testing.T) {
	s := newTSSync()
	s.OnSwitchKeyframe(1000, true, senderReport{}, senderReport{}, 90000, 5000)
	first := s.Translate(1000, 5000)
	second := s.Translate(1000, 5000)
	require.Equal(t, first, second)
}

func TestTSSyncClearsExtraOffsetsAfterAppliedThreshold(t *testing.T) {
	s := newTSSync()
	s.OnSwitchKeyframe(1000, true, senderReport{}, senderReport{}, 90000, 5000)
	// Every translation below applies an extra offset. The 201st crosses the
	// clear threshold and empties the map; the 4 after it add fresh entries.
	var last uint32
	for i := uint32(0); i < tsExtraOffsetClearAfterApplied+5; i++ {
		last = s.Translate(1000+i, 5000)
	}
	require.Greater(t, last, uint32(0))
	require.Equal(t, 4, s.tsExtraOffsets.Len())
}
