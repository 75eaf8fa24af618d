package sfu

import (
	"testing"

	"github.com/livekit/protocol/logger"
	"github.com/stretchr/testify/require"
)

func newSeqRewriter() *SeqRewriter {
	return NewSeqRewriter(logger.GetLogger())
}

func TestSeqRewriterFirstPacketIsIdentity(t *testing.T) {
	r := newSeqRewriter()
	out := r.Input(1000)
	require.Equal(t, uint16(1000), out)
	require.Equal(t, uint16(1000), r.LastOutput())
}

func TestSeqRewriterContiguousOutput(t *testing.T) {
	r := newSeqRewriter()
	require.Equal(t, uint16(1000), r.Input(1000))
	require.Equal(t, uint16(1001), r.Input(1001))
	require.Equal(t, uint16(1002), r.Input(1002))
}

func TestSeqRewriterDropClosesGap(t *testing.T) {
	r := newSeqRewriter()
	require.Equal(t, uint16(1000), r.Input(1000))
	r.Drop(1001)
	require.Equal(t, uint16(1001), r.Input(1002))
}

func TestSeqRewriterDropBeforeAnyInputIsNoOp(t *testing.T) {
	r := newSeqRewriter()
	r.Drop(500) // nothing assigned yet; must not panic or perturb state
	require.Equal(t, uint16(600), r.Input(600))
}

func TestSeqRewriterSyncContinuesMonotonicSeries(t *testing.T) {
	r := newSeqRewriter()
	require.Equal(t, uint16(1000), r.Input(1000))
	require.Equal(t, uint16(1001), r.Input(1001))

	// A spatial-layer switch arrives with a completely unrelated sequence
	// space; Sync(lastOutput) must make the next Input continue at
	// lastOutput+1 regardless of the new source's own numbering.
	r.Sync(r.LastOutput())
	require.Equal(t, uint16(1002), r.Input(55000))
	require.Equal(t, uint16(1003), r.Input(55001))
}

func TestSeqRewriterDropImmediatelyAfterSync(t *testing.T) {
	r := newSeqRewriter()
	require.Equal(t, uint16(1000), r.Input(1000))
	r.Sync(r.LastOutput())
	r.Drop(55000) // arrives but is not forwarded before the next Input
	require.Equal(t, uint16(1001), r.Input(55001))
}

func TestSeqRewriterTranslateReturnsPriorMapping(t *testing.T) {
	r := newSeqRewriter()
	out := r.Input(2000)
	got, ok := r.Translate(2000)
	require.True(t, ok)
	require.Equal(t, out, got)

	_, ok = r.Translate(9999)
	require.False(t, ok)
}

func TestSeqRewriterWrapsAroundUint16(t *testing.T) {
	r := newSeqRewriter()
	require.Equal(t, uint16(65534), r.Input(65534))
	require.Equal(t, uint16(65535), r.Input(65535))
	require.Equal(t, uint16(0), r.Input(0))
	require.Equal(t, uint16(1), r.Input(1))
}
