package codeccontext

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnsupportedCodec(t *testing.T) {
	_, err := New("video/VP9", 2, 3)
	require.ErrorIs(t, err, ErrUnsupportedCodec)
}

func TestNewAcceptsVP8(t *testing.T) {
	c, err := New("video/VP8", 2, 3)
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestNewAcceptsH264(t *testing.T) {
	c, err := New("video/H264", 2, 3)
	require.NoError(t, err)
	require.NotNil(t, c)
}

// buildVP8Descriptor hand-assembles a minimal VP8 payload descriptor with
// the extended-control-bits / TID fields pion/rtp/codecs.VP8Packet.Unmarshal
// parses, per RFC 7741 §4.2.
func buildVP8Descriptor(hasT bool, tid uint8) []byte {
	if !hasT {
		return []byte{0x00, 0x00, 0x00, 0x00} // X=0; Unmarshal still requires a 4-byte minimum
	}
	// byte0: X=1 (0x80); byte1 (extension): T=1 (0x20); byte2: TID in top 2 bits, Y=0, KEYIDX=0
	return []byte{0x80, 0x20, tid << 6, 0x00}
}

func TestVP8ContextFiltersAboveTargetTemporalLayer(t *testing.T) {
	c, err := New("video/VP8", 1, 4)
	require.NoError(t, err)
	c.SetTargetTemporalLayer(1)

	pkt := &rtp.Packet{Payload: buildVP8Descriptor(true, 2)}
	require.False(t, c.ProcessPayload(pkt))
}

func TestVP8ContextForwardsAtOrBelowTargetTemporalLayer(t *testing.T) {
	c, err := New("video/VP8", 1, 4)
	require.NoError(t, err)
	c.SetTargetTemporalLayer(2)

	pkt := &rtp.Packet{Payload: buildVP8Descriptor(true, 1)}
	require.True(t, c.ProcessPayload(pkt))
	require.Equal(t, int16(1), c.GetCurrentTemporalLayer())
}

func TestVP8ContextAlwaysForwardsBaseLayer(t *testing.T) {
	c, err := New("video/VP8", 1, 4)
	require.NoError(t, err)
	c.SetTargetTemporalLayer(0)

	pkt := &rtp.Packet{Payload: buildVP8Descriptor(false, 0)}
	require.True(t, c.ProcessPayload(pkt))
	require.Equal(t, int16(0), c.GetCurrentTemporalLayer())
}

func TestVP8ContextWithoutTargetDoesNotForward(t *testing.T) {
	c, err := New("video/VP8", 1, 4)
	require.NoError(t, err)

	pkt := &rtp.Packet{Payload: buildVP8Descriptor(true, 0)}
	require.False(t, c.ProcessPayload(pkt))
}

func TestH264ContextAlwaysForwardsAndPinsTemporalLayerZero(t *testing.T) {
	c, err := New("video/H264", 1, 1)
	require.NoError(t, err)
	c.SetTargetTemporalLayer(0)

	pkt := &rtp.Packet{Payload: []byte{0x01, 0x02, 0x03}}
	require.True(t, c.ProcessPayload(pkt))
	require.Equal(t, int16(0), c.GetCurrentTemporalLayer())
}
