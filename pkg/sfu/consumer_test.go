package sfu

import (
	"testing"

	"github.com/livekit/protocol/logger"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

type fakeListener struct {
	sent           []*rtp.Packet
	keyFrameSSRCs  []uint32
	bitrateChanges int
}

func (l *fakeListener) OnConsumerSendRTPPacket(c *SimulcastConsumer, pkt *rtp.Packet) {
	cp := *pkt
	cp.Payload = append([]byte(nil), pkt.Payload...)
	l.sent = append(l.sent, &cp)
}

func (l *fakeListener) OnConsumerKeyFrameRequested(c *SimulcastConsumer, mappedSSRC uint32) {
	l.keyFrameSSRCs = append(l.keyFrameSSRCs, mappedSSRC)
}

func (l *fakeListener) OnConsumerNeedBitrateChange(c *SimulcastConsumer) {
	l.bitrateChanges++
}

func newTestConsumer(t *testing.T, listener Listener) *SimulcastConsumer {
	t.Helper()
	c, err := NewSimulcastConsumer(SimulcastConsumerParams{
		ID:                     "test-consumer",
		MimeType:               "video/H264",
		ClockRate:              90000,
		OutputSSRC:             0xface,
		ConsumableSSRCs:        []uint32{1, 2},
		SupportedPayloadTypes:  []uint8{0},
		PreferredSpatialLayer:  0,
		PreferredTemporalLayer: 3,
		Listener:               listener,
		Logger:                 logger.GetLogger(),
	})
	require.NoError(t, err)
	return c
}

func TestNewSimulcastConsumerRejectsTooFewEncodings(t *testing.T) {
	_, err := NewSimulcastConsumer(SimulcastConsumerParams{
		MimeType:        "video/H264",
		ConsumableSSRCs: []uint32{1},
		Logger:          logger.GetLogger(),
	})
	require.ErrorIs(t, err, ErrTooFewEncodings)
}

func TestNewSimulcastConsumerRejectsUnsupportedCodec(t *testing.T) {
	_, err := NewSimulcastConsumer(SimulcastConsumerParams{
		MimeType:        "video/VP9",
		ConsumableSSRCs: []uint32{1, 2},
		Logger:          logger.GetLogger(),
	})
	require.ErrorIs(t, err, ErrUnsupportedCodecForSimulcast)
}

func TestConsumerStartsWithNoTarget(t *testing.T) {
	c := newTestConsumer(t, &fakeListener{})
	require.Equal(t, InvalidSpatialLayer, c.targetSpatial)
	require.Equal(t, InvalidTemporalLayer, c.targetTemporal)
}

func TestConsumerDoesNotForwardWithoutTarget(t *testing.T) {
	l := &fakeListener{}
	c := newTestConsumer(t, l)
	c.ProducerRtpStream(&fakeProducerStream{score: 8, temporalLayers: 1, ssrc: 1}, 1)

	pkt := &rtp.Packet{Header: rtp.Header{SSRC: 1, SequenceNumber: 1, Timestamp: 1000}}
	c.SendRTPPacket(pkt, true)
	require.Empty(t, l.sent)
}

func TestConsumerSwitchesAndForwardsOnTargetKeyframe(t *testing.T) {
	l := &fakeListener{}
	c := newTestConsumer(t, l)
	c.ProducerRtpStream(&fakeProducerStream{score: 8, temporalLayers: 1, ssrc: 1}, 1)
	c.UpdateTargetLayers(0, 0)
	require.NotEmpty(t, l.keyFrameSSRCs) // switching onto a new current layer requests a keyframe

	pkt := &rtp.Packet{Header: rtp.Header{SSRC: 1, SequenceNumber: 100, Timestamp: 5000}, Payload: []byte{1, 2, 3}}
	c.SendRTPPacket(pkt, true)

	require.Len(t, l.sent, 1)
	require.Equal(t, uint32(0xface), l.sent[0].SSRC)
	require.Equal(t, int16(0), c.currentSpatial)
}

func TestConsumerDropsNonKeyframeDuringPendingSync(t *testing.T) {
	l := &fakeListener{}
	c := newTestConsumer(t, l)
	c.ProducerRtpStream(&fakeProducerStream{score: 8, temporalLayers: 1, ssrc: 1}, 1)
	c.UpdateTargetLayers(0, 0)

	// The very first packet on the new current layer must be a keyframe to
	// complete the pending sync; a non-keyframe before that must be dropped.
	nonKey := &rtp.Packet{Header: rtp.Header{SSRC: 1, SequenceNumber: 50, Timestamp: 4000}}
	c.SendRTPPacket(nonKey, false)
	require.Empty(t, l.sent)
}

func TestConsumerIgnoresPacketsFromNonCurrentSpatialLayer(t *testing.T) {
	l := &fakeListener{}
	c := newTestConsumer(t, l)
	c.ProducerRtpStream(&fakeProducerStream{score: 8, temporalLayers: 1, ssrc: 1}, 1)
	c.ProducerRtpStream(&fakeProducerStream{score: 8, temporalLayers: 1, ssrc: 2}, 2)
	c.UpdateTargetLayers(0, 0)

	keyOnOtherLayer := &rtp.Packet{Header: rtp.Header{SSRC: 2, SequenceNumber: 1, Timestamp: 1000}}
	c.SendRTPPacket(keyOnOtherLayer, true)
	require.Empty(t, l.sent)
	require.Equal(t, InvalidSpatialLayer, c.currentSpatial)
}

func TestConsumerDropsUnsupportedPayloadType(t *testing.T) {
	l := &fakeListener{}
	c := newTestConsumer(t, l)
	c.ProducerRtpStream(&fakeProducerStream{score: 8, temporalLayers: 1, ssrc: 1}, 1)
	c.UpdateTargetLayers(0, 0)

	// newTestConsumer only negotiates payload type 0; this consumer may
	// support just some of the codecs offered by the producer.
	pkt := &rtp.Packet{Header: rtp.Header{SSRC: 1, SequenceNumber: 100, Timestamp: 1000, PayloadType: 99}}
	c.SendRTPPacket(pkt, true)
	require.Empty(t, l.sent)
}

func TestConsumerSequenceNumbersAreContiguousAcrossPackets(t *testing.T) {
	l := &fakeListener{}
	c := newTestConsumer(t, l)
	c.ProducerRtpStream(&fakeProducerStream{score: 8, temporalLayers: 1, ssrc: 1}, 1)
	c.UpdateTargetLayers(0, 0)

	c.SendRTPPacket(&rtp.Packet{Header: rtp.Header{SSRC: 1, SequenceNumber: 100, Timestamp: 1000}}, true)
	c.SendRTPPacket(&rtp.Packet{Header: rtp.Header{SSRC: 1, SequenceNumber: 101, Timestamp: 1033}}, false)
	c.SendRTPPacket(&rtp.Packet{Header: rtp.Header{SSRC: 1, SequenceNumber: 102, Timestamp: 1066}}, false)

	require.Len(t, l.sent, 3)
	require.Equal(t, l.sent[0].SequenceNumber+1, l.sent[1].SequenceNumber)
	require.Equal(t, l.sent[1].SequenceNumber+1, l.sent[2].SequenceNumber)
}

func TestConsumerOriginalPacketHeaderIsRestoredAfterForwarding(t *testing.T) {
	l := &fakeListener{}
	c := newTestConsumer(t, l)
	c.ProducerRtpStream(&fakeProducerStream{score: 8, temporalLayers: 1, ssrc: 1}, 1)
	c.UpdateTargetLayers(0, 0)

	pkt := &rtp.Packet{Header: rtp.Header{SSRC: 1, SequenceNumber: 100, Timestamp: 1000}}
	c.SendRTPPacket(pkt, true)

	// The caller's packet object must come back unmodified: the consumer
	// writes the output SSRC/seq/ts onto it only transiently to avoid an
	// allocation, then restores the original values before returning.
	require.Equal(t, uint32(1), pkt.SSRC)
	require.Equal(t, uint16(100), pkt.SequenceNumber)
	require.Equal(t, uint32(1000), pkt.Timestamp)
}

func TestSetPreferredLayersClampsToAvailableSpatialLayers(t *testing.T) {
	c := newTestConsumer(t, &fakeListener{})
	err := c.SetPreferredLayers(50, 0, true)
	require.NoError(t, err)
	require.Equal(t, int16(1), c.preferredSpatial) // only 2 consumable layers: indices 0,1
}

func TestSetPreferredLayersRejectsNegativeSpatial(t *testing.T) {
	c := newTestConsumer(t, &fakeListener{})
	err := c.SetPreferredLayers(-1, 0, true)
	require.ErrorIs(t, err, ErrMissingPreferredSpatial)
}

func TestCloseIsIdempotent(t *testing.T) {
	c := newTestConsumer(t, &fakeListener{})
	c.Close()
	require.False(t, c.active)
	c.Close() // must not panic or double-stop the notify queue
}

func TestRequestKeyFramesNoopWhenInactive(t *testing.T) {
	l := &fakeListener{}
	c := newTestConsumer(t, l)
	c.Close()
	c.RequestKeyFrames()
	require.Empty(t, l.keyFrameSSRCs)
}

func TestFillJsonScoreReflectsCurrentLayerProducerScore(t *testing.T) {
	l := &fakeListener{}
	c := newTestConsumer(t, l)
	c.ProducerRtpStream(&fakeProducerStream{score: 7, temporalLayers: 1, ssrc: 1}, 1)
	c.UpdateTargetLayers(0, 0)
	c.SendRTPPacket(&rtp.Packet{Header: rtp.Header{SSRC: 1, SequenceNumber: 1, Timestamp: 1}}, true)

	data, err := c.FillJsonScore()
	require.NoError(t, err)
	require.Contains(t, string(data), `"producerScore":7`)
}
