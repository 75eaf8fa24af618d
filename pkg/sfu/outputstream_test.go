package sfu

import (
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

func TestOutputRtpStreamTracksHighWaterTimestamp(t *testing.T) {
	o := NewOutputRtpStream(0xabc, 3, 4, 90000)
	o.ReceivePacket(&rtp.Packet{Header: rtp.Header{Timestamp: 1000}})
	o.ReceivePacket(&rtp.Packet{Header: rtp.Header{Timestamp: 2000}})
	require.Equal(t, uint32(2000), o.GetMaxPacketTs())
}

func TestOutputRtpStreamAccumulatesOctetsAndPackets(t *testing.T) {
	o := NewOutputRtpStream(1, 1, 1, 90000)
	o.ReceivePacket(&rtp.Packet{Payload: make([]byte, 100)})
	o.ReceivePacket(&rtp.Packet{Payload: make([]byte, 50)})
	require.Equal(t, uint32(2), o.packetsSent.Load())
	require.Equal(t, uint64(150), o.octetsSent.Load())
}

func TestOutputRtpStreamTransmissionRate(t *testing.T) {
	o := NewOutputRtpStream(1, 1, 1, 90000)
	o.ReceivePacket(&rtp.Packet{Payload: make([]byte, 1250)}) // 10000 bits
	rate := o.GetTransmissionRate(time.Second)
	require.Equal(t, uint32(10000), rate)
}

func TestOutputRtpStreamZeroElapsedTransmissionRateIsZero(t *testing.T) {
	o := NewOutputRtpStream(1, 1, 1, 90000)
	require.Equal(t, uint32(0), o.GetTransmissionRate(0))
}

func TestOutputRtpStreamScoreDefaultsToZero(t *testing.T) {
	o := NewOutputRtpStream(1, 1, 1, 90000)
	require.Equal(t, uint8(0), o.GetScore())
}

func TestOutputRtpStreamResetScore(t *testing.T) {
	o := NewOutputRtpStream(1, 1, 1, 90000)
	o.ResetScore(9, false)
	require.Equal(t, uint8(9), o.GetScore())
}

func TestOutputRtpStreamReceiveReceiverReportUpdatesLoss(t *testing.T) {
	o := NewOutputRtpStream(1, 1, 1, 90000)
	o.ReceiveRtcpReceiverReport(&rtcp.ReceptionReport{FractionLost: 128})
	require.Equal(t, uint8(128), o.GetFractionLost())
	require.Equal(t, uint8(50), o.GetLossPercentage())
}

func TestOutputRtpStreamGetRtcpSenderReportCarriesHighWaterTimestamp(t *testing.T) {
	o := NewOutputRtpStream(0x1234, 1, 1, 90000)
	o.ReceivePacket(&rtp.Packet{Header: rtp.Header{Timestamp: 777}})
	sr := o.GetRtcpSenderReport(time.Now())
	require.Equal(t, uint32(0x1234), sr.SSRC)
	require.Equal(t, uint32(777), sr.RTPTime)
	require.Equal(t, uint32(1), sr.PacketCount)
}
