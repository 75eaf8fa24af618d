package sfu

import (
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"go.uber.org/atomic"

	"github.com/nimblertc/simulcast/pkg/sfu/utils"
)

// OutputRtpStream is the owned send-side stream described in SPEC_FULL.md
// §6 and §4.I. It tracks the outgoing SSRC, the emitted-timestamp
// high-water mark the Timestamp Synchronizer's regression guard reads, a
// 0-10 health score, and enough RTCP receiver-report bookkeeping to answer
// loss/RTT/transmission-rate queries.
type OutputRtpStream struct {
	ssrc           uint32
	spatialLayers  int16
	temporalLayers int16
	clockRate      uint32

	tsHighWater *utils.WrapAround[uint32, uint64]

	score atomic.Uint32 // 0-10

	packetsSent atomic.Uint32
	octetsSent  atomic.Uint64

	lossPercentage atomic.Uint32 // 0-100
	fractionLost   atomic.Uint32 // 0-255, raw RTCP fraction
	rttMs          atomic.Uint32
}

func NewOutputRtpStream(ssrc uint32, spatialLayers, temporalLayers int16, clockRate uint32) *OutputRtpStream {
	return &OutputRtpStream{
		ssrc:           ssrc,
		spatialLayers:  spatialLayers,
		temporalLayers: temporalLayers,
		clockRate:      clockRate,
		tsHighWater:    utils.NewWrapAround[uint32, uint64](),
	}
}

// ReceivePacket records a packet that is about to be sent on the wire,
// updating the timestamp high-water mark used by GetMaxPacketTs.
func (o *OutputRtpStream) ReceivePacket(pkt *rtp.Packet) bool {
	o.tsHighWater.Update(pkt.Timestamp)
	o.packetsSent.Inc()
	o.octetsSent.Add(uint64(len(pkt.Payload)))
	return true
}

// GetMaxPacketTs returns the highest RTP timestamp emitted so far, the
// `maxPacketTs` referenced throughout SPEC_FULL.md §4.B.
func (o *OutputRtpStream) GetMaxPacketTs() uint32 {
	return o.tsHighWater.GetHighest()
}

func (o *OutputRtpStream) GetSpatialLayers() int16  { return o.spatialLayers }
func (o *OutputRtpStream) GetTemporalLayers() int16 { return o.temporalLayers }
func (o *OutputRtpStream) GetClockRate() uint32     { return o.clockRate }
func (o *OutputRtpStream) GetSSRC() uint32          { return o.ssrc }

func (o *OutputRtpStream) GetScore() uint8 { return uint8(o.score.Load()) }

// ResetScore sets the running score, optionally without notifying
// listeners — used at the moment a switch completes (SPEC_FULL.md §4.E),
// where the new current layer's health is assumed good (10) rather than
// inherited from whatever the previous layer's score decayed to.
func (o *OutputRtpStream) ResetScore(value uint8, notify bool) {
	o.score.Store(uint32(value))
	_ = notify // notification fan-out is the Control Surface's responsibility
}

func (o *OutputRtpStream) GetLossPercentage() uint8 { return uint8(o.lossPercentage.Load()) }
func (o *OutputRtpStream) GetFractionLost() uint8   { return uint8(o.fractionLost.Load()) }

// ReceiveRtcpReceiverReport folds a remote receiver report into the
// loss/RTT bookkeeping this stream exposes via GetRtt/GetLossPercentage.
func (o *OutputRtpStream) ReceiveRtcpReceiverReport(rr *rtcp.ReceptionReport) {
	o.fractionLost.Store(uint32(rr.FractionLost))
	o.lossPercentage.Store(uint32(rr.FractionLost) * 100 / 256)

	// RTT from the last sender report's LSR/DLSR, per RFC 3550 §6.4.1,
	// mirrors the reference stack's round-trip computation in spirit
	// without importing its full jitter-buffer machinery (out of scope).
	if rr.LastSenderReport != 0 && rr.Delay != 0 {
		nowCompactNtp := uint32(toNtp(time.Now()) >> 16)
		rttCompact := nowCompactNtp - rr.LastSenderReport - rr.Delay
		rttMs := (uint64(rttCompact) * 1000) >> 16
		o.rttMs.Store(uint32(rttMs))
	}
}

func (o *OutputRtpStream) GetRtt() float32 {
	return float32(o.rttMs.Load())
}

// GetTransmissionRate returns the send bitrate in bits per second computed
// over the packets accounted since the stream was created. A full
// windowed bitrate estimator belongs to the (out-of-scope) transport layer
// per SPEC_FULL.md §1; this module only needs a monotonically-updated
// running counter to answer SPEC_FULL.md §4.J's GetTransmissionRate call.
func (o *OutputRtpStream) GetTransmissionRate(elapsed time.Duration) uint32 {
	if elapsed <= 0 {
		return 0
	}
	bits := o.octetsSent.Load() * 8
	return uint32(float64(bits) / elapsed.Seconds())
}

// GetRtcpSenderReport builds the RTCP sender report this stream would emit
// at `now`, carrying the NTP/RTP timestamp pair SPEC_FULL.md §4.B's
// Timestamp Synchronizer anchors on when this layer later becomes a
// cross-layer reference for some other consumer instance.
func (o *OutputRtpStream) GetRtcpSenderReport(now time.Time) *rtcp.SenderReport {
	return &rtcp.SenderReport{
		SSRC:        o.ssrc,
		NTPTime:     toNtp(now),
		RTPTime:     o.tsHighWater.GetHighest(),
		PacketCount: o.packetsSent.Load(),
		OctetCount:  uint32(o.octetsSent.Load()),
	}
}

func toNtp(t time.Time) uint64 {
	const ntpEpochOffset = 2208988800 // seconds between 1900-01-01 and 1970-01-01
	sec := uint64(t.Unix()) + ntpEpochOffset
	frac := uint64(t.Nanosecond()) << 32 / 1e9
	return sec<<32 | frac
}
