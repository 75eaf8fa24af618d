package sfu

// ProducerRtpStream is the consumed, read-only reference to one spatial
// layer's incoming RTP stream (SPEC_FULL.md §6). It is never owned by a
// SimulcastConsumer: the RTP receive buffer, jitter handling, and NACK
// store backing the real implementation live in the (out-of-scope)
// producer/router layer this module forwards from.
type ProducerRtpStream interface {
	GetScore() uint8
	GetActiveTime() uint64 // ms since media was last received
	GetBitrate(nowMs int64, sLayer, tLayer int16) uint32
	GetLayerBitrate(nowMs int64, sLayer, tLayer int16) uint32
	GetTemporalLayers() int16
	GetSSRC() uint32
	GetSenderReportNtpMs() uint64
	GetSenderReportTs() uint32
	GetClockRate() uint32
}
