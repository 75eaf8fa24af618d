package codeccontext

import (
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

// vp8Context forwards a packet when its temporal layer (TID, RFC 7741 §4.2
// extended control bits) is at or below the current target temporal layer,
// or when its payload carries no TID or does not parse. While no target
// temporal layer is set, nothing is forwarded.
// Grounded on original_source's RTC::Codecs::VP8::EncodingContext, whose
// ProcessPayload does the same TID-vs-target comparison.
type vp8Context struct {
	spatialLayers  int16
	temporalLayers int16

	targetTemporal  int16
	currentTemporal int16
}

func newVP8Context(spatialLayers, temporalLayers int16) *vp8Context {
	return &vp8Context{
		spatialLayers:   spatialLayers,
		temporalLayers:  temporalLayers,
		targetTemporal:  -1,
		currentTemporal: -1,
	}
}

func (c *vp8Context) SetTargetTemporalLayer(t int16) { c.targetTemporal = t }
func (c *vp8Context) SetCurrentTemporalLayer(t int16) { c.currentTemporal = t }
func (c *vp8Context) GetCurrentTemporalLayer() int16  { return c.currentTemporal }

// SyncRequired is advisory only: this module does not rewrite VP8
// picture-ID/TL0PICIDX continuity (that belongs to the payload-descriptor
// munger, out of scope per SPEC_FULL.md §1), so there is no continuity
// state here to reset across a switch.
func (c *vp8Context) SyncRequired() {}

// GetPacketTemporalLayer extracts TID from pkt's VP8 payload descriptor,
// or 0 if the descriptor carries none or fails to parse.
func (c *vp8Context) GetPacketTemporalLayer(pkt *rtp.Packet) int16 {
	var vp8 codecs.VP8Packet
	if _, err := vp8.Unmarshal(pkt.Payload); err != nil || vp8.T == 0 {
		return 0
	}
	return int16(vp8.TID)
}

func (c *vp8Context) ProcessPayload(pkt *rtp.Packet) bool {
	if c.targetTemporal < 0 {
		return false
	}

	var vp8 codecs.VP8Packet
	if _, err := vp8.Unmarshal(pkt.Payload); err != nil {
		// Malformed or non-VP8-conformant payload: fail safe by forwarding,
		// same as a packet with no TID descriptor (can't make a layer
		// decision without it).
		return true
	}

	if vp8.T == 0 {
		// No temporal-layer descriptor present: every base-layer VP8 frame
		// (spatial layer encoded without TID extension) is forwarded.
		c.currentTemporal = 0
		return true
	}

	tid := int16(vp8.TID)
	if tid > c.targetTemporal {
		return false
	}

	c.currentTemporal = tid
	return true
}
