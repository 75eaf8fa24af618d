// Package codeccontext implements the per-codec EncodingContext adapters
// consumed by the packet forwarder (SPEC_FULL.md §4.C). Each implementation
// decides, from the wire payload alone, whether an inbound packet on the
// current spatial layer belongs to a temporal sub-layer that should be
// forwarded, and may strip higher-temporal-layer markers from the payload
// descriptor it leaves behind.
package codeccontext

import (
	"errors"

	"github.com/pion/rtp"

	"github.com/nimblertc/simulcast/pkg/sfu/mime"
)

// ErrUnsupportedCodec is returned by New when mimeType names a codec with
// no registered EncodingContext constructor (SPEC_FULL.md §4.C: "codecs not
// supporting simulcast cause construction to fail").
var ErrUnsupportedCodec = errors.New("codeccontext: codec does not support simulcast encoding contexts")

// Context is the per-codec opaque described in SPEC_FULL.md §4.C.
type Context interface {
	SetTargetTemporalLayer(t int16)
	SetCurrentTemporalLayer(t int16)
	GetCurrentTemporalLayer() int16
	SyncRequired()
	// ProcessPayload reports whether pkt should be forwarded on the current
	// target temporal layer, and may rewrite pkt.Payload in place to drop
	// higher-temporal-layer references before forwarding.
	ProcessPayload(pkt *rtp.Packet) bool
	// GetPacketTemporalLayer reads the temporal layer pkt itself carries,
	// independent of any target/current state, for use when a switch lands
	// on this packet and the consumer needs the packet's own layer rather
	// than the one it was targeting.
	GetPacketTemporalLayer(pkt *rtp.Packet) int16
}

// New constructs the Context for mimeType, or ErrUnsupportedCodec if the
// codec is not simulcast-capable (SVC codecs like VP9/AV1 split layers
// within a single stream rather than across parallel encodings, which is
// explicitly out of this module's scope — see SPEC_FULL.md §1 Non-goals).
func New(mimeType string, spatialLayers, temporalLayers int16) (Context, error) {
	switch mime.NormalizeMimeType(mimeType) {
	case mime.MimeTypeVP8:
		return newVP8Context(spatialLayers, temporalLayers), nil
	case mime.MimeTypeH264:
		return newH264Context(spatialLayers, temporalLayers), nil
	default:
		return nil, ErrUnsupportedCodec
	}
}
