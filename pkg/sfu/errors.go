package sfu

import "errors"

// Configuration faults: reject construction or a control request.
var (
	ErrTooFewEncodings              = errors.New("simulcast consumer requires at least two consumable encodings")
	ErrSpatialLayerMismatch         = errors.New("consumable encodings length does not match negotiated spatial layers")
	ErrMissingPreferredSpatial      = errors.New("preferred layers request is missing a spatial layer")
	ErrUnsupportedCodecForSimulcast = errors.New("codec MIME type has no registered simulcast encoding context")
	ErrPreferredLayerNotNumeric     = errors.New("preferred layer field is not a non-negative integer")
)

// Runtime drops are not errors and are never returned from the forwarding
// path (SendRTPPacket has no return value). ErrUnsupportedPayloadType
// supplies the debug-log message for that drop; the forwarding path does
// not reference the other sentinels in this block.
var (
	ErrNotActive               = errors.New("consumer is not active")
	ErrNoTargetLayer           = errors.New("no target temporal layer selected")
	ErrUnsupportedPayloadType  = errors.New("payload type not negotiated for this consumer")
	ErrWrongSpatialLayer       = errors.New("packet did not arrive on the current spatial layer")
	ErrAwaitingSync            = errors.New("awaiting keyframe to complete a pending switch")
	ErrEncodingContextRejected = errors.New("encoding context rejected the packet payload")
)

// Protocol faults are assertion violations: they indicate an invariant in
// SPEC_FULL.md §3 was broken by a caller outside this package. They are
// never expected in a correct integration and are not meant to be handled;
// see assertUnreachable in assert.go.
var (
	ErrUnknownMappedSSRC   = errors.New("producer stream attached with an unmapped ssrc")
	ErrNoEncodingContext   = errors.New("no encoding context bound to this consumer")
)
