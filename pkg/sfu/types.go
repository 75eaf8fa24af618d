package sfu

import "fmt"

// Layer bounds. The reference source caps simulcast at a handful of spatial
// encodings with a handful of temporal sub-layers each; this module follows
// suit rather than supporting arbitrarily large S/T (SPEC_FULL.md §5).
const (
	MaxSpatialLayers  = 8
	MaxTemporalLayers = 4
)

const (
	InvalidSpatialLayer  int16 = -1
	InvalidTemporalLayer int16 = -1
)

// VideoLayer identifies a simulcast spatial/temporal coordinate. Narrowed to
// int16 (the reference stack's buffer.VideoLayer uses int32) because every
// wire-level field this module exchanges it with — preferredSpatialLayer,
// targetSpatialLayer, currentSpatialLayer — is int16 per SPEC_FULL.md §3.
type VideoLayer struct {
	Spatial  int16
	Temporal int16
}

var InvalidLayer = VideoLayer{Spatial: InvalidSpatialLayer, Temporal: InvalidTemporalLayer}

func (v VideoLayer) String() string {
	return fmt.Sprintf("VideoLayer{s: %d, t: %d}", v.Spatial, v.Temporal)
}

func (v VideoLayer) IsValid() bool {
	return v.Spatial != InvalidSpatialLayer && v.Temporal != InvalidTemporalLayer
}

// LayerBitrates is a per-(spatial,temporal) bitrate table in bits per
// second; each entry holds one value of the kind
// ProducerRtpStream.GetLayerBitrate returns for a single (spatial, temporal)
// pair.
type LayerBitrates [MaxSpatialLayers][MaxTemporalLayers]uint32

// StreamGoodScore is the health-score threshold at or above which a producer
// stream is considered acceptable to forward (SPEC_FULL.md §4.D).
const StreamGoodScore = 5

// StreamMinActiveTimeMs guards against flapping onto a layer that has only
// just started producing media.
const StreamMinActiveTimeMs = 2000
