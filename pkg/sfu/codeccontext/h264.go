package codeccontext

import "github.com/pion/rtp"

// h264Context is a pure passthrough: AVC carries no intra-stream temporal
// sub-layer descriptor, so every packet received on the current spatial
// layer is forwarded and the "current temporal layer" is pinned at 0
// (SPEC_FULL.md §4.C).
type h264Context struct {
	spatialLayers int16
}

func newH264Context(spatialLayers, _ int16) *h264Context {
	return &h264Context{spatialLayers: spatialLayers}
}

func (c *h264Context) SetTargetTemporalLayer(int16)  {}
func (c *h264Context) SetCurrentTemporalLayer(int16) {}
func (c *h264Context) GetCurrentTemporalLayer() int16 { return 0 }
func (c *h264Context) SyncRequired()                  {}

func (c *h264Context) ProcessPayload(pkt *rtp.Packet) bool { return true }

func (c *h264Context) GetPacketTemporalLayer(pkt *rtp.Packet) int16 { return 0 }
