package sfu

import (
	"github.com/hashicorp/golang-lru/v2"
	"github.com/livekit/protocol/logger"
)

// recentMappingCacheSize bounds how many original->output sequence-number
// mappings SeqRewriter retains. Nothing in this module replays a mapping
// older than a handful of packets, but keeping a small bounded history
// (rather than none) lets Translate answer for recently-seen sequence
// numbers without growing unbounded state across a long-lived consumer.
const recentMappingCacheSize = 256

// SeqRewriter rewrites inbound RTP sequence numbers into a contiguous,
// monotonic outgoing series (SPEC_FULL.md §4.A). It is intentionally
// simpler than the reference stack's RTPMunger: there is no out-of-order,
// duplicate, or padding-only packet handling here because the RTP send
// buffer / NACK retransmission store that would need it is out of scope
// for this module (SPEC_FULL.md §1).
type SeqRewriter struct {
	logger logger.Logger

	initialized bool
	offset      uint16 // outputSeq = inputSeq - offset (mod 2^16)
	lastOutput  uint16

	pendingSync    bool
	pendingSyncSeq uint16 // baseSeq passed to Sync; next Input returns this+1

	recent *lru.Cache[uint16, uint16]
}

func NewSeqRewriter(log logger.Logger) *SeqRewriter {
	cache, _ := lru.New[uint16, uint16](recentMappingCacheSize)
	return &SeqRewriter{
		logger: log,
		recent: cache,
	}
}

// Input assigns the next output sequence number for an inbound packet that
// is being forwarded.
func (s *SeqRewriter) Input(originalSeq uint16) uint16 {
	if s.pendingSync {
		s.pendingSync = false
		s.offset = originalSeq - (s.pendingSyncSeq + 1)
		s.initialized = true
	} else if !s.initialized {
		s.initialized = true
		s.offset = 0
	}

	out := originalSeq - s.offset
	s.lastOutput = out
	s.recent.Add(originalSeq, out)
	return out
}

// Drop advances the mapping for a packet that arrived but will not be
// forwarded, so that later packets still produce a contiguous output
// sequence (no gap is left where the dropped packet would have been).
func (s *SeqRewriter) Drop(originalSeq uint16) {
	if !s.initialized && !s.pendingSync {
		// Nothing has been assigned yet; there is no contiguous series to
		// preserve, so dropping before the first Input is a no-op.
		return
	}
	s.offset++
	s.recent.Add(originalSeq, s.lastOutput)
}

// Sync resets the mapping origin: the next call to Input returns
// baseSeq+1, regardless of the gap between the packet that triggered the
// switch and whatever arrives next. Invoked at every switch keyframe
// (SPEC_FULL.md §4.F step 7) so the new source's sequence numbers continue
// the prior monotonic series rather than restarting it.
func (s *SeqRewriter) Sync(baseSeq uint16) {
	s.pendingSync = true
	s.pendingSyncSeq = baseSeq
}

// Translate returns the output sequence number previously assigned (via
// Input or Drop) to originalSeq, if it is still in the retained window.
func (s *SeqRewriter) Translate(originalSeq uint16) (uint16, bool) {
	return s.recent.Get(originalSeq)
}

// LastOutput returns the most recently assigned output sequence number.
func (s *SeqRewriter) LastOutput() uint16 {
	return s.lastOutput
}
