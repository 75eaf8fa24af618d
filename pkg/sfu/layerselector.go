package sfu

import "github.com/livekit/protocol/logger"

// virtualBitrate applies the loss-based boost/penalty table of
// SPEC_FULL.md §4.D, grounded exactly on original_source's UseAvailableBitrate.
func virtualBitrate(bitrate uint32, lossPercent float64) uint32 {
	switch {
	case lossPercent < 2:
		return uint32(float64(bitrate) * 1.08)
	case lossPercent > 10:
		return uint32(float64(bitrate) * (1 - 0.5*lossPercent/100))
	default:
		return bitrate
	}
}

// LayerSelector implements the four entry points of SPEC_FULL.md §4.D over
// a caller-supplied view of the producer streams, preferred layers, and
// current target. It holds no state of its own beyond the provisional
// scratch values used between UseAvailableBitrate/IncreaseTemporalLayer and
// ApplyLayers; target/current state lives in SimulcastConsumer (§4.E).
type LayerSelector struct {
	logger logger.Logger

	provisionalSpatial  int16
	provisionalTemporal int16
}

func NewLayerSelector(log logger.Logger) *LayerSelector {
	return &LayerSelector{
		logger:              log,
		provisionalSpatial:  InvalidSpatialLayer,
		provisionalTemporal: InvalidTemporalLayer,
	}
}

// layerSelectorView is the slice of SimulcastConsumer state the selector
// needs, passed explicitly rather than via a back-reference so the
// selector stays independently testable (SPEC_FULL.md §4.H test tooling).
type layerSelectorView struct {
	streams                 []ProducerRtpStream // index == spatial layer, nil slot == empty
	preferredSpatial        int16
	preferredTemporal       int16
	targetSpatial           int16
	targetTemporal          int16
	externallyManagedBitrate bool
	outputTemporalLayers    int16
	lossPercentage          float64
	nowMs                   int64
	canSwitchTo             func(s int16) bool
}

// RecalculateTargetLayers runs the local, bitrate-unaware candidate scan
// of SPEC_FULL.md §4.D.
func (l *LayerSelector) RecalculateTargetLayers(v layerSelectorView) (newS, newT int16, changed bool) {
	newS = InvalidSpatialLayer
	var bestSeenScore uint8
	candidateFound := false

	for s := int16(0); int(s) < len(v.streams); s++ {
		stream := v.streams[s]
		if stream == nil {
			continue
		}
		score := stream.GetScore()
		if score == 0 {
			continue
		}
		if v.externallyManagedBitrate && candidateFound && stream.GetActiveTime() < StreamMinActiveTimeMs {
			continue
		}
		if !v.canSwitchTo(s) {
			continue
		}
		if score < bestSeenScore && score < StreamGoodScore {
			continue
		}

		newS = s
		candidateFound = true
		bestSeenScore = score

		if s >= v.preferredSpatial && score >= StreamGoodScore {
			break
		}
	}

	if newS == InvalidSpatialLayer {
		return InvalidSpatialLayer, InvalidTemporalLayer, newS != v.targetSpatial
	}

	switch {
	case newS == v.preferredSpatial:
		newT = v.preferredTemporal
	case newS < v.preferredSpatial:
		// Degrading spatially: keep temporal quality as high as the negotiated
		// output stream supports, per original_source ("rtpStream" there is
		// the consumer's own output stream, not the candidate producer's).
		newT = v.outputTemporalLayers - 1
	default: // newS > preferredSpatial
		newT = 0
	}

	changed = newS != v.targetSpatial || newT != v.targetTemporal
	return newS, newT, changed
}

// UseAvailableBitrate is the externally-managed-only provisional
// allocation pass of SPEC_FULL.md §4.D.
func (l *LayerSelector) UseAvailableBitrate(v layerSelectorView, bitrate uint32, considerLoss bool) uint32 {
	vbr := bitrate
	if considerLoss {
		vbr = virtualBitrate(bitrate, v.lossPercentage)
	}

	l.provisionalSpatial = InvalidSpatialLayer
	l.provisionalTemporal = InvalidTemporalLayer
	var used uint32
	var bestSeenScore uint8

spatialLoop:
	for s := int16(0); int(s) < len(v.streams); s++ {
		stream := v.streams[s]
		if stream == nil {
			continue
		}
		score := stream.GetScore()
		if score == 0 {
			continue
		}
		if used > 0 && stream.GetActiveTime() < StreamMinActiveTimeMs {
			continue
		}
		if !v.canSwitchTo(s) {
			continue
		}
		if score < bestSeenScore && score < StreamGoodScore {
			continue
		}
		bestSeenScore = score

		for t := int16(0); t < stream.GetTemporalLayers(); t++ {
			req := stream.GetBitrate(v.nowMs, 0, t)
			if req == 0 {
				break // layer inactive; stop scanning this spatial layer's temporals
			}
			if req > vbr {
				// keep previous (sProv, tProv); stop everything
				break spatialLoop
			}
			l.provisionalSpatial = s
			l.provisionalTemporal = t
			used = req

			if s == v.preferredSpatial && t == v.preferredTemporal && score >= StreamGoodScore {
				break spatialLoop
			}
		}

		if l.provisionalSpatial >= v.preferredSpatial && score >= StreamGoodScore {
			break spatialLoop
		}
	}

	switch {
	case used <= bitrate:
		return used
	case used <= vbr:
		// The source's recomputation is intentionally asymmetric: when the
		// allocation stayed within the virtual (loss-adjusted) budget but
		// exceeded the nominal one, it is reported as having used exactly
		// the nominal budget rather than the (larger) virtual one.
		// SPEC_FULL.md §9 preserves this as specified.
		return bitrate
	default:
		return used
	}
}

// IncreaseTemporalLayer extends the provisional temporal layer chosen by
// the most recent UseAvailableBitrate call, per SPEC_FULL.md §4.D. Calling
// it without a prior UseAvailableBitrate call is a protocol fault.
func (l *LayerSelector) IncreaseTemporalLayer(v layerSelectorView, bitrate uint32, considerLoss bool) uint32 {
	if l.provisionalSpatial == InvalidSpatialLayer {
		assertUnreachable(l.logger, "IncreaseTemporalLayer called before UseAvailableBitrate")
		return 0
	}
	if l.provisionalSpatial == v.preferredSpatial && l.provisionalTemporal == v.preferredTemporal {
		return 0
	}

	stream := v.streams[l.provisionalSpatial]
	vbr := bitrate
	if considerLoss {
		vbr = virtualBitrate(bitrate, v.lossPercentage)
	}

	maxT := stream.GetTemporalLayers()
	for t := l.provisionalTemporal + 1; t < maxT; t++ {
		if l.provisionalSpatial == v.preferredSpatial && t > v.preferredTemporal {
			continue
		}

		req := stream.GetLayerBitrate(v.nowMs, 0, t)
		if req == 0 {
			break // no further active temporal layer above this one
		}
		if req > vbr {
			// The candidate costs more than even the loss-boosted budget: no
			// upgrade this round, same as the caller finding nothing to add.
			return 0
		}

		l.provisionalTemporal = t

		switch {
		case req <= bitrate:
			return req
		case req <= vbr:
			// Same asymmetric reshape as UseAvailableBitrate: within the
			// virtual budget but over the nominal one is reported as having
			// used exactly the nominal budget.
			return bitrate
		default:
			// Unreachable: the two cases above already cover req <= vbr, and
			// the guard further up already returned for req > vbr.
			assertUnreachable(l.logger, "increaseTemporalLayer reshape fell through", "req", req, "bitrate", bitrate, "virtualBitrate", vbr)
			return 0
		}
	}
	return 0
}

// ApplyLayers copies the provisional layers into the real target by
// invoking apply (SimulcastConsumer.UpdateTargetLayers), then resets the
// provisional scratch state.
func (l *LayerSelector) ApplyLayers(apply func(s, t int16)) {
	apply(l.provisionalSpatial, l.provisionalTemporal)
	l.provisionalSpatial = InvalidSpatialLayer
	l.provisionalTemporal = InvalidTemporalLayer
}

// GetBitratePriority returns the bitrate-allocator priority value of
// SPEC_FULL.md §4.D.
func (l *LayerSelector) GetBitratePriority(v layerSelectorView, active bool) int16 {
	if !active {
		return 0
	}

	var best int16 = -1
	for s := int16(0); int(s) < len(v.streams); s++ {
		// Do not choose a layer greater than the preferred one once an
		// eligible layer at or below the preferred one has been found.
		if s > v.preferredSpatial && best != -1 {
			break
		}
		stream := v.streams[s]
		if stream == nil || stream.GetScore() == 0 {
			continue
		}
		best = s
	}
	if best == -1 {
		return 1
	}
	return best + 1
}

// GetDesiredBitrate runs the same scan as UseAvailableBitrate without
// enforcing the budget, reporting the bitrate required for the best
// reachable layers (SPEC_FULL.md §4.D).
func (l *LayerSelector) GetDesiredBitrate(v layerSelectorView) uint32 {
	var desired uint32
	var desiredSpatial int16 = InvalidSpatialLayer
	var bestSeenScore uint8

	for s := int16(0); int(s) < len(v.streams); s++ {
		stream := v.streams[s]
		score := uint8(0)
		if stream != nil {
			score = stream.GetScore()
		}
		if score == 0 {
			continue
		}
		if desired > 0 && stream.GetActiveTime() < StreamMinActiveTimeMs {
			continue
		}
		if !v.canSwitchTo(s) {
			continue
		}
		if score < bestSeenScore && score < StreamGoodScore {
			continue
		}
		bestSeenScore = score

		for t := int16(0); t < stream.GetTemporalLayers(); t++ {
			req := stream.GetBitrate(v.nowMs, 0, t)
			if req == 0 {
				break
			}
			desiredSpatial = s
			desired = req

			if s == v.preferredSpatial && t == v.preferredTemporal && score >= StreamGoodScore {
				return desired
			}
		}

		if desiredSpatial >= v.preferredSpatial && score >= StreamGoodScore {
			break
		}
	}
	return desired
}

// ProvisionalTarget returns the scratch (spatial, temporal) pair set by
// the most recent UseAvailableBitrate/IncreaseTemporalLayer call.
func (l *LayerSelector) ProvisionalTarget() (int16, int16) {
	return l.provisionalSpatial, l.provisionalTemporal
}
