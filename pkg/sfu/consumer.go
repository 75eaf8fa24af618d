package sfu

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/gammazero/deque"
	"github.com/livekit/protocol/logger"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/nimblertc/simulcast/pkg/sfu/codeccontext"
)

// ScoreNotification is emitted on a layers/score change per SPEC_FULL.md §6.
type ScoreNotification struct {
	Score         uint8
	ProducerScore uint8
}

// LayersChangeNotification mirrors SPEC_FULL.md §6's `layerschange` event.
// A nil *LayersChangeNotification denotes the "null" payload emitted when
// the consumer loses every target layer.
type LayersChangeNotification struct {
	SpatialLayer  int16
	TemporalLayer int16
}

// Listener is the transport back-reference of SPEC_FULL.md §6. It is a
// non-owning reference. OnConsumerSendRTPPacket and
// OnConsumerKeyFrameRequested are called inline on the caller's goroutine;
// OnConsumerNeedBitrateChange is called from the debounce timer.
type Listener interface {
	OnConsumerSendRTPPacket(c *SimulcastConsumer, pkt *rtp.Packet)
	OnConsumerKeyFrameRequested(c *SimulcastConsumer, mappedSSRC uint32)
	OnConsumerNeedBitrateChange(c *SimulcastConsumer)
}

// SimulcastConsumerParams configures a SimulcastConsumer at construction
// (SPEC_FULL.md §4.H: a plain struct, not functional options, matching the
// reference stack's convention for this kind of object).
type SimulcastConsumerParams struct {
	ID                       string
	MimeType                 string
	ClockRate                uint32
	OutputSSRC               uint32
	ConsumableSSRCs          []uint32 // index == spatial layer
	SupportedPayloadTypes    []uint8
	PreferredSpatialLayer    int16
	PreferredTemporalLayer   int16
	ExternallyManagedBitrate bool
	Listener                 Listener
	Logger                   logger.Logger
}

// SimulcastConsumer is the orchestrator described in SPEC_FULL.md §4.J: it
// wires the Sequence Rewriter (A), Timestamp Synchronizer (B), an
// EncodingContext (C), the Layer Selector (D), the Switch State Machine
// (E, folded in below), the Packet Forwarder (F), and the Control Surface
// (G) into the single-threaded-cooperative consumer described in §5.
//
// Callers are responsible for serializing all calls onto one logical
// worker; SimulcastConsumer takes no internal lock on its own state for
// that reason (§5). The internal concurrency is the notification queue,
// which runs the score/layers-change handlers on their own goroutine, and
// the debounce timer behind OnConsumerNeedBitrateChange; the other
// Listener methods run inline on the hot path.
type SimulcastConsumer struct {
	id     string
	logger logger.Logger

	mimeType string

	active bool
	kind   string // always "video" for this module

	mappedSSRCToSpatial   map[uint32]int16
	producerStreams       []ProducerRtpStream // index == spatial layer
	supportedPayloadTypes map[uint8]struct{}

	preferredSpatial  int16
	preferredTemporal int16

	targetSpatial      int16
	targetTemporal     int16
	currentSpatial     int16
	tsReferenceSpatial int16

	externallyManagedBitrate bool
	syncRequired             bool

	encodingContext codeccontext.Context
	output          *OutputRtpStream
	seq             *SeqRewriter
	ts              *TSSync
	selector        *LayerSelector

	listener Listener

	notifyDebounce func(func())
	notifyQueue    *notifyQueue

	lastRtcpSentTime time.Time
	maxRtcpInterval  time.Duration

	scoreHandler         func(ScoreNotification)
	layersChangeHandler  func(*LayersChangeNotification)
}

// NewSimulcastConsumer validates params and constructs a SimulcastConsumer,
// or returns a configuration-fault error per SPEC_FULL.md §7.
func NewSimulcastConsumer(params SimulcastConsumerParams) (*SimulcastConsumer, error) {
	if len(params.ConsumableSSRCs) < 2 {
		return nil, ErrTooFewEncodings
	}
	if params.PreferredSpatialLayer < 0 {
		return nil, ErrMissingPreferredSpatial
	}

	spatialLayers := int16(len(params.ConsumableSSRCs))
	temporalLayers := int16(MaxTemporalLayers)

	ec, err := codeccontext.New(params.MimeType, spatialLayers, temporalLayers)
	if err != nil {
		return nil, ErrUnsupportedCodecForSimulcast
	}

	preferredSpatial := params.PreferredSpatialLayer
	if preferredSpatial >= spatialLayers {
		preferredSpatial = spatialLayers - 1
	}
	preferredTemporal := params.PreferredTemporalLayer
	if preferredTemporal <= 0 {
		preferredTemporal = temporalLayers - 1
	}
	if preferredTemporal >= temporalLayers {
		preferredTemporal = temporalLayers - 1
	}

	mapped := make(map[uint32]int16, len(params.ConsumableSSRCs))
	for i, ssrc := range params.ConsumableSSRCs {
		mapped[ssrc] = int16(i)
	}

	supportedPayloadTypes := make(map[uint8]struct{}, len(params.SupportedPayloadTypes))
	for _, pt := range params.SupportedPayloadTypes {
		supportedPayloadTypes[pt] = struct{}{}
	}

	log := params.Logger
	c := &SimulcastConsumer{
		id:                       params.ID,
		logger:                   log,
		mimeType:                 params.MimeType,
		active:                   true,
		kind:                     "video",
		mappedSSRCToSpatial:      mapped,
		producerStreams:          make([]ProducerRtpStream, spatialLayers),
		supportedPayloadTypes:    supportedPayloadTypes,
		preferredSpatial:         preferredSpatial,
		preferredTemporal:        preferredTemporal,
		targetSpatial:            InvalidSpatialLayer,
		targetTemporal:           InvalidTemporalLayer,
		currentSpatial:           InvalidSpatialLayer,
		tsReferenceSpatial:       InvalidSpatialLayer,
		externallyManagedBitrate: params.ExternallyManagedBitrate,
		encodingContext:          ec,
		output:                   NewOutputRtpStream(params.OutputSSRC, spatialLayers, temporalLayers, params.ClockRate),
		seq:                      NewSeqRewriter(log),
		ts:                       NewTSSync(log),
		selector:                 NewLayerSelector(log),
		listener:                 params.Listener,
		notifyDebounce:           debounce.New(50 * time.Millisecond),
		notifyQueue:              newNotifyQueue(log),
		maxRtcpInterval:          time.Second,
	}
	c.notifyQueue.Start()
	return c, nil
}

// ProducerRtpStream attaches (or replaces) the producer-side stream for
// one spatial layer (SPEC_FULL.md §4.J, §9 "Shared producer streams").
func (c *SimulcastConsumer) ProducerRtpStream(stream ProducerRtpStream, mappedSSRC uint32) {
	s, ok := c.mappedSSRCToSpatial[mappedSSRC]
	if !ok {
		assertUnreachable(c.logger, ErrUnknownMappedSSRC.Error(), "ssrc", mappedSSRC)
		return
	}
	c.producerStreams[s] = stream
}

// ProducerRtpStreamClosed detaches the slot for a spatial layer whose
// producer stream was torn down (the slot becomes a weak-reference miss).
func (c *SimulcastConsumer) ProducerRtpStreamClosed(mappedSSRC uint32) {
	if s, ok := c.mappedSSRCToSpatial[mappedSSRC]; ok {
		c.producerStreams[s] = nil
	}
}

// ProducerRtpStreamScore handles a producer-side score change. Per
// SPEC_FULL.md §9 (Design Notes, the asymmetry preserved from
// original_source), layers are only re-evaluated if externally-managed
// bitrate is off, or the score transitioned to/from zero — an external
// bitrate controller otherwise owns ongoing layer decisions.
func (c *SimulcastConsumer) ProducerRtpStreamScore(mappedSSRC uint32, score, previousScore uint8) {
	if !c.externallyManagedBitrate || score == 0 || previousScore == 0 {
		c.MayChangeLayers(false)
	}
}

// ProducerRtcpSenderReport is a passive hook: the sender report itself is
// read later by the Timestamp Synchronizer through the producer stream's
// getters (SPEC_FULL.md §4.B); nothing needs to happen here beyond letting
// the caller know the attach point exists, matching original_source's
// near-no-op ProducerRtcpSenderReport.
func (c *SimulcastConsumer) ProducerRtcpSenderReport(mappedSSRC uint32) {}

// view builds the LayerSelector's input snapshot from current state.
func (c *SimulcastConsumer) view() layerSelectorView {
	return layerSelectorView{
		streams:                  c.producerStreams,
		preferredSpatial:         c.preferredSpatial,
		preferredTemporal:        c.preferredTemporal,
		targetSpatial:            c.targetSpatial,
		targetTemporal:           c.targetTemporal,
		externallyManagedBitrate: c.externallyManagedBitrate,
		outputTemporalLayers:     c.output.GetTemporalLayers(),
		lossPercentage:           float64(c.output.GetLossPercentage()),
		nowMs:                    time.Now().UnixMilli(),
		canSwitchTo:              c.canSwitchToSpatialLayer,
	}
}

// canSwitchToSpatialLayer implements SPEC_FULL.md §4.E.
func (c *SimulcastConsumer) canSwitchToSpatialLayer(s int16) bool {
	if c.tsReferenceSpatial == InvalidSpatialLayer || s == c.tsReferenceSpatial {
		return true
	}
	ref := c.producerStreams[c.tsReferenceSpatial]
	cand := c.producerStreams[s]
	if ref == nil || cand == nil {
		return false
	}
	return ref.GetSenderReportNtpMs() > 0 && cand.GetSenderReportNtpMs() > 0
}

// MayChangeLayers is the Control Surface entry point of SPEC_FULL.md §4.G.
func (c *SimulcastConsumer) MayChangeLayers(force bool) {
	if !c.active {
		return
	}
	newS, newT, changed := c.selector.RecalculateTargetLayers(c.view())
	if !changed {
		return
	}

	if c.externallyManagedBitrate {
		if newS != c.targetSpatial || force {
			c.notifyListenerNeedBitrateChange()
		}
		return
	}

	c.UpdateTargetLayers(newS, newT)
}

// notifyListenerNeedBitrateChange debounces repeated need-bitrate-change
// signals: a flapping producer score can otherwise fire this on every
// packet, so bursts within the debounce window collapse into one listener
// call, mirroring the reference stack's dynacast quality-change debounce.
func (c *SimulcastConsumer) notifyListenerNeedBitrateChange() {
	if c.listener == nil {
		return
	}
	c.notifyDebounce(func() {
		c.listener.OnConsumerNeedBitrateChange(c)
	})
}

// UpdateTargetLayers is the Switch State Machine transition of
// SPEC_FULL.md §4.E.
func (c *SimulcastConsumer) UpdateTargetLayers(newS, newT int16) {
	if newS == InvalidSpatialLayer {
		c.targetSpatial = InvalidSpatialLayer
		c.targetTemporal = InvalidTemporalLayer
		c.currentSpatial = InvalidSpatialLayer
		c.encodingContext.SetTargetTemporalLayer(InvalidTemporalLayer)
		c.encodingContext.SetCurrentTemporalLayer(InvalidTemporalLayer)
		c.emitLayersChange(nil)
		return
	}

	if c.tsReferenceSpatial == InvalidSpatialLayer {
		c.tsReferenceSpatial = newS
	}

	c.targetSpatial = newS
	c.targetTemporal = newT

	if newS == c.currentSpatial {
		c.encodingContext.SetTargetTemporalLayer(newT)
	} else {
		c.requestKeyFramesForTarget()
	}
}

func (c *SimulcastConsumer) requestKeyFramesForTarget() {
	c.requestKeyFrameForSpatial(c.targetSpatial)
}

func (c *SimulcastConsumer) requestKeyFramesForCurrent() {
	c.requestKeyFrameForSpatial(c.currentSpatial)
}

// RequestKeyFrames is the Control Surface's explicit keyframe request,
// forwarding on both current and target (SPEC_FULL.md §4.E/§4.G). Audio
// consumers never reach this module (video-only, §1 scope), so no kind
// check is needed here.
func (c *SimulcastConsumer) RequestKeyFrames() {
	if !c.active {
		return
	}
	c.requestKeyFramesForCurrent()
	c.requestKeyFramesForTarget()
}

func (c *SimulcastConsumer) requestKeyFrameForSpatial(s int16) {
	if s == InvalidSpatialLayer || c.listener == nil {
		return
	}
	ssrc, ok := c.mappedSSRCForSpatial(s)
	if !ok {
		return
	}
	c.listener.OnConsumerKeyFrameRequested(c, ssrc)
}

func (c *SimulcastConsumer) mappedSSRCForSpatial(s int16) (uint32, bool) {
	for ssrc, layer := range c.mappedSSRCToSpatial {
		if layer == s {
			return ssrc, true
		}
	}
	return 0, false
}

// ReceiveKeyFrameRequest handles a PLI/FIR from the remote
// (SPEC_FULL.md §4.J): the request always reaches the output stream's
// accounting (delegated to the out-of-scope send buffer, modeled here as
// a no-op) and, if active, triggers a keyframe request on the current
// layer.
func (c *SimulcastConsumer) ReceiveKeyFrameRequest() {
	if c.active {
		c.requestKeyFramesForCurrent()
	}
}

// ReceiveRtcpReceiverReport feeds a remote receiver report into the output
// stream's loss/RTT accounting (SPEC_FULL.md §4.J).
func (c *SimulcastConsumer) ReceiveRtcpReceiverReport(rr *rtcp.ReceptionReport) {
	c.output.ReceiveRtcpReceiverReport(rr)
}

// SetPreferredLayers is the Control Surface request of SPEC_FULL.md §4.G.
func (c *SimulcastConsumer) SetPreferredLayers(spatialLayer int16, temporalLayer int16, temporalSet bool) error {
	if spatialLayer < 0 {
		return ErrMissingPreferredSpatial
	}

	maxSpatial := int16(len(c.producerStreams)) - 1
	if spatialLayer > maxSpatial {
		spatialLayer = maxSpatial
	}

	temporal := temporalLayer
	if !temporalSet {
		temporal = int16(MaxTemporalLayers - 1)
	}
	if temporal >= MaxTemporalLayers {
		temporal = MaxTemporalLayers - 1
	}

	changed := spatialLayer != c.preferredSpatial || temporal != c.preferredTemporal
	c.preferredSpatial = spatialLayer
	c.preferredTemporal = temporal

	if c.active && changed {
		c.MayChangeLayers(true)
	}
	return nil
}

// SendRTPPacket is the Packet Forwarder entry point (SPEC_FULL.md §4.F),
// run for every inbound RTP packet on any of this consumer's spatial
// layers. keyFrame reports whether pkt carries a keyframe, determined by
// the (out-of-scope) RTP parser upstream.
func (c *SimulcastConsumer) SendRTPPacket(pkt *rtp.Packet, keyFrame bool) {
	if !c.active || c.targetTemporal == InvalidTemporalLayer {
		return
	}

	// This may happen if this consumer supports just some of the codecs
	// offered by the corresponding producer.
	if _, ok := c.supportedPayloadTypes[pkt.PayloadType]; !ok {
		c.logger.Debugw(ErrUnsupportedPayloadType.Error(), "payloadType", pkt.PayloadType)
		return
	}

	s, ok := c.mappedSSRCToSpatial[pkt.SSRC]
	if !ok {
		assertUnreachable(c.logger, ErrUnknownMappedSSRC.Error(), "ssrc", pkt.SSRC)
		return
	}

	c.maybeSwitchCurrent(s, keyFrame, pkt)

	if s != c.currentSpatial {
		return
	}
	if c.syncRequired && !keyFrame {
		return
	}

	origSeq := pkt.SequenceNumber
	origTS := pkt.Timestamp
	origSSRC := pkt.SSRC
	origPayload := pkt.Payload

	if c.syncRequired && keyFrame {
		c.runSyncProtocol(s, pkt)
		c.encodingContext.SyncRequired()
		c.syncRequired = false
	}

	prevTemporal := c.encodingContext.GetCurrentTemporalLayer()
	if !c.encodingContext.ProcessPayload(pkt) {
		c.seq.Drop(origSeq)
		pkt.SequenceNumber = origSeq
		pkt.Timestamp = origTS
		pkt.SSRC = origSSRC
		pkt.Payload = origPayload
		return
	}
	if c.encodingContext.GetCurrentTemporalLayer() != prevTemporal {
		c.emitLayersChange(&LayersChangeNotification{SpatialLayer: c.currentSpatial, TemporalLayer: c.encodingContext.GetCurrentTemporalLayer()})
	}

	tOut := c.ts.Translate(origTS, c.output.GetMaxPacketTs())
	seqOut := c.seq.Input(origSeq)

	pkt.SSRC = c.output.GetSSRC()
	pkt.SequenceNumber = seqOut
	pkt.Timestamp = tOut

	if c.output.ReceivePacket(pkt) && c.listener != nil {
		c.listener.OnConsumerSendRTPPacket(c, pkt)
	}

	pkt.SequenceNumber = origSeq
	pkt.Timestamp = origTS
	pkt.SSRC = origSSRC
	pkt.Payload = origPayload
}

// maybeSwitchCurrent implements the switch-detection half of the Switch
// State Machine (SPEC_FULL.md §4.E): promote currentSpatial to
// targetSpatial the moment a keyframe arrives from the target layer.
func (c *SimulcastConsumer) maybeSwitchCurrent(s int16, keyFrame bool, pkt *rtp.Packet) {
	if c.currentSpatial == c.targetSpatial || s != c.targetSpatial || !keyFrame {
		return
	}

	c.currentSpatial = c.targetSpatial
	c.encodingContext.SetTargetTemporalLayer(c.targetTemporal)
	c.encodingContext.SetCurrentTemporalLayer(c.encodingContext.GetPacketTemporalLayer(pkt))
	c.output.ResetScore(10, false)
	c.emitLayersChange(&LayersChangeNotification{SpatialLayer: c.currentSpatial, TemporalLayer: c.targetTemporal})
	c.emitScore()
	c.syncRequired = true
}

// runSyncProtocol runs the Timestamp Synchronizer switch protocol of
// SPEC_FULL.md §4.B and resets the Sequence Rewriter's origin so the new
// source continues the prior monotonic output series.
func (c *SimulcastConsumer) runSyncProtocol(s int16, pkt *rtp.Packet) {
	c.seq.Sync(c.seq.LastOutput())

	isReference := s == c.tsReferenceSpatial
	var refSR, curSR senderReport
	if !isReference {
		ref := c.producerStreams[c.tsReferenceSpatial]
		cur := c.producerStreams[s]
		if ref != nil && cur != nil {
			refSR = senderReport{ntpMs: ref.GetSenderReportNtpMs(), ts: ref.GetSenderReportTs()}
			curSR = senderReport{ntpMs: cur.GetSenderReportNtpMs(), ts: cur.GetSenderReportTs()}
		}
	}

	c.ts.OnSwitchKeyframe(pkt.Timestamp, isReference, refSR, curSR, c.output.GetClockRate(), c.output.GetMaxPacketTs())
}

func (c *SimulcastConsumer) emitScore() {
	if c.listener == nil && c.notifyQueue == nil {
		return
	}
	producerScore := uint8(0)
	if c.currentSpatial != InvalidSpatialLayer && c.producerStreams[c.currentSpatial] != nil {
		producerScore = c.producerStreams[c.currentSpatial].GetScore()
	}
	n := ScoreNotification{Score: c.output.GetScore(), ProducerScore: producerScore}
	c.notifyQueue.Enqueue(func() { c.onScore(n) })
}

func (c *SimulcastConsumer) emitLayersChange(n *LayersChangeNotification) {
	c.notifyQueue.Enqueue(func() { c.onLayersChange(n) })
}

// onScore and onLayersChange dispatch to the handlers registered via
// SetScoreHandler/SetLayersChangeHandler below; with no handler registered
// the notification is discarded.
func (c *SimulcastConsumer) onScore(n ScoreNotification) {
	if c.scoreHandler != nil {
		c.scoreHandler(n)
	}
}

func (c *SimulcastConsumer) onLayersChange(n *LayersChangeNotification) {
	if c.layersChangeHandler != nil {
		c.layersChangeHandler(n)
	}
}

// GetTransmissionRate and GetRtt delegate to the output stream
// (SPEC_FULL.md §4.J, §6).
func (c *SimulcastConsumer) GetTransmissionRate(elapsed time.Duration) uint32 { return c.output.GetTransmissionRate(elapsed) }
func (c *SimulcastConsumer) GetRtt() float32                                 { return c.output.GetRtt() }

// GetBitratePriority, UseAvailableBitrate, IncreaseTemporalLayer,
// ApplyLayers, GetDesiredBitrate delegate to the Layer Selector
// (SPEC_FULL.md §4.D), threading in the current state snapshot.
func (c *SimulcastConsumer) GetBitratePriority() int16 {
	return c.selector.GetBitratePriority(c.view(), c.active)
}

func (c *SimulcastConsumer) UseAvailableBitrate(bitrate uint32, considerLoss bool) uint32 {
	if !c.externallyManagedBitrate {
		return 0
	}
	return c.selector.UseAvailableBitrate(c.view(), bitrate, considerLoss)
}

func (c *SimulcastConsumer) IncreaseTemporalLayer(bitrate uint32, considerLoss bool) uint32 {
	if !c.externallyManagedBitrate {
		return 0
	}
	return c.selector.IncreaseTemporalLayer(c.view(), bitrate, considerLoss)
}

func (c *SimulcastConsumer) ApplyLayers() {
	c.selector.ApplyLayers(c.UpdateTargetLayers)
}

func (c *SimulcastConsumer) GetDesiredBitrate() uint32 {
	return c.selector.GetDesiredBitrate(c.view())
}

// Close marks the consumer inactive and stops the notification queue
// (SPEC_FULL.md §4.J). It does not drop the encoding context or the output
// stream: both stay referenced by the consumer after Close. Idempotent.
func (c *SimulcastConsumer) Close() {
	if !c.active {
		return
	}
	c.active = false
	c.notifyQueue.Stop()
}

// GetRtcpSenderReport returns the output stream's sender report, throttled
// to at most one per maxRtcpInterval so a caller driving this on every RTCP
// compound-packet tick does not regenerate a report more often than the
// transport actually sends one (SPEC_FULL.md §4.J, §6).
func (c *SimulcastConsumer) GetRtcpSenderReport(now time.Time) *rtcp.SenderReport {
	if !c.lastRtcpSentTime.IsZero() && now.Sub(c.lastRtcpSentTime) < c.maxRtcpInterval {
		return nil
	}
	c.lastRtcpSentTime = now
	return c.output.GetRtcpSenderReport(now)
}

// consumerDump is the JSON dump shape: identity, negotiated codec, the
// preferred/target spatial and temporal layers and the current spatial
// layer. It carries no rtpStream object and no current temporal layer.
type consumerDump struct {
	ID                string `json:"id"`
	Kind              string `json:"kind"`
	MimeType          string `json:"mimeType"`
	PreferredSpatial  int16  `json:"preferredSpatialLayer"`
	PreferredTemporal int16  `json:"preferredTemporalLayer"`
	TargetSpatial     int16  `json:"targetSpatialLayer"`
	TargetTemporal    int16  `json:"targetTemporalLayer"`
	CurrentSpatial    int16  `json:"currentSpatialLayer"`
}

// FillJson marshals the consumer's identity/negotiation dump
// (SPEC_FULL.md §4.J, §6).
func (c *SimulcastConsumer) FillJson() ([]byte, error) {
	return json.Marshal(consumerDump{
		ID:                c.id,
		Kind:              c.kind,
		MimeType:          c.mimeType,
		PreferredSpatial:  c.preferredSpatial,
		PreferredTemporal: c.preferredTemporal,
		TargetSpatial:     c.targetSpatial,
		TargetTemporal:    c.targetTemporal,
		CurrentSpatial:    c.currentSpatial,
	})
}

// consumerStats is the JSON stats shape: a single object with the output
// stream's running transport/quality counters. It is not an array and
// includes no producer-stream stats.
type consumerStats struct {
	PacketsSent uint32  `json:"packetsSent"`
	OctetsSent  uint64  `json:"octetsSent"`
	LossPercent uint8   `json:"lossPercentage"`
	RttMs       float32 `json:"rttMs"`
	BitrateBps  uint32  `json:"bitrateBps"`
}

// FillJsonStats marshals the consumer's running transport/quality counters.
func (c *SimulcastConsumer) FillJsonStats(elapsed time.Duration) ([]byte, error) {
	return json.Marshal(consumerStats{
		PacketsSent: c.output.packetsSent.Load(),
		OctetsSent:  c.output.octetsSent.Load(),
		LossPercent: c.output.GetLossPercentage(),
		RttMs:       c.output.GetRtt(),
		BitrateBps:  c.output.GetTransmissionRate(elapsed),
	})
}

// consumerScore is the §6 JSON score shape.
type consumerScore struct {
	Score         uint8 `json:"score"`
	ProducerScore uint8 `json:"producerScore"`
}

// FillJsonScore marshals the current output/producer score pair.
func (c *SimulcastConsumer) FillJsonScore() ([]byte, error) {
	producerScore := uint8(0)
	if c.currentSpatial != InvalidSpatialLayer && c.producerStreams[c.currentSpatial] != nil {
		producerScore = c.producerStreams[c.currentSpatial].GetScore()
	}
	return json.Marshal(consumerScore{Score: c.output.GetScore(), ProducerScore: producerScore})
}

// SetScoreHandler/SetLayersChangeHandler register the notification
// callbacks an external control channel layer would forward as the
// `score`/`layerschange` events of SPEC_FULL.md §6.
func (c *SimulcastConsumer) SetScoreHandler(h func(ScoreNotification))                { c.scoreHandler = h }
func (c *SimulcastConsumer) SetLayersChangeHandler(h func(*LayersChangeNotification)) { c.layersChangeHandler = h }

// notifyQueue is a single-consumer fan-out queue: notifications
// enqueued from the (logically single-threaded) forwarding path run on
// their own goroutine so a slow listener callback cannot re-enter consumer
// state, matching the reference stack's pkg/utils.OpsQueue pattern
// (SPEC_FULL.md §4.H), but backed by a deque instead of a channel.
// Enqueue never blocks and the queue has no size limit.
type notifyQueue struct {
	logger logger.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	q       deque.Deque[func()]
	stopped bool
	done    chan struct{}
}

func newNotifyQueue(log logger.Logger) *notifyQueue {
	nq := &notifyQueue{logger: log, done: make(chan struct{})}
	nq.cond = sync.NewCond(&nq.mu)
	return nq
}

func (nq *notifyQueue) Start() {
	go nq.run()
}

func (nq *notifyQueue) run() {
	defer close(nq.done)
	for {
		nq.mu.Lock()
		for nq.q.Len() == 0 && !nq.stopped {
			nq.cond.Wait()
		}
		if nq.q.Len() == 0 && nq.stopped {
			nq.mu.Unlock()
			return
		}
		fn := nq.q.PopFront()
		nq.mu.Unlock()

		func() {
			defer func() {
				if r := recover(); r != nil {
					nq.logger.Errorw("panic in consumer notification callback", nil, "panic", r)
				}
			}()
			fn()
		}()
	}
}

func (nq *notifyQueue) Enqueue(fn func()) {
	nq.mu.Lock()
	if nq.stopped {
		nq.mu.Unlock()
		return
	}
	nq.q.PushBack(fn)
	nq.mu.Unlock()
	nq.cond.Signal()
}

func (nq *notifyQueue) Stop() {
	nq.mu.Lock()
	nq.stopped = true
	nq.mu.Unlock()
	nq.cond.Signal()
	<-nq.done
}
