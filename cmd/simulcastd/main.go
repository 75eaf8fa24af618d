// simulcastd is a minimal standalone forwarder: it binds one UDP socket
// per consumable spatial layer, feeds received RTP packets into a single
// SimulcastConsumer, and writes whatever the consumer selects to one
// output UDP destination. It exists to exercise pkg/sfu end to end outside
// of a test binary; a real deployment embeds the package directly instead.
package main

import (
	"net"
	"os"
	"strings"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/urfave/cli/v2"

	"github.com/livekit/protocol/logger"

	"github.com/nimblertc/simulcast/pkg/sfu"
	"github.com/nimblertc/simulcast/pkg/sfu/loginit"
)

func main() {
	app := &cli.App{
		Name:  "simulcastd",
		Usage: "forward one selected layer of a simulcast RTP stream to a single destination",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "comma-separated local UDP addrs, one per spatial layer, lowest first", Required: true},
			&cli.StringFlag{Name: "output", Usage: "UDP addr to forward the selected layer to", Required: true},
			&cli.StringFlag{Name: "mime", Usage: "negotiated codec MIME type", Value: "video/VP8"},
			&cli.UintFlag{Name: "clock-rate", Value: 90000},
			&cli.UintFlag{Name: "payload-type", Usage: "negotiated RTP payload type to accept", Value: 96},
			&cli.IntFlag{Name: "preferred-spatial", Value: 0},
			&cli.IntFlag{Name: "preferred-temporal", Value: 2},
			&cli.StringFlag{Name: "log-level", Value: "info"},
			&cli.BoolFlag{Name: "dev"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		logger.GetLogger().Errorw("simulcastd exited with error", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.Bool("dev") {
		loginit.InitDevelopment(c.String("log-level"))
	} else {
		loginit.InitProduction(c.String("log-level"))
	}
	log := logger.GetLogger()

	listenAddrs := strings.Split(c.String("listen"), ",")
	if len(listenAddrs) < 2 {
		return cli.Exit("at least two --listen addresses are required for simulcast", 1)
	}

	outConn, err := net.Dial("udp", c.String("output"))
	if err != nil {
		return err
	}
	defer outConn.Close()

	ssrcs := make([]uint32, len(listenAddrs))
	for i := range ssrcs {
		ssrcs[i] = uint32(i + 1)
	}

	listener := &udpListener{conn: outConn, log: log}
	consumer, err := sfu.NewSimulcastConsumer(sfu.SimulcastConsumerParams{
		ID:                     "simulcastd",
		MimeType:               c.String("mime"),
		ClockRate:              uint32(c.Uint("clock-rate")),
		OutputSSRC:             0xfeedface,
		ConsumableSSRCs:        ssrcs,
		SupportedPayloadTypes:  []uint8{uint8(c.Uint("payload-type"))},
		PreferredSpatialLayer:  int16(c.Int("preferred-spatial")),
		PreferredTemporalLayer: int16(c.Int("preferred-temporal")),
		Listener:               listener,
		Logger:                 log,
	})
	if err != nil {
		return err
	}
	defer consumer.Close()
	consumer.UpdateTargetLayers(int16(c.Int("preferred-spatial")), int16(c.Int("preferred-temporal")))

	errCh := make(chan error, len(listenAddrs))
	for i, addr := range listenAddrs {
		go receiveLayer(consumer, addr, ssrcs[i], strings.HasPrefix(c.String("mime"), "video/VP8"), log, errCh)
	}
	return <-errCh
}

func receiveLayer(consumer *sfu.SimulcastConsumer, addr string, ssrc uint32, isVP8 bool, log logger.Logger, errCh chan<- error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		errCh <- err
		return
	}
	defer conn.Close()

	buf := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			errCh <- err
			return
		}

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			log.Warnw("dropping unparseable RTP packet", err, "addr", addr)
			continue
		}
		pkt.SSRC = ssrc

		consumer.SendRTPPacket(pkt, isKeyFrame(pkt, isVP8))
	}
}

// isKeyFrame is a minimal heuristic: for VP8 it reports true for a packet
// whose payload descriptor starts the first partition of a frame (S=1,
// partition index PID=0). It does not read the VP8 payload header, so the
// first packet of an inter frame is reported as a keyframe too. For any
// other codec, key framing is not decided here and every packet is treated
// as a candidate, same as passthrough EncodingContexts already do for TID
// filtering.
func isKeyFrame(pkt *rtp.Packet, isVP8 bool) bool {
	if !isVP8 {
		return true
	}
	var vp8 codecs.VP8Packet
	if _, err := vp8.Unmarshal(pkt.Payload); err != nil {
		return false
	}
	return vp8.S == 1 && vp8.PID == 0
}

type udpListener struct {
	conn net.Conn
	log  logger.Logger
}

func (u *udpListener) OnConsumerSendRTPPacket(c *sfu.SimulcastConsumer, pkt *rtp.Packet) {
	raw, err := pkt.Marshal()
	if err != nil {
		u.log.Warnw("failed to marshal outgoing packet", err)
		return
	}
	if _, err := u.conn.Write(raw); err != nil {
		u.log.Warnw("failed to write outgoing packet", err)
	}
}

func (u *udpListener) OnConsumerKeyFrameRequested(c *sfu.SimulcastConsumer, mappedSSRC uint32) {
	u.log.Debugw("keyframe requested", "ssrc", mappedSSRC)
}

func (u *udpListener) OnConsumerNeedBitrateChange(c *sfu.SimulcastConsumer) {
	u.log.Debugw("bitrate change requested")
}
